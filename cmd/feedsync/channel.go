package main

import (
	"context"

	"github.com/nerrad567/feedsync-core/internal/api"
	"github.com/nerrad567/feedsync-core/internal/bridges/intiface"
	"github.com/nerrad567/feedsync-core/internal/bridges/mqttdev"
	"github.com/nerrad567/feedsync-core/internal/engine"
	"github.com/nerrad567/feedsync-core/internal/infrastructure/config"
	"github.com/nerrad567/feedsync-core/internal/infrastructure/logging"
	"github.com/nerrad567/feedsync-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/feedsync-core/internal/process"
)

// deviceChannel is the configured engine.Channel plus the lifecycle hooks
// run needs. monitor and onReconnect are nil for channels without a
// connection of their own.
type deviceChannel struct {
	engine.Channel
	kind        string
	health      api.HealthChecker
	status      func() any
	monitor     func(ctx context.Context) error
	onReconnect func(cb func())
	close       func() error
}

// mqttChannelStatus is the /status view of the MQTT device channel.
type mqttChannelStatus struct {
	Type      string `json:"type"`
	Connected bool   `json:"connected"`
	Devices   int    `json:"devices"`
}

// intifaceChannelStatus is the /status view of the Intiface channel.
type intifaceChannelStatus struct {
	Type string `json:"type"`
	intiface.Status
	Engine *process.Stats `json:"engine,omitempty"`
}

func openChannel(ctx context.Context, cfg *config.Config, mqttClient *mqtt.Client, topics mqtt.Topics, engineHost *process.Supervisor, log *logging.Logger) *deviceChannel {
	if cfg.Channel.Type == config.ChannelMQTT {
		devices := cfg.Channel.Devices
		return &deviceChannel{
			Channel: mqttdev.New(mqttClient, topics, byte(cfg.MQTT.QoS), devices),
			kind:    config.ChannelMQTT,
			health:  mqttClient,
			status: func() any {
				return mqttChannelStatus{
					Type:      config.ChannelMQTT,
					Connected: mqttClient.IsConnected(),
					Devices:   len(devices),
				}
			},
			close: func() error { return nil },
		}
	}

	client := intiface.New(cfg.Channel.Intiface)
	client.SetLogger(log.With("component", "intiface"))
	if err := client.Connect(ctx); err != nil {
		// The monitor keeps retrying; the API stays up meanwhile.
		log.Warn("intiface server unavailable", "url", cfg.Channel.Intiface.URL, "error", err)
	}
	return &deviceChannel{
		Channel: client,
		kind:    config.ChannelIntiface,
		health:  client,
		status: func() any {
			st := intifaceChannelStatus{Type: config.ChannelIntiface, Status: client.Status()}
			if engineHost != nil {
				stats := engineHost.Stats()
				st.Engine = &stats
			}
			return st
		},
		monitor:     client.Monitor,
		onReconnect: client.SetOnReconnect,
		close:       client.Close,
	}
}
