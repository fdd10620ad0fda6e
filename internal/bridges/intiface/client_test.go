package intiface

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/feedsync-core/internal/engine"
	"github.com/nerrad567/feedsync-core/internal/infrastructure/config"
)

// fakeServer is a minimal Intiface server.
type fakeServer struct {
	*httptest.Server

	mu          sync.Mutex
	received    []frame
	devices     []deviceEntry
	maxPingTime int
	failScalar  bool
	conns       []*websocket.Conn
}

func newFakeServer(t *testing.T, devices ...deviceEntry) *fakeServer {
	t.Helper()
	s := &fakeServer{devices: devices}
	upgrader := websocket.Upgrader{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns = append(s.conns, conn)
		s.mu.Unlock()
		s.serve(conn)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *fakeServer) serve(conn *websocket.Conn) {
	defer conn.Close()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		frames, err := decode(data)
		if err != nil {
			return
		}
		for _, f := range frames {
			// Writes share s.mu with push so a conn never has two writers.
			s.mu.Lock()
			s.received = append(s.received, f)
			var err error
			if reply := s.reply(f); reply != nil {
				err = conn.WriteMessage(websocket.TextMessage, reply)
			}
			s.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (s *fakeServer) reply(f frame) []byte {
	id := f.id()
	var (
		data []byte
		err  error
	)
	switch f.name {
	case msgRequestServerInfo:
		data, err = encode(msgServerInfo, serverInfo{ID: id, ServerName: "Fake Intiface", MessageVersion: 3, MaxPingTime: s.maxPingTime})
	case msgRequestDeviceList:
		data, err = encode(msgDeviceList, deviceList{ID: id, Devices: s.devices})
	case msgScalarCmd:
		if s.failScalar {
			data, err = encode(msgError, errorReply{ID: id, ErrorMessage: "device disconnected", ErrorCode: 4})
			break
		}
		data, err = encode(msgOk, idOnly{ID: id})
	case msgStopAllDevices:
		return nil
	default:
		data, err = encode(msgOk, idOnly{ID: id})
	}
	if err != nil {
		panic(err)
	}
	return data
}

// push sends an unsolicited event to every connected client.
func (s *fakeServer) push(t *testing.T, name string, body any) {
	t.Helper()
	data, err := encode(name, body)
	require.NoError(t, err)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conns {
		require.NoError(t, c.WriteMessage(websocket.TextMessage, data))
	}
}

// dropAll closes every server-side connection.
func (s *fakeServer) dropAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conns {
		c.Close()
	}
	s.conns = nil
}

func (s *fakeServer) framesNamed(name string) []frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []frame
	for _, f := range s.received {
		if f.name == name {
			out = append(out, f)
		}
	}
	return out
}

func (s *fakeServer) wsURL() string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func testConfig(url string) config.IntifaceConfig {
	return config.IntifaceConfig{
		URL:            url,
		ClientName:     "FeedSync Test",
		ScanWait:       10 * time.Millisecond,
		HealthInterval: 20 * time.Millisecond,
		RequestTimeout: 2 * time.Second,
		LinearDuration: 300 * time.Millisecond,
	}
}

func lush() deviceEntry {
	return deviceEntry{
		DeviceName:  "Lovense Edge",
		DeviceIndex: 3,
		DeviceMessages: deviceMessages{
			ScalarCmd: []featureAttrs{
				{FeatureDescriptor: "Inner", StepCount: 20, ActuatorType: "Vibrate"},
				{FeatureDescriptor: "Outer", StepCount: 20, ActuatorType: "Vibrate"},
				{FeatureDescriptor: "Pump", StepCount: 3, ActuatorType: "Constrict"},
			},
		},
	}
}

func nora() deviceEntry {
	return deviceEntry{
		DeviceName:  "Lovense Nora",
		DeviceIndex: 1,
		DeviceMessages: deviceMessages{
			ScalarCmd: []featureAttrs{{StepCount: 20, ActuatorType: "Vibrate"}},
			RotateCmd: []featureAttrs{{FeatureDescriptor: "Head", StepCount: 20}},
			LinearCmd: []featureAttrs{{FeatureDescriptor: "Stroke", StepCount: 100}},
		},
	}
}

func connect(t *testing.T, s *fakeServer) *Client {
	t.Helper()
	c := New(testConfig(s.wsURL()))
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(func() { c.Close() }) //nolint:errcheck // test cleanup
	return c
}

func TestConnect_Handshake(t *testing.T) {
	s := newFakeServer(t)
	c := connect(t, s)

	require.True(t, c.IsConnected())
	require.NoError(t, c.HealthCheck(context.Background()))

	hello := s.framesNamed(msgRequestServerInfo)
	require.Len(t, hello, 1)
	var req requestServerInfo
	require.NoError(t, json.Unmarshal(hello[0].body, &req))
	require.Equal(t, "FeedSync Test", req.ClientName)
	require.Equal(t, 3, req.MessageVersion)
	require.NotZero(t, req.ID)

	status := c.Status()
	require.True(t, status.Connected)
	require.Equal(t, "Fake Intiface", status.ServerName)
}

func TestConnect_Unreachable(t *testing.T) {
	c := New(testConfig("ws://127.0.0.1:1"))
	err := c.Connect(context.Background())
	require.ErrorIs(t, err, ErrNotConnected)
	require.False(t, c.IsConnected())
	require.ErrorIs(t, c.HealthCheck(context.Background()), ErrNotConnected)
}

func TestListDevices(t *testing.T) {
	s := newFakeServer(t, lush(), nora())
	c := connect(t, s)

	devices, err := c.ListDevices(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 2)

	// Ordered by device index.
	require.Equal(t, "1", devices[0].ID)
	require.Equal(t, "Lovense Nora", devices[0].Name)
	require.Equal(t, []engine.Actuator{
		{Index: 0, Class: engine.ClassVibrate, Descriptor: "Vibrate"},
		{Index: 1, Class: engine.ClassRotate, Descriptor: "Head"},
		{Index: 2, Class: engine.ClassLinear, Descriptor: "Stroke"},
	}, devices[0].Actuators)

	require.Equal(t, "3", devices[1].ID)
	require.Equal(t, engine.ClassUnknown, devices[1].Actuators[2].Class)

	require.Len(t, s.framesNamed(msgStartScanning), 1)
	require.Len(t, s.framesNamed(msgStopScanning), 1)
}

func TestListDevices_ContextCancelledDuringScan(t *testing.T) {
	s := newFakeServer(t)
	cfg := testConfig(s.wsURL())
	cfg.ScanWait = time.Hour
	c := New(cfg)
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close() //nolint:errcheck // test cleanup

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.ListDevices(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDeviceEvents(t *testing.T) {
	s := newFakeServer(t)
	c := connect(t, s)

	s.push(t, msgDeviceAdded, lush())
	require.Eventually(t, func() bool { return len(c.Devices()) == 1 }, time.Second, 5*time.Millisecond)

	s.push(t, msgDeviceRemoved, deviceRemoved{DeviceIndex: 3})
	require.Eventually(t, func() bool { return len(c.Devices()) == 0 }, time.Second, 5*time.Millisecond)
}

func TestSend_Scalar(t *testing.T) {
	s := newFakeServer(t, lush())
	c := connect(t, s)
	_, err := c.ListDevices(context.Background())
	require.NoError(t, err)

	err = c.Send(context.Background(), engine.Command{
		DeviceID: "3",
		Class:    engine.ClassVibrate,
		Indices:  []int{0, 1},
		Vector:   []float64{0.5, 1.2},
	})
	require.NoError(t, err)

	sent := s.framesNamed(msgScalarCmd)
	require.Len(t, sent, 1)
	var msg scalarCmd
	require.NoError(t, json.Unmarshal(sent[0].body, &msg))
	require.Equal(t, 3, msg.DeviceIndex)
	require.Equal(t, []scalar{
		{Index: 0, Scalar: 0.5, ActuatorType: "Vibrate"},
		{Index: 1, Scalar: 1, ActuatorType: "Vibrate"},
	}, msg.Scalars)
}

func TestSend_RotateAndLinear(t *testing.T) {
	s := newFakeServer(t, nora())
	c := connect(t, s)
	_, err := c.ListDevices(context.Background())
	require.NoError(t, err)

	require.NoError(t, c.Send(context.Background(), engine.Command{
		DeviceID: "1", Class: engine.ClassRotate, Indices: []int{1}, Vector: []float64{0.25},
	}))
	require.NoError(t, c.Send(context.Background(), engine.Command{
		DeviceID: "1", Class: engine.ClassLinear, Indices: []int{2}, Vector: []float64{0.75},
	}))

	var rot rotateCmd
	require.NoError(t, json.Unmarshal(s.framesNamed(msgRotateCmd)[0].body, &rot))
	require.Equal(t, []rotation{{Index: 0, Speed: 0.25, Clockwise: true}}, rot.Rotations)

	var lin linearCmd
	require.NoError(t, json.Unmarshal(s.framesNamed(msgLinearCmd)[0].body, &lin))
	require.Equal(t, []vector{{Index: 0, Duration: 300, Position: 0.75}}, lin.Vectors)
}

func TestSend_Errors(t *testing.T) {
	s := newFakeServer(t, lush())
	c := connect(t, s)
	_, err := c.ListDevices(context.Background())
	require.NoError(t, err)
	ctx := context.Background()

	err = c.Send(ctx, engine.Command{DeviceID: "3", Class: engine.ClassUnknown, Indices: []int{2}, Vector: []float64{1}})
	require.ErrorIs(t, err, engine.ErrUnsupportedActuator)

	err = c.Send(ctx, engine.Command{DeviceID: "9", Class: engine.ClassVibrate, Indices: []int{0}, Vector: []float64{1}})
	require.ErrorIs(t, err, ErrUnknownDevice)

	err = c.Send(ctx, engine.Command{DeviceID: "3", Class: engine.ClassVibrate, Indices: []int{7}, Vector: []float64{1}})
	require.ErrorIs(t, err, ErrUnknownActuator)

	s.mu.Lock()
	s.failScalar = true
	s.mu.Unlock()
	err = c.Send(ctx, engine.Command{DeviceID: "3", Class: engine.ClassVibrate, Indices: []int{0}, Vector: []float64{1}})
	require.ErrorIs(t, err, ErrServer)
	require.Contains(t, err.Error(), "device disconnected")
}

func TestPing(t *testing.T) {
	s := newFakeServer(t)
	s.maxPingTime = 40
	connect(t, s)

	require.Eventually(t, func() bool { return len(s.framesNamed(msgPing)) >= 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestMonitor_Reconnects(t *testing.T) {
	s := newFakeServer(t)
	c := connect(t, s)

	reconnected := make(chan struct{}, 1)
	c.SetOnReconnect(func() {
		select {
		case reconnected <- struct{}{}:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Monitor(ctx) //nolint:errcheck // returns nil on cancel

	s.dropAll()
	require.Eventually(t, func() bool { return !c.IsConnected() || c.Status().Reconnects > 0 }, time.Second, 5*time.Millisecond)

	select {
	case <-reconnected:
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not reconnect")
	}
	require.True(t, c.IsConnected())
	require.Equal(t, 1, c.Status().Reconnects)
	require.False(t, c.Status().LastCheck.IsZero())
}

func TestRequest_FailsPendingOnDisconnect(t *testing.T) {
	s := newFakeServer(t)
	c := connect(t, s)

	s.dropAll()
	require.Eventually(t, func() bool { return !c.IsConnected() }, time.Second, 5*time.Millisecond)

	_, err := c.ListDevices(context.Background())
	require.ErrorIs(t, err, ErrNotConnected)
}

func TestClose_SendsStopAll(t *testing.T) {
	s := newFakeServer(t)
	c := New(testConfig(s.wsURL()))
	require.NoError(t, c.Connect(context.Background()))

	require.NoError(t, c.Close())
	require.False(t, c.IsConnected())
	require.Eventually(t, func() bool { return len(s.framesNamed(msgStopAllDevices)) == 1 }, time.Second, 5*time.Millisecond)

	// Second close is a no-op.
	require.NoError(t, c.Close())
}
