// Package influxdb records FeedSync telemetry in InfluxDB 2.x.
//
// Client wraps the influxdb-client-go v2 non-blocking write API: points are
// buffered and flushed in batches, and asynchronous write errors are handed
// to a callback. Recorder turns engine events (feed readings, state changes,
// actuator commands) into points and is safe to call from the engine
// goroutine because writes never block.
//
// # Measurements
//
//	signal_reading    fields value_1..value_n, count, level; tag kind (numbers|phrase)
//	mapping_state     field running (bool); tag session
//	actuator_command  fields a<index> per actuator, ok; tags device_id, class
//
// Usage:
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	eng.SetObserver(engine.Observers{hub, influxdb.NewRecorder(client)})
package influxdb
