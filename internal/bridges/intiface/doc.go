// Package intiface drives devices through an Intiface Central (Buttplug
// protocol v3) server over a websocket.
//
// The Client performs the RequestServerInfo handshake, keeps the server's
// ping deadline, discovers devices by scanning for a configured period and
// then listing them, and tracks DeviceAdded/DeviceRemoved events between
// listings. It implements engine.Channel: ListDevices returns the discovered
// devices and Send encodes one intensity vector per call.
//
// # Actuator indices
//
// Each device exposes its features in ScalarCmd, RotateCmd and LinearCmd
// order. The engine sees them as one index space (ScalarCmd features first),
// and Send maps every index back to its protocol message and feature index:
//
//	ScalarCmd[0] Vibrate  -> actuator 0, class vibrate
//	ScalarCmd[1] Vibrate  -> actuator 1, class vibrate
//	RotateCmd[0]          -> actuator 2, class rotate
//
// Scalar feature types the engine cannot drive (Constrict, Inflate) are
// reported with class unknown and never receive rows.
//
// # Health
//
// Monitor checks the connection every HealthInterval and redials when the
// server went away, so a restarted Intiface instance is picked up without
// restarting FeedSync.
package intiface
