// Package process supervises a long-running child process.
//
// FeedSync uses it to launch a local Intiface Engine when the device
// channel points at a server this host should own. The supervisor relaunches
// the binary after a crash (bounded by MaxRestarts), forwards its output to
// the logger line by line, and on shutdown signals the whole process group
// with SIGTERM before falling back to SIGKILL.
//
//	sup := process.New(process.Config{
//	    Name:   "intiface-engine",
//	    Binary: "intiface-engine",
//	    Args:   []string{"--websocket-port", "12345"},
//	})
//	go sup.Run(ctx) // returns once ctx is cancelled and the child has exited
//	<-sup.Started()
package process
