// Package scheduler runs every engine callback on one goroutine.
//
// Periodic timers, send completions and API-issued lifecycle calls are all
// funnelled through a single FIFO queue, so the code they call never needs
// locks. A cancelled Token never fires again, even when its firing was
// already queued behind other work.
//
//	loop := scheduler.NewLoop(logger)
//	loop.Start()
//	defer loop.Stop()
//
//	tok := loop.Schedule(175*time.Millisecond, func() { ... })
//	loop.Cancel(tok)
//
//	_ = loop.Do(ctx, func() { ... }) // run on the loop and wait
//
// Manual implements the same Scheduler interface with a virtual clock for
// deterministic tests.
package scheduler
