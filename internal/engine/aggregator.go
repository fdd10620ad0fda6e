package engine

import "errors"

// flight is the most recent vector submitted for a group and not yet completed.
type flight struct {
	seq    uint64
	vector []float64
}

// flush sends every group of the device whose vector differs from the last
// one that group sent successfully. A vector already in flight counts as sent.
func (e *Engine) flush(deviceID string) {
	for _, g := range e.table.groups[deviceID] {
		cmd := g.command()
		last, inFlight := e.inflight[g.key]
		reference := last.vector
		if !inFlight {
			reference = e.lastSent[g.key]
		}
		if reference != nil && vectorsEqual(reference, cmd.Vector) {
			continue
		}
		e.submit(g.key, cmd)
	}
}

func (e *Engine) submit(key groupKey, cmd Command) {
	e.seq++
	seq, session := e.seq, e.session
	e.inflight[key] = flight{seq: seq, vector: cmd.Vector}

	e.dispatcher.Submit(cmd, func(err error) {
		// A newer vector for the group took this one's place; its own
		// completion settles the in-flight entry.
		if errors.Is(err, ErrSuperseded) {
			return
		}
		if postErr := e.sched.Post(func() { e.completed(session, seq, key, cmd, err) }); postErr != nil {
			e.logger.Debug("dropping send result", "device", cmd.DeviceID, "error", postErr)
		}
	})
}

// completed runs on the scheduler once the dispatcher finished a send.
func (e *Engine) completed(session, seq uint64, key groupKey, cmd Command, err error) {
	e.observer.CommandSent(cmd, err)
	if session != e.session {
		return
	}
	if err != nil {
		e.logger.Warn("command send failed",
			"device", cmd.DeviceID, "class", cmd.Class.String(), "error", err)
	} else {
		e.lastSent[key] = cmd.Vector
	}
	if f, ok := e.inflight[key]; ok && f.seq == seq {
		delete(e.inflight, key)
	}
}

// sendZeros sends an all-zero vector to every group, bypassing the cache.
// Each zero replaces whatever the dispatcher still holds for that group.
func (e *Engine) sendZeros() {
	for _, g := range e.table.allGroups() {
		cmd := g.zeroCommand()
		e.dispatcher.Submit(cmd, func(err error) {
			if errors.Is(err, ErrSuperseded) {
				return
			}
			if err != nil {
				e.logger.Warn("stop command failed", "device", cmd.DeviceID, "class", cmd.Class.String(), "error", err)
			}
			if postErr := e.sched.Post(func() { e.observer.CommandSent(cmd, err) }); postErr != nil {
				e.logger.Debug("dropping send result", "device", cmd.DeviceID, "error", postErr)
			}
		})
	}
}

func vectorsEqual(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
