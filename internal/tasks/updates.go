package tasks

import "time"

// Cycle describes one finished poll.
type Cycle struct {
	Delay time.Duration // Wait before the next poll
	Err   error         // Non-nil when polling stopped
}

// Notify registers a channel that receives a [Cycle] after every poll made by [Monitor.Run].
//
// Must be called before Run. Sends never block; a full channel drops the update.
func (m *Monitor) Notify(ch chan<- Cycle) {
	m.updates = ch
}

func (m *Monitor) sendCycle(c Cycle) {
	if m.updates == nil {
		return
	}
	select {
	case m.updates <- c:
	default:
	}
}
