package domain

// OpenAlertSet holds the unresolved alert messages of one target's current
// down episode, in delivery order. It is owned by a single monitor goroutine
// and is not safe for concurrent use.
type OpenAlertSet struct {
	msgs []AlertMessage
}

func (s *OpenAlertSet) Add(msgs ...AlertMessage) {
	s.msgs = append(s.msgs, msgs...)
}

func (s *OpenAlertSet) Len() int { return len(s.msgs) }

func (s *OpenAlertSet) Empty() bool { return len(s.msgs) == 0 }

// Messages returns a copy of the open messages.
func (s *OpenAlertSet) Messages() []AlertMessage {
	out := make([]AlertMessage, len(s.msgs))
	copy(out, s.msgs)
	return out
}

// Retain calls keep exactly once per message, in order, and drops every
// message for which keep returns false. It returns the number dropped.
func (s *OpenAlertSet) Retain(keep func(AlertMessage) bool) int {
	kept := s.msgs[:0]
	dropped := 0
	for _, m := range s.msgs {
		if keep(m) {
			kept = append(kept, m)
		} else {
			dropped++
		}
	}
	// clear the tail so dropped handles are not retained by the backing array
	for i := len(kept); i < len(s.msgs); i++ {
		s.msgs[i] = AlertMessage{}
	}
	s.msgs = kept
	return dropped
}
