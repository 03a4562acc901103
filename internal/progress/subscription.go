package progress

// Subscription is the disposable handle returned by Tracker.Subscribe.
type Subscription struct {
	tracker *Tracker
	opID    string
	key     string
}

// Cancel removes the observer. Safe to call more than once, and a no-op if
// the operation has already been cleaned up or re-registered.
func (s *Subscription) Cancel() {
	s.tracker.mu.Lock()
	defer s.tracker.mu.Unlock()

	if op, ok := s.tracker.ops[s.opID]; ok {
		delete(op.observers, s.key)
	}
}
