package session

import "log/slog"

// Stack is the explicit session stack: a tagged-variant replacement for the
// old screen-stack navigation, minus any rendering. Only the top session is
// updated, which is what keeps captures mutually exclusive.
type Stack struct {
	log   *slog.Logger
	items []*Session
}

func NewStack() *Stack {
	return &Stack{log: slog.Default().With("component", "stack")}
}

// Push activates s and makes it the updated session. If activation fails
// (missing prerequisite) the stack is unchanged.
func (st *Stack) Push(s *Session) error {
	if err := s.Activate(); err != nil {
		return err
	}
	st.items = append(st.items, s)
	st.log.Info("session pushed", "mode", s.Mode().String(), "depth", len(st.items))
	return nil
}

// Pop deactivates and removes the top session.
func (st *Stack) Pop() {
	if len(st.items) == 0 {
		return
	}
	top := st.items[len(st.items)-1]
	top.Deactivate()
	st.items = st.items[:len(st.items)-1]
	st.log.Info("session popped", "mode", top.Mode().String(), "depth", len(st.items))
}

// Top returns the active session, or nil.
func (st *Stack) Top() *Session {
	if len(st.items) == 0 {
		return nil
	}
	return st.items[len(st.items)-1]
}

func (st *Stack) Len() int {
	return len(st.items)
}

// Update ticks the top session, popping it once it retires itself.
func (st *Stack) Update() {
	top := st.Top()
	if top == nil {
		return
	}
	if top.Update() {
		st.items = st.items[:len(st.items)-1]
		st.log.Info("session retired", "mode", top.Mode().String(), "depth", len(st.items))
	}
}
