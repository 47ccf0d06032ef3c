package dispatch

// Trigger decides when a session's transcript should be dispatched.
// Implementations are consulted after every connection detach.
type Trigger interface {
	ShouldDispatch(sessionID string, remaining int) bool
}

// LastConnectionClosed dispatches as soon as a session's final
// connection goes away.
type LastConnectionClosed struct{}

func (LastConnectionClosed) ShouldDispatch(_ string, remaining int) bool {
	return remaining == 0
}
