package core

import "time"

// State is the lifecycle state of the client session
type State int

const (
	StateAnonymous State = iota
	StateAuthenticated
	StateRefreshing
)

func (s State) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StateAuthenticated:
		return "authenticated"
	case StateRefreshing:
		return "refreshing_credential"
	default:
		return "unknown"
	}
}

// Transition reasons carried by StateChange
const (
	ReasonLogin            = "login"
	ReasonRehydrate        = "rehydrate"
	ReasonRefreshStarted   = "refresh_started"
	ReasonRefreshSucceeded = "refresh_succeeded"
	ReasonRefreshFailed    = "refresh_failed"
	ReasonLogout           = "logout"
)

// StateChange describes one session transition
type StateChange struct {
	From   State     `json:"from"`
	To     State     `json:"to"`
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}
