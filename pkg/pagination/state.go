package pagination

import "fmt"

// Status is the phase of a load operation.
type Status string

const (
	// StatusIdle means no load has started yet.
	StatusIdle Status = "idle"

	// StatusLoading means a load is in flight.
	StatusLoading Status = "loading"

	// StatusLoaded means the last load succeeded.
	StatusLoaded Status = "loaded"

	// StatusFailed means the last load failed; Msg says why.
	StatusFailed Status = "failed"
)

// NetworkState is the observable status of a fetcher's loads.
type NetworkState struct {
	Status Status
	Msg    string
	Kind   FailureKind
}

// Idle returns the state before any load.
func Idle() NetworkState { return NetworkState{Status: StatusIdle} }

// Loading returns the in-flight state.
func Loading() NetworkState { return NetworkState{Status: StatusLoading} }

// Loaded returns the success state.
func Loaded() NetworkState { return NetworkState{Status: StatusLoaded} }

// Failed returns a failure state carrying msg.
func Failed(msg string, kind FailureKind) NetworkState {
	return NetworkState{Status: StatusFailed, Msg: msg, Kind: kind}
}

// IsFailed reports whether s is a failure.
func (s NetworkState) IsFailed() bool { return s.Status == StatusFailed }

func (s NetworkState) String() string {
	if s.Status == StatusFailed {
		return fmt.Sprintf("%s: %s", s.Status, s.Msg)
	}
	return string(s.Status)
}
