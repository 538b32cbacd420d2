package proxy

import (
	"fmt"

	"github.com/magneto-serge/magneto/config"
)

// State is what the proxy is doing right now. Every request is dispatched according to the state at
// the time it arrives.
type State int

const (
	// StateIdle means no session is active; requests are refused with 503.
	StateIdle State = iota
	// StateRecording forwards every request and appends the exchange to a new cassette.
	StateRecording
	// StateReplaying serves requests from a cassette, matching on method and URL.
	StateReplaying
	// StateReplayingStrict serves requests from a cassette, and also requires headers and body to match.
	StateReplayingStrict
	// StatePassThrough forwards every request without recording it.
	StatePassThrough
	// StateHybrid serves from a cassette when it can, and forwards and records whatever is missing.
	StateHybrid
)

var stateNames = map[State]string{ //nolint:gochecknoglobals
	StateIdle:            "Idle",
	StateRecording:       "Recording",
	StateReplaying:       "Replaying",
	StateReplayingStrict: "ReplayingStrict",
	StatePassThrough:     "PassThrough",
	StateHybrid:          "Hybrid",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// records is true for the states that append to a cassette. Such a session must be stopped explicitly
// so that the cassette is written.
func (s State) records() bool {
	return s == StateRecording || s == StateHybrid
}

// replays is true for the states that match requests against a cassette.
func (s State) replays() bool {
	return s == StateReplaying || s == StateReplayingStrict || s == StateHybrid
}

// needsCassette is false only for PassThrough, which has no cassette name.
func (s State) needsCassette() bool {
	return s != StatePassThrough && s != StateIdle
}

// stateForMode maps a concrete mode to the state it starts. ModeAuto has no state of its own; it is
// resolved against the store first.
func stateForMode(mode config.Mode) (State, bool) {
	switch mode {
	case config.ModeRecord:
		return StateRecording, true
	case config.ModeReplay:
		return StateReplaying, true
	case config.ModeReplayStrict:
		return StateReplayingStrict, true
	case config.ModePassThrough:
		return StatePassThrough, true
	case config.ModeHybrid:
		return StateHybrid, true
	default:
		return StateIdle, false
	}
}

// checkTransition decides whether a session in state "to" may start while the proxy is in state "from".
// Replay-family and PassThrough sessions replace each other directly; a recording session can only
// start from Idle, and nothing can replace it.
func checkTransition(from, to State) error {
	if from.records() {
		return ErrAlreadyRecording
	}
	if to.records() && from != StateIdle {
		return ErrSessionActive
	}
	return nil
}
