package orders

import (
	"github.com/pkg/errors"
)

type State string

const (
	StateCreated        State = "Created"
	StateOutForDelivery State = "OutForDelivery"
	StateDelivered      State = "Delivered"
)

var validNext = map[State]map[State]bool{
	StateCreated:        {StateOutForDelivery: true},
	StateOutForDelivery: {StateDelivered: true},
	StateDelivered:      {},
}

// CanTransition reports whether moving from -> to advances the lifecycle.
// Re-applying the current state is allowed so event replays stay idempotent.
func CanTransition(from, to State) bool {
	if from == to {
		_, known := validNext[from]
		return known
	}
	return validNext[from][to]
}

func ParseState(s string) (State, error) {
	st := State(s)
	if _, ok := validNext[st]; !ok {
		return "", errors.Errorf("unknown order state %q", s)
	}
	return st, nil
}

func (s State) String() string { return string(s) }
