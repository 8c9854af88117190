package bridge

import "fmt"

type State int

const (
	StateUnconfigured State = iota
	StateConnecting
	StateOnline
	StateOffline
	StateConfigurationError
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUnconfigured:
		return "UNCONFIGURED"
	case StateConnecting:
		return "CONNECTING"
	case StateOnline:
		return "ONLINE"
	case StateOffline:
		return "OFFLINE"
	case StateConfigurationError:
		return "CONFIGURATION_ERROR"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	for st := StateUnconfigured; st <= StateStopped; st++ {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown bridge state: %q", text)
}

var validTransitions = map[State][]State{
	StateUnconfigured:       {StateConnecting, StateConfigurationError, StateStopped},
	StateConnecting:         {StateOnline, StateOffline, StateStopped},
	StateOnline:             {StateOffline, StateStopped},
	StateOffline:            {StateConnecting, StateStopped},
	StateConfigurationError: {StateStopped},
	StateStopped:            {StateConnecting, StateConfigurationError},
}

func ValidateTransition(from, to State) error {
	allowed, exists := validTransitions[from]
	if !exists {
		return fmt.Errorf("invalid current state: %s", from)
	}

	for _, validTo := range allowed {
		if validTo == to {
			return nil
		}
	}

	return fmt.Errorf("invalid state transition: %s -> %s", from, to)
}
