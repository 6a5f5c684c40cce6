package strategy

import (
	"fmt"
	"strings"
)

// SignalType is the action a strategy recommends.
type SignalType int

const (
	SignalHold SignalType = iota
	SignalBuy
	SignalSell
)

func (s SignalType) String() string {
	switch s {
	case SignalBuy:
		return "BUY"
	case SignalSell:
		return "SELL"
	default:
		return "HOLD"
	}
}

// Lower returns the lower-case form used by downstream consumers.
func (s SignalType) Lower() string { return strings.ToLower(s.String()) }

// Direction maps BUY to +1, SELL to -1 and HOLD to 0.
func (s SignalType) Direction() float64 {
	switch s {
	case SignalBuy:
		return 1
	case SignalSell:
		return -1
	default:
		return 0
	}
}

// Opposes reports whether s and o are opposite non-HOLD directions.
func (s SignalType) Opposes(o SignalType) bool {
	return s.Direction()*o.Direction() < 0
}

// ParseSignalType parses "buy", "SELL", "Hold", ...
func ParseSignalType(v string) (SignalType, error) {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "BUY":
		return SignalBuy, nil
	case "SELL":
		return SignalSell, nil
	case "HOLD":
		return SignalHold, nil
	}
	return SignalHold, fmt.Errorf("unknown signal %q", v)
}

func (s SignalType) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *SignalType) UnmarshalText(b []byte) error {
	v, err := ParseSignalType(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
