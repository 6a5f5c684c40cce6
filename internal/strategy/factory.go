package strategy

import (
	"errors"
	"fmt"
)

// Type tags accepted by New and recorded in exports.
const (
	TypeRSI      = "rsi"
	TypeMACD     = "macd"
	TypeCombined = "combined"
)

// ErrUnknownType is returned for an unrecognised type tag.
var ErrUnknownType = errors.New("unknown strategy type")

// Types lists the supported type tags.
func Types() []string { return []string{TypeRSI, TypeMACD, TypeCombined} }

// New builds a strategy from its type tag and parameters.
func New(kind string, params Params) (Strategy, error) {
	var (
		s   Strategy
		err error
	)
	switch kind {
	case TypeRSI:
		s, err = NewRSIStrategy(params)
	case TypeMACD:
		s, err = NewMACDStrategy(params)
	case TypeCombined:
		s, err = NewCombinedStrategy(params)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, kind)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}
