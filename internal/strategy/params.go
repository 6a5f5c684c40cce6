package strategy

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
)

// ParamType is the declared type of a tunable parameter.
type ParamType string

const (
	ParamInt   ParamType = "int"
	ParamFloat ParamType = "float"
	ParamBool  ParamType = "bool"
)

// ParamSpec declares one tunable parameter.
type ParamSpec struct {
	Default     any       `json:"default" yaml:"default"`
	Type        ParamType `json:"type" yaml:"type"`
	Min         *float64  `json:"min,omitempty" yaml:"min,omitempty"`
	Max         *float64  `json:"max,omitempty" yaml:"max,omitempty"`
	Description string    `json:"description" yaml:"description"`
}

// Schema maps parameter names to their declarations.
type Schema map[string]ParamSpec

// Params holds parameter values keyed by name. Validated params always
// hold int, float64 or bool values matching their spec.
type Params map[string]any

// ErrInvalidParameter is wrapped by every ParamError.
var ErrInvalidParameter = errors.New("invalid parameter")

// ParamError describes a parameter rejected at construction time.
type ParamError struct {
	Strategy string
	Param    string
	Value    any
	Reason   string
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("%s: parameter %q=%v: %s", e.Strategy, e.Param, e.Value, e.Reason)
}

func (e *ParamError) Unwrap() error { return ErrInvalidParameter }

func intParam(def int, lo, hi float64, desc string) ParamSpec {
	return ParamSpec{Default: def, Type: ParamInt, Min: ptr(lo), Max: ptr(hi), Description: desc}
}

func floatParam(def, lo, hi float64, desc string) ParamSpec {
	return ParamSpec{Default: def, Type: ParamFloat, Min: ptr(lo), Max: ptr(hi), Description: desc}
}

func boolParam(def bool, desc string) ParamSpec {
	return ParamSpec{Default: def, Type: ParamBool, Description: desc}
}

// Defaults returns the default value of every parameter.
func (s Schema) Defaults() Params {
	out := make(Params, len(s))
	for name, spec := range s {
		out[name] = spec.Default
	}
	return out
}

// Clone returns a shallow copy of the schema.
func (s Schema) Clone() Schema {
	out := make(Schema, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Validate checks supplied against the schema and returns the full
// parameter set (defaults overlaid with supplied values, normalised to the
// declared types). Unknown names, wrong types and out-of-range values fail
// with a *ParamError.
func (s Schema) Validate(strategy string, supplied Params) (Params, error) {
	out := s.Defaults()

	names := make([]string, 0, len(supplied))
	for name := range supplied {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		raw := supplied[name]
		spec, ok := s[name]
		if !ok {
			return nil, &ParamError{Strategy: strategy, Param: name, Value: raw, Reason: "unknown parameter"}
		}
		v, err := coerce(spec, raw)
		if err != nil {
			return nil, &ParamError{Strategy: strategy, Param: name, Value: raw, Reason: err.Error()}
		}
		if f, numeric := asFloat(v); numeric {
			if spec.Min != nil && f < *spec.Min {
				return nil, &ParamError{Strategy: strategy, Param: name, Value: raw,
					Reason: fmt.Sprintf("below minimum %v", *spec.Min)}
			}
			if spec.Max != nil && f > *spec.Max {
				return nil, &ParamError{Strategy: strategy, Param: name, Value: raw,
					Reason: fmt.Sprintf("above maximum %v", *spec.Max)}
			}
		}
		out[name] = v
	}
	return out, nil
}

// coerce converts raw into the canonical Go type for spec.Type.
// Decoders hand back int, int64, float64 or json.Number depending on the
// format, so any integral number is accepted for an int parameter.
func coerce(spec ParamSpec, raw any) (any, error) {
	switch spec.Type {
	case ParamBool:
		b, ok := raw.(bool)
		if !ok {
			return nil, fmt.Errorf("expected bool, got %T", raw)
		}
		return b, nil

	case ParamInt:
		f, ok := asFloat(raw)
		if !ok {
			return nil, fmt.Errorf("expected int, got %T", raw)
		}
		if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
			return nil, fmt.Errorf("expected integral value")
		}
		return int(f), nil

	case ParamFloat:
		f, ok := asFloat(raw)
		if !ok {
			return nil, fmt.Errorf("expected number, got %T", raw)
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("expected finite number")
		}
		return f, nil
	}
	return nil, fmt.Errorf("unsupported parameter type %q", spec.Type)
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// Clone returns a shallow copy of p.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Float returns a numeric parameter as float64 (0 if absent).
func (p Params) Float(name string) float64 {
	f, _ := asFloat(p[name])
	return f
}

// Int returns a numeric parameter as int (0 if absent).
func (p Params) Int(name string) int {
	f, _ := asFloat(p[name])
	return int(f)
}

// Bool returns a boolean parameter (false if absent).
func (p Params) Bool(name string) bool {
	b, _ := p[name].(bool)
	return b
}
