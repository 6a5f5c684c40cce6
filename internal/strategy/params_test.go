package strategy

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestSchemaValidate_Defaults(t *testing.T) {
	got, err := RSISchema().Validate(TypeRSI, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got.Int("period") != 14 || got.Float("overbought") != 70 {
		t.Errorf("unexpected defaults: %v", got)
	}
}

func TestSchemaValidate_Normalises(t *testing.T) {
	got, err := MACDSchema().Validate(TypeMACD, Params{
		"fast_period":         float64(10), // JSON numbers decode as float64
		"slow_period":         json.Number("30"),
		"histogram_threshold": 0, // YAML decodes whole numbers as int
	})
	if err != nil {
		t.Fatal(err)
	}
	if v, ok := got["fast_period"].(int); !ok || v != 10 {
		t.Errorf("fast_period = %#v, want int 10", got["fast_period"])
	}
	if v, ok := got["slow_period"].(int); !ok || v != 30 {
		t.Errorf("slow_period = %#v, want int 30", got["slow_period"])
	}
	if v, ok := got["histogram_threshold"].(float64); !ok || v != 0 {
		t.Errorf("histogram_threshold = %#v, want float64 0", got["histogram_threshold"])
	}
}

func TestSchemaValidate_Rejects(t *testing.T) {
	cases := []struct {
		name   string
		schema Schema
		params Params
		param  string
	}{
		{"below min", RSISchema(), Params{"period": 1}, "period"},
		{"above max", RSISchema(), Params{"overbought": 99.0}, "overbought"},
		{"fractional int", RSISchema(), Params{"period": 14.5}, "period"},
		{"string number", RSISchema(), Params{"period": "14"}, "period"},
		{"unknown", RSISchema(), Params{"lookback": 14}, "lookback"},
		{"bool as number", MACDSchema(), Params{"require_histogram_confirmation": 1}, "require_histogram_confirmation"},
		{"number as bool", MACDSchema(), Params{"fast_period": true}, "fast_period"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.schema.Validate("test", tc.params)
			if !errors.Is(err, ErrInvalidParameter) {
				t.Fatalf("expected ErrInvalidParameter, got %v", err)
			}
			var pe *ParamError
			if !errors.As(err, &pe) || pe.Param != tc.param {
				t.Fatalf("expected ParamError for %q, got %v", tc.param, err)
			}
		})
	}
}

func TestParams_Accessors(t *testing.T) {
	p := Params{"a": 3, "b": 1.5, "c": true}
	if p.Int("a") != 3 || p.Float("b") != 1.5 || !p.Bool("c") {
		t.Errorf("accessors returned wrong values")
	}
	if p.Int("missing") != 0 || p.Bool("missing") {
		t.Errorf("missing params should be zero")
	}
	cp := p.Clone()
	cp["a"] = 4
	if p.Int("a") != 3 {
		t.Error("Clone shares storage")
	}
}
