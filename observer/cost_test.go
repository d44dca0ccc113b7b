package observer

import (
	"math"
	"testing"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestCalculateKnownModels(t *testing.T) {
	c := NewCostCalculator(nil)
	cases := []struct {
		model      string
		prompt     int64
		completion int64
		want       float64
	}{
		{"gpt-4o", 1_000_000, 1_000_000, 12.50},
		{"gpt-4o-mini", 1_000_000, 1_000_000, 0.75},
		{"gpt-4.1", 500_000, 250_000, 1.00 + 2.00},
		{"gpt-4.1-nano", 10_000, 5_000, 0.001 + 0.002},
		{"o3-mini", 0, 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.model, func(t *testing.T) {
			got := c.Calculate(tc.model, tc.prompt, tc.completion)
			if !approx(got, tc.want) {
				t.Errorf("cost = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestCalculateUnknownModelIsFree(t *testing.T) {
	c := NewCostCalculator(nil)
	if got := c.Calculate("mystery-model", 1_000_000, 1_000_000); got != 0 {
		t.Errorf("cost = %v", got)
	}
}

func TestOverridesMergeWithDefaults(t *testing.T) {
	c := NewCostCalculator(map[string]ModelPricing{
		"gpt-4o":       {1.00, 2.00},  // replace
		"custom-model": {5.00, 15.00}, // add
	})
	if got := c.Calculate("gpt-4o", 1_000_000, 1_000_000); !approx(got, 3.00) {
		t.Errorf("override cost = %v", got)
	}
	if got := c.Calculate("custom-model", 1_000_000, 1_000_000); !approx(got, 20.00) {
		t.Errorf("custom cost = %v", got)
	}
	// Untouched defaults survive.
	if got := c.Calculate("gpt-4o-mini", 1_000_000, 0); !approx(got, 0.15) {
		t.Errorf("default cost = %v", got)
	}
	// NewCostCalculator copies; the package map is unchanged.
	if p := DefaultPricing["gpt-4o"]; p.InputPerMillion != 2.50 {
		t.Errorf("default pricing mutated: %+v", p)
	}
}
