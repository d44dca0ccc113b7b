package relay

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestUsageAdd(t *testing.T) {
	u := Usage{PromptTokens: 3, CompletionTokens: 1, TotalTokens: 4}
	u.Add(Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15})

	want := Usage{PromptTokens: 13, CompletionTokens: 6, TotalTokens: 19}
	if u != want {
		t.Errorf("got %+v, want %+v", u, want)
	}

	u.Add(Usage{})
	if u != want {
		t.Errorf("adding zero changed usage: %+v", u)
	}
}

func TestUsageIsZero(t *testing.T) {
	if !(Usage{}).IsZero() {
		t.Error("zero value not zero")
	}
	if (Usage{TotalTokens: 1}).IsZero() {
		t.Error("non-zero value reported zero")
	}
}

func TestUsageAccumulationProperties(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 100
	properties := gopter.NewProperties(params)

	genUsage := gopter.CombineGens(
		gen.Int64Range(0, 1<<40),
		gen.Int64Range(0, 1<<40),
	).Map(func(vs []interface{}) Usage {
		p, c := vs[0].(int64), vs[1].(int64)
		return Usage{PromptTokens: p, CompletionTokens: c, TotalTokens: p + c}
	})

	properties.Property("accumulation is monotone", prop.ForAll(
		func(a, b Usage) bool {
			sum := a
			sum.Add(b)
			return sum.PromptTokens >= a.PromptTokens &&
				sum.CompletionTokens >= a.CompletionTokens &&
				sum.TotalTokens >= a.TotalTokens
		},
		genUsage, genUsage,
	))

	properties.Property("accumulation is commutative", prop.ForAll(
		func(a, b Usage) bool {
			x, y := a, b
			x.Add(b)
			y.Add(a)
			return x == y
		},
		genUsage, genUsage,
	))

	properties.Property("zero is the identity", prop.ForAll(
		func(a Usage) bool {
			sum := a
			sum.Add(Usage{})
			return sum == a
		},
		genUsage,
	))

	properties.TestingRun(t)
}
