package relay

import (
	"context"
	"errors"
	"testing"
)

func TestNewValidation(t *testing.T) {
	cases := []struct {
		name  string
		build func() (*Agent, error)
		field string
	}{
		{
			"empty name",
			func() (*Agent, error) { return New("") },
			"name",
		},
		{
			"duplicate tools",
			func() (*Agent, error) {
				return New("a", WithTools(echoTool{name: "echo"}, echoTool{name: "echo"}))
			},
			"tools",
		},
		{
			"nil tool",
			func() (*Agent, error) { return New("a", WithTools(nil)) },
			"tools",
		},
		{
			"nil handoff target",
			func() (*Agent, error) { return New("a", WithHandoffs(Handoff{})) },
			"handoffs",
		},
		{
			"unnamed output schema",
			func() (*Agent, error) {
				return New("a", WithOutputSchema(OutputSchema{Schema: []byte(`{}`)}))
			},
			"output_schema",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.build()
			var ce *ErrInvalidConfig
			if !errors.As(err, &ce) {
				t.Fatalf("err = %v, want *ErrInvalidConfig", err)
			}
			if ce.Field != tc.field {
				t.Errorf("field = %q, want %q", ce.Field, tc.field)
			}
		})
	}
}

func TestMustNewPanicsOnInvalid(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("MustNew did not panic")
		}
	}()
	MustNew("")
}

func TestResolveInstructionsStatic(t *testing.T) {
	a := MustNew("static", WithInstructions("be terse"))
	got, err := a.resolveInstructions(context.Background(), NewRunContext(nil))
	if err != nil || got != "be terse" {
		t.Errorf("got %q, %v", got, err)
	}
}

func TestResolveInstructionsFuncWins(t *testing.T) {
	a := MustNew("dynamic",
		WithInstructions("ignored"),
		WithInstructionsFunc(func(_ context.Context, _ *RunContext, a *Agent) (string, error) {
			return "from func", nil
		}),
	)
	got, err := a.resolveInstructions(context.Background(), NewRunContext(nil))
	if err != nil || got != "from func" {
		t.Errorf("got %q, %v", got, err)
	}
}

func TestResolveInstructionsPanicRecovered(t *testing.T) {
	a := MustNew("bomb", WithInstructionsFunc(
		func(context.Context, *RunContext, *Agent) (string, error) { panic("no") },
	))
	_, err := a.resolveInstructions(context.Background(), NewRunContext(nil))
	if err == nil {
		t.Fatal("panic not converted to error")
	}
}

func TestToolDefinitionsIncludeHandoffShims(t *testing.T) {
	target := MustNew("Support Agent")
	a := MustNew("triage",
		WithTools(echoTool{name: "lookup"}),
		WithHandoffAgents(target),
	)
	defs := a.toolDefinitions()
	if len(defs) != 2 {
		t.Fatalf("defs = %+v", defs)
	}
	if defs[0].Name != "lookup" || defs[1].Name != "handoff_to_support_agent" {
		t.Errorf("names = %q, %q", defs[0].Name, defs[1].Name)
	}
}

func TestToolMap(t *testing.T) {
	a := MustNew("mapper", WithTools(echoTool{name: "a"}, echoTool{name: "b"}))
	m := a.toolMap()
	if len(m) != 2 || m["a"] == nil || m["b"] == nil {
		t.Errorf("toolMap = %v", m)
	}
}
