package orchestrator

import (
	"testing"

	"github.com/GaryOcean428/monkey-coder-sub002/pkg/task"
)

func TestValidateRejectsMalformedPlans(t *testing.T) {
	tests := []struct {
		name string
		plan *Plan
	}{
		{
			name: "empty plan",
			plan: &Plan{ID: "p"},
		},
		{
			name: "duplicate node",
			plan: &Plan{ID: "p", Nodes: []*Node{
				{ID: "a", State: NodePending},
				{ID: "a", State: NodePending},
			}},
		},
		{
			name: "unknown dependency",
			plan: &Plan{ID: "p", Nodes: []*Node{
				{ID: "a", DependsOn: []string{"ghost"}, State: NodePending},
			}},
		},
		{
			name: "self cycle",
			plan: &Plan{ID: "p", Nodes: []*Node{
				{ID: "a", DependsOn: []string{"a"}, State: NodePending},
			}},
		},
		{
			name: "two node cycle",
			plan: &Plan{ID: "p", Nodes: []*Node{
				{ID: "a", DependsOn: []string{"b"}, State: NodePending},
				{ID: "b", DependsOn: []string{"a"}, State: NodePending},
			}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.plan.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}

func TestValidateAcceptsDiamond(t *testing.T) {
	plan := &Plan{ID: "p", Nodes: []*Node{
		{ID: "root", State: NodePending},
		{ID: "left", DependsOn: []string{"root"}, State: NodePending},
		{ID: "right", DependsOn: []string{"root"}, State: NodePending},
		{ID: "join", DependsOn: []string{"left", "right"}, State: NodePending},
	}}
	if err := plan.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestReadyRespectsDependencies(t *testing.T) {
	plan := &Plan{ID: "p", Nodes: []*Node{
		{ID: "a", State: NodePending},
		{ID: "b", DependsOn: []string{"a"}, State: NodePending},
	}}

	ready := plan.Ready()
	if len(ready) != 1 || ready[0].ID != "a" {
		t.Fatalf("Ready() = %v, want only a", ready)
	}

	plan.Node("a").State = NodeSucceeded
	ready = plan.Ready()
	if len(ready) != 1 || ready[0].ID != "b" {
		t.Fatalf("Ready() = %v, want only b after a terminal", ready)
	}

	plan.Node("b").State = NodeFailedTerminal
	if len(plan.Ready()) != 0 {
		t.Error("Ready() not empty once all nodes are terminal")
	}
	if !plan.Complete() {
		t.Error("Complete() = false with all nodes terminal")
	}
}

func TestCheckCompleteReportsOpenNodes(t *testing.T) {
	plan := &Plan{ID: "p", Nodes: []*Node{
		{ID: "done", State: NodeSucceeded},
		{ID: "stuck", State: NodeInvoking},
	}}
	err := plan.CheckComplete()
	if err == nil {
		t.Fatal("CheckComplete() = nil, want PlanIncompleteError")
	}
	incomplete, ok := err.(*PlanIncompleteError)
	if !ok {
		t.Fatalf("CheckComplete() error type = %T", err)
	}
	if len(incomplete.Nodes) != 1 || incomplete.Nodes[0] != "stuck" {
		t.Errorf("open nodes = %v, want [stuck]", incomplete.Nodes)
	}
}

func TestTerminalStates(t *testing.T) {
	terminal := []NodeState{NodeSucceeded, NodeFailedTerminal}
	open := []NodeState{NodePending, NodeRouting, NodeInvoking, NodeRetrying, NodeFallback}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s.Terminal() = false, want true", s)
		}
	}
	for _, s := range open {
		if s.Terminal() {
			t.Errorf("%s.Terminal() = true, want false", s)
		}
	}
}

func TestBuildPlanShapes(t *testing.T) {
	t.Run("generate chains design, implement, review", func(t *testing.T) {
		plan := BuildPlan("p", task.Request{Category: task.CategoryGenerate, Prompt: "build a parser"})
		if err := plan.Validate(); err != nil {
			t.Fatalf("Validate() error = %v", err)
		}
		if len(plan.Nodes) != 3 {
			t.Fatalf("nodes = %d, want 3", len(plan.Nodes))
		}
		if plan.Merge != MergeContextChain {
			t.Errorf("Merge = %s, want context-chain", plan.Merge)
		}

		impl := plan.Node("implement")
		if impl == nil || impl.Optional {
			t.Fatal("implement node missing or optional")
		}
		if len(impl.DependsOn) != 1 || impl.DependsOn[0] != "design" {
			t.Errorf("implement depends on %v, want [design]", impl.DependsOn)
		}
		if design := plan.Node("design"); design == nil || !design.Optional {
			t.Error("design node missing or not optional")
		}
		if review := plan.Node("review"); review == nil || !review.Optional {
			t.Error("review node missing or not optional")
		}
	})

	t.Run("security fans out audit and review", func(t *testing.T) {
		plan := BuildPlan("p", task.Request{Category: task.CategorySecurity, Prompt: "audit auth flow"})
		if err := plan.Validate(); err != nil {
			t.Fatalf("Validate() error = %v", err)
		}
		audit := plan.Node("audit")
		if audit == nil || audit.Optional {
			t.Fatal("audit node missing or optional")
		}
		if audit.Request.Persona != "security" {
			t.Errorf("audit persona = %q, want security", audit.Request.Persona)
		}
		if len(audit.DependsOn) != 0 {
			t.Error("audit should have no dependencies (parallel fan-out)")
		}
	})

	t.Run("other categories route as a single node", func(t *testing.T) {
		for _, cat := range []task.Category{task.CategoryAnalyze, task.CategoryRefactor, task.CategoryTest, task.CategoryReview} {
			plan := BuildPlan("p", task.Request{Category: cat, Prompt: "x"})
			if len(plan.Nodes) != 1 || plan.Nodes[0].ID != "main" {
				t.Errorf("category %s: nodes = %v, want single main node", cat, plan.Nodes)
			}
		}
	})
}
