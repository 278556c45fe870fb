package orchestrator

import (
	"fmt"
	"strings"

	"github.com/GaryOcean428/monkey-coder-sub002/pkg/task"
)

// NodeState tracks one sub-task through its lifecycle.
type NodeState string

const (
	NodePending        NodeState = "PENDING"
	NodeRouting        NodeState = "ROUTING"
	NodeInvoking       NodeState = "INVOKING"
	NodeSucceeded      NodeState = "SUCCEEDED"
	NodeRetrying       NodeState = "RETRYING"
	NodeFallback       NodeState = "FALLBACK"
	NodeFailedTerminal NodeState = "FAILED_TERMINAL"
)

// Terminal reports whether a state ends the node's lifecycle.
func (s NodeState) Terminal() bool {
	return s == NodeSucceeded || s == NodeFailedTerminal
}

// MergeStrategy declares how completed leaf outputs combine.
type MergeStrategy string

const (
	MergeConcatenate  MergeStrategy = "concatenate"
	MergeVoteMajority MergeStrategy = "vote-majority"
	MergeContextChain MergeStrategy = "context-chain"
)

// Node is one sub-task in an orchestration plan. A node is owned by the
// plan's orchestrator worker and is never shared across tasks.
type Node struct {
	ID        string
	Request   task.Request
	DependsOn []string

	// Optional nodes may fail terminally without failing the plan.
	Optional bool

	State      NodeState
	Action     task.Action
	Output     string
	Err        error
	FailReason string
	Attempts   int
	LatencyMS  int64
	Cost       float64

	// reachedInvoking gates feedback on the cancellation path: a node
	// cancelled before any decision was acted upon teaches us nothing.
	reachedInvoking bool
	feedbackFired   bool
}

// Plan is the DAG of sub-tasks for one incoming request. It is created
// per task, mutated only by the owning orchestrator worker, and
// discarded once the task completes.
type Plan struct {
	ID      string
	Request task.Request
	Nodes   []*Node
	Merge   MergeStrategy
}

// Node returns the node with the given ID, or nil.
func (p *Plan) Node(id string) *Node {
	for _, n := range p.Nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}

// Validate checks dependency references and rejects cycles.
func (p *Plan) Validate() error {
	if len(p.Nodes) == 0 {
		return fmt.Errorf("plan %s has no nodes", p.ID)
	}
	seen := make(map[string]bool, len(p.Nodes))
	for _, n := range p.Nodes {
		if n.ID == "" {
			return fmt.Errorf("plan %s has a node with no ID", p.ID)
		}
		if seen[n.ID] {
			return fmt.Errorf("plan %s has duplicate node %q", p.ID, n.ID)
		}
		seen[n.ID] = true
	}
	for _, n := range p.Nodes {
		for _, dep := range n.DependsOn {
			if !seen[dep] {
				return fmt.Errorf("node %q depends on unknown node %q", n.ID, dep)
			}
		}
	}
	return p.checkAcyclic()
}

func (p *Plan) checkAcyclic() error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(p.Nodes))
	var visit func(id string) error
	visit = func(id string) error {
		switch color[id] {
		case gray:
			return fmt.Errorf("plan %s has a dependency cycle through %q", p.ID, id)
		case black:
			return nil
		}
		color[id] = gray
		for _, dep := range p.Node(id).DependsOn {
			if err := visit(dep); err != nil {
				return err
			}
		}
		color[id] = black
		return nil
	}
	for _, n := range p.Nodes {
		if err := visit(n.ID); err != nil {
			return err
		}
	}
	return nil
}

// Ready returns the nodes whose dependencies have all reached a terminal
// state and which have not started yet.
func (p *Plan) Ready() []*Node {
	var ready []*Node
	for _, n := range p.Nodes {
		if n.State != NodePending {
			continue
		}
		ok := true
		for _, dep := range n.DependsOn {
			if !p.Node(dep).State.Terminal() {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, n)
		}
	}
	return ready
}

// Complete reports whether every node has reached a terminal state.
func (p *Plan) Complete() bool {
	for _, n := range p.Nodes {
		if !n.State.Terminal() {
			return false
		}
	}
	return true
}

// PlanIncompleteError signals an orchestrator bug: the completion check
// ran while non-terminal nodes remained. It is never expected in correct
// operation.
type PlanIncompleteError struct {
	PlanID string
	Nodes  []string
}

func (e *PlanIncompleteError) Error() string {
	return fmt.Sprintf("plan %s reported complete with non-terminal nodes: %s",
		e.PlanID, strings.Join(e.Nodes, ", "))
}

// CheckComplete returns a PlanIncompleteError if any node is non-terminal.
func (p *Plan) CheckComplete() error {
	var open []string
	for _, n := range p.Nodes {
		if !n.State.Terminal() {
			open = append(open, n.ID)
		}
	}
	if len(open) > 0 {
		return &PlanIncompleteError{PlanID: p.ID, Nodes: open}
	}
	return nil
}

// BuildPlan decomposes a request into a plan. Most categories route as a
// single node; code generation runs a design/implement/review chain and
// security requests fan out an audit alongside the review.
func BuildPlan(id string, req task.Request) *Plan {
	switch req.Category {
	case task.CategoryGenerate:
		return &Plan{
			ID:      id,
			Request: req,
			Merge:   MergeContextChain,
			Nodes: []*Node{
				{
					ID:       "design",
					Optional: true,
					State:    NodePending,
					Request: task.Request{
						Category: task.CategoryAnalyze,
						Prompt:   "Outline an implementation approach for the following task.\n\n" + req.Prompt,
						Context:  req.Context,
						Persona:  "architect",
					},
				},
				{
					ID:        "implement",
					DependsOn: []string{"design"},
					State:     NodePending,
					Request:   req,
				},
				{
					ID:        "review",
					DependsOn: []string{"implement"},
					Optional:  true,
					State:     NodePending,
					Request: task.Request{
						Category: task.CategoryReview,
						Prompt:   "Review the implementation below for correctness and style.",
						Persona:  "reviewer",
					},
				},
			},
		}
	case task.CategorySecurity:
		return &Plan{
			ID:      id,
			Request: req,
			Merge:   MergeConcatenate,
			Nodes: []*Node{
				{
					ID:    "audit",
					State: NodePending,
					Request: task.Request{
						Category:         req.Category,
						Prompt:           req.Prompt,
						Context:          req.Context,
						Persona:          "security",
						ProviderOverride: req.ProviderOverride,
					},
				},
				{
					ID:       "review",
					Optional: true,
					State:    NodePending,
					Request: task.Request{
						Category: task.CategoryReview,
						Prompt:   req.Prompt,
						Context:  req.Context,
						Persona:  "reviewer",
					},
				},
			},
		}
	default:
		return &Plan{
			ID:      id,
			Request: req,
			Merge:   MergeConcatenate,
			Nodes: []*Node{
				{ID: "main", State: NodePending, Request: req},
			},
		}
	}
}
