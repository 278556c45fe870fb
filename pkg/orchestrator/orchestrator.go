// Package orchestrator decomposes incoming tasks into DAG plans, drives
// each sub-task through routing and invocation, and feeds every terminal
// outcome back into the performance tracker and the routing policy.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/GaryOcean428/monkey-coder-sub002/pkg/encoder"
	"github.com/GaryOcean428/monkey-coder-sub002/pkg/journal"
	"github.com/GaryOcean428/monkey-coder-sub002/pkg/persona"
	"github.com/GaryOcean428/monkey-coder-sub002/pkg/policy"
	"github.com/GaryOcean428/monkey-coder-sub002/pkg/provider"
	"github.com/GaryOcean428/monkey-coder-sub002/pkg/quality"
	"github.com/GaryOcean428/monkey-coder-sub002/pkg/task"
	"github.com/GaryOcean428/monkey-coder-sub002/pkg/tracker"
)

// Config holds execution tunables for plan nodes.
type Config struct {
	// MaxRetries bounds retries of one action under retry-with-backoff.
	MaxRetries int
	// MaxTimeoutRetries is the lower retry cap for timeouts: a provider
	// that just timed out rarely succeeds on immediate retry.
	MaxTimeoutRetries int
	BaseBackoff       time.Duration
	MaxBackoff        time.Duration
	// NodeTimeout bounds each provider invocation.
	NodeTimeout time.Duration
	// MaxFallbacks bounds how many alternate actions a node may try.
	MaxFallbacks int
	// VoteSamples is the sample count for multi-sample-vote.
	VoteSamples int
}

// DefaultConfig returns the default execution tunables.
func DefaultConfig() Config {
	return Config{
		MaxRetries:        2,
		MaxTimeoutRetries: 1,
		BaseBackoff:       200 * time.Millisecond,
		MaxBackoff:        2 * time.Second,
		NodeTimeout:       60 * time.Second,
		MaxFallbacks:      2,
		VoteSamples:       3,
	}
}

// Orchestrator owns plan execution. One instance serves many concurrent
// tasks; each task gets its own plan and never shares it.
type Orchestrator struct {
	registry provider.Registry
	invokers map[string]provider.Invoker
	personas *persona.Registry
	tracker  *tracker.Tracker
	policy   *policy.Policy
	journal  *journal.Writer
	cfg      Config
	logger   *slog.Logger

	// sleep is swappable so tests can skip real backoff delays.
	sleep func(ctx context.Context, d time.Duration) error

	planSeq atomic.Int64
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithConfig overrides the execution tunables.
func WithConfig(cfg Config) Option {
	return func(o *Orchestrator) { o.cfg = cfg }
}

// WithJournal attaches a decision journal.
func WithJournal(w *journal.Writer) Option {
	return func(o *Orchestrator) { o.journal = w }
}

// WithLogger sets the orchestrator logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// New creates an orchestrator.
func New(
	registry provider.Registry,
	invokers map[string]provider.Invoker,
	personas *persona.Registry,
	perf *tracker.Tracker,
	pol *policy.Policy,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		registry: registry,
		invokers: invokers,
		personas: personas,
		tracker:  perf,
		policy:   pol,
		cfg:      DefaultConfig(),
		logger:   slog.Default(),
		sleep:    ctxSleep,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// planRun accumulates plan-wide totals across concurrently executing
// branches.
type planRun struct {
	mu   sync.Mutex
	cost float64
}

func (r *planRun) add(cost float64) {
	r.mu.Lock()
	r.cost += cost
	r.mu.Unlock()
}

func (r *planRun) total() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cost
}

// RouteAndExecute drives a request through plan construction, routing,
// invocation, and aggregation. Sub-task failures are absorbed locally;
// only a plan-level terminal failure surfaces in the result status.
func (o *Orchestrator) RouteAndExecute(ctx context.Context, req task.Request) (*task.Result, error) {
	if _, err := task.ParseCategory(string(req.Category)); err != nil {
		return nil, &encoder.EncodingError{Reason: err.Error()}
	}

	planID := fmt.Sprintf("plan-%d", o.planSeq.Add(1))
	plan := BuildPlan(planID, req)
	if err := plan.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	run := &planRun{}
	o.execute(ctx, plan, run)

	// All feedback has fired by now; a non-terminal node here is a bug.
	if err := plan.CheckComplete(); err != nil {
		return nil, err
	}

	result := o.aggregate(plan, run)
	result.TotalLatencyMS = time.Since(start).Milliseconds()
	o.logger.Info("plan complete",
		"plan", plan.ID,
		"status", result.Status,
		"nodes", len(plan.Nodes),
		"cost", result.TotalCost)
	return result, nil
}

// execute runs the plan in dependency waves. Independent branches of a
// wave run concurrently; a node never starts before its dependencies
// are terminal.
func (o *Orchestrator) execute(ctx context.Context, plan *Plan, run *planRun) {
	for {
		if ctx.Err() != nil {
			o.cancelRemaining(plan)
			return
		}
		ready := plan.Ready()
		if len(ready) == 0 {
			return
		}
		g := new(errgroup.Group)
		for _, n := range ready {
			n := n
			g.Go(func() error {
				o.runNode(ctx, plan, n, run)
				return nil
			})
		}
		_ = g.Wait()
	}
}

func (o *Orchestrator) runNode(ctx context.Context, plan *Plan, n *Node, run *planRun) {
	if ctx.Err() != nil {
		// Cancelled before any decision was acted upon: no feedback.
		n.State = NodeFailedTerminal
		n.FailReason = "cancelled"
		n.Err = ctx.Err()
		return
	}

	for _, dep := range n.DependsOn {
		d := plan.Node(dep)
		if d.State == NodeFailedTerminal && !d.Optional {
			n.State = NodeFailedTerminal
			n.FailReason = fmt.Sprintf("dependency %s failed", dep)
			return
		}
	}

	n.State = NodeRouting

	req := n.Request
	for _, dep := range n.DependsOn {
		if d := plan.Node(dep); d.State == NodeSucceeded && d.Output != "" {
			req.Context = append(req.Context, task.ContextItem{
				Kind:    "turn",
				Label:   dep,
				Content: d.Output,
			})
		}
	}

	profile := o.personas.Resolve(req.Persona)
	snap := o.tracker.Snapshot(req.Category)

	vec, err := encoder.Encode(req, profile, snap)
	if err != nil {
		// Malformed input: terminal immediately, never retried, and no
		// feedback since no decision was made.
		n.State = NodeFailedTerminal
		n.FailReason = "encoding error"
		n.Err = err
		return
	}

	caps := o.registry.ListCandidates(req.Category)
	candidates, err := policy.BuildCandidates(caps, profile, req, snap)
	if err != nil {
		n.State = NodeFailedTerminal
		n.FailReason = "no candidates"
		n.Err = err
		return
	}

	if profile.MaxCostPerTask > 0 && run.total() >= profile.MaxCostPerTask {
		n.State = NodeFailedTerminal
		n.FailReason = "task budget exceeded"
		n.Err = fmt.Errorf("task budget %.4f exceeded (spent %.4f)", profile.MaxCostPerTask, run.total())
		return
	}

	sel, err := o.policy.SelectAction(vec, candidates)
	if err != nil {
		n.State = NodeFailedTerminal
		n.FailReason = "no candidates"
		n.Err = err
		return
	}
	n.Action = sel.Action

	prompt := renderPrompt(req)
	start := time.Now()
	res, usedAction, cost, invErr := o.driveInvocation(ctx, n, sel.Action, candidates, prompt)
	elapsed := time.Since(start).Milliseconds()

	n.Action = usedAction
	n.LatencyMS = elapsed
	n.Cost = cost
	run.add(cost)

	if invErr != nil {
		n.State = NodeFailedTerminal
		n.Err = invErr
		if provider.IsTimeout(invErr) {
			n.FailReason = "timeout"
		} else if ctx.Err() != nil {
			n.FailReason = "cancelled"
		} else {
			n.FailReason = "invocation error"
		}
		o.fireFeedback(n, vec, sel, profile, nil, elapsed, cost, invErr)
		return
	}

	n.State = NodeSucceeded
	n.Output = res.Output
	if res.LatencyMS > 0 {
		n.LatencyMS = res.LatencyMS
	}
	o.fireFeedback(n, vec, sel, profile, res, n.LatencyMS, cost, nil)
}

// driveInvocation executes the chosen action, retrying transient faults
// with exponential backoff and falling back to untried candidates when a
// retry budget exhausts.
func (o *Orchestrator) driveInvocation(
	ctx context.Context,
	n *Node,
	action task.Action,
	candidates []policy.Candidate,
	prompt string,
) (*provider.Result, task.Action, float64, error) {
	tried := make(map[string]bool)
	fallbacks := 0
	retries := 0
	var totalCost float64
	var lastErr error

	for {
		n.State = NodeInvoking
		n.reachedInvoking = true
		n.Attempts++

		res, err := o.invokeStrategy(ctx, action, prompt)
		if err == nil {
			totalCost += invocationCost(candidates, action, res.Usage)
			return res, action, totalCost, nil
		}
		lastErr = err
		tried[action.Key()] = true

		if ctx.Err() != nil {
			return nil, action, totalCost, lastErr
		}

		budget := o.retryBudget(action, err)
		if retries < budget && provider.IsTransient(err) {
			n.State = NodeRetrying
			if serr := o.sleep(ctx, o.backoff(retries)); serr != nil {
				return nil, action, totalCost, lastErr
			}
			retries++
			continue
		}

		next, ok := untriedFallback(candidates, tried)
		if ok && fallbacks < o.cfg.MaxFallbacks {
			o.logger.Debug("falling back",
				"node", n.ID, "from", action.Key(), "to", next.Key())
			n.State = NodeFallback
			action = next
			fallbacks++
			retries = 0
			continue
		}

		return nil, action, totalCost, lastErr
	}
}

// retryBudget returns how many same-action retries are allowed. Only the
// retry-with-backoff strategy retries; timeouts get the lower cap.
func (o *Orchestrator) retryBudget(action task.Action, err error) int {
	if action.Strategy != task.StrategyRetryBackoff {
		return 0
	}
	if provider.IsTimeout(err) {
		return o.cfg.MaxTimeoutRetries
	}
	return o.cfg.MaxRetries
}

func (o *Orchestrator) backoff(retry int) time.Duration {
	d := o.cfg.BaseBackoff << uint(retry)
	if d > o.cfg.MaxBackoff {
		d = o.cfg.MaxBackoff
	}
	return d
}

// invokeStrategy performs one invocation round under the node timeout,
// expanding multi-sample-vote into concurrent samples with a majority
// vote over outputs.
func (o *Orchestrator) invokeStrategy(ctx context.Context, action task.Action, prompt string) (*provider.Result, error) {
	inv, ok := o.invokers[action.Provider]
	if !ok {
		return nil, &provider.InvocationError{
			Provider: action.Provider,
			Err:      fmt.Errorf("no invoker configured"),
		}
	}

	cctx := ctx
	var cancel context.CancelFunc
	if o.cfg.NodeTimeout > 0 {
		cctx, cancel = context.WithTimeout(ctx, o.cfg.NodeTimeout)
		defer cancel()
	}

	if action.Strategy != task.StrategyMultiVote {
		return inv.Invoke(cctx, action.Model, prompt)
	}

	samples := o.cfg.VoteSamples
	if samples < 2 {
		samples = 2
	}
	results := make([]*provider.Result, samples)
	errs := make([]error, samples)

	g := new(errgroup.Group)
	for i := 0; i < samples; i++ {
		i := i
		g.Go(func() error {
			results[i], errs[i] = inv.Invoke(cctx, action.Model, prompt)
			return nil
		})
	}
	_ = g.Wait()

	return majority(results, errs)
}

// majority picks the most common output among successful samples.
// Usage is summed across samples; latency is the slowest sample.
func majority(results []*provider.Result, errs []error) (*provider.Result, error) {
	votes := make(map[string]int)
	byOutput := make(map[string]*provider.Result)
	var usage provider.Usage
	var latency int64
	var lastErr error

	for i, res := range results {
		if errs[i] != nil {
			lastErr = errs[i]
			continue
		}
		votes[res.Output]++
		if _, ok := byOutput[res.Output]; !ok {
			byOutput[res.Output] = res
		}
		usage.PromptTokens += res.Usage.PromptTokens
		usage.CompletionTokens += res.Usage.CompletionTokens
		usage.TotalTokens += res.Usage.Total()
		if res.LatencyMS > latency {
			latency = res.LatencyMS
		}
	}

	if len(votes) == 0 {
		return nil, lastErr
	}

	var winner string
	best := -1
	for output, count := range votes {
		if count > best || (count == best && output < winner) {
			winner, best = output, count
		}
	}

	out := *byOutput[winner]
	out.Usage = usage
	out.LatencyMS = latency
	return &out, nil
}

// fireFeedback is the sole feedback path into the learning core: exactly
// one tracker record and one policy update per terminal node, fired even
// on failure: a failure is itself an informative reward.
func (o *Orchestrator) fireFeedback(
	n *Node,
	vec encoder.StateVector,
	sel policy.Selection,
	profile persona.ConstraintProfile,
	res *provider.Result,
	latencyMS int64,
	cost float64,
	invErr error,
) {
	if n.feedbackFired || n.Action.IsZero() {
		return
	}
	n.feedbackFired = true

	success := invErr == nil
	timeout := provider.IsTimeout(invErr)

	var q float64
	var tokens int
	if success {
		q = quality.FromResult(res.Quality, res.Output)
		tokens = res.Usage.Total()
	}

	o.tracker.Record(tracker.Outcome{
		Key: tracker.Key{
			Provider: n.Action.Provider,
			Model:    n.Action.Model,
			Category: n.Request.Category,
		},
		Success:    success,
		Timeout:    timeout,
		LatencyMS:  latencyMS,
		Cost:       cost,
		TokensUsed: tokens,
		Quality:    q,
	})

	reward := o.policy.ComputeReward(profile.Weights, policy.RewardInput{
		Success:   success,
		LatencyMS: latencyMS,
		Cost:      cost,
		Quality:   q,
	})
	o.policy.Update(vec, n.Action, reward)

	if o.journal != nil {
		rec := journal.DecisionRecord{
			Node:          n.ID,
			Category:      n.Request.Category,
			Persona:       profile.Name,
			Bucket:        vec.Meta.Bucket,
			Action:        n.Action,
			Explored:      sel.Explored,
			LowConfidence: sel.LowConfidence,
			Success:       success,
			Timeout:       timeout,
			Cancelled:     n.FailReason == "cancelled",
			Reward:        reward,
			Quality:       q,
			LatencyMS:     latencyMS,
			Cost:          cost,
		}
		if invErr != nil {
			rec.Error = invErr.Error()
		}
		if err := o.journal.Append(rec); err != nil {
			o.logger.Warn("journal append failed", "error", err)
		}
	}
}

// cancelRemaining transitions every non-terminal node to FAILED_TERMINAL
// without blocking. Nodes that reached INVOKING still fire feedback:
// partial information is useful to the learner. Nodes still PENDING or
// ROUTING fire none, since no decision was acted upon.
func (o *Orchestrator) cancelRemaining(plan *Plan) {
	for _, n := range plan.Nodes {
		if n.State.Terminal() {
			continue
		}
		wasInvoking := n.reachedInvoking
		n.State = NodeFailedTerminal
		n.FailReason = "cancelled"
		if n.Err == nil {
			n.Err = context.Canceled
		}
		if wasInvoking && !n.feedbackFired {
			profile := o.personas.Resolve(n.Request.Persona)
			snap := o.tracker.Snapshot(n.Request.Category)
			vec, err := encoder.Encode(n.Request, profile, snap)
			if err != nil {
				continue
			}
			o.fireFeedback(n, vec, policy.Selection{Action: n.Action}, profile, nil, n.LatencyMS, n.Cost, n.Err)
		}
	}
}

func (o *Orchestrator) aggregate(plan *Plan, run *planRun) *task.Result {
	result := &task.Result{TotalCost: run.total()}

	requiredFailed := false
	optionalFailed := false
	for _, n := range plan.Nodes {
		nodeRes := task.NodeResult{
			Node:      n.ID,
			Action:    n.Action,
			Output:    n.Output,
			Attempts:  n.Attempts,
			LatencyMS: n.LatencyMS,
			Cost:      n.Cost,
			Optional:  n.Optional,
		}
		if n.Err != nil {
			nodeRes.Error = n.FailReason + ": " + n.Err.Error()
		} else if n.State == NodeFailedTerminal {
			nodeRes.Error = n.FailReason
		}
		result.Nodes = append(result.Nodes, nodeRes)

		if n.State == NodeFailedTerminal {
			if n.Optional {
				optionalFailed = true
			} else {
				requiredFailed = true
			}
		}
	}

	switch {
	case requiredFailed:
		result.Status = task.StatusFailed
	case optionalFailed:
		result.Status = task.StatusPartial
	default:
		result.Status = task.StatusSucceeded
	}

	result.Output = mergeOutputs(plan)
	return result
}

// mergeOutputs combines completed leaf outputs per the plan's declared
// merge strategy.
func mergeOutputs(plan *Plan) string {
	leaves := leafNodes(plan)

	var outputs []string
	for _, n := range leaves {
		if n.State == NodeSucceeded && n.Output != "" {
			outputs = append(outputs, n.Output)
		}
	}
	if len(outputs) == 0 {
		// Fall back to any succeeded node so a failed optional leaf does
		// not erase the plan's work.
		for _, n := range plan.Nodes {
			if n.State == NodeSucceeded && n.Output != "" {
				outputs = append(outputs, n.Output)
			}
		}
	}
	if len(outputs) == 0 {
		return ""
	}

	switch plan.Merge {
	case MergeVoteMajority:
		votes := make(map[string]int)
		for _, out := range outputs {
			votes[out]++
		}
		var winner string
		best := -1
		for out, count := range votes {
			if count > best || (count == best && out < winner) {
				winner, best = out, count
			}
		}
		return winner
	case MergeContextChain:
		// Later nodes saw earlier outputs as context; the last completed
		// output is the chain's result.
		for i := len(plan.Nodes) - 1; i >= 0; i-- {
			if plan.Nodes[i].State == NodeSucceeded && plan.Nodes[i].Output != "" {
				return plan.Nodes[i].Output
			}
		}
		return outputs[len(outputs)-1]
	default:
		return strings.Join(outputs, "\n\n")
	}
}

func leafNodes(plan *Plan) []*Node {
	hasDependent := make(map[string]bool)
	for _, n := range plan.Nodes {
		for _, dep := range n.DependsOn {
			hasDependent[dep] = true
		}
	}
	var leaves []*Node
	for _, n := range plan.Nodes {
		if !hasDependent[n.ID] {
			leaves = append(leaves, n)
		}
	}
	return leaves
}

func untriedFallback(candidates []policy.Candidate, tried map[string]bool) (task.Action, bool) {
	best := task.Action{}
	bestCost := 0.0
	found := false
	for _, c := range candidates {
		if tried[c.Action.Key()] {
			continue
		}
		if !found || c.CostPer1K < bestCost {
			best = c.Action
			bestCost = c.CostPer1K
			found = true
		}
	}
	return best, found
}

func invocationCost(candidates []policy.Candidate, action task.Action, usage provider.Usage) float64 {
	for _, c := range candidates {
		if c.Action.Key() == action.Key() {
			return c.CostPer1K * float64(usage.Total()) / 1000.0
		}
	}
	return 0
}

// renderPrompt flattens a request and its structured context into the
// provider prompt.
func renderPrompt(req task.Request) string {
	if len(req.Context) == 0 {
		return req.Prompt
	}
	var sb strings.Builder
	for _, item := range req.Context {
		switch item.Kind {
		case "file":
			sb.WriteString(fmt.Sprintf("File %s:\n%s\n\n", item.Label, item.Content))
		default:
			if item.Label != "" {
				sb.WriteString(fmt.Sprintf("[%s]\n%s\n\n", item.Label, item.Content))
			} else {
				sb.WriteString(item.Content + "\n\n")
			}
		}
	}
	sb.WriteString(req.Prompt)
	return sb.String()
}

func ctxSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
