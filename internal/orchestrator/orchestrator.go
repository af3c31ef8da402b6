package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robbyt/go-fsm"
	"go.uber.org/zap"

	"github.com/driftframe/uiscript/internal/batch"
	"github.com/driftframe/uiscript/internal/capability"
	"github.com/driftframe/uiscript/internal/governor"
	"github.com/driftframe/uiscript/internal/logging"
	"github.com/driftframe/uiscript/internal/monitoring"
	"github.com/driftframe/uiscript/internal/ops"
	"github.com/driftframe/uiscript/internal/policy"
	"github.com/driftframe/uiscript/internal/sandbox"
	"github.com/driftframe/uiscript/internal/shared/id"
)

// ErrSingleUse is returned when Run is called twice on one orchestrator.
var ErrSingleUse = errors.New("orchestrator instances are single-use")

// ChannelError reports a broken execution channel: the runtime could not
// be spawned or the mutation bridge could not be installed. Always fatal.
type ChannelError struct {
	Stage string
	Err   error
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("execution channel failed at %s: %v", e.Stage, e.Err)
}

func (e *ChannelError) Unwrap() error { return e.Err }

// Config assembles the collaborators for one invocation.
type Config struct {
	// Registry may be shared across invocations. Nil gets a private
	// registry with the built-in tiers.
	Registry *capability.Registry
	Policy   policy.Config
	Limits   governor.Config
	Batching batch.Config

	// StrictCapabilities escalates capability rejections from per-call
	// drops to invocation-fatal errors.
	StrictCapabilities bool
	Debug              bool

	// OnFlush receives every delivered batch. Required.
	OnFlush batch.FlushFunc

	// Metrics is optional. Nil disables recording.
	Metrics *monitoring.Metrics
}

// Result is the outcome of one orchestrated invocation. Violations and
// Warnings carry the policy scan outcome: in non-throwing mode a
// violating script still runs, and this is where the caller learns
// about it.
type Result struct {
	InvocationID id.InvocationID     `json:"invocation_id"`
	Value        interface{}         `json:"value,omitempty"`
	Console      []sandbox.LogEntry  `json:"console,omitempty"`
	Usage        governor.Snapshot   `json:"usage"`
	BatchStats   batch.Stats         `json:"batch_stats"`
	Rejections   []sandbox.Rejection `json:"rejections,omitempty"`
	Violations   []policy.Violation  `json:"violations,omitempty"`
	Warnings     []string            `json:"warnings,omitempty"`
	Duration     time.Duration       `json:"duration"`
	State        string              `json:"state"`
}

// Orchestrator drives one script invocation through its lifecycle.
// Instances are single-use: build a fresh one per invocation and share
// the capability registry instead.
type Orchestrator struct {
	cfg       Config
	log       *logging.Logger
	machine   *fsm.Machine
	registry  *capability.Registry
	validator *policy.Validator
	gov       *governor.Governor
	batcher   *batch.Batcher

	invocationID id.InvocationID
	used         atomic.Bool
	timedOut     atomic.Bool
}

// New assembles an orchestrator. The flush callback is wrapped to record
// batch metrics when a collector is configured.
func New(cfg Config, log *logging.Logger) (*Orchestrator, error) {
	if log == nil {
		log = logging.NewNop()
	}
	if cfg.OnFlush == nil {
		return nil, errors.New("orchestrator requires a flush callback")
	}

	machine, err := newMachine(cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("failed to build lifecycle machine: %w", err)
	}

	registry := cfg.Registry
	if registry == nil {
		registry = capability.NewRegistry(capability.Options{}, log)
	}

	flushFn := cfg.OnFlush
	if cfg.Metrics != nil {
		metrics := cfg.Metrics
		inner := flushFn
		flushFn = func(b ops.Batch) {
			metrics.RecordBatch(len(b.Ops))
			inner(b)
		}
	}

	o := &Orchestrator{
		cfg:          cfg,
		log:          log.Component("orchestrator"),
		machine:      machine,
		registry:     registry,
		validator:    policy.NewValidator(cfg.Policy, log),
		gov:          governor.New(cfg.Limits, log),
		batcher:      batch.New(cfg.Batching, flushFn, log),
		invocationID: id.NewInvocationID(),
	}
	return o, nil
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() string {
	return o.machine.GetState()
}

// Run executes one script record end to end. The returned Result is
// populated even on failure wherever the pipeline got far enough to
// produce one.
func (o *Orchestrator) Run(ctx context.Context, res sandbox.Resource) (*Result, error) {
	if !o.used.CompareAndSwap(false, true) {
		return nil, ErrSingleUse
	}
	start := time.Now()
	o.cfg.Metrics.InvocationStarted()

	if err := o.machine.Transition(StateValidating); err != nil {
		return nil, fmt.Errorf("lifecycle transition failed: %w", err)
	}

	src, err := sandbox.NewSource(res)
	if err != nil {
		return o.fail(start, nil, err)
	}
	scan, err := o.validator.ValidateScript(src.Text())
	if scan != nil {
		for _, v := range scan.Violations {
			o.cfg.Metrics.RecordViolation(string(v.Directive), string(v.Severity))
		}
	}
	if err != nil {
		return o.fail(start, o.scanResult(scan), err)
	}
	if err := o.gov.ValidateScriptSize(src.Bytes()); err != nil {
		return o.fail(start, o.scanResult(scan), err)
	}

	if err := o.machine.Transition(StateExecuting); err != nil {
		return nil, fmt.Errorf("lifecycle transition failed: %w", err)
	}

	rt, err := sandbox.NewRuntime()
	if err != nil {
		return o.fail(start, o.scanResult(scan), &ChannelError{Stage: "runtime", Err: err})
	}
	defer rt.Close()

	bridge := sandbox.NewBridge(ctx, o.registry, o.gov, o.validator, o.batcher, sandbox.BridgeConfig{
		StrictCapabilities: o.cfg.StrictCapabilities,
		Debug:              o.cfg.Debug,
		Metrics:            o.cfg.Metrics,
	}, o.log)
	if err := rt.Bind(bridge); err != nil {
		return o.fail(start, o.scanResult(scan), &ChannelError{Stage: "bridge", Err: err})
	}

	o.gov.StartExecutionTimer(func() {
		o.timedOut.Store(true)
		bridge.Close()
		rt.Interrupt("execution time limit exceeded")
	})

	execResult := rt.Execute(ctx, src)
	o.gov.StopExecutionTimer()

	if o.cfg.Metrics != nil {
		if mb, _ := o.gov.CheckMemoryUsage(); mb > 0 {
			o.cfg.Metrics.RecordMemory(mb)
		}
	}

	if err := o.machine.Transition(StateDraining); err != nil {
		return nil, fmt.Errorf("lifecycle transition failed: %w", err)
	}

	runErr := o.runError(bridge, execResult)
	if runErr != nil {
		o.batcher.Clear()
	} else {
		o.batcher.Flush()
	}
	bridge.Close()

	result := &Result{
		InvocationID: o.invocationID,
		Value:        execResult.Value,
		Console:      execResult.Console,
		Usage:        o.gov.Usage(),
		BatchStats:   o.batcher.Stats(),
		Rejections:   bridge.Rejections(),
		Duration:     time.Since(start),
	}
	if scan != nil {
		result.Violations = scan.Violations
		result.Warnings = scan.Warnings
	}
	o.batcher.Destroy()

	if runErr != nil {
		o.toFailed()
		result.State = StateFailed
		o.record("failure", result.Duration)
		o.log.Warn("invocation failed",
			zap.String("invocation_id", o.invocationID.String()),
			zap.Error(runErr),
		)
		return result, runErr
	}

	if err := o.machine.Transition(StateTerminated); err != nil {
		return nil, fmt.Errorf("lifecycle transition failed: %w", err)
	}
	result.State = StateTerminated
	o.record("success", result.Duration)
	o.log.Info("invocation complete",
		zap.String("invocation_id", o.invocationID.String()),
		zap.Duration("duration", result.Duration),
		zap.Uint64("ops", result.BatchStats.TotalOperations),
	)
	return result, nil
}

// runError resolves the fatal error for a finished execution, in
// precedence order: bridge abort, deadline expiry, script error.
func (o *Orchestrator) runError(bridge *sandbox.Bridge, execResult *sandbox.Result) error {
	if err := bridge.Fatal(); err != nil {
		return err
	}
	if o.timedOut.Load() {
		return o.gov.TimeoutError()
	}
	return execResult.Err
}

// scanResult builds a partial result carrying the policy scan outcome,
// so violations survive even when the invocation never executes.
func (o *Orchestrator) scanResult(scan *policy.Result) *Result {
	if scan == nil {
		return nil
	}
	return &Result{
		InvocationID: o.invocationID,
		Usage:        o.gov.Usage(),
		Violations:   scan.Violations,
		Warnings:     scan.Warnings,
		State:        StateFailed,
	}
}

// fail transitions to the failed state and returns the error, with a
// partial result when one exists.
func (o *Orchestrator) fail(start time.Time, result *Result, err error) (*Result, error) {
	o.toFailed()
	o.batcher.Destroy()
	if result == nil {
		result = &Result{
			InvocationID: o.invocationID,
			Usage:        o.gov.Usage(),
			State:        StateFailed,
		}
	}
	result.Duration = time.Since(start)
	o.record("failure", result.Duration)
	o.log.Warn("invocation rejected",
		zap.String("invocation_id", o.invocationID.String()),
		zap.Error(err),
	)
	return result, err
}

func (o *Orchestrator) toFailed() {
	if err := o.machine.Transition(StateFailed); err != nil {
		o.log.Error("lifecycle transition to failed state rejected", zap.Error(err))
	}
}

func (o *Orchestrator) record(outcome string, duration time.Duration) {
	o.cfg.Metrics.RecordInvocation(outcome, duration)
}
