package sandbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/driftframe/uiscript/internal/batch"
	"github.com/driftframe/uiscript/internal/capability"
	"github.com/driftframe/uiscript/internal/governor"
	"github.com/driftframe/uiscript/internal/logging"
	"github.com/driftframe/uiscript/internal/monitoring"
	"github.com/driftframe/uiscript/internal/ops"
	"github.com/driftframe/uiscript/internal/policy"
	"github.com/driftframe/uiscript/internal/shared/id"
)

// Rejection records one capability-rejected creation call. Local to the
// call: the rest of the script keeps running.
type Rejection struct {
	Kind   string
	Reason string
}

// attrDirectives maps URL-carrying attribute keys to the policy directive
// their values are checked against.
var attrDirectives = map[string]policy.Directive{
	"src":    policy.DirectiveImgSrc,
	"poster": policy.DirectiveImgSrc,
	"href":   policy.DirectiveDefaultSrc,
	"action": policy.DirectiveConnectSrc,
}

// BridgeConfig customizes bridge behavior.
type BridgeConfig struct {
	// StrictCapabilities escalates capability rejections from local
	// call drops to invocation-fatal errors.
	StrictCapabilities bool
	Debug              bool

	// Metrics is optional. Nil disables recording.
	Metrics *monitoring.Metrics
}

// Bridge is the only channel between a running script and the host. Every
// mutation call is intercepted: creation calls are checked against the
// capability registry, counted calls against the governor, URL-carrying
// attributes against the policy, and accepted operations are enqueued
// into the batcher.
type Bridge struct {
	ctx       context.Context
	registry  *capability.Registry
	gov       *governor.Governor
	validator *policy.Validator
	batcher   *batch.Batcher
	san       *ops.Sanitizer
	cfg       BridgeConfig
	log       *logging.Logger

	closed atomic.Bool

	vm *goja.Runtime // set by install; calls run on the VM goroutine

	mu        sync.Mutex
	fatal     error
	rejected  []Rejection
	runtime   *Runtime
	elements  map[id.ElementID]struct{}
	listeners map[id.ListenerID]id.ElementID
}

// NewBridge wires a bridge to one invocation's collaborators.
func NewBridge(
	ctx context.Context,
	registry *capability.Registry,
	gov *governor.Governor,
	validator *policy.Validator,
	batcher *batch.Batcher,
	cfg BridgeConfig,
	log *logging.Logger,
) *Bridge {
	if log == nil {
		log = logging.NewNop()
	}
	return &Bridge{
		ctx:       ctx,
		registry:  registry,
		gov:       gov,
		validator: validator,
		batcher:   batcher,
		san:       ops.NewSanitizer(),
		cfg:       cfg,
		log:       log.Component("bridge"),
		elements:  make(map[id.ElementID]struct{}),
		listeners: make(map[id.ListenerID]id.ElementID),
	}
}

// Close severs the bridge. In-flight calls from a just-terminated context
// are dropped, not batched.
func (b *Bridge) Close() {
	b.closed.Store(true)
}

// Fatal returns the fatal error recorded by a mutation call, if any.
func (b *Bridge) Fatal() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fatal
}

// Rejections returns the capability rejections recorded during the run.
func (b *Bridge) Rejections() []Rejection {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Rejection{}, b.rejected...)
}

// install exposes the ui.* mutation API inside the VM.
func (b *Bridge) install(vm *goja.Runtime) error {
	b.vm = vm
	ui := vm.NewObject()

	calls := map[string]func(goja.FunctionCall) goja.Value{
		"createElement":       b.createElement,
		"setAttribute":        b.setAttribute,
		"setText":             b.setText,
		"appendChild":         b.appendChild,
		"removeChild":         b.removeChild,
		"addEventListener":    b.addEventListener,
		"removeEventListener": b.removeEventListener,
		"callHost":            b.callHost,
	}
	for name, fn := range calls {
		if err := ui.Set(name, fn); err != nil {
			return err
		}
	}

	return vm.Set("ui", ui)
}

// bindRuntime lets the bridge interrupt the VM on fatal errors.
func (b *Bridge) bindRuntime(r *Runtime) {
	b.mu.Lock()
	b.runtime = r
	b.mu.Unlock()
}

func (b *Bridge) createElement(call goja.FunctionCall) goja.Value {
	if b.closed.Load() {
		return goja.Null()
	}

	kind := call.Argument(0).String()

	if !b.registry.IsAllowed(kind) {
		b.reject(kind, "element kind is not in the capability whitelist")
		return goja.Null()
	}
	if err := b.registry.EnsureLoaded(b.ctx, kind); err != nil {
		b.reject(kind, err.Error())
		return goja.Null()
	}
	if err := b.gov.RegisterElement(); err != nil {
		b.abort(err)
		return goja.Null()
	}

	elemID := id.NewElementID()
	b.mu.Lock()
	b.elements[elemID] = struct{}{}
	b.mu.Unlock()

	op := ops.CreateElement{ID: elemID, Component: kind}
	if props := exportValue(call.Argument(1)); props != nil {
		if m, ok := props.(map[string]interface{}); ok {
			op.Props = m
		}
	}
	b.enqueue(op)

	return b.stringValue(elemID.String())
}

func (b *Bridge) setAttribute(call goja.FunctionCall) goja.Value {
	if b.closed.Load() {
		return goja.Undefined()
	}

	elemID := call.Argument(0).String()
	key := call.Argument(1).String()
	value := call.Argument(2).String()

	if directive, ok := attrDirectives[key]; ok {
		result, _ := b.validator.ValidateURL(value, directive)
		if !result.Valid {
			// Local drop: the attribute never reaches the renderer.
			b.log.Warn("attribute URL blocked by policy",
				zap.String("key", key),
				zap.String("directive", string(directive)),
			)
			b.recordViolations(result)
			b.cfg.Metrics.RecordOpRejected(ops.KindSetAttribute.String(), "policy")
			return goja.Undefined()
		}
	}
	if key == "style" {
		result, _ := b.validator.ValidateInlineStyle(value)
		if !result.Valid {
			b.log.Warn("inline style blocked by policy", zap.String("element", elemID))
			b.recordViolations(result)
			b.cfg.Metrics.RecordOpRejected(ops.KindSetAttribute.String(), "policy")
			return goja.Undefined()
		}
	}

	b.enqueue(ops.SetAttribute{
		ElementID: id.ElementID(elemID),
		Key:       key,
		Value:     b.san.AttributeValue(value),
	})
	return goja.Undefined()
}

func (b *Bridge) setText(call goja.FunctionCall) goja.Value {
	if b.closed.Load() {
		return goja.Undefined()
	}

	b.enqueue(ops.SetText{
		ElementID: id.ElementID(call.Argument(0).String()),
		Text:      b.san.Text(call.Argument(1).String()),
	})
	return goja.Undefined()
}

func (b *Bridge) appendChild(call goja.FunctionCall) goja.Value {
	if b.closed.Load() {
		return goja.Undefined()
	}

	b.enqueue(ops.AppendChild{
		ParentID: id.ElementID(call.Argument(0).String()),
		ChildID:  id.ElementID(call.Argument(1).String()),
	})
	return goja.Undefined()
}

func (b *Bridge) removeChild(call goja.FunctionCall) goja.Value {
	if b.closed.Load() {
		return goja.Undefined()
	}

	childID := id.ElementID(call.Argument(1).String())

	b.mu.Lock()
	_, known := b.elements[childID]
	delete(b.elements, childID)
	b.mu.Unlock()

	if !known {
		// Only elements this invocation created count against the quota;
		// fabricated IDs decrement nothing and are not forwarded.
		b.cfg.Metrics.RecordOpRejected(ops.KindRemoveChild.String(), "unknown_element")
		return goja.Undefined()
	}

	b.gov.UnregisterElement()
	b.enqueue(ops.RemoveChild{
		ParentID: id.ElementID(call.Argument(0).String()),
		ChildID:  childID,
	})
	return goja.Undefined()
}

func (b *Bridge) addEventListener(call goja.FunctionCall) goja.Value {
	if b.closed.Load() {
		return goja.Null()
	}

	if err := b.gov.RegisterListener(); err != nil {
		b.abort(err)
		return goja.Null()
	}

	elemID := id.ElementID(call.Argument(0).String())
	listenerID := id.NewListenerID()

	b.mu.Lock()
	b.listeners[listenerID] = elemID
	b.mu.Unlock()

	b.enqueue(ops.AddListener{
		ElementID:  elemID,
		ListenerID: listenerID,
		Event:      call.Argument(1).String(),
	})
	return b.stringValue(listenerID.String())
}

func (b *Bridge) removeEventListener(call goja.FunctionCall) goja.Value {
	if b.closed.Load() {
		return goja.Undefined()
	}

	listenerID := id.ListenerID(call.Argument(0).String())

	b.mu.Lock()
	_, known := b.listeners[listenerID]
	delete(b.listeners, listenerID)
	b.mu.Unlock()

	if !known {
		// Unknown listener IDs decrement nothing.
		b.cfg.Metrics.RecordOpRejected(ops.KindRemoveListener.String(), "unknown_listener")
		return goja.Undefined()
	}

	b.gov.UnregisterListener()
	b.enqueue(ops.RemoveListener{ListenerID: listenerID})
	return goja.Undefined()
}

func (b *Bridge) callHost(call goja.FunctionCall) goja.Value {
	if b.closed.Load() {
		return goja.Undefined()
	}

	op := ops.CallHost{Action: call.Argument(0).String()}
	if payload := exportValue(call.Argument(1)); payload != nil {
		if m, ok := payload.(map[string]interface{}); ok {
			op.Payload = m
		}
	}
	op.Urgent = call.Argument(2).ToBoolean()

	b.cfg.Metrics.RecordOpEnqueued(op.Kind().String())
	if op.Urgent {
		b.batcher.FlushImmediate(op)
	} else {
		b.batcher.Add(op)
	}
	return goja.Undefined()
}

// enqueue hands an accepted operation to the batcher.
func (b *Bridge) enqueue(op ops.Operation) {
	b.cfg.Metrics.RecordOpEnqueued(op.Kind().String())
	b.batcher.Add(op)
}

func (b *Bridge) recordViolations(result *policy.Result) {
	for _, v := range result.Violations {
		b.cfg.Metrics.RecordViolation(string(v.Directive), string(v.Severity))
	}
}

// reject records a capability rejection. Local by default; strict mode
// escalates to abort.
func (b *Bridge) reject(kind, reason string) {
	b.mu.Lock()
	b.rejected = append(b.rejected, Rejection{Kind: kind, Reason: reason})
	b.mu.Unlock()

	b.log.Warn("capability rejected",
		zap.String("kind", kind),
		zap.String("reason", reason),
	)
	b.cfg.Metrics.RecordOpRejected(ops.KindCreateElement.String(), "capability")

	if b.cfg.StrictCapabilities {
		b.abort(fmt.Errorf("%w: %q", capability.ErrNotAllowed, kind))
	}
}

// abort records a fatal error and interrupts the VM. The entire
// invocation is over.
func (b *Bridge) abort(err error) {
	b.mu.Lock()
	alreadyFatal := b.fatal != nil
	if !alreadyFatal {
		b.fatal = err
	}
	rt := b.runtime
	b.mu.Unlock()

	if alreadyFatal {
		return
	}

	b.closed.Store(true)
	var lerr *governor.LimitError
	if errors.As(err, &lerr) {
		b.cfg.Metrics.RecordLimitBreach(string(lerr.Kind))
	}
	b.log.Error("invocation aborted", zap.Error(err))
	if rt != nil {
		rt.Interrupt(err.Error())
	}
}

func (b *Bridge) stringValue(s string) goja.Value {
	return b.vm.ToValue(s)
}
