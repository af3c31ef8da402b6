package sandbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/driftframe/uiscript/internal/batch"
	"github.com/driftframe/uiscript/internal/capability"
	"github.com/driftframe/uiscript/internal/governor"
	"github.com/driftframe/uiscript/internal/ops"
	"github.com/driftframe/uiscript/internal/policy"
)

func mustSource(t *testing.T, script string) *Source {
	t.Helper()
	src, err := NewSource(Resource{MIMEType: "text/javascript", Payload: []byte(script)})
	if err != nil {
		t.Fatalf("NewSource() error = %v", err)
	}
	return src
}

func TestRuntimeExecution(t *testing.T) {
	tests := []struct {
		name    string
		script  string
		wantErr bool
	}{
		{
			name:    "simple return",
			script:  "42",
			wantErr: false,
		},
		{
			name:    "console log",
			script:  "console.log('hello'); 'test'",
			wantErr: false,
		},
		{
			name:    "math operations",
			script:  "Math.sqrt(16)",
			wantErr: false,
		},
		{
			name:    "syntax error",
			script:  "function {",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runtime, err := NewRuntime()
			if err != nil {
				t.Fatalf("Failed to create runtime: %v", err)
			}
			defer runtime.Close()

			result := runtime.Execute(context.Background(), mustSource(t, tt.script))
			if (result.Err != nil) != tt.wantErr {
				t.Errorf("Execute() error = %v, wantErr %v", result.Err, tt.wantErr)
			}
		})
	}
}

func TestRuntimeSecurity(t *testing.T) {
	dangerousScripts := []struct {
		name   string
		script string
	}{
		{
			name:   "require blocked",
			script: "require('fs')",
		},
		{
			name:   "process blocked",
			script: "process.exit(1)",
		},
		{
			name:   "module blocked",
			script: "module.exports = {}",
		},
		{
			name:   "fetch blocked",
			script: "fetch('https://example.com')",
		},
	}

	for _, tt := range dangerousScripts {
		t.Run(tt.name, func(t *testing.T) {
			runtime, err := NewRuntime()
			if err != nil {
				t.Fatalf("Failed to create runtime: %v", err)
			}
			defer runtime.Close()

			result := runtime.Execute(context.Background(), mustSource(t, tt.script))

			// Should either error or produce nothing.
			if result.Err == nil && result.Value != nil {
				t.Errorf("Dangerous script executed successfully: %v", result.Value)
			}
		})
	}
}

func TestRuntimeInterrupt(t *testing.T) {
	runtime, err := NewRuntime()
	if err != nil {
		t.Fatalf("Failed to create runtime: %v", err)
	}
	defer runtime.Close()

	go func() {
		time.Sleep(50 * time.Millisecond)
		runtime.Interrupt("deadline")
	}()

	result := runtime.Execute(context.Background(), mustSource(t, `
		let i = 0;
		while(true) {
			i++;
		}
	`))

	if result.Err == nil {
		t.Fatal("Expected interrupt error, got nil")
	}
	if !result.Interrupted {
		t.Error("Expected Interrupted flag")
	}
}

func TestRuntimeConsoleCapture(t *testing.T) {
	runtime, err := NewRuntime()
	if err != nil {
		t.Fatalf("Failed to create runtime: %v", err)
	}
	defer runtime.Close()

	result := runtime.Execute(context.Background(), mustSource(t, `
		console.log('info message');
		console.warn('warning message');
		console.error('error message');
		'done'
	`))
	if result.Err != nil {
		t.Fatalf("Execute() error = %v", result.Err)
	}

	if len(result.Console) != 3 {
		t.Errorf("Expected 3 console entries, got %d", len(result.Console))
	}

	levels := []string{"log", "warn", "error"}
	for i, entry := range result.Console {
		if entry.Level != levels[i] {
			t.Errorf("Console entry %d: expected level %s, got %s", i, levels[i], entry.Level)
		}
	}
}

// testHarness wires a bridge with real collaborators and a collecting
// flush sink.
type testHarness struct {
	bridge  *Bridge
	runtime *Runtime
	batcher *batch.Batcher
	gov     *governor.Governor
	batches *[]ops.Batch
}

func newTestBridge(t *testing.T, cfg BridgeConfig, govCfg governor.Config) *testHarness {
	t.Helper()

	var batches []ops.Batch
	batcher := batch.New(
		batch.Config{Window: time.Second, MaxSize: 1000},
		func(b ops.Batch) { batches = append(batches, b) },
		nil,
	)
	t.Cleanup(batcher.Destroy)

	gov := governor.New(govCfg, nil)
	bridge := NewBridge(
		context.Background(),
		capability.NewRegistry(capability.Options{}, nil),
		gov,
		policy.NewValidator(policy.Config{ThrowOnViolation: false}, nil),
		batcher,
		cfg,
		nil,
	)

	runtime, err := NewRuntime()
	if err != nil {
		t.Fatalf("Failed to create runtime: %v", err)
	}
	t.Cleanup(runtime.Close)
	if err := runtime.Bind(bridge); err != nil {
		t.Fatalf("Failed to bind bridge: %v", err)
	}

	return &testHarness{bridge: bridge, runtime: runtime, batcher: batcher, gov: gov, batches: &batches}
}

func TestBridgeCreateAndFlush(t *testing.T) {
	h := newTestBridge(t, BridgeConfig{}, governor.DefaultConfig())

	result := h.runtime.Execute(context.Background(), mustSource(t, `
		const root = ui.createElement('div');
		const label = ui.createElement('span');
		ui.setText(label, 'hello');
		ui.appendChild(root, label);
		root
	`))
	if result.Err != nil {
		t.Fatalf("Execute() error = %v", result.Err)
	}
	if h.bridge.Fatal() != nil {
		t.Fatalf("unexpected fatal: %v", h.bridge.Fatal())
	}

	// Nothing flushed until the host drains.
	if len(*h.batches) != 0 {
		t.Fatalf("expected no flush yet, got %d", len(*h.batches))
	}

	h.batcher.Flush()
	if len(*h.batches) != 1 {
		t.Fatalf("expected one batch, got %d", len(*h.batches))
	}
	got := (*h.batches)[0]
	wantKinds := []ops.Kind{ops.KindCreateElement, ops.KindCreateElement, ops.KindSetText, ops.KindAppendChild}
	if got.Len() != len(wantKinds) {
		t.Fatalf("expected %d ops, got %d", len(wantKinds), got.Len())
	}
	for i, stamped := range got.Ops {
		if stamped.Op.Kind() != wantKinds[i] {
			t.Errorf("op %d: expected %s, got %s", i, wantKinds[i], stamped.Op.Kind())
		}
	}
}

func TestBridgeCapabilityRejectionIsLocal(t *testing.T) {
	h := newTestBridge(t, BridgeConfig{}, governor.DefaultConfig())

	result := h.runtime.Execute(context.Background(), mustSource(t, `
		const bad = ui.createElement('iframe');
		const good = ui.createElement('div');
		[bad, good]
	`))
	if result.Err != nil {
		t.Fatalf("Execute() error = %v", result.Err)
	}

	rejections := h.bridge.Rejections()
	if len(rejections) != 1 || rejections[0].Kind != "iframe" {
		t.Fatalf("expected one iframe rejection, got %+v", rejections)
	}
	if h.bridge.Fatal() != nil {
		t.Errorf("local rejection must not be fatal: %v", h.bridge.Fatal())
	}

	vals, ok := result.Value.([]interface{})
	if !ok || len(vals) != 2 {
		t.Fatalf("unexpected result value %v", result.Value)
	}
	if vals[0] != nil {
		t.Errorf("rejected kind should yield null, got %v", vals[0])
	}
	if vals[1] == nil {
		t.Error("allowed kind should yield an element ID")
	}
}

func TestBridgeStrictCapabilitiesAborts(t *testing.T) {
	h := newTestBridge(t, BridgeConfig{StrictCapabilities: true}, governor.DefaultConfig())

	result := h.runtime.Execute(context.Background(), mustSource(t, `
		ui.createElement('iframe');
		ui.createElement('div');
	`))

	if h.bridge.Fatal() == nil {
		t.Fatal("strict mode must escalate rejection to fatal")
	}
	if !result.Interrupted && result.Err == nil {
		t.Error("expected the VM to be interrupted")
	}
}

func TestBridgeElementLimitAborts(t *testing.T) {
	govCfg := governor.DefaultConfig()
	govCfg.MaxElements = 10
	h := newTestBridge(t, BridgeConfig{}, govCfg)

	result := h.runtime.Execute(context.Background(), mustSource(t, `
		for (let i = 0; i < 100; i++) {
			ui.createElement('div');
		}
	`))

	fatal := h.bridge.Fatal()
	if fatal == nil {
		t.Fatal("expected limit breach to be fatal")
	}
	var lerr *governor.LimitError
	if !errors.As(fatal, &lerr) {
		t.Fatalf("expected LimitError, got %v", fatal)
	}
	if lerr.Kind != governor.LimitElements {
		t.Errorf("expected elements limit, got %s", lerr.Kind)
	}
	if !result.Interrupted {
		t.Error("expected the VM to be interrupted")
	}
}

func TestBridgeFabricatedRemovalsDoNotFreeQuota(t *testing.T) {
	govCfg := governor.DefaultConfig()
	govCfg.MaxElements = 5
	h := newTestBridge(t, BridgeConfig{}, govCfg)

	result := h.runtime.Execute(context.Background(), mustSource(t, `
		for (let i = 0; i < 20; i++) {
			ui.createElement('div');
			ui.removeChild('bogus_parent', 'bogus_child');
		}
	`))

	fatal := h.bridge.Fatal()
	if fatal == nil {
		t.Fatal("expected the element limit to trip despite fabricated removals")
	}
	var lerr *governor.LimitError
	if !errors.As(fatal, &lerr) {
		t.Fatalf("expected LimitError, got %v", fatal)
	}
	if lerr.Kind != governor.LimitElements {
		t.Errorf("expected elements limit, got %s", lerr.Kind)
	}
	if !result.Interrupted {
		t.Error("expected the VM to be interrupted")
	}
	if got := h.gov.Usage().Elements.Count; got != 5 {
		t.Errorf("expected 5 live elements, got %d", got)
	}
}

func TestBridgeRemoveChildReleasesOwnedElement(t *testing.T) {
	govCfg := governor.DefaultConfig()
	govCfg.MaxElements = 1
	h := newTestBridge(t, BridgeConfig{}, govCfg)

	result := h.runtime.Execute(context.Background(), mustSource(t, `
		const root = ui.createElement('div');
		const first = ui.createElement('span');
	`))
	if h.bridge.Fatal() == nil {
		t.Fatal("second create should exceed the limit of 1")
	}
	if !result.Interrupted {
		t.Error("expected the VM to be interrupted")
	}

	h2 := newTestBridge(t, BridgeConfig{}, govCfg)
	result = h2.runtime.Execute(context.Background(), mustSource(t, `
		const first = ui.createElement('div');
		ui.removeChild('root', first);
		const second = ui.createElement('div');
		second
	`))
	if result.Err != nil {
		t.Fatalf("Execute() error = %v", result.Err)
	}
	if h2.bridge.Fatal() != nil {
		t.Fatalf("removal of an owned element must free its quota slot: %v", h2.bridge.Fatal())
	}
	if got := h2.gov.Usage().Elements.Count; got != 1 {
		t.Errorf("expected 1 live element after remove+create, got %d", got)
	}
}

func TestBridgeBlockedAttributeURL(t *testing.T) {
	h := newTestBridge(t, BridgeConfig{}, governor.DefaultConfig())

	result := h.runtime.Execute(context.Background(), mustSource(t, `
		const img = ui.createElement('img');
		ui.setAttribute(img, 'src', 'https://evil.example/x.png');
		ui.setAttribute(img, 'src', '/assets/ok.png');
	`))
	if result.Err != nil {
		t.Fatalf("Execute() error = %v", result.Err)
	}

	h.batcher.Flush()
	if len(*h.batches) != 1 {
		t.Fatalf("expected one batch, got %d", len(*h.batches))
	}

	var attrs []ops.SetAttribute
	for _, stamped := range (*h.batches)[0].Ops {
		if op, ok := stamped.Op.(ops.SetAttribute); ok {
			attrs = append(attrs, op)
		}
	}
	if len(attrs) != 1 {
		t.Fatalf("expected only the allowed URL to survive, got %d attrs", len(attrs))
	}
	if attrs[0].Value != "/assets/ok.png" {
		t.Errorf("unexpected surviving attribute value %q", attrs[0].Value)
	}
}
