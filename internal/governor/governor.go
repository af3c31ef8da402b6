package governor

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/driftframe/uiscript/internal/logging"
)

// LimitKind names a quota dimension.
type LimitKind string

const (
	LimitScriptSize    LimitKind = "script_size"
	LimitExecutionTime LimitKind = "execution_time"
	LimitElements      LimitKind = "elements"
	LimitListeners     LimitKind = "listeners"
)

// LimitError reports a crossed quota. The what/by-how-much/what-to-do
// triple is part of the contract, not incidental logging.
type LimitError struct {
	Kind    LimitKind
	Current int64
	Max     int64
	Hint    string
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("%s limit exceeded: %d of %d allowed; %s",
		e.Kind, e.Current, e.Max, e.Hint)
}

// Config holds the quota ceilings. All limits are independently
// configurable.
type Config struct {
	MaxScriptSize    int64         // bytes
	MaxExecutionTime time.Duration // wall clock
	MaxElements      int64
	MaxListeners     int64
	MemoryWarningMB  float64
	Debug            bool
}

// DefaultConfig returns the default quota ceilings.
func DefaultConfig() Config {
	return Config{
		MaxScriptSize:    1 << 20, // 1 MiB
		MaxExecutionTime: 5000 * time.Millisecond,
		MaxElements:      10000,
		MaxListeners:     1000,
		MemoryWarningMB:  50,
	}
}

// Dimension is one tracked quota in a usage snapshot.
type Dimension struct {
	Count   int64   `json:"count"`
	Max     int64   `json:"max"`
	Percent float64 `json:"percent"`
}

// Snapshot reports current usage across every tracked dimension.
type Snapshot struct {
	ScriptBytes Dimension `json:"script_bytes"`
	ElapsedMS   Dimension `json:"elapsed_ms"`
	Elements    Dimension `json:"elements"`
	Listeners   Dimension `json:"listeners"`
	MemoryMB    float64   `json:"memory_mb"`
}

// Governor enforces the quotas for one invocation.
type Governor struct {
	cfg Config
	log *logging.Logger

	mu          sync.Mutex
	scriptBytes int64
	elements    int64
	listeners   int64
	started     time.Time

	timer     *time.Timer
	timerOnce *sync.Once
}

// New creates a governor with the given configuration.
func New(cfg Config, log *logging.Logger) *Governor {
	if log == nil {
		log = logging.NewNop()
	}
	return &Governor{
		cfg:     cfg,
		log:     log.Component("governor"),
		started: time.Now(),
	}
}

// ValidateScriptSize checks the script byte length. Called once, before
// any execution.
func (g *Governor) ValidateScriptSize(source []byte) error {
	size := int64(len(source))

	g.mu.Lock()
	g.scriptBytes = size
	g.mu.Unlock()

	if size > g.cfg.MaxScriptSize {
		return &LimitError{
			Kind:    LimitScriptSize,
			Current: size,
			Max:     g.cfg.MaxScriptSize,
			Hint:    "split the script or move static data out of the source; increase the configured limit only for genuine, bounded need",
		}
	}
	return nil
}

// StartExecutionTimer arms the wall-clock deadline. The callback fires at
// most once per arm; the orchestrator must treat it as fatal for the
// current invocation.
func (g *Governor) StartExecutionTimer(onTimeout func()) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.timer != nil {
		g.timer.Stop()
	}
	g.started = time.Now()

	once := &sync.Once{}
	g.timerOnce = once
	g.timer = time.AfterFunc(g.cfg.MaxExecutionTime, func() {
		once.Do(onTimeout)
	})
}

// StopExecutionTimer disarms the deadline. Safe to call when no timer is
// armed.
func (g *Governor) StopExecutionTimer() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
}

// TimeoutError builds the LimitError describing an expired deadline.
func (g *Governor) TimeoutError() *LimitError {
	return &LimitError{
		Kind:    LimitExecutionTime,
		Current: g.cfg.MaxExecutionTime.Milliseconds(),
		Max:     g.cfg.MaxExecutionTime.Milliseconds(),
		Hint:    "break long loops into smaller units of work or raise the execution time limit",
	}
}

// RegisterElement accounts one created element. The call that would cross
// the limit is the one rejected.
func (g *Governor) RegisterElement() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.elements >= g.cfg.MaxElements {
		return &LimitError{
			Kind:    LimitElements,
			Current: g.elements,
			Max:     g.cfg.MaxElements,
			Hint:    "implement virtualization or pagination instead of rendering every node; increase the configured limit only for genuine, bounded need",
		}
	}
	g.elements++
	return nil
}

// UnregisterElement accounts one removed element.
func (g *Governor) UnregisterElement() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.elements > 0 {
		g.elements--
	}
}

// RegisterListener accounts one added listener.
func (g *Governor) RegisterListener() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.listeners >= g.cfg.MaxListeners {
		return &LimitError{
			Kind:    LimitListeners,
			Current: g.listeners,
			Max:     g.cfg.MaxListeners,
			Hint:    "use event delegation on a container instead of per-node listeners; increase the configured limit only for genuine, bounded need",
		}
	}
	g.listeners++
	return nil
}

// UnregisterListener accounts one removed listener.
func (g *Governor) UnregisterListener() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.listeners > 0 {
		g.listeners--
	}
}

// CheckMemoryUsage samples current heap usage in MB. Best effort and
// advisory only: accounting in a managed runtime cannot be made precise
// or fatal, so threshold crossings surface as warnings.
func (g *Governor) CheckMemoryUsage() (float64, bool) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	mb := float64(ms.HeapAlloc) / (1024 * 1024)
	if g.cfg.MemoryWarningMB > 0 && mb > g.cfg.MemoryWarningMB {
		g.log.Warn("memory usage above warning threshold",
			zap.Float64("heap_mb", mb),
			zap.Float64("threshold_mb", g.cfg.MemoryWarningMB),
		)
	}
	return mb, true
}

// Usage returns a snapshot of every tracked dimension.
func (g *Governor) Usage() Snapshot {
	g.mu.Lock()
	scriptBytes := g.scriptBytes
	elements := g.elements
	listeners := g.listeners
	elapsed := time.Since(g.started).Milliseconds()
	g.mu.Unlock()

	mb, _ := g.CheckMemoryUsage()

	return Snapshot{
		ScriptBytes: dimension(scriptBytes, g.cfg.MaxScriptSize),
		ElapsedMS:   dimension(elapsed, g.cfg.MaxExecutionTime.Milliseconds()),
		Elements:    dimension(elements, g.cfg.MaxElements),
		Listeners:   dimension(listeners, g.cfg.MaxListeners),
		MemoryMB:    mb,
	}
}

// Reset clears all counters. Called once per fresh invocation, never
// mid-invocation.
func (g *Governor) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.scriptBytes = 0
	g.elements = 0
	g.listeners = 0
	g.started = time.Now()
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
}

func dimension(count, max int64) Dimension {
	d := Dimension{Count: count, Max: max}
	if max > 0 {
		d.Percent = float64(count) / float64(max) * 100
	}
	return d
}
