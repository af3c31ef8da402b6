package governor

import (
	"bytes"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateScriptSize(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxScriptSize = 64
	g := New(cfg, nil)

	require.NoError(t, g.ValidateScriptSize(bytes.Repeat([]byte("a"), 64)))

	err := g.ValidateScriptSize(bytes.Repeat([]byte("a"), 65))
	var lerr *LimitError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, LimitScriptSize, lerr.Kind)
	assert.Equal(t, int64(65), lerr.Current)
	assert.Equal(t, int64(64), lerr.Max)
	assert.NotEmpty(t, lerr.Hint)
}

func TestRegisterElementOffByOne(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxElements = 5
	g := New(cfg, nil)

	for i := 0; i < 5; i++ {
		require.NoError(t, g.RegisterElement(), "call %d must succeed", i+1)
	}

	// The call crossing the limit fails, not the next one.
	err := g.RegisterElement()
	var lerr *LimitError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, LimitElements, lerr.Kind)

	// One unregister re-opens exactly one slot.
	g.UnregisterElement()
	require.NoError(t, g.RegisterElement())
	assert.Error(t, g.RegisterElement())
}

func TestRegisterListenerLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxListeners = 2
	g := New(cfg, nil)

	require.NoError(t, g.RegisterListener())
	require.NoError(t, g.RegisterListener())

	err := g.RegisterListener()
	var lerr *LimitError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, LimitListeners, lerr.Kind)
	assert.Contains(t, lerr.Hint, "delegation")

	g.UnregisterListener()
	assert.NoError(t, g.RegisterListener())
}

func TestUnregisterNeverNegative(t *testing.T) {
	g := New(DefaultConfig(), nil)
	g.UnregisterElement()
	g.UnregisterListener()

	usage := g.Usage()
	assert.Equal(t, int64(0), usage.Elements.Count)
	assert.Equal(t, int64(0), usage.Listeners.Count)
}

func TestExecutionTimerFiresOnce(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxExecutionTime = 20 * time.Millisecond
	g := New(cfg, nil)

	var fired atomic.Int32
	g.StartExecutionTimer(func() { fired.Add(1) })

	time.Sleep(120 * time.Millisecond)
	assert.Equal(t, int32(1), fired.Load())
}

func TestExecutionTimerStopped(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxExecutionTime = 40 * time.Millisecond
	g := New(cfg, nil)

	var fired atomic.Int32
	g.StartExecutionTimer(func() { fired.Add(1) })
	g.StopExecutionTimer()

	time.Sleep(120 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
}

func TestTimeoutError(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxExecutionTime = 5 * time.Second
	g := New(cfg, nil)

	lerr := g.TimeoutError()
	assert.Equal(t, LimitExecutionTime, lerr.Kind)
	assert.Equal(t, int64(5000), lerr.Max)
	assert.NotEmpty(t, lerr.Hint)
}

func TestUsageSnapshot(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxElements = 10
	g := New(cfg, nil)

	require.NoError(t, g.ValidateScriptSize([]byte("abc")))
	require.NoError(t, g.RegisterElement())
	require.NoError(t, g.RegisterElement())
	require.NoError(t, g.RegisterListener())

	usage := g.Usage()
	assert.Equal(t, int64(3), usage.ScriptBytes.Count)
	assert.Equal(t, int64(2), usage.Elements.Count)
	assert.InDelta(t, 20.0, usage.Elements.Percent, 0.001)
	assert.Equal(t, int64(1), usage.Listeners.Count)
	assert.Greater(t, usage.MemoryMB, 0.0)
}

func TestResetIdempotence(t *testing.T) {
	g := New(DefaultConfig(), nil)

	run := func() Snapshot {
		g.Reset()
		require.NoError(t, g.ValidateScriptSize([]byte("let x = 1;")))
		for i := 0; i < 7; i++ {
			require.NoError(t, g.RegisterElement())
		}
		require.NoError(t, g.RegisterListener())
		return g.Usage()
	}

	first := run()
	second := run()

	// Identical script, identical counters both times.
	assert.Equal(t, first.ScriptBytes.Count, second.ScriptBytes.Count)
	assert.Equal(t, first.Elements, second.Elements)
	assert.Equal(t, first.Listeners, second.Listeners)
}

func TestCheckMemoryUsage(t *testing.T) {
	g := New(DefaultConfig(), nil)
	mb, ok := g.CheckMemoryUsage()
	assert.True(t, ok)
	assert.Greater(t, mb, 0.0)
}
