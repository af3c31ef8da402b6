// Package config provides 12-factor configuration management for the engine.
//
// Configuration is loaded from UISCRIPT_* environment variables with
// sensible defaults. Callers can override individual settings through
// Options, which also carries the content policy map since directive
// lists do not flatten cleanly into environment variables.
//
// Example Usage:
//
//	cfg := config.LoadOrDefault().Apply(config.Options{Policy: policy})
//	fmt.Printf("batch window %s\n", cfg.BatchWindow())
//
// Environment Variables:
//   - UISCRIPT_MAX_SCRIPT_SIZE, UISCRIPT_MAX_EXECUTION_TIME_MS
//   - UISCRIPT_MAX_ELEMENTS, UISCRIPT_MAX_LISTENERS, UISCRIPT_MEMORY_WARNING_MB
//   - UISCRIPT_BATCH_WINDOW_MS, UISCRIPT_MAX_BATCH_SIZE, UISCRIPT_MIN_FLUSH_INTERVAL_MS
//   - UISCRIPT_THROW_ON_VIOLATION, UISCRIPT_STRICT_CAPABILITIES, UISCRIPT_DEBUG
package config
