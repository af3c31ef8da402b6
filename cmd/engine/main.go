package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/driftframe/uiscript/internal/batch"
	"github.com/driftframe/uiscript/internal/capability"
	"github.com/driftframe/uiscript/internal/config"
	"github.com/driftframe/uiscript/internal/governor"
	"github.com/driftframe/uiscript/internal/logging"
	"github.com/driftframe/uiscript/internal/monitoring"
	"github.com/driftframe/uiscript/internal/ops"
	"github.com/driftframe/uiscript/internal/orchestrator"
	"github.com/driftframe/uiscript/internal/policy"
	"github.com/driftframe/uiscript/internal/sandbox"
)

func main() {
	// Parse flags
	scriptPath := flag.String("script", "", "Path to the script file to execute")
	policyPath := flag.String("policy", "", "Optional YAML policy override file")
	strict := flag.Bool("strict", false, "Escalate capability rejections to fatal errors")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *scriptPath == "" {
		log.Fatal("usage: engine -script <file.js> [-policy <policy.yaml>] [-strict] [-debug]")
	}

	cfg := config.LoadOrDefault()
	cfg.Apply(config.Options{Debug: debug, StrictCapabilities: strict})
	if *policyPath != "" {
		policyMap, err := config.LoadPolicyFile(*policyPath)
		if err != nil {
			log.Fatalf("Failed to load policy: %v", err)
		}
		cfg.Policy = policyMap
	}

	logCfg := logging.DefaultConfig()
	if cfg.Debug {
		logCfg = logging.DebugConfig()
	}
	logger, err := logging.New(logCfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	payload, err := os.ReadFile(*scriptPath)
	if err != nil {
		log.Fatalf("Failed to read script: %v", err)
	}

	result, err := run(cfg, logger, payload)
	if result != nil {
		printResult(result)
	}
	if err != nil {
		log.Fatalf("Invocation failed: %v", err)
	}
}

func run(cfg *config.Config, logger *logging.Logger, payload []byte) (*orchestrator.Result, error) {
	registry := capability.NewRegistry(capability.Options{}, logger)
	metrics := monitoring.NewMetrics(prometheus.DefaultRegisterer)

	policyCfg := policy.Config{
		Policy:           directiveMap(cfg.Policy),
		ThrowOnViolation: cfg.ThrowOnViolation,
		Debug:            cfg.Debug,
	}

	o, err := orchestrator.New(orchestrator.Config{
		Registry: registry,
		Policy:   policyCfg,
		Limits: governor.Config{
			MaxScriptSize:    cfg.MaxScriptSize,
			MaxExecutionTime: cfg.MaxExecutionTime(),
			MaxElements:      cfg.MaxElements,
			MaxListeners:     cfg.MaxListeners,
			MemoryWarningMB:  cfg.MemoryWarningMB,
			Debug:            cfg.Debug,
		},
		Batching: batch.Config{
			Window:           cfg.BatchWindow(),
			MaxSize:          cfg.MaxBatchSize,
			MinFlushInterval: cfg.MinFlushInterval(),
			Debug:            cfg.Debug,
		},
		StrictCapabilities: cfg.StrictCapabilities,
		Debug:              cfg.Debug,
		OnFlush:            printBatch,
		Metrics:            metrics,
	}, logger)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.MaxExecutionTime()+time.Second)
	defer cancel()

	return o.Run(ctx, sandbox.Resource{
		MIMEType: "text/javascript",
		Payload:  payload,
	})
}

// printBatch is the stand-in renderer: each delivered batch goes to
// stdout as JSON.
func printBatch(b ops.Batch) {
	data, err := ops.EncodeBatch(b)
	if err != nil {
		log.Printf("Failed to encode batch: %v", err)
		return
	}
	fmt.Println(string(data))
}

func printResult(r *orchestrator.Result) {
	for _, entry := range r.Console {
		fmt.Fprintf(os.Stderr, "[console.%s] %s\n", entry.Level, entry.Message)
	}
	fmt.Fprintf(os.Stderr, "state=%s duration=%s ops=%d flushes=%d reduction=%.1f%%\n",
		r.State, r.Duration, r.BatchStats.TotalOperations,
		r.BatchStats.TotalFlushes, r.BatchStats.ReductionPercent)
	for _, rej := range r.Rejections {
		fmt.Fprintf(os.Stderr, "rejected %s: %s\n", rej.Kind, rej.Reason)
	}
}

func directiveMap(raw map[string][]string) map[policy.Directive][]string {
	if raw == nil {
		return nil
	}
	out := make(map[policy.Directive][]string, len(raw))
	for k, v := range raw {
		out[policy.Directive(k)] = v
	}
	return out
}
