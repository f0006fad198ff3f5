// Package genotrain provides training-loop infrastructure for genomic foundation
// models written in Go: checkpoint management and multi-task evaluation.
//
// genotrain does not implement models, optimizers or data loading. It works
// against small collaborator interfaces (StateSaver, StateLoader, Model,
// DataSource) so that any training loop can plug in.
//
// # Features
//
// - Checkpointing: periodic saves, best-model tracking, retention and resume
// - Metrics: classification, regression, perplexity and sequence similarity
// - Multi-task evaluation: one metric family per named task, with summaries
// - Benchmarking: inference latency, throughput and peak memory per run
//
// # Installation
//
//	go get github.com/YuminosukeSato/genotrain
//
// # Quick Start
//
// Saving checkpoints from a training loop:
//
//	mgr, err := checkpoint.NewManager("runs/hyena/ckpt",
//	    checkpoint.WithMaxCheckpoints(3),
//	    checkpoint.WithMetricForBest("val_loss"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for step := 1; step <= steps; step++ {
//	    loss := train(step)
//	    if step%100 == 0 {
//	        if _, err := mgr.Save(net, step, epoch,
//	            map[string]float64{"val_loss": loss},
//	            checkpoint.WithOptimizer(opt),
//	        ); err != nil {
//	            log.Fatal(err)
//	        }
//	    }
//	}
//
// Evaluating a model on several tasks at once:
//
//	cfg, err := evaluation.LoadConfig("benchmark.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	bench, err := evaluation.NewBenchmarkEvaluator(cfg,
//	    evaluation.WithDeviceMonitor(performance.NewHeapMonitor()),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	report, err := bench.EvaluateModel(ctx, model, source)
//
// # Packages
//
// The library is organized into several packages:
//
//   - checkpoint: CheckpointManager, history file, export and metric plots
//   - evaluation: MultiTaskEvaluator, BenchmarkEvaluator and YAML task config
//   - evaluation/reportstore: in-memory and SQLite persistence of benchmark reports
//   - metrics: metric accumulators and standalone metric functions
//   - performance: device memory monitors
//   - core/model: StateDict and collaborator interfaces
//   - core/tensor: dense float64 tensors
//   - core/parallel: parallel processing utilities
//   - pkg/bioseq: DNA/RNA/protein sequence helpers
//   - pkg/errors: structured errors and warnings
//   - pkg/log: structured logging (slog and zerolog backends)
//
// # License
//
// genotrain is released under the MIT License.
package genotrain
