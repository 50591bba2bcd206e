package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/23skdu/longbow-warble/internal/arrowstream"
	"github.com/23skdu/longbow-warble/internal/config"
	"github.com/23skdu/longbow-warble/internal/logger"
	"github.com/23skdu/longbow-warble/internal/monitoring"
	"github.com/23skdu/longbow-warble/internal/rvq"
	"github.com/23skdu/longbow-warble/internal/stream"
)

var (
	dim        = flag.Int("dim", 64, "Embedding dimension")
	convLayers = flag.Int("conv-layers", 3, "Number of causal conv layers")
	attnLayers = flag.Int("attn-layers", 1, "Number of attention layers")
	kernel     = flag.Int("kernel", 3, "Conv kernel size")
	dilation   = flag.Int("dilation", 1, "Conv dilation")
	heads      = flag.Int("heads", 4, "Attention heads")
	contextLen = flag.Int("context", 256, "Attention context window (0 = unbounded)")
	stages     = flag.Int("stages", 8, "RVQ quantizer stages")
	codebook   = flag.Int("codebook", 1024, "RVQ codebook size")
	frames     = flag.Int("n", 500, "Number of frames to stream")
	normKind   = flag.String("norm", "rmsnorm", "Normalization kind (rmsnorm|layernorm)")
	seed       = flag.Int64("seed", 42, "Seed for synthetic weights and codebooks")
	flightAddr = flag.String("flight", "", "Arrow Flight endpoint to publish codes to (optional)")
	healthAddr = flag.String("health", ":9090", "Address to serve health and Prometheus metrics")
	logLevel   = flag.String("log-level", "info", "Log level (debug|info|warn|error)")
	logFormat  = flag.String("log-format", "console", "Log format (console|json)")
)

func main() {
	flag.Parse()
	logger.Setup(*logLevel, *logFormat)
	log := logger.Log.With("warble")

	norm, err := config.ParseNormType(*normKind)
	if err != nil {
		log.Error("bad flag", "error", err)
		os.Exit(1)
	}

	cfg := config.StreamConfig{Dim: *dim}
	for i := 0; i < *convLayers; i++ {
		lc := config.DefaultLayer(*dim)
		lc.KernelSize = *kernel
		lc.Dilation = *dilation
		lc.Norm = norm
		cfg.Layers = append(cfg.Layers, lc)
	}
	for i := 0; i < *attnLayers; i++ {
		lc := config.DefaultAttentionLayer(*dim, *heads)
		lc.Context = *contextLen
		lc.Norm = norm
		cfg.Layers = append(cfg.Layers, lc)
	}

	model, err := stream.NewModel(cfg, stream.SyntheticWeights(&cfg, *seed))
	if err != nil {
		log.Error("failed to build model", "error", err)
		os.Exit(1)
	}

	rvqCfg := config.RVQConfig{Stages: *stages, CodebookSize: *codebook, Dim: *dim}
	quantizer, err := rvq.NewQuantizer(rvqCfg, rvq.SyntheticCodebooks(rvqCfg, *seed))
	if err != nil {
		log.Error("failed to build quantizer", "error", err)
		os.Exit(1)
	}

	monitor := monitoring.NewHealthMonitor()
	go func() {
		if err := monitor.Start(*healthAddr); err != nil {
			log.Warn("health monitor stopped", "error", err)
		}
	}()

	var publisher arrowstream.Publisher
	if *flightAddr != "" {
		fp := arrowstream.NewFlightPublisher(*flightAddr, *stages, *dim)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := fp.Connect(ctx); err != nil {
			cancel()
			log.Error("flight connect failed", "error", err)
			os.Exit(1)
		}
		cancel()
		publisher = fp
	} else {
		publisher = &arrowstream.MemPublisher{}
	}
	defer publisher.Close()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	const sessionID = "demo"
	monitor.RegisterSession(sessionID, model.Layers(), *dim)
	defer monitor.UnregisterSession(sessionID)

	log.Info("streaming", "frames", *frames, "layers", model.Layers(),
		"dim", *dim, "stages", *stages, "codebook", *codebook)

	batch := &arrowstream.CodeBatch{StreamID: sessionID}
	var totalErr float64
	start := time.Now()

	for i := 0; i < *frames; i++ {
		select {
		case <-sigChan:
			log.Info("interrupt received, shutting down")
			return
		default:
		}

		out, err := model.Step(syntheticFrame(*dim, i))
		if err != nil {
			log.Error("step failed", "frame", i, "error", err)
			os.Exit(1)
		}
		monitor.RecordStep(sessionID, time.Since(start)/time.Duration(i+1))

		codes, err := quantizer.Encode(out)
		if err != nil {
			log.Error("encode failed", "frame", i, "error", err)
			os.Exit(1)
		}
		decoded, err := quantizer.Decode(codes)
		if err != nil {
			log.Error("decode failed", "frame", i, "error", err)
			os.Exit(1)
		}
		totalErr += reconstructionError(out, decoded)

		row := make([]uint32, len(codes))
		for j, c := range codes {
			row[j] = uint32(c)
		}
		batch.Codes = append(batch.Codes, row)
		batch.Embeddings = append(batch.Embeddings, decoded)

		if len(batch.Codes) >= 100 {
			publishBatch(publisher, batch, log)
			batch = &arrowstream.CodeBatch{StreamID: sessionID, StartStep: uint64(i + 1)}
		}
	}
	if len(batch.Codes) > 0 {
		publishBatch(publisher, batch, log)
	}

	duration := time.Since(start)
	fps := float64(*frames) / duration.Seconds()
	log.Info("stream complete",
		"frames", *frames,
		"duration", duration.String(),
		"frames_per_sec", fmt.Sprintf("%.1f", fps),
		"avg_rvq_error", fmt.Sprintf("%.4f", totalErr/float64(*frames)))
}

func publishBatch(p arrowstream.Publisher, batch *arrowstream.CodeBatch, log *logger.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := p.Publish(ctx, batch); err != nil {
		log.Warn("publish failed", "rows", batch.Rows(), "error", err)
	}
}

// syntheticFrame produces a deterministic test signal: a slow multi-tone
// sweep across the embedding channels.
func syntheticFrame(dim, step int) []float32 {
	frame := make([]float32, dim)
	for i := range frame {
		phase := float64(step)*0.05 + float64(i)*0.3
		frame[i] = float32(math.Sin(phase) * 0.5)
	}
	return frame
}

func reconstructionError(a, b []float32) float64 {
	sum := 0.0
	for i := range a {
		d := float64(a[i] - b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
