// Command server boots the educational video pipeline: it wires the
// Resource Governor, Circuit Breakers, Cache Layer, LLM/TTS/Visual
// clients, Job Store, and Orchestrator, then serves the HTTP API until
// an interrupt or SIGTERM triggers a graceful shutdown — the same
// wire, serve, signal-wait, shutdown-with-timeout shape as
// _examples/injaneity-brainbot-464/orchestrator_service/main.go. All
// settings come from the environment; no command-line flags are parsed.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"eduvid/internal/api"
	"eduvid/internal/breaker"
	"eduvid/internal/cache"
	"eduvid/internal/compose"
	"eduvid/internal/config"
	"eduvid/internal/docextract"
	"eduvid/internal/governor"
	"eduvid/internal/jobstore"
	"eduvid/internal/llmclient"
	"eduvid/internal/logging"
	"eduvid/internal/orchestrator"
	"eduvid/internal/retry"
	"eduvid/internal/ttsclient"
	"eduvid/internal/visual"
)

func main() {
	cfg := config.Load()
	log := logging.New(cfg.AppEnv)

	for _, dir := range []string{cfg.AssetDir, cfg.VideoDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatal().Err(err).Str("dir", dir).Msg("could not create required directory")
		}
	}

	store := jobstore.New(jobstore.Config{
		SnapshotPath:     cfg.StorePath,
		SnapshotInterval: cfg.SnapshotInterval,
		Retention:        cfg.JobRetention,
		AssetDir:         cfg.AssetDir,
		VideoDir:         cfg.VideoDir,
	}, log)
	if err := store.Load(); err != nil {
		log.Error().Err(err).Msg("could not load job store snapshot, starting empty")
	}

	redisCache := cache.New(cache.Config{
		RedisAddr:     cfg.RedisAddr,
		RedisPassword: cfg.RedisPassword,
		RedisDB:       cfg.RedisDB,
		TTL: map[cache.Namespace]time.Duration{
			cache.NamespaceScript: cfg.ScriptCacheTTL,
			cache.NamespaceAudio:  cfg.AudioCacheTTL,
			cache.NamespaceVisual: cfg.VisualCacheTTL,
		},
	}, log)

	gov := governor.New(governor.Config{
		MaxJobs:           cfg.MaxConcurrentJobs,
		MaxTTS:            cfg.MaxConcurrentTTS,
		MaxVisual:         cfg.MaxConcurrentVisual,
		CPUSoftCeiling:    cfg.CPUSoftCeiling,
		MemSoftCeiling:    cfg.MemorySoftCeiling,
		MemCleanupCeiling: cfg.MemoryCleanupCeiling,
	}, redisCache, log)

	breakers := breaker.NewRegistry(breaker.Config{
		FailureThreshold: cfg.CircuitFailureThreshold,
		Cooldown:         cfg.CircuitCooldown,
	}, log)

	retryCfg := retry.Config{
		MaxAttempts:  cfg.RetryMaxAttempts,
		InitialDelay: cfg.RetryInitialDelay,
		Multiplier:   cfg.RetryMultiplier,
		JitterFrac:   cfg.RetryJitter,
	}

	llm := llmclient.New(llmclient.Config{APIKey: cfg.CohereAPIKey, Model: cfg.LLMModel}, breakers.Get("llm"), log)
	tts := ttsclient.New(cfg.TTSBaseURL, log)
	assetRouter := visual.New(visual.Config{
		SlideURL:   cfg.VisualSlideURL,
		DiagramURL: cfg.VisualDiagramURL,
		GraphURL:   cfg.VisualGraphURL,
		FormulaURL: cfg.VisualFormulaURL,
		AssetDir:   cfg.AssetDir,
	}, breakers, redisCache, gov, retryCfg, log)
	composer := compose.New(cfg.VideoDir, log)

	orch := orchestrator.New(orchestrator.Deps{
		Store:    store,
		Governor: gov,
		Breakers: breakers,
		LLM:      llm,
		TTS:      tts,
		Visual:   assetRouter,
		Composer: composer,
		Cache:    redisCache,
		RetryCfg: retryCfg,
		Workers:  cfg.MaxConcurrentJobs,
	}, log)

	ctx, cancelWorkers := context.WithCancel(context.Background())
	orch.Start(ctx)

	stopSnapshots := store.StartScheduledSnapshots(cfg.SnapshotInterval)
	stopSweep := store.StartRetentionSweep()
	stopMonitor := orch.StartResourceMonitor(ctx, cfg.MonitorInterval)

	uploadCfg := docextract.Config{MaxSizeMB: cfg.MaxUploadSizeMB, AllowedExts: cfg.AllowedUploadExt}
	engine := api.NewRouter(orch, uploadCfg, cfg.AssetDir, log)

	srv := &httpServer{addr: ":" + cfg.HTTPPort, handler: engine}
	if err := srv.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start HTTP server")
	}

	log.Info().Str("port", cfg.HTTPPort).Msg("eduvid server started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cancelWorkers()
	orch.Stop()
	stopSnapshots()
	stopSweep()
	stopMonitor()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		fmt.Printf("http shutdown error: %v\n", err)
	}
	if err := store.Shutdown(shutdownCtx); err != nil {
		fmt.Printf("job store shutdown error: %v\n", err)
	}

	log.Info().Msg("eduvid server stopped")
}
