// Package main is the Review Gate MCP server entry point.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/HexSleeves/Review-Gate/internal/config"
	"github.com/HexSleeves/Review-Gate/internal/db"
	"github.com/HexSleeves/Review-Gate/internal/docstore"
	"github.com/HexSleeves/Review-Gate/internal/mcp"
	"github.com/HexSleeves/Review-Gate/internal/rendezvous"
	"github.com/HexSleeves/Review-Gate/internal/session"
	"github.com/HexSleeves/Review-Gate/internal/speech"
	"github.com/HexSleeves/Review-Gate/internal/watcher"
	"github.com/HexSleeves/Review-Gate/internal/worker"
	"github.com/HexSleeves/Review-Gate/internal/worker/sse"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	shareDir := flag.String("share-dir", "", "Shared directory for rendezvous documents (default: /tmp)")
	dataDir := flag.String("data-dir", "", "Data directory (default: ~/.review-gate)")
	statusPort := flag.Int("status-port", 0, "Local status API port (0 disables)")
	whisperModel := flag.String("whisper-model", "", "Path to a whisper model file (optional)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	// MCP owns stdout, so logs go to stderr.
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true})

	if err := config.EnsureAll(); err != nil {
		log.Fatal().Err(err).Msg("failed to ensure data directories")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Warn().Err(err).Msg("failed to load settings, using defaults")
		cfg = config.Default()
	}
	if *shareDir != "" {
		cfg.ShareDir = *shareDir
	}
	if *dataDir != "" {
		cfg.DBPath = filepath.Join(*dataDir, "review_gate.db")
	}
	if *statusPort != 0 {
		cfg.StatusPort = *statusPort
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info().Msg("shutting down")
		cancel()
	}()

	store, err := db.NewStore(db.Config{Path: cfg.DBPath})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer store.Close()

	templates := db.NewTemplateStore(store)
	if err := templates.SeedDefaults(ctx); err != nil {
		log.Warn().Err(err).Msg("template seeding failed")
	}

	docs := docstore.New(cfg.ShareDir)

	rdvOpts := rendezvous.Options{PollInterval: cfg.PollInterval()}
	fsWatcher, err := watcher.New(cfg.ShareDir)
	if err != nil {
		log.Warn().Err(err).Msg("filesystem watcher unavailable, falling back to polling only")
	} else {
		if err := fsWatcher.Start(); err != nil {
			log.Warn().Err(err).Msg("filesystem watcher failed to start")
		} else {
			rdvOpts.Nudge = fsWatcher.Nudge()
			defer fsWatcher.Stop()
		}
	}
	rdv := rendezvous.New(docs, rdvOpts)

	sessions := db.NewSessionStore(store)
	orch := session.NewOrchestrator(sessions, db.NewConversationStore(store))
	reaper := session.NewReaper(sessions, rdv)

	avail := speech.Probe(*whisperModel)
	if avail.OK() {
		log.Info().Msg("speech-to-text available")
	} else {
		log.Warn().Str("reason", avail.Reason).Msg("speech-to-text disabled")
	}
	monitor := speech.NewMonitor(docs, avail)

	broadcast := sse.NewBroadcaster()
	statusSvc := worker.NewService(Version, store, avail, broadcast)

	server := mcp.New(Version, cfg, rdv, orch, store, avail, broadcast)
	if err := server.RegisterPrompts(ctx); err != nil {
		log.Warn().Err(err).Msg("prompt registration failed")
	}

	log.Info().
		Str("version", Version).
		Str("share_dir", cfg.ShareDir).
		Str("db_path", cfg.DBPath).
		Msg("review gate starting")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return reaper.Run(gctx) })
	g.Go(func() error { return monitor.Run(gctx) })
	g.Go(func() error { return statusSvc.Run(gctx, cfg.StatusPort) })
	g.Go(func() error {
		// The process lives and dies with the stdio transport.
		err := server.Run(gctx)
		cancel()
		return err
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("server error")
	}

	rdv.CleanupTempFiles()
	log.Info().Msg("review gate stopped")
}
