package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/semdex/internal/config"
	"github.com/kailas-cloud/semdex/internal/daemon"
	logpkg "github.com/kailas-cloud/semdex/internal/logger"
	"github.com/kailas-cloud/semdex/internal/metrics"
	postsrepo "github.com/kailas-cloud/semdex/internal/repository/posts"
	tagsrepo "github.com/kailas-cloud/semdex/internal/repository/tags"
	"github.com/kailas-cloud/semdex/internal/scorer"
	"github.com/kailas-cloud/semdex/internal/service"
	"github.com/kailas-cloud/semdex/internal/transport/admin"
	"github.com/kailas-cloud/semdex/internal/transport/jsonrpc"
	openaiEmb "github.com/kailas-cloud/semdex/internal/transport/openai"
	searchuc "github.com/kailas-cloud/semdex/internal/usecase/search"
	statusuc "github.com/kailas-cloud/semdex/internal/usecase/status"
	"github.com/kailas-cloud/semdex/internal/vectorspace"
	"github.com/kailas-cloud/semdex/internal/version"
)

func newDaemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:    "daemon",
		Short:  "Run the daemon in the foreground",
		Hidden: true,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runDaemon()
		},
	}
}

func runDaemon() error {
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logpkg.New(env, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting semdex daemon",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("port", cfg.Server.Port),
		zap.String("data_dir", cfg.Data.Dir),
	)

	grace := time.Duration(cfg.Server.HandoffGraceSec) * time.Second
	reporter := daemon.NewReporter(logger, grace)

	metrics.Register()

	statusSvc := statusuc.New(cfg.Embedding.Model)

	stopCh := make(chan struct{})
	var stopOnce sync.Once
	stop := func() { stopOnce.Do(func() { close(stopCh) }) }

	svc := service.New(logger, statusSvc, stop)
	rpcSrv := jsonrpc.NewServer(logger, cfg.Server.ChunkSize)
	svc.RegisterAll(rpcSrv)

	// The admin sidecar comes up before the heavy load so /healthz
	// reports initializing while vectors stream in.
	var adminSrv *admin.Server
	if cfg.Admin.Port != 0 {
		adminSrv = admin.New(logger, cfg.Admin.Port, statusSvc)
		go func() {
			if err := adminSrv.Serve(); err != nil {
				logger.Error("Admin server error", zap.Error(err))
			}
		}()
	}

	// During initialization the launcher holds the service port as the
	// progress receiver; this process only relays progress to it.
	if err := initialize(cfg, logger, reporter, svc, statusSvc); err != nil {
		logger.Error("Initialization failed", zap.Error(err))
		reporter.NotifyError(err)
		return err
	}
	statusReport := statusSvc.Report()
	logger.Info("Initialization completed", zap.Int("posts", statusReport.LoadedPosts))

	// The ack releases the launcher's bind; after the handoff grace
	// the port is ours to claim.
	reporter.NotifyCompleted()

	lis, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port))
	if err != nil {
		return fmt.Errorf("bind port %d: %w", cfg.Server.Port, err)
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- rpcSrv.Serve(lis) }()
	logger.Info("Accepting connections", zap.String("addr", lis.Addr().String()))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
	case <-stopCh:
		logger.Info("Shutdown requested")
	case err := <-serveErr:
		if err != nil {
			logger.Error("RPC server error", zap.Error(err))
		}
	}

	if adminSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := adminSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Error during admin shutdown", zap.Error(err))
		}
	}
	if err := rpcSrv.Close(); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Daemon stopped gracefully")
	return nil
}

// initialize loads the corpus and wires the search engine, reporting
// each step over the progress channel.
func initialize(
	cfg config.Config,
	logger *zap.Logger,
	reporter *daemon.Reporter,
	svc *service.Service,
	statusSvc *statusuc.Service,
) error {
	spaces := []*vectorspace.Space{
		vectorspace.New("content", filepath.Join(cfg.Data.Dir, cfg.Data.ContentDir), logger),
		vectorspace.New("reasoning", filepath.Join(cfg.Data.Dir, cfg.Data.ReasoningDir), logger),
		vectorspace.New("summary", filepath.Join(cfg.Data.Dir, cfg.Data.SummaryDir), logger),
	}

	content := spaces[0]
	if !content.Exists() {
		return fmt.Errorf("content vector space not found under %s",
			filepath.Join(cfg.Data.Dir, cfg.Data.ContentDir))
	}

	for _, sp := range spaces {
		if !sp.Exists() {
			logger.Info("Vector space absent, skipping", zap.String("space", sp.Name()))
			continue
		}
		reporter.Progress(fmt.Sprintf("Loading %s vectors...", sp.Name()))
		if _, err := sp.LoadMeta(); err != nil {
			return fmt.Errorf("load %s metadata: %w", sp.Name(), err)
		}
		if err := sp.Load(); err != nil {
			return fmt.Errorf("load %s vectors: %w", sp.Name(), err)
		}
		logger.Info("Vector space loaded",
			zap.String("space", sp.Name()),
			zap.Int("vectors", sp.Len()),
			zap.Int("dimensions", sp.Dim()),
		)
	}

	csvPath := content.Meta().CSVPath
	if csvPath == "" {
		return fmt.Errorf("content space metadata does not name a posts csv")
	}
	if !filepath.IsAbs(csvPath) {
		csvPath = filepath.Join(cfg.Data.Dir, csvPath)
	}

	reporter.Progress("Loading posts...")
	postsRepo, err := postsrepo.Load(csvPath)
	if err != nil {
		return fmt.Errorf("load posts from %s: %w", csvPath, err)
	}
	reporter.Progress(fmt.Sprintf("Loaded %d posts", postsRepo.Len()))

	tagsRepo, err := tagsrepo.Load(filepath.Join(cfg.Data.Dir, cfg.Data.TagsFile), logger)
	if err != nil {
		return fmt.Errorf("load annotations: %w", err)
	}
	logger.Info("Annotations loaded", zap.Int("annotated_posts", tagsRepo.Len()))

	embedder := openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Provider:   cfg.Embedding.Provider,
		Logger:     logger,
	})

	ranker := scorer.New(spaces...)
	engine := searchuc.New(postsRepo, tagsRepo, ranker, embedder)

	svc.Attach(engine, embedder)
	statusSvc.SetReady(postsRepo)
	return nil
}
