package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sota-6741/gemini-auto-refactor/internal/audit"
	"github.com/sota-6741/gemini-auto-refactor/internal/broadcast"
	"github.com/sota-6741/gemini-auto-refactor/internal/config"
	"github.com/sota-6741/gemini-auto-refactor/internal/core"
	"github.com/sota-6741/gemini-auto-refactor/internal/history"
	"github.com/sota-6741/gemini-auto-refactor/internal/logging"
	"github.com/sota-6741/gemini-auto-refactor/internal/security"
	"github.com/sota-6741/gemini-auto-refactor/internal/server"
	"github.com/sota-6741/gemini-auto-refactor/internal/storage"
	"github.com/sota-6741/gemini-auto-refactor/internal/watch"
)

const shutdownGrace = 5 * time.Second

type flags struct {
	configPath string
	addr       string
	logLevel   string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:   "refactor-agent [dir]",
		Short: "Watch a source tree and stream automated refactor diffs to the browser",
		Long: `Watch a directory tree for saved source files. Each save runs the external
refactor tool on the file's content and streams the resulting diff to every
browser connected to the web UI. Results are never written back to the file.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args, f)
		},
	}
	cmd.Flags().StringVarP(&f.configPath, "config", "c", "", "config file (default: ./"+config.DefaultFile+" if present)")
	cmd.Flags().StringVar(&f.addr, "addr", "", "HTTP listen address (overrides config)")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "", "log level (overrides config)")
	return cmd
}

func run(cmd *cobra.Command, args []string, f flags) error {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	cfg.ApplyEnv()
	if len(args) == 1 {
		cfg.Root = args[0]
	}
	if cmd.Flags().Changed("addr") {
		cfg.Addr = f.addr
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}

	logger, err := logging.New(cfg.LogLevel, os.Stderr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	detector, err := watch.New(cfg.Root, watch.Options{
		Extensions: cfg.Extensions,
		Exclude:    cfg.Exclude,
		IgnoreDirs: cfg.IgnoreDirs,
	}, logger.WithField("component", "watch"))
	if err != nil {
		if errors.Is(err, watch.ErrRootInaccessible) {
			logger.WithError(err).Fatal("cannot watch root directory")
		}
		return err
	}
	defer detector.Close()

	hub := broadcast.NewHub(
		broadcast.WithQueueSize(cfg.ObserverQueue),
		broadcast.WithLogger(logger.WithField("component", "broadcast")),
	)
	defer hub.Close()

	if cfg.NATS.URL != "" {
		mirror, err := broadcast.DialNATS(cfg.NATS.URL, cfg.NATS.Subject)
		if err != nil {
			logger.WithError(err).Warn("nats mirror disabled")
		} else {
			hub.Attach("nats:"+mirror.Subject(), mirror)
			logger.WithField("subject", mirror.Subject()).Info("mirroring events to nats")
		}
	}

	recorders, ledger, jobs, cleanup := openStores(cfg, logger)
	defer cleanup()

	executor := core.NewExecutor(cfg.Tool.Command, cfg.Tool.PromptFile, cfg.Tool.Timeout,
		logger.WithField("component", "executor"))
	pipeline := core.NewPipeline(ctx, executor, hub,
		core.WithLogger(logger.WithField("component", "pipeline")),
		core.WithDebounce(cfg.Debounce),
		core.WithMaxConcurrentJobs(cfg.MaxConcurrentJobs),
		core.WithToolName(executor.Name()),
		core.WithRecorders(recorders...),
	)

	opts := []server.Option{
		server.WithLogger(logger.WithField("component", "http")),
		server.WithSessions(pipeline),
	}
	if jobs != nil {
		opts = append(opts, server.WithJobs(jobs))
	}
	if ledger != nil {
		opts = append(opts, server.WithLedger(ledger))
	}
	srv := server.New(server.Settings{
		Addr:      cfg.Addr,
		Template:  cfg.Web.Template,
		StaticDir: cfg.Web.StaticDir,
	}, hub, opts...)
	if err := srv.Start(ctx); err != nil {
		logger.WithError(err).Error("cannot start http server")
		return err
	}

	logger.WithFields(logrus.Fields{
		"root": detector.Root(),
		"tool": executor.Command,
		"url":  "http://localhost" + displayPort(srv.Addr()),
	}).Info("auto refactor agent started")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return pipeline.Consume(gctx, detector.Changes(gctx))
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	stop()
	pipeline.Wait()
	logger.Info("auto refactor agent stopped")
	return err
}

// openStores wires the best-effort recorders. A store that cannot be opened
// is logged and skipped; it never prevents the agent from running.
func openStores(cfg config.Config, logger *logrus.Logger) ([]core.Recorder, *audit.Ledger, *history.Store, func()) {
	var (
		recorders []core.Recorder
		ledger    *audit.Ledger
		jobs      *history.Store
		closers   []func()
	)

	var results *storage.ResultStorage
	if cfg.Audit.ResultsDir != "" {
		results = storage.NewResultStorage(cfg.Audit.ResultsDir)
	}
	if cfg.Audit.LedgerPath != "" {
		keys, created, err := security.EnsureKeyPair(cfg.Audit.KeysDir)
		switch {
		case err != nil:
			logger.WithError(err).Warn("audit ledger disabled: cannot load signing keys")
		case created:
			logger.WithField("dir", cfg.Audit.KeysDir).Info("generated audit signing keys")
		}
		if err == nil {
			ledger, err = audit.OpenLedger(cfg.Audit.LedgerPath, keys)
			if err != nil {
				logger.WithError(err).Warn("audit ledger disabled")
			}
		}
	}
	if results != nil || ledger != nil {
		recorders = append(recorders, audit.NewTrail(results, ledger))
	}

	if cfg.HistoryDB != "" {
		store, err := history.Open(cfg.HistoryDB)
		if err != nil {
			logger.WithError(err).Warn("job history disabled")
		} else {
			jobs = store
			recorders = append(recorders, store)
			closers = append(closers, func() { _ = store.Close() })
		}
	}

	return recorders, ledger, jobs, func() {
		for _, c := range closers {
			c()
		}
	}
}

func displayPort(addr string) string {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return ""
	}
	return ":" + port
}
