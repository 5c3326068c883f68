package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/conorfennell/knoldeck/internal/config"
)

const usage = `Usage: knoldeck [flags] <command>

Commands:
  scan         scan every deck and report card counts
  session      print the next study session
  challenges   generate micro challenges for the coming hours
  serve        scan, watch decks for edits and serve the JSON API (default)

Flags:
`

func main() {
	fs := config.Flags("knoldeck")
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		os.Exit(2)
	}

	cfg, err := config.Load(fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "knoldeck: %v\n", err)
		os.Exit(2)
	}
	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, fs.Arg(0), logger); err != nil {
		logger.Error("knoldeck failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, command string, logger *slog.Logger) error {
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	switch command {
	case "scan":
		return a.scan(ctx)
	case "session":
		return a.printSession(ctx)
	case "challenges":
		return a.printChallenges(ctx)
	case "", "serve":
		return a.serve(ctx)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func (a *app) serve(ctx context.Context) error {
	if _, err := a.lib.ScanAll(ctx); err != nil {
		return err
	}

	watcher, err := a.watcher()
	if err != nil {
		return err
	}
	if err := watcher.Start(ctx); err != nil {
		return fmt.Errorf("watching decks: %w", err)
	}
	defer watcher.Stop()

	srv := &http.Server{
		Addr:              a.cfg.HTTP.Addr,
		Handler:           a.server(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		a.logger.Info("server starting", "addr", srv.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
