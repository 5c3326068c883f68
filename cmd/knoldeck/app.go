package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/conorfennell/knoldeck/internal/classifier"
	"github.com/conorfennell/knoldeck/internal/config"
	"github.com/conorfennell/knoldeck/internal/domain"
	"github.com/conorfennell/knoldeck/internal/fsrs"
	"github.com/conorfennell/knoldeck/internal/library"
	"github.com/conorfennell/knoldeck/internal/micro"
	"github.com/conorfennell/knoldeck/internal/patterns"
	"github.com/conorfennell/knoldeck/internal/session"
	"github.com/conorfennell/knoldeck/internal/storage"
	"github.com/conorfennell/knoldeck/internal/study"
	"github.com/conorfennell/knoldeck/internal/web"
)

// app holds the wired collaborators every command shares.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	db       *storage.DB
	clock    domain.Clock
	lib      *library.Library
	profile  *patterns.Profile
	study    *study.Service
	composer *session.Composer
	micro    *micro.Scheduler
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	db, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return nil, err
	}
	logger.Info("database opened", "path", cfg.Storage.Path)

	clock := domain.SystemClock{}
	ids := domain.UUIDGenerator{}
	files := library.OSFiles{}

	lib := library.New(files, db, ids, clock, library.Options{
		ReposDir: cfg.ReposDir,
		Logger:   logger,
	})
	for _, d := range cfg.Decks {
		if _, err := lib.AddSource(ctx, d.Name, d.Path); err != nil {
			db.Close()
			return nil, err
		}
	}

	profile := patterns.NewProfile(db)
	engine := fsrs.NewEngine(cfg.Scheduler.Params(), nil)
	cls := classifier.New(cfg.Classifier, ids)

	return &app{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		clock:    clock,
		lib:      lib,
		profile:  profile,
		study:    study.NewService(lib, files, engine, cls, profile, clock, study.Options{Fuzz: cfg.Scheduler.Fuzz, Logger: logger}),
		composer: session.NewComposer(nil),
		micro:    micro.NewScheduler(db, micro.NewGenerator(nil, ids), clock, cfg.QuietHours, logger),
	}, nil
}

func (a *app) close() {
	if err := a.db.Close(); err != nil {
		a.logger.Warn("closing database", "error", err)
	}
}

func (a *app) watcher() (*library.Watcher, error) {
	return library.NewWatcher(a.lib, a.logger)
}

func (a *app) server() *web.Server {
	return web.NewServer(web.Deps{
		Decks:    a.lib,
		Study:    a.study,
		Composer: a.composer,
		Patterns: a.profile,
		Micro:    a.micro,
		Session:  a.cfg.Session,
		Runs:     a.cfg.Micro,
		Clock:    a.clock,
		Logger:   a.logger,
	})
}

func (a *app) scan(ctx context.Context) error {
	decks, err := a.lib.ScanAll(ctx)
	if err != nil {
		return err
	}
	now := a.clock.Now()

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DECK\tCARDS\tDUE\tPATH")
	for _, d := range decks {
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\n", d.Name, len(d.Cards), len(d.DueCards(now)), d.Path)
	}
	return w.Flush()
}

func (a *app) printSession(ctx context.Context) error {
	decks, err := a.lib.ScanAll(ctx)
	if err != nil {
		return err
	}
	pats, err := a.profile.Patterns(ctx)
	if err != nil {
		return err
	}

	segments := a.composer.Compose(decks, pats, a.cfg.Session, a.clock.Now())
	if len(segments) == 0 {
		fmt.Println("Nothing due.")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "#\tMODE\tQUESTION\tWHY")
	for i, s := range segments {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", i+1, s.Mode, firstLine(s.Card.Question), s.Justification)
	}
	return w.Flush()
}

func (a *app) printChallenges(ctx context.Context) error {
	decks, err := a.lib.ScanAll(ctx)
	if err != nil {
		return err
	}
	challenges, err := a.micro.Generate(ctx, decks, a.cfg.Micro)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "AT\tTYPE\tLIMIT\tPROMPT")
	for _, c := range challenges {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.ScheduledFor.Local().Format("Mon 15:04"), c.Type, c.TimeLimit, firstLine(c.Prompt))
	}
	return w.Flush()
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
