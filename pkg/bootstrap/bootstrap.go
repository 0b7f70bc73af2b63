// Package bootstrap holds the process wiring the binaries under cmd/ share:
// env loading, config, the logger, client lifetimes and signal handling.
package bootstrap

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"github.com/angelmondragon/farmbid-backend/pkg/config"
	"github.com/angelmondragon/farmbid-backend/pkg/db"
	"github.com/angelmondragon/farmbid-backend/pkg/logger"
	"github.com/angelmondragon/farmbid-backend/pkg/pubsub"
	"github.com/angelmondragon/farmbid-backend/pkg/redis"
)

// Process is one running binary. Clients opened through it are closed in
// reverse order by Close.
type Process struct {
	Name   string
	Config *config.Config
	Logger *logger.Logger

	closers []closer
	exit    func(code int)
}

type closer struct {
	name string
	fn   func() error
}

// Start loads .env and the config, then builds the process logger. A config
// error terminates the process.
func Start(name string) *Process {
	p := &Process{Name: name, Logger: logger.New(logger.Options{ServiceName: name}), exit: os.Exit}
	if err := godotenv.Load(); err != nil {
		p.Logger.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	p.Check(err, "load config")
	cfg.Service.Kind = name

	p.Config = cfg
	p.Logger = logger.New(logger.Options{
		ServiceName: name,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})
	return p
}

// Check exits the process after closing everything opened so far when err
// is non-nil. what completes the sentence "failed to ...".
func (p *Process) Check(err error, what string) {
	if err == nil {
		return
	}
	p.Logger.Error(context.Background(), "failed to "+what, err)
	_ = p.Close()
	p.exit(1)
}

// OnClose registers fn to run when the process shuts down.
func (p *Process) OnClose(name string, fn func() error) {
	p.closers = append(p.closers, closer{name: name, fn: fn})
}

// Close runs the registered closers newest first. Each failure is logged and
// all of them are returned together.
func (p *Process) Close() error {
	var errs error
	for _, c := range slices.Backward(p.closers) {
		if err := c.fn(); err != nil {
			p.Logger.Error(context.Background(), "error closing "+c.name, err)
			errs = multierr.Append(errs, err)
		}
	}
	p.closers = nil
	return errs
}

func (p *Process) Database(ctx context.Context) *db.Client {
	client, err := db.New(ctx, p.Config.DB, p.Logger)
	p.Check(err, "bootstrap database")
	p.OnClose("database", client.Close)
	return client
}

func (p *Process) Redis(ctx context.Context) *redis.Client {
	client, err := redis.New(ctx, p.Config.Redis, p.Logger)
	p.Check(err, "bootstrap redis")
	p.OnClose("redis", client.Close)
	return client
}

// PubSub connects to the bus and checks that every named subscription
// exists before returning.
func (p *Process) PubSub(ctx context.Context, subscriptions ...string) *pubsub.Client {
	client, err := pubsub.NewClient(ctx, p.Config.GCP, p.Config.PubSub, p.Logger, subscriptions...)
	p.Check(err, "bootstrap pubsub")
	p.OnClose("pubsub client", client.Close)
	return client
}

// Signals returns a context canceled on SIGINT or SIGTERM and carrying the
// process log fields.
func (p *Process) Signals(fields map[string]any) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	base := map[string]any{"env": p.Config.App.Env, "serviceKind": p.Name}
	for k, v := range fields {
		base[k] = v
	}
	return p.Logger.WithFields(ctx, base), stop
}

// Finish closes the process. A run error other than cancellation is logged
// and turns into exit status 1.
func (p *Process) Finish(ctx context.Context, runErr error) {
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		p.Logger.Error(ctx, p.Name+" stopped unexpectedly", runErr)
		_ = p.Close()
		p.exit(1)
		return
	}
	p.Logger.Info(ctx, p.Name+" shutting down gracefully")
	if err := p.Close(); err != nil {
		p.exit(1)
	}
}
