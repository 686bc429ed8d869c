// Package app wires the configuration, backend client, forwarder and admin
// server shared by every relay binary.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/V4T54L/ctf-relay/internal/adapter/api"
	"github.com/V4T54L/ctf-relay/internal/adapter/ingest"
	"github.com/V4T54L/ctf-relay/internal/adapter/metrics"
	"github.com/V4T54L/ctf-relay/internal/domain"
	"github.com/V4T54L/ctf-relay/internal/pkg/config"
	"github.com/V4T54L/ctf-relay/internal/usecase"
)

// Version is reported in the plugin version attribute. Set at build time.
var Version = "0.1.0"

// KeyPluginVersion is the common timeline attribute carrying Version.
const KeyPluginVersion = "ctf_relay.plugin.version"

const adminShutdownTimeout = 5 * time.Second

// Env is what a packet source opener gets to work with.
type Env struct {
	Trace   *config.TraceConfig
	Metrics *metrics.ForwardMetrics
	Logger  *slog.Logger
}

// SourceOpener opens the packet source of a run. It is called from inside the
// cancellable unit of work, so connecting and handshaking can be interrupted.
type SourceOpener func(ctx context.Context, env Env) (domain.PacketSource, io.Closer, error)

// Run is one relay invocation.
type Run struct {
	Common      *config.CommonConfig
	CommonAttrs []domain.Attr
	Open        SourceOpener
	Logger      *slog.Logger

	// Grace bounds how long an interrupted forwarder may take to stop.
	Grace time.Duration
}

// Execute forwards packets until the source is exhausted, a fatal error
// occurs, or ctx is cancelled. Cancellation is a clean exit.
func (r *Run) Execute(ctx context.Context) error {
	logger := r.Logger

	path, err := r.Common.ExpandedTraceConfigPath()
	if err != nil {
		return err
	}
	trace, err := config.LoadTraceConfig(path)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewForwardMetrics(reg)

	runID := r.Common.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	client, err := ingest.Open(ctx, r.Common.BackendURL, ingest.Options{
		BatchSize: r.Common.BackendBatchSize,
		RunID:     runID,
	}, logger)
	if err != nil {
		if ctx.Err() != nil {
			logger.Debug("interrupted while connecting to the backend", "error", err)
			return nil
		}
		return err
	}
	logger.Info("backend ready", "backend", redactURL(r.Common.BackendURL), "run_id", runID)

	attrs := append([]domain.Attr{{Key: KeyPluginVersion, Value: Version}}, r.CommonAttrs...)
	forwarder := usecase.NewForwardPacketsUseCase(client, usecase.ForwardOptions{
		CommonAttrs: attrs,
		Environment: trace.Trace.Environment,
		StartEvent:  r.Common.StartEvent,
		TimeDomains: usecase.NewTimeDomains(trace),
		Metrics:     m,
	}, logger)

	grace := r.Grace
	if grace <= 0 {
		grace = usecase.DefaultShutdownGrace
	}
	env := Env{Trace: trace, Metrics: m, Logger: logger}

	g, gctx := errgroup.WithContext(ctx)
	done := make(chan struct{})

	g.Go(func() error {
		defer close(done)
		return usecase.Supervise(gctx, logger, grace, func(uctx context.Context) error {
			return r.forward(uctx, env, forwarder, client)
		})
	})

	if r.Common.AdminAddr != "" {
		server := &http.Server{
			Addr:              r.Common.AdminAddr,
			Handler:           api.NewAdminRouter(client, reg, logger.With("component", "admin")),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info("starting admin server", "addr", server.Addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("admin server failed: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			select {
			case <-done:
			case <-gctx.Done():
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), adminShutdownTimeout)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}

func (r *Run) forward(ctx context.Context, env Env, forwarder *usecase.ForwardPacketsUseCase, client *ingest.Client) error {
	src, closer, err := r.Open(ctx, env)
	if err != nil {
		if cerr := client.Close(); cerr != nil {
			env.Logger.Warn("failed to close backend session", "error", cerr)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	defer closer.Close()

	err = usecase.ForwardAll(ctx, src, forwarder, env.Logger)
	if errors.Is(err, domain.ErrDecode) {
		env.Metrics.DecodeError()
	}
	return err
}
