// tcp-collector connects to a TCP endpoint serving a packet stream and
// forwards it to the backend.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/V4T54L/ctf-relay/internal/adapter/session"
	"github.com/V4T54L/ctf-relay/internal/adapter/source"
	"github.com/V4T54L/ctf-relay/internal/app"
	"github.com/V4T54L/ctf-relay/internal/domain"
	"github.com/V4T54L/ctf-relay/internal/pkg/config"
	"github.com/V4T54L/ctf-relay/internal/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	var cfg config.TCPCollectorConfig
	if err := config.Load(&cfg); err != nil {
		slog.Error("failed to load config", "error", err)
		return err
	}

	flagSet := pflag.NewFlagSet("ctf-relay-tcp-collector", pflag.ContinueOnError)
	flagSet.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: ctf-relay-tcp-collector [flags]\n\nFlags:\n%s", flagSet.FlagUsages())
	}
	cfg.AddFlags(flagSet)
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	log := logger.New(cfg.LogLevel)
	slog.SetDefault(log)
	if err := cfg.Validate(); err != nil {
		app.LogFatal(log, err)
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r := &app.Run{
		Common: &cfg.CommonConfig,
		CommonAttrs: []domain.Attr{
			{Key: "ctf_relay.tcp_collector.remote", Value: cfg.Remote},
		},
		Logger: log,
		Open: func(ctx context.Context, env app.Env) (domain.PacketSource, io.Closer, error) {
			remote, err := session.ResolveRemote(ctx, cfg.Remote)
			if err != nil {
				return nil, nil, err
			}
			dialer := session.NewDialer(env.Logger, env.Metrics, cfg.ConnectRetryInterval)
			conn, err := dialer.Connect(ctx, remote, cfg.ConnectTimeout)
			if err != nil {
				return nil, nil, err
			}
			env.Logger.Info("connected", "remote", remote)
			src := source.NewConnSource(conn, env.Trace)
			return src, src, nil
		},
	}
	if err := r.Execute(ctx); err != nil {
		app.LogFatal(log, err)
		return err
	}
	return nil
}
