// importer forwards one or more packet capture files to the backend.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

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
	var cfg config.ImporterConfig
	if err := config.Load(&cfg); err != nil {
		slog.Error("failed to load config", "error", err)
		return err
	}

	flagSet := pflag.NewFlagSet("ctf-relay-importer", pflag.ContinueOnError)
	flagSet.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: ctf-relay-importer [flags] CAPTURE_FILE...\n\nFlags:\n%s", flagSet.FlagUsages())
	}
	cfg.AddFlags(flagSet)
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if args := flagSet.Args(); len(args) > 0 {
		cfg.Files = args
	}

	log := logger.New(cfg.LogLevel)
	slog.SetDefault(log)
	if err := cfg.Validate(); err != nil {
		app.LogFatal(log, err)
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	names := make([]string, len(cfg.Files))
	for i, f := range cfg.Files {
		names[i] = filepath.Base(f)
	}

	r := &app.Run{
		Common: &cfg.CommonConfig,
		CommonAttrs: []domain.Attr{
			{Key: "ctf_relay.importer.config.file_name", Value: strings.Join(names, ",")},
		},
		Logger: log,
		Open: func(ctx context.Context, env app.Env) (domain.PacketSource, io.Closer, error) {
			src, err := source.NewFileSource(cfg.Files, env.Trace, env.Logger)
			if err != nil {
				return nil, nil, err
			}
			return src, src, nil
		},
	}
	if err := r.Execute(ctx); err != nil {
		app.LogFatal(log, err)
		return err
	}
	return nil
}
