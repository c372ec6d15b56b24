package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/unifydb/kave/internal/config"
	"github.com/unifydb/kave/internal/server"
	"github.com/unifydb/kave/internal/store"
	"github.com/unifydb/kave/internal/transport"
)

var configPath string

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "kaved",
		Short: "kave is a TLS-secured, LSM-backed key/value store",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a config file")
	addConfigFlags(root)
	root.AddCommand(serveCmd(), configCmd(), versionCmd())
	return root
}

// addConfigFlags registers one persistent flag per bindable Config field,
// mirroring the teacher's rootCmd.PersistentFlags() block in cmd.go's
// init() — flags live on root so serve and config both see them, and
// config.Load binds whichever of these the user actually set.
func addConfigFlags(root *cobra.Command) {
	def := config.DefaultConfig()
	root.PersistentFlags().String("listen-addr", def.ListenAddr, "address to listen on")
	root.PersistentFlags().String("cert-file", "", "server certificate PEM path")
	root.PersistentFlags().String("key-file", "", "server key PEM path")
	root.PersistentFlags().String("client-ca", "", "client CA bundle PEM path")
	root.PersistentFlags().Int("bloom-n", def.BloomN, "expected key cardinality for the membership filter")
	root.PersistentFlags().Float64("bloom-p", def.BloomP, "target false-positive rate for the membership filter")
	root.PersistentFlags().String("data-dir", def.DataDir, "commit log segment directory")
	root.PersistentFlags().String("log-level", def.LogLevel, "log level (debug, info, warn, error)")
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "run the key/value server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd)
		},
	}
}

func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "print the resolved configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath, cmd.Flags())
			if err != nil {
				return err
			}
			fmt.Printf("%+v\n", cfg)
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}
}

// version is overridden at build time via -ldflags.
var version = "dev"

func runServe(cmd *cobra.Command) error {
	cfg, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		return err
	}

	log, err := buildLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	tlsConfig, err := transport.BuildServerTLSConfig(transport.CertConfig{
		CertFile: cfg.CertFile,
		KeyFile:  cfg.KeyFile,
		ClientCA: cfg.ClientCA,
	})
	if err != nil {
		return err
	}

	st, err := store.New(store.Options{
		BloomN:       cfg.BloomN,
		BloomP:       cfg.BloomP,
		CommitLogDir: cfg.DataDir,
	})
	if err != nil {
		return err
	}
	srv := server.New(cfg.ListenAddr, tlsConfig, st, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if configPath != "" {
		watcher, err := config.WatchReload(configPath, cmd.Flags(),
			func(config.Config) { log.Info("config file changed; restart to apply") },
			func(err error) { log.Warn("config reload failed", zap.Error(err)) },
		)
		if err == nil {
			defer watcher.Close() //nolint:errcheck
		}
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ctx)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
		if err := srv.Stop(); err != nil {
			log.Warn("error during shutdown", zap.Error(err))
		}
		return nil
	case err := <-errCh:
		return err
	}
}

func buildLogger(level string) (*zap.Logger, error) {
	var zl zapcore.Level
	if err := zl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("main: invalid log level %q: %w", level, err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zl)
	return cfg.Build()
}
