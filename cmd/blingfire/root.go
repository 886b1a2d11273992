package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/example/go-blingfire/internal/config"
	"github.com/example/go-blingfire/internal/native"
	"github.com/example/go-blingfire/internal/server"
	"github.com/example/go-blingfire/internal/tokenizer"
)

var (
	cfgFile   string
	activeCfg config.Config
	cfgLoaded bool
)

// libraryOpener resolves the tokenizer library. Tests replace it with a fake.
var libraryOpener = func(paths config.PathsConfig) (tokenizer.Library, native.RuntimeInfo, error) {
	lib, info, err := native.Bootstrap(paths)
	if err != nil {
		return nil, native.RuntimeInfo{}, err
	}
	return lib, info, nil
}

func NewRootCmd() *cobra.Command {
	defaults := config.DefaultConfig()

	cmd := &cobra.Command{
		Use:           "blingfire",
		Short:         "BlingFire tokenizer command line",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := config.Load(config.LoadOptions{
				Cmd:        cmd,
				ConfigFile: cfgFile,
				Defaults:   defaults,
			})
			if err != nil {
				return err
			}
			activeCfg = loaded
			cfgLoaded = true
			setupLogger(loaded.LogLevel)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Optional config file (yaml|toml|json)")
	config.RegisterFlags(cmd.PersistentFlags(), defaults)

	cmd.AddCommand(newTokenizeCmd())
	cmd.AddCommand(newBatchCmd())
	cmd.AddCommand(newGoldenCmd())
	cmd.AddCommand(newBenchCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newHealthCmd())
	cmd.AddCommand(newDoctorCmd())

	return cmd
}

// setupLogger configures the process-wide slog default logger.
func setupLogger(levelStr string) {
	lvl, err := server.ParseLogLevel(levelStr)
	if err != nil {
		lvl = slog.LevelInfo
	}
	h := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(h))
}

// requireConfig returns the configuration loaded by the root command. It does
// not validate paths; commands that need a model check that themselves.
func requireConfig() (config.Config, error) {
	if !cfgLoaded {
		return config.Config{}, fmt.Errorf("configuration not loaded")
	}
	return activeCfg, nil
}

// loadModel opens the library and acquires the configured model.
func loadModel(cfg config.Config) (*tokenizer.Model, error) {
	lib, _, err := libraryOpener(cfg.Paths)
	if err != nil {
		return nil, err
	}

	opts, err := tokenizer.OptionsFromConfig(cfg.Tokenizer)
	if err != nil {
		return nil, err
	}
	opts = append(opts, tokenizer.WithLogger(slog.Default()))

	return tokenizer.Load(lib, cfg.Paths.ModelPath, opts...)
}

// withModel runs fn against a freshly loaded model and frees it afterwards.
// A free failure is reported alongside any error from fn.
func withModel(cfg config.Config, fn func(*tokenizer.Model) error) (err error) {
	m, err := loadModel(cfg)
	if err != nil {
		return err
	}

	defer func() { err = multierr.Append(err, m.Free()) }()

	return fn(m)
}
