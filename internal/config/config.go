package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Paths     PathsConfig     `mapstructure:"paths"`
	Tokenizer TokenizerConfig `mapstructure:"tokenizer"`
	Batch     BatchConfig     `mapstructure:"batch"`
	Server    ServerConfig    `mapstructure:"server"`
	LogLevel  string          `mapstructure:"log_level"`
}

type PathsConfig struct {
	ModelPath   string `mapstructure:"model_path"`
	LibraryPath string `mapstructure:"library_path"`
}

type TokenizerConfig struct {
	CapacityPolicy string `mapstructure:"capacity_policy"`
	CapacityLimit  int    `mapstructure:"capacity_limit"`
	Algorithm      int    `mapstructure:"algorithm"`
}

type BatchConfig struct {
	Workers int `mapstructure:"workers"`
}

type ServerConfig struct {
	ListenAddr      string `mapstructure:"listen_addr"`
	Workers         int    `mapstructure:"workers"`
	MaxTextBytes    int    `mapstructure:"max_text_bytes"`
	MaxBatchTexts   int    `mapstructure:"max_batch_texts"`
	RequestTimeout  int    `mapstructure:"request_timeout"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"`
}

type LoadOptions struct {
	Cmd        flagBinder
	ConfigFile string
	Defaults   Config
}

type flagBinder interface {
	Flags() *pflag.FlagSet
}

func DefaultConfig() Config {
	return Config{
		Paths: PathsConfig{
			ModelPath:   "data/xlm_roberta.bling",
			LibraryPath: "",
		},
		Tokenizer: TokenizerConfig{
			CapacityPolicy: CapacityByteLength,
			CapacityLimit:  500,
			Algorithm:      3,
		},
		Batch: BatchConfig{
			Workers: 0,
		},
		Server: ServerConfig{
			ListenAddr:      ":8080",
			Workers:         0,
			MaxTextBytes:    1 << 20,
			MaxBatchTexts:   1024,
			RequestTimeout:  30,
			ShutdownTimeout: 30,
		},
		LogLevel: "info",
	}
}

// flagKeys maps each registered flag to its config key.
var flagKeys = []struct {
	flag string
	key  string
}{
	{"paths-model-path", "paths.model_path"},
	{"model", "paths.model_path"},
	{"paths-library-path", "paths.library_path"},
	{"lib", "paths.library_path"},
	{"tokenizer-capacity-policy", "tokenizer.capacity_policy"},
	{"tokenizer-capacity-limit", "tokenizer.capacity_limit"},
	{"tokenizer-algorithm", "tokenizer.algorithm"},
	{"batch-workers", "batch.workers"},
	{"server-listen-addr", "server.listen_addr"},
	{"server-workers", "server.workers"},
	{"server-max-text-bytes", "server.max_text_bytes"},
	{"server-max-batch-texts", "server.max_batch_texts"},
	{"server-request-timeout", "server.request_timeout"},
	{"server-shutdown-timeout", "server.shutdown_timeout"},
	{"log-level", "log_level"},
}

func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.String("paths-model-path", defaults.Paths.ModelPath, "Path to BlingFire model (.bling)")
	fs.String("model", defaults.Paths.ModelPath, "Path to BlingFire model (alias for --paths-model-path)")
	fs.String("paths-library-path", defaults.Paths.LibraryPath, "Path to BlingFire shared library")
	fs.String("lib", defaults.Paths.LibraryPath, "Path to BlingFire shared library (alias for --paths-library-path)")
	fs.String("tokenizer-capacity-policy", defaults.Tokenizer.CapacityPolicy,
		"Output buffer sizing: byte-length|fixed|capped")
	fs.Int("tokenizer-capacity-limit", defaults.Tokenizer.CapacityLimit,
		"Slot count for fixed, ceiling for capped")
	fs.Int("tokenizer-algorithm", defaults.Tokenizer.Algorithm, "Selector forwarded to TextToIds")
	fs.Int("batch-workers", defaults.Batch.Workers, "Concurrent tokenization calls for batch work (0 = GOMAXPROCS)")
	fs.String("server-listen-addr", defaults.Server.ListenAddr, "HTTP listen address")
	fs.Int("server-workers", defaults.Server.Workers, "Max concurrent tokenization requests (0 = unlimited)")
	fs.Int("server-max-text-bytes", defaults.Server.MaxTextBytes, "Max text size per request in bytes")
	fs.Int("server-max-batch-texts", defaults.Server.MaxBatchTexts, "Max texts per batch request")
	fs.Int("server-request-timeout", defaults.Server.RequestTimeout, "Per-request timeout in seconds")
	fs.Int("server-shutdown-timeout", defaults.Server.ShutdownTimeout, "Graceful shutdown timeout in seconds")
	fs.String("log-level", defaults.LogLevel, "Log level: debug|info|warn|error")
}

func Load(opts LoadOptions) (Config, error) {
	v := viper.New()

	setDefaults(v, opts.Defaults)
	if opts.Cmd != nil {
		if err := bindFlags(v, opts.Cmd.Flags()); err != nil {
			return Config{}, err
		}
	}

	v.SetEnvPrefix("BLINGFIRE")
	replacer := strings.NewReplacer("-", "_", ".", "_", "__", "_")
	v.SetEnvKeyReplacer(replacer)
	if err := v.BindEnv("paths.library_path", "BLINGFIRE_LIB", "BLINGFIRE_PATHS_LIBRARY_PATH"); err != nil {
		return Config{}, fmt.Errorf("bind library env vars: %w", err)
	}
	if err := v.BindEnv("paths.model_path", "BLINGFIRE_MODEL", "BLINGFIRE_PATHS_MODEL_PATH"); err != nil {
		return Config{}, fmt.Errorf("bind model env vars: %w", err)
	}
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("blingfire")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	policy, err := NormalizeCapacityPolicy(cfg.Tokenizer.CapacityPolicy)
	if err != nil {
		return Config{}, err
	}
	cfg.Tokenizer.CapacityPolicy = policy

	return cfg, nil
}

// bindFlags binds every registered flag to its key. When an alias and its
// canonical flag are both registered, whichever was set on the command line
// wins.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	bound := make(map[string]bool)

	for _, fk := range flagKeys {
		f := fs.Lookup(fk.flag)
		if f == nil {
			continue
		}

		if bound[fk.key] && !f.Changed {
			continue
		}

		if err := v.BindPFlag(fk.key, f); err != nil {
			return fmt.Errorf("bind flag %q: %w", fk.flag, err)
		}
		bound[fk.key] = true
	}

	return nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("paths.model_path", c.Paths.ModelPath)
	v.SetDefault("paths.library_path", c.Paths.LibraryPath)
	v.SetDefault("tokenizer.capacity_policy", c.Tokenizer.CapacityPolicy)
	v.SetDefault("tokenizer.capacity_limit", c.Tokenizer.CapacityLimit)
	v.SetDefault("tokenizer.algorithm", c.Tokenizer.Algorithm)
	v.SetDefault("batch.workers", c.Batch.Workers)
	v.SetDefault("server.listen_addr", c.Server.ListenAddr)
	v.SetDefault("server.workers", c.Server.Workers)
	v.SetDefault("server.max_text_bytes", c.Server.MaxTextBytes)
	v.SetDefault("server.max_batch_texts", c.Server.MaxBatchTexts)
	v.SetDefault("server.request_timeout", c.Server.RequestTimeout)
	v.SetDefault("server.shutdown_timeout", c.Server.ShutdownTimeout)
	v.SetDefault("log_level", c.LogLevel)
}
