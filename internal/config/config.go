package config

import (
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds every tunable the server needs at startup. Field tags
// follow viper's mapstructure binding alongside validator rules, mirroring
// how the teacher wires config: env vars, a config file, and flags all
// feed the same struct, validated once after merge.
type Config struct {
	ListenAddr string `mapstructure:"listen_addr" validate:"required,hostname_port"`
	CertFile   string `mapstructure:"cert_file" validate:"required,file"`
	KeyFile    string `mapstructure:"key_file" validate:"required,file"`
	ClientCA   string `mapstructure:"client_ca" validate:"required,file"`

	BloomN int     `mapstructure:"bloom_n" validate:"min=1"`
	BloomP float64 `mapstructure:"bloom_p" validate:"gt=0,lt=1"`

	DataDir string `mapstructure:"data_dir" validate:"required"`

	LogLevel string `mapstructure:"log_level" validate:"oneof=debug info warn error"`
}

// DefaultConfig returns the baseline configuration before env/file/flag
// overrides are merged in.
func DefaultConfig() Config {
	return Config{
		ListenAddr: "0.0.0.0:7070",
		BloomN:     512,
		BloomP:     0.01,
		DataDir:    "./data/commitlog",
		LogLevel:   "info",
	}
}

// flagBindings pairs each bindable Config field's pflag name (as defined on
// serveCmd/rootCmd in cmd/kaved) with its viper/mapstructure key, mirroring
// the teacher's explicit host/port/max-memory/... BindPFlag list in
// cmd.go's init().
var flagBindings = map[string]string{
	"listen-addr": "listen_addr",
	"cert-file":   "cert_file",
	"key-file":    "key_file",
	"client-ca":   "client_ca",
	"bloom-n":     "bloom_n",
	"bloom-p":     "bloom_p",
	"data-dir":    "data_dir",
	"log-level":   "log_level",
}

// Load builds a Config from, in increasing priority: built-in defaults, an
// optional config file at configPath, KAVE_-prefixed environment
// variables, and any flags in flags that were explicitly set. flags may be
// nil (tests, or callers with no flag set of their own). It returns the
// validated result.
func Load(configPath string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("kave")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	def := DefaultConfig()
	v.SetDefault("listen_addr", def.ListenAddr)
	v.SetDefault("bloom_n", def.BloomN)
	v.SetDefault("bloom_p", def.BloomP)
	v.SetDefault("data_dir", def.DataDir)
	v.SetDefault("log_level", def.LogLevel)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", configPath, err)
		}
	}

	if flags != nil {
		for flagName, key := range flagBindings {
			f := flags.Lookup(flagName)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return Config{}, fmt.Errorf("config: bind flag %s: %w", flagName, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("config: invalid: %w", err)
	}

	return cfg, nil
}

// WatchReload installs a file watcher on configPath and invokes onChange
// with the freshly reloaded, validated Config whenever the file is
// written. Reload errors are reported via onError and do not replace the
// last good config; a server should keep running on its previous config
// rather than crash on a bad edit.
func WatchReload(configPath string, flags *pflag.FlagSet, onChange func(Config), onError func(error)) (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: new watcher: %w", err)
	}
	if err := watcher.Add(configPath); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("config: watch %s: %w", configPath, err)
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				cfg, err := Load(configPath, flags)
				if err != nil {
					onError(err)
					continue
				}
				onChange(cfg)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				onError(err)
			}
		}
	}()

	return watcher, nil
}
