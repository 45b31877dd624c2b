package application

import (
	"fmt"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	zlog "github.com/lk2023060901/shape-garden-go/pkg/log"
	"github.com/lk2023060901/shape-garden-go/pkg/metrics"
	zviper "github.com/lk2023060901/shape-garden-go/pkg/util/viper"
)

// Application is the main runtime container for a Shape Garden process.
// It owns configuration and manages common dependencies such as logging.
type Application struct {
	cfg     *zviper.Config
	loggers map[string]*zap.Logger
}

// New creates a new Application instance.
func New() *Application {
	return &Application{}
}

// Run is the entry of a Shape Garden application.
// It parses command-line arguments (os.Args) and loads the configuration file
// using the following priority:
//  1. Default: ./config.yaml
//  2. Env: SHAPE_GARDEN_CONFIG_FILE_PATH
//  3. CLI: --config <path> or --config=<path>
//
// The configuration file is optional: when no file is found, the process runs
// with environment-driven defaults only.
func (a *Application) Run() error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	a.cfg = cfg

	if err := a.initLogging(); err != nil {
		return err
	}

	if a.cfg != nil {
		if name := a.cfg.GetString("app.name"); name != "" {
			zlog.Info("configuration loaded", zap.String("app", name))
		}
	}

	metrics.Register(prometheus.DefaultRegisterer)
	return nil
}

// Config returns the loaded configuration, if any.
func (a *Application) Config() *zviper.Config {
	return a.cfg
}

// Logger returns a named logger created from configuration.
// If the name is unknown, it falls back to the global logger.
func (a *Application) Logger(name string) *zap.Logger {
	if lg, ok := a.loggers[name]; ok && lg != nil {
		return lg
	}
	return zlog.L()
}

// loadConfig resolves the config file path and loads it via the viper wrapper.
func (a *Application) loadConfig() (*zviper.Config, error) {
	configPath := "./config.yaml"
	explicit := false

	if envPath := os.Getenv("SHAPE_GARDEN_CONFIG_FILE_PATH"); envPath != "" {
		configPath = envPath
		explicit = true
	}

	args := os.Args[1:]
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--config" {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("missing value after --config")
			}
			configPath = args[i+1]
			explicit = true
			i++
			continue
		}
		if strings.HasPrefix(arg, "--config=") {
			if val := strings.TrimPrefix(arg, "--config="); val != "" {
				configPath = val
				explicit = true
			}
		}
	}

	if !explicit {
		if _, err := os.Stat(configPath); err != nil {
			// Default config file absent: run without one.
			return nil, nil
		}
	}

	cfg := zviper.New()
	if err := cfg.LoadFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file %q: %w", configPath, err)
	}
	// Allow SHAPE_GARDEN_* env vars to override file values.
	cfg.BindEnv("SHAPE_GARDEN")
	return cfg, nil
}

// initLogging initializes the global logger and named loggers.
func (a *Application) initLogging() error {
	if err := a.initGlobalLoggerFromEnv(); err != nil {
		return err
	}
	return a.initNamedLoggersFromConfig()
}

// initGlobalLoggerFromEnv configures the process-wide logger based on
// SHAPE_GARDEN_LOG_* env vars.
//
// Priority:
//   - SHAPE_GARDEN_LOG_LEVEL: log level (default "info").
//   - SHAPE_GARDEN_LOG_STDOUT: whether to log to stdout (default true).
//   - SHAPE_GARDEN_LOG_FILE_DIR: log directory.
//   - SHAPE_GARDEN_LOG_FILE: log file name (empty means no file).
//   - SHAPE_GARDEN_LOG_FORMAT: log format ("text" or "json", default "text").
func (a *Application) initGlobalLoggerFromEnv() error {
	cfg := &zlog.Config{
		Level:  getenvDefault("SHAPE_GARDEN_LOG_LEVEL", "info"),
		Format: getenvDefault("SHAPE_GARDEN_LOG_FORMAT", "text"),
		Stdout: getenvBool("SHAPE_GARDEN_LOG_STDOUT", true),
		File: zlog.FileLogConfig{
			RootPath: getenvDefault("SHAPE_GARDEN_LOG_FILE_DIR", ""),
			Filename: getenvDefault("SHAPE_GARDEN_LOG_FILE", ""),
		},
	}

	logger, props, err := zlog.InitLogger(cfg)
	if err != nil {
		return fmt.Errorf("init global logger from env: %w", err)
	}
	zlog.ReplaceGlobals(logger, props)
	return nil
}

// initNamedLoggersFromConfig creates named loggers from YAML config under the
// "logging" key.
//
// Example:
//
//	logging:
//	  export:
//	    level: debug
//	    stdout: true
//	    file:
//	      rootpath: ./logs
//	      filename: export.log
func (a *Application) initNamedLoggersFromConfig() error {
	if a.cfg == nil || !a.cfg.IsSet("logging") {
		return nil
	}

	raw := make(map[string]zlog.Config)
	if err := a.cfg.UnmarshalKey("logging", &raw); err != nil {
		return err
	}
	if len(raw) == 0 {
		return nil
	}

	a.loggers = make(map[string]*zap.Logger, len(raw))
	for name, lc := range raw {
		cfgCopy := lc
		logger, _, err := zlog.InitLogger(&cfgCopy)
		if err != nil {
			return fmt.Errorf("init named logger %q: %w", name, err)
		}
		a.loggers[name] = logger
	}
	return nil
}

func getenvDefault(key, def string) string {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return def
	}
	return val
}

func getenvBool(key string, def bool) bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if val == "" {
		return def
	}
	return val == "1" || val == "true" || val == "yes"
}
