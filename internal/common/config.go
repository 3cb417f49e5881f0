package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// Config represents the application configuration
type Config struct {
	Environment string         `toml:"environment"` // "development" or "production"
	Tree        TreeConfig     `toml:"tree"`
	Storage     StorageConfig  `toml:"storage"`
	Extract     ExtractConfig  `toml:"extract"`
	Schedule    ScheduleConfig `toml:"schedule"`
	Watcher     WatcherConfig  `toml:"watcher"`
	Logging     LoggingConfig  `toml:"logging"`
}

// TreeConfig locates the firmware source checkout
type TreeConfig struct {
	Path            string `toml:"path"`              // Checkout directory
	KeyboardsDir    string `toml:"keyboards_dir"`     // Subdirectory holding keyboard folders
	GitURL          string `toml:"git_url"`           // Upstream repository URL
	GitBranch       string `toml:"git_branch"`        // Branch to check out
	CheckoutOnStart bool   `toml:"checkout_on_start"` // Clone/refresh the tree before the first run
	CheckoutTimeout string `toml:"checkout_timeout"`  // e.g. "10m" - git command timeout
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

// ExtractConfig controls the per-keyboard extraction pipeline
type ExtractConfig struct {
	Concurrency         int      `toml:"concurrency"`          // Number of concurrent keyboard workers
	ExtractKeymaps      bool     `toml:"extract_keymaps"`      // Run the preprocessor over keymap.c files
	Preprocessor        string   `toml:"preprocessor"`         // Preprocessor command (default "clang")
	PreprocessorArgs    []string `toml:"preprocessor_args"`    // Arguments before the file path (default ["-E"])
	PreprocessorTimeout string   `toml:"preprocessor_timeout"` // e.g. "30s" - per invocation timeout
	ProfilesFile        string   `toml:"profiles_file"`        // Optional processors.yaml overriding the MCU lists
	RenderReadmeHTML    bool     `toml:"render_readme_html"`   // Publish goldmark-rendered readme HTML
}

// ScheduleConfig controls cron-driven catalog rebuilds
type ScheduleConfig struct {
	Enabled    bool   `toml:"enabled"`
	Cron       string `toml:"cron"`         // Cron expression or descriptor, e.g. "@hourly"
	RunOnStart bool   `toml:"run_on_start"` // Rebuild once at startup
	Always     bool   `toml:"always"`       // Rebuild on every tick, ignoring the update-needed flag
}

// WatcherConfig controls the upstream revision watcher
type WatcherConfig struct {
	Enabled         bool   `toml:"enabled"`
	Interval        string `toml:"interval"` // e.g. "5m" - poll interval
	Owner           string `toml:"owner"`    // GitHub repository owner
	Repo            string `toml:"repo"`     // GitHub repository name
	Branch          string `toml:"branch"`   // Branch whose head is watched
	Token           string `toml:"token"`    // Optional GitHub token, anonymous when empty
	RequestsPerHour int    `toml:"requests_per_hour"`
}

type LoggingConfig struct {
	Level       string   `toml:"level"`        // "debug", "info", "warn", "error"
	Format      string   `toml:"format"`       // "json" or "text"
	Output      []string `toml:"output"`       // "stdout", "file"
	TimeFormat  string   `toml:"time_format"`  // Time format for logs (default: "15:04:05")
	AnomalyFile string   `toml:"anomaly_file"` // NDJSON anomaly feed path, empty disables it
}

// NewDefaultConfig returns a config with sensible development defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Tree: TreeConfig{
			Path:            "./qmk_firmware",
			KeyboardsDir:    "keyboards",
			GitURL:          "https://github.com/qmk/qmk_firmware.git",
			GitBranch:       "master",
			CheckoutOnStart: false,
			CheckoutTimeout: "10m",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path:           "./data/clavis",
				ResetOnStartup: false,
			},
		},
		Extract: ExtractConfig{
			Concurrency:         8,
			ExtractKeymaps:      true,
			Preprocessor:        "clang",
			PreprocessorArgs:    []string{"-E"},
			PreprocessorTimeout: "30s",
			RenderReadmeHTML:    true,
		},
		Schedule: ScheduleConfig{
			Enabled:    true,
			Cron:       "@hourly",
			RunOnStart: false,
			// Without the watcher nothing raises the update-needed flag,
			// so out of the box every tick rebuilds.
			Always: true,
		},
		Watcher: WatcherConfig{
			Enabled:         false,
			Interval:        "5m",
			Owner:           "qmk",
			Repo:            "qmk_firmware",
			Branch:          "master",
			RequestsPerHour: 60,
		},
		Logging: LoggingConfig{
			Level:       "info",
			Format:      "text",
			Output:      []string{"stdout", "file"},
			TimeFormat:  "15:04:05",
			AnomalyFile: "logs/anomalies.ndjson",
		},
	}
}

// LoadFromFiles loads configuration from multiple files with priority:
// default -> file1 -> file2 -> ... -> env. Later files override earlier
// files; environment variables override all files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	// Environment configuration (highest priority: CLAVIS_ENV, fallback: GO_ENV)
	if env := os.Getenv("CLAVIS_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Tree configuration
	if path := os.Getenv("CLAVIS_TREE_PATH"); path != "" {
		config.Tree.Path = path
	}
	if branch := os.Getenv("CLAVIS_TREE_BRANCH"); branch != "" {
		config.Tree.GitBranch = branch
	}
	if url := os.Getenv("CLAVIS_TREE_GIT_URL"); url != "" {
		config.Tree.GitURL = url
	}

	// Storage configuration
	if badgerPath := os.Getenv("CLAVIS_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	// Extraction configuration
	if concurrency := os.Getenv("CLAVIS_EXTRACT_CONCURRENCY"); concurrency != "" {
		if c, err := strconv.Atoi(concurrency); err == nil {
			config.Extract.Concurrency = c
		}
	}
	if keymaps := os.Getenv("CLAVIS_EXTRACT_KEYMAPS"); keymaps != "" {
		if ek, err := strconv.ParseBool(keymaps); err == nil {
			config.Extract.ExtractKeymaps = ek
		}
	}
	if pp := os.Getenv("CLAVIS_PREPROCESSOR"); pp != "" {
		config.Extract.Preprocessor = pp
	}

	// Schedule configuration
	if cronExpr := os.Getenv("CLAVIS_SCHEDULE_CRON"); cronExpr != "" {
		config.Schedule.Cron = cronExpr
	}
	if enabled := os.Getenv("CLAVIS_SCHEDULE_ENABLED"); enabled != "" {
		if e, err := strconv.ParseBool(enabled); err == nil {
			config.Schedule.Enabled = e
		}
	}

	// Watcher configuration. GITHUB_TOKEN is honored as a fallback so the
	// watcher works in CI environments without a config file.
	if token := os.Getenv("CLAVIS_WATCHER_TOKEN"); token != "" {
		config.Watcher.Token = token
	} else if token := os.Getenv("GITHUB_TOKEN"); token != "" && config.Watcher.Token == "" {
		config.Watcher.Token = token
	}
	if enabled := os.Getenv("CLAVIS_WATCHER_ENABLED"); enabled != "" {
		if e, err := strconv.ParseBool(enabled); err == nil {
			config.Watcher.Enabled = e
		}
	}

	// Logging configuration
	if level := os.Getenv("CLAVIS_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("CLAVIS_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}
	if output := os.Getenv("CLAVIS_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}
}

// ApplyFlagOverrides applies command-line flag values, which have the
// highest priority of all configuration sources.
func ApplyFlagOverrides(config *Config, treePath string, concurrency int) {
	if treePath != "" {
		config.Tree.Path = treePath
	}
	if concurrency > 0 {
		config.Extract.Concurrency = concurrency
	}
}

// ValidateSchedule checks that a cron expression or descriptor parses.
func ValidateSchedule(schedule string) error {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", schedule, err)
	}
	return nil
}

// ParseDurationOr parses value as a duration, returning fallback when the
// value is empty or invalid.
func ParseDurationOr(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}
