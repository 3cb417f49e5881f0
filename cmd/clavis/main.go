// -----------------------------------------------------------------------
// Last Modified: Friday, 14th August 2026 9:12:33 am
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/clavis/internal/app"
	"github.com/ternarybob/clavis/internal/common"
)

// configPaths is a custom flag type that allows multiple -config flags
type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	// Command-line flags
	configFiles  configPaths // Multiple -config flags supported
	treePath     = flag.String("tree", "", "Firmware tree path (overrides config)")
	concurrency  = flag.Int("concurrency", 0, "Concurrent keyboard workers (overrides config)")
	runOnce      = flag.Bool("once", false, "Build the catalog once and exit")
	oneKeyboard  = flag.String("keyboard", "", "Build a single keyboard, print it as JSON and exit")
	showVersion  = flag.Bool("version", false, "Print version information")
	showVersionV = flag.Bool("v", false, "Print version information (shorthand)")

	// Global state
	config *common.Config
	logger arbor.ILogger
)

func init() {
	// Register custom flag for multiple config files
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func main() {
	defer common.RecoverWithCrashFile()

	// Parse command-line flags
	flag.Parse()

	// Handle version flag
	if *showVersion || *showVersionV {
		fmt.Printf("Clavis version %s\n", common.GetVersion())
		os.Exit(0)
	}

	// Startup sequence (REQUIRED ORDER):
	// 1. Load config (defaults -> file1 -> file2 -> ... -> env)
	// 2. Apply CLI overrides (highest priority)
	// 3. Initialize logger
	// 4. Print banner
	var err error

	// Auto-discover config file if not specified
	if len(configFiles) == 0 {
		// Check current directory first
		if _, err := os.Stat("clavis.toml"); err == nil {
			configFiles = append(configFiles, "clavis.toml")
		} else if _, err := os.Stat("deployments/local/clavis.toml"); err == nil {
			// Fallback: check deployments/local for users running from project root
			configFiles = append(configFiles, "deployments/local/clavis.toml")
		} else if exePath, err := os.Executable(); err == nil {
			// Last resort: a config sitting next to the binary
			candidate := filepath.Join(filepath.Dir(exePath), "clavis.toml")
			if _, err := os.Stat(candidate); err == nil {
				configFiles = append(configFiles, candidate)
			}
		}
	}

	// 1. Load configuration (default -> file1 -> file2 -> ... -> env -> CLI)
	// Later config files override earlier ones
	config, err = common.LoadFromFiles(configFiles...)
	if err != nil {
		// Use temporary logger for startup errors
		tempLogger := arbor.NewLogger()
		tempLogger.Fatal().Strs("paths", configFiles).Err(err).Msg("Failed to load configuration files")
		os.Exit(1)
	}

	// 2. Apply command-line flag overrides (highest priority)
	common.ApplyFlagOverrides(config, *treePath, *concurrency)

	// Single-shot modes run in the foreground without the background services
	if *runOnce || *oneKeyboard != "" {
		config.Schedule.Enabled = false
		config.Schedule.RunOnStart = false
		config.Watcher.Enabled = false
	}

	// 3. Initialize logger with final configuration
	logger = common.InitLogger(config)
	if logPath := common.GetLogFilePath(logger); logPath != "" {
		common.InstallCrashHandler(filepath.Dir(logPath))
	} else {
		common.InstallCrashHandler("")
	}

	// 4. Print banner
	common.PrintBanner(common.GetVersion())

	logger.Info().
		Strs("config_files", configFiles).
		Str("tree", config.Tree.Path).
		Str("environment", config.Environment).
		Msg("Application configuration loaded")

	// Initialize application
	application, err := app.New(config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize application")
	}
	defer application.Close()

	if *oneKeyboard != "" {
		buildSingleKeyboard(application, *oneKeyboard)
		return
	}

	if *runOnce {
		buildOnce(application)
		return
	}

	logger.Info().Msg("Clavis ready - Press Ctrl+C to stop")

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("Interrupt signal received, shutting down")
}

// buildOnce rebuilds the whole catalog in the foreground and exits
func buildOnce(application *app.App) {
	report, err := application.RunOnce(context.Background())
	if err != nil {
		logger.Fatal().Err(err).Msg("Catalog build failed")
	}

	logger.Info().
		Str("run_id", report.RunID).
		Int("keyboards", report.Keyboards).
		Int("failed", report.Failed).
		Int("errors", report.Errors).
		Int("warnings", report.Warnings).
		Msg("Catalog build finished")
}

// buildSingleKeyboard extracts one keyboard and prints the record without
// touching the store, mirroring what a full run would publish for it
func buildSingleKeyboard(application *app.App, keyboard string) {
	record, err := application.BuildKeyboard(context.Background(), keyboard)
	if err != nil {
		logger.Fatal().Err(err).Str("keyboard", keyboard).Msg("Keyboard build failed")
	}

	data, err := json.MarshalIndent(record, "", "    ")
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to encode keyboard record")
	}

	fmt.Println(string(data))
}
