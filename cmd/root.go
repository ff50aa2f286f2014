package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/itrack/internal/output"
	"github.com/joescharf/itrack/internal/service"
	"github.com/joescharf/itrack/internal/store"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	logger    *slog.Logger
	dataStore store.Store
	issueSvc  *service.IssueService

	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "itrack",
	Short: "Issue tracker - create, search, filter and page through issues",
	Long: `itrack is a small issue tracker.
It serves a JSON REST API for issues, exposes the same operations as MCP
tools, and offers CLI commands for working with the store directly.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	err := rootCmd.Execute()
	closeStore()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/itrack/config.yaml)")
}

func initConfig() {
	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		configDir, err := configDirFunc()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("ITRACK")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	defaultConfigDir, _ := configDirFunc()
	setDefaults(defaultConfigDir)

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

// setDefaults registers every config key with its default value.
func setDefaults(stateDir string) {
	viper.SetDefault("state_dir", stateDir)
	viper.SetDefault("db.driver", store.DriverSQLite)
	viper.SetDefault("db.path", filepath.Join(stateDir, "itrack.db"))
	viper.SetDefault("db.dsn", "")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.shutdown_timeout", "10s")
	viper.SetDefault("cors.allowed_origins", []string{"http://localhost:4200"})
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")
	viper.SetDefault("list.default_page_size", service.DefaultPageSize)
	viper.SetDefault("list.max_page_size", service.MaxPageSize)
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose

	l, err := newLogger(os.Stderr, viper.GetString("log.level"), viper.GetString("log.format"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v, using text/info\n", err)
		l = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	logger = l
	slog.SetDefault(logger)

	// The store is opened lazily so config/version commands run without a db.
}

// newLogger builds a slog.Logger writing to w. level is one of debug, info,
// warn or error; format is text or json. --verbose forces debug.
func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log.level %q", level)
	}
	if verbose {
		lvl = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log.format %q (want text or json)", format)
	}
}

// storeConfig reads the backend selection from viper.
func storeConfig() store.Config {
	return store.Config{
		Driver: viper.GetString("db.driver"),
		Path:   viper.GetString("db.path"),
		DSN:    viper.GetString("db.dsn"),
	}
}

// getStore returns the shared store, initializing it on first call.
func getStore() (store.Store, error) {
	if dataStore != nil {
		return dataStore, nil
	}

	s, err := store.Open(cmdContext(), storeConfig())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	dataStore = s
	return dataStore, nil
}

// getService returns the shared issue service, opening the store if needed.
func getService() (*service.IssueService, error) {
	if issueSvc != nil {
		return issueSvc, nil
	}

	s, err := getStore()
	if err != nil {
		return nil, err
	}

	issueSvc = service.New(s, service.Config{
		DefaultPageSize: viper.GetInt("list.default_page_size"),
		MaxPageSize:     viper.GetInt("list.max_page_size"),
		Logger:          logger,
	})
	return issueSvc, nil
}

// cmdContext returns the root command's context, or Background before
// Execute has set one.
func cmdContext() context.Context {
	if ctx := rootCmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func closeStore() {
	if dataStore != nil {
		_ = dataStore.Close()
		dataStore = nil
		issueSvc = nil
	}
}
