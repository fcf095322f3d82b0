package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/BTreeMap/SalesPipe/internal/api"
	"github.com/BTreeMap/SalesPipe/internal/flow"
	"github.com/BTreeMap/SalesPipe/internal/genai"
	"github.com/BTreeMap/SalesPipe/internal/messaging"
	"github.com/BTreeMap/SalesPipe/internal/store"
	"github.com/BTreeMap/SalesPipe/internal/util"
)

// Default configuration constants.
const (
	// DefaultStateDir is the default directory for SalesPipe state data
	DefaultStateDir = "/var/lib/salespipe"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "salespipe.db"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	guardCfg := buildGuardConfig()
	if err := guardCfg.Validate(); err != nil {
		slog.Error("Invalid guard configuration", "error", err)
		os.Exit(1)
	}

	st, err := buildStore(flags)
	if err != nil {
		slog.Error("Failed to initialize store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	engine, err := flow.NewEngine(st, guardCfg)
	if err != nil {
		slog.Error("Failed to initialize engine", "error", err)
		os.Exit(1)
	}

	aiClient, err := genai.NewClient(genai.WithAPIKey(*flags.openaiKey))
	if err != nil {
		slog.Error("Failed to initialize GenAI client", "error", err)
		os.Exit(1)
	}
	flow.RegisterDefaultExecutors(aiClient, nil, nil)

	msgService, err := buildMessagingService()
	if err != nil {
		slog.Error("Failed to initialize messaging service", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	apiOpts := []api.Option{}
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	server := api.NewServer(engine, msgService, apiOpts...)

	slog.Info("Bootstrapping SalesPipe with configured modules")
	slog.Debug("Final configuration", "state_dir", *flags.stateDir, "dsn_set", *flags.dbDSN != "", "api_addr", *flags.apiAddr)
	if err := server.Run(ctx); err != nil {
		slog.Error("SalesPipe failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("SalesPipe exited successfully")
}

// Config holds environment configuration.
type Config struct {
	DbDriver    string
	DatabaseURL string
	StateDir    string
	OpenAIKey   string
	APIAddr     string
}

// Flags holds command line flag values.
type Flags struct {
	stateDir  *string
	dbDriver  *string
	dbDSN     *string
	openaiKey *string
	apiAddr   *string
}

// initializeLogger sets up structured logging. Debug logging is enabled via
// SALESPIPE_DEBUG.
func initializeLogger() {
	level := slog.LevelInfo
	if util.ParseBoolEnv("SALESPIPE_DEBUG", false) {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file.
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DbDriver:    os.Getenv("SALESPIPE_DB_DRIVER"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		StateDir:    os.Getenv("SALESPIPE_STATE_DIR"),
		OpenAIKey:   os.Getenv("OPENAI_API_KEY"),
		APIAddr:     os.Getenv("API_ADDR"),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No SALESPIPE_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}

	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"SALESPIPE_DB_DRIVER", config.DbDriver,
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"SALESPIPE_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"API_ADDR", config.APIAddr)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults.
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:  flag.String("state-dir", config.StateDir, "state directory for SalesPipe data (overrides $SALESPIPE_STATE_DIR)"),
		dbDriver:  flag.String("db-driver", config.DbDriver, "database driver: sqlite3 or postgres (overrides $SALESPIPE_DB_DRIVER)"),
		dbDSN:     flag.String("db-dsn", config.DatabaseURL, "database DSN (overrides $DATABASE_URL)"),
		openaiKey: flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		apiAddr:   flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
	}
	flag.Parse()
	return flags
}

// buildGuardConfig reads the guard-layer tunables from the environment.
func buildGuardConfig() flow.Config {
	cfg := flow.DefaultConfig()
	cfg.WarnThreshold = util.ParseIntEnv("SALESPIPE_WARN_THRESHOLD", cfg.WarnThreshold)
	cfg.SoftResetThreshold = util.ParseIntEnv("SALESPIPE_SOFT_RESET_THRESHOLD", cfg.SoftResetThreshold)
	cfg.HardEscalateThreshold = util.ParseIntEnv("SALESPIPE_HARD_ESCALATE_THRESHOLD", cfg.HardEscalateThreshold)
	cfg.HistoryLimit = util.ParseIntEnv("SALESPIPE_HISTORY_LIMIT", cfg.HistoryLimit)
	cfg.CheckpointSoftLimitBytes = util.ParseIntEnv("SALESPIPE_CHECKPOINT_SOFT_LIMIT", cfg.CheckpointSoftLimitBytes)
	cfg.MaxMessageChars = util.ParseIntEnv("SALESPIPE_MAX_MESSAGE_CHARS", cfg.MaxMessageChars)
	cfg.RetryMaxAttempts = util.ParseIntEnv("SALESPIPE_RETRY_MAX_ATTEMPTS", cfg.RetryMaxAttempts)
	return cfg
}

// buildStore selects the persistence backend from the driver flag and DSN.
func buildStore(flags Flags) (store.Store, error) {
	return store.NewStore(store.WithDriver(*flags.dbDriver), store.WithDSN(*flags.dbDSN))
}

// buildMessagingService wires Twilio when credentials are present, falling
// back to the mock channel for local development.
func buildMessagingService() (messaging.Service, error) {
	if os.Getenv("TWILIO_ACCOUNT_SID") != "" {
		return messaging.NewTwilioService()
	}
	slog.Warn("No Twilio credentials configured, using mock messaging service")
	return messaging.NewMockService(), nil
}
