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

	"github.com/BTreeMap/KeikobaBot/internal/api"
	"github.com/BTreeMap/KeikobaBot/internal/flow"
	"github.com/BTreeMap/KeikobaBot/internal/messaging"
	"github.com/BTreeMap/KeikobaBot/internal/notify"
	"github.com/BTreeMap/KeikobaBot/internal/scheduler"
	"github.com/BTreeMap/KeikobaBot/internal/store"
	"github.com/BTreeMap/KeikobaBot/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for KeikobaBot state data
	DefaultStateDir = "/var/lib/keikobabot"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "keikobabot.db"
	// DefaultNotifyCron fires the reminder run at 21:00 every day
	DefaultNotifyCron = "0 21 * * *"
)

func main() {
	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)
	initializeLogger(*flags.debug)

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	if err := run(flags); err != nil {
		slog.Error("KeikobaBot failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("KeikobaBot exited successfully")
}

// Config holds environment configuration
type Config struct {
	ChannelToken  string
	ChannelSecret string
	StaticDomain  string
	DatabaseURL   string
	StateDir      string
	APIAddr       string
	NotifyCron    string
}

// Flags holds command line flag values
type Flags struct {
	stateDir      *string
	dbDSN         *string
	apiAddr       *string
	notifyCron    *string
	notifyNow     *bool
	strictSession *bool
	debug         *bool

	channelToken  string
	channelSecret string
	staticDomain  string
}

// initializeLogger sets up structured logging
func initializeLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	config := Config{
		ChannelToken:  os.Getenv("LINE_CHANNEL_ACCESS_TOKEN"),
		ChannelSecret: os.Getenv("LINE_CHANNEL_SECRET"),
		StaticDomain:  os.Getenv("STATIC_DOMAIN"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		StateDir:      os.Getenv("KEIKOBABOT_STATE_DIR"),
		APIAddr:       os.Getenv("API_ADDR"),
		NotifyCron:    os.Getenv("NOTIFY_CRON"),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
	}
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
	}
	if config.APIAddr == "" {
		config.APIAddr = ":8080"
	}
	if config.NotifyCron == "" {
		config.NotifyCron = DefaultNotifyCron
	}
	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:      flag.String("state-dir", config.StateDir, "state directory for KeikobaBot data (overrides $KEIKOBABOT_STATE_DIR)"),
		dbDSN:         flag.String("db-dsn", config.DatabaseURL, "database DSN: SQLite file path or PostgreSQL URL (overrides $DATABASE_URL)"),
		apiAddr:       flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		notifyCron:    flag.String("notify-cron", config.NotifyCron, "cron schedule of the daily reminder run (overrides $NOTIFY_CRON)"),
		notifyNow:     flag.Bool("notify-now", false, "run the reminder pass once and exit"),
		strictSession: flag.Bool("strict-session", util.ParseBoolEnv("KEIKOBABOT_STRICT_SESSION", false), "use compare-and-swap session updates (overrides $KEIKOBABOT_STRICT_SESSION)"),
		debug:         flag.Bool("debug", util.ParseBoolEnv("DEBUG", false), "enable debug logging (overrides $DEBUG)"),

		channelToken:  config.ChannelToken,
		channelSecret: config.ChannelSecret,
		staticDomain:  config.StaticDomain,
	}
	flag.Parse()

	// Follow the state directory when the DSN was left at its default.
	if *flags.dbDSN == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
	}
	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if store.DetectDSNType(*flags.dbDSN) == "sqlite" {
		stateDir := filepath.Dir(*flags.dbDSN)
		if err := os.MkdirAll(stateDir, 0755); err != nil {
			return err
		}
	}
	return nil
}

// newStore opens the storage backend matching the DSN.
func newStore(dsn string) (store.Store, error) {
	if store.DetectDSNType(dsn) == "postgres" {
		slog.Info("Using PostgreSQL store")
		return store.NewPostgresStore(store.WithPostgresDSN(dsn))
	}
	slog.Info("Using SQLite store", "path", dsn)
	return store.NewSQLiteStore(store.WithSQLiteDSN(dsn))
}

func run(flags Flags) error {
	st, err := newStore(*flags.dbDSN)
	if err != nil {
		return err
	}
	defer st.Close()

	msgService, err := messaging.NewLineService(
		messaging.WithChannelToken(flags.channelToken),
	)
	if err != nil {
		return err
	}

	engine := flow.NewEngine(st, msgService, flow.Config{
		StaticDomain:         flags.staticDomain,
		StrictSessionUpdates: *flags.strictSession,
	})
	notifier := notify.NewNotifier(st, msgService)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *flags.notifyNow {
		slog.Info("Running one reminder pass")
		return notifier.Run(ctx)
	}

	sched := scheduler.NewScheduler()
	defer sched.Stop()
	if err := sched.AddJob(*flags.notifyCron, func() {
		if err := notifier.Run(context.Background()); err != nil {
			slog.Error("Scheduled reminder run failed", "error", err)
		}
	}); err != nil {
		return err
	}
	slog.Info("Reminder schedule registered", "cron", *flags.notifyCron)

	server := api.NewServer(st, engine,
		api.WithAddr(*flags.apiAddr),
		api.WithChannelSecret(flags.channelSecret),
	)
	return server.Start(ctx)
}
