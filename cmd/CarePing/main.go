package main

import (
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"github.com/karunahq/CarePing/internal/api"
	"github.com/karunahq/CarePing/internal/app"
	"github.com/karunahq/CarePing/internal/delivery"
	"github.com/karunahq/CarePing/internal/email"
	"github.com/karunahq/CarePing/internal/models"
	"github.com/karunahq/CarePing/internal/scheduler"
	"github.com/karunahq/CarePing/internal/sms"
	"github.com/karunahq/CarePing/internal/store"
	"github.com/karunahq/CarePing/internal/telegram"
	"github.com/karunahq/CarePing/internal/util"
	"github.com/karunahq/CarePing/internal/whatsapp"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for CarePing state data
	DefaultStateDir = "/var/lib/careping"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "careping.db"
	// DefaultWhatsAppDBFileName is the default whatsmeow SQLite filename
	DefaultWhatsAppDBFileName = "whatsmeow.db"
)

// Config holds environment configuration
type Config struct {
	DatabaseURL     string
	StateDir        string
	APIAddr         string
	WhatsAppEnabled bool
	WhatsAppDSN     string
	TelegramToken   string
	TwilioSID       string
	SMTPHost        string
	SMTPFrom        string
}

// Flags holds command line flag values
type Flags struct {
	stateDir *string
	dbDSN    *string
	apiAddr  *string
	qrOutput *string
	numeric  *bool
	whatsapp *bool
	telegram *bool
	sms      *bool
	email    *bool
}

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	cfg := buildAppConfig(config, flags)

	slog.Info("Bootstrapping CarePing with configured modules")
	slog.Debug("Final configuration",
		"state_dir", *flags.stateDir, "dsn_set", *flags.dbDSN != "", "api_addr", *flags.apiAddr,
		"whatsapp", cfg.WhatsAppEnabled, "telegram", cfg.TelegramEnabled,
		"sms", cfg.SMSEnabled, "email", cfg.EmailEnabled)

	if err := app.Run(cfg); err != nil {
		slog.Error("CarePing failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("CarePing exited successfully")
}

// initializeLogger sets up structured logging. The level comes from
// CAREPING_LOG_LEVEL (debug, info, warn, error) and defaults to info.
func initializeLogger() {
	level := slog.LevelInfo
	switch strings.ToLower(os.Getenv("CAREPING_LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		StateDir:        os.Getenv("CAREPING_STATE_DIR"),
		APIAddr:         os.Getenv("API_ADDR"),
		WhatsAppEnabled: util.ParseBoolEnv("WHATSAPP_ENABLED", false),
		WhatsAppDSN:     os.Getenv("WHATSAPP_DB_DSN"),
		TelegramToken:   os.Getenv("TELEGRAM_BOT_TOKEN"),
		TwilioSID:       os.Getenv("TWILIO_ACCOUNT_SID"),
		SMTPHost:        os.Getenv("SMTP_HOST"),
		SMTPFrom:        os.Getenv("SMTP_FROM"),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No CAREPING_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}
	if config.WhatsAppDSN == "" {
		config.WhatsAppDSN = filepath.Join(config.StateDir, DefaultWhatsAppDBFileName)
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"CAREPING_STATE_DIR", config.StateDir,
		"API_ADDR", config.APIAddr,
		"WHATSAPP_ENABLED", config.WhatsAppEnabled,
		"TELEGRAM_BOT_TOKEN_SET", config.TelegramToken != "",
		"TWILIO_ACCOUNT_SID_SET", config.TwilioSID != "",
		"SMTP_HOST_SET", config.SMTPHost != "")

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir: flag.String("state-dir", config.StateDir, "state directory for CarePing data (overrides $CAREPING_STATE_DIR)"),
		dbDSN:    flag.String("db-dsn", config.DatabaseURL, "database DSN for the user-data store (overrides $DATABASE_URL)"),
		apiAddr:  flag.String("api-addr", config.APIAddr, "admin API address (overrides $API_ADDR)"),
		qrOutput: flag.String("qr-output", "", "path to write WhatsApp login QR code"),
		numeric:  flag.Bool("numeric-code", false, "use numeric WhatsApp login code instead of QR code"),
		whatsapp: flag.Bool("whatsapp", config.WhatsAppEnabled, "enable the WhatsApp channel (overrides $WHATSAPP_ENABLED)"),
		telegram: flag.Bool("telegram", config.TelegramToken != "", "enable the Telegram channel"),
		sms:      flag.Bool("sms", config.TwilioSID != "", "enable the SMS channel"),
		email:    flag.Bool("email", config.SMTPHost != "", "enable the email channel"),
	}
	flag.Parse()
	return flags
}

// ensureDirectoriesExist creates the state directory when the store runs on
// a SQLite file inside it.
func ensureDirectoriesExist(flags Flags) error {
	if store.DetectDSNType(*flags.dbDSN) == "postgres" {
		return nil
	}
	return os.MkdirAll(*flags.stateDir, 0o755)
}

// buildAppConfig assembles module options from flags and environment.
func buildAppConfig(config Config, flags Flags) app.Config {
	cfg := app.Config{
		DeliveryConfig: delivery.DefaultConfig(),
	}

	if store.DetectDSNType(*flags.dbDSN) == "postgres" {
		cfg.StoreOpts = append(cfg.StoreOpts, store.WithPostgresDSN(*flags.dbDSN))
	} else {
		cfg.StoreOpts = append(cfg.StoreOpts, store.WithSQLiteDSN(*flags.dbDSN))
	}
	if *flags.apiAddr != "" {
		cfg.APIOpts = append(cfg.APIOpts, api.WithAddr(*flags.apiAddr))
	}

	if *flags.whatsapp {
		cfg.WhatsAppEnabled = true
		cfg.ChannelConfigs = append(cfg.ChannelConfigs,
			app.ChannelTuningFromEnv(whatsapp.ChannelName, models.ChannelKindAsync))
		cfg.WhatsAppOpts = append(cfg.WhatsAppOpts, whatsapp.WithDBDSN(config.WhatsAppDSN))
		if *flags.qrOutput != "" {
			cfg.WhatsAppOpts = append(cfg.WhatsAppOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
		}
		if *flags.numeric {
			cfg.WhatsAppOpts = append(cfg.WhatsAppOpts, whatsapp.WithNumericCode())
		}
	}
	if *flags.telegram {
		cfg.TelegramEnabled = true
		cfg.ChannelConfigs = append(cfg.ChannelConfigs,
			app.ChannelTuningFromEnv(telegram.ChannelName, models.ChannelKindSync))
		cfg.TelegramOpts = append(cfg.TelegramOpts, telegram.WithToken(config.TelegramToken))
		if d := util.ParseDurationEnv("TELEGRAM_POLL_TIMEOUT", 0); d > 0 {
			cfg.TelegramOpts = append(cfg.TelegramOpts, telegram.WithPollTimeout(d))
		}
	}
	if *flags.sms {
		cfg.SMSEnabled = true
		cfg.ChannelConfigs = append(cfg.ChannelConfigs,
			app.ChannelTuningFromEnv(sms.ChannelName, models.ChannelKindSync))
		// sms.New reads TWILIO_* from the environment when no options are given.
		cfg.SMSOpts = append(cfg.SMSOpts, sms.WithFromNumber(os.Getenv("TWILIO_FROM_NUMBER")))
	}
	if *flags.email {
		cfg.EmailEnabled = true
		cfg.ChannelConfigs = append(cfg.ChannelConfigs,
			app.ChannelTuningFromEnv(email.ChannelName, models.ChannelKindSync))
		cfg.EmailOpts = append(cfg.EmailOpts,
			email.WithSMTP(config.SMTPHost, util.ParseIntEnv("SMTP_PORT", 587)),
			email.WithCredentials(os.Getenv("SMTP_USERNAME"), os.Getenv("SMTP_PASSWORD")),
			email.WithFrom(config.SMTPFrom),
		)
	}

	if d := util.ParseDurationEnv("SEND_TIMEOUT", 0); d > 0 {
		cfg.DeliveryConfig.SendTimeout = d
	}
	if d := util.ParseDurationEnv("HEALTH_CHECK_INTERVAL", 0); d > 0 {
		cfg.DeliveryConfig.HealthInterval = d
	}
	if d := util.ParseDurationEnv("STUCK_CHANNEL_COOLDOWN", 0); d > 0 {
		cfg.DeliveryConfig.StuckCooldown = d
	}
	if d := util.ParseDurationEnv("CONFLICT_WINDOW", 0); d > 0 {
		cfg.SchedulerOpts = append(cfg.SchedulerOpts, scheduler.WithConflictWindow(d))
	}

	return cfg
}
