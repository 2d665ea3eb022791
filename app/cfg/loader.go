package cfg

import (
	"cmp"
	"fmt"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Collection sources
	FederatedBaseURL string `long:"federated-base-url" env:"FEDERATED_BASE_URL" default:"https://bird.makeup" description:"Base URL of the federated bridge serving account outboxes"`
	MirrorBaseURL    string `long:"mirror-base-url" env:"MIRROR_BASE_URL" description:"Base URL of an RSS mirror instance (optional)"`
	LiveUsername     string `long:"live-username" env:"LIVE_USERNAME" description:"Login for the live rendered-view fallback (optional)"`
	LivePassword     string `long:"live-password" env:"LIVE_PASSWORD" description:"Password for the live rendered-view fallback (optional)"`

	// Collection behavior
	WindowDays   int    `long:"window-days" env:"WINDOW_DAYS" default:"1" description:"Recency window in days"`
	MaxItems     int    `long:"max-items" env:"MAX_ITEMS" default:"50" description:"Maximum posts collected per account"`
	MinPosts     int    `long:"min-posts" env:"MIN_POSTS" default:"5" description:"Minimum posts before the next fallback source is tried"`
	AccountDelay int    `long:"account-delay" env:"ACCOUNT_DELAY" default:"2" description:"Politeness delay between accounts in seconds"`
	AccountsFile string `long:"accounts-file" env:"ACCOUNTS_FILE" default:"./accounts.yaml" description:"YAML file listing tracked accounts"`

	// Persistence
	DBPath string `long:"db-path" env:"DB_PATH" default:"./featherwatch.db" description:"Path to the sqlite database file"`

	// Reporting
	ReportTime     string  `long:"report-time" env:"REPORT_TIME" default:"18:00" description:"Local time of day for the daily run (HH:MM)"`
	SMTPHost       string  `long:"smtp-host" env:"SMTP_HOST" description:"SMTP server host (empty disables email delivery)"`
	SMTPPort       int     `long:"smtp-port" env:"SMTP_PORT" default:"587" description:"SMTP server port"`
	SMTPUsername   string  `long:"smtp-username" env:"SMTP_USERNAME" description:"SMTP username"`
	SMTPPassword   string  `long:"smtp-password" env:"SMTP_PASSWORD" description:"SMTP password"`
	EmailFrom      string  `long:"email-from" env:"EMAIL_FROM" description:"Sender address for report email"`
	EmailTo        string  `long:"email-to" env:"EMAIL_TO" description:"Recipient address for report email"`
	ShiftThreshold float64 `long:"shift-threshold" env:"SHIFT_THRESHOLD" default:"0.3" description:"Day-over-day sentiment change that counts as a shift"`

	// Sentiment keyword buckets
	OilKeywords         []string `long:"oil-keyword" env:"OIL_KEYWORDS" env-delim:"," default:"oil" default:"crude" default:"opec" default:"brent" default:"wti" description:"Keywords marking a post oil-related"`
	ElectricityKeywords []string `long:"electricity-keyword" env:"ELECTRICITY_KEYWORDS" env-delim:"," default:"electricity" default:"power grid" default:"energy price" default:"kwh" description:"Keywords marking a post electricity-related"`

	// HTTP server
	Port         string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	APIAccessKey string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (optional)"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"featherwatch/1.0" description:"User agent string for HTTP requests"`
	Timezone  string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/New_York)"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
	RunNow    bool   `long:"run-now" description:"Enqueue a full collection and report run immediately on startup"`
}

var globalCfg *Cfg

func Load() (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		FederatedBaseURL:    raw.FederatedBaseURL,
		MirrorBaseURL:       raw.MirrorBaseURL,
		LiveUsername:        raw.LiveUsername,
		LivePassword:        raw.LivePassword,
		WindowDays:          raw.WindowDays,
		MaxItems:            raw.MaxItems,
		MinPosts:            raw.MinPosts,
		AccountDelay:        time.Duration(raw.AccountDelay) * time.Second,
		AccountsFile:        raw.AccountsFile,
		DBPath:              raw.DBPath,
		ReportTime:          raw.ReportTime,
		SMTPHost:            raw.SMTPHost,
		SMTPPort:            raw.SMTPPort,
		SMTPUsername:        raw.SMTPUsername,
		SMTPPassword:        raw.SMTPPassword,
		EmailFrom:           raw.EmailFrom,
		EmailTo:             raw.EmailTo,
		ShiftThreshold:      raw.ShiftThreshold,
		OilKeywords:         raw.OilKeywords,
		ElectricityKeywords: raw.ElectricityKeywords,
		Port:                raw.Port,
		APIAccessKey:        raw.APIAccessKey,
		UserAgent:           raw.UserAgent,
		Timezone:            raw.Timezone,
		Debug:               raw.Debug,
		RunNow:              raw.RunNow,
		Version:             GetVersion(),
	}

	if _, err := time.Parse("15:04", cfg.ReportTime); err != nil {
		return nil, fmt.Errorf("invalid report time %q: %w", cfg.ReportTime, err)
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
			fmt.Printf("Timezone configured: %s\n", timezone)
		}
	}
	return nil
}
