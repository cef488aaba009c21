package config // package config loads application configuration from environment variables

import (
	"log"     // log is used to report configuration errors and halt execution
	"os"      // os provides access to environment variables
	"strconv" // strconv converts strings to other types
	"strings" // strings splits comma-separated lists
)

// Flow mode values.  The relay runs in exactly one mode per deployment:
// "immediate" authorizes at checkout and captures after approval, while
// "deferred" saves a card on file at checkout and charges off-session after
// approval.
const (
	FlowImmediate = "immediate"
	FlowDeferred  = "deferred"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  The struct is built once in main and passed into
// every component constructor; nothing reads the environment after startup.
type Config struct {
	Env                 string   // application environment (e.g. "dev", "prod")
	Port                string   // HTTP port to listen on
	FlowMode            string   // "immediate" or "deferred"
	StripeSecretKey     string   // processor secret API key
	WebhookSecret       string   // webhook signing secret; empty disables verification (degrade-safe)
	LedgerBaseURL       string   // base URL of the reservation ledger script endpoint
	LedgerToken         string   // optional bearer token appended to ledger calls
	AllowedOrigins      []string // CORS allow-list
	CheckoutURLBase     string   // base URL for success/cancel redirect pages
	ActionURLBase       string   // base URL for the authentication-completion page
	PlatformFeeBPS      int64    // platform fee in basis points, 0 disables
	PlatformFeeFixed    int64    // fixed platform fee in minor units, 0 disables
	AccountCountry      string   // country for new connected accounts
	AccountBusinessType string   // optional business type for new connected accounts
	AdminJWTSecret      string   // secret guarding operator endpoints; empty disables the guard
	AMQPURL             string   // message broker URL; empty disables status events
	JournalDBUser       string   // event journal database username (optional)
	JournalDBPass       string   // event journal database password (optional)
	JournalDBHost       string   // event journal database host (optional)
	JournalDBPort       string   // event journal database port (optional)
	JournalDBName       string   // event journal database name (optional)
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.
func Load() Config {
	cfg := Config{
		Env:                 must("APP_ENV"),
		Port:                must("APP_PORT"),
		FlowMode:            getenv("FLOW_MODE", FlowImmediate),
		StripeSecretKey:     must("STRIPE_SECRET_KEY"),
		WebhookSecret:       os.Getenv("STRIPE_WEBHOOK_SECRET"),
		LedgerBaseURL:       must("LEDGER_BASE_URL"),
		LedgerToken:         os.Getenv("LEDGER_TOKEN"),
		AllowedOrigins:      splitList(getenv("ALLOWED_ORIGINS", "*")),
		CheckoutURLBase:     must("CHECKOUT_URL_BASE"),
		ActionURLBase:       os.Getenv("ACTION_URL_BASE"),
		PlatformFeeBPS:      envInt64("PLATFORM_FEE_BPS", 0),
		PlatformFeeFixed:    envInt64("PLATFORM_FEE_FIXED", 0),
		AccountCountry:      getenv("CONNECT_ACCOUNT_COUNTRY", "US"),
		AccountBusinessType: os.Getenv("CONNECT_BUSINESS_TYPE"),
		AdminJWTSecret:      os.Getenv("ADMIN_JWT_SECRET"),
		AMQPURL:             getenv("RABBITMQ_URL", os.Getenv("AMQP_URL")),
		JournalDBUser:       os.Getenv("JOURNAL_DB_USER"),
		JournalDBPass:       os.Getenv("JOURNAL_DB_PASS"),
		JournalDBHost:       os.Getenv("JOURNAL_DB_HOST"),
		JournalDBPort:       getenv("JOURNAL_DB_PORT", "3306"),
		JournalDBName:       os.Getenv("JOURNAL_DB_NAME"),
	}
	if cfg.FlowMode != FlowImmediate && cfg.FlowMode != FlowDeferred {
		log.Fatalf("invalid FLOW_MODE: %q (want %q or %q)", cfg.FlowMode, FlowImmediate, FlowDeferred)
	}
	if cfg.ActionURLBase == "" {
		cfg.ActionURLBase = cfg.CheckoutURLBase
	}
	return cfg
}

// JournalEnabled reports whether enough database variables are set to open
// the webhook event journal.  The journal is optional; without it event
// deduplication is disabled and every delivery is processed.
func (c Config) JournalEnabled() bool {
	return c.JournalDBHost != "" && c.JournalDBUser != "" && c.JournalDBName != ""
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

// getenv returns the value of an environment variable or a default when the
// variable is unset or empty.
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// envInt64 is like getenv but converts the value to an int64, falling back
// to the default on parse failure.
func envInt64(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		return n
	}
	return def
}

// splitList splits a comma-separated value into trimmed, non-empty items.
func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
