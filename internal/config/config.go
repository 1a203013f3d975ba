package config // package config loads application configuration from environment variables

import (
	"log"     // log is used to report configuration errors and halt execution
	"os"      // os provides access to environment variables
	"strconv" // strconv converts strings to other types
	"time"    // time parses duration-valued settings
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  The types reflect how the values are used in
// the application: strings for identifiers and secrets, ints for costs,
// durations for windows and lead times.
type Config struct {
	Env            string // application environment (e.g. "dev", "prod")
	Port           string // HTTP port to listen on
	DBUser         string // database username
	DBPass         string // database password (optional)
	DBHost         string // database host address
	DBPort         string // database port number
	DBName         string // database name
	JWTSecret      string // secret used to sign JWTs
	AccessTTLMin   int    // access token time‑to‑live in minutes
	RefreshTTLDays int    // refresh token time‑to‑live in days
	BcryptCost     int    // bcrypt cost for password hashing

	PayMongoSecretKey     string // secret API key for the PayMongo gateway
	PayMongoWebhookSecret string // shared secret for webhook signature checks
	PaymentSuccessURL     string // redirect target after a successful checkout
	PaymentCancelURL      string // redirect target after an abandoned checkout

	PaymentWindow  time.Duration // how long a pending appointment holds its slot
	SweepInterval  time.Duration // how often the expiry sweeper runs
	CancelLeadTime time.Duration // minimum notice for a patient cancellation
	BookingLeadDays    int // earliest bookable day, counted from today
	BookingHorizonDays int // latest bookable day, counted from today

	LogLevel string // minimum log level (debug/info/warn/error)
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.  Settings with a
// sensible default are optional.
func Load() Config {
	return Config{
		Env:            must("APP_ENV"),  // environment (dev/test/prod)
		Port:           must("APP_PORT"), // port to bind the HTTP server
		DBUser:         must("DB_USER"),  // database user
		DBPass:         os.Getenv("DB_PASS"), // database password (empty allowed)
		DBHost:         must("DB_HOST"),      // database host
		DBPort:         must("DB_PORT"),      // database port
		DBName:         must("DB_NAME"),      // database name
		JWTSecret:      must("JWT_SECRET"),   // secret used for signing JWTs
		AccessTTLMin:   mustInt("ACCESS_TOKEN_TTL_MIN"),   // TTL for access tokens in minutes
		RefreshTTLDays: mustInt("REFRESH_TOKEN_TTL_DAYS"), // TTL for refresh tokens in days
		BcryptCost:     mustInt("BCRYPT_COST"),            // bcrypt cost factor

		PayMongoSecretKey:     must("PAYMONGO_SECRET_KEY"),     // gateway API key
		PayMongoWebhookSecret: must("PAYMONGO_WEBHOOK_SECRET"), // webhook HMAC secret
		PaymentSuccessURL:     must("PAYMENT_SUCCESS_URL"),     // post-payment redirect
		PaymentCancelURL:      must("PAYMENT_CANCEL_URL"),      // abandoned-checkout redirect

		PaymentWindow:      envDur("PAYMENT_WINDOW", 15*time.Minute),  // slot hold duration
		SweepInterval:      envDur("SWEEP_INTERVAL", time.Minute),     // sweeper cadence
		CancelLeadTime:     envDur("CANCEL_LEAD_TIME", 12*time.Hour),  // cancellation notice
		BookingLeadDays:    envInt("BOOKING_LEAD_DAYS", 1),            // no same-day booking
		BookingHorizonDays: envInt("BOOKING_HORIZON_DAYS", 90),        // booking window end

		LogLevel: envStr("LOG_LEVEL", "info"),
	}
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

// mustInt is like must() but converts the retrieved string into an integer.
// If conversion fails, the application logs a fatal error and exits.
func mustInt(key string) int {
	s := must(key)
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", key, s)
	}
	return n
}
