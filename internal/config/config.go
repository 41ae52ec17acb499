package config // package config loads application configuration from environment variables

import (
	"log"      // log is used to report configuration errors and halt execution
	"os"       // os provides access to environment variables
	"strconv"  // strconv converts strings to other types
)

// Application-level constants.  These mirror the festival's business rules
// and are compiled in rather than read from the environment.
const (
	OTPTries    = 3  // resend cycles allowed across code lifetimes
	OTPAttempts = 10 // verification attempts allowed per code lifetime

	OTPExpiresMin = 5  // minutes a code stays valid
	OTPResendSec  = 30 // seconds before an active code may be re-sent

	RegistrationFee = 1 // rupees charged for festival registration
)

// GSheetHeaders is the header row written to every freshly created roster
// spreadsheet.  Enrollment rows follow the same column order.
var GSheetHeaders = []interface{}{"user_id", "name", "email", "phone", "zeal_id"}

// CloudinaryDirs lists the upload directories accepted during signup:
// index 0 is the id-card folder, index 1 the photo folder, index 2 merch.
var CloudinaryDirs = []string{"idCard", "photo", "merch"}

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  Secrets are kept here and handed to components
// at construction; business logic never reads the environment itself.
type Config struct {
	Env  string // application environment (e.g. "dev", "prod")
	Port string // HTTP port to listen on

	DBUser string // database username
	DBPass string // database password (optional)
	DBHost string // database host address
	DBPort string // database port number
	DBName string // database name

	OTPSecret          string // secret the OTP values are encrypted under
	InitTokenSecret    string // secret signing init tokens
	AccessTokenSecret  string // secret signing access tokens
	RefreshTokenSecret string // secret signing refresh tokens
	AccessTTLMin       int    // access token time-to-live in minutes
	RefreshTTLDays     int    // refresh token time-to-live in days
	InitTTLDays        int    // init token time-to-live in days

	RazorpayKeyID         string // gateway API key id
	RazorpayAPISecret     string // gateway API secret (also signs order|payment strings)
	RazorpayWebhookSecret string // separate secret authenticating webhook bodies

	SMTPHost   string // outbound mail server host
	SMTPPort   int    // outbound mail server port
	MailerUser string // mail account the OTPs are sent from
	MailerPass string // app-specific mail password
	MailerName string // display name on outgoing mail

	GoogleCredsJSON string // service account credentials JSON for the roster

	CloudinaryCloudName string // cloud name validated in uploaded image URLs
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.
func Load() Config {
	return Config{
		Env:  must("APP_ENV"),
		Port: must("APP_PORT"),

		DBUser: must("DB_USER"),
		DBPass: os.Getenv("DB_PASS"), // empty allowed
		DBHost: must("DB_HOST"),
		DBPort: must("DB_PORT"),
		DBName: must("DB_NAME"),

		OTPSecret:          must("OTP_SECRET"),
		InitTokenSecret:    must("INIT_TOKEN_SECRET"),
		AccessTokenSecret:  must("ACCESS_TOKEN_SECRET"),
		RefreshTokenSecret: must("REFRESH_TOKEN_SECRET"),
		AccessTTLMin:       mustInt("ACCESS_TOKEN_TTL_MIN"),
		RefreshTTLDays:     mustInt("REFRESH_TOKEN_TTL_DAYS"),
		InitTTLDays:        mustInt("INIT_TOKEN_TTL_DAYS"),

		RazorpayKeyID:         must("RAZORPAY_KEY_ID"),
		RazorpayAPISecret:     must("RAZORPAY_API_SECRET"),
		RazorpayWebhookSecret: must("RAZORPAY_WEBHOOK_SECRET"),

		SMTPHost:   must("SMTP_HOST"),
		SMTPPort:   mustInt("SMTP_PORT"),
		MailerUser: must("MAILER_USER"),
		MailerPass: must("MAILER_PASSWORD"),
		MailerName: getenv("MAILER_NAME", "Zealicon"),

		GoogleCredsJSON: must("GOOGLE_CREDENTIALS_JSON"),

		CloudinaryCloudName: must("CLOUDINARY_CLOUD_NAME"),
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
