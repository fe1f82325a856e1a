package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the API and ops processes.
// Values come from env (optionally loaded from a .env file by the process).
// No business logic should read raw environment variables.
type Config struct {
	App        AppConfig
	DB         DBConfig
	Redis      RedisConfig
	Auth       AuthConfig
	Gemini     GeminiConfig
	Apify      ApifyConfig
	ContactOut ContactOutConfig
	VAPI       VAPIConfig
	Pricing    PricingConfig
	Pipeline   PipelineConfig
	AMQP       AMQPConfig
	SMTP       SMTPConfig
}

type AppConfig struct {
	Env  string
	Port int
	// PublicURL is the externally reachable base URL (used for the VAPI server URL).
	PublicURL   string
	CORSOrigins []string
	LogLevel    string
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// SSLMode: disable, require, verify-ca, verify-full
	SSLMode string

	AutoMigrate bool
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
}

type AuthConfig struct {
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

type GeminiConfig struct {
	APIKey          string
	BaseURL         string
	ValidationModel string
	GenerationModel string
}

type ApifyConfig struct {
	Token        string
	BaseURL      string
	MapsActor    string
	SyncActor    string
	PollInterval time.Duration
}

type ContactOutConfig struct {
	APIKey  string
	BaseURL string
}

type VAPIConfig struct {
	APIKey        string
	BaseURL       string
	WebhookSecret string
	PhoneNumberID string
	VoiceID       string
}

// PricingConfig holds the credit price of each billable event.
type PricingConfig struct {
	LeadScraped       int64
	LeadEnriched      int64
	LeadCalled        int64
	AppointmentBooked int64
}

type PipelineConfig struct {
	Workers          int
	VendorRatePerSec float64
	StuckAfter       time.Duration
	RecoveryInterval time.Duration
	WebhookDedupTTL  time.Duration
}

type AMQPConfig struct {
	URL string
}

type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}
	c.App.PublicURL = strings.TrimRight(strings.TrimSpace(os.Getenv("APP_PUBLIC_URL")), "/")
	c.App.CORSOrigins = splitList(os.Getenv("APP_CORS_ORIGINS"))
	c.App.LogLevel = strings.TrimSpace(os.Getenv("LOG_LEVEL"))

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	{
		n, err := mustInt("DB_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
	}
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))
	c.DB.AutoMigrate = optionalBool("DB_AUTO_MIGRATE")

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	{
		n, err := mustInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}
	c.Redis.Password = os.Getenv("REDIS_PASSWORD")

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	c.Auth.AccessTokenTTL = mustDuration("JWT_ACCESS_TTL")
	c.Auth.RefreshTokenTTL = mustDuration("JWT_REFRESH_TTL")

	c.Gemini.APIKey = os.Getenv("GEMINI_API_KEY")
	c.Gemini.BaseURL = strings.TrimSpace(os.Getenv("GEMINI_BASE_URL"))
	c.Gemini.ValidationModel = strings.TrimSpace(os.Getenv("GEMINI_VALIDATION_MODEL"))
	c.Gemini.GenerationModel = strings.TrimSpace(os.Getenv("GEMINI_GENERATION_MODEL"))

	c.Apify.Token = os.Getenv("APIFY_API_TOKEN")
	c.Apify.BaseURL = strings.TrimSpace(os.Getenv("APIFY_BASE_URL"))
	c.Apify.MapsActor = strings.TrimSpace(os.Getenv("APIFY_MAPS_ACTOR"))
	c.Apify.SyncActor = strings.TrimSpace(os.Getenv("APIFY_SYNC_ACTOR"))
	c.Apify.PollInterval = mustDuration("APIFY_POLL_INTERVAL")

	c.ContactOut.APIKey = os.Getenv("CONTACTOUT_API_KEY")
	c.ContactOut.BaseURL = strings.TrimSpace(os.Getenv("CONTACTOUT_BASE_URL"))

	c.VAPI.APIKey = os.Getenv("VAPI_API_KEY")
	c.VAPI.BaseURL = strings.TrimSpace(os.Getenv("VAPI_BASE_URL"))
	c.VAPI.WebhookSecret = os.Getenv("VAPI_WEBHOOK_SECRET")
	c.VAPI.PhoneNumberID = strings.TrimSpace(os.Getenv("VAPI_PHONE_NUMBER_ID"))
	c.VAPI.VoiceID = strings.TrimSpace(os.Getenv("VAPI_VOICE_ID"))

	{
		n, err := optionalInt64("PRICE_LEAD_SCRAPED")
		n, parseErrs = appendParseErr64(parseErrs, n, err)
		c.Pricing.LeadScraped = n
	}
	{
		n, err := optionalInt64("PRICE_LEAD_ENRICHED")
		n, parseErrs = appendParseErr64(parseErrs, n, err)
		c.Pricing.LeadEnriched = n
	}
	{
		n, err := optionalInt64("PRICE_LEAD_CALLED")
		n, parseErrs = appendParseErr64(parseErrs, n, err)
		c.Pricing.LeadCalled = n
	}
	{
		n, err := optionalInt64("PRICE_APPOINTMENT_BOOKED")
		n, parseErrs = appendParseErr64(parseErrs, n, err)
		c.Pricing.AppointmentBooked = n
	}

	{
		n, err := optionalInt64("PIPELINE_WORKERS")
		parseErrs = appendErr(parseErrs, err)
		c.Pipeline.Workers = int(n)
	}
	{
		v := strings.TrimSpace(os.Getenv("PIPELINE_VENDOR_RPS"))
		if v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				parseErrs = append(parseErrs, fmt.Errorf("PIPELINE_VENDOR_RPS must be a number, got %q", v))
			}
			c.Pipeline.VendorRatePerSec = f
		}
	}
	c.Pipeline.StuckAfter = mustDuration("PIPELINE_STUCK_AFTER")
	c.Pipeline.RecoveryInterval = mustDuration("PIPELINE_RECOVERY_INTERVAL")
	c.Pipeline.WebhookDedupTTL = mustDuration("WEBHOOK_DEDUP_TTL")

	c.AMQP.URL = strings.TrimSpace(os.Getenv("AMQP_URL"))

	c.SMTP.Host = strings.TrimSpace(os.Getenv("SMTP_HOST"))
	{
		n, err := optionalInt64("SMTP_PORT")
		parseErrs = appendErr(parseErrs, err)
		c.SMTP.Port = int(n)
	}
	c.SMTP.User = strings.TrimSpace(os.Getenv("SMTP_USER"))
	c.SMTP.Password = os.Getenv("SMTP_PASSWORD")
	c.SMTP.From = strings.TrimSpace(os.Getenv("SMTP_FROM"))

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate applies env-dependent defaults and reports every invalid value.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}
	if c.IsProduction() && c.App.PublicURL == "" {
		errs = append(errs, errors.New("APP_PUBLIC_URL is required in production"))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if c.DB.SSLMode == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		c.Auth.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL"))
	}

	c.applyVendorDefaults()
	if c.IsProduction() {
		for key, v := range map[string]string{
			"GEMINI_API_KEY":      c.Gemini.APIKey,
			"APIFY_API_TOKEN":     c.Apify.Token,
			"CONTACTOUT_API_KEY":  c.ContactOut.APIKey,
			"VAPI_API_KEY":        c.VAPI.APIKey,
			"VAPI_WEBHOOK_SECRET": c.VAPI.WebhookSecret,
		} {
			if v == "" {
				errs = append(errs, fmt.Errorf("%s is required in production", key))
			}
		}
	}

	if c.Pricing.LeadScraped <= 0 {
		c.Pricing.LeadScraped = 1
	}
	if c.Pricing.LeadEnriched <= 0 {
		c.Pricing.LeadEnriched = 2
	}
	if c.Pricing.LeadCalled <= 0 {
		c.Pricing.LeadCalled = 7
	}
	if c.Pricing.AppointmentBooked <= 0 {
		c.Pricing.AppointmentBooked = 3
	}

	if c.Pipeline.Workers <= 0 {
		c.Pipeline.Workers = 5
	}
	if c.Pipeline.VendorRatePerSec < 0 {
		errs = append(errs, fmt.Errorf("PIPELINE_VENDOR_RPS must be >= 0, got %v", c.Pipeline.VendorRatePerSec))
	}
	if c.Pipeline.VendorRatePerSec == 0 {
		c.Pipeline.VendorRatePerSec = 5
	}
	if c.Pipeline.StuckAfter <= 0 {
		c.Pipeline.StuckAfter = 30 * time.Minute
	}
	if c.Pipeline.RecoveryInterval <= 0 {
		c.Pipeline.RecoveryInterval = time.Minute
	}
	if c.Pipeline.WebhookDedupTTL <= 0 {
		c.Pipeline.WebhookDedupTTL = 24 * time.Hour
	}

	if c.SMTP.Host != "" && c.SMTP.Port <= 0 {
		c.SMTP.Port = 587
	}

	return joinErrors(errs)
}

func (c *Config) applyVendorDefaults() {
	if c.Gemini.BaseURL == "" {
		c.Gemini.BaseURL = "https://generativelanguage.googleapis.com"
	}
	if c.Gemini.ValidationModel == "" {
		c.Gemini.ValidationModel = "gemini-1.5-flash"
	}
	if c.Gemini.GenerationModel == "" {
		c.Gemini.GenerationModel = "gemini-1.5-pro"
	}
	if c.Apify.BaseURL == "" {
		c.Apify.BaseURL = "https://api.apify.com/v2"
	}
	if c.Apify.MapsActor == "" {
		c.Apify.MapsActor = "compass~google-maps-scraper"
	}
	if c.Apify.SyncActor == "" {
		c.Apify.SyncActor = "compass~crawler-google-places"
	}
	if c.Apify.PollInterval <= 0 {
		c.Apify.PollInterval = 5 * time.Second
	}
	if c.ContactOut.BaseURL == "" {
		c.ContactOut.BaseURL = "https://api.contactout.com/v1"
	}
	if c.VAPI.BaseURL == "" {
		c.VAPI.BaseURL = "https://api.vapi.ai"
	}
	if c.VAPI.VoiceID == "" {
		c.VAPI.VoiceID = "21m00Tcm4TlvDq8ikWAM"
	}
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

// IsDevelopment is true for local and dev.
func (c Config) IsDevelopment() bool {
	return c.App.Env == "local" || c.App.Env == "dev"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Contains secrets; never log.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// WebhookURL is the public URL VAPI posts call events to.
func (c Config) WebhookURL() string {
	if c.App.PublicURL == "" {
		return ""
	}
	return c.App.PublicURL + "/vapi/webhook"
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optionalInt64(key string) (int64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optionalBool(key string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	return err == nil && v
}

func mustDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	return n, appendErr(errs, err)
}

func appendParseErr64(errs []error, n int64, err error) (int64, []error) {
	return n, appendErr(errs, err)
}

func appendErr(errs []error, err error) []error {
	if err != nil {
		errs = append(errs, err)
	}
	return errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
