package config

import (
	"strings"
	"testing"
	"time"
)

func localConfig() Config {
	return Config{
		App:   AppConfig{Env: "local", Port: 8080},
		DB:    DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "leadgen"},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		Auth:  AuthConfig{JWTSecret: "secret"},
	}
}

func TestValidate_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	err := c.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{"APP_ENV", "DB_HOST", "REDIS_HOST", "JWT_SECRET"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %s in %q", want, err.Error())
		}
	}
}

func TestValidate_ProductionRequiresSSLModeAndVendorKeys(t *testing.T) {
	c := localConfig()
	c.App.Env = "production"
	c.App.PublicURL = "https://api.example.com"
	c.Auth.JWTIssuer = "leadgen"
	c.Auth.JWTAudience = "leadgen-api"

	err := c.Validate()
	if err == nil {
		t.Fatalf("expected error for production without DB_SSLMODE")
	}
	for _, want := range []string{"DB_SSLMODE", "GEMINI_API_KEY", "VAPI_WEBHOOK_SECRET"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %s in %q", want, err.Error())
		}
	}
}

func TestValidate_LocalDefaults(t *testing.T) {
	c := localConfig()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
	if c.Auth.AccessTokenTTL != 15*time.Minute {
		t.Fatalf("unexpected access ttl %v", c.Auth.AccessTokenTTL)
	}
	if c.Pricing.LeadScraped != 1 || c.Pricing.LeadEnriched != 2 || c.Pricing.LeadCalled != 7 || c.Pricing.AppointmentBooked != 3 {
		t.Fatalf("unexpected pricing defaults %+v", c.Pricing)
	}
	if c.Pipeline.Workers != 5 || c.Pipeline.WebhookDedupTTL != 24*time.Hour {
		t.Fatalf("unexpected pipeline defaults %+v", c.Pipeline)
	}
	if c.Apify.BaseURL == "" || c.VAPI.BaseURL == "" || c.Gemini.ValidationModel == "" {
		t.Fatalf("vendor defaults not applied")
	}
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("APP_PORT", "9000")
	t.Setenv("APP_PUBLIC_URL", "https://leads.example.com/")
	t.Setenv("APP_CORS_ORIGINS", "http://localhost:3000, https://app.example.com")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_PORT", "5432")
	t.Setenv("DB_USER", "u")
	t.Setenv("DB_NAME", "leadgen")
	t.Setenv("DB_AUTO_MIGRATE", "true")
	t.Setenv("REDIS_HOST", "redis")
	t.Setenv("REDIS_PORT", "6379")
	t.Setenv("JWT_SECRET", "s")
	t.Setenv("PRICE_LEAD_CALLED", "9")
	t.Setenv("PIPELINE_WORKERS", "8")

	c, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.HTTPAddr() != ":9000" {
		t.Fatalf("unexpected addr %s", c.HTTPAddr())
	}
	if c.WebhookURL() != "https://leads.example.com/vapi/webhook" {
		t.Fatalf("unexpected webhook url %s", c.WebhookURL())
	}
	if len(c.App.CORSOrigins) != 2 || c.App.CORSOrigins[1] != "https://app.example.com" {
		t.Fatalf("unexpected cors origins %v", c.App.CORSOrigins)
	}
	if !c.DB.AutoMigrate || c.Pricing.LeadCalled != 9 || c.Pipeline.Workers != 8 {
		t.Fatalf("unexpected config %+v", c)
	}
	if !c.IsDevelopment() || c.IsProduction() {
		t.Fatalf("env helpers wrong for dev")
	}
}

func TestLoad_RejectsBadInteger(t *testing.T) {
	t.Setenv("APP_ENV", "local")
	t.Setenv("APP_PORT", "eighty")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "APP_PORT must be an integer") {
		t.Fatalf("expected integer error, got %v", err)
	}
}
