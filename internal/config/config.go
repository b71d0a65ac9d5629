package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type AppCfg struct{ Env, Port, BaseURL, LogLevel string }
type DBCfg struct{ Driver, DSN string }
type RedisCfg struct{ Addr string }

type SecurityCfg struct {
	EncryptionKey []byte
	JWTSecret     string
}

type TimeoutCfg struct {
	Provider time.Duration // outbound payment-link creation
	Webhook  time.Duration // total inbound webhook handling
}

type WebhookCfg struct {
	DedupTTL time.Duration
}

// ProviderURLs overrides the API base URL per provider kind. Empty means
// the adapter's built-in production/sandbox URL.
type ProviderURLs struct {
	Stripe, PayPal, Tranzila, Meshulam, Cardcom string
}

type WhatsAppCfg struct {
	APIURL        string
	Token         string
	PhoneNumberID string
}

type Cfg struct {
	App       AppCfg
	DB        DBCfg
	Redis     RedisCfg
	Sec       SecurityCfg
	Timeouts  TimeoutCfg
	Webhook   WebhookCfg
	Providers ProviderURLs
	WhatsApp  WhatsAppCfg
	Admins    *AdminList
}

// Load reads configuration from the environment (and .env when present)
// and exits the process when a required setting is missing.
func Load() Cfg {
	cfg, err := Read()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	return cfg
}

// Read is Load without the fatal exit.
func Read() (Cfg, error) {
	// .env is optional; real deployments inject the environment directly.
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("STORE_DRIVER", "postgres")
	v.SetDefault("PROVIDER_TIMEOUT", "15s")
	v.SetDefault("WEBHOOK_TIMEOUT", "10s")
	v.SetDefault("WEBHOOK_DEDUP_TTL", "24h")
	v.SetDefault("WHATSAPP_API_URL", "https://graph.facebook.com/v19.0")

	var keyErr error
	key, err := base64.StdEncoding.DecodeString(v.GetString("ENCRYPTION_KEY_BASE64"))
	if err != nil {
		keyErr = err
	}

	admins := NewAdminList(splitList(v.GetString("ADMIN_EMAILS")))

	cfg := Cfg{
		App: AppCfg{
			Env:      v.GetString("APP_ENV"),
			Port:     v.GetString("APP_PORT"),
			BaseURL:  v.GetString("APP_BASE_URL"),
			LogLevel: v.GetString("LOG_LEVEL"),
		},
		DB: DBCfg{
			Driver: strings.ToLower(v.GetString("STORE_DRIVER")),
			DSN:    v.GetString("DB_DSN"),
		},
		Redis: RedisCfg{Addr: v.GetString("REDIS_ADDR")},
		Sec: SecurityCfg{
			EncryptionKey: key,
			JWTSecret:     v.GetString("JWT_SECRET"),
		},
		Timeouts: TimeoutCfg{
			Provider: v.GetDuration("PROVIDER_TIMEOUT"),
			Webhook:  v.GetDuration("WEBHOOK_TIMEOUT"),
		},
		Webhook: WebhookCfg{DedupTTL: v.GetDuration("WEBHOOK_DEDUP_TTL")},
		Providers: ProviderURLs{
			Stripe:   v.GetString("STRIPE_API_URL"),
			PayPal:   v.GetString("PAYPAL_API_URL"),
			Tranzila: v.GetString("TRANZILA_PAY_URL"),
			Meshulam: v.GetString("MESHULAM_API_URL"),
			Cardcom:  v.GetString("CARDCOM_API_URL"),
		},
		WhatsApp: WhatsAppCfg{
			APIURL:        v.GetString("WHATSAPP_API_URL"),
			Token:         v.GetString("WHATSAPP_TOKEN"),
			PhoneNumberID: v.GetString("WHATSAPP_PHONE_NUMBER_ID"),
		},
		Admins: admins,
	}

	if keyErr != nil {
		return Cfg{}, fmt.Errorf("ENCRYPTION_KEY_BASE64: %w", keyErr)
	}
	if err := cfg.Validate(); err != nil {
		return Cfg{}, err
	}

	if path := v.GetString("ADMIN_CONFIG_FILE"); path != "" {
		if err := admins.WatchFile(path); err != nil {
			return Cfg{}, fmt.Errorf("ADMIN_CONFIG_FILE: %w", err)
		}
	}
	return cfg, nil
}

// Validate reports the first missing or malformed required setting.
func (c Cfg) Validate() error {
	if len(c.Sec.EncryptionKey) != 32 {
		return errors.New("ENCRYPTION_KEY_BASE64 must be a valid 32-byte base64 key")
	}
	if c.Sec.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	switch c.DB.Driver {
	case "postgres":
		if c.DB.DSN == "" {
			return errors.New("DB_DSN is required for the postgres store")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.DB.Driver)
	}
	if c.Timeouts.Provider <= 0 || c.Timeouts.Webhook <= 0 {
		return errors.New("PROVIDER_TIMEOUT and WEBHOOK_TIMEOUT must be positive")
	}
	return nil
}

func (c Cfg) IsDevelopment() bool { return c.App.Env == "development" }

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
