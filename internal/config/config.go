package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full runtime configuration, read from the environment.
type Config struct {
	Env         string
	Port        string
	RunLocal    bool
	Function    string // API_FUNCTION: register a single endpoint when deployed as its own function
	FrontendURL string
	BackendURL  string
	Origins     []string
	Currency    string

	Stripe    StripeConfig
	CSRF      CSRFConfig
	RateLimit RateLimitConfig
	Chat      ChatConfig
	Mailjet   MailjetConfig
	AWS       AWSConfig
	Store     StoreConfig
	Queue     string // NOTIFICATIONS_QUEUE_URL
	Metrics   MetricsConfig

	// LocalSQSBody is the event the worker processes when RUN_LOCAL is set.
	LocalSQSBody string
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
}

type CSRFConfig struct {
	Secret   string
	TokenTTL time.Duration
}

type RateLimitConfig struct {
	Window     time.Duration
	Max        int
	ChatWindow time.Duration
	ChatMax    int
}

type ChatConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
}

type MailjetConfig struct {
	APIKey    string
	SecretKey string
	FromEmail string
	FromName  string
}

type AWSConfig struct {
	Region           string
	EndpointOverride string
}

type StoreConfig struct {
	Backend             string // dynamodb | firestore | memory
	OrdersTable         string
	IdempotencyTable    string
	IdempotencyTTL      time.Duration
	FirestoreProject    string
	FirestoreCollection string
	CredentialsFile     string
}

type MetricsConfig struct {
	Enabled   bool
	Namespace string
}

// Production reports whether diagnostic detail must be hidden from clients.
func (c Config) Production() bool {
	return c.Env == "production"
}

func defaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("PORT", "8080")
	v.SetDefault("RUN_LOCAL", false)
	v.SetDefault("FRONTEND_URL", "http://localhost:5173")
	v.SetDefault("BACKEND_URL", "http://localhost:8080")
	v.SetDefault("CURRENCY", "usd")
	v.SetDefault("CSRF_TOKEN_TTL", 12*time.Hour)
	v.SetDefault("RATE_LIMIT_WINDOW", 15*time.Minute)
	v.SetDefault("RATE_LIMIT_MAX", 100)
	v.SetDefault("CHAT_RATE_LIMIT_WINDOW", time.Minute)
	v.SetDefault("CHAT_RATE_LIMIT_MAX", 10)
	v.SetDefault("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1")
	v.SetDefault("CHAT_DEFAULT_MODEL", "openai/gpt-4o-mini")
	v.SetDefault("MAILJET_FROM_NAME", "Storefront")
	v.SetDefault("AWS_REGION", "us-east-1")
	v.SetDefault("ORDER_STORE", "dynamodb")
	v.SetDefault("ORDERS_TABLE", "orders")
	v.SetDefault("IDEMPOTENCY_TABLE", "idempotency")
	v.SetDefault("IDEMPOTENCY_TTL", 48*time.Hour)
	v.SetDefault("FIRESTORE_ORDERS_COLLECTION", "orders")
	v.SetDefault("METRICS_ENABLED", false)
	v.SetDefault("METRICS_NAMESPACE", "Storefront/Payments")
}

// Load reads configuration from environment variables, applying defaults
// for everything optional. Secrets are not required here; callers surface
// a config error when an operation needs a key that is absent.
func Load() (Config, error) {
	v := viper.New()
	defaults(v)
	v.AutomaticEnv()

	cfg := Config{
		Env:         strings.ToLower(v.GetString("APP_ENV")),
		Port:        v.GetString("PORT"),
		RunLocal:    v.GetBool("RUN_LOCAL"),
		Function:    v.GetString("API_FUNCTION"),
		FrontendURL: strings.TrimRight(v.GetString("FRONTEND_URL"), "/"),
		BackendURL:  strings.TrimRight(v.GetString("BACKEND_URL"), "/"),
		Currency:    strings.ToLower(v.GetString("CURRENCY")),
		Stripe: StripeConfig{
			SecretKey:     v.GetString("STRIPE_SECRET_KEY"),
			WebhookSecret: v.GetString("STRIPE_WEBHOOK_SECRET"),
		},
		CSRF: CSRFConfig{
			Secret:   v.GetString("CSRF_SECRET"),
			TokenTTL: v.GetDuration("CSRF_TOKEN_TTL"),
		},
		RateLimit: RateLimitConfig{
			Window:     v.GetDuration("RATE_LIMIT_WINDOW"),
			Max:        v.GetInt("RATE_LIMIT_MAX"),
			ChatWindow: v.GetDuration("CHAT_RATE_LIMIT_WINDOW"),
			ChatMax:    v.GetInt("CHAT_RATE_LIMIT_MAX"),
		},
		Chat: ChatConfig{
			APIKey:       v.GetString("OPENROUTER_API_KEY"),
			BaseURL:      strings.TrimRight(v.GetString("OPENROUTER_BASE_URL"), "/"),
			DefaultModel: v.GetString("CHAT_DEFAULT_MODEL"),
		},
		Mailjet: MailjetConfig{
			APIKey:    v.GetString("MAILJET_API_KEY"),
			SecretKey: v.GetString("MAILJET_SECRET_KEY"),
			FromEmail: v.GetString("MAILJET_FROM_EMAIL"),
			FromName:  v.GetString("MAILJET_FROM_NAME"),
		},
		AWS: AWSConfig{
			Region:           v.GetString("AWS_REGION"),
			EndpointOverride: v.GetString("AWS_ENDPOINT_OVERRIDE"),
		},
		Store: StoreConfig{
			Backend:             strings.ToLower(v.GetString("ORDER_STORE")),
			OrdersTable:         v.GetString("ORDERS_TABLE"),
			IdempotencyTable:    v.GetString("IDEMPOTENCY_TABLE"),
			IdempotencyTTL:      v.GetDuration("IDEMPOTENCY_TTL"),
			FirestoreProject:    v.GetString("FIRESTORE_PROJECT_ID"),
			FirestoreCollection: v.GetString("FIRESTORE_ORDERS_COLLECTION"),
			CredentialsFile:     v.GetString("GOOGLE_CREDENTIALS_FILE"),
		},
		Queue:        v.GetString("NOTIFICATIONS_QUEUE_URL"),
		LocalSQSBody: v.GetString("LOCAL_SQS_BODY"),
		Metrics: MetricsConfig{
			Enabled:   v.GetBool("METRICS_ENABLED"),
			Namespace: v.GetString("METRICS_NAMESPACE"),
		},
	}
	cfg.Origins = splitList(v.GetString("ALLOWED_ORIGINS"))
	if len(cfg.Origins) == 0 {
		cfg.Origins = []string{cfg.FrontendURL}
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, strings.TrimRight(p, "/"))
		}
	}
	return out
}
