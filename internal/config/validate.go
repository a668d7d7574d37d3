package config

import (
	"fmt"
	"net/url"
)

func (c Config) validate() error {
	if _, err := url.ParseRequestURI(c.FrontendURL); err != nil {
		return fmt.Errorf("FRONTEND_URL is not a valid url: %w", err)
	}
	switch c.Store.Backend {
	case "dynamodb", "firestore", "memory":
	default:
		return fmt.Errorf("ORDER_STORE must be dynamodb, firestore or memory, got %q", c.Store.Backend)
	}
	if c.RateLimit.Max <= 0 || c.RateLimit.Window <= 0 {
		return fmt.Errorf("RATE_LIMIT_MAX and RATE_LIMIT_WINDOW must be positive")
	}
	if c.RateLimit.ChatMax <= 0 || c.RateLimit.ChatWindow <= 0 {
		return fmt.Errorf("CHAT_RATE_LIMIT_MAX and CHAT_RATE_LIMIT_WINDOW must be positive")
	}
	if len(c.Currency) != 3 {
		return fmt.Errorf("CURRENCY must be a 3 letter ISO code, got %q", c.Currency)
	}
	return nil
}
