package store

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"time"
)

// AutoReplyRule matches inbound message text against a keyword.
type AutoReplyRule struct {
	Keyword  string `json:"keyword"`
	Response string `json:"response"`
	Enabled  bool   `json:"enabled"`
}

// APIConfig is the singleton API configuration document.
type APIConfig struct {
	APIKey           string          `json:"apiKey"`
	WebhookURL       string          `json:"webhookUrl"`
	WebhookEvents    []string        `json:"webhookEvents"`
	RateLimit        int             `json:"rateLimit"`
	AutoReplyEnabled bool            `json:"autoReplyEnabled"`
	AutoReplyRules   []AutoReplyRule `json:"autoReplyRules"`
}

// ConfigStore handles the API configuration document.
type ConfigStore struct {
	store *Store
}

// NewConfigStore creates a new ConfigStore.
func NewConfigStore(s *Store) *ConfigStore {
	return &ConfigStore{store: s}
}

// Get retrieves the configuration, creating a default row with a freshly
// generated API key on first access.
func (s *ConfigStore) Get() (*APIConfig, error) {
	row := s.store.QueryRow(`
		SELECT api_key, webhook_url, webhook_events, rate_limit, auto_reply_enabled, auto_reply_rules
		FROM wa_api_config WHERE id = 1`)

	var cfg APIConfig
	var webhookURL, events, rules sql.NullString
	var enabled int
	err := row.Scan(&cfg.APIKey, &webhookURL, &events, &cfg.RateLimit, &enabled, &rules)
	if err == sql.ErrNoRows {
		return s.createDefault()
	}
	if err != nil {
		return nil, err
	}

	cfg.WebhookURL = webhookURL.String
	cfg.AutoReplyEnabled = intToBool(enabled)
	if events.Valid && events.String != "" {
		if err := json.Unmarshal([]byte(events.String), &cfg.WebhookEvents); err != nil {
			cfg.WebhookEvents = nil
		}
	}
	if rules.Valid && rules.String != "" {
		if err := json.Unmarshal([]byte(rules.String), &cfg.AutoReplyRules); err != nil {
			cfg.AutoReplyRules = nil
		}
	}
	return &cfg, nil
}

// Save replaces the configuration document.
func (s *ConfigStore) Save(cfg *APIConfig) error {
	_, err := s.store.Exec(`
		INSERT INTO wa_api_config (id, api_key, webhook_url, webhook_events, rate_limit, auto_reply_enabled, auto_reply_rules, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			api_key            = excluded.api_key,
			webhook_url        = excluded.webhook_url,
			webhook_events     = excluded.webhook_events,
			rate_limit         = excluded.rate_limit,
			auto_reply_enabled = excluded.auto_reply_enabled,
			auto_reply_rules   = excluded.auto_reply_rules,
			updated_at         = excluded.updated_at`,
		cfg.APIKey, nullString(cfg.WebhookURL), nullString(jsonMarshal(cfg.WebhookEvents)),
		cfg.RateLimit, boolToInt(cfg.AutoReplyEnabled), nullString(jsonMarshal(cfg.AutoReplyRules)),
		time.Now().Unix(),
	)
	return err
}

// RotateKey generates and stores a new API key, returning it.
func (s *ConfigStore) RotateKey() (string, error) {
	cfg, err := s.Get()
	if err != nil {
		return "", err
	}
	cfg.APIKey = generateKey()
	if err := s.Save(cfg); err != nil {
		return "", err
	}
	return cfg.APIKey, nil
}

func (s *ConfigStore) createDefault() (*APIConfig, error) {
	cfg := &APIConfig{
		APIKey:        generateKey(),
		WebhookEvents: []string{"message_received"},
		RateLimit:     1000,
	}
	if err := s.Save(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func generateKey() string {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "wa_" + hex.EncodeToString([]byte(time.Now().String()))[:32]
	}
	return "wa_" + hex.EncodeToString(buf)
}
