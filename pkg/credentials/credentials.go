// Package credentials exchanges a traceroot token for short-lived telemetry
// credentials and keeps them fresh for the export pipeline.
package credentials

import (
	"context"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hyp3rd/ewrap"

	"github.com/traceroot-ai/traceroot-sdk/internal/constants"
	"github.com/traceroot-ai/traceroot-sdk/pkg/config"
	"github.com/traceroot-ai/traceroot-sdk/pkg/logging"
)

// Credentials is the payload returned by the verification endpoint.
type Credentials struct {
	AWSAccessKeyID     string `json:"aws_access_key_id"`
	AWSSecretAccessKey string `json:"aws_secret_access_key"`
	AWSSessionToken    string `json:"aws_session_token"`
	Region             string `json:"region"`
	Hash               string `json:"hash"`
	OTLPEndpoint       string `json:"otlp_endpoint"`
	ExpirationUTC      string `json:"expiration_utc"`
}

// Manager caches credentials from the verification endpoint and renews them
// ahead of expiry. Transient fetch failures keep serving the cached value.
type Manager struct {
	cfg    config.Config
	client *resty.Client
	logger logging.Adapter

	mu        sync.RWMutex
	cached    *Credentials
	expiresAt time.Time
}

// NewManager constructs a Manager for the supplied configuration.
func NewManager(cfg config.Config, logger logging.Adapter) *Manager {
	if logger == nil {
		logger = logging.NewNoopAdapter()
	}

	client := resty.New().
		SetTimeout(constants.DefaultTimeout).
		SetHeader("Content-Type", "application/json")

	return &Manager{
		cfg:    cfg,
		client: client,
		logger: logger,
	}
}

// Get returns valid credentials, fetching or renewing them when the cache is
// empty or inside the refresh leeway. A missing token is a configuration
// error surfaced here, at the point cloud export needs it.
func (m *Manager) Get(ctx context.Context) (*Credentials, error) {
	m.mu.RLock()
	cached := m.cached
	fresh := cached != nil && time.Now().Before(m.expiresAt.Add(-constants.CredentialRefreshLeeway))
	m.mu.RUnlock()

	if fresh {
		return cached, nil
	}

	return m.refresh(ctx)
}

// Cached returns the cached credentials without fetching; nil when none.
func (m *Manager) Cached() *Credentials {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.cached
}

// ExpiresAt reports when the cached credentials lapse. Zero when no
// credentials are cached.
func (m *Manager) ExpiresAt() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.cached == nil {
		return time.Time{}
	}

	return m.expiresAt
}

func (m *Manager) refresh(ctx context.Context) (*Credentials, error) {
	if m.cfg.Token == "" {
		return nil, config.NewMissingFieldError("token", "cloud export")
	}

	var payload Credentials

	resp, err := m.client.R().
		SetContext(ctx).
		SetQueryParam("token", m.cfg.Token).
		SetResult(&payload).
		Get(m.cfg.VerificationEndpoint)
	if err != nil {
		return m.fallback(ctx, ewrap.Wrap(err, "fetch credentials"))
	}

	if !resp.IsSuccess() {
		return m.fallback(ctx, ewrap.Newf("verification endpoint returned %s", resp.Status()))
	}

	expiresAt := parseExpiration(payload.ExpirationUTC)

	m.mu.Lock()
	m.cached = &payload
	m.expiresAt = expiresAt
	m.mu.Unlock()

	return &payload, nil
}

// fallback keeps serving cached credentials across transient failures so a
// flaky verification endpoint never stalls telemetry.
func (m *Manager) fallback(ctx context.Context, cause error) (*Credentials, error) {
	m.mu.RLock()
	cached := m.cached
	m.mu.RUnlock()

	if cached != nil {
		m.logger.Error(ctx, cause, "credential refresh failed, serving cached credentials")

		return cached, nil
	}

	return nil, cause
}

func parseExpiration(raw string) time.Time {
	if raw != "" {
		layouts := []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05"}
		for _, layout := range layouts {
			ts, err := time.Parse(layout, raw)
			if err == nil {
				return ts
			}
		}
	}

	return time.Now().UTC().Add(constants.CredentialFallbackTTL)
}
