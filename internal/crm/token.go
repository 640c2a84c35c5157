package crm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"casebridge/internal/constants"
	"casebridge/internal/logger"
	"casebridge/pkg/metrics"
)

// Token is an OAuth2 bearer token and the instant it stops being accepted.
type Token struct {
	AccessToken string
	ExpiresOn   time.Time
}

// IsValid reports whether a token can be used at now: the token string must
// be present and its expiry strictly in the future. A zero expiry is treated
// as missing.
func IsValid(accessToken string, expiresOn, now time.Time) bool {
	return accessToken != "" && !expiresOn.IsZero() && expiresOn.After(now)
}

// Acquirer performs one client-credentials token request.
type Acquirer interface {
	AcquireToken(ctx context.Context) (Token, error)
}

// TokenSource hands out bearer tokens for outgoing CRM requests.
type TokenSource interface {
	// Token returns the cached token, acquiring a new one first when the
	// cached one is absent or expired.
	Token(ctx context.Context) (string, error)
	// Refresh acquires a new token unconditionally and caches it.
	Refresh(ctx context.Context) (string, error)
}

// TokenManager caches one token for the whole process. Concurrent
// acquisitions share a single in-flight request.
type TokenManager struct {
	acquirer Acquirer
	logger   logger.Logger
	now      func() time.Time
	timeout  time.Duration

	mu    sync.RWMutex
	token Token
	group singleflight.Group
}

func NewTokenManager(acquirer Acquirer, log logger.Logger) *TokenManager {
	return &TokenManager{
		acquirer: acquirer,
		logger:   log,
		now:      time.Now,
		timeout:  constants.DefaultCRMTimeout,
	}
}

func (m *TokenManager) Token(ctx context.Context) (string, error) {
	m.mu.RLock()
	cached := m.token
	m.mu.RUnlock()

	if IsValid(cached.AccessToken, cached.ExpiresOn, m.now()) {
		return cached.AccessToken, nil
	}

	return m.acquire(ctx, "expired")
}

func (m *TokenManager) Refresh(ctx context.Context) (string, error) {
	return m.acquire(ctx, "unauthorized")
}

// acquire runs one shared acquisition per reason. The acquisition is detached
// from the caller that started it; each caller stops waiting on its own ctx.
func (m *TokenManager) acquire(ctx context.Context, reason string) (string, error) {
	ch := m.group.DoChan(reason, func() (interface{}, error) {
		acquireCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.timeout)
		defer cancel()

		token, err := m.acquirer.AcquireToken(acquireCtx)
		if err != nil {
			metrics.IncTokenAcquisition(reason, "error")
			m.logger.ErrorwCtx(ctx, "Error acquiring token",
				"reason", reason,
				"error", err,
			)
			return "", fmt.Errorf("%w: %w", ErrTokenAcquisitionFailed, err)
		}

		if token.AccessToken == "" {
			metrics.IncTokenAcquisition(reason, "error")
			return "", fmt.Errorf("%w: empty access token", ErrTokenAcquisitionFailed)
		}

		m.mu.Lock()
		m.token = token
		m.mu.Unlock()

		metrics.IncTokenAcquisition(reason, "success")
		m.logger.DebugwCtx(ctx, "Acquired CRM access token",
			"reason", reason,
			"expires_on", token.ExpiresOn,
		)
		return token.AccessToken, nil
	})

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %w", ErrTokenAcquisitionFailed, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}
