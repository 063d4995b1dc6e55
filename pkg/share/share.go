// Package share issues, resolves and retires shareable grants on stored
// objects.
//
// A grant id plus its optional access code are the only tokens an external
// bearer needs. Grants are never erased; expired and revoked grants stay in
// the catalog for audit and simply stop resolving.
package share

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/marmos91/dittostore/internal/logger"
	"github.com/marmos91/dittostore/internal/ratelimiter"
	"github.com/marmos91/dittostore/pkg/access"
	"github.com/marmos91/dittostore/pkg/catalog"
)

// maxCodeLength is bcrypt's input limit.
const maxCodeLength = 72

// Config configures a Manager.
type Config struct {
	// CodeHashCost is the bcrypt cost for access codes. Zero selects
	// bcrypt.DefaultCost.
	CodeHashCost int

	// AttemptsPerSecond and AttemptBurst throttle Resolve per grant id.
	// A zero rate disables throttling.
	AttemptsPerSecond float64
	AttemptBurst      uint
}

// Request describes a new grant.
type Request struct {
	SharedWith string
	Level      catalog.ShareLevel

	// ExpiresAt is optional. A grant is unusable from this instant on.
	ExpiresAt *time.Time

	// AccessCode is optional. It is stored only as a bcrypt hash.
	AccessCode string
}

// Resolution is a successfully resolved grant and its target.
type Resolution struct {
	Grant  *catalog.ShareGrant
	Object *catalog.StoredObject
}

// Manager implements grant issue and resolution on top of a catalog.
type Manager struct {
	catalog catalog.Catalog
	limiter *ratelimiter.KeyedLimiter
	cost    int
	metrics Metrics

	// dummyHash is compared against when a grant has no code (or does not
	// exist) so every resolution pays for one bcrypt comparison.
	dummyHash []byte

	now   func() time.Time
	newID func() string
}

// Option customises a Manager.
type Option func(*Manager)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithMetrics installs a metrics sink.
func WithMetrics(metrics Metrics) Option {
	return func(m *Manager) {
		if metrics != nil {
			m.metrics = metrics
		}
	}
}

// NewManager creates a Manager.
func NewManager(cat catalog.Catalog, cfg Config, opts ...Option) (*Manager, error) {
	if cat == nil {
		return nil, fmt.Errorf("catalog is required")
	}

	cost := cfg.CodeHashCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("code hash cost %d outside [%d, %d]", cost, bcrypt.MinCost, bcrypt.MaxCost)
	}

	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate dummy secret: %w", err)
	}
	dummy, err := bcrypt.GenerateFromPassword(secret, cost)
	if err != nil {
		return nil, fmt.Errorf("generate dummy hash: %w", err)
	}

	m := &Manager{
		catalog:   cat,
		limiter:   ratelimiter.New(cfg.AttemptsPerSecond, cfg.AttemptBurst),
		cost:      cost,
		metrics:   noopMetrics{},
		dummyHash: dummy,
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Share issues a grant on obj. sharedBy must hold the share right.
func (m *Manager) Share(ctx context.Context, obj *catalog.StoredObject, sharedBy string, req Request) (*catalog.ShareGrant, error) {
	if err := access.Require(obj, sharedBy, access.Share); err != nil {
		return nil, err
	}
	if !req.Level.Valid() {
		return nil, fmt.Errorf("%w: unknown level %q", ErrInvalidGrant, req.Level)
	}
	if len(req.AccessCode) > maxCodeLength {
		return nil, fmt.Errorf("%w: access code longer than %d bytes", ErrInvalidGrant, maxCodeLength)
	}

	now := m.now().UTC()
	grant := &catalog.ShareGrant{
		ID:         m.newID(),
		Tenant:     obj.Tenant,
		ObjectID:   obj.ID,
		SharedBy:   sharedBy,
		SharedWith: req.SharedWith,
		Level:      req.Level,
		CreatedAt:  now,
	}
	if req.ExpiresAt != nil {
		exp := req.ExpiresAt.UTC()
		grant.ExpiresAt = &exp
	}
	if req.AccessCode != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(req.AccessCode), m.cost)
		if err != nil {
			return nil, fmt.Errorf("hash access code: %w", err)
		}
		grant.CodeHash = hash
	}

	if err := m.catalog.CreateGrant(ctx, grant); err != nil {
		return nil, fmt.Errorf("store grant: %w", err)
	}

	logger.Info("share: %q granted %s on %q/%q to %q (grant %s)",
		sharedBy, grant.Level, obj.Tenant, obj.ID, req.SharedWith, grant.ID)
	return grant, nil
}

// Resolve checks a grant and returns its target object.
//
// Denials come back as *DenialError. The checks are ordered so that an
// expired or revoked grant reports that state whatever code is presented,
// and the code comparison runs on every path, so the time taken does not
// reveal whether the grant exists or has a code.
//
// For download grants a successful resolution increments the download
// counter; the catalog re-checks expiry in the same atomic step, so denied
// attempts are never counted.
func (m *Manager) Resolve(ctx context.Context, grantID, code string) (res *Resolution, err error) {
	start := m.now()
	defer func() {
		outcome := "granted"
		if reason, ok := DenialReason(err); ok {
			outcome = string(reason)
			logger.Debug("share: grant %q denied: %s", grantID, reason)
		} else if err != nil {
			outcome = "error"
		}
		m.metrics.ObserveResolve(outcome, m.now().Sub(start))
	}()

	// ========================================================================
	// Step 1: Throttle
	// ========================================================================

	if !m.limiter.Allow(grantID) {
		return nil, deny(ReasonRateLimited, grantID)
	}

	// ========================================================================
	// Step 2: Load the grant and compare the code
	// ========================================================================

	grant, err := m.catalog.GetGrant(ctx, grantID)
	if err != nil && !catalog.IsNotFound(err) {
		return nil, fmt.Errorf("load grant: %w", err)
	}

	hash := m.dummyHash
	if grant != nil && grant.HasCode() {
		hash = grant.CodeHash
	}
	codeMatches := bcrypt.CompareHashAndPassword(hash, []byte(code)) == nil

	if grant == nil {
		return nil, deny(ReasonNotFound, grantID)
	}

	// ========================================================================
	// Step 3: Validity, then the code
	// ========================================================================

	now := m.now()
	if grant.Revoked() {
		return nil, deny(ReasonRevoked, grantID)
	}
	if grant.Expired(now) {
		return nil, deny(ReasonExpired, grantID)
	}
	if grant.HasCode() {
		if code == "" {
			return nil, deny(ReasonCodeRequired, grantID)
		}
		if !codeMatches {
			return nil, deny(ReasonCodeMismatch, grantID)
		}
	}

	// ========================================================================
	// Step 4: Target object and usage counter
	// ========================================================================

	obj, err := m.catalog.Get(ctx, grant.Tenant, grant.ObjectID)
	if err != nil {
		if catalog.IsNotFound(err) {
			return nil, deny(ReasonNotFound, grantID)
		}
		return nil, fmt.Errorf("load shared object: %w", err)
	}

	if grant.Level == catalog.ShareDownload {
		grant, err = m.catalog.IncrementGrantDownloads(ctx, grantID, now)
		if err != nil {
			return nil, m.translateInactive(ctx, grantID, now, err)
		}
	}

	return &Resolution{Grant: grant, Object: obj}, nil
}

// translateInactive maps a failed counter update to the matching denial.
// The grant changed between the checks and the increment, so it is
// re-read to tell revocation from expiry.
func (m *Manager) translateInactive(ctx context.Context, grantID string, now time.Time, err error) error {
	code, ok := catalog.CodeOf(err)
	switch {
	case ok && code == catalog.ErrNotFound:
		return deny(ReasonNotFound, grantID)
	case ok && code == catalog.ErrGrantInactive:
		if g, gerr := m.catalog.GetGrant(ctx, grantID); gerr == nil && g.Revoked() {
			return deny(ReasonRevoked, grantID)
		}
		return deny(ReasonExpired, grantID)
	default:
		return fmt.Errorf("count download: %w", err)
	}
}

// Revoke retires a grant on obj. actor must hold the share right on the
// object. Revoking twice is not an error.
func (m *Manager) Revoke(ctx context.Context, obj *catalog.StoredObject, actor, grantID string) (*catalog.ShareGrant, error) {
	if err := access.Require(obj, actor, access.Share); err != nil {
		return nil, err
	}

	grant, err := m.catalog.GetGrant(ctx, grantID)
	if err != nil {
		return nil, err
	}
	if grant.Tenant != obj.Tenant || grant.ObjectID != obj.ID {
		return nil, catalog.NewError(catalog.ErrNotFound, "grant not found", grantID)
	}

	revoked, err := m.catalog.RevokeGrant(ctx, obj.Tenant, grantID, m.now())
	if err != nil {
		return nil, err
	}

	logger.Info("share: %q revoked grant %q on %q/%q", actor, grantID, obj.Tenant, obj.ID)
	return revoked, nil
}

// List returns every grant on obj, including inactive ones. actor must
// hold the share right.
func (m *Manager) List(ctx context.Context, obj *catalog.StoredObject, actor string) ([]*catalog.ShareGrant, error) {
	if err := access.Require(obj, actor, access.Share); err != nil {
		return nil, err
	}
	return m.catalog.ListGrants(ctx, obj.Tenant, obj.ID)
}

// IsDenied reports whether err is a grant denial.
func IsDenied(err error) bool {
	return errors.Is(err, ErrDenied)
}
