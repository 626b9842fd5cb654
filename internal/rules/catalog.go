package rules

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Catalog serves read-only snapshots of a tenant's active rules. Snapshots
// are cached briefly; a rule edit invalidates the cache and affects only
// subsequently evaluated events.
type Catalog struct {
	repo  domain.Repository
	cache domain.Cache
	ttl   time.Duration
}

// NewCatalog creates a rule catalog. ttl bounds snapshot staleness.
func NewCatalog(repo domain.Repository, cache domain.Cache, ttl time.Duration) *Catalog {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Catalog{repo: repo, cache: cache, ttl: ttl}
}

// ActiveRules returns the tenant's active rules, filtered by business
// domain when dom is non-empty (ALL-scoped rules always qualify).
func (c *Catalog) ActiveRules(ctx context.Context, tenantID, dom string) ([]*domain.Rule, error) {
	key := cacheKey(dom)

	if data, err := c.cache.Get(ctx, tenantID, key); err == nil && data != nil {
		var rules []*domain.Rule
		if err := json.Unmarshal(data, &rules); err == nil {
			return rules, nil
		}
	}

	rules, err := c.repo.ListActiveRules(ctx, tenantID, dom)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(rules); err == nil {
		if err := c.cache.Set(ctx, tenantID, key, data, c.ttl); err != nil {
			slog.Debug("rule snapshot cache write failed", "tenant_id", tenantID, "error", err)
		}
	}
	return rules, nil
}

// Invalidate drops the tenant's cached snapshots after a rule write.
func (c *Catalog) Invalidate(ctx context.Context, tenantID string) {
	for _, dom := range []string{"", domain.DomainAll, domain.DomainPSP, domain.DomainRemittance, domain.DomainCredit} {
		if err := c.cache.Delete(ctx, tenantID, cacheKey(dom)); err != nil {
			slog.Debug("rule snapshot invalidation failed", "tenant_id", tenantID, "error", err)
		}
	}
}

func cacheKey(dom string) string {
	if dom == "" {
		dom = "ANY"
	}
	return "rules:active:" + dom
}
