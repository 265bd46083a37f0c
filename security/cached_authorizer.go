// Package security holds Authorizer decorators for the container.
package security

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/goliatone/go-container/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const authorizationCacheKeyPrefix = "go-container::authz::v1"

// CachedAuthorizer memoizes decisions of a base Authorizer per principal,
// held roles and required roles. Errors are never cached.
type CachedAuthorizer struct {
	base  core.Authorizer
	cache repositorycache.CacheService
}

func NewCachedAuthorizer(base core.Authorizer, cacheService repositorycache.CacheService) (*CachedAuthorizer, error) {
	if base == nil {
		return nil, fmt.Errorf("security: base authorizer is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("security: authorization cache service is required")
	}
	return &CachedAuthorizer{base: base, cache: cacheService}, nil
}

// NewDefaultCachedAuthorizer wraps base with an in-memory cache built from
// repositorycache.DefaultConfig.
func NewDefaultCachedAuthorizer(base core.Authorizer) (*CachedAuthorizer, error) {
	cacheService, err := repositorycache.NewCacheService(repositorycache.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("security: build authorization cache: %w", err)
	}
	return NewCachedAuthorizer(base, cacheService)
}

func (a *CachedAuthorizer) IsAuthorized(ctx context.Context, identity core.SecurityIdentity, roles []string) (bool, error) {
	if a == nil || a.base == nil || a.cache == nil {
		return false, fmt.Errorf("security: cached authorizer is not configured")
	}
	key := AuthorizationCacheKey(identity, roles)
	return repositorycache.GetOrFetch(ctx, a.cache, key, func(ctx context.Context) (bool, error) {
		return a.base.IsAuthorized(ctx, identity, roles)
	})
}

// Invalidate drops the cached decision for one identity and requirement.
func (a *CachedAuthorizer) Invalidate(ctx context.Context, identity core.SecurityIdentity, roles []string) error {
	if a == nil || a.cache == nil {
		return fmt.Errorf("security: cached authorizer is not configured")
	}
	return a.cache.Delete(ctx, AuthorizationCacheKey(identity, roles))
}

// AuthorizationCacheKey renders
// go-container::authz::v1::<principal>::<held roles>::<required roles>
// where role lists are trimmed, sorted, deduplicated and comma joined, and
// every segment is URL-path escaped.
func AuthorizationCacheKey(identity core.SecurityIdentity, roles []string) string {
	segments := []string{
		url.PathEscape(strings.TrimSpace(identity.Principal)),
		url.PathEscape(joinRoles(identity.Roles)),
		url.PathEscape(joinRoles(roles)),
	}
	return strings.Join(append([]string{authorizationCacheKeyPrefix}, segments...), "::")
}

func joinRoles(roles []string) string {
	normalized := make([]string, 0, len(roles))
	for _, role := range roles {
		if trimmed := strings.TrimSpace(role); trimmed != "" {
			normalized = append(normalized, trimmed)
		}
	}
	slices.Sort(normalized)
	return strings.Join(slices.Compact(normalized), ",")
}

var _ core.Authorizer = (*CachedAuthorizer)(nil)
