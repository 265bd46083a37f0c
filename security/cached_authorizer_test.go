package security

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-container/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

type countingAuthorizer struct {
	mu      sync.Mutex
	calls   int
	allowed bool
	err     error
}

func (a *countingAuthorizer) IsAuthorized(context.Context, core.SecurityIdentity, []string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	return a.allowed, a.err
}

func (a *countingAuthorizer) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

func TestCachedAuthorizer_MissFetchThenHit(t *testing.T) {
	base := &countingAuthorizer{allowed: true}
	authorizer, err := NewCachedAuthorizer(base, newTestCacheService(t))
	if err != nil {
		t.Fatalf("new cached authorizer: %v", err)
	}
	identity := core.SecurityIdentity{Principal: "alice", Roles: []string{"teller", "auditor"}}

	for i := 0; i < 3; i++ {
		allowed, err := authorizer.IsAuthorized(context.Background(), identity, []string{"teller"})
		if err != nil {
			t.Fatalf("authorize #%d: %v", i, err)
		}
		if !allowed {
			t.Fatalf("expected authorize #%d to allow", i)
		}
	}
	if base.callCount() != 1 {
		t.Fatalf("expected one base call, got %d", base.callCount())
	}

	// role order does not change the key
	reordered := core.SecurityIdentity{Principal: "alice", Roles: []string{"auditor", "teller", "teller"}}
	if _, err := authorizer.IsAuthorized(context.Background(), reordered, []string{" teller "}); err != nil {
		t.Fatalf("authorize reordered: %v", err)
	}
	if base.callCount() != 1 {
		t.Fatalf("expected reordered roles to hit cache, got %d base calls", base.callCount())
	}

	if _, err := authorizer.IsAuthorized(context.Background(), identity, []string{"admin"}); err != nil {
		t.Fatalf("authorize admin: %v", err)
	}
	if base.callCount() != 2 {
		t.Fatalf("expected different requirement to miss, got %d base calls", base.callCount())
	}
}

func TestCachedAuthorizer_CachesDenials(t *testing.T) {
	base := &countingAuthorizer{allowed: false}
	authorizer, err := NewCachedAuthorizer(base, newTestCacheService(t))
	if err != nil {
		t.Fatalf("new cached authorizer: %v", err)
	}
	identity := core.SecurityIdentity{Principal: "mallory", Roles: []string{"guest"}}
	for i := 0; i < 2; i++ {
		allowed, err := authorizer.IsAuthorized(context.Background(), identity, []string{"admin"})
		if err != nil {
			t.Fatalf("authorize: %v", err)
		}
		if allowed {
			t.Fatalf("expected denial")
		}
	}
	if base.callCount() != 1 {
		t.Fatalf("expected cached denial, got %d base calls", base.callCount())
	}
}

func TestCachedAuthorizer_PropagatesBaseErrors(t *testing.T) {
	boom := errors.New("policy store offline")
	base := &countingAuthorizer{err: boom}
	authorizer, err := NewCachedAuthorizer(base, newTestCacheService(t))
	if err != nil {
		t.Fatalf("new cached authorizer: %v", err)
	}
	_, err = authorizer.IsAuthorized(context.Background(), core.SecurityIdentity{Principal: "alice"}, []string{"admin"})
	if !errors.Is(err, boom) {
		t.Fatalf("expected base error propagation, got %v", err)
	}
}

func TestCachedAuthorizer_InvalidateForcesRefetch(t *testing.T) {
	base := &countingAuthorizer{allowed: true}
	authorizer, err := NewCachedAuthorizer(base, newTestCacheService(t))
	if err != nil {
		t.Fatalf("new cached authorizer: %v", err)
	}
	identity := core.SecurityIdentity{Principal: "alice", Roles: []string{"admin"}}
	ctx := context.Background()
	if _, err := authorizer.IsAuthorized(ctx, identity, []string{"admin"}); err != nil {
		t.Fatalf("authorize: %v", err)
	}

	base.mu.Lock()
	base.allowed = false
	base.mu.Unlock()
	if err := authorizer.Invalidate(ctx, identity, []string{"admin"}); err != nil {
		t.Fatalf("invalidate: %v", err)
	}

	allowed, err := authorizer.IsAuthorized(ctx, identity, []string{"admin"})
	if err != nil {
		t.Fatalf("authorize after invalidate: %v", err)
	}
	if allowed {
		t.Fatalf("expected refreshed denial after invalidate")
	}
	if base.callCount() != 2 {
		t.Fatalf("expected refetch after invalidate, got %d base calls", base.callCount())
	}
}

func TestCachedAuthorizer_WithContainer(t *testing.T) {
	authorizer, err := NewDefaultCachedAuthorizer(core.NewRoleAuthorizer())
	if err != nil {
		t.Fatalf("new default cached authorizer: %v", err)
	}
	container, err := core.NewContainer(core.DefaultConfig(), core.WithAuthorizer(authorizer))
	if err != nil {
		t.Fatalf("new container: %v", err)
	}
	defer container.Close()
	if _, err := container.Deploy(context.Background(), core.DeploymentSpec{
		ID:      "vault",
		Factory: func(context.Context) (any, error) { return &struct{}{}, nil },
		Methods: []core.MethodSpec{{
			Name:  "open",
			Roles: []string{"keyholder"},
			Handle: core.Handler0(func(context.Context, *struct{}) (bool, error) {
				return true, nil
			}),
		}},
	}); err != nil {
		t.Fatalf("deploy: %v", err)
	}

	invoke := func(roles ...string) error {
		_, err := container.Invoke(context.Background(), core.InvokeRequest{
			ComponentID: "vault",
			Method:      core.BusinessMethod("open"),
			Identity:    core.SecurityIdentity{Principal: "alice", Roles: roles},
		})
		return err
	}
	if err := invoke("keyholder"); err != nil {
		t.Fatalf("expected keyholder to be allowed: %v", err)
	}
	if kind := core.FaultKindOf(invoke("guest")); kind != core.FaultUnauthorized {
		t.Fatalf("expected unauthorized for guest, got %q", kind)
	}
}

func TestAuthorizationCacheKey_Contract(t *testing.T) {
	key := AuthorizationCacheKey(
		core.SecurityIdentity{Principal: "alice/ops", Roles: []string{"b", "a", ""}},
		[]string{"admin"},
	)
	expected := "go-container::authz::v1::alice%2Fops::a%2Cb::admin"
	if key != expected {
		t.Fatalf("unexpected cache key: got %q want %q", key, expected)
	}
}

func TestNewCachedAuthorizer_RequiresCollaborators(t *testing.T) {
	if _, err := NewCachedAuthorizer(nil, newTestCacheService(t)); err == nil {
		t.Fatalf("expected error for nil base authorizer")
	}
	if _, err := NewCachedAuthorizer(core.NewRoleAuthorizer(), nil); err == nil {
		t.Fatalf("expected error for nil cache service")
	}
}

func newTestCacheService(t *testing.T) repositorycache.CacheService {
	t.Helper()
	config := repositorycache.DefaultConfig()
	config.TTL = time.Minute
	service, err := repositorycache.NewCacheService(config)
	if err != nil {
		t.Fatalf("new cache service: %v", err)
	}
	return service
}
