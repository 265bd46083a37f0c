package core

import (
	"context"
	"errors"
	"testing"
)

func permissionDeployment(t *testing.T) *Deployment {
	t.Helper()
	noop := Handler0(func(context.Context, *accountWorker) (bool, error) { return true, nil })
	deployment, err := NewDeployment(DeploymentSpec{
		ID:           "vault",
		Factory:      (&workerFactory{}).New,
		DefaultRoles: []string{"member"},
		Methods: []MethodSpec{
			{Name: "open", Roles: []string{"keyholder", "admin"}, Handle: noop},
			{Name: "peek", Handle: noop},
			{Name: "public", Roles: []string{}, Handle: noop},
			{Name: "sealed", Excluded: true, Roles: []string{"admin"}, Handle: noop},
		},
	})
	if err != nil {
		t.Fatalf("new deployment: %v", err)
	}
	return deployment
}

func TestAuthorizeMethod(t *testing.T) {
	deployment := permissionDeployment(t)
	authorizer := NewRoleAuthorizer("root")
	ctx := context.Background()

	cases := []struct {
		name   string
		method string
		roles  []string
		want   bool
	}{
		{name: "explicit role granted", method: "open", roles: []string{"keyholder"}, want: true},
		{name: "explicit role missing", method: "open", roles: []string{"member"}, want: false},
		{name: "default roles apply", method: "peek", roles: []string{"member"}, want: true},
		{name: "default roles enforced", method: "peek", roles: []string{"guest"}, want: false},
		{name: "empty role list is unchecked", method: "public", roles: nil, want: true},
		{name: "excluded denies admin", method: "sealed", roles: []string{"admin"}, want: false},
		{name: "excluded denies super role", method: "sealed", roles: []string{"root"}, want: false},
		{name: "super role bypasses roles", method: "open", roles: []string{"root"}, want: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := AuthorizeMethod(ctx, authorizer, deployment, BusinessMethod(tc.method), SecurityIdentity{
				Principal: "p",
				Roles:     tc.roles,
			})
			if err != nil {
				t.Fatalf("authorize: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestAuthorizeMethod_NilAuthorizerDeniesCheckedMethods(t *testing.T) {
	deployment := permissionDeployment(t)
	allowed, err := AuthorizeMethod(context.Background(), nil, deployment, BusinessMethod("open"), SecurityIdentity{Roles: []string{"admin"}})
	if err != nil || allowed {
		t.Fatalf("expected denial without an authorizer, got %v %v", allowed, err)
	}
	allowed, _ = AuthorizeMethod(context.Background(), nil, deployment, BusinessMethod("public"), SecurityIdentity{})
	if !allowed {
		t.Fatalf("expected unchecked method to pass without an authorizer")
	}
}

func TestAuthorizeMethod_PropagatesAuthorizerError(t *testing.T) {
	deployment := permissionDeployment(t)
	boom := errors.New("directory offline")
	_, err := AuthorizeMethod(context.Background(), &countingAuthorizer{err: boom}, deployment, BusinessMethod("open"), SecurityIdentity{})
	if !errors.Is(err, boom) {
		t.Fatalf("expected authorizer error, got %v", err)
	}
}
