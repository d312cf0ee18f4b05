package main

import (
	"context"
	"errors"
	"testing"

	"eclatpos/backend/internal/config"
)

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "short"})
	if err == nil {
		t.Fatalf("expected weak security config to be rejected")
	}
	err = validateSecurityConfig(config.Config{AuthSecret: "0123456789abcdef0123456789abcdef", AdminPassword: "abc"})
	if err == nil {
		t.Fatalf("expected short bootstrap password to be rejected")
	}
	err = validateSecurityConfig(config.Config{AuthSecret: "0123456789abcdef0123456789abcdef", AllowedOrigin: "*", DatabaseURL: "postgres://x"})
	if err == nil {
		t.Fatalf("expected wildcard origin with a database to be rejected")
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "0123456789abcdef0123456789abcdef", AdminPassword: "argan-rose-42"})
	if err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}

type provisionerStub struct {
	created map[string]string
	failOn  string
}

func (p *provisionerStub) EnsureUser(_ context.Context, username string, _ string, role string) error {
	if username == p.failOn {
		return errors.New("boom")
	}
	if p.created == nil {
		p.created = map[string]string{}
	}
	p.created[username] = role
	return nil
}

func TestBootstrapOperatorsOnlyCreatesConfiguredAccounts(t *testing.T) {
	stub := &provisionerStub{}
	if err := bootstrapOperators(context.Background(), stub, config.Config{AdminPassword: "argan-rose-42"}); err != nil {
		t.Fatalf("bootstrap failed: %v", err)
	}
	if len(stub.created) != 1 || stub.created["admin"] != "admin" {
		t.Fatalf("expected only the admin account, got %v", stub.created)
	}

	stub = &provisionerStub{failOn: "eclat"}
	err := bootstrapOperators(context.Background(), stub, config.Config{CashierPassword: "eclat2026"})
	if err == nil {
		t.Fatalf("expected provisioning error to be returned")
	}
}
