package main

import (
	"testing"

	"swarna/backend/internal/config"
	"swarna/backend/internal/pricing"
	"swarna/backend/internal/store"
)

func validConfig() config.Config {
	return config.Config{
		AuthSecret:        "0123456789abcdef0123456789abcdef",
		StockPolicy:       "allow_negative",
		MissingRatePolicy: "error",
	}
}

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	cfg := validConfig()
	cfg.AuthSecret = "short"
	if err := validateSecurityConfig(cfg); err == nil {
		t.Fatalf("expected short auth secret to be rejected")
	}

	cfg = validConfig()
	cfg.BootstrapAdminPass = "abc"
	if err := validateSecurityConfig(cfg); err == nil {
		t.Fatalf("expected weak bootstrap password to be rejected")
	}
}

func TestValidateSecurityConfigRejectsUnknownPolicies(t *testing.T) {
	cfg := validConfig()
	cfg.StockPolicy = "sometimes"
	if err := validateSecurityConfig(cfg); err == nil {
		t.Fatalf("expected unknown stock policy to be rejected")
	}

	cfg = validConfig()
	cfg.MissingRatePolicy = "guess"
	if err := validateSecurityConfig(cfg); err == nil {
		t.Fatalf("expected unknown missing rate policy to be rejected")
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	cfg := validConfig()
	cfg.StockPolicy = "reject"
	cfg.BootstrapAdminPass = "long-enough-pass"
	if err := validateSecurityConfig(cfg); err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}

func TestValidateSecurityConfigFoldsPolicyCase(t *testing.T) {
	cfg := validConfig()
	cfg.StockPolicy = " Reject "
	cfg.MissingRatePolicy = "ZERO"
	if err := validateSecurityConfig(cfg); err != nil {
		t.Fatalf("expected mixed-case policies to pass, got %v", err)
	}
	if store.ParseStockPolicy(cfg.StockPolicy) != store.StockRejectOversell {
		t.Fatalf("expected reject policy to be parsed")
	}
	if pricing.ParseMissingRatePolicy(cfg.MissingRatePolicy) != pricing.MissingRateZero {
		t.Fatalf("expected zero policy to be parsed")
	}
}
