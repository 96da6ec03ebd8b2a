package stepup

import (
	"bytes"
	"testing"
)

func TestDefaultConfigValidatesWithIssuer(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TOTP.Issuer = "stepup-test"

	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected default preset to validate, got %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing issuer", func(c *Config) { c.TOTP.Issuer = "" }},
		{"digits too short", func(c *Config) { c.TOTP.Digits = 4 }},
		{"digits too long", func(c *Config) { c.TOTP.Digits = 12 }},
		{"zero period", func(c *Config) { c.TOTP.Period = 0 }},
		{"unknown algorithm", func(c *Config) { c.TOTP.Algorithm = "MD5" }},
		{"negative skew", func(c *Config) { c.TOTP.Skew = -1 }},
		{"excessive skew", func(c *Config) { c.TOTP.Skew = 9 }},
		{"zero backup count", func(c *Config) { c.BackupCodes.Count = 0 }},
		{"odd backup length", func(c *Config) { c.BackupCodes.Length = 9 }},
		{"short backup length", func(c *Config) { c.BackupCodes.Length = 4 }},
		{"zero device ttl", func(c *Config) { c.TrustedDevice.TTL = 0 }},
		{"zero challenge ttl", func(c *Config) { c.Challenge.TTL = 0 }},
		{"short signing key", func(c *Config) { c.Challenge.SigningKey = []byte("too-short") }},
		{"zero attempt limit", func(c *Config) { c.Challenge.AttemptLimit = 0 }},
		{"zero op timeout", func(c *Config) { c.RateLimit.OpTimeout = 0 }},
		{"zero failure threshold", func(c *Config) { c.RateLimit.FailureThreshold = 0 }},
		{"zero retry timeout", func(c *Config) { c.RateLimit.RetryTimeout = 0 }},
		{"zero fallback bound", func(c *Config) { c.RateLimit.FallbackMaxEntries = 0 }},
		{"audit enabled without buffer", func(c *Config) {
			c.Audit.Enabled = true
			c.Audit.BufferSize = 0
		}},
	}

	for _, c := range cases {
		cfg := DefaultConfig()
		cfg.TOTP.Issuer = "stepup-test"
		c.mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", c.name)
		}
	}
}

func TestCloneConfigIsolatesMutableFields(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TOTP.Issuer = "stepup-test"
	cfg.Challenge.SigningKey = bytes.Repeat([]byte{0x01}, 32)
	cfg.RateLimit.FailModes = map[string]FailMode{"newsletter": FailOpen}

	clone := cloneConfig(cfg)
	clone.Challenge.SigningKey[0] = 0xFF
	clone.RateLimit.FailModes["newsletter"] = FailClosed

	if cfg.Challenge.SigningKey[0] != 0x01 {
		t.Fatal("expected signing key isolated in clone")
	}
	if cfg.RateLimit.FailModes["newsletter"] != FailOpen {
		t.Fatal("expected fail-mode map isolated in clone")
	}
}

func TestBuilderRequiresDependencies(t *testing.T) {
	cfg := stepupTestConfig()

	if _, err := New().WithConfig(cfg).WithIdentityStore(newFakeIdentityStore()).Build(); err == nil {
		t.Fatal("expected error without redis client")
	}

	mr, rdb := newTestRedis(t)
	defer mr.Close()

	if _, err := New().WithConfig(cfg).WithRedis(rdb).Build(); err == nil {
		t.Fatal("expected error without identity store")
	}

	badCfg := cfg
	badCfg.TOTP.Issuer = ""
	if _, err := New().WithConfig(badCfg).WithRedis(rdb).WithIdentityStore(newFakeIdentityStore()).Build(); err == nil {
		t.Fatal("expected config validation error")
	}
}

func TestBuilderSingleUse(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	b := New().WithConfig(stepupTestConfig()).WithRedis(rdb).WithIdentityStore(newFakeIdentityStore())
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	if _, err := b.Build(); err == nil {
		t.Fatal("expected second Build to fail")
	}
}

func TestBuildGeneratesSigningKeyWhenEmpty(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	cfg := stepupTestConfig()
	cfg.Challenge.SigningKey = nil

	engine, err := New().WithConfig(cfg).WithRedis(rdb).WithIdentityStore(newFakeIdentityStore()).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	if len(engine.config.Challenge.SigningKey) != 32 {
		t.Fatalf("expected generated 32-byte signing key, got %d bytes", len(engine.config.Challenge.SigningKey))
	}
}
