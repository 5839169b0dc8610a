package config

import (
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("SLACK_BOT_TOKEN", "xoxb-test")
	t.Setenv("SLACK_APP_TOKEN", "xapp-test")
	t.Setenv("AGENT_API_KEY", "key-test")

	// Pin the optional knobs so ambient environment cannot skew defaults.
	optional := []string{
		"PORT", "SLACK_DEBUG",
		"AGENT_BASE_URL", "AGENT_ID", "AGENT_USER_ID",
		"AGENT_TEMPERATURE", "AGENT_TOP_P", "AGENT_MAX_TOKENS", "AGENT_TIMEOUT",
		"SESSION_TTL", "SESSION_SWEEP_INTERVAL",
	}
	for _, key := range optional {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}

	if cfg.Server.Addr != ":8080" {
		t.Fatalf("unexpected addr: %s", cfg.Server.Addr)
	}
	if cfg.Agent.BaseURL != "http://localhost:8787/v1/chat" {
		t.Fatalf("unexpected base url: %s", cfg.Agent.BaseURL)
	}
	if cfg.Agent.Timeout != 30 {
		t.Fatalf("unexpected timeout: %d", cfg.Agent.Timeout)
	}
	if cfg.Session.TTL != 24*time.Hour {
		t.Fatalf("unexpected ttl: %v", cfg.Session.TTL)
	}
	if cfg.Session.SweepInterval != 24*time.Hour {
		t.Fatalf("unexpected sweep interval: %v", cfg.Session.SweepInterval)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	cases := []string{"SLACK_BOT_TOKEN", "SLACK_APP_TOKEN", "AGENT_API_KEY"}

	for _, missing := range cases {
		t.Run(missing, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(missing, "")

			if _, err := Load(); err == nil {
				t.Fatalf("expected error when %s is missing", missing)
			}
		})
	}
}

func TestLoadSessionOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SESSION_TTL", "45m")
	t.Setenv("SESSION_SWEEP_INTERVAL", "5m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}

	if cfg.Session.TTL != 45*time.Minute {
		t.Fatalf("unexpected ttl: %v", cfg.Session.TTL)
	}
	if cfg.Session.SweepInterval != 5*time.Minute {
		t.Fatalf("unexpected sweep interval: %v", cfg.Session.SweepInterval)
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SESSION_TTL", "yesterday")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for malformed SESSION_TTL")
	}
}
