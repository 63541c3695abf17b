package config

import (
	"testing"

	"rollback-duel/internal/match"
	"rollback-duel/internal/sim"
)

// TestLoadDefaults verifies an empty environment yields the defaults
func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Tuning != sim.DefaultTuning() {
		t.Errorf("tuning = %+v, want defaults", cfg.Tuning)
	}
	if cfg.Match != match.DefaultConfig() {
		t.Errorf("match = %+v, want defaults", cfg.Match)
	}
	if cfg.Host.TickRate != 60 || cfg.Server.Port != 3000 {
		t.Errorf("unexpected host/server defaults: %+v %+v", cfg.Host, cfg.Server)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

// TestEnvOverrides verifies environment variables take precedence
func TestEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test, http://b.test")
	t.Setenv("STOCKS", "5")
	t.Setenv("KO_TICKS", "0")
	t.Setenv("ATTACK_DAMAGE", "25")
	t.Setenv("DEBUG_SERVER", "false")
	t.Setenv("PLAYER_A", "alice")
	t.Setenv("TICK_RATE", "not-a-number")
	t.Setenv("IPC_ENABLED", "true")
	t.Setenv("IPC_SOCKET", "/run/duel.sock")

	cfg := Load()

	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d, want 8080", cfg.Server.Port)
	}
	if len(cfg.Server.AllowedOrigins) != 2 || cfg.Server.AllowedOrigins[1] != "http://b.test" {
		t.Errorf("origins = %v", cfg.Server.AllowedOrigins)
	}
	if cfg.Match.Stocks != 5 || cfg.Match.KOTicks != 0 {
		t.Errorf("match = %+v", cfg.Match)
	}
	if cfg.Tuning.AttackDamage != 25 {
		t.Errorf("damage = %d, want 25", cfg.Tuning.AttackDamage)
	}
	if cfg.Debug.Enabled {
		t.Error("debug server should be disabled")
	}
	if !cfg.IPC.Enabled || cfg.IPC.SocketPath != "/run/duel.sock" {
		t.Errorf("ipc = %+v", cfg.IPC)
	}
	if cfg.Host.PlayerA != "alice" {
		t.Errorf("player A = %q", cfg.Host.PlayerA)
	}
	if cfg.Host.TickRate != 60 {
		t.Errorf("invalid tick rate should fall back, got %d", cfg.Host.TickRate)
	}
}

// TestValidateRejectsSamePlayers verifies both slots need distinct ids
func TestValidateRejectsSamePlayers(t *testing.T) {
	t.Setenv("PLAYER_A", "same")
	t.Setenv("PLAYER_B", "same")

	if err := Load().Validate(); err == nil {
		t.Error("expected validation error")
	}
}
