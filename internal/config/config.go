// Package config provides centralized configuration management.
// Every tunable of the duel server and client is defined here with its
// default and the environment variable that overrides it.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"rollback-duel/internal/match"
	"rollback-duel/internal/sim"
)

// =============================================================================
// SIMULATION
// =============================================================================

// TuningFromEnv returns the simulation tuning with environment overrides.
// The fixed step is not configurable: both peers must agree on it.
func TuningFromEnv() sim.Tuning {
	t := sim.DefaultTuning()

	if w := getEnvFloat("ARENA_WIDTH", 0); w > 0 {
		t.ArenaWidth = w
	}
	if h := getEnvFloat("ARENA_HEIGHT", 0); h > 0 {
		t.ArenaHeight = h
	}
	if x := getEnvFloat("SPAWN_A_X", -1); x >= 0 {
		t.SpawnAX = x
	}
	if x := getEnvFloat("SPAWN_B_X", -1); x >= 0 {
		t.SpawnBX = x
	}
	if d := getEnvInt("ATTACK_DAMAGE", -1); d >= 0 {
		t.AttackDamage = d
	}
	if ms := getEnvFloat("ATTACK_COOLDOWN_MS", -1); ms >= 0 {
		t.AttackCooldownMs = ms
	}
	if hp := getEnvInt("MAX_HP", 0); hp > 0 {
		t.MaxHP = hp
	}
	if ms := getEnvFloat("ROLLBACK_RETENTION_MS", 0); ms > 0 {
		t.RetentionMs = ms
	}

	return t
}

// =============================================================================
// MATCH RULES
// =============================================================================

// MatchFromEnv returns phase timers and stock count with environment overrides.
func MatchFromEnv() match.Config {
	cfg := match.DefaultConfig()

	if v := getEnvInt("KO_TICKS", -1); v >= 0 {
		cfg.KOTicks = int64(v)
	}
	if v := getEnvInt("RESET_TICKS", -1); v >= 0 {
		cfg.ResetTicks = int64(v)
	}
	if v := getEnvInt("STOCKS", 0); v > 0 {
		cfg.Stocks = v
	}

	return cfg
}

// =============================================================================
// HOST LOOP
// =============================================================================

// HostConfig holds the authoritative loop settings.
type HostConfig struct {
	ArenaID  string
	PlayerA  string
	PlayerB  string
	Seed     int64
	TickRate int // outer loop ticks per second

	QueueSize int // pending actions before new ones are dropped

	EventLogSize  int     // events kept in memory
	EventLogPath  string  // JSON-lines sink, empty to disable
	EventRate     float64 // events per second accepted into the log
	EventBurst    int
	PublishEvery  int // publish a snapshot every N ticks
	SlowTickLogMs float64
}

// DefaultHost returns the default host configuration.
func DefaultHost() HostConfig {
	return HostConfig{
		ArenaID:       "arena-1",
		PlayerA:       "p1",
		PlayerB:       "p2",
		Seed:          1,
		TickRate:      60,
		QueueSize:     1024,
		EventLogSize:  1000,
		EventRate:     50,
		EventBurst:    100,
		PublishEvery:  1,
		SlowTickLogMs: 8,
	}
}

// HostFromEnv returns host configuration with environment variable overrides.
func HostFromEnv() HostConfig {
	cfg := DefaultHost()

	if v := os.Getenv("ARENA_ID"); v != "" {
		cfg.ArenaID = v
	}
	if v := os.Getenv("PLAYER_A"); v != "" {
		cfg.PlayerA = v
	}
	if v := os.Getenv("PLAYER_B"); v != "" {
		cfg.PlayerB = v
	}
	cfg.Seed = int64(getEnvInt("MATCH_SEED", int(cfg.Seed)))
	if v := getEnvInt("TICK_RATE", 0); v > 0 {
		cfg.TickRate = v
	}
	if v := getEnvInt("ACTION_QUEUE_SIZE", 0); v > 0 {
		cfg.QueueSize = v
	}
	if v := getEnvInt("EVENT_LOG_SIZE", 0); v > 0 {
		cfg.EventLogSize = v
	}
	cfg.EventLogPath = os.Getenv("EVENT_LOG_PATH")
	if v := getEnvFloat("EVENT_RATE", 0); v > 0 {
		cfg.EventRate = v
	}
	if v := getEnvInt("EVENT_BURST", 0); v > 0 {
		cfg.EventBurst = v
	}
	if v := getEnvInt("PUBLISH_EVERY", 0); v > 0 {
		cfg.PublishEvery = v
	}

	return cfg
}

// =============================================================================
// SERVER CONFIGURATION
// =============================================================================

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port           int
	AllowedOrigins []string
	RequestsPerSec float64 // per-IP API rate limit
	RequestBurst   int
	MaxWSClients   int
}

// DefaultServer returns the default server configuration.
func DefaultServer() ServerConfig {
	return ServerConfig{
		Port:           3000,
		AllowedOrigins: []string{"*"},
		RequestsPerSec: 30,
		RequestBurst:   60,
		MaxWSClients:   64,
	}
}

// ServerFromEnv returns server configuration with environment variable overrides.
func ServerFromEnv() ServerConfig {
	cfg := DefaultServer()

	if p := getEnvInt("PORT", 0); p > 0 {
		cfg.Port = p
	}
	if origins := getEnvList("ALLOWED_ORIGINS"); len(origins) > 0 {
		cfg.AllowedOrigins = origins
	}
	if v := getEnvFloat("API_RATE_LIMIT", 0); v > 0 {
		cfg.RequestsPerSec = v
	}
	if v := getEnvInt("API_RATE_BURST", 0); v > 0 {
		cfg.RequestBurst = v
	}
	if v := getEnvInt("MAX_WS_CLIENTS", 0); v > 0 {
		cfg.MaxWSClients = v
	}

	return cfg
}

// =============================================================================
// DEBUG SERVER
// =============================================================================

// DebugConfig controls the pprof/metrics listener.
type DebugConfig struct {
	Enabled bool
	Port    int
}

// DefaultDebug returns the default debug server configuration.
func DefaultDebug() DebugConfig {
	return DebugConfig{
		Enabled: true,
		Port:    6060,
	}
}

// DebugFromEnv returns debug configuration with environment variable overrides.
func DebugFromEnv() DebugConfig {
	cfg := DefaultDebug()

	cfg.Enabled = getEnvBool("DEBUG_SERVER", cfg.Enabled)
	if p := getEnvInt("DEBUG_PORT", 0); p > 0 {
		cfg.Port = p
	}

	return cfg
}

// =============================================================================
// SPECTATOR FEED (IPC)
// =============================================================================

// IPCConfig controls the local snapshot feed for spectator processes.
type IPCConfig struct {
	Enabled    bool
	SocketPath string
}

// DefaultIPC returns the default IPC configuration. The feed is off unless
// asked for.
func DefaultIPC() IPCConfig {
	return IPCConfig{
		Enabled:    false,
		SocketPath: "/tmp/rollback-duel.sock",
	}
}

// IPCFromEnv returns IPC configuration with environment variable overrides.
func IPCFromEnv() IPCConfig {
	cfg := DefaultIPC()

	cfg.Enabled = getEnvBool("IPC_ENABLED", cfg.Enabled)
	if v := os.Getenv("IPC_SOCKET"); v != "" {
		cfg.SocketPath = v
	}

	return cfg
}

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// ClientConfig holds settings for the headless client.
type ClientConfig struct {
	ServerURL     string
	PlayerID      string
	InterpDelayMs float64
	FrameRate     int
	Duration      int // seconds, 0 runs until interrupted
}

// DefaultClient returns the default client configuration.
func DefaultClient() ClientConfig {
	return ClientConfig{
		ServerURL:     "ws://localhost:3000/ws",
		PlayerID:      "p1",
		InterpDelayMs: 100,
		FrameRate:     60,
	}
}

// ClientFromEnv returns client configuration with environment variable overrides.
func ClientFromEnv() ClientConfig {
	cfg := DefaultClient()

	if v := os.Getenv("SERVER_URL"); v != "" {
		cfg.ServerURL = v
	}
	if v := os.Getenv("PLAYER_ID"); v != "" {
		cfg.PlayerID = v
	}
	if v := getEnvFloat("INTERP_DELAY_MS", -1); v >= 0 {
		cfg.InterpDelayMs = v
	}
	if v := getEnvInt("CLIENT_FPS", 0); v > 0 {
		cfg.FrameRate = v
	}
	if v := getEnvInt("CLIENT_DURATION", 0); v > 0 {
		cfg.Duration = v
	}

	return cfg
}

// =============================================================================
// COMPLETE APP CONFIGURATION
// =============================================================================

// AppConfig holds the complete application configuration.
type AppConfig struct {
	Tuning sim.Tuning
	Match  match.Config
	Host   HostConfig
	Server ServerConfig
	Debug  DebugConfig
	IPC    IPCConfig
	Client ClientConfig
}

// Load returns the complete configuration with environment overrides.
func Load() AppConfig {
	return AppConfig{
		Tuning: TuningFromEnv(),
		Match:  MatchFromEnv(),
		Host:   HostFromEnv(),
		Server: ServerFromEnv(),
		Debug:  DebugFromEnv(),
		IPC:    IPCFromEnv(),
		Client: ClientFromEnv(),
	}
}

// Validate reports settings the server cannot start with.
func (c AppConfig) Validate() error {
	if err := c.Tuning.Validate(); err != nil {
		return err
	}
	if c.Host.PlayerA == "" || c.Host.PlayerA == c.Host.PlayerB {
		return fmt.Errorf("config: players must be two distinct non-empty ids, got %q and %q", c.Host.PlayerA, c.Host.PlayerB)
	}
	if c.Host.TickRate <= 0 {
		return fmt.Errorf("config: tick rate must be positive, got %d", c.Host.TickRate)
	}
	return nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
