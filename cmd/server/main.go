package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"rollback-duel/internal/api"
	"rollback-duel/internal/config"
	"rollback-duel/internal/host"
	"rollback-duel/internal/ipc"
)

func main() {
	// Load .env file from parent directory
	if err := godotenv.Load("../.env"); err != nil {
		// Try current directory as fallback
		if err := godotenv.Load(".env"); err != nil {
			log.Println("💡 No .env file found, using environment variables only")
		}
	} else {
		log.Println("✅ Loaded environment from ../.env")
	}

	log.Println("🥊 ================================")
	log.Println("🥊  ROLLBACK DUEL - MATCH HOST")
	log.Println("🥊 ================================")

	appConfig := config.Load()
	if err := appConfig.Validate(); err != nil {
		log.Fatalf("❌ Invalid configuration: %v", err)
	}
	hostCfg := appConfig.Host
	tuning := appConfig.Tuning

	log.Printf("🎮 Config: arena %s, %d TPS, %.0fx%.0f, %d HP, rollback window %.0fms",
		hostCfg.ArenaID, hostCfg.TickRate, tuning.ArenaWidth, tuning.ArenaHeight, tuning.MaxHP, tuning.RetentionMs)
	log.Printf("🏁 Rules: %d stocks, KO pause %d ticks, reset %d ticks",
		appConfig.Match.Stocks, appConfig.Match.KOTicks, appConfig.Match.ResetTicks)
	if hostCfg.EventLogPath != "" {
		log.Printf("📝 Event log: %s", hostCfg.EventLogPath)
	}

	h := host.New(hostCfg, tuning, appConfig.Match)
	server := api.NewServer(h, appConfig.Server)

	var feed *ipc.Publisher
	if appConfig.IPC.Enabled {
		feed = ipc.NewPublisher(appConfig.IPC.SocketPath, ipc.HelloMessage{
			MatchID:     h.MatchID(),
			ArenaID:     h.ArenaID(),
			Players:     h.Players(),
			TickRate:    h.TickRate(),
			FixedStepMs: tuning.FixedStepMs,
		})
		if err := feed.Start(); err != nil {
			log.Fatalf("❌ Failed to start spectator feed: %v", err)
		}
		h.OnSnapshot(feed.PublishSnapshot)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := h.Start(); err != nil {
		log.Fatalf("❌ Failed to start match: %v", err)
	}
	log.Printf("✅ Match %s started", h.MatchID())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(gctx)
	})
	g.Go(func() error {
		return api.RunDebugServer(gctx, appConfig.Debug)
	})

	log.Printf("🌐 Snapshot:  http://localhost:%d/api/snapshot", appConfig.Server.Port)
	log.Printf("🔌 WebSocket: ws://localhost:%d/ws", appConfig.Server.Port)

	err := g.Wait()

	log.Println("🛑 Shutting down...")
	h.Stop()
	if feed != nil {
		clients, sent, dropped := feed.GetStats()
		log.Printf("📡 Spectator feed: %d clients, %d snapshots sent, %d dropped", clients, sent, dropped)
		feed.Stop()
	}

	stats := h.Stats()
	log.Printf("📊 Final: tick %d, phase %s, %d actions (%d dropped), %d events logged",
		stats.Tick, stats.Phase, stats.Queue.Drained, stats.Queue.Dropped, stats.EventLog.Total)

	if err != nil {
		log.Fatalf("❌ Server error: %v", err)
	}
	log.Println("👋 Goodbye!")
}
