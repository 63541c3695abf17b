// Command client is a headless duel client. It predicts its own fighter
// locally, reconciles the opponent through the host's relayed inputs and logs
// what a renderer would draw.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"math"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"rollback-duel/internal/api"
	"rollback-duel/internal/config"
	"rollback-duel/internal/host"
	"rollback-duel/internal/netplay"
	"rollback-duel/internal/sim"
)

// engageRange is the distance at which the bot stops walking and swings.
const engageRange = 90

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Println("💡 No .env file found, using environment variables only")
	}

	appConfig := config.Load()
	clientCfg := appConfig.Client
	hostCfg := appConfig.Host

	predictor, err := netplay.New(netplay.Config{
		ArenaID:       hostCfg.ArenaID,
		LocalID:       clientCfg.PlayerID,
		PlayerA:       hostCfg.PlayerA,
		PlayerB:       hostCfg.PlayerB,
		Seed:          hostCfg.Seed,
		Tuning:        appConfig.Tuning,
		InterpDelayMs: clientCfg.InterpDelayMs,
	})
	if err != nil {
		log.Fatalf("❌ %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if clientCfg.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(clientCfg.Duration)*time.Second)
		defer cancel()
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, clientCfg.ServerURL, nil)
	if err != nil {
		log.Fatalf("❌ Failed to connect to %s: %v", clientCfg.ServerURL, err)
	}
	log.Printf("🔌 Connected to %s as %s", clientCfg.ServerURL, clientCfg.PlayerID)

	c := &client{
		conn:      conn,
		predictor: predictor,
		start:     time.Now(),
		frameRate: clientCfg.FrameRate,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.readLoop(gctx) })
	g.Go(func() error { return c.frameLoop(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		c.close()
		return nil
	})

	err = g.Wait()
	stats := predictor.Stats()
	log.Printf("📊 Final: tick %d, %d rollbacks, %d skipped, %d resyncs",
		predictor.Tick(), stats.Rollbacks, stats.SkippedRemote, stats.Resyncs)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		log.Fatalf("❌ %v", err)
	}
}

type client struct {
	conn      *websocket.Conn
	predictor *netplay.Predictor
	start     time.Time
	frameRate int

	closeOnce sync.Once
	held      sim.Button
	frames    uint64
}

func (c *client) nowMs() float64 {
	return float64(time.Since(c.start).Microseconds()) / 1000
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		c.conn.Close()
	})
}

// readLoop feeds host messages into the predictor until the connection closes.
func (c *client) readLoop(ctx context.Context) error {
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Println("🔌 Server closed the connection")
				return context.Canceled
			}
			return err
		}

		env, err := api.DecodeEnvelope(msg)
		if err != nil {
			log.Printf("⚠️ %v", err)
			continue
		}

		switch env.Type {
		case api.MessageSnapshot:
			var p host.Published
			if err := json.Unmarshal(env.Data, &p); err != nil {
				log.Printf("⚠️ Bad snapshot: %v", err)
				continue
			}
			c.predictor.ApplyAuthoritative(p.HostSnapshot, c.nowMs())
			if ev := p.LastEvent; ev != nil {
				log.Printf("🔔 %s at tick %d (phase %s, stocks %v)", ev.Type, ev.Tick, p.Phase, p.Stocks)
			}
		case api.MessageAction:
			var r host.Relayed
			if err := json.Unmarshal(env.Data, &r); err != nil {
				log.Printf("⚠️ Bad relay: %v", err)
				continue
			}
			c.predictor.ApplyRemote(r.Action, r.Tick)
		}
	}
}

// frameLoop advances the prediction at the client frame rate, drives the
// scripted fighter and logs the rendered view once per second.
func (c *client) frameLoop(ctx context.Context) error {
	ticker := time.NewTicker(time.Second / time.Duration(c.frameRate))
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			dt := float64(now.Sub(last).Microseconds()) / 1000
			last = now

			c.predictor.Advance(dt, c.nowMs())
			view := c.predictor.View(c.nowMs())
			if err := c.drive(view); err != nil {
				return err
			}

			c.frames++
			if c.frames%uint64(c.frameRate) == 0 {
				log.Printf("🎮 tick %d %s | me x=%.0f y=%.0f hp=%d | them x=%.0f y=%.0f hp=%d",
					view.Tick, view.Phase, view.Local.X, view.Local.Y, view.Local.HP,
					view.Remote.X, view.Remote.Y, view.Remote.HP)
			}
		}
	}
}

// drive picks the held buttons for this frame and sends any change.
func (c *client) drive(v netplay.View) error {
	var want sim.Button
	if v.RemoteOK {
		gap := v.Remote.X - v.Local.X
		switch {
		case gap > engageRange:
			want |= sim.ButtonRight
		case gap < -engageRange:
			want |= sim.ButtonLeft
		case c.held&sim.ButtonAttack == 0:
			want |= sim.ButtonAttack
		}
		if v.Remote.Y > v.Local.Y+40 && math.Abs(gap) < 2*engageRange {
			want |= sim.ButtonJump
		}
	}

	changed := want ^ c.held
	if changed == 0 {
		return nil
	}
	flags := sim.InputFlags{Set: changed, Down: want & changed}
	c.held = want

	a, tick := c.predictor.Input(flags, time.Since(c.start).Milliseconds())
	msg, err := api.EncodeEnvelope(api.MessageAction, api.ActionMessage{Action: a, Tick: &tick})
	if err != nil {
		return err
	}
	c.conn.SetWriteDeadline(time.Now().Add(time.Second))
	return c.conn.WriteMessage(websocket.TextMessage, msg)
}
