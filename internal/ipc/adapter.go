package ipc

import (
	"time"

	"rollback-duel/internal/host"
	"rollback-duel/internal/match"
	"rollback-duel/internal/sim"
)

// FromPublished converts a published host snapshot to its IPC message.
// Players are listed in the order given by ids.
func FromPublished(p *host.Published, ids [2]string) *SnapshotMessage {
	msg := &SnapshotMessage{
		Sequence:  p.Sequence,
		Timestamp: p.Timestamp.UnixNano(),
		Tick:      p.Tick,
		TMs:       p.TMs,
		MatchID:   p.MatchID,
		Phase:     uint8(p.Phase),
		Stocks:    make(map[string]int, len(p.Stocks)),
		Players:   make([]PlayerData, 0, len(ids)),
	}
	for id, n := range p.Stocks {
		msg.Stocks[id] = n
	}

	for _, id := range ids {
		ps, ok := p.Players[id]
		if !ok {
			continue
		}
		msg.Players = append(msg.Players, PlayerData{
			ID:                  id,
			X:                   ps.X,
			Y:                   ps.Y,
			VX:                  ps.VX,
			VY:                  ps.VY,
			Facing:              ps.Facing,
			HP:                  ps.HP,
			Grounded:            ps.Grounded,
			AttackActiveUntilMs: ps.AttackActiveUntilMs,
			NextAttackAtMs:      ps.NextAttackAtMs,
		})
	}

	if ev := p.LastEvent; ev != nil {
		ed := &EventData{
			Type:  uint8(ev.Type),
			Tick:  ev.Tick,
			Phase: uint8(ev.Phase),
		}
		if ko := ev.KO; ko != nil {
			ed.Loser = ko.Loser
			ed.Winner = ko.Winner
			ed.Losers = append([]string(nil), ko.Losers...)
			ed.Double = ko.Double
			ed.Eliminated = append([]string(nil), ko.Eliminated...)
		}
		msg.Event = ed
	}

	return msg
}

// ToHostSnapshot converts an IPC message back to a match.HostSnapshot so
// spectators can reuse the same types as the host.
func (msg *SnapshotMessage) ToHostSnapshot() match.HostSnapshot {
	snap := match.HostSnapshot{
		Snapshot: sim.Snapshot{
			Tick:    msg.Tick,
			TMs:     msg.TMs,
			Players: make(map[string]sim.PlayerState, len(msg.Players)),
		},
		MatchID: msg.MatchID,
		Phase:   match.Phase(msg.Phase),
		Stocks:  msg.Stocks,
	}

	for _, p := range msg.Players {
		snap.Players[p.ID] = sim.PlayerState{
			X:                   p.X,
			Y:                   p.Y,
			VX:                  p.VX,
			VY:                  p.VY,
			Facing:              p.Facing,
			HP:                  p.HP,
			Grounded:            p.Grounded,
			AttackActiveUntilMs: p.AttackActiveUntilMs,
			NextAttackAtMs:      p.NextAttackAtMs,
		}
	}

	if ed := msg.Event; ed != nil {
		ev := &match.Event{
			Type:  match.EventType(ed.Type),
			Tick:  ed.Tick,
			Phase: match.Phase(ed.Phase),
		}
		if ev.Type == match.EventTypeKO {
			ev.KO = &match.KOPayload{
				Loser:      ed.Loser,
				Winner:     ed.Winner,
				Losers:     ed.Losers,
				Double:     ed.Double,
				Stocks:     msg.Stocks,
				Eliminated: ed.Eliminated,
			}
		}
		snap.LastEvent = ev
	}

	return snap
}

// PublishedAt returns the host publication time of the message.
func (msg *SnapshotMessage) PublishedAt() time.Time {
	return time.Unix(0, msg.Timestamp)
}
