package sim

// Rect is an axis-aligned rectangle with inclusive edges.
type Rect struct {
	MinX, MinY float64
	MaxX, MaxY float64
}

// Overlaps reports whether the two rectangles share any point.
func (r Rect) Overlaps(o Rect) bool {
	return r.MinX <= o.MaxX && o.MinX <= r.MaxX &&
		r.MinY <= o.MaxY && o.MinY <= r.MaxY
}

// Body returns the hurtbox of a player: centred on X, standing on Y.
func (t Tuning) Body(p PlayerState) Rect {
	half := t.BodyWidth / 2
	return Rect{
		MinX: p.X - half,
		MinY: p.Y,
		MaxX: p.X + half,
		MaxY: p.Y + t.BodyHeight,
	}
}

// AttackBox returns the hit window in front of a player, from its centre to
// AttackRange past the front edge of its body.
func (t Tuning) AttackBox(p PlayerState) Rect {
	reach := t.BodyWidth/2 + t.AttackRange
	box := Rect{MinY: p.Y, MaxY: p.Y + t.AttackHeight}
	if p.Facing < 0 {
		box.MinX, box.MaxX = p.X-reach, p.X
	} else {
		box.MinX, box.MaxX = p.X, p.X+reach
	}
	return box
}

// startAttack opens a new attack instance on the rising edge of the attack
// button once the cooldown has elapsed. Holding the button never re-triggers.
func (s *Sim) startAttack(p *PlayerState, c *Control, nowMs float64) {
	if !c.Attack.Rising() {
		return
	}
	if nowMs+timeEpsilon < p.NextAttackAtMs {
		return
	}
	c.AttackID++
	c.AttackLanded = false
	p.AttackActiveUntilMs = nowMs + s.tuning.AttackActiveMs
	p.NextAttackAtMs = nowMs + s.tuning.AttackCooldownMs
}

// resolveAttacks runs after both players have moved. Each active attack
// instance can damage the opponent once; the hit token keeps later steps of
// the same instance from hitting again.
func (s *Sim) resolveAttacks(nowMs float64) {
	for i := range s.state.Players {
		attacker := &s.state.Players[i]
		c := &s.state.Controls[i]
		if c.AttackID == 0 || c.AttackLanded || nowMs >= attacker.AttackActiveUntilMs {
			continue
		}

		defender := &s.state.Players[1-i]
		if !s.tuning.AttackBox(*attacker).Overlaps(s.tuning.Body(*defender)) {
			continue
		}

		c.AttackLanded = true
		defender.HP -= s.tuning.AttackDamage
		if defender.HP < 0 {
			defender.HP = 0
		}
	}
}
