package sim

// moveHorizontal accelerates toward exactly one held direction, otherwise
// applies friction. Holding both directions counts as holding neither.
func (s *Sim) moveHorizontal(p *PlayerState, c *Control, dt float64) {
	left := c.Latched&ButtonLeft != 0
	right := c.Latched&ButtonRight != 0

	if left != right {
		dir := 1
		if left {
			dir = -1
		}
		p.VX += float64(dir) * s.tuning.RunAccel * dt
		p.VX = clamp(p.VX, -s.tuning.MaxRunSpeed, s.tuning.MaxRunSpeed)
		p.Facing = dir
		return
	}

	friction := s.tuning.AirFriction
	if p.Grounded {
		friction = s.tuning.GroundFriction
	}
	p.VX = towardZero(p.VX, friction*dt)
}

// jump launches a grounded player on the step the button goes down.
// The launch speed is fixed: there are no variable-height jumps.
func (s *Sim) jump(p *PlayerState, c *Control) {
	if c.Jump.Rising() && p.Grounded {
		p.VY = s.tuning.JumpVelocity
		p.Grounded = false
	}
}

func (s *Sim) applyGravity(p *PlayerState, dt float64) {
	p.VY -= s.tuning.Gravity * dt
}

// integrate moves the player and clamps it into the arena. Velocity pointing
// out of a wall is zeroed; touching the floor grounds the player.
func (s *Sim) integrate(p *PlayerState, dt float64) {
	p.X += p.VX * dt
	p.Y += p.VY * dt

	if p.X <= 0 {
		p.X = 0
		if p.VX < 0 {
			p.VX = 0
		}
	} else if p.X >= s.tuning.ArenaWidth {
		p.X = s.tuning.ArenaWidth
		if p.VX > 0 {
			p.VX = 0
		}
	}

	switch {
	case p.Y <= 0:
		p.Y = 0
		if p.VY < 0 {
			p.VY = 0
		}
		p.Grounded = true
	case p.Y >= s.tuning.ArenaHeight:
		p.Y = s.tuning.ArenaHeight
		if p.VY > 0 {
			p.VY = 0
		}
		p.Grounded = false
	default:
		p.Grounded = false
	}
}

// towardZero reduces |v| by amount without crossing zero.
func towardZero(v, amount float64) float64 {
	switch {
	case v > amount:
		return v - amount
	case v < -amount:
		return v + amount
	default:
		return 0
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
