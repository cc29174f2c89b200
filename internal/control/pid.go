package control

// PID is a single-axis accumulator. The zero value with gains set is ready
// to use. Outputs are not clamped here.
type PID struct {
	Kp float64 `json:"kp"`
	Ki float64 `json:"ki"`
	Kd float64 `json:"kd"`

	// IntegralLimit bounds |integral| when positive.
	IntegralLimit float64 `json:"integral_limit"`

	integral  float64
	prevError float64
}

// NewPID returns a PID with the given gains and an empty history.
func NewPID(kp, ki, kd float64) *PID {
	return &PID{Kp: kp, Ki: ki, Kd: kd}
}

// Update advances the accumulator by dt seconds. With dt <= 0 the integral
// and derivative terms are left untouched.
func (p *PID) Update(err, dt float64) float64 {
	out := p.Kp * err
	if dt > 0 {
		p.integral += err * dt
		if p.IntegralLimit > 0 {
			if p.integral > p.IntegralLimit {
				p.integral = p.IntegralLimit
			} else if p.integral < -p.IntegralLimit {
				p.integral = -p.IntegralLimit
			}
		}
		out += p.Kd * (err - p.prevError) / dt
	}
	out += p.Ki * p.integral
	p.prevError = err
	return out
}

// Reset clears the integral and the previous error.
func (p *PID) Reset() {
	p.integral = 0
	p.prevError = 0
}

// Integral exposes the accumulated integral term.
func (p *PID) Integral() float64 {
	return p.integral
}
