package session

import "math"

// Movement anti-cheat: a local statistical plausibility check, not a proof.
// Each accepted position update is compared against a generous speed
// ceiling; implausible moves are rejected and feed an escalating
// suspicion → warning → violation ladder plus a decaying trust score.
// Kick/ban policy on repeated violations belongs to the caller.

// Speed ceilings in world units per second. Deliberately lenient — the
// horizontal ceiling is vehicle speed, so legitimate players on foot never
// trip the check.
const (
	maxHorizontalSpeed = 50.0
	maxFallSpeed       = 60.0

	// slack multiplies the allowed distance before a move counts as
	// suspicious, absorbing timer skew and dropped updates.
	slack = 1.5

	suspicionThreshold = 10
	warningThreshold   = 3
)

// Validator holds one connection's anti-cheat state.
type Validator struct {
	lastPosition [3]float32
	lastUpdate   int64
	hasBaseline  bool
	suppressNext bool

	Suspicion  int
	Warnings   int
	Violations int
	Trust      float64 // ∈ [0,1], starts neutral
}

func (v *Validator) init() {
	v.Trust = 0.5
}

// Suppress skips validation for the next update. Call after a scripted
// teleport or respawn so the jump is not flagged.
func (v *Validator) Suppress() {
	v.suppressNext = true
}

// Validate checks a reported position against the previous committed one.
// A valid move commits the position and recovers trust; a suspicious move
// is rejected (position NOT committed), decays trust, and walks the
// escalation ladder. The first update only establishes the baseline.
func (v *Validator) Validate(pos [3]float32, now int64) bool {
	if !v.hasBaseline || v.suppressNext {
		v.commit(pos, now)
		v.hasBaseline = true
		v.suppressNext = false
		return true
	}

	elapsed := float64(now-v.lastUpdate) / 1000.0
	if elapsed < 0.001 {
		elapsed = 0.001
	}

	dx := float64(pos[0] - v.lastPosition[0])
	dy := float64(pos[1] - v.lastPosition[1])
	dz := float64(pos[2] - v.lastPosition[2])
	distance := math.Sqrt(dx*dx + dy*dy + dz*dz)

	maxDistance := maxHorizontalSpeed * elapsed
	maxVertical := maxFallSpeed * elapsed

	if distance > maxDistance*slack || math.Abs(dz) > maxVertical*slack {
		v.Suspicion++
		v.Trust *= 0.95

		if v.Suspicion > suspicionThreshold {
			v.Warnings++
			if v.Warnings > warningThreshold {
				v.Violations++
			}
		}
		return false
	}

	v.Trust = math.Min(1.0, v.Trust*1.01)
	v.commit(pos, now)
	return true
}

func (v *Validator) commit(pos [3]float32, now int64) {
	v.lastPosition = pos
	v.lastUpdate = now
}
