package session

import "testing"

func newValidator() *Validator {
	v := &Validator{}
	v.init()
	return v
}

func TestValidateFirstUpdateSetsBaseline(t *testing.T) {
	v := newValidator()

	// Any first position is accepted; there is nothing to compare against.
	if !v.Validate([3]float32{9999, 9999, 9999}, 0) {
		t.Fatal("baseline update rejected")
	}
	if v.Suspicion != 0 {
		t.Error("baseline update raised suspicion")
	}
}

func TestValidateRejectsTeleport(t *testing.T) {
	v := newValidator()
	v.Validate([3]float32{0, 0, 0}, 0)

	trustBefore := v.Trust

	// 1000 units in 16 ms is far beyond the ceiling.
	if v.Validate([3]float32{1000, 0, 0}, 16) {
		t.Fatal("teleport accepted")
	}
	if v.Suspicion != 1 {
		t.Errorf("suspicion = %d, want 1", v.Suspicion)
	}
	if v.Trust >= trustBefore {
		t.Errorf("trust did not decay: %g -> %g", trustBefore, v.Trust)
	}

	// The rejected position must not become the new baseline: a small move
	// from the ORIGINAL position still validates.
	if !v.Validate([3]float32{0.5, 0, 0}, 32) {
		t.Error("legitimate move after rejection was refused")
	}
}

func TestValidateAcceptsPlausibleMovement(t *testing.T) {
	v := newValidator()

	// 10 units/second along x, sampled every 100 ms. Comfortably legal.
	now := int64(0)
	for i := 0; i < 20; i++ {
		pos := [3]float32{float32(i), 0, 0}
		if !v.Validate(pos, now) {
			t.Fatalf("legal move %d rejected", i)
		}
		now += 100
	}
	if v.Suspicion != 0 {
		t.Errorf("legal movement raised suspicion to %d", v.Suspicion)
	}
}

func TestValidateTrustRecovers(t *testing.T) {
	v := newValidator()
	v.Validate([3]float32{0, 0, 0}, 0)

	// A few violations knock trust down.
	for i := 0; i < 5; i++ {
		v.Validate([3]float32{5000, 0, 0}, int64(16*(i+1)))
	}
	low := v.Trust
	if low >= 0.5 {
		t.Fatalf("trust did not drop: %g", low)
	}

	// Sustained clean play recovers it, capped at 1.0.
	now := int64(1000)
	for i := 0; i < 200; i++ {
		v.Validate([3]float32{float32(i) * 0.1, 0, 0}, now)
		now += 100
	}
	if v.Trust <= low {
		t.Errorf("trust did not recover: %g -> %g", low, v.Trust)
	}
	if v.Trust > 1.0 {
		t.Errorf("trust exceeded cap: %g", v.Trust)
	}
}

func TestValidateEscalationLadder(t *testing.T) {
	v := newValidator()
	v.Validate([3]float32{0, 0, 0}, 0)

	now := int64(16)
	rejections := 0
	for v.Violations == 0 && rejections < 1000 {
		if !v.Validate([3]float32{float32(10000 + rejections), 0, 0}, now) {
			rejections++
		}
		now += 16
	}

	if v.Violations == 0 {
		t.Fatal("violations never escalated")
	}
	if v.Warnings <= warningThreshold {
		t.Errorf("violation recorded with only %d warnings", v.Warnings)
	}
	if v.Suspicion <= suspicionThreshold {
		t.Errorf("violation recorded with only %d suspicion", v.Suspicion)
	}
}

func TestSuppressSkipsOneValidation(t *testing.T) {
	v := newValidator()
	v.Validate([3]float32{0, 0, 0}, 0)

	// A scripted teleport is exempted exactly once.
	v.Suppress()
	if !v.Validate([3]float32{5000, 0, 0}, 16) {
		t.Fatal("suppressed teleport rejected")
	}

	// The exemption does not linger.
	if v.Validate([3]float32{-5000, 0, 0}, 32) {
		t.Error("second teleport accepted without suppression")
	}
}

func TestValidateVerticalCeiling(t *testing.T) {
	v := newValidator()
	v.Validate([3]float32{0, 0, 0}, 0)

	// 100 units straight down in 100 ms is 1000 u/s, far past both ceilings.
	if v.Validate([3]float32{0, 0, -100}, 100) {
		t.Error("implausible fall accepted")
	}
}
