package session

import "testing"

func snapAt(ts int64, x float32) Snapshot {
	return Snapshot{Position: [3]float32{x, 0, 0}, Timestamp: ts}
}

func TestHistoryInterpolatesBetweenFrames(t *testing.T) {
	var h History
	h.Record(snapAt(0, 0))
	h.Record(snapAt(100, 10))

	got, ok := h.At(50)
	if !ok {
		t.Fatal("no snapshot returned")
	}
	if got.Position[0] != 5 {
		t.Errorf("position at t=50: got %g, want 5", got.Position[0])
	}
	if got.Timestamp != 50 {
		t.Errorf("timestamp: got %d, want 50", got.Timestamp)
	}
}

func TestHistoryExactHit(t *testing.T) {
	var h History
	h.Record(snapAt(0, 0))
	h.Record(snapAt(100, 10))

	got, ok := h.At(100)
	if !ok || got.Position[0] != 10 {
		t.Errorf("exact query: got %+v ok=%v", got, ok)
	}
}

func TestHistoryNeverExtrapolates(t *testing.T) {
	var h History
	h.Record(snapAt(0, 0))
	h.Record(snapAt(100, 10))

	// Past the newest frame: clamp to it, do not project forward.
	got, ok := h.At(150)
	if !ok {
		t.Fatal("no snapshot returned")
	}
	if got.Position[0] != 10 {
		t.Errorf("position past newest frame: got %g, want 10", got.Position[0])
	}
}

func TestHistoryBeforeOldestFallsBackToLatest(t *testing.T) {
	var h History
	h.Record(snapAt(1000, 1))
	h.Record(snapAt(1100, 2))

	// Target predates everything retained; the most recent sample is the
	// least wrong answer.
	got, ok := h.At(500)
	if !ok {
		t.Fatal("no snapshot returned")
	}
	if got.Position[0] != 2 {
		t.Errorf("fallback position: got %g, want 2", got.Position[0])
	}
}

func TestHistoryEmpty(t *testing.T) {
	var h History
	if _, ok := h.At(100); ok {
		t.Error("empty history produced a snapshot")
	}
	if _, ok := h.Latest(); ok {
		t.Error("empty history produced a latest snapshot")
	}
}

func TestHistoryOverwritesOldest(t *testing.T) {
	var h History
	for i := 0; i <= HistoryDepth; i++ {
		h.Record(snapAt(int64(i*100), float32(i)))
	}

	// Frame 0 has been overwritten; a query before the surviving window
	// falls back to the newest sample.
	got, ok := h.At(0)
	if !ok {
		t.Fatal("no snapshot returned")
	}
	if got.Position[0] != float32(HistoryDepth) {
		t.Errorf("got %g, want %d", got.Position[0], HistoryDepth)
	}

	latest, ok := h.Latest()
	if !ok || latest.Timestamp != int64(HistoryDepth*100) {
		t.Errorf("latest: %+v ok=%v", latest, ok)
	}
}
