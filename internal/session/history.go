package session

// State history for lag compensation: a small ring of recent pose samples
// per connection, queried by timestamp to reconstruct where a remote player
// "actually was" at a past instant.

// HistoryDepth is the number of snapshots retained per connection. The
// oldest entry is silently overwritten on wrap.
const HistoryDepth = 5

// Snapshot is one historical pose sample.
type Snapshot struct {
	Position  [3]float32
	Rotation  [3]float32
	Velocity  [3]float32
	Timestamp int64
}

// History is a fixed-depth ring of snapshots. Timestamps are non-decreasing
// within the live window because Record is driven by the simulation tick.
type History struct {
	frames [HistoryDepth]Snapshot
	head   int
	filled bool
}

// Record stores a snapshot, overwriting the oldest entry.
func (h *History) Record(s Snapshot) {
	h.frames[h.head] = s
	h.head = (h.head + 1) % HistoryDepth
	if h.head == 0 {
		h.filled = true
	}
}

// Latest returns the most recently recorded snapshot.
func (h *History) Latest() (Snapshot, bool) {
	if h.head == 0 && !h.filled {
		return Snapshot{}, false
	}
	idx := (h.head - 1 + HistoryDepth) % HistoryDepth
	return h.frames[idx], true
}

// At reconstructs the pose at target (milliseconds). It brackets target
// between the newest snapshot at-or-before it and the oldest snapshot after
// that one, then linearly interpolates. With no later frame the earlier one
// is returned as-is; with no bracketing frame at all the most recent
// snapshot is returned — never an extrapolation.
func (h *History) At(target int64) (Snapshot, bool) {
	var before, after *Snapshot

	limit := h.head
	if h.filled {
		limit = HistoryDepth
	}

	for i := 0; i < limit; i++ {
		f := &h.frames[i]
		if f.Timestamp <= target {
			if before == nil || f.Timestamp > before.Timestamp {
				before = f
			}
		}
	}

	if before != nil {
		for i := 0; i < limit; i++ {
			f := &h.frames[i]
			if f.Timestamp > before.Timestamp {
				if after == nil || f.Timestamp < after.Timestamp {
					after = f
				}
			}
		}
	}

	switch {
	case before != nil && after != nil:
		t := float32(target-before.Timestamp) / float32(after.Timestamp-before.Timestamp)
		if t < 0 {
			t = 0
		}
		if t > 1 {
			t = 1
		}
		return lerpSnapshot(before, after, t, target), true

	case before != nil:
		return *before, true

	default:
		return h.Latest()
	}
}

func lerpSnapshot(a, b *Snapshot, t float32, target int64) Snapshot {
	out := Snapshot{Timestamp: target}
	for i := 0; i < 3; i++ {
		out.Position[i] = a.Position[i] + (b.Position[i]-a.Position[i])*t
		out.Rotation[i] = a.Rotation[i] + (b.Rotation[i]-a.Rotation[i])*t
		out.Velocity[i] = a.Velocity[i] + (b.Velocity[i]-a.Velocity[i])*t
	}
	return out
}
