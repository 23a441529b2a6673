package util

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// ──────────────────────────────────────────────────────────────────────────────
// Traffic statistics
// ──────────────────────────────────────────────────────────────────────────────

// Stats accumulates transport counters. One instance lives inside each
// Transport; all fields are atomic so readers never need the driver lock.
type Stats struct {
	PacketsSent      atomic.Int64
	PacketsReceived  atomic.Int64
	BytesSent        atomic.Int64
	BytesReceived    atomic.Int64
	ReliableSent     atomic.Int64
	ReliableReceived atomic.Int64
	ReliableLost     atomic.Int64 // abandoned after retry exhaustion
	Errors           atomic.Int64
	Accepted         atomic.Int64
	Rejected         atomic.Int64

	// AveragePingMillis is a snapshot refreshed by the driver each tick.
	AveragePingMillis atomic.Int64
}

func (s *Stats) AddSent(n int) {
	s.PacketsSent.Add(1)
	s.BytesSent.Add(int64(n))
}

func (s *Stats) AddReceived(n int) {
	s.PacketsReceived.Add(1)
	s.BytesReceived.Add(int64(n))
}

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

// StartStatsReporter launches a goroutine that logs traffic statistics every
// 10 seconds. It stops when ctx is cancelled.
func StartStatsReporter(ctx context.Context, s *Stats) {
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()

		var prevSent, prevRecv int64
		for {
			select {
			case <-ticker.C:
				sent := s.BytesSent.Load()
				recv := s.BytesReceived.Load()

				outS := float64(sent-prevSent) / 10.0
				inS := float64(recv-prevRecv) / 10.0

				if inS > 10 || outS > 10 {
					LogInfo("In: %s/s | Out: %s/s | lost: %d | ping: %d ms",
						formatBytes(inS), formatBytes(outS),
						s.ReliableLost.Load(), s.AveragePingMillis.Load())
				}

				prevSent = sent
				prevRecv = recv

			case <-ctx.Done():
				return
			}
		}
	}()
}

// byteUnits defines the units for formatting byte counts in a human-readable way.
var byteUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}

// formatBytes formats a byte count into a human-readable string with fixed
// width, for example: "99.0   B", " 1.5 KiB", "98.9 GiB".
func formatBytes(b float64) string {
	unitIdx := 0

	for b > 99 && unitIdx < 5 {
		b /= 1024
		unitIdx++
	}

	return fmt.Sprintf("%4.1f %3s", b, byteUnits[unitIdx])
}
