package sync

import (
	"testing"
	"time"
)

func TestIsSyncDue(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		lastSync  time.Time
		frequency int
		want      bool
	}{
		{"never synced", time.Time{}, 24, true},
		{"exactly on time", now.Add(-24 * time.Hour), 24, true},
		{"one minute early", now.Add(-24*time.Hour + time.Minute), 24, false},
		{"fractional hours not truncated", now.Add(-90 * time.Minute), 2, false},
		{"fractional elapsed past threshold", now.Add(-150 * time.Minute), 2, true},
		{"zero frequency defaults to 24", now.Add(-23 * time.Hour), 0, false},
		{"negative frequency defaults to 24", now.Add(-25 * time.Hour), -5, true},
		{"last sync in the future", now.Add(time.Hour), 1, false},
		{"weekly", now.Add(-167 * time.Hour), 168, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsSyncDue(tt.lastSync, tt.frequency, now); got != tt.want {
				t.Errorf("IsSyncDue(%v, %d) = %v, want %v", tt.lastSync, tt.frequency, got, tt.want)
			}
		})
	}
}

func TestIsSyncDueMonotonic(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	for freq := 1; freq <= 168; freq++ {
		for elapsed := 0.0; elapsed <= 200; elapsed += 0.25 {
			last := now.Add(-time.Duration(elapsed * float64(time.Hour)))
			want := elapsed >= float64(freq)
			if got := IsSyncDue(last, freq, now); got != want {
				t.Fatalf("IsSyncDue(elapsed=%.2fh, freq=%d) = %v, want %v", elapsed, freq, got, want)
			}
		}
	}
}
