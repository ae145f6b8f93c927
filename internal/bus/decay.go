package bus

import "time"

// Decay advances a snapshot's countdowns to now by subtracting the whole
// seconds elapsed since capture. ETAs floor at zero; statuses and CapturedAt
// are left untouched. The input is not modified.
func Decay(snap Snapshot, now time.Time) Snapshot {
	out := snap.Clone()
	elapsed := int(now.Sub(snap.CapturedAt) / time.Second)
	if elapsed <= 0 {
		return out
	}
	for i := range out.Arrivals {
		a := &out.Arrivals[i]
		a.FirstETA = max(a.FirstETA-elapsed, 0)
		if a.HasSecond {
			a.SecondETA = max(a.SecondETA-elapsed, 0)
		}
	}
	return out
}
