// Package tier implements the adaptive polling cadence math shared by
// the scheduler and the processor (§4.5).
package tier

import "time"

const (
	// MinTier and MaxTier bound the adaptive cadence.
	MinTier = 0
	MaxTier = 10
)

// Interval returns the polling interval for a tier: 2^tier minutes,
// clamped to [MinTier, MaxTier].
func Interval(t int) time.Duration {
	t = clamp(t)
	return time.Duration(1<<uint(t)) * time.Minute
}

func clamp(t int) int {
	if t < MinTier {
		return MinTier
	}
	if t > MaxTier {
		return MaxTier
	}
	return t
}

// Update is the input to CalculateNewTier.
type Update struct {
	CurrentTier int
	Unmodified  int
	HasNewItems bool
	FetchError  bool
}

// Result is the output of CalculateNewTier: the new tier, the new
// unmodified counter, and the absolute time of the next fetch.
type Result struct {
	Tier       int
	Unmodified int
	NextFetch  time.Time
}

// CalculateNewTier applies §4.5's tier math:
//
//   - new items found -> tier decreases by one (floor 0), unmodified resets to 0.
//   - no new items -> unmodified increments; once unmodified >= max(2, tier)
//     the tier increases by one (ceiling 10) and unmodified resets to 0.
//   - a fetch error additionally bumps the tier by one more step beyond
//     the no-new-items rule, to avoid retry storms.
func CalculateNewTier(now time.Time, u Update) Result {
	tier := clamp(u.CurrentTier)
	unmodified := u.Unmodified

	switch {
	case u.HasNewItems:
		tier = clamp(tier - 1)
		unmodified = 0
	default:
		unmodified++
		threshold := 2
		if tier > threshold {
			threshold = tier
		}
		if unmodified >= threshold && tier < MaxTier {
			tier = clamp(tier + 1)
			unmodified = 0
		}
	}

	if u.FetchError {
		tier = clamp(tier + 1)
	}

	return Result{
		Tier:       tier,
		Unmodified: unmodified,
		NextFetch:  now.Add(Interval(tier)),
	}
}

// InitialNextFetch is used when a feed is first created: tier starts at
// 1 (2 min) but the first fetch is scheduled immediately.
func InitialNextFetch(now time.Time) time.Time { return now }
