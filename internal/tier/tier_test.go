package tier

import (
	"testing"
	"time"
)

func TestInterval(t *testing.T) {
	cases := []struct {
		tier int
		want time.Duration
	}{
		{0, time.Minute},
		{1, 2 * time.Minute},
		{4, 16 * time.Minute},
		{10, 1024 * time.Minute},
		{-3, time.Minute},    // clamped to MinTier
		{99, 1024 * time.Minute}, // clamped to MaxTier
	}
	for _, c := range cases {
		if got := Interval(c.tier); got != c.want {
			t.Errorf("Interval(%d) = %v, want %v", c.tier, got, c.want)
		}
	}
}

func TestCalculateNewTierNewItemsDecreasesTier(t *testing.T) {
	now := time.Now()
	res := CalculateNewTier(now, Update{CurrentTier: 4, Unmodified: 3, HasNewItems: true})
	if res.Tier != 3 {
		t.Errorf("tier = %d, want 3", res.Tier)
	}
	if res.Unmodified != 0 {
		t.Errorf("unmodified = %d, want 0", res.Unmodified)
	}
}

func TestCalculateNewTierFloorsAtZero(t *testing.T) {
	now := time.Now()
	res := CalculateNewTier(now, Update{CurrentTier: 0, Unmodified: 0, HasNewItems: true})
	if res.Tier != 0 {
		t.Errorf("tier = %d, want 0", res.Tier)
	}
}

func TestCalculateNewTierNoNewItemsBumpsAfterThreshold(t *testing.T) {
	now := time.Now()
	// tier 0: threshold is max(2, 0) = 2, so unmodified must reach 2 to bump.
	res := CalculateNewTier(now, Update{CurrentTier: 0, Unmodified: 1, HasNewItems: false})
	if res.Tier != 1 {
		t.Errorf("tier = %d, want 1 after reaching threshold", res.Tier)
	}
	if res.Unmodified != 0 {
		t.Errorf("unmodified = %d, want reset to 0", res.Unmodified)
	}
}

func TestCalculateNewTierNoNewItemsBelowThresholdStays(t *testing.T) {
	now := time.Now()
	res := CalculateNewTier(now, Update{CurrentTier: 0, Unmodified: 0, HasNewItems: false})
	if res.Tier != 0 {
		t.Errorf("tier = %d, want unchanged at 0", res.Tier)
	}
	if res.Unmodified != 1 {
		t.Errorf("unmodified = %d, want 1", res.Unmodified)
	}
}

func TestCalculateNewTierCeilsAtMax(t *testing.T) {
	now := time.Now()
	res := CalculateNewTier(now, Update{CurrentTier: MaxTier, Unmodified: 20, HasNewItems: false})
	if res.Tier != MaxTier {
		t.Errorf("tier = %d, want capped at %d", res.Tier, MaxTier)
	}
}

func TestCalculateNewTierFetchErrorBumpsExtra(t *testing.T) {
	now := time.Now()
	withoutErr := CalculateNewTier(now, Update{CurrentTier: 0, Unmodified: 1, HasNewItems: false})
	withErr := CalculateNewTier(now, Update{CurrentTier: 0, Unmodified: 1, HasNewItems: false, FetchError: true})
	if withErr.Tier != withoutErr.Tier+1 {
		t.Errorf("fetch error tier = %d, want one more than %d", withErr.Tier, withoutErr.Tier)
	}
}

func TestCalculateNewTierNextFetchMatchesInterval(t *testing.T) {
	now := time.Now()
	res := CalculateNewTier(now, Update{CurrentTier: 3, Unmodified: 0, HasNewItems: false})
	want := now.Add(Interval(res.Tier))
	if !res.NextFetch.Equal(want) {
		t.Errorf("NextFetch = %v, want %v", res.NextFetch, want)
	}
}
