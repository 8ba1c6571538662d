package tier

import (
	"encoding/json"
	"math"
	"testing"
)

func TestClassify_DefaultThresholds(t *testing.T) {
	th := DefaultThresholds()
	tests := []struct {
		score float64
		want  Tier
	}{
		{1, Core},
		{0.45, Core},
		{0.4499, Strong},
		{0.35, Strong},
		{0.30, Related},
		{0.25, Related},
		{0.20, Adjacent},
		{0.15, Adjacent},
		{0.1499, Noise},
		{0, Noise},
		{-0.3, Noise},
		{1.7, Core},
		{math.NaN(), Noise},
	}
	for _, tt := range tests {
		if got := th.Classify(tt.score); got != tt.want {
			t.Errorf("Classify(%v) = %s, want %s", tt.score, got, tt.want)
		}
	}
}

func TestClassify_TotalAndIdempotent(t *testing.T) {
	th := DefaultThresholds()
	for i := 0; i <= 1000; i++ {
		score := float64(i) / 1000
		got := th.Classify(score)

		matches := 0
		for _, tr := range All {
			if th.Classify(score) == tr {
				matches++
			}
		}
		if matches != 1 {
			t.Fatalf("score %v maps to %d tiers", score, matches)
		}
		// 以档位下限再分类应得到同一档位
		if again := th.Classify(th.Floor(got)); again != got && got != Noise {
			t.Fatalf("Classify(Floor(%s)) = %s", got, again)
		}
		if got := th.Classify(score); got != th.Classify(score) {
			t.Fatalf("classification of %v is not stable", score)
		}
	}
}

func TestThresholds_Validate(t *testing.T) {
	if err := DefaultThresholds().Validate(); err != nil {
		t.Fatalf("default thresholds invalid: %v", err)
	}
	bad := []Thresholds{
		{Core: 0.3, Strong: 0.35, Related: 0.25, Adjacent: 0.15},
		{Core: 0.45, Strong: 0.35, Related: 0.35, Adjacent: 0.15},
		{Core: 1.2, Strong: 0.35, Related: 0.25, Adjacent: 0.15},
		{Core: 0.45, Strong: 0.35, Related: 0.25, Adjacent: 0},
	}
	for _, th := range bad {
		if err := th.Validate(); err == nil {
			t.Errorf("expected error for %+v", th)
		}
	}
}

func TestTier_JSONRoundTripInMapKeys(t *testing.T) {
	c := Counts{Core: 3, Noise: 1}
	b, err := json.Marshal(c)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"CORE":3,"NOISE":1}` {
		t.Fatalf("unexpected json %s", b)
	}
	var back Counts
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatal(err)
	}
	if back[Core] != 3 || back[Noise] != 1 || back.Total() != 4 {
		t.Fatalf("unexpected counts %v", back)
	}
}

func TestFeedsAnalysis(t *testing.T) {
	want := map[Tier]bool{Core: true, Strong: true, Related: false, Adjacent: false, Noise: false}
	for tr, w := range want {
		if tr.FeedsAnalysis() != w {
			t.Errorf("%s.FeedsAnalysis() = %v", tr, !w)
		}
	}
}
