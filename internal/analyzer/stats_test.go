package analyzer

import (
	"testing"
	"time"

	"volatility-systemv1/internal/model"
)

// ticksWithDigits builds a tick series whose last digits follow the given
// sequence. Quotes are synthetic; only the derived digit matters here.
func ticksWithDigits(digits ...int) []model.Tick {
	out := make([]model.Tick, len(digits))
	for i, d := range digits {
		out[i] = model.Tick{
			Symbol:    "R_10",
			Epoch:     time.Unix(int64(1700000000+i), 0).UTC(),
			Quote:     100.10 + float64(d)/100,
			LastDigit: d,
		}
	}
	return out
}

func TestComputeStats_HistogramAndMostFrequent(t *testing.T) {
	// Digit 3 appears 12/30 times (40%); every other digit twice.
	var seq []int
	for i := 0; i < 12; i++ {
		seq = append(seq, 3)
	}
	for d := 0; d < 10; d++ {
		if d == 3 {
			continue
		}
		seq = append(seq, d, d)
	}

	s := computeStats("R_10", ticksWithDigits(seq...), 2, time.Now())

	if s.SampleSize != 30 {
		t.Fatalf("sample size = %d, want 30", s.SampleSize)
	}
	if s.MostFrequentDigit != 3 {
		t.Fatalf("most frequent = %d, want 3", s.MostFrequentDigit)
	}
	if s.MostFrequentPct != 40.0 {
		t.Fatalf("most frequent pct = %v, want 40.0", s.MostFrequentPct)
	}
	if s.DigitCounts[3] != 12 {
		t.Fatalf("count[3] = %d, want 12", s.DigitCounts[3])
	}
}

func TestComputeStats_TieResolvesToLowestDigit(t *testing.T) {
	// Digits 2 and 8 both appear three times.
	s := computeStats("R_25", ticksWithDigits(8, 2, 8, 2, 8, 2, 5), 2, time.Now())
	if s.MostFrequentDigit != 2 {
		t.Fatalf("most frequent = %d, want 2 (lowest on tie)", s.MostFrequentDigit)
	}
}

func TestComputeStats_OverUnderBands(t *testing.T) {
	// 10 ticks, one of each digit: over 2 covers digits 3..9 (70%),
	// under 7 covers digits 0..6 (70%).
	s := computeStats("R_50", ticksWithDigits(0, 1, 2, 3, 4, 5, 6, 7, 8, 9), 2, time.Now())
	if s.OverPct != 70.0 {
		t.Fatalf("over pct = %v, want 70.0", s.OverPct)
	}
	if s.UnderPct != 70.0 {
		t.Fatalf("under pct = %v, want 70.0", s.UnderPct)
	}
}

func TestComputeStats_DirectionalSignal(t *testing.T) {
	cases := []struct {
		name string
		seq  []int
		want model.Signal
	}{
		{"low frequent, high current", []int{1, 1, 1, 1, 8}, model.SignalUnder},
		{"high frequent, low current", []int{9, 9, 9, 9, 0}, model.SignalOver},
		{"low frequent, low current", []int{1, 1, 1, 1, 2}, model.SignalNeutral},
		{"mid frequent", []int{5, 5, 5, 5, 8}, model.SignalNeutral},
	}
	for _, tc := range cases {
		s := computeStats("R_10", ticksWithDigits(tc.seq...), 2, time.Now())
		if s.Signal != tc.want {
			t.Errorf("%s: signal = %s, want %s", tc.name, s.Signal, tc.want)
		}
	}
}

func TestComputeStats_CurrentDigitIsNewest(t *testing.T) {
	s := computeStats("R_10", ticksWithDigits(4, 4, 4, 7), 2, time.Now())
	if s.CurrentDigit != 7 {
		t.Fatalf("current digit = %d, want 7", s.CurrentDigit)
	}
}
