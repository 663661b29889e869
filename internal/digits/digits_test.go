package digits

import "testing"

func TestDecimalPlaces(t *testing.T) {
	cases := []struct {
		quote float64
		want  int
	}{
		{1287.45, 2},
		{1287.4, 1},
		{1287, 0},
		{0.001, 3},
		{9000.1234, 4},
		{100.10, 1}, // trailing zero is not representable in a float
	}
	for _, tc := range cases {
		if got := DecimalPlaces(tc.quote); got != tc.want {
			t.Errorf("DecimalPlaces(%v) = %d, want %d", tc.quote, got, tc.want)
		}
	}
}

func TestLastDigit_PadsToPrecision(t *testing.T) {
	cases := []struct {
		quote     float64
		precision int
		want      int
	}{
		{1287.45, 2, 5},
		{1287.4, 2, 0},  // "40" → 0
		{1287.4, 3, 0},  // "400" → 0
		{1287.45, 3, 0}, // "450" → 0
		{1287.456, 3, 6},
		{9000, 3, 0}, // no fractional part → "000"
		{0.129, 3, 9},
	}
	for _, tc := range cases {
		if got := LastDigit(tc.quote, tc.precision); got != tc.want {
			t.Errorf("LastDigit(%v, %d) = %d, want %d", tc.quote, tc.precision, got, tc.want)
		}
	}
}

func TestLastDigit_ZeroPrecisionUsesIntegerPart(t *testing.T) {
	if got := LastDigit(1287, 0); got != 7 {
		t.Fatalf("LastDigit(1287, 0) = %d, want 7", got)
	}
}

// A tick with fewer observed decimals arriving after one with more must not
// shrink the extraction window: at the symbol's retained precision the padded
// digit stays stable.
func TestLastDigit_StableUnderMonotonicPrecision(t *testing.T) {
	precision := DecimalPlaces(1287.456) // 3

	// Shorter quote arrives later; precision never recomputes downward.
	if p := DecimalPlaces(1287.4); p > precision {
		t.Fatalf("unexpected precision growth: %d", p)
	}

	if got := LastDigit(1287.4, precision); got != 0 {
		t.Fatalf("LastDigit(1287.4, %d) = %d, want 0", precision, got)
	}
	// Same quote at its own (lower) precision would read differently — the
	// monotonic window is what keeps digits comparable across the buffer.
	if got := LastDigit(1287.4, 1); got != 4 {
		t.Fatalf("LastDigit(1287.4, 1) = %d, want 4", got)
	}
}
