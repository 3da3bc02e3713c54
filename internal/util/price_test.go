package util

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestRoundToTick(t *testing.T) {
	cases := []struct {
		x, tick, want float64
	}{
		{1.2345, 0.01, 1.23},
		{1.2351, 0.01, 1.24},
		{249.999, 0.01, 250.00},
		{100.0, 0, 100.0},
		{100.0, -1, 100.0},
		{102.5, 5, 105},
	}
	for _, c := range cases {
		if got := RoundToTick(c.x, c.tick); !almostEqual(got, c.want) {
			t.Errorf("RoundToTick(%v, %v) = %v, want %v", c.x, c.tick, got, c.want)
		}
	}
}

func TestRound2(t *testing.T) {
	if got := Round2(245.004); !almostEqual(got, 245.00) {
		t.Errorf("Round2 = %v, want 245.00", got)
	}
	if got := Round2(265.006); !almostEqual(got, 265.01) {
		t.Errorf("Round2 = %v, want 265.01", got)
	}
}
