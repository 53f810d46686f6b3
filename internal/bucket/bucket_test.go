package bucket_test

import (
	"fmt"
	"math"
	"testing"

	"github.com/gkobilansky/xgoat/internal/bucket"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestBucket_KnownValues(t *testing.T) {
	cases := map[string]float64{
		"":                0,
		"a":               0.97,
		"u1":              36.76,
		"user-001":        88.97,
		"user-stable-001": 80.31,
		"user-hash-test":  44.49,
		"exp-001:user-1":  32.72,
		"ü":               2.52,
		"😀":               28.99,
	}

	for in, want := range cases {
		if got := bucket.Bucket(in); !almostEqual(got, want) {
			t.Errorf("Bucket(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestBucket_Deterministic(t *testing.T) {
	first := bucket.Bucket("user-hash-test")
	second := bucket.Bucket("user-hash-test")

	if first != second {
		t.Errorf("expected same bucket on repeated calls, got %v and %v", first, second)
	}
}

func TestBucket_Range(t *testing.T) {
	for i := 0; i < 5000; i++ {
		b := bucket.Bucket(fmt.Sprintf("user-%d", i))
		if b < 0 || b >= 100 {
			t.Fatalf("bucket %v out of range for user-%d", b, i)
		}
		if !almostEqual(b*100, math.Round(b*100)) {
			t.Fatalf("bucket %v has more than two decimals", b)
		}
	}
}

func TestUniform_KnownValues(t *testing.T) {
	cases := map[string]float64{
		"exp-001:user-001":      72.36,
		"exp-001:user-002":      37.66,
		"exp-targeted:user-001": 28.12,
		"exp-targeted:user-002": 82.12,
	}

	for in, want := range cases {
		if got := bucket.Uniform(in); !almostEqual(got, want) {
			t.Errorf("Uniform(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestUniform_Spread(t *testing.T) {
	below := 0
	for i := 0; i < 1000; i++ {
		if bucket.Uniform(bucket.Key("exp-spread", fmt.Sprintf("user-%d", i))) < 50 {
			below++
		}
	}

	if below < 400 || below > 600 {
		t.Errorf("expected roughly half of users below 50, got %d/1000", below)
	}
}

func TestKey(t *testing.T) {
	if got := bucket.Key("exp-001", "user-1"); got != "exp-001:user-1" {
		t.Errorf("Key = %q", got)
	}
}
