package bucket

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashKnownValues(t *testing.T) {
	// Frozen vectors: if any of these change, every visitor re-buckets.
	cases := []struct {
		in   string
		want uint32
	}{
		{"", 0},
		{"a", 97},
		{"ab", 3105},
		{"user-42", 147182656},
		{"hello world", 1794106052},
		{"identity-test-traffic", 492703631},
		{"Iñtërnâtiônàlizætiøn", 2025830398},
		{"😀variant", 1694350786},
		{"polynomial rolling hash over a long enough string to overflow", 1175120868},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.want, Hash(tc.in))
		})
	}
}

func TestHashDeterminism(t *testing.T) {
	for i := 0; i < 1000; i++ {
		s := fmt.Sprintf("session-%d", i)
		first := Hash(s)
		for j := 0; j < 5; j++ {
			require.Equal(t, first, Hash(s))
		}
	}
}

func TestBucketRange(t *testing.T) {
	for i := 0; i < 10000; i++ {
		identity := fmt.Sprintf("visitor-%d", i)
		vb := VariantBucket(identity, "exp-1")
		tb := TrafficBucket(identity, "exp-1")
		require.GreaterOrEqual(t, vb, 0)
		require.Less(t, vb, 100)
		require.GreaterOrEqual(t, tb, 0)
		require.Less(t, tb, 100)
	}
}

// TestBucketDistribution checks the hash spreads realistic id spaces roughly
// uniformly when reduced mod 100. Statistical tolerance, not exact.
func TestBucketDistribution(t *testing.T) {
	const n = 10000
	var counts [100]int
	for i := 0; i < n; i++ {
		counts[VariantBucket(fmt.Sprintf("user-%d", i), "homepage-cta")]++
	}

	mean := float64(n) / 100
	for b, c := range counts {
		// Each bucket expects ~100 hits; 3 sigma over binomial spread.
		sigma := math.Sqrt(float64(n) * 0.01 * 0.99)
		assert.InDelta(t, mean, float64(c), 5*sigma, "bucket %d badly skewed", b)
	}

	// Halves should split close to 50/50.
	var low int
	for b, c := range counts {
		if b < 50 {
			low += c
		}
	}
	assert.InDelta(t, n/2, low, float64(n)*0.05)
}

// TestSaltIndependence verifies the traffic decision and the variant decision
// do not collapse onto the same bucket for the same inputs.
func TestSaltIndependence(t *testing.T) {
	same := 0
	const n = 1000
	for i := 0; i < n; i++ {
		identity := fmt.Sprintf("visitor-%d", i)
		if VariantBucket(identity, "exp-1") == TrafficBucket(identity, "exp-1") {
			same++
		}
	}
	// Independent uniform buckets coincide ~1% of the time.
	assert.Less(t, same, n/10)
}
