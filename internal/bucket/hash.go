// Package bucket provides the deterministic hashing that backs every
// probabilistic decision in the engine. The algorithm is frozen: changing it
// re-buckets every visitor in every running test, so treat any edit here as a
// breaking change to experiment data.
package bucket

import (
	"unicode/utf16"
)

// trafficSalt separates traffic-inclusion hashing from variant hashing so the
// two decisions are statistically independent for the same identity.
const trafficSalt = "traffic"

// Hash computes a rolling 31-polynomial hash over the UTF-16 code units of s,
// folded to a signed 32-bit value and returned as its absolute value. Pure,
// stable across processes, not cryptographic.
func Hash(s string) uint32 {
	var h int32
	for _, u := range utf16.Encode([]rune(s)) {
		h = h*31 + int32(u)
	}
	// int64 widening keeps abs(MinInt32) representable.
	v := int64(h)
	if v < 0 {
		v = -v
	}
	return uint32(v)
}

// VariantBucket places an identity in [0,100) for weighted variant selection
// within a test.
func VariantBucket(identity, testID string) int {
	return int(Hash(identity+"-"+testID) % 100)
}

// TrafficBucket places an identity in [0,100) for the traffic-inclusion
// decision. Uses a distinct salt from VariantBucket.
func TrafficBucket(identity, testID string) int {
	return int(Hash(identity+"-"+testID+"-"+trafficSalt) % 100)
}
