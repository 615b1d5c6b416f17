// Package util provides utility functions for the KeikobaBot application.
package util

import (
	"math/rand/v2"
	"strings"
)

// GroupCodeAlphabet is the character set for generated group codes. The
// ambiguous characters 0/O/o, 1/l/I, q/g and v/u are excluded so codes
// survive being read aloud or copied by hand.
const GroupCodeAlphabet = "abcdefghijkmnprstuwxyz" + "ABCDEFGHJKLMNPQRSTUVWXYZ" + "23456789"

// GenerateGroupCode generates a random group code of the specified length
// from the ambiguity-free alphabet. Uses math/rand/v2; group codes are
// identifiers, not secrets.
func GenerateGroupCode(length int) string {
	if length <= 0 {
		return ""
	}

	var builder strings.Builder
	builder.Grow(length)

	for i := 0; i < length; i++ {
		builder.WriteByte(GroupCodeAlphabet[rand.IntN(len(GroupCodeAlphabet))])
	}

	return builder.String()
}
