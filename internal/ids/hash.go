// Package ids generates content-addressed element identifiers.
//
// IDs are derived from a hash of an identifier string and the creating
// entity, base36-encoded and truncated to a short, human-typeable length.
// The algorithm mirrors the hash-ID scheme used elsewhere in the bead
// tracker family: encode the least-significant base36 digits of a
// content hash, retrying with a longer truncation on collision.
package ids

import (
	"crypto/sha256"
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

// Prefix is prepended to every generated element ID.
const Prefix = "el-"

// MinLen and MaxLen bound the base36 suffix length, matching
// idGenerator.minLen / idGenerator.maxLen in the engine configuration.
const (
	MinLen = 3
	MaxLen = 8
)

const base36Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// EncodeBase36 converts data to a base36 string of exactly length characters,
// keeping the least-significant digits when the natural encoding is longer
// and left-padding with zeros when it is shorter.
func EncodeBase36(data []byte, length int) string {
	num := new(big.Int).SetBytes(data)

	base := big.NewInt(36)
	zero := big.NewInt(0)
	mod := new(big.Int)

	chars := make([]byte, 0, length)
	for num.Cmp(zero) > 0 {
		num.DivMod(num, base, mod)
		chars = append(chars, base36Alphabet[mod.Int64()])
	}

	var sb strings.Builder
	for i := len(chars) - 1; i >= 0; i-- {
		sb.WriteByte(chars[i])
	}

	str := sb.String()
	if len(str) < length {
		str = strings.Repeat("0", length-len(str)) + str
	}
	if len(str) > length {
		str = str[len(str)-length:]
	}
	return str
}

// byteWidthForLength returns how many hash bytes to feed EncodeBase36 for a
// requested base36 output length, matching the density table used by the
// bead trackers' own hash ID generator.
func byteWidthForLength(length int) int {
	switch length {
	case 3:
		return 2
	case 4:
		return 3
	case 5, 6:
		return 4
	case 7, 8:
		return 5
	default:
		return 2
	}
}

// Generate produces a candidate element ID from identifier and createdBy,
// at the requested base36 length, with nonce distinguishing collision
// retries. length is clamped to [MinLen, MaxLen].
func Generate(identifier, createdBy string, length, nonce int) string {
	if length < MinLen {
		length = MinLen
	}
	if length > MaxLen {
		length = MaxLen
	}

	content := fmt.Sprintf("%s|%s|%d", identifier, createdBy, nonce)
	hash := sha256.Sum256([]byte(content))

	numBytes := byteWidthForLength(length)
	return Prefix + EncodeBase36(hash[:numBytes], length)
}

// Exists reports whether a candidate ID is already taken, via a caller
// supplied lookup (typically the store).
type Exists func(id string) (bool, error)

// ErrExhausted is returned when no unique ID can be found within MaxLen.
var ErrExhausted = fmt.Errorf("id generator: exhausted lengths up to %d", MaxLen)

// GenerateUnique grows the truncation length one character at a time until
// an ID not reported by exists is found, or returns ErrExhausted beyond
// MaxLen. This is element Create's collision-retry loop from spec.md §4.2.
func GenerateUnique(identifier, createdBy string, exists Exists) (string, error) {
	return GenerateUniqueWithBounds(identifier, createdBy, MinLen, MaxLen, exists)
}

// GenerateUniqueWithBounds is GenerateUnique with caller-supplied truncation
// bounds, for when idGenerator.minLen/maxLen have been configured away from
// their defaults (spec.md §6). Non-positive or inverted bounds fall back to
// MinLen/MaxLen.
func GenerateUniqueWithBounds(identifier, createdBy string, minLen, maxLen int, exists Exists) (string, error) {
	if minLen <= 0 {
		minLen = MinLen
	}
	if maxLen <= 0 || maxLen < minLen {
		maxLen = MaxLen
	}
	for length := minLen; length <= maxLen; length++ {
		candidate := Generate(identifier, createdBy, length, 0)
		taken, err := exists(candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("id generator: exhausted lengths %d-%d: %w", minLen, maxLen, ErrExhausted)
}

// RandomSuffix returns a short random token a caller can fold into
// identifier when it needs a uniqueness guarantee independent of content
// (bulk inserts, tests), per spec.md §4.2.
func RandomSuffix() string {
	return uuid.NewString()
}
