// Package namekey packs bounded-length names into fixed-width 256-bit keys.
// A packed key is a single numeric value: one byte per character slot,
// big-endian, unused trailing slots zero. Because the supported alphabet
// excludes the zero byte, decode can trim padding without ambiguity and the
// encoding is injective over its domain.
package namekey

import (
	"encoding/hex"

	pkgerrors "zkns/pkg/errors"
)

// MaxLen is the character capacity of a packed key. 31 single-byte slots keep
// the packed value under 2^248, leaving the top byte clear.
const MaxLen = 31

// Key is a packed name. It is comparable and usable directly as a map key;
// equality of keys is equality of the packed numeric value.
type Key [32]byte

// Zero is the absent key.
var Zero Key

// Encode packs s into a Key. It fails if s is empty, longer than MaxLen, or
// contains characters outside printable ASCII (0x21..0x7E).
func Encode(s string) (Key, error) {
	var k Key
	if s == "" {
		return k, pkgerrors.New(pkgerrors.CodeEncoding, "name is empty")
	}
	if len(s) > MaxLen {
		return k, pkgerrors.Newf(pkgerrors.CodeEncoding, "name %q exceeds %d characters", s, MaxLen)
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < 0x21 || c > 0x7e {
			return k, pkgerrors.Newf(pkgerrors.CodeEncoding, "unsupported character %q at position %d", c, i)
		}
		k[i+1] = c
	}
	return k, nil
}

// MustEncode is Encode for trusted, fixed inputs. It panics on error and is
// meant for tests and constants.
func MustEncode(s string) Key {
	k, err := Encode(s)
	if err != nil {
		panic(err)
	}
	return k
}

// Decode is the exact inverse of Encode for any key Encode produced. Trailing
// zero slots are padding, never payload.
func Decode(k Key) string {
	buf := make([]byte, 0, MaxLen)
	for i := 1; i < len(k); i++ {
		if k[i] == 0 {
			break
		}
		buf = append(buf, k[i])
	}
	return string(buf)
}

// IsZero reports whether k is the absent key.
func (k Key) IsZero() bool { return k == Zero }

// Bytes returns the 32-byte big-endian representation.
func (k Key) Bytes() []byte {
	out := make([]byte, len(k))
	copy(out, k[:])
	return out
}

// String renders the key as hex for logs; use Decode for the original name.
func (k Key) String() string { return hex.EncodeToString(k[:]) }
