package namekey_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zkns/internal/namekey"
	pkgerrors "zkns/pkg/errors"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for _, name := range []string{"a", "alice", "alice.org", "x-y_z.09", strings.Repeat("q", namekey.MaxLen)} {
		k, err := namekey.Encode(name)
		require.NoError(t, err, name)
		assert.Equal(t, name, namekey.Decode(k), name)
	}
}

func TestEncodeRejectsBadInput(t *testing.T) {
	_, err := namekey.Encode("")
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeEncoding))

	_, err = namekey.Encode(strings.Repeat("a", namekey.MaxLen+1))
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeEncoding))

	_, err = namekey.Encode("has space")
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeEncoding))

	_, err = namekey.Encode("café")
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeEncoding))
}

func TestDistinctNamesDistinctKeys(t *testing.T) {
	names := []string{"a", "aa", "ab", "b", "ba", "alice", "alice.", "alicf"}
	seen := make(map[namekey.Key]string)
	for _, name := range names {
		k, err := namekey.Encode(name)
		require.NoError(t, err)
		prev, dup := seen[k]
		require.False(t, dup, "names %q and %q collided", prev, name)
		seen[k] = name
	}
}

func TestPaddingIsDistinguishableFromPayload(t *testing.T) {
	// "ab" and "ab" + implicit padding must be the only preimage of the key.
	k := namekey.MustEncode("ab")
	assert.Equal(t, "ab", namekey.Decode(k))
	assert.NotEqual(t, namekey.MustEncode("ab"), namekey.MustEncode("abb"))
	assert.True(t, namekey.Zero.IsZero())
	assert.False(t, k.IsZero())
}
