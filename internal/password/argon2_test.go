package password

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testParams = Params{Memory: 8 * 1024, Time: 1, Parallelism: 1}

func TestNewHasher(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		params  Params
		wantErr bool
	}{
		{name: "valid", params: testParams},
		{name: "low memory", params: Params{Memory: 1024, Time: 1, Parallelism: 1}, wantErr: true},
		{name: "zero time", params: Params{Memory: 8192, Time: 0, Parallelism: 1}, wantErr: true},
		{name: "zero parallelism", params: Params{Memory: 8192, Time: 1, Parallelism: 0}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h, err := NewHasher(tt.params)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, h)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, h)
		})
	}
}

func TestHasher_HashAndVerify(t *testing.T) {
	t.Parallel()

	h, err := NewHasher(testParams)
	require.NoError(t, err)

	encoded, err := h.Hash("client-derived-verifier")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(encoded, "$argon2id$v=19$m=8192,t=1,p=1$"))

	ok, err := h.Verify("client-derived-verifier", encoded)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Verify("another-verifier", encoded)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHasher_HashUsesFreshSalt(t *testing.T) {
	t.Parallel()

	h, err := NewHasher(testParams)
	require.NoError(t, err)

	first, err := h.Hash("same")
	require.NoError(t, err)
	second, err := h.Hash("same")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestHasher_HashRejectsBadVerifier(t *testing.T) {
	t.Parallel()

	h, err := NewHasher(testParams)
	require.NoError(t, err)

	_, err = h.Hash("")
	assert.ErrorIs(t, err, ErrInvalidVerifier)

	_, err = h.Hash(strings.Repeat("a", maxVerifierLen+1))
	assert.ErrorIs(t, err, ErrInvalidVerifier)
}

func TestHasher_VerifyMalformed(t *testing.T) {
	t.Parallel()

	h, err := NewHasher(testParams)
	require.NoError(t, err)

	tests := []struct {
		name    string
		encoded string
	}{
		{name: "empty", encoded: ""},
		{name: "wrong algorithm", encoded: "$argon2i$v=19$m=8192,t=1,p=1$c2FsdA$a2V5"},
		{name: "wrong version", encoded: "$argon2id$v=16$m=8192,t=1,p=1$c2FsdA$a2V5"},
		{name: "bad params", encoded: "$argon2id$v=19$m=x,t=1,p=1$c2FsdA$a2V5"},
		{name: "bad salt", encoded: "$argon2id$v=19$m=8192,t=1,p=1$!!!$a2V5"},
		{name: "missing key", encoded: "$argon2id$v=19$m=8192,t=1,p=1$c2FsdA$"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ok, err := h.Verify("verifier", tt.encoded)
			assert.ErrorIs(t, err, ErrInvalidHash)
			assert.False(t, ok)
		})
	}
}
