package hashing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashLayers(t *testing.T) {
	// layer 0 is a plain sha256
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", Hash("abc", 0))
	assert.Equal(t, "dfe7a23fefeea519e9bbfdd1a6be94c4b2e4529dd6b7cbea83f9959c2621b13c", Hash("abc", 1))
	assert.Equal(t, "91acdf02fb5933efc08d1833218ad0c1e6396b0ecc157b893d5233bf71c16442", Hash("abc", IndexRounds))
}

func TestHashDeterministic(t *testing.T) {
	for r := 1; r < 32; r++ {
		require.Equal(t, Hash("message", r), Hash("message", r))
		require.NotEqual(t, Hash("message", r), Hash("message", r-1), "round %v should change the digest", r)
	}
}

func TestHashSaltedParity(t *testing.T) {
	type testCase struct {
		rounds int
		digest string
	}
	for _, tc := range []testCase{
		{0, "7a37b85c8918eac19a9089c0fa5a2ab4dce3f90528dcdeec108b23ddf3607b99"},
		{1, "2534ce2cf32f0f702398125c9ad77e5a175ee7b71611c27a692ecc6205feaf4a"},
		{2, "eb876e3e59908b674fea3464ea33c0a858a89de174034f0243befa01d1f143c6"},
		{PasswordRounds, "51f465fb3cbe0f778820cdcceeb6f250eda165a77be10dc9b4d6b6e78ce44207"},
	} {
		if got := HashSalted("password", "salt", tc.rounds); got != tc.digest {
			t.Errorf("HashSalted with %v rounds should be %v got %v", tc.rounds, tc.digest, got)
		}
	}
}

func TestHashSaltedRoundsMustMatch(t *testing.T) {
	stored := HashSalted("longenough1", "pepper", PasswordRounds)
	assert.Equal(t, stored, HashSalted("longenough1", "pepper", PasswordRounds))
	assert.NotEqual(t, stored, HashSalted("longenough1", "pepper", PasswordRounds-1))
	assert.NotEqual(t, stored, HashSalted("longenough1", "other", PasswordRounds))
}

func TestHMAC(t *testing.T) {
	assert.Equal(t, "6e9ef29b75fffc5b7abae527d58fdadb2fe42e7219011976917343065f58ed4a", HMAC("message", []byte("key"), 0))
	assert.Equal(t, "50bfde6ed3b95d2213c46f690b6ce1b8e52e3f26ebb006f2ef11ae2aa5c90fe2", HMAC("message", []byte("key"), 3))
	assert.NotEqual(t, HMAC("message", []byte("key"), 3), HMAC("message", []byte("other key"), 3))
}
