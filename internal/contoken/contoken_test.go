package contoken

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tok := Encode("search", 42)
	cursor, err := Decode("search", tok)
	require.NoError(t, err)
	assert.Equal(t, int64(42), cursor)
}

func TestDecodeRejectsWrongVerb(t *testing.T) {
	tok := Encode("search", 42)
	_, err := Decode("track", tok)
	require.ErrorIs(t, err, ErrInvalid)
}

func TestDecodeRejectsTamperedToken(t *testing.T) {
	tok := Encode("explore", 7)
	tampered := tok[:len(tok)-1] + "z"
	_, err := Decode("explore", tampered)
	require.Error(t, err)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode("search", "not-a-valid-token!!")
	require.ErrorIs(t, err, ErrInvalid)
}
