package multisig

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func key(b byte) [32]byte {
	var k [32]byte
	k[0] = b
	return k
}

func newRoster(t *testing.T, n int, min uint8) *Roster {
	t.Helper()
	keys := make([][32]byte, n)
	for i := range keys {
		keys[i] = key(byte(i + 1))
	}
	m := &Roster{}
	require.NoError(t, m.SetSigners(keys, min))
	return m
}

func TestSetSigners(t *testing.T) {
	m := &Roster{}

	assert.ErrorIs(t, m.SetSigners(nil, 1), ErrMissingSignature)
	assert.ErrorIs(t, m.SetSigners([][32]byte{key(1)}, 0), ErrMissingSignature)
	assert.ErrorIs(t, m.SetSigners([][32]byte{key(1)}, 2), ErrInvalidRoster)
	assert.ErrorIs(t, m.SetSigners([][32]byte{key(1), key(1)}, 1), ErrInvalidRoster)

	seven := make([][32]byte, MaxSigners+1)
	for i := range seven {
		seven[i] = key(byte(i + 1))
	}
	assert.ErrorIs(t, m.SetSigners(seven, 2), ErrInvalidRoster)

	require.NoError(t, m.SetSigners([][32]byte{key(1), key(2), key(3)}, 2))
	assert.Equal(t, uint8(3), m.NumSigners)
	assert.Equal(t, uint8(2), m.MinSignatures)
}

func TestSignCountdown(t *testing.T) {
	m := newRoster(t, 4, 3)
	accounts := [][32]byte{key(10), key(11)}
	data := []byte("set-pause")

	remaining, err := m.Sign(key(1), accounts, data)
	require.NoError(t, err)
	assert.Equal(t, uint8(2), remaining)

	remaining, err = m.Sign(key(2), accounts, data)
	require.NoError(t, err)
	assert.Equal(t, uint8(1), remaining)

	remaining, err = m.Sign(key(3), accounts, data)
	require.NoError(t, err)
	assert.Equal(t, uint8(0), remaining, "third signature completes the quorum")

	_, err = m.Sign(key(4), accounts, data)
	assert.ErrorIs(t, err, ErrAlreadyExecuted)

	m.Reset()
	remaining, err = m.Sign(key(4), accounts, data)
	require.NoError(t, err)
	assert.Equal(t, uint8(2), remaining, "reset starts a fresh count")
}

func TestSignMismatchResets(t *testing.T) {
	m := newRoster(t, 3, 2)
	accounts := [][32]byte{key(10)}

	remaining, err := m.Sign(key(1), accounts, []byte("ban-user"))
	require.NoError(t, err)
	assert.Equal(t, uint8(1), remaining)

	// A different payload discards the first approval and counts only the
	// caller.
	remaining, err = m.Sign(key(2), accounts, []byte("unban-user"))
	require.NoError(t, err)
	assert.Equal(t, uint8(1), remaining)
	assert.Equal(t, uint8(1), m.NumSigned)
	assert.False(t, m.Signed[0])
	assert.True(t, m.Signed[1])

	// Same holds for a different account list.
	remaining, err = m.Sign(key(1), [][32]byte{key(10), key(11)}, []byte("unban-user"))
	require.NoError(t, err)
	assert.Equal(t, uint8(1), remaining)
	assert.Equal(t, uint8(1), m.NumSigned)
}

func TestSignErrors(t *testing.T) {
	m := newRoster(t, 3, 2)
	accounts := [][32]byte{key(10)}
	data := []byte("op")

	var zero [32]byte
	_, err := m.Sign(zero, accounts, data)
	assert.ErrorIs(t, err, ErrMissingSignature)

	_, err = m.Sign(key(9), accounts, data)
	assert.ErrorIs(t, err, ErrNotAuthorized)

	_, err = m.Sign(key(1), accounts, data)
	require.NoError(t, err)
	_, err = m.Sign(key(1), accounts, data)
	assert.ErrorIs(t, err, ErrAlreadySigned)
}

func TestSingleSignerShortCircuit(t *testing.T) {
	m := newRoster(t, 1, 1)
	remaining, err := m.Sign(key(1), nil, []byte("op"))
	require.NoError(t, err)
	assert.Equal(t, uint8(0), remaining)
	assert.Equal(t, uint8(0), m.NumSigned, "single-signer rosters keep no pending state")
}

func TestUnsign(t *testing.T) {
	m := newRoster(t, 3, 2)
	accounts := [][32]byte{key(10)}
	data := []byte("op")

	_, err := m.Sign(key(1), accounts, data)
	require.NoError(t, err)

	// Withdrawing an approval that was never given changes nothing.
	require.NoError(t, m.Unsign(key(2)))
	assert.Equal(t, uint8(1), m.NumSigned)

	require.NoError(t, m.Unsign(key(1)))
	assert.Equal(t, uint8(0), m.NumSigned)
	assert.False(t, m.Signed[0])

	require.NoError(t, m.Unsign(key(1)), "unsign with nothing pending is a no-op")
	assert.ErrorIs(t, m.Unsign(key(9)), ErrNotAuthorized)
}

func TestInstructionHashStable(t *testing.T) {
	accounts := [][32]byte{key(1), key(2)}
	data := []byte("payload")

	h1 := InstructionHash(accounts, data)
	h2 := InstructionHash(accounts, data)
	assert.Equal(t, h1, h2)

	assert.NotEqual(t, h1, InstructionHash(accounts, []byte("payload2")))
	assert.NotEqual(t, h1, InstructionHash([][32]byte{key(2), key(1)}, data))
}
