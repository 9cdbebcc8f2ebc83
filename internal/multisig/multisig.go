// Package multisig implements the M-of-N approval engine that gates
// privileged protocol operations.
//
// A Roster tracks up to six signer keys and a pending instruction identified
// by a folded SHA-256 hash of its account list and payload. Approvals
// accumulate against that hash; any signature over a different instruction
// restarts the count, so partial approvals can never be replayed onto new
// parameters.
package multisig

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
)

// MaxSigners is the roster capacity.
const MaxSigners = 6

var (
	// ErrMissingSignature is returned when the caller key is absent.
	ErrMissingSignature = errors.New("multisig: missing required signature")

	// ErrNotAuthorized is returned when the caller is not on the roster.
	ErrNotAuthorized = errors.New("multisig: account not authorized")

	// ErrAlreadySigned is returned when a signer re-approves the pending
	// instruction.
	ErrAlreadySigned = errors.New("multisig: already signed")

	// ErrAlreadyExecuted is returned when the pending instruction has
	// already collected its threshold.
	ErrAlreadyExecuted = errors.New("multisig: already executed")

	// ErrInvalidRoster is returned by SetSigners for an unusable signer
	// set or threshold.
	ErrInvalidRoster = errors.New("multisig: invalid signer set")
)

// Roster is the persistent approval state for one administrative domain.
type Roster struct {
	Signers       [MaxSigners][32]byte `json:"signers"`
	NumSigners    uint8                `json:"num_signers"`
	MinSignatures uint8                `json:"min_signatures"`

	// Pending instruction identity and progress.
	InstructionAccountsLen uint16           `json:"instruction_accounts_len"`
	InstructionDataLen     uint16           `json:"instruction_data_len"`
	InstructionHash        uint64           `json:"instruction_hash"`
	Signed                 [MaxSigners]bool `json:"signed"`
	NumSigned              uint8            `json:"num_signed"`
}

// SetSigners installs a new signer set and threshold, clearing any pending
// approval state.
func (m *Roster) SetSigners(keys [][32]byte, minSignatures uint8) error {
	if len(keys) == 0 || minSignatures == 0 {
		return ErrMissingSignature
	}
	if int(minSignatures) > len(keys) || len(keys) > MaxSigners {
		return ErrInvalidRoster
	}
	for i := range keys {
		for j := i + 1; j < len(keys); j++ {
			if keys[i] == keys[j] {
				return ErrInvalidRoster
			}
		}
	}

	*m = Roster{
		NumSigners:    uint8(len(keys)),
		MinSignatures: minSignatures,
	}
	copy(m.Signers[:], keys)
	return nil
}

// InstructionHash folds the SHA-256 digest of the instruction's account keys
// and payload into the 64-bit identity approvals accumulate against.
func InstructionHash(accounts [][32]byte, data []byte) uint64 {
	h := sha256.New()
	for _, a := range accounts {
		h.Write(a[:])
	}
	h.Write(data)
	return binary.LittleEndian.Uint64(h.Sum(nil)[:8])
}

// Sign records the caller's approval of the instruction described by
// accounts and data. It returns the number of additional signatures still
// required: zero means the caller's signature completed the threshold and
// the instruction may execute now.
//
// A signature over an instruction other than the pending one resets the
// count to just the caller, so a quorum is only ever formed over identical
// parameters.
func (m *Roster) Sign(signer [32]byte, accounts [][32]byte, data []byte) (uint8, error) {
	var zero [32]byte
	if signer == zero {
		return 0, ErrMissingSignature
	}
	idx := m.signerIndex(signer)
	if idx < 0 {
		return 0, ErrNotAuthorized
	}

	// Single-signer rosters execute immediately.
	if m.NumSigners <= 1 {
		return 0, nil
	}

	hash := InstructionHash(accounts, data)
	if hash != m.InstructionHash ||
		uint16(len(accounts)) != m.InstructionAccountsLen ||
		uint16(len(data)) != m.InstructionDataLen {
		m.NumSigned = 1
		m.InstructionAccountsLen = uint16(len(accounts))
		m.InstructionDataLen = uint16(len(data))
		m.InstructionHash = hash
		for i := range m.Signed {
			m.Signed[i] = false
		}
		m.Signed[idx] = true
		return m.MinSignatures - 1, nil
	}

	if m.Signed[idx] {
		return 0, ErrAlreadySigned
	}
	if m.NumSigned < m.MinSignatures {
		m.NumSigned++
		m.Signed[idx] = true
		return m.MinSignatures - m.NumSigned, nil
	}
	return 0, ErrAlreadyExecuted
}

// Unsign withdraws the caller's pending approval. Withdrawing an approval
// that was never given is a no-op.
func (m *Roster) Unsign(signer [32]byte) error {
	idx := m.signerIndex(signer)
	if idx < 0 {
		return ErrNotAuthorized
	}
	if m.NumSigners <= 1 || m.NumSigned == 0 {
		return nil
	}
	if !m.Signed[idx] {
		return nil
	}
	m.NumSigned--
	m.Signed[idx] = false
	return nil
}

// Reset clears the pending instruction after execution so the roster can
// accept approvals for the next one.
func (m *Roster) Reset() {
	m.InstructionAccountsLen = 0
	m.InstructionDataLen = 0
	m.InstructionHash = 0
	m.NumSigned = 0
	for i := range m.Signed {
		m.Signed[i] = false
	}
}

func (m *Roster) signerIndex(key [32]byte) int {
	for i := 0; i < int(m.NumSigners); i++ {
		if m.Signers[i] == key {
			return i
		}
	}
	return -1
}
