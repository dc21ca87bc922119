package engine

import (
	"encoding/binary"
	"strings"
	"time"
	"unicode"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"veribond/internal/domain"
	"veribond/internal/fault"
)

const maxIdentifierLen = 128

// ClaimID derives the claim identifier from its defining tuple. Each field is
// length-prefixed so distinct tuples cannot encode to the same bytes.
func ClaimID(agentID, claimHash string, submittedAt time.Time, submitter string) string {
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(submittedAt.Unix()))
	return crypto.Keccak256Hash(
		lengthPrefixed([]byte(agentID)),
		lengthPrefixed([]byte(strings.ToLower(claimHash))),
		lengthPrefixed(ts[:]),
		lengthPrefixed([]byte(submitter)),
	).Hex()
}

func lengthPrefixed(b []byte) []byte {
	out := make([]byte, 8+len(b))
	binary.BigEndian.PutUint64(out, uint64(len(b)))
	copy(out[8:], b)
	return out
}

// NormalizeHash validates a 0x-prefixed 32-byte hex claim hash and returns it
// lower-cased.
func NormalizeHash(h string) (string, error) {
	b, err := hexutil.Decode(strings.TrimSpace(h))
	if err != nil || len(b) != 32 {
		return "", fault.Wrapf(fault.ErrInvalidInput, "claim_hash must be 32 bytes of 0x-prefixed hex")
	}
	return hexutil.Encode(b), nil
}

// ValidateAccount is ValidateIdentifier for accounts that send or receive
// value. The escrow account is never one of them.
func ValidateAccount(field, v string) error {
	if err := ValidateIdentifier(field, v); err != nil {
		return err
	}
	if v == domain.EscrowAccount {
		return fault.Wrapf(fault.ErrInvalidInput, "%s cannot be the %s account", field, domain.EscrowAccount)
	}
	return nil
}

// ValidateIdentifier rejects empty, oversized or whitespace-bearing ids.
func ValidateIdentifier(field, v string) error {
	if v == "" {
		return fault.Wrapf(fault.ErrInvalidInput, "%s required", field)
	}
	if len(v) > maxIdentifierLen {
		return fault.Wrapf(fault.ErrInvalidInput, "%s longer than %d", field, maxIdentifierLen)
	}
	if strings.IndexFunc(v, unicode.IsSpace) >= 0 {
		return fault.Wrapf(fault.ErrInvalidInput, "%s must not contain whitespace", field)
	}
	return nil
}
