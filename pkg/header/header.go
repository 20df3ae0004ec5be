// Package header implements the Bitcoin-compatible 80-byte block header:
// its wire serialisation, the compact "bits" target encoding, and the
// canonical double-SHA-256 block hash.
package header

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Size is the fixed wire length of a Bitcoin block header.
const Size = 80

// ErrInvalidTarget is returned when a compact "bits" value encodes a
// negative or otherwise unrepresentable target.
var ErrInvalidTarget = errors.New("header: invalid target encoding")

// BlockHeader is the 80-byte Bitcoin block header. PrevHash and MerkleRoot
// are stored internally in the same byte order btcsuite's chainhash.Hash
// uses (internal/little-endian order); callers that want the conventional
// MSB-first display string should use chainhash.Hash.String().
type BlockHeader struct {
	Version    int32
	PrevHash   chainhash.Hash
	MerkleRoot chainhash.Hash
	Timestamp  uint32
	Bits       uint32
	Nonce      uint32
}

// Serialize writes the header in its canonical 80-byte little-endian wire
// form. Nonce occupies the last four bytes, so re-hashing for a new nonce
// only needs to overwrite buf[76:80].
func (h *BlockHeader) Serialize() [Size]byte {
	var buf [Size]byte
	binary.LittleEndian.PutUint32(buf[0:4], uint32(h.Version))
	copy(buf[4:36], h.PrevHash[:])
	copy(buf[36:68], h.MerkleRoot[:])
	binary.LittleEndian.PutUint32(buf[68:72], h.Timestamp)
	binary.LittleEndian.PutUint32(buf[72:76], h.Bits)
	binary.LittleEndian.PutUint32(buf[76:80], h.Nonce)
	return buf
}

// Deserialize parses an 80-byte wire-form header.
func Deserialize(buf []byte) (*BlockHeader, error) {
	if len(buf) != Size {
		return nil, fmt.Errorf("header: expected %d bytes, got %d", Size, len(buf))
	}
	h := &BlockHeader{
		Version:   int32(binary.LittleEndian.Uint32(buf[0:4])),
		Timestamp: binary.LittleEndian.Uint32(buf[68:72]),
		Bits:      binary.LittleEndian.Uint32(buf[72:76]),
		Nonce:     binary.LittleEndian.Uint32(buf[76:80]),
	}
	copy(h.PrevHash[:], buf[4:36])
	copy(h.MerkleRoot[:], buf[36:68])
	return h, nil
}

// BlockHash returns the canonical Bitcoin block hash: double-SHA-256 of the
// serialised header, displayed (via chainhash.Hash.String) MSB-first.
func (h *BlockHeader) BlockHash() chainhash.Hash {
	buf := h.Serialize()
	return chainhash.DoubleHashH(buf[:])
}

// WithNonce returns a copy of the header with only the nonce changed, the
// same "overwrite the last four bytes" operation the wire format implies.
func (h *BlockHeader) WithNonce(nonce uint32) BlockHeader {
	cp := *h
	cp.Nonce = nonce
	return cp
}

// Genesis returns the genesis block header of the given network, used as
// the S1 known-easy-target grounding fixture (the real nonce is replaced
// by the caller per the testable-properties scenario).
func Genesis(params *chaincfg.Params) *BlockHeader {
	gh := params.GenesisBlock.Header
	return &BlockHeader{
		Version:    gh.Version,
		PrevHash:   gh.PrevBlock,
		MerkleRoot: gh.MerkleRoot,
		Timestamp:  uint32(gh.Timestamp.Unix()),
		Bits:       gh.Bits,
		Nonce:      gh.Nonce,
	}
}

// Target is a 256-bit unsigned integer against which a candidate digest is
// compared. A digest, interpreted little-endian, must be strictly less
// than Target for the block to be valid.
type Target struct {
	big.Int
}

// BitsToTarget decodes Bitcoin's compact "bits" encoding: the top byte is
// an exponent E, the low three bytes form a mantissa M, and
// target = M * 2^(8*(E-3)). The high bit of the mantissa byte must be
// clear; a set high bit would encode a negative number, which is rejected.
func BitsToTarget(bits uint32) (*Target, error) {
	exponent := uint(bits >> 24)
	mantissa := bits & 0x007fffff

	if bits&0x00800000 != 0 {
		return nil, fmt.Errorf("%w: negative mantissa sign bit set", ErrInvalidTarget)
	}
	if mantissa == 0 {
		return nil, fmt.Errorf("%w: zero mantissa", ErrInvalidTarget)
	}

	t := new(big.Int).SetUint64(uint64(mantissa))
	shift := int(exponent) - 3
	if shift > 0 {
		t.Lsh(t, uint(shift*8))
	} else if shift < 0 {
		t.Rsh(t, uint(-shift*8))
	}
	return &Target{Int: *t}, nil
}

// TargetToBits encodes a target back into Bitcoin's compact form, rounding
// as the compact form requires: the mantissa keeps its three most
// significant bytes and the exponent records how many bytes followed.
func TargetToBits(t *Target) uint32 {
	bz := t.Bytes()
	n := len(bz)
	if n == 0 {
		return 0
	}

	var mantissa uint32
	var exponent uint32

	switch {
	case n <= 3:
		mantissa = 0
		for i := 0; i < n; i++ {
			mantissa |= uint32(bz[i]) << uint(8*(2-i))
		}
		exponent = uint32(n)
	default:
		mantissa = uint32(bz[0])<<16 | uint32(bz[1])<<8 | uint32(bz[2])
		exponent = uint32(n)
	}

	if mantissa&0x00800000 != 0 {
		mantissa >>= 8
		exponent++
	}

	return exponent<<24 | mantissa
}

// Less reports whether the digest (interpreted as an unsigned 256-bit
// little-endian integer) is strictly less than the target.
func (t *Target) Less(digest [32]byte) bool {
	be := make([]byte, 32)
	for i := range digest {
		be[i] = digest[31-i]
	}
	d := new(big.Int).SetBytes(be)
	return d.Cmp(&t.Int) < 0
}
