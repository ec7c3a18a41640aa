// Package domain defines the identifier space the ring is built on: the
// modular arithmetic, key hashing, and the ring-membership predicate that
// every lookup and ownership test in the chord package builds on.
package domain

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// ErrInvalidID is returned when a string is not a non-negative decimal
// integer, or when a raw ID has the wrong byte length or bits set above the
// configured width.
var ErrInvalidID = errors.New("invalid id")

// ErrOutOfRange is returned when a well-formed identifier falls outside
// [0, 2^Bits).
var ErrOutOfRange = errors.New("id out of range")

// Space describes the identifier ring: the integers [0, 2^Bits) under
// modular arithmetic. Bits is the reference configuration constant M from
// the protocol description (reference value 5; any value up to 160 is
// valid since identifiers are derived from a SHA-1 digest).
type Space struct {
	Bits    int // number of bits in the identifier space
	ByteLen int // bytes needed to hold an identifier (ceil(Bits/8))
}

// NewSpace builds a Space for the given bit-width.
func NewSpace(bits int) (Space, error) {
	if bits <= 0 || bits > 160 {
		return Space{}, fmt.Errorf("invalid identifier bits: %d (must be in (0, 160])", bits)
	}
	return Space{
		Bits:    bits,
		ByteLen: (bits + 7) / 8,
	}, nil
}

// ID is an identifier in the ring, stored big-endian.
type ID []byte

// Zero returns the all-zero identifier for this space.
func (sp Space) Zero() ID {
	return make(ID, sp.ByteLen)
}

// idFromBigInt renders a non-negative big.Int as a big-endian ID of the
// space's byte length, left-padded with zeroes.
func (sp Space) idFromBigInt(v *big.Int) ID {
	id := make(ID, sp.ByteLen)
	b := v.Bytes()
	if len(b) > 0 {
		copy(id[sp.ByteLen-len(b):], b)
	}
	return id
}

// HashKey computes hash_key(k) = SHA1(k) mod 2^Bits, treating the full
// 160-bit digest as a big-endian integer before reducing it into the ring.
func (sp Space) HashKey(key string) ID {
	digest := sha1.Sum([]byte(key))
	full := new(big.Int).SetBytes(digest[:])
	modulus := new(big.Int).Lsh(big.NewInt(1), uint(sp.Bits))
	full.Mod(full, modulus)
	return sp.idFromBigInt(full)
}

// IsValidID reports whether id is a well-formed identifier for sp: right
// byte length, and (when Bits isn't byte-aligned) no stray bits set above
// the configured width.
func (sp Space) IsValidID(id []byte) error {
	if len(id) != sp.ByteLen {
		return ErrInvalidID
	}
	extraBits := sp.ByteLen*8 - sp.Bits
	if extraBits > 0 {
		mask := byte(0xFF << (8 - extraBits))
		if id[0]&mask != 0 {
			return ErrInvalidID
		}
	}
	return nil
}

// ToHexString renders the identifier as lowercase hex, optionally prefixed
// with "0x". A nil ID renders as "<nil>".
func (x ID) ToHexString(prefix bool) string {
	if x == nil {
		return "<nil>"
	}
	s := hex.EncodeToString(x)
	if prefix {
		return "0x" + s
	}
	return s
}

// ToBigInt interprets the identifier as a non-negative big-endian integer.
func (x ID) ToBigInt() *big.Int {
	if x == nil {
		return nil
	}
	return new(big.Int).SetBytes(x)
}

// ToDecimalString renders the identifier as a plain base-10 integer, the
// display spec.md's worked examples and original_source/chord_dht_gui.py's
// int(node_id_str) parsing both assume (node ids "1, 8, 14, 21, 28", not
// hex).
func (x ID) ToDecimalString() string {
	if x == nil {
		return "<nil>"
	}
	return x.ToBigInt().String()
}

// FromDecimalString parses a base-10 integer string into an identifier
// valid for sp, matching the command-surface grammar spec.md §6 and §7
// describe ("non-integer id", "id outside [0, 2^M)") and
// original_source/chord_dht_gui.py's add_node/remove_node/query_node
// handlers, which all do int(node_id_str) followed by a 0 <= id < 2^M
// range check.
func (sp Space) FromDecimalString(s string) (ID, error) {
	s = strings.TrimSpace(s)
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("%w: %q is not a non-negative integer", ErrInvalidID, s)
	}
	modulus := new(big.Int).Lsh(big.NewInt(1), uint(sp.Bits))
	if v.Cmp(modulus) >= 0 {
		return nil, fmt.Errorf("%w: %q is not in [0, 2^%d)", ErrOutOfRange, s, sp.Bits)
	}
	return sp.idFromBigInt(v), nil
}

// FromUint64 truncates x to the configured bit width and renders it as an
// identifier.
func (sp Space) FromUint64(x uint64) ID {
	id := make(ID, sp.ByteLen)
	for i := sp.ByteLen - 1; i >= 0 && x > 0; i-- {
		id[i] = byte(x & 0xFF)
		x >>= 8
	}
	extraBits := sp.ByteLen*8 - sp.Bits
	if extraBits > 0 {
		id[0] &= byte(0xFF >> extraBits)
	}
	return id
}

// AddMod computes (a + b) mod 2^Bits.
func (sp Space) AddMod(a, b ID) ID {
	sum := new(big.Int).Add(a.ToBigInt(), b.ToBigInt())
	modulus := new(big.Int).Lsh(big.NewInt(1), uint(sp.Bits))
	sum.Mod(sum, modulus)
	return sp.idFromBigInt(sum)
}

// SubMod computes (a - b) mod 2^Bits.
func (sp Space) SubMod(a, b ID) ID {
	diff := new(big.Int).Sub(a.ToBigInt(), b.ToBigInt())
	modulus := new(big.Int).Lsh(big.NewInt(1), uint(sp.Bits))
	diff.Mod(diff, modulus)
	return sp.idFromBigInt(diff)
}

// Cmp compares two identifiers as unsigned big-endian integers.
func (x ID) Cmp(b ID) int {
	return bytes.Compare(x, b)
}

// Equal reports whether x and b are the same identifier.
func (x ID) Equal(b ID) bool {
	return bytes.Equal(x, b)
}
