// sealed.go - Client-side sealing primitives for the obsidian protocol.
//
// Implements BLS12-377 Diffie-Hellman key exchange, ledger address derivation,
// and MiMC-based sealing of order/bid payloads. The core never inspects
// plaintext; it only ever sees the opaque ciphertext produced here. Opening
// happens on the settlement side after the external key exchange.
//
// All randomness is generated using crypto/rand.

package sealed

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"

	bls12377 "github.com/consensys/gnark-crypto/ecc/bls12-377"
	bls12377_fr "github.com/consensys/gnark-crypto/ecc/bls12-377/fr"
	mimcNative "github.com/consensys/gnark-crypto/ecc/bw6-761/fr/mimc"

	"obsidian/internal/ledger"
)

// laneSize is the byte width of one sealed field (one MiMC digest over the
// BW6-761 scalar field).
const laneSize = 48

// KeyPair is a BLS12-377 keypair for Diffie-Hellman key exchange.
// Sk: scalar (private), Pk: G1Affine (public).
type KeyPair struct {
	Sk *bls12377_fr.Element
	Pk *bls12377.G1Affine
}

// GenerateKeyPair generates a random BLS12-377 keypair.
func GenerateKeyPair() (*KeyPair, error) {
	var sk bls12377_fr.Element
	if _, err := sk.SetRandom(); err != nil {
		return nil, err
	}
	g1Jac, _, _, _ := bls12377.Generators()
	var pk bls12377.G1Affine
	pk.FromJacobian(&g1Jac)
	pk.ScalarMultiplication(&pk, sk.BigInt(new(big.Int)))
	return &KeyPair{Sk: &sk, Pk: &pk}, nil
}

// SharedSecret computes the DH shared secret (G^ab) given our sk and their pk.
func SharedSecret(sk *bls12377_fr.Element, pk *bls12377.G1Affine) *bls12377.G1Affine {
	var shared bls12377.G1Affine
	shared.ScalarMultiplication(pk, sk.BigInt(new(big.Int)))
	return &shared
}

// AddressOf derives the ledger address of a public key: the hex-encoded MiMC
// hash of its affine coordinates.
func AddressOf(pk *bls12377.G1Affine) ledger.Address {
	h := mimcNative.NewMiMC()
	xBytes := pk.X.Bytes()
	yBytes := pk.Y.Bytes()
	h.Write(xBytes[:])
	h.Write(yBytes[:])
	return ledger.Address(hex.EncodeToString(h.Sum(nil)))
}

// maskChain derives n sealing masks from a shared key using a MiMC hash chain.
func maskChain(shared *bls12377.G1Affine, n int) [][]byte {
	h := mimcNative.NewMiMC()
	xBytes := shared.X.Bytes()
	yBytes := shared.Y.Bytes()
	h.Write(xBytes[:])
	h.Write(yBytes[:])
	masks := make([][]byte, n)
	prev := h.Sum(nil)
	masks[0] = prev
	for i := 1; i < n; i++ {
		h.Reset()
		h.Write(prev)
		prev = h.Sum(nil)
		masks[i] = prev
	}
	return masks
}

// Seal seals a payload of field values under the shared key. Each field is
// padded to a fixed 48-byte lane and xored with its mask, so the ciphertext
// length reveals only the field count.
func Seal(shared *bls12377.G1Affine, fields ...*big.Int) ([]byte, error) {
	masks := maskChain(shared, len(fields))
	out := make([]byte, 0, len(fields)*laneSize)
	for i, f := range fields {
		if f.Sign() < 0 || f.BitLen() > 8*laneSize {
			return nil, fmt.Errorf("field %d out of sealing range", i)
		}
		lane := make([]byte, laneSize)
		f.FillBytes(lane)
		out = append(out, xorPad(lane, masks[i])...)
	}
	return out, nil
}

// Open reverses Seal, recovering the payload fields from a ciphertext.
func Open(shared *bls12377.G1Affine, ciphertext []byte) ([]*big.Int, error) {
	if len(ciphertext) == 0 || len(ciphertext)%laneSize != 0 {
		return nil, errors.New("malformed ciphertext")
	}
	n := len(ciphertext) / laneSize
	masks := maskChain(shared, n)
	fields := make([]*big.Int, n)
	for i := 0; i < n; i++ {
		lane := xorPad(ciphertext[i*laneSize:(i+1)*laneSize], masks[i])
		fields[i] = new(big.Int).SetBytes(lane)
	}
	return fields, nil
}

// xorPad xors two byte slices, padding the shorter one with zeros.
func xorPad(a, b []byte) []byte {
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	out := make([]byte, maxLen)
	for i := 0; i < maxLen; i++ {
		var ab, bb byte
		if i < len(a) {
			ab = a[i]
		}
		if i < len(b) {
			bb = b[i]
		}
		out[i] = ab ^ bb
	}
	return out
}

// MaskBytes xor-masks data with a MiMC keystream derived from key. Masking is
// an involution: applying it twice with the same key restores the input. Used
// for at-rest masking of proof material inside vault records.
func MaskBytes(key, data []byte) []byte {
	out := make([]byte, len(data))
	stream := MimcHash(key)
	off := 0
	for off < len(data) {
		n := copy(out[off:], stream)
		for i := 0; i < n; i++ {
			out[off+i] ^= data[off+i]
		}
		off += n
		stream = MimcHash(stream)
	}
	return out
}

// RandomBytes generates n random bytes using crypto/rand.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// MimcHash computes the MiMC hash of the input bytes. Input is chunked into
// 31-byte pieces and left-padded to the hash block size so every block is a
// canonical field element.
func MimcHash(data []byte) []byte {
	h := mimcNative.NewMiMC()
	const chunk = 31
	for i := 0; i < len(data); i += chunk {
		end := i + chunk
		if end > len(data) {
			end = len(data)
		}
		block := make([]byte, mimcNative.BlockSize)
		copy(block[mimcNative.BlockSize-(end-i):], data[i:end])
		h.Write(block)
	}
	return h.Sum(nil)
}
