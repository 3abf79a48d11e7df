// payload.go - Order and bid payload layouts over the generic sealing scheme.

package sealed

import (
	"errors"
	"math/big"

	bls12377 "github.com/consensys/gnark-crypto/ecc/bls12-377"

	"obsidian/internal/ledger"
)

// OrderPayload is the plaintext of a dark-pool order before sealing.
// Side is 0 for buy, 1 for sell. Amounts and prices are in base units.
type OrderPayload struct {
	Amount uint64
	Price  uint64
	Side   uint8
}

// SealOrder seals an order payload under the shared key with the settlement
// authority. The result is the opaque ciphertext submitted on-ledger.
func SealOrder(shared *bls12377.G1Affine, p OrderPayload) ([]byte, error) {
	return Seal(shared,
		new(big.Int).SetUint64(p.Amount),
		new(big.Int).SetUint64(p.Price),
		big.NewInt(int64(p.Side)),
	)
}

// OpenOrder recovers an order payload from its ciphertext.
func OpenOrder(shared *bls12377.G1Affine, ciphertext []byte) (OrderPayload, error) {
	fields, err := Open(shared, ciphertext)
	if err != nil {
		return OrderPayload{}, err
	}
	if len(fields) != 3 {
		return OrderPayload{}, errors.New("order ciphertext has wrong field count")
	}
	if !fields[0].IsUint64() || !fields[1].IsUint64() || fields[2].BitLen() > 8 {
		return OrderPayload{}, errors.New("order fields out of range")
	}
	return OrderPayload{
		Amount: fields[0].Uint64(),
		Price:  fields[1].Uint64(),
		Side:   uint8(fields[2].Uint64()),
	}, nil
}

// SealBid seals a single bid amount.
func SealBid(shared *bls12377.G1Affine, amount uint64) ([]byte, error) {
	return Seal(shared, new(big.Int).SetUint64(amount))
}

// OpenBid recovers a bid amount from its ciphertext.
func OpenBid(shared *bls12377.G1Affine, ciphertext []byte) (uint64, error) {
	fields, err := Open(shared, ciphertext)
	if err != nil {
		return 0, err
	}
	if len(fields) != 1 || !fields[0].IsUint64() {
		return 0, errors.New("bid ciphertext malformed")
	}
	return fields[0].Uint64(), nil
}

// Keyring holds the settlement authority's secret key and the public keys of
// known participants, keyed by ledger address. It implements the bid-opening
// capability the auction engine needs at settlement time.
type Keyring struct {
	kp   *KeyPair
	pubs map[ledger.Address]*bls12377.G1Affine
}

// NewKeyring creates a keyring around the authority keypair.
func NewKeyring(kp *KeyPair) *Keyring {
	return &Keyring{kp: kp, pubs: make(map[ledger.Address]*bls12377.G1Affine)}
}

// Register associates a participant public key with its derived address.
func (k *Keyring) Register(pk *bls12377.G1Affine) ledger.Address {
	addr := AddressOf(pk)
	k.pubs[addr] = pk
	return addr
}

// OpenBid decrypts a participant's sealed bid using the DH shared secret.
func (k *Keyring) OpenBid(bidder ledger.Address, ciphertext []byte) (uint64, error) {
	pk, ok := k.pubs[bidder]
	if !ok {
		return 0, errors.New("unknown bidder key")
	}
	return OpenBid(SharedSecret(k.kp.Sk, pk), ciphertext)
}
