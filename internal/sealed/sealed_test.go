package sealed

import (
	"bytes"
	"math/big"
	"testing"
)

func TestSharedSecretSymmetry(t *testing.T) {
	kp1, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("keygen failed: %v", err)
	}
	kp2, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("keygen failed: %v", err)
	}
	s1 := SharedSecret(kp1.Sk, kp2.Pk)
	s2 := SharedSecret(kp2.Sk, kp1.Pk)
	if !s1.Equal(s2) {
		t.Error("DH shared secrets do not match")
	}
}

func TestSealOpenRoundTrip(t *testing.T) {
	kp1, _ := GenerateKeyPair()
	kp2, _ := GenerateKeyPair()
	shared := SharedSecret(kp1.Sk, kp2.Pk)

	fields := []*big.Int{big.NewInt(12345), big.NewInt(0), new(big.Int).Lsh(big.NewInt(1), 200)}
	ct, err := Seal(shared, fields...)
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}
	got, err := Open(SharedSecret(kp2.Sk, kp1.Pk), ct)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	for i := range fields {
		if fields[i].Cmp(got[i]) != 0 {
			t.Errorf("field %d: got %v, want %v", i, got[i], fields[i])
		}
	}
}

func TestOpenWithWrongKeyGarbles(t *testing.T) {
	kp1, _ := GenerateKeyPair()
	kp2, _ := GenerateKeyPair()
	eve, _ := GenerateKeyPair()

	ct, err := SealBid(SharedSecret(kp1.Sk, kp2.Pk), 777)
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}
	fields, err := Open(SharedSecret(eve.Sk, kp1.Pk), ct)
	if err == nil && len(fields) == 1 && fields[0].Cmp(big.NewInt(777)) == 0 {
		t.Error("wrong key recovered the plaintext")
	}
}

func TestOrderPayloadRoundTrip(t *testing.T) {
	kp1, _ := GenerateKeyPair()
	kp2, _ := GenerateKeyPair()
	shared := SharedSecret(kp1.Sk, kp2.Pk)

	p := OrderPayload{Amount: 5_000_000_000, Price: 142_000_000_000, Side: 1}
	ct, err := SealOrder(shared, p)
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}
	got, err := OpenOrder(SharedSecret(kp2.Sk, kp1.Pk), ct)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if got != p {
		t.Errorf("payload = %+v, want %+v", got, p)
	}
}

func TestKeyringOpensBid(t *testing.T) {
	authority, _ := GenerateKeyPair()
	bidder, _ := GenerateKeyPair()

	ring := NewKeyring(authority)
	addr := ring.Register(bidder.Pk)

	ct, err := SealBid(SharedSecret(bidder.Sk, authority.Pk), 42)
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}
	amount, err := ring.OpenBid(addr, ct)
	if err != nil {
		t.Fatalf("keyring open failed: %v", err)
	}
	if amount != 42 {
		t.Errorf("opened bid = %d, want 42", amount)
	}

	if _, err := ring.OpenBid("unknown", ct); err == nil {
		t.Error("expected error for unknown bidder")
	}
}

func TestAddressDeterminism(t *testing.T) {
	kp, _ := GenerateKeyPair()
	if AddressOf(kp.Pk) != AddressOf(kp.Pk) {
		t.Error("address derivation is not deterministic")
	}
	other, _ := GenerateKeyPair()
	if AddressOf(kp.Pk) == AddressOf(other.Pk) {
		t.Error("address collision between distinct keys")
	}
}

func TestRandomBytes(t *testing.T) {
	a, err := RandomBytes(48)
	if err != nil {
		t.Fatalf("random bytes: %v", err)
	}
	if len(a) != 48 {
		t.Errorf("length = %d, want 48", len(a))
	}
	b, err := RandomBytes(48)
	if err != nil {
		t.Fatalf("random bytes: %v", err)
	}
	if bytes.Equal(a, b) {
		t.Error("two draws returned identical bytes")
	}
}

func TestMimcHashDeterminism(t *testing.T) {
	a := MimcHash([]byte("obsidian"))
	b := MimcHash([]byte("obsidian"))
	if !bytes.Equal(a, b) {
		t.Error("MiMC hash is not deterministic")
	}
	c := MimcHash([]byte("obsidian2"))
	if bytes.Equal(a, c) {
		t.Error("MiMC hash collision")
	}
}
