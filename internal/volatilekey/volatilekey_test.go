package volatilekey

import (
	"bytes"
	"testing"
)

func TestDerive_ProducesDistinctFullLengthKeys(t *testing.T) {
	challenge1 := bytes.Repeat([]byte{0x01}, 32)
	challenge2 := bytes.Repeat([]byte{0x02}, 32)
	sharedSecret := bytes.Repeat([]byte{0x03}, 48)

	d, err := Derive(challenge1, challenge2, sharedSecret)
	if err != nil {
		t.Fatalf("Derive() error = %v", err)
	}
	if len(d.MasterSalt) != 32 {
		t.Errorf("MasterSalt length = %d, want 32", len(d.MasterSalt))
	}
	if len(d.MasterSenderKey) != 32 {
		t.Errorf("MasterSenderKey length = %d, want 32", len(d.MasterSenderKey))
	}
	if bytes.Equal(d.MasterSalt, d.MasterSenderKey) {
		t.Error("MasterSalt and MasterSenderKey should not be equal")
	}
}

func TestDerive_IsDeterministic(t *testing.T) {
	challenge1 := bytes.Repeat([]byte{0xaa}, 16)
	challenge2 := bytes.Repeat([]byte{0xbb}, 16)
	sharedSecret := []byte("a shared secret from the handshake")

	d1, err := Derive(challenge1, challenge2, sharedSecret)
	if err != nil {
		t.Fatal(err)
	}
	d2, err := Derive(challenge1, challenge2, sharedSecret)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(d1.MasterSalt, d2.MasterSalt) || !bytes.Equal(d1.MasterSenderKey, d2.MasterSenderKey) {
		t.Error("Derive() is not deterministic for identical inputs")
	}
}

func TestDerive_SwappingChallengesChangesOutput(t *testing.T) {
	sharedSecret := []byte("shared secret")
	a := bytes.Repeat([]byte{0x01}, 8)
	b := bytes.Repeat([]byte{0x02}, 8)

	forward, err := Derive(a, b, sharedSecret)
	if err != nil {
		t.Fatal(err)
	}
	backward, err := Derive(b, a, sharedSecret)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(forward.MasterSalt, backward.MasterSalt) {
		t.Error("swapping challenge1/challenge2 should change MasterSalt")
	}
	if bytes.Equal(forward.MasterSenderKey, backward.MasterSenderKey) {
		t.Error("swapping challenge1/challenge2 should change MasterSenderKey")
	}
}

func TestDerive_EmptySharedSecretStillProducesFullLengthKeys(t *testing.T) {
	// HMAC-SHA256 is defined for any key/data length, including empty data,
	// so this never hits the "empty output" failure path spec.md describes
	// for the original OpenSSL-backed construction (see DESIGN.md).
	d, err := Derive([]byte{1}, []byte{2}, nil)
	if err != nil {
		t.Fatalf("Derive() error = %v", err)
	}
	if len(d.MasterSalt) != 32 || len(d.MasterSenderKey) != 32 {
		t.Error("Derive() with empty shared secret should still produce 32-byte keys")
	}
}
