package session

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"testing"
)

func masterKeyAndSalt(t *testing.T) (salt, key []byte) {
	salt = make([]byte, 32)
	key = make([]byte, 32)
	if _, err := rand.Read(salt); err != nil {
		t.Fatal(err)
	}
	if _, err := rand.Read(key); err != nil {
		t.Fatal(err)
	}
	return salt, key
}

func TestAdvance_CreatesSessionOnFirstUse(t *testing.T) {
	salt, key := masterKeyAndSalt(t)
	sess := &State{}

	iv, err := Advance(sess, rand.Reader, salt, key, 100)
	if err != nil {
		t.Fatalf("Advance() error = %v", err)
	}
	if len(iv) != 12 {
		t.Fatalf("IV length = %d, want 12", len(iv))
	}
	if len(sess.Key) == 0 {
		t.Fatal("session key not derived")
	}
	if sess.Counter != BlockCountForTest(100) {
		t.Errorf("counter = %d, want %d", sess.Counter, BlockCountForTest(100))
	}
}

func TestAdvance_IncrementsIVSuffixWithinSession(t *testing.T) {
	salt, key := masterKeyAndSalt(t)
	sess := &State{}

	if _, err := Advance(sess, rand.Reader, salt, key, 16); err != nil {
		t.Fatal(err)
	}
	id1 := sess.ID
	suffix1 := binary.LittleEndian.Uint64(sess.IVSuffix[:])
	key1 := append([]byte{}, sess.Key...)

	if _, err := Advance(sess, rand.Reader, salt, key, 16); err != nil {
		t.Fatal(err)
	}
	if sess.ID != id1 {
		t.Error("session id changed without rotation")
	}
	suffix2 := binary.LittleEndian.Uint64(sess.IVSuffix[:])
	if suffix2 != suffix1+1 {
		t.Errorf("iv suffix = %d, want %d", suffix2, suffix1+1)
	}
	if !bytes.Equal(sess.Key, key1) {
		t.Error("session key changed without rotation")
	}

	if _, err := Advance(sess, rand.Reader, salt, key, 16); err != nil {
		t.Fatal(err)
	}
	if sess.Counter != 3 {
		t.Errorf("counter after 3 one-block messages = %d, want 3", sess.Counter)
	}
}

func TestAdvance_RotatesAfterBlockBudgetExceeded(t *testing.T) {
	salt, key := masterKeyAndSalt(t)
	sess := &State{}

	// Consume exactly MaxBlocksPerSession blocks, one per call.
	for i := 0; i < MaxBlocksPerSession; i++ {
		if _, err := Advance(sess, rand.Reader, salt, key, 16); err != nil {
			t.Fatal(err)
		}
	}
	id1 := sess.ID
	key1 := append([]byte{}, sess.Key...)
	if sess.Counter != MaxBlocksPerSession {
		t.Fatalf("counter = %d, want %d", sess.Counter, MaxBlocksPerSession)
	}

	// One more block pushes counter+blocks over the budget: must rotate.
	if _, err := Advance(sess, rand.Reader, salt, key, 16); err != nil {
		t.Fatal(err)
	}
	wantID := id1
	incrementID(&wantID)
	if sess.ID != wantID {
		t.Errorf("session id = %x, want %x (incremented)", sess.ID, wantID)
	}
	if bytes.Equal(sess.Key, key1) {
		t.Error("session key did not change on rotation")
	}
	if sess.Counter != 1 {
		t.Errorf("counter after rotation = %d, want 1", sess.Counter)
	}
}

func TestGetKeyForDecode_CachesOnMatchingSessionID(t *testing.T) {
	salt, key := masterKeyAndSalt(t)
	enc := &State{}
	if _, err := Advance(enc, rand.Reader, salt, key, 32); err != nil {
		t.Fatal(err)
	}

	dec := &State{}
	k1, err := GetKeyForDecode(dec, enc.ID, salt, key)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(k1, enc.Key) {
		t.Error("decoded session key does not match encoder's derived key")
	}

	// Same session id: should be served from cache (key slice is reused).
	k2, err := GetKeyForDecode(dec, enc.ID, salt, key)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(k1, k2) {
		t.Error("cached decode key changed across calls with the same session id")
	}
}

func TestGetKeyForDecode_RederivesOnSessionIDChange(t *testing.T) {
	salt, key := masterKeyAndSalt(t)
	dec := &State{}

	var id1 [4]byte
	id1[0] = 1
	k1, err := GetKeyForDecode(dec, id1, salt, key)
	if err != nil {
		t.Fatal(err)
	}

	var id2 [4]byte
	id2[0] = 2
	k2, err := GetKeyForDecode(dec, id2, salt, key)
	if err != nil {
		t.Fatal(err)
	}

	if bytes.Equal(k1, k2) {
		t.Error("session keys for different session ids should differ")
	}
}

func TestIncrementID_WrapsAt32Bits(t *testing.T) {
	id := [4]byte{0xff, 0xff, 0xff, 0xff}
	incrementID(&id)
	if id != [4]byte{0, 0, 0, 0} {
		t.Errorf("incrementID wraparound = %x, want zero", id)
	}
}

// BlockCountForTest exposes blockCount for table comparisons in this test file.
func BlockCountForTest(n int) int { return blockCount(n) }
