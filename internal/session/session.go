// Package session implements the per-(handle, key-index) session engine:
// session id and IV-suffix management, rotation at the 1024-block bound, and
// HMAC-SHA256 session key derivation from a master key.
package session

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// MaxBlocksPerSession is the number of 16-byte plaintext blocks a session
// may protect before it must rotate to a fresh session id and key.
const MaxBlocksPerSession = 1024

// sessionKeyCookie is the domain-separation string mixed into the session
// key derivation. It intentionally excludes a trailing NUL.
const sessionKeyCookie = "SessionKey"

// State is the mutable per-sender session state for one (handle, key-index)
// pair. The zero value is a session that has never been used.
type State struct {
	ID       [4]byte
	IVSuffix [8]byte
	Counter  int
	Key      []byte
}

// RandSource supplies cryptographically random bytes for session id and IV
// suffix generation. Implementations must not reuse output across calls.
type RandSource interface {
	Read(p []byte) (int, error)
}

// Advance prepares sess for encoding a message of the given plaintext
// length against masterSalt/masterSenderKey, creating or rotating the
// session as needed, and returns the IV to use for this message.
//
// Exactly one of these happens per call:
//   - the session has no key yet: a fresh id, IV suffix, and key are created,
//     and the counter starts at this message's block count.
//   - counter+blocks would exceed MaxBlocksPerSession: the session id is
//     incremented, a fresh IV suffix and key are derived, and the counter
//     restarts at this message's block count.
//   - otherwise: the IV suffix is incremented and the counter advances.
func Advance(sess *State, rnd RandSource, masterSalt, masterSenderKey []byte, plaintextLen int) ([]byte, error) {
	blocks := blockCount(plaintextLen)

	switch {
	case len(sess.Key) == 0:
		if err := randInto(rnd, sess.ID[:]); err != nil {
			return nil, err
		}
		if err := randInto(rnd, sess.IVSuffix[:]); err != nil {
			return nil, err
		}
		key, err := deriveKey(masterSenderKey, masterSalt, sess.ID)
		if err != nil {
			return nil, err
		}
		sess.Key = key
		sess.Counter = blocks

	case sess.Counter+blocks > MaxBlocksPerSession:
		incrementID(&sess.ID)
		if err := randInto(rnd, sess.IVSuffix[:]); err != nil {
			return nil, err
		}
		key, err := deriveKey(masterSenderKey, masterSalt, sess.ID)
		if err != nil {
			return nil, err
		}
		sess.Key = key
		sess.Counter = blocks

	default:
		incrementIVSuffix(&sess.IVSuffix)
		sess.Counter += blocks
	}

	return iv(sess), nil
}

// GetKeyForDecode returns the session key to use for decoding a message
// whose header carries sessionID. If the cached key matches sessionID it is
// reused; otherwise the session id is adopted and the key re-derived.
func GetKeyForDecode(sess *State, sessionID [4]byte, masterSalt, masterSenderKey []byte) ([]byte, error) {
	if len(sess.Key) != 0 && sess.ID == sessionID {
		return sess.Key, nil
	}
	sess.ID = sessionID
	sess.Key = nil
	key, err := deriveKey(masterSenderKey, masterSalt, sess.ID)
	if err != nil {
		return nil, err
	}
	sess.Key = key
	return sess.Key, nil
}

// IV returns the 12-byte IV (session id || IV suffix) for sess's current
// state. It is identical on the encode and decode sides.
func IV(sess *State) []byte {
	return iv(sess)
}

func iv(sess *State) []byte {
	out := make([]byte, 0, 12)
	out = append(out, sess.ID[:]...)
	out = append(out, sess.IVSuffix[:]...)
	return out
}

// deriveKey computes the 32-byte session key as
// HMAC-SHA256(key=masterSenderKey, data="SessionKey" || masterSalt || sessionID).
//
// golang.org/x/crypto/hkdf.Extract(hash, secret, salt) computes
// HMAC-hash(key=salt, data=secret), so the master sender key is passed as
// the salt argument and the cookie||salt||id bytes as the secret argument.
func deriveKey(masterSenderKey, masterSalt []byte, sessionID [4]byte) ([]byte, error) {
	if len(masterSenderKey) == 0 {
		return nil, fmt.Errorf("session: empty master sender key")
	}
	data := make([]byte, 0, len(sessionKeyCookie)+len(masterSalt)+4)
	data = append(data, sessionKeyCookie...)
	data = append(data, masterSalt...)
	data = append(data, sessionID[:]...)
	return hkdf.Extract(sha256.New, data, masterSenderKey), nil
}

func randInto(rnd RandSource, p []byte) error {
	_, err := io.ReadFull(rnd, p)
	if err != nil {
		return fmt.Errorf("session: read random bytes: %w", err)
	}
	return nil
}

// incrementID increments a 4-byte little-endian counter with wraparound.
func incrementID(id *[4]byte) {
	v := binary.LittleEndian.Uint32(id[:])
	v++
	binary.LittleEndian.PutUint32(id[:], v)
}

// incrementIVSuffix increments an 8-byte little-endian counter with
// wraparound (wrapping is unreachable in practice: a session rotates long
// before 2^64 messages).
func incrementIVSuffix(suffix *[8]byte) {
	v := binary.LittleEndian.Uint64(suffix[:])
	v++
	binary.LittleEndian.PutUint64(suffix[:], v)
}

func blockCount(n int) int {
	const blockSize = 16
	return (n + blockSize - 1) / blockSize
}
