// Package volatilekey derives the master salt and master sender key for a
// built-in volatile discovery endpoint from the two authentication
// challenges and the shared secret produced by the (external) identity and
// permissions handshake.
package volatilekey

import (
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/hkdf"
)

// saltCookie and keyCookie are the 16-byte, NUL-free domain-separation
// strings mixed into the salt and key derivations respectively.
const (
	saltCookie = "keyexchange salt"
	keyCookie  = "key exchange key"
)

// Derived holds the two outputs of the volatile key derivation.
type Derived struct {
	MasterSalt      []byte
	MasterSenderKey []byte
}

// Derive computes MasterSalt and MasterSenderKey for a volatile endpoint
// pairing, following the construction:
//
//	master_salt       = HMAC-SHA256(key=SHA256(challenge1||saltCookie||challenge2), data=sharedSecret)
//	master_sender_key = HMAC-SHA256(key=SHA256(challenge2||keyCookie||challenge1), data=sharedSecret)
//
// golang.org/x/crypto/hkdf.Extract(hash, secret, salt) computes
// HMAC-hash(key=salt, data=secret); sharedSecret is passed as the secret
// argument and the SHA-256 digest as the salt argument for each derivation.
//
// It fails if either output is empty. HMAC-SHA256 always yields 32 bytes,
// so this does not happen for any input, including an empty sharedSecret.
func Derive(challenge1, challenge2, sharedSecret []byte) (Derived, error) {
	saltKey := sha256.Sum256(concat(challenge1, []byte(saltCookie), challenge2))
	masterSalt := hkdf.Extract(sha256.New, sharedSecret, saltKey[:])

	keyKey := sha256.Sum256(concat(challenge2, []byte(keyCookie), challenge1))
	masterSenderKey := hkdf.Extract(sha256.New, sharedSecret, keyKey[:])

	if len(masterSalt) == 0 || len(masterSenderKey) == 0 {
		return Derived{}, fmt.Errorf("volatilekey: derivation produced an empty key")
	}

	return Derived{MasterSalt: masterSalt, MasterSenderKey: masterSenderKey}, nil
}

func concat(parts ...[]byte) []byte {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make([]byte, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
