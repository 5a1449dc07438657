package cryptobuiltin

import (
	"crypto/rand"
	"encoding/binary"
	"io"
)

// TransformationKind is the 4-byte algorithm selector carried in a
// CryptoHeader and in every KeyMaterial. The last byte selects the
// algorithm; the first three are zero for every registry-valid kind except
// the volatile placeholder.
type TransformationKind [4]byte

// Algorithm selector values, the last byte of a TransformationKind.
const (
	TransformKindNone       byte = 0
	TransformKindAES128GMAC byte = 1
	TransformKindAES128GCM  byte = 2
	TransformKindAES256GMAC byte = 3
	TransformKindAES256GCM  byte = 4
)

// VendorID is this implementation's two-byte vendor identifier, used only
// in the volatile placeholder's TransformationKind.
var VendorID = [2]byte{0x01, 0x10}

const keyLenBytes = 32

// KeyMaterial is the in-memory record of one master key.
type KeyMaterial struct {
	TransformationKind        TransformationKind
	MasterSalt                []byte
	SenderKeyID               [4]byte
	MasterSenderKey           []byte
	ReceiverSpecificKeyID     [4]byte
	MasterReceiverSpecificKey []byte
}

// Encrypts reports whether k selects an AES-GCM algorithm.
func (k KeyMaterial) Encrypts() bool {
	kind := k.TransformationKind
	return kind[0] == 0 && kind[1] == 0 && kind[2] == 0 &&
		(kind[3] == TransformKindAES128GCM || kind[3] == TransformKindAES256GCM)
}

// Authenticates reports whether k selects an AES-GMAC algorithm.
func (k KeyMaterial) Authenticates() bool {
	kind := k.TransformationKind
	return kind[0] == 0 && kind[1] == 0 && kind[2] == 0 &&
		(kind[3] == TransformKindAES128GMAC || kind[3] == TransformKindAES256GMAC)
}

// IsVolatilePlaceholder reports whether k is the sentinel key material used
// to mark a built-in volatile discovery endpoint before key exchange.
func (k KeyMaterial) IsVolatilePlaceholder() bool {
	return k.TransformationKind == TransformationKind{VendorID[0], VendorID[1], 0, 1}
}

// Matches reports whether k is the key a CryptoHeader's transform
// identifier refers to.
func (k KeyMaterial) Matches(kind TransformationKind, keyID [4]byte) bool {
	return k.TransformationKind == kind && k.SenderKeyID == keyID
}

func volatilePlaceholder() KeyMaterial {
	return KeyMaterial{TransformationKind: TransformationKind{VendorID[0], VendorID[1], 0, 1}}
}

// makeKey generates a fresh 256-bit master key keyed with id keyID, for the
// GCM algorithm when encrypt is true and GMAC otherwise.
func makeKey(rnd io.Reader, keyID Handle, encrypt bool) (KeyMaterial, error) {
	var k KeyMaterial
	if encrypt {
		k.TransformationKind[3] = TransformKindAES256GCM
	} else {
		k.TransformationKind[3] = TransformKindAES256GMAC
	}

	k.MasterSalt = make([]byte, keyLenBytes)
	if _, err := io.ReadFull(rnd, k.MasterSalt); err != nil {
		return KeyMaterial{}, err
	}

	binary.LittleEndian.PutUint32(k.SenderKeyID[:], uint32(keyID))

	k.MasterSenderKey = make([]byte, keyLenBytes)
	if _, err := io.ReadFull(rnd, k.MasterSenderKey); err != nil {
		return KeyMaterial{}, err
	}

	return k, nil
}

func defaultRandReader() io.Reader {
	return rand.Reader
}
