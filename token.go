package cryptobuiltin

import (
	"encoding/binary"
	"errors"
)

var errShortKeyMaterial = errors.New("cryptobuiltin: short buffer decoding key material")

// CryptoTokenClassID is the fixed class id for every token this plugin
// produces.
const CryptoTokenClassID = "DDS:Crypto:AES_GCM_GMAC"

// KeyMatPropertyName is the name of the single binary property a
// CryptoToken carries.
const KeyMatPropertyName = "dds.cryp.keymat"

// BinaryProperty is a named, opaque byte value attached to a CryptoToken.
type BinaryProperty struct {
	Name      string
	Value     []byte
	Propagate bool
}

// CryptoToken is the unit of exchange for key material between two
// participants, carried by an external transport this package does not
// implement.
type CryptoToken struct {
	ClassID          string
	BinaryProperties []BinaryProperty
}

// keysToTokens converts an ordered key-material list into one CryptoToken
// per key.
func keysToTokens(keys []KeyMaterial) []CryptoToken {
	tokens := make([]CryptoToken, 0, len(keys))
	for _, k := range keys {
		tokens = append(tokens, CryptoToken{
			ClassID: CryptoTokenClassID,
			BinaryProperties: []BinaryProperty{{
				Name:      KeyMatPropertyName,
				Value:     encodeKeyMaterial(k),
				Propagate: true,
			}},
		})
	}
	return tokens
}

// tokensToKeys is the inverse of keysToTokens. Tokens with a different class
// id, or missing the keymat property, are silently dropped. A parse failure
// for any one property drops that token without affecting the others.
func tokensToKeys(tokens []CryptoToken) []KeyMaterial {
	keys := make([]KeyMaterial, 0, len(tokens))
	for _, t := range tokens {
		if t.ClassID != CryptoTokenClassID {
			continue
		}
		for _, p := range t.BinaryProperties {
			if p.Name != KeyMatPropertyName {
				continue
			}
			if k, err := decodeKeyMaterial(p.Value); err == nil {
				keys = append(keys, k)
			}
			break
		}
	}
	return keys
}

// encodeKeyMaterial serializes k as big-endian CDR: three octet-sequence
// length-prefixed fields interleaved with the fixed-size id fields, in
// declaration order.
func encodeKeyMaterial(k KeyMaterial) []byte {
	var buf []byte
	buf = append(buf, k.TransformationKind[:]...)
	buf = appendOctetSeq(buf, k.MasterSalt)
	buf = append(buf, k.SenderKeyID[:]...)
	buf = appendOctetSeq(buf, k.MasterSenderKey)
	buf = append(buf, k.ReceiverSpecificKeyID[:]...)
	buf = appendOctetSeq(buf, k.MasterReceiverSpecificKey)
	return buf
}

func appendOctetSeq(buf, seq []byte) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(seq)))
	return append(buf, seq...)
}

func decodeKeyMaterial(buf []byte) (KeyMaterial, error) {
	var k KeyMaterial
	var ok bool

	buf, ok = takeFixed(buf, k.TransformationKind[:])
	if !ok {
		return KeyMaterial{}, errShortKeyMaterial
	}
	k.MasterSalt, buf, ok = takeOctetSeq(buf)
	if !ok {
		return KeyMaterial{}, errShortKeyMaterial
	}
	buf, ok = takeFixed(buf, k.SenderKeyID[:])
	if !ok {
		return KeyMaterial{}, errShortKeyMaterial
	}
	k.MasterSenderKey, buf, ok = takeOctetSeq(buf)
	if !ok {
		return KeyMaterial{}, errShortKeyMaterial
	}
	buf, ok = takeFixed(buf, k.ReceiverSpecificKeyID[:])
	if !ok {
		return KeyMaterial{}, errShortKeyMaterial
	}
	k.MasterReceiverSpecificKey, _, ok = takeOctetSeq(buf)
	if !ok {
		return KeyMaterial{}, errShortKeyMaterial
	}
	return k, nil
}

func takeFixed(buf, dst []byte) ([]byte, bool) {
	if len(buf) < len(dst) {
		return nil, false
	}
	copy(dst, buf[:len(dst)])
	return buf[len(dst):], true
}

func takeOctetSeq(buf []byte) (seq, rest []byte, ok bool) {
	if len(buf) < 4 {
		return nil, nil, false
	}
	n := binary.BigEndian.Uint32(buf[0:4])
	buf = buf[4:]
	if uint32(len(buf)) < n {
		return nil, nil, false
	}
	seq = make([]byte, n)
	copy(seq, buf[:n])
	return seq, buf[n:], true
}
