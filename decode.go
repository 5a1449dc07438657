package cryptobuiltin

import (
	"encoding/binary"

	"github.com/opendds-go/cryptobuiltin/internal/debuglog"
	"github.com/opendds-go/cryptobuiltin/internal/session"
	"github.com/opendds-go/cryptobuiltin/internal/transform"
	"github.com/opendds-go/cryptobuiltin/internal/wire"
)

// PreprocessSecureSubmsg locates the registered entity, among those matched
// with sendingParticipant, whose key list contains a key matching the
// SEC_PREFIX header at the front of submsg. It does not consume or
// transform submsg; decode callers re-parse it after learning which
// handle/kind to decode with.
func (p *Plugin) PreprocessSecureSubmsg(submsg []byte, sendingParticipant Handle) (Handle, EntityKind, error) {
	header, _, err := wire.ParsePrefix(submsg)
	if err != nil {
		return 0, 0, decryptionFailedError(err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	transformID := transformIdentifier(header)
	for _, entity := range p.participantToEntity[sendingParticipant] {
		for _, k := range p.keys[entity.Handle] {
			if k.Matches(header.TransformationKind, header.TransformationKeyID) {
				p.logger.Debugf(debuglog.CategoryLookup, "preprocess matched handle %d kind %v", entity.Handle, entity.Kind)
				return entity.Handle, entity.Kind, nil
			}
		}
	}
	return 0, 0, keyNotRegisteredError(transformID)
}

func transformIdentifier(h wire.Header) [8]byte {
	var id [8]byte
	copy(id[0:4], h.TransformationKind[:])
	copy(id[4:8], h.TransformationKeyID[:])
	return id
}

// DecodeSerializedPayload reverses EncodeSerializedPayload. It passes
// encoded through unchanged when sendingDatawriter has no payload
// protection enabled.
func (p *Plugin) DecodeSerializedPayload(encoded []byte, sendingDatawriter Handle) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	opts := p.encryptOptions[sendingDatawriter]
	if !opts.payloadProtected {
		return encoded, nil
	}

	header, err := wire.DecodeHeader(encoded)
	if err != nil {
		return nil, decryptionFailedError(err)
	}
	rest := encoded[wire.HeaderSize:]

	keys := p.keys[sendingDatawriter]
	idx, key, ok := matchKey(keys, header)
	if !ok {
		return nil, keyNotFoundError()
	}

	switch {
	case key.Authenticates():
		return nil, authOnlyPayloadUnsupportedError()
	case !key.Encrypts():
		return nil, unknownTransformKindError(-3, key.TransformationKind)
	}

	if len(rest) < 4 {
		return nil, decryptionFailedError(errShortKeyMaterial)
	}
	n := binary.BigEndian.Uint32(rest[0:4])
	rest = rest[4:]
	if uint32(len(rest)) < n {
		return nil, decryptionFailedError(errShortKeyMaterial)
	}
	ciphertext := rest[:n]
	rest = rest[n:]

	footer, err := wire.DecodeFooter(rest)
	if err != nil {
		return nil, decryptionFailedError(err)
	}

	return p.decryptWithKey(sendingDatawriter, idx, key, header, ciphertext, footer.CommonMAC[:])
}

// DecodeDatawriterSubmessage reverses encodeSubmessage for a submessage
// authored by a remote datawriter.
func (p *Plugin) DecodeDatawriterSubmessage(submsg []byte, sendingDatawriter, receivingDatareader Handle) ([]byte, error) {
	return p.decodeSubmessage(submsg, sendingDatawriter)
}

// DecodeDatareaderSubmessage is symmetric for a submessage authored by a
// remote datareader.
func (p *Plugin) DecodeDatareaderSubmessage(submsg []byte, sendingDatareader, receivingDatawriter Handle) ([]byte, error) {
	return p.decodeSubmessage(submsg, sendingDatareader)
}

func (p *Plugin) decodeSubmessage(submsg []byte, sendingHandle Handle) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	header, rest, err := wire.ParsePrefix(submsg)
	if err != nil {
		return nil, decryptionFailedError(err)
	}

	keys := p.keys[sendingHandle]
	idx, key, ok := matchKey(keys, header)
	if !ok {
		return nil, keyNotFoundError()
	}

	switch {
	case key.Encrypts():
		ciphertext, afterBody, err := wire.ParseBody(rest)
		if err != nil {
			return nil, decryptionFailedError(err)
		}
		footer, _, err := wire.ParsePostfix(afterBody)
		if err != nil {
			return nil, decryptionFailedError(err)
		}
		return p.decryptWithKey(sendingHandle, idx, key, header, ciphertext, footer.CommonMAC[:])

	case key.Authenticates():
		wrapped, afterWrapped, err := wire.SplitAuthOnlyBody(rest)
		if err != nil {
			return nil, decryptionFailedError(err)
		}
		footer, _, err := wire.ParsePostfix(afterWrapped)
		if err != nil {
			return nil, decryptionFailedError(err)
		}
		return p.verifyWithKey(sendingHandle, idx, key, header, wrapped, footer.CommonMAC[:])

	default:
		return nil, unknownTransformKindError(-3, key.TransformationKind)
	}
}

// matchKey returns the index and value of the first key in keys whose
// transform identifier (kind and key id) equals header's; there is no
// fallback to a partial match.
func matchKey(keys []KeyMaterial, header wire.Header) (int, KeyMaterial, bool) {
	for i, k := range keys {
		if k.Matches(header.TransformationKind, header.TransformationKeyID) {
			return i, k, true
		}
	}
	return 0, KeyMaterial{}, false
}

// decryptWithKey must be called with p.mu held.
func (p *Plugin) decryptWithKey(handle Handle, keyIndex int, key KeyMaterial, header wire.Header, ciphertext, tag []byte) ([]byte, error) {
	sess := p.sessionFor(handle, keyIndex)
	sessKey, err := session.GetKeyForDecode(sess, header.SessionID, key.MasterSalt, key.MasterSenderKey)
	if err != nil {
		return nil, cipherFailureError(err)
	}

	if p.fakeEncryption {
		return ciphertext, nil
	}

	iv := append(append([]byte{}, header.SessionID[:]...), header.IVSuffix[:]...)
	plaintext, err := transform.Decrypt(sessKey, iv, ciphertext, tag)
	if err != nil {
		return nil, decryptionFailedError(err)
	}
	return plaintext, nil
}

// verifyWithKey is symmetric to decryptWithKey for GMAC keys.
func (p *Plugin) verifyWithKey(handle Handle, keyIndex int, key KeyMaterial, header wire.Header, plaintext, tag []byte) ([]byte, error) {
	sess := p.sessionFor(handle, keyIndex)
	sessKey, err := session.GetKeyForDecode(sess, header.SessionID, key.MasterSalt, key.MasterSenderKey)
	if err != nil {
		return nil, cipherFailureError(err)
	}

	if p.fakeEncryption {
		return plaintext, nil
	}

	iv := append(append([]byte{}, header.SessionID[:]...), header.IVSuffix[:]...)
	verified, err := transform.Verify(sessKey, iv, plaintext, tag)
	if err != nil {
		return nil, decryptionFailedError(err)
	}
	return verified, nil
}

// DecodeRTPSMessage is an identity transform, symmetric to
// EncodeRTPSMessage.
func (p *Plugin) DecodeRTPSMessage(message []byte, _ Handle) ([]byte, error) {
	return message, nil
}
