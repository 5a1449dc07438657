package cryptobuiltin

import (
	"encoding/binary"

	"github.com/opendds-go/cryptobuiltin/internal/debuglog"
	"github.com/opendds-go/cryptobuiltin/internal/session"
	"github.com/opendds-go/cryptobuiltin/internal/transform"
	"github.com/opendds-go/cryptobuiltin/internal/wire"
)

// EncodeSerializedPayload protects a serialized data payload for
// sendingDatawriter, selecting the payload key (index 1 when the writer
// holds two keys, index 0 when it holds one) if payload protection is
// enabled, and passing plaintext through unchanged otherwise.
func (p *Plugin) EncodeSerializedPayload(plaintext []byte, sendingDatawriter Handle) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	keys := p.keys[sendingDatawriter]
	opts := p.encryptOptions[sendingDatawriter]
	if len(keys) == 0 || !opts.payloadProtected {
		return plaintext, nil
	}

	idx := 0
	if len(keys) >= 2 {
		idx = 1
	}
	key := keys[idx]

	switch {
	case key.Encrypts():
		header, ciphertext, tag, err := p.encryptWithKey(sendingDatawriter, idx, key, plaintext)
		if err != nil {
			return nil, err
		}
		var buf []byte
		buf = wire.EncodeHeader(buf, header)
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(ciphertext)))
		buf = append(buf, ciphertext...)
		buf = wire.EncodeFooter(buf, wire.Footer{CommonMAC: tagArray(tag)})
		return buf, nil

	case key.Authenticates():
		header, tag, err := p.authTagWithKey(sendingDatawriter, idx, key, plaintext)
		if err != nil {
			return nil, err
		}
		var buf []byte
		buf = wire.EncodeHeader(buf, header)
		buf = wire.EncodeFooter(buf, wire.Footer{CommonMAC: tagArray(tag)})
		return buf, nil

	default:
		return nil, unknownTransformKindError(-3, key.TransformationKind)
	}
}

// EncodeDatawriterSubmessage protects submsg for encodeHandle, addressed to
// the receivers in receiverSpecificKeys (by handle). An empty receiver list
// is this implementation's extension for broadcast: the submessage is
// protected with the writer's own key with no receiver substitution. When
// the writer holds only the volatile placeholder and there is exactly one
// receiver, that receiver's own derived key is used in place of the
// placeholder.
func (p *Plugin) EncodeDatawriterSubmessage(submsg []byte, encodeHandle Handle, receivers []Handle) ([]byte, error) {
	return p.encodeSubmessage(submsg, encodeHandle, receivers)
}

// EncodeDatareaderSubmessage is symmetric to EncodeDatawriterSubmessage for
// a local datareader's keyed submessages (e.g. ACKNACK).
func (p *Plugin) EncodeDatareaderSubmessage(submsg []byte, encodeHandle Handle, receivers []Handle) ([]byte, error) {
	return p.encodeSubmessage(submsg, encodeHandle, receivers)
}

func (p *Plugin) encodeSubmessage(submsg []byte, encodeHandle Handle, receivers []Handle) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	opts := p.encryptOptions[encodeHandle]
	if !opts.submessageProtected {
		return submsg, nil
	}

	keyHandle := encodeHandle
	keys := p.keys[encodeHandle]
	if len(keys) == 1 && keys[0].IsVolatilePlaceholder() && len(receivers) == 1 {
		keyHandle = receivers[0]
		keys = p.keys[keyHandle]
	}
	if len(keys) == 0 {
		return nil, keyNotFoundError()
	}
	key := keys[0]

	switch {
	case key.Encrypts():
		header, ciphertext, tag, err := p.encryptWithKey(keyHandle, 0, key, submsg)
		if err != nil {
			return nil, err
		}
		return wire.EncodeEncryptedSubmessage(header, ciphertext, wire.Footer{CommonMAC: tagArray(tag)}), nil

	case key.Authenticates():
		header, tag, err := p.authTagWithKey(keyHandle, 0, key, submsg)
		if err != nil {
			return nil, err
		}
		return wire.EncodeAuthOnlySubmessage(header, submsg, wire.Footer{CommonMAC: tagArray(tag)})

	default:
		return nil, unknownTransformKindError(-3, key.TransformationKind)
	}
}

// encryptWithKey must be called with p.mu held. It advances keyHandle's
// session at keyIndex, encrypts plaintext, and returns the Crypto Header to
// wrap it with.
func (p *Plugin) encryptWithKey(keyHandle Handle, keyIndex int, key KeyMaterial, plaintext []byte) (wire.Header, []byte, []byte, error) {
	sess := p.sessionFor(keyHandle, keyIndex)
	iv, err := session.Advance(sess, p.rand, key.MasterSalt, key.MasterSenderKey, len(plaintext))
	if err != nil {
		return wire.Header{}, nil, nil, cipherFailureError(err)
	}

	header := wire.Header{
		TransformationKind:  key.TransformationKind,
		TransformationKeyID: key.SenderKeyID,
		SessionID:           sess.ID,
		IVSuffix:            sess.IVSuffix,
	}

	if p.fakeEncryption {
		p.logger.Debugf(debuglog.CategoryFakeEncrypted, "fake encryption for handle %d index %d", keyHandle, keyIndex)
		return header, plaintext, make([]byte, transform.TagSize), nil
	}

	ciphertext, tag, err := transform.Encrypt(sess.Key, iv, plaintext)
	if err != nil {
		return wire.Header{}, nil, nil, cipherFailureError(err)
	}
	return header, ciphertext, tag, nil
}

// authTagWithKey is symmetric to encryptWithKey for GMAC keys.
func (p *Plugin) authTagWithKey(keyHandle Handle, keyIndex int, key KeyMaterial, plaintext []byte) (wire.Header, []byte, error) {
	sess := p.sessionFor(keyHandle, keyIndex)
	iv, err := session.Advance(sess, p.rand, key.MasterSalt, key.MasterSenderKey, len(plaintext))
	if err != nil {
		return wire.Header{}, nil, cipherFailureError(err)
	}

	header := wire.Header{
		TransformationKind:  key.TransformationKind,
		TransformationKeyID: key.SenderKeyID,
		SessionID:           sess.ID,
		IVSuffix:            sess.IVSuffix,
	}

	if p.fakeEncryption {
		p.logger.Debugf(debuglog.CategoryFakeEncrypted, "fake authentication for handle %d index %d", keyHandle, keyIndex)
		return header, make([]byte, transform.TagSize), nil
	}

	tag, err := transform.AuthTag(sess.Key, iv, plaintext)
	if err != nil {
		return wire.Header{}, nil, cipherFailureError(err)
	}
	return header, tag, nil
}

// sessionFor must be called with p.mu held. It returns (creating if
// necessary) the session state for (handle, keyIndex).
func (p *Plugin) sessionFor(handle Handle, keyIndex int) *session.State {
	key := sessionKey{Handle: handle, KeyIndex: keyIndex}
	sess, ok := p.sessions[key]
	if !ok {
		sess = &session.State{}
		p.sessions[key] = sess
	}
	return sess
}

func tagArray(tag []byte) [16]byte {
	var out [16]byte
	copy(out[:], tag)
	return out
}

// EncodeRTPSMessage is an identity transform: no RTPS-level protection is
// supported by this implementation (see RegisterLocalParticipant), so a
// whole RTPS message is never itself encoded.
func (p *Plugin) EncodeRTPSMessage(message []byte, _ Handle, _ []Handle) ([]byte, error) {
	return message, nil
}
