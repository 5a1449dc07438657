// Package wire implements the bit-exact big-endian CDR-aligned framing for
// the Crypto Header, Crypto Body, and Crypto Footer, and the SEC_PREFIX /
// SEC_BODY / SEC_POSTFIX submessage wrapper that carries them over RTPS.
//
// All crypto structures are serialized big-endian regardless of the
// byte-order flag carried in a wrapped submessage's own header; only that
// wrapped submessage's own fields are interpreted according to its flag.
package wire

import (
	"encoding/binary"
	"fmt"
)

// Submessage kind ids, from the RTPS security extensions.
const (
	SecPrefix  byte = 0x31
	SecBody    byte = 0x30
	SecPostfix byte = 0x32
)

const (
	// HeaderSize is the encoded size in bytes of a CryptoHeader.
	HeaderSize = 20
	// FooterSize is the encoded size in bytes of a CryptoFooter with a
	// zero receiver-specific MAC count.
	FooterSize = 20
	// SubmessageHeaderSize is the encoded size in bytes of an RTPS
	// submessage header (id, flags, octetsToNextHeader).
	SubmessageHeaderSize = 4
	// MACSize is the size in bytes of CryptoFooter.CommonMAC.
	MACSize = 16
)

// Header is the 20-byte Crypto Header: the transform identifier (kind + key
// id), session id, and IV suffix.
type Header struct {
	TransformationKind  [4]byte
	TransformationKeyID [4]byte
	SessionID           [4]byte
	IVSuffix            [8]byte
}

// Footer is the Crypto Footer: a 16-byte common MAC and an (always zero in
// this implementation) receiver-specific MAC count.
type Footer struct {
	CommonMAC [16]byte
}

// EncodeHeader appends the big-endian encoding of h to buf and returns the
// result.
func EncodeHeader(buf []byte, h Header) []byte {
	buf = append(buf, h.TransformationKind[:]...)
	buf = append(buf, h.TransformationKeyID[:]...)
	buf = append(buf, h.SessionID[:]...)
	buf = append(buf, h.IVSuffix[:]...)
	return buf
}

// DecodeHeader reads a Header from the front of buf. It always consumes
// HeaderSize bytes.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, fmt.Errorf("wire: short buffer for CryptoHeader: got %d, want %d", len(buf), HeaderSize)
	}
	var h Header
	copy(h.TransformationKind[:], buf[0:4])
	copy(h.TransformationKeyID[:], buf[4:8])
	copy(h.SessionID[:], buf[8:12])
	copy(h.IVSuffix[:], buf[12:20])
	return h, nil
}

// EncodeFooter appends the big-endian encoding of f, including the trailing
// zero receiver-specific MAC count, to buf and returns the result.
func EncodeFooter(buf []byte, f Footer) []byte {
	buf = append(buf, f.CommonMAC[:]...)
	buf = binary.BigEndian.AppendUint32(buf, 0)
	return buf
}

// DecodeFooter reads a Footer from the front of buf. A nonzero
// receiver-specific MAC count is rejected, per spec.md §9's open question
// (wire-compatible to read, but this implementation never produces or
// consumes per-receiver MACs).
func DecodeFooter(buf []byte) (Footer, error) {
	if len(buf) < FooterSize {
		return Footer{}, fmt.Errorf("wire: short buffer for CryptoFooter: got %d, want %d", len(buf), FooterSize)
	}
	var f Footer
	copy(f.CommonMAC[:], buf[0:16])
	if count := binary.BigEndian.Uint32(buf[16:20]); count != 0 {
		return Footer{}, fmt.Errorf("wire: nonzero receiver-specific MAC count %d is unsupported", count)
	}
	return f, nil
}

// SubmessageHeader is the 4-byte RTPS submessage header common to
// SEC_PREFIX, SEC_BODY, and SEC_POSTFIX.
type SubmessageHeader struct {
	SubmessageID byte
	Flags        byte
	// OctetsToNextHeader is the length, in bytes, of the submessage body
	// that follows this header (excluding the header itself).
	OctetsToNextHeader uint16
}

// LittleEndian reports whether h's byte-order flag (bit 0 of Flags)
// indicates the wrapped body is little-endian.
func (h SubmessageHeader) LittleEndian() bool {
	return h.Flags&1 != 0
}

// EncodeSubmessageHeader appends h's big-endian encoding to buf. The
// OctetsToNextHeader field is always written big-endian here: the crypto
// wrapper submessages (SEC_PREFIX/SEC_BODY/SEC_POSTFIX) are always encoded
// big-endian per spec.md §4.4, independent of any wrapped submessage's own
// byte-order flag.
func EncodeSubmessageHeader(buf []byte, h SubmessageHeader) []byte {
	buf = append(buf, h.SubmessageID, h.Flags)
	buf = binary.BigEndian.AppendUint16(buf, h.OctetsToNextHeader)
	return buf
}

// DecodeSubmessageHeader reads a SubmessageHeader from the front of buf,
// honoring the byte-order flag in buf[1] for the OctetsToNextHeader field.
func DecodeSubmessageHeader(buf []byte) (SubmessageHeader, error) {
	if len(buf) < SubmessageHeaderSize {
		return SubmessageHeader{}, fmt.Errorf("wire: short buffer for submessage header: got %d, want %d", len(buf), SubmessageHeaderSize)
	}
	h := SubmessageHeader{SubmessageID: buf[0], Flags: buf[1]}
	if h.LittleEndian() {
		h.OctetsToNextHeader = binary.LittleEndian.Uint16(buf[2:4])
	} else {
		h.OctetsToNextHeader = binary.BigEndian.Uint16(buf[2:4])
	}
	return h, nil
}

// Align4 returns n rounded up to the next multiple of 4.
func Align4(n int) int {
	if rem := n % 4; rem != 0 {
		return n + (4 - rem)
	}
	return n
}

// PatchSubmessageLength rewrites the zero-valued submessageLength field of
// an encoded submessage in place, setting it to actualLen (the byte length
// of the submessage body following its 4-byte header). This mirrors the
// original implementation's index arithmetic: the two length bytes sit at
// offsets 2 and 3, ordered according to the header's byte-order flag.
func PatchSubmessageLength(submsg []byte, actualLen uint16) error {
	if len(submsg) < SubmessageHeaderSize {
		return fmt.Errorf("wire: submessage too short to patch length: got %d bytes", len(submsg))
	}
	flags := submsg[1]
	littleEndian := flags&1 != 0
	lowOffset, highOffset := 2, 3
	if !littleEndian {
		lowOffset, highOffset = 3, 2
	}
	submsg[lowOffset] = byte(actualLen)
	submsg[highOffset] = byte(actualLen >> 8)
	return nil
}

// EncodeEncryptedSubmessage wraps ciphertext in SEC_PREFIX / SEC_BODY /
// SEC_POSTFIX submessages, used for submessage-encrypted protection.
// Encrypted serialized payloads are framed without these submessages.
func EncodeEncryptedSubmessage(header Header, ciphertext []byte, footer Footer) []byte {
	var buf []byte
	buf = EncodeSubmessageHeader(buf, SubmessageHeader{SubmessageID: SecPrefix, OctetsToNextHeader: HeaderSize})
	buf = EncodeHeader(buf, header)

	payloadLen := 4 + len(ciphertext)
	aligned := Align4(payloadLen)
	buf = EncodeSubmessageHeader(buf, SubmessageHeader{SubmessageID: SecBody, OctetsToNextHeader: uint16(aligned)})
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(ciphertext)))
	buf = append(buf, ciphertext...)
	buf = append(buf, make([]byte, aligned-payloadLen)...)

	buf = EncodeSubmessageHeader(buf, SubmessageHeader{SubmessageID: SecPostfix, OctetsToNextHeader: FooterSize})
	buf = EncodeFooter(buf, footer)
	return buf
}

// EncodeAuthOnlySubmessage wraps an original (unencrypted) submessage with
// SEC_PREFIX ahead of it and SEC_POSTFIX after it, used for
// submessage-authenticated-only protection. If original's own
// submessageLength field is zero (legal only for the last submessage of a
// message) it is patched to original's actual length before wrapping; the
// caller's slice is never modified.
func EncodeAuthOnlySubmessage(header Header, original []byte, footer Footer) ([]byte, error) {
	if len(original) < SubmessageHeaderSize {
		return nil, fmt.Errorf("wire: wrapped submessage too short: got %d bytes", len(original))
	}
	sh, err := DecodeSubmessageHeader(original)
	if err != nil {
		return nil, err
	}
	patched := original
	if sh.OctetsToNextHeader == 0 {
		patched = append([]byte{}, original...)
		if err := PatchSubmessageLength(patched, uint16(len(patched)-SubmessageHeaderSize)); err != nil {
			return nil, err
		}
	}

	var buf []byte
	buf = EncodeSubmessageHeader(buf, SubmessageHeader{SubmessageID: SecPrefix, OctetsToNextHeader: HeaderSize})
	buf = EncodeHeader(buf, header)

	buf = append(buf, patched...)
	pad := Align4(len(patched)) - len(patched)
	buf = append(buf, make([]byte, pad)...)

	buf = EncodeSubmessageHeader(buf, SubmessageHeader{SubmessageID: SecPostfix, OctetsToNextHeader: FooterSize})
	buf = EncodeFooter(buf, footer)
	return buf, nil
}

// ParsePrefix reads the SEC_PREFIX submessage header and CryptoHeader from
// the front of buf, returning the header and the unconsumed remainder.
func ParsePrefix(buf []byte) (h Header, rest []byte, err error) {
	sh, err := DecodeSubmessageHeader(buf)
	if err != nil {
		return Header{}, nil, err
	}
	if sh.SubmessageID != SecPrefix {
		return Header{}, nil, fmt.Errorf("wire: expected SEC_PREFIX (%#x), got %#x", SecPrefix, sh.SubmessageID)
	}
	if len(buf) < SubmessageHeaderSize+HeaderSize {
		return Header{}, nil, fmt.Errorf("wire: short buffer for SEC_PREFIX body")
	}
	h, err = DecodeHeader(buf[SubmessageHeaderSize:])
	if err != nil {
		return Header{}, nil, err
	}
	return h, buf[SubmessageHeaderSize+HeaderSize:], nil
}

// ParseBody reads the SEC_BODY submessage header, the ciphertext length,
// and the ciphertext itself from the front of buf, returning the ciphertext
// and the unconsumed remainder (past any alignment padding).
func ParseBody(buf []byte) (ciphertext []byte, rest []byte, err error) {
	sh, err := DecodeSubmessageHeader(buf)
	if err != nil {
		return nil, nil, err
	}
	if sh.SubmessageID != SecBody {
		return nil, nil, fmt.Errorf("wire: expected SEC_BODY (%#x), got %#x", SecBody, sh.SubmessageID)
	}
	consumed := Align4(SubmessageHeaderSize + int(sh.OctetsToNextHeader))
	if len(buf) < consumed {
		return nil, nil, fmt.Errorf("wire: short buffer for SEC_BODY")
	}
	payload := buf[SubmessageHeaderSize : SubmessageHeaderSize+int(sh.OctetsToNextHeader)]
	if len(payload) < 4 {
		return nil, nil, fmt.Errorf("wire: SEC_BODY payload too short for ciphertext length")
	}
	n := binary.BigEndian.Uint32(payload[0:4])
	if uint32(len(payload)-4) < n {
		return nil, nil, fmt.Errorf("wire: SEC_BODY ciphertext length %d exceeds payload", n)
	}
	ciphertext = payload[4 : 4+n]
	return ciphertext, buf[consumed:], nil
}

// ParsePostfix reads the SEC_POSTFIX submessage header and CryptoFooter
// from the front of buf, returning the footer and the unconsumed remainder.
func ParsePostfix(buf []byte) (f Footer, rest []byte, err error) {
	sh, err := DecodeSubmessageHeader(buf)
	if err != nil {
		return Footer{}, nil, err
	}
	if sh.SubmessageID != SecPostfix {
		return Footer{}, nil, fmt.Errorf("wire: expected SEC_POSTFIX (%#x), got %#x", SecPostfix, sh.SubmessageID)
	}
	consumed := SubmessageHeaderSize + int(sh.OctetsToNextHeader)
	if len(buf) < consumed {
		return Footer{}, nil, fmt.Errorf("wire: short buffer for SEC_POSTFIX")
	}
	f, err = DecodeFooter(buf[SubmessageHeaderSize:consumed])
	if err != nil {
		return Footer{}, nil, err
	}
	return f, buf[consumed:], nil
}

// SplitAuthOnlyBody locates the boundary between an auth-only wrapped
// submessage and whatever follows it (the SEC_POSTFIX submessage), using
// the wrapped submessage's own header to determine its length. submsg is
// the exact SubmessageHeaderSize+OctetsToNextHeader bytes of the wrapped
// submessage, excluding the alignment padding that follows it — this is
// the same span authTagWithKey fed as GMAC AAD on encode, and the original
// implementation's verify() call covers (CryptoBuiltInImpl.cpp's
// RTPS::SMHDR_SZ + octetsToNext). rest skips past that padding to the
// following submessage.
func SplitAuthOnlyBody(buf []byte) (submsg []byte, rest []byte, err error) {
	sh, err := DecodeSubmessageHeader(buf)
	if err != nil {
		return nil, nil, err
	}
	unpadded := SubmessageHeaderSize + int(sh.OctetsToNextHeader)
	total := Align4(unpadded)
	if len(buf) < total {
		return nil, nil, fmt.Errorf("wire: short buffer for wrapped submessage body")
	}
	return buf[:unpadded], buf[total:], nil
}
