package cryptobuiltin

import (
	"errors"
	"fmt"
)

// Sentinel errors for errors.Is() checks against any *SecurityException
// raised for the matching condition.
var (
	// ErrInvalidHandle is returned when a handle argument is nil (zero), or
	// when a matched-remote registration names a local endpoint that has no
	// entry in this Plugin's key registry.
	ErrInvalidHandle = errors.New("invalid handle")

	// ErrRTPSProtectionUnsupported is returned when a caller registers a
	// participant with RTPS-level protection requested.
	ErrRTPSProtectionUnsupported = errors.New("RTPS protection is unsupported")

	// ErrInvalidSharedSecret is returned when a matched-remote registration
	// receives a nil shared secret.
	ErrInvalidSharedSecret = errors.New("invalid shared secret")

	// ErrVolatileKeyDerivationFailed is returned when deriving a real key
	// for a volatile endpoint from a shared secret fails.
	ErrVolatileKeyDerivationFailed = errors.New("couldn't create key for volatile remote endpoint")

	// ErrKeyNotRegistered is returned by PreprocessSecureSubmsg when no
	// registered entity's key list matches the header's transform identifier.
	ErrKeyNotRegistered = errors.New("crypto key not registered")

	// ErrKeyNotFound is returned during submessage or payload decode when
	// the sender's key list has no key matching the header.
	ErrKeyNotFound = errors.New("crypto key not found")

	// ErrUnknownTransformKind is returned when a header names a
	// transformation kind this implementation does not recognize.
	ErrUnknownTransformKind = errors.New("unknown transformation kind")

	// ErrAuthOnlyPayloadUnsupported is returned when a payload-protected
	// key selects an authentication-only (GMAC) algorithm; payload
	// protection supports encryption only.
	ErrAuthOnlyPayloadUnsupported = errors.New("authentication-only payload transform is unsupported")

	// ErrDecryptionFailed is returned when a cipher operation (GCM open,
	// GMAC verify) fails, including authentication-tag mismatch.
	ErrDecryptionFailed = errors.New("decryption failed")

	// ErrCipherFailure is returned when the underlying cipher fails to
	// initialize or to produce output, independent of tag verification.
	ErrCipherFailure = errors.New("cipher operation failed")
)

// CryptoBuiltInError is implemented by every error type this package
// returns for a registry or transform failure.
type CryptoBuiltInError interface {
	error
	cryptoBuiltInError() // marker method
}

// SecurityException is the structured error record every registry and
// transform operation returns on failure: a code/minor pair mirroring the
// DDS-Security SecurityException shape, a human-readable message, and
// (when the failure occurred during sender-key lookup) the unmatched
// transform identifier for diagnostics.
type SecurityException struct {
	Code    int32
	Minor   int32
	Message string

	// TransformIdentifier carries the header's transform_identifier
	// (transformation_kind[4] || transformation_key_id[4]) when a
	// PreprocessSecureSubmsg lookup fails to match any registered key.
	TransformIdentifier [8]byte

	sentinel error
}

func (e *SecurityException) Error() string {
	return fmt.Sprintf("code %d minor %d: %s", e.Code, e.Minor, e.Message)
}

func (*SecurityException) cryptoBuiltInError() {}

// Is implements errors.Is against the sentinel error this exception was
// constructed for.
func (e *SecurityException) Is(target error) bool {
	return e.sentinel != nil && e.sentinel == target
}

// Unwrap exposes the underlying sentinel, so errors.Is also matches via the
// standard unwrap chain.
func (e *SecurityException) Unwrap() error {
	return e.sentinel
}

func newSecurityException(sentinel error, code, minor int32, format string, args ...any) *SecurityException {
	return &SecurityException{
		Code:     code,
		Minor:    minor,
		Message:  fmt.Sprintf(format, args...),
		sentinel: sentinel,
	}
}

func invalidHandleError(what string) *SecurityException {
	return newSecurityException(ErrInvalidHandle, -1, 0, "invalid %s handle", what)
}

func rtpsProtectionUnsupportedError() *SecurityException {
	return newSecurityException(ErrRTPSProtectionUnsupported, -1, 0, "RTPS protection is unsupported")
}

func invalidSharedSecretError() *SecurityException {
	return newSecurityException(ErrInvalidSharedSecret, -1, 0, "invalid shared secret")
}

func volatileKeyDerivationFailedError(entity string) *SecurityException {
	return newSecurityException(ErrVolatileKeyDerivationFailed, -1, 0, "couldn't create key for volatile remote %s", entity)
}

func cipherFailureError(err error) *SecurityException {
	return newSecurityException(ErrCipherFailure, -1, 0, "cipher operation failed: %v", err)
}

func keyNotRegisteredError(transformIdentifier [8]byte) *SecurityException {
	e := newSecurityException(ErrKeyNotRegistered, -2, 1, "crypto key not registered")
	e.TransformIdentifier = transformIdentifier
	return e
}

func keyNotFoundError() *SecurityException {
	return newSecurityException(ErrKeyNotFound, -2, 1, "crypto key not found")
}

func unknownTransformKindError(code int32, kind [4]byte) *SecurityException {
	return newSecurityException(ErrUnknownTransformKind, code, 2, "unknown transformation kind %v", kind)
}

func authOnlyPayloadUnsupportedError() *SecurityException {
	return newSecurityException(ErrAuthOnlyPayloadUnsupported, -3, 3, "authentication-only payload transform is unsupported")
}

func decryptionFailedError(err error) *SecurityException {
	return newSecurityException(ErrDecryptionFailed, -1, 0, "decryption failed: %v", err)
}
