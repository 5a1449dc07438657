package cryptobuiltin

import (
	"io"
	"sync"

	"github.com/opendds-go/cryptobuiltin/internal/debuglog"
	"github.com/opendds-go/cryptobuiltin/internal/session"
	"github.com/opendds-go/cryptobuiltin/internal/volatilekey"
)

// PluginEndpointAttributes is a caller-defined bitmask selecting whether a
// protected endpoint encrypts (vs. only authenticates) each scope it
// protects.
type PluginEndpointAttributes uint32

// Bits of PluginEndpointAttributes.
const (
	SubmessageEncrypted PluginEndpointAttributes = 1 << 0
	PayloadEncrypted    PluginEndpointAttributes = 1 << 1
)

// EndpointSecurityAttributes mirrors the security attributes supplied at
// datawriter/datareader registration.
type EndpointSecurityAttributes struct {
	IsSubmessageProtected bool
	IsPayloadProtected    bool
	PluginAttributes      PluginEndpointAttributes
}

// ParticipantSecurityAttributes mirrors the security attributes supplied at
// participant registration.
type ParticipantSecurityAttributes struct {
	IsRTPSProtected bool
}

// Property is a name/value pair from an endpoint's registration properties.
// This plugin looks only for "dds.sec.builtin_endpoint_name" to recognize a
// built-in volatile discovery endpoint.
type Property struct {
	Name  string
	Value string
}

// SharedSecret is the output of the (external) identity and permissions
// handshake, consumed only by volatile key exchange and by matched-remote
// registration as a presence check.
type SharedSecret struct {
	Challenge1   []byte
	Challenge2   []byte
	SharedSecret []byte
}

// EntityKind distinguishes a datawriter from a datareader in
// participantToEntity.
type EntityKind int

// Values of EntityKind.
const (
	DatawriterSubmessage EntityKind = iota
	DatareaderSubmessage
)

type entityInfo struct {
	Kind   EntityKind
	Handle Handle
}

type encryptOptions struct {
	submessageProtected bool
	payloadProtected    bool
}

type sessionKey struct {
	Handle   Handle
	KeyIndex int
}

// Plugin is the key registry and transform core: one instance owns its own
// maps and mutex, per spec.md §9's design note against a global singleton.
type Plugin struct {
	mu sync.Mutex

	handles             handleAllocator
	keys                map[Handle][]KeyMaterial
	participantToEntity map[Handle][]entityInfo
	encryptOptions      map[Handle]encryptOptions
	sessions            map[sessionKey]*session.State

	logger         debuglog.Logger
	rand           io.Reader
	fakeEncryption bool
}

// NewPlugin constructs an empty registry.
func NewPlugin(opts ...Option) *Plugin {
	p := &Plugin{
		keys:                make(map[Handle][]KeyMaterial),
		participantToEntity: make(map[Handle][]entityInfo),
		encryptOptions:      make(map[Handle]encryptOptions),
		sessions:            make(map[sessionKey]*session.State),
		logger:              debuglog.Nop{},
		rand:                defaultRandReader(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func isBuiltinVolatile(props []Property) bool {
	for _, p := range props {
		if p.Name == "dds.sec.builtin_endpoint_name" {
			return p.Value == "BuiltinParticipantVolatileMessageSecureWriter" ||
				p.Value == "BuiltinParticipantVolatileMessageSecureReader"
		}
	}
	return false
}

// RegisterLocalParticipant validates identity, permissions, and the
// participant's security attributes and issues a fresh handle. No key
// material is generated for local participants.
func (p *Plugin) RegisterLocalParticipant(identity, permissions Handle, _ []Property, attrs ParticipantSecurityAttributes) (Handle, error) {
	if identity.IsNil() {
		return 0, invalidHandleError("local participant identity")
	}
	if permissions.IsNil() {
		return 0, invalidHandleError("local permissions")
	}
	if attrs.IsRTPSProtected {
		return 0, rtpsProtectionUnsupportedError()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.handles.allocate(), nil
}

// RegisterMatchedRemoteParticipant validates its inputs and issues a fresh
// handle. No key material is stored until SetRemoteParticipantCryptoTokens
// delivers the peer's tokens.
func (p *Plugin) RegisterMatchedRemoteParticipant(localParticipant, remoteIdentity, remotePermissions Handle, sharedSecret *SharedSecret) (Handle, error) {
	if localParticipant.IsNil() {
		return 0, invalidHandleError("local participant crypto")
	}
	if remoteIdentity.IsNil() {
		return 0, invalidHandleError("remote participant identity")
	}
	if remotePermissions.IsNil() {
		return 0, invalidHandleError("remote participant permissions")
	}
	if sharedSecret == nil {
		return 0, invalidSharedSecretError()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.handles.allocate(), nil
}

// RegisterLocalDatawriter issues a handle and, per the endpoint's security
// attributes, generates a submessage key, a payload key, or both (in that
// order), or installs the volatile placeholder for a built-in volatile
// writer.
func (p *Plugin) RegisterLocalDatawriter(participant Handle, props []Property, attrs EndpointSecurityAttributes) (Handle, error) {
	if participant.IsNil() {
		return 0, invalidHandleError("participant crypto")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	h := p.handles.allocate()
	keys, err := p.makeEndpointKeys(h, props, attrs, true)
	if err != nil {
		return 0, err
	}

	p.keys[h] = keys
	p.participantToEntity[participant] = append(p.participantToEntity[participant], entityInfo{Kind: DatawriterSubmessage, Handle: h})
	p.encryptOptions[h] = encryptOptions{submessageProtected: attrs.IsSubmessageProtected, payloadProtected: attrs.IsPayloadProtected}
	p.logger.Debugf(debuglog.CategoryBookkeeping, "register_local_datawriter created %d key(s) for LDWCH %d", len(keys), h)
	return h, nil
}

// RegisterLocalDatareader is symmetric to RegisterLocalDatawriter, except a
// reader never generates a payload key.
func (p *Plugin) RegisterLocalDatareader(participant Handle, props []Property, attrs EndpointSecurityAttributes) (Handle, error) {
	if participant.IsNil() {
		return 0, invalidHandleError("participant crypto")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	h := p.handles.allocate()
	keys, err := p.makeEndpointKeys(h, props, attrs, false)
	if err != nil {
		return 0, err
	}

	p.keys[h] = keys
	p.participantToEntity[participant] = append(p.participantToEntity[participant], entityInfo{Kind: DatareaderSubmessage, Handle: h})
	p.encryptOptions[h] = encryptOptions{submessageProtected: attrs.IsSubmessageProtected, payloadProtected: attrs.IsPayloadProtected}
	p.logger.Debugf(debuglog.CategoryBookkeeping, "register_local_datareader created %d key(s) for LDRCH %d", len(keys), h)
	return h, nil
}

// makeEndpointKeys must be called with p.mu held.
func (p *Plugin) makeEndpointKeys(h Handle, props []Property, attrs EndpointSecurityAttributes, allowPayloadKey bool) ([]KeyMaterial, error) {
	if isBuiltinVolatile(props) {
		return []KeyMaterial{volatilePlaceholder()}, nil
	}

	var keys []KeyMaterial
	usedH := false
	if attrs.IsSubmessageProtected {
		key, err := makeKey(p.rand, h, attrs.PluginAttributes&SubmessageEncrypted != 0)
		if err != nil {
			return nil, cipherFailureError(err)
		}
		keys = append(keys, key)
		usedH = true
	}
	if allowPayloadKey && attrs.IsPayloadProtected {
		keyID := h
		if usedH {
			keyID = p.handles.allocate()
		}
		key, err := makeKey(p.rand, keyID, attrs.PluginAttributes&PayloadEncrypted != 0)
		if err != nil {
			return nil, cipherFailureError(err)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// RegisterMatchedRemoteDatareader validates its inputs and, when the local
// writer holds the volatile placeholder, derives a real key from the
// shared secret and stores it under the new reader's handle.
func (p *Plugin) RegisterMatchedRemoteDatareader(localDatawriter, remoteParticipant Handle, sharedSecret *SharedSecret, _ bool) (Handle, error) {
	if localDatawriter.IsNil() {
		return 0, invalidHandleError("local datawriter crypto")
	}
	if remoteParticipant.IsNil() {
		return 0, invalidHandleError("remote participant crypto")
	}
	if sharedSecret == nil {
		return 0, invalidSharedSecretError()
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	dwKeys, ok := p.keys[localDatawriter]
	if !ok {
		return 0, invalidHandleError("local datawriter crypto")
	}

	h := p.handles.allocate()
	if len(dwKeys) == 1 && dwKeys[0].IsVolatilePlaceholder() {
		key, err := deriveVolatileKey(sharedSecret)
		if err != nil {
			return 0, volatileKeyDerivationFailedError("reader")
		}
		p.keys[h] = []KeyMaterial{key}
		p.logger.Debugf(debuglog.CategoryBookkeeping, "register_matched_remote_datareader created volatile key for RDRCH %d", h)
	}

	p.participantToEntity[remoteParticipant] = append(p.participantToEntity[remoteParticipant], entityInfo{Kind: DatareaderSubmessage, Handle: h})
	p.encryptOptions[h] = p.encryptOptions[localDatawriter]
	return h, nil
}

// RegisterMatchedRemoteDatawriter is symmetric to
// RegisterMatchedRemoteDatareader.
func (p *Plugin) RegisterMatchedRemoteDatawriter(localDatareader, remoteParticipant Handle, sharedSecret *SharedSecret) (Handle, error) {
	if localDatareader.IsNil() {
		return 0, invalidHandleError("local datareader crypto")
	}
	if remoteParticipant.IsNil() {
		return 0, invalidHandleError("remote participant crypto")
	}
	if sharedSecret == nil {
		return 0, invalidSharedSecretError()
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	drKeys, ok := p.keys[localDatareader]
	if !ok {
		return 0, invalidHandleError("local datareader crypto")
	}

	h := p.handles.allocate()
	if len(drKeys) == 1 && drKeys[0].IsVolatilePlaceholder() {
		key, err := deriveVolatileKey(sharedSecret)
		if err != nil {
			return 0, volatileKeyDerivationFailedError("writer")
		}
		p.keys[h] = []KeyMaterial{key}
		p.logger.Debugf(debuglog.CategoryBookkeeping, "register_matched_remote_datawriter created volatile key for RDWCH %d", h)
	}

	p.participantToEntity[remoteParticipant] = append(p.participantToEntity[remoteParticipant], entityInfo{Kind: DatawriterSubmessage, Handle: h})
	p.encryptOptions[h] = p.encryptOptions[localDatareader]
	return h, nil
}

func deriveVolatileKey(sharedSecret *SharedSecret) (KeyMaterial, error) {
	derived, err := volatilekey.Derive(sharedSecret.Challenge1, sharedSecret.Challenge2, sharedSecret.SharedSecret)
	if err != nil {
		return KeyMaterial{}, err
	}
	if len(derived.MasterSalt) == 0 || len(derived.MasterSenderKey) == 0 {
		return KeyMaterial{}, errShortKeyMaterial
	}
	return KeyMaterial{
		TransformationKind: TransformationKind{0, 0, 0, TransformKindAES256GCM},
		MasterSalt:         derived.MasterSalt,
		MasterSenderKey:    derived.MasterSenderKey,
	}, nil
}

// UnregisterParticipant validates the handle but, matching the original
// implementation, does not clear any map entry for it: participants never
// own key material directly, so there is nothing participant-keyed to
// remove beyond validation.
func (p *Plugin) UnregisterParticipant(h Handle) error {
	if h.IsNil() {
		return invalidHandleError("crypto")
	}
	return nil
}

// UnregisterDatawriter clears every map entry keyed by h, including
// sessions.
func (p *Plugin) UnregisterDatawriter(h Handle) error {
	if h.IsNil() {
		return invalidHandleError("crypto")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clearEndpointData(h)
	return nil
}

// UnregisterDatareader clears every map entry keyed by h, including
// sessions.
func (p *Plugin) UnregisterDatareader(h Handle) error {
	if h.IsNil() {
		return invalidHandleError("crypto")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clearEndpointData(h)
	return nil
}

// clearEndpointData must be called with p.mu held.
func (p *Plugin) clearEndpointData(h Handle) {
	delete(p.keys, h)
	delete(p.encryptOptions, h)

	for participant, entities := range p.participantToEntity {
		kept := entities[:0]
		for _, e := range entities {
			if e.Handle != h {
				kept = append(kept, e)
			}
		}
		if len(kept) == 0 {
			delete(p.participantToEntity, participant)
		} else {
			p.participantToEntity[participant] = kept
		}
	}

	for key := range p.sessions {
		if key.Handle == h {
			delete(p.sessions, key)
		}
	}
}

// CreateLocalParticipantCryptoTokens returns the tokens for handle's key
// material, or an empty sequence when the participant holds none.
func (p *Plugin) CreateLocalParticipantCryptoTokens(handle Handle) ([]CryptoToken, error) {
	return p.createLocalCryptoTokens(handle, "local participant")
}

// SetRemoteParticipantCryptoTokens replaces the key material stored under
// remoteParticipant with the keys decoded from tokens.
func (p *Plugin) SetRemoteParticipantCryptoTokens(localParticipant, remoteParticipant Handle, tokens []CryptoToken) error {
	return p.setRemoteCryptoTokens(localParticipant, remoteParticipant, tokens, "local participant", "remote participant")
}

// CreateLocalDatawriterCryptoTokens returns the tokens for handle's key
// material, or an empty sequence when the writer holds none.
func (p *Plugin) CreateLocalDatawriterCryptoTokens(handle Handle) ([]CryptoToken, error) {
	return p.createLocalCryptoTokens(handle, "local writer")
}

// SetRemoteDatawriterCryptoTokens replaces the key material stored under
// remoteDatawriter with the keys decoded from tokens.
func (p *Plugin) SetRemoteDatawriterCryptoTokens(localDatareader, remoteDatawriter Handle, tokens []CryptoToken) error {
	return p.setRemoteCryptoTokens(localDatareader, remoteDatawriter, tokens, "local datareader", "remote datawriter")
}

// CreateLocalDatareaderCryptoTokens returns the tokens for handle's key
// material, or an empty sequence when the reader holds none.
func (p *Plugin) CreateLocalDatareaderCryptoTokens(handle Handle) ([]CryptoToken, error) {
	return p.createLocalCryptoTokens(handle, "local reader")
}

// SetRemoteDatareaderCryptoTokens replaces the key material stored under
// remoteDatareader with the keys decoded from tokens.
func (p *Plugin) SetRemoteDatareaderCryptoTokens(localDatawriter, remoteDatareader Handle, tokens []CryptoToken) error {
	return p.setRemoteCryptoTokens(localDatawriter, remoteDatareader, tokens, "local datawriter", "remote datareader")
}

func (p *Plugin) createLocalCryptoTokens(handle Handle, what string) ([]CryptoToken, error) {
	if handle.IsNil() {
		return nil, invalidHandleError(what)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	keys, ok := p.keys[handle]
	if !ok {
		return nil, nil
	}
	return keysToTokens(keys), nil
}

func (p *Plugin) setRemoteCryptoTokens(local, remote Handle, tokens []CryptoToken, localWhat, remoteWhat string) error {
	if local.IsNil() {
		return invalidHandleError(localWhat)
	}
	if remote.IsNil() {
		return invalidHandleError(remoteWhat)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys[remote] = tokensToKeys(tokens)
	return nil
}

// ReturnCryptoTokens is a no-op: this implementation holds no resources
// that need releasing once a token sequence has been consumed.
func (p *Plugin) ReturnCryptoTokens([]CryptoToken) error {
	return nil
}
