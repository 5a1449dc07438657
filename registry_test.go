package cryptobuiltin

import (
	"bytes"
	"crypto/rand"
	"errors"
	"testing"
)

func newTestPlugin() *Plugin {
	return NewPlugin(WithRandReader(rand.Reader))
}

func TestRegisterLocalParticipant_ValidatesHandles(t *testing.T) {
	p := newTestPlugin()

	if _, err := p.RegisterLocalParticipant(0, 1, nil, ParticipantSecurityAttributes{}); !errors.Is(err, ErrInvalidHandle) {
		t.Fatalf("nil identity: err = %v, want ErrInvalidHandle", err)
	}
	if _, err := p.RegisterLocalParticipant(1, 0, nil, ParticipantSecurityAttributes{}); !errors.Is(err, ErrInvalidHandle) {
		t.Fatalf("nil permissions: err = %v, want ErrInvalidHandle", err)
	}
	if _, err := p.RegisterLocalParticipant(1, 1, nil, ParticipantSecurityAttributes{IsRTPSProtected: true}); !errors.Is(err, ErrRTPSProtectionUnsupported) {
		t.Fatalf("rtps protection: err = %v, want ErrRTPSProtectionUnsupported", err)
	}

	h, err := p.RegisterLocalParticipant(1, 1, nil, ParticipantSecurityAttributes{})
	if err != nil {
		t.Fatalf("RegisterLocalParticipant() error = %v", err)
	}
	if h.IsNil() {
		t.Fatal("expected a non-nil handle")
	}
}

func TestRegisterLocalDatawriter_CreatesSubmessageAndPayloadKeys(t *testing.T) {
	p := newTestPlugin()
	participant, err := p.RegisterLocalParticipant(1, 1, nil, ParticipantSecurityAttributes{})
	if err != nil {
		t.Fatal(err)
	}

	h, err := p.RegisterLocalDatawriter(participant, nil, EndpointSecurityAttributes{
		IsSubmessageProtected: true,
		IsPayloadProtected:    true,
		PluginAttributes:      SubmessageEncrypted | PayloadEncrypted,
	})
	if err != nil {
		t.Fatalf("RegisterLocalDatawriter() error = %v", err)
	}

	keys := p.keys[h]
	if len(keys) != 2 {
		t.Fatalf("len(keys) = %d, want 2", len(keys))
	}
	if !keys[0].Encrypts() {
		t.Error("submessage key should select an encrypting kind")
	}
	if !keys[1].Encrypts() {
		t.Error("payload key should select an encrypting kind")
	}
	if bytes.Equal(keys[0].MasterSenderKey, keys[1].MasterSenderKey) {
		t.Error("submessage and payload keys must not share master key material")
	}
}

func TestRegisterLocalDatawriter_SubmessageOnlyUsesSingleKeyAtIndexZero(t *testing.T) {
	p := newTestPlugin()
	participant, _ := p.RegisterLocalParticipant(1, 1, nil, ParticipantSecurityAttributes{})

	h, err := p.RegisterLocalDatawriter(participant, nil, EndpointSecurityAttributes{
		IsSubmessageProtected: true,
		PluginAttributes:      SubmessageEncrypted,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(p.keys[h]) != 1 {
		t.Fatalf("len(keys) = %d, want 1", len(p.keys[h]))
	}
}

func TestRegisterLocalDatawriter_VolatileEndpointGetsPlaceholder(t *testing.T) {
	p := newTestPlugin()
	participant, _ := p.RegisterLocalParticipant(1, 1, nil, ParticipantSecurityAttributes{})

	props := []Property{{Name: "dds.sec.builtin_endpoint_name", Value: "BuiltinParticipantVolatileMessageSecureWriter"}}
	h, err := p.RegisterLocalDatawriter(participant, props, EndpointSecurityAttributes{
		IsSubmessageProtected: true,
		IsPayloadProtected:    true,
	})
	if err != nil {
		t.Fatal(err)
	}
	keys := p.keys[h]
	if len(keys) != 1 || !keys[0].IsVolatilePlaceholder() {
		t.Fatalf("keys = %+v, want a single volatile placeholder", keys)
	}
}

func TestRegisterLocalDatareader_NeverCreatesPayloadKey(t *testing.T) {
	p := newTestPlugin()
	participant, _ := p.RegisterLocalParticipant(1, 1, nil, ParticipantSecurityAttributes{})

	h, err := p.RegisterLocalDatareader(participant, nil, EndpointSecurityAttributes{
		IsSubmessageProtected: true,
		IsPayloadProtected:    true,
		PluginAttributes:      SubmessageEncrypted,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(p.keys[h]) != 1 {
		t.Fatalf("len(keys) = %d, want 1 (no payload key for readers)", len(p.keys[h]))
	}
}

func TestRegisterMatchedRemoteDatareader_DerivesVolatileKey(t *testing.T) {
	p := newTestPlugin()
	participant, _ := p.RegisterLocalParticipant(1, 1, nil, ParticipantSecurityAttributes{})
	props := []Property{{Name: "dds.sec.builtin_endpoint_name", Value: "BuiltinParticipantVolatileMessageSecureWriter"}}
	dw, err := p.RegisterLocalDatawriter(participant, props, EndpointSecurityAttributes{IsSubmessageProtected: true})
	if err != nil {
		t.Fatal(err)
	}

	secret := &SharedSecret{Challenge1: []byte("c1"), Challenge2: []byte("c2"), SharedSecret: []byte("shared")}
	remoteParticipant := Handle(99)
	dr, err := p.RegisterMatchedRemoteDatareader(dw, remoteParticipant, secret, false)
	if err != nil {
		t.Fatalf("RegisterMatchedRemoteDatareader() error = %v", err)
	}

	keys := p.keys[dr]
	if len(keys) != 1 || keys[0].IsVolatilePlaceholder() {
		t.Fatalf("keys = %+v, want a single derived (non-placeholder) key", keys)
	}
	if p.encryptOptions[dr] != p.encryptOptions[dw] {
		t.Error("remote reader should inherit the local writer's encrypt options")
	}
}

func TestRegisterMatchedRemoteDatareader_RejectsNilSharedSecret(t *testing.T) {
	p := newTestPlugin()
	participant, _ := p.RegisterLocalParticipant(1, 1, nil, ParticipantSecurityAttributes{})
	dw, _ := p.RegisterLocalDatawriter(participant, nil, EndpointSecurityAttributes{IsSubmessageProtected: true})

	if _, err := p.RegisterMatchedRemoteDatareader(dw, Handle(2), nil, false); !errors.Is(err, ErrInvalidSharedSecret) {
		t.Fatalf("err = %v, want ErrInvalidSharedSecret", err)
	}
}

func TestUnregisterDatawriter_ClearsKeysOptionsAndSessions(t *testing.T) {
	p := newTestPlugin()
	participant, _ := p.RegisterLocalParticipant(1, 1, nil, ParticipantSecurityAttributes{})
	h, err := p.RegisterLocalDatawriter(participant, nil, EndpointSecurityAttributes{
		IsSubmessageProtected: true,
		PluginAttributes:      SubmessageEncrypted,
	})
	if err != nil {
		t.Fatal(err)
	}
	p.sessions[sessionKey{Handle: h, KeyIndex: 0}] = nil

	if err := p.UnregisterDatawriter(h); err != nil {
		t.Fatalf("UnregisterDatawriter() error = %v", err)
	}

	if _, ok := p.keys[h]; ok {
		t.Error("keys entry should be removed")
	}
	if _, ok := p.encryptOptions[h]; ok {
		t.Error("encryptOptions entry should be removed")
	}
	if _, ok := p.sessions[sessionKey{Handle: h, KeyIndex: 0}]; ok {
		t.Error("session entry should be removed")
	}
	for _, entities := range p.participantToEntity {
		for _, e := range entities {
			if e.Handle == h {
				t.Error("participantToEntity should no longer reference the unregistered handle")
			}
		}
	}
}

func TestUnregisterParticipant_DoesNotClearEntityData(t *testing.T) {
	p := newTestPlugin()
	participant, _ := p.RegisterLocalParticipant(1, 1, nil, ParticipantSecurityAttributes{})
	h, err := p.RegisterLocalDatawriter(participant, nil, EndpointSecurityAttributes{
		IsSubmessageProtected: true,
		PluginAttributes:      SubmessageEncrypted,
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := p.UnregisterParticipant(participant); err != nil {
		t.Fatalf("UnregisterParticipant() error = %v", err)
	}

	// Unlike UnregisterDatawriter/UnregisterDatareader, unregistering a
	// participant leaves its entities' key material and bookkeeping intact.
	if _, ok := p.keys[h]; !ok {
		t.Error("datawriter key material should survive UnregisterParticipant")
	}
	if len(p.participantToEntity[participant]) != 1 {
		t.Error("participantToEntity entry should survive UnregisterParticipant")
	}
}

func TestCryptoTokens_RoundTripThroughRegistry(t *testing.T) {
	local := newTestPlugin()
	remote := newTestPlugin()

	localParticipant, _ := local.RegisterLocalParticipant(1, 1, nil, ParticipantSecurityAttributes{})
	localDW, err := local.RegisterLocalDatawriter(localParticipant, nil, EndpointSecurityAttributes{
		IsSubmessageProtected: true,
		IsPayloadProtected:    true,
		PluginAttributes:      SubmessageEncrypted | PayloadEncrypted,
	})
	if err != nil {
		t.Fatal(err)
	}

	tokens, err := local.CreateLocalDatawriterCryptoTokens(localDW)
	if err != nil {
		t.Fatalf("CreateLocalDatawriterCryptoTokens() error = %v", err)
	}
	if len(tokens) != 2 {
		t.Fatalf("len(tokens) = %d, want 2", len(tokens))
	}

	remoteParticipant, _ := remote.RegisterLocalParticipant(1, 1, nil, ParticipantSecurityAttributes{})
	remoteDR, err := remote.RegisterLocalDatareader(remoteParticipant, nil, EndpointSecurityAttributes{IsSubmessageProtected: true})
	if err != nil {
		t.Fatal(err)
	}

	remoteDWCrypto := Handle(123)
	if err := remote.SetRemoteDatawriterCryptoTokens(remoteDR, remoteDWCrypto, tokens); err != nil {
		t.Fatalf("SetRemoteDatawriterCryptoTokens() error = %v", err)
	}

	got := remote.keys[remoteDWCrypto]
	want := local.keys[localDW]
	if len(got) != len(want) {
		t.Fatalf("len(got) = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if !bytes.Equal(got[i].MasterSenderKey, want[i].MasterSenderKey) {
			t.Errorf("key %d: master sender key mismatch after token round-trip", i)
		}
		if !bytes.Equal(got[i].MasterSalt, want[i].MasterSalt) {
			t.Errorf("key %d: master salt mismatch after token round-trip", i)
		}
	}
}

func TestCreateLocalCryptoTokens_EmptyForUnkeyedHandle(t *testing.T) {
	p := newTestPlugin()
	tokens, err := p.CreateLocalDatawriterCryptoTokens(Handle(1))
	if err != nil {
		t.Fatalf("CreateLocalDatawriterCryptoTokens() error = %v", err)
	}
	if len(tokens) != 0 {
		t.Fatalf("len(tokens) = %d, want 0", len(tokens))
	}
}
