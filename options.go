package cryptobuiltin

import (
	"io"

	"github.com/opendds-go/cryptobuiltin/internal/debuglog"
)

// Option configures a Plugin at construction time. There is no other
// configuration surface: no environment variables, no config file, no CLI
// flags.
type Option func(*Plugin)

// WithLogger wires a Logger that receives every bookkeeping/showkeys/
// chlookup diagnostic this Plugin would otherwise discard.
func WithLogger(logger debuglog.Logger) Option {
	return func(p *Plugin) {
		p.logger = logger
	}
}

// WithRandReader overrides the source of randomness used for session ids,
// IV suffixes, and generated master keys. Passing a fixed byte stream makes
// generated keys and session ids deterministic.
func WithRandReader(r io.Reader) Option {
	return func(p *Plugin) {
		p.rand = r
	}
}

// WithFakeEncryption enables the test-only mode that skips the cipher and
// passes plaintext through unchanged, used to exercise framing logic
// without depending on specific ciphertext bytes.
func WithFakeEncryption(fake bool) Option {
	return func(p *Plugin) {
		p.fakeEncryption = fake
	}
}
