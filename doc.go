// Package cryptobuiltin implements the cryptographic transform core of a
// built-in DDS-Security plugin: AES-256-GCM/GMAC protection of RTPS
// submessages and serialized payloads, a per-entity key registry, and
// per-session key derivation.
//
// A Plugin owns the process-wide key registry. Callers register local and
// matched-remote participants, datawriters, and datareaders; the registry
// issues handles and, for protected endpoints, generates or derives key
// material. Encode/Decode pairs on Plugin turn plaintext submessages and
// serialized payloads into the wire framing defined by the DDS-Security
// specification, and back.
//
//	plugin := cryptobuiltin.NewPlugin()
//	h, err := plugin.RegisterLocalParticipant(identity, permissions, nil, attrs)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// No operation in this package performs network I/O, reads configuration
// files, or parses command-line flags: construction options (NewPlugin) are
// the entire configuration surface.
package cryptobuiltin
