// Package cryptox implements the cryptographic primitives used by RelayPACS:
// authenticated field encryption with a session-scoped key, and password
// hashing for the reference server's login endpoint.
//
// Field envelopes are base64(nonce || ciphertext) with a fresh random 96-bit
// nonce per call, so the same plaintext never encrypts to the same string.
package cryptox
