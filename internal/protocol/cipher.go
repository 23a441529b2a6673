package protocol

import "crypto/rand"

// XORKeystream masks buf in place with a repeating session key. The
// operation is its own inverse.
//
// This is NOT encryption in any meaningful sense — there is no
// authentication and the keystream repeats every len(key) bytes. It exists
// for wire compatibility with the legacy protocol; treat it as obfuscation.
func XORKeystream(buf, key []byte) {
	if len(key) == 0 {
		return
	}
	for i := range buf {
		buf[i] ^= key[i%len(key)]
	}
}

// NewSessionKey generates a fresh random session key.
func NewSessionKey() []byte {
	key := make([]byte, KeySize)
	rand.Read(key)
	return key
}
