package vj

import "io"

// Encryptor seals credentials at rest (the Dropbox OAuth token file).
// Sealing uses the public key only, so refreshed tokens can be written back
// without asking for the passphrase again.
type Encryptor interface {
	// Setup performs one-time key generation. Called during `vj auth init`.
	Setup(passphrase string) error

	// Encrypt encrypts data read from r and writes ciphertext to w.
	Encrypt(r io.Reader, w io.Writer) error

	// Unlock decrypts the private key using the passphrase and returns a
	// DecryptionContext for the rest of the process.
	Unlock(passphrase string) (DecryptionContext, error)

	// IsConfigured returns true if both key files exist at configured paths.
	IsConfigured() bool
}

// DecryptionContext holds an unlocked private key in memory. Created by Encryptor.Unlock.
type DecryptionContext interface {
	Decrypt(r io.Reader, w io.Writer) error
}
