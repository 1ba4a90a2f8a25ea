// Package encryption protects sensitive factor values at rest.
//
// Reversible methods seal values with AES-256-GCM or ChaCha20-Poly1305,
// deriving the key from a passphrase with SHA-256 and tagging ciphertext
// with an algorithm prefix. Mask methods replace characters irreversibly.
//
//	fc, err := encryption.NewFactorCrypto(cfg.Encryption)
//	stored, err := fc.Encrypt(topic, row)
//	row, err = fc.Decrypt(topic, stored)
package encryption
