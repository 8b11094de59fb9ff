// Package crypto provides encryption for secrets persisted at rest,
// such as the cached login session.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
)

const (
	// File format magic bytes
	magicBytes = "MCSC" // MediaCrusher Sealed Container

	// Version of the encryption format
	formatVersion = 1

	// Argon2id parameters (OWASP recommended)
	argon2Time    = 3
	argon2Memory  = 64 * 1024 // 64 MB
	argon2Threads = 4
	argon2KeyLen  = 32 // AES-256

	saltSize  = 32
	nonceSize = 12 // GCM standard nonce size

	// Header: magic(4) + version(4) + salt(32) + nonce(12)
	headerSize = 4 + 4 + saltSize + nonceSize
)

var (
	ErrInvalidFormat  = errors.New("invalid format: not a sealed container")
	ErrInvalidVersion = errors.New("unsupported sealed container version")
	ErrDecryptFailed  = errors.New("decryption failed: wrong passphrase or corrupted data")
)

// deriveKey derives an AES-256 key from a passphrase using Argon2id.
func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey(
		[]byte(passphrase),
		salt,
		argon2Time,
		argon2Memory,
		argon2Threads,
		argon2KeyLen,
	)
}

// Seal encrypts plaintext with AES-256-GCM under a key derived from the
// passphrase. Output layout: magic + version + salt + nonce + ciphertext.
func Seal(plaintext []byte, passphrase string) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}

	key := deriveKey(passphrase, salt)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)

	output := make([]byte, headerSize+len(ciphertext))
	copy(output[0:4], magicBytes)
	binary.LittleEndian.PutUint32(output[4:8], formatVersion)
	copy(output[8:8+saltSize], salt)
	copy(output[8+saltSize:headerSize], nonce)
	copy(output[headerSize:], ciphertext)

	return output, nil
}

// Open decrypts data produced by Seal.
func Open(data []byte, passphrase string) ([]byte, error) {
	if len(data) < headerSize {
		return nil, ErrInvalidFormat
	}
	if string(data[0:4]) != magicBytes {
		return nil, ErrInvalidFormat
	}
	if binary.LittleEndian.Uint32(data[4:8]) != formatVersion {
		return nil, ErrInvalidVersion
	}

	salt := data[8 : 8+saltSize]
	nonce := data[8+saltSize : headerSize]
	ciphertext := data[headerSize:]

	key := deriveKey(passphrase, salt)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	return plaintext, nil
}
