package backup

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strings"

	appErrors "suite-backup/internal/errors"

	"golang.org/x/crypto/pbkdf2"
)

// Encrypted payload layout:
//
//	magic(4) salt(16) noncePrefix(8) { length(4) ciphertext }...
//
// Every chunk is sealed with AES-256-GCM under nonce noncePrefix||counter. The
// additional data marks the last chunk so a truncated payload is rejected.
const (
	EncryptedExtension = ".enc"

	encryptionMagic  = "SBE1"
	saltSize         = 16
	noncePrefixSize  = 8
	chunkSize        = 1 << 20
	pbkdf2Iterations = 100000
	keySize          = 32
)

var (
	aadChunk = []byte{0}
	aadFinal = []byte{1}
)

// Encryptor seals offsite copies with a key derived from a passphrase
type Encryptor struct {
	passphrase []byte
}

// NewEncryptor creates an encryptor for passphrase
func NewEncryptor(passphrase []byte) (*Encryptor, error) {
	if len(bytes.TrimSpace(passphrase)) == 0 {
		return nil, appErrors.NewConfigurationError("encryption key is empty", nil)
	}
	return &Encryptor{passphrase: append([]byte(nil), passphrase...)}, nil
}

// LoadEncryptionKey reads the passphrase from an environment variable or a key file
func LoadEncryptionKey(source, envVar, path string) ([]byte, error) {
	switch source {
	case "env", "":
		value := os.Getenv(envVar)
		if value == "" {
			return nil, appErrors.NewConfigurationError(fmt.Sprintf("encryption key environment variable %s is not set", envVar), nil)
		}
		return []byte(value), nil
	case "file":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, appErrors.NewConfigurationError(fmt.Sprintf("cannot read encryption key file %s", path), err)
		}
		return []byte(strings.TrimRight(string(data), "\r\n")), nil
	default:
		return nil, appErrors.NewConfigurationError(fmt.Sprintf("unknown encryption key source %q", source), nil)
	}
}

func (e *Encryptor) aead(salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key(e.passphrase, salt, pbkdf2Iterations, keySize, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func chunkNonce(prefix []byte, counter uint32) []byte {
	nonce := make([]byte, noncePrefixSize+4)
	copy(nonce, prefix)
	binary.BigEndian.PutUint32(nonce[noncePrefixSize:], counter)
	return nonce
}

// Encrypt reads src to the end and writes the sealed payload to dst
func (e *Encryptor) Encrypt(dst io.Writer, src io.Reader) (int64, error) {
	header := make([]byte, len(encryptionMagic)+saltSize+noncePrefixSize)
	copy(header, encryptionMagic)
	salt := header[len(encryptionMagic) : len(encryptionMagic)+saltSize]
	prefix := header[len(encryptionMagic)+saltSize:]
	if _, err := io.ReadFull(rand.Reader, header[len(encryptionMagic):]); err != nil {
		return 0, appErrors.NewIOError("cannot generate encryption salt", err)
	}

	aead, err := e.aead(salt)
	if err != nil {
		return 0, appErrors.NewAppError(appErrors.ErrorTypeUnknown, "cannot initialize cipher", err)
	}

	written, err := dst.Write(header)
	total := int64(written)
	if err != nil {
		return total, appErrors.NewIOError("failed to write encrypted payload", err)
	}

	// one chunk of lookahead tells whether the current chunk is the last
	current := make([]byte, chunkSize)
	next := make([]byte, chunkSize)
	n, err := io.ReadFull(src, current)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return total, appErrors.NewIOError("failed to read plaintext", err)
	}

	var counter uint32
	for {
		final := n < chunkSize
		var m int
		if !final {
			m, err = io.ReadFull(src, next)
			if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
				return total, appErrors.NewIOError("failed to read plaintext", err)
			}
			final = m == 0
		}

		aad := aadChunk
		if final {
			aad = aadFinal
		}
		sealed := aead.Seal(nil, chunkNonce(prefix, counter), current[:n], aad)

		var length [4]byte
		binary.BigEndian.PutUint32(length[:], uint32(len(sealed)))
		for _, part := range [][]byte{length[:], sealed} {
			w, err := dst.Write(part)
			total += int64(w)
			if err != nil {
				return total, appErrors.NewIOError("failed to write encrypted payload", err)
			}
		}

		if final {
			return total, nil
		}
		counter++
		current, next = next, current
		n = m
	}
}

// Decrypt verifies and opens a payload produced by Encrypt
func (e *Encryptor) Decrypt(dst io.Writer, src io.Reader) (int64, error) {
	header := make([]byte, len(encryptionMagic)+saltSize+noncePrefixSize)
	if _, err := io.ReadFull(src, header); err != nil {
		return 0, appErrors.NewValidationError("encrypted payload is truncated", err)
	}
	if string(header[:len(encryptionMagic)]) != encryptionMagic {
		return 0, appErrors.NewValidationError("payload is not an encrypted backup", nil)
	}
	salt := header[len(encryptionMagic) : len(encryptionMagic)+saltSize]
	prefix := header[len(encryptionMagic)+saltSize:]

	aead, err := e.aead(salt)
	if err != nil {
		return 0, appErrors.NewAppError(appErrors.ErrorTypeUnknown, "cannot initialize cipher", err)
	}

	var total int64
	maxSealed := chunkSize + aead.Overhead()
	for counter := uint32(0); ; counter++ {
		var length [4]byte
		if _, err := io.ReadFull(src, length[:]); err != nil {
			return total, appErrors.NewValidationError("encrypted payload is truncated", err)
		}
		size := int(binary.BigEndian.Uint32(length[:]))
		if size < aead.Overhead() || size > maxSealed {
			return total, appErrors.NewValidationError("encrypted payload is corrupt", nil)
		}
		sealed := make([]byte, size)
		if _, err := io.ReadFull(src, sealed); err != nil {
			return total, appErrors.NewValidationError("encrypted payload is truncated", err)
		}

		nonce := chunkNonce(prefix, counter)
		final := true
		plain, err := aead.Open(nil, nonce, sealed, aadFinal)
		if err != nil {
			final = false
			plain, err = aead.Open(nil, nonce, sealed, aadChunk)
		}
		if err != nil {
			return total, appErrors.NewValidationError("cannot decrypt backup: wrong key or corrupt payload", err)
		}

		w, err := dst.Write(plain)
		total += int64(w)
		if err != nil {
			return total, appErrors.NewIOError("failed to write decrypted archive", err)
		}
		if final {
			return total, nil
		}
	}
}
