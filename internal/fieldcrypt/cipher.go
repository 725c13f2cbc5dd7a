// Package fieldcrypt encrypts individual document fields and derives blind
// indexes so encrypted values can still be matched exactly.
package fieldcrypt

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"io"
	"strconv"

	"github.com/pkg/errors"
	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24

var ErrMalformed = errors.New("malformed ciphertext")

// Cipher seals values with secretbox. Output is base64(nonce || box), so the
// same value encrypts differently each time.
type Cipher struct {
	key      [32]byte
	indexKey []byte
}

// New builds a cipher from a 32 byte key. The blind index key is derived from
// it so a single secret needs to be configured.
func New(key []byte) (*Cipher, error) {
	if len(key) != 32 {
		return nil, errors.Errorf("field key must be 32 bytes, got %d", len(key))
	}
	c := &Cipher{}
	copy(c.key[:], key)

	mac := hmac.New(sha256.New, key)
	mac.Write([]byte("blind-index"))
	c.indexKey = mac.Sum(nil)
	return c, nil
}

// NewFromHex is New for a hex encoded key.
func NewFromHex(hexKey string) (*Cipher, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, errors.Wrap(err, "decode field key")
	}
	return New(key)
}

func (c *Cipher) seal(plain []byte) (string, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", errors.Wrap(err, "read nonce")
	}
	out := secretbox.Seal(nonce[:], plain, &nonce, &c.key)
	return base64.StdEncoding.EncodeToString(out), nil
}

func (c *Cipher) open(encoded string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(raw) < nonceSize+secretbox.Overhead {
		return nil, ErrMalformed
	}
	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	plain, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &c.key)
	if !ok {
		return nil, ErrMalformed
	}
	return plain, nil
}

func (c *Cipher) EncryptString(value string) (string, error) {
	return c.seal([]byte(value))
}

func (c *Cipher) DecryptString(encoded string) (string, error) {
	plain, err := c.open(encoded)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

// EncryptFloat stores the shortest exact decimal form of value.
func (c *Cipher) EncryptFloat(value float64) (string, error) {
	return c.seal([]byte(FormatFloat(value)))
}

func (c *Cipher) DecryptFloat(encoded string) (float64, error) {
	plain, err := c.open(encoded)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseFloat(string(plain), 64)
	if err != nil {
		return 0, errors.Wrap(ErrMalformed, "not a number")
	}
	return value, nil
}

// BlindIndex returns a keyed hash of value for equality lookups.
func (c *Cipher) BlindIndex(value string) string {
	mac := hmac.New(sha256.New, c.indexKey)
	mac.Write([]byte(value))
	return hex.EncodeToString(mac.Sum(nil))
}

// FormatFloat is the canonical text form used for both encryption and blind
// indexes of numbers, so 150 and 150.0 index identically.
func FormatFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}
