package gree

import (
	"bytes"
	"crypto/aes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// KeySize is the length of every Gree key in bytes.
const KeySize = 16

// genericKey is shared by the whole device family and is only used for the
// scan and bind phases.
const genericKey = "a3K8Bx%2r8Y7#xDh"

// ErrKeyLength is returned when key material is not KeySize bytes long.
var ErrKeyLength = errors.New("key must be 16 bytes")

// KeyKind tags a Key as the shared generic key or a per-device key.
type KeyKind int

const (
	keyNone KeyKind = iota
	KeyGeneric
	KeyBound
)

func (k KeyKind) String() string {
	switch k {
	case KeyGeneric:
		return "generic"
	case KeyBound:
		return "bound"
	default:
		return "none"
	}
}

// Key is an AES-128 key together with its provenance. The zero value is not
// usable.
type Key struct {
	kind KeyKind
	mac  string
	raw  [KeySize]byte
}

// GenericKey returns the family-wide key used before binding.
func GenericKey() Key {
	k := Key{kind: KeyGeneric}
	copy(k.raw[:], genericKey)
	return k
}

// NewBoundKey wraps the device-specific key issued to mac during binding.
func NewBoundKey(mac, key string) (Key, error) {
	if len(key) != KeySize {
		return Key{}, fmt.Errorf("%w, got %d", ErrKeyLength, len(key))
	}
	k := Key{kind: KeyBound, mac: mac}
	copy(k.raw[:], key)
	return k, nil
}

// Kind reports whether k is the generic key or a bound one.
func (k Key) Kind() KeyKind { return k.kind }

// MAC returns the device a bound key belongs to.
func (k Key) MAC() string { return k.mac }

// Secret returns the key material as the device transmitted it.
func (k Key) Secret() string { return string(k.raw[:]) }

// String never includes the key material.
func (k Key) String() string {
	if k.kind == KeyBound {
		return fmt.Sprintf("bound(%s)", k.mac)
	}
	return k.kind.String()
}

// Encrypt serializes v to compact JSON and seals it into a pack string.
func Encrypt(key Key, v any) (string, error) {
	plain, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal pack: %w", err)
	}
	return encryptBytes(key, plain)
}

// Decrypt opens a pack string and returns the JSON it carries. Every failure
// matches ErrDecode.
func Decrypt(key Key, pack string) (json.RawMessage, error) {
	if key.kind == keyNone {
		return nil, fmt.Errorf("%w: unset key", ErrDecode)
	}
	sealed, err := base64.StdEncoding.DecodeString(pack)
	if err != nil {
		return nil, fmt.Errorf("%w: base64: %v", ErrDecode, err)
	}
	if len(sealed) == 0 || len(sealed)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: length %d is not a multiple of %d", ErrDecode, len(sealed), aes.BlockSize)
	}
	block, err := aes.NewCipher(key.raw[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	// Blocks are processed independently with no IV (ECB). The devices
	// require it, so this must not be replaced by a chained mode.
	plain := make([]byte, len(sealed))
	for i := 0; i < len(sealed); i += aes.BlockSize {
		block.Decrypt(plain[i:i+aes.BlockSize], sealed[i:i+aes.BlockSize])
	}

	plain, err = pkcs7Unpad(plain)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if !json.Valid(plain) {
		return nil, fmt.Errorf("%w: pack is not valid JSON", ErrDecode)
	}
	return json.RawMessage(plain), nil
}

func encryptBytes(key Key, plain []byte) (string, error) {
	if key.kind == keyNone {
		return "", errors.New("encrypt: unset key")
	}
	block, err := aes.NewCipher(key.raw[:])
	if err != nil {
		return "", err
	}
	buf := pkcs7Pad(plain, aes.BlockSize)
	for i := 0; i < len(buf); i += aes.BlockSize {
		block.Encrypt(buf[i:i+aes.BlockSize], buf[i:i+aes.BlockSize])
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}

// pkcs7Pad always appends between 1 and size bytes.
func pkcs7Pad(data []byte, size int) []byte {
	n := size - len(data)%size
	out := make([]byte, len(data), len(data)+n)
	copy(out, data)
	return append(out, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.New("empty payload")
	}
	n := int(data[len(data)-1])
	if n == 0 || n > aes.BlockSize || n > len(data) {
		return nil, fmt.Errorf("invalid padding length %d", n)
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, errors.New("inconsistent padding bytes")
		}
	}
	return data[:len(data)-n], nil
}
