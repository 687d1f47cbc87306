// Package codec turns a document tree into an opaque string and back.
//
// Two encoders exist: [Plain] frames the JSON form in base64 and offers no
// confidentiality; [Keyed] encrypts it with a key derived from a secret.
package codec

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/fernet/fernet-go"
	"github.com/maruel/treedb/internal/tree"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// MethodPlain selects [Plain].
	MethodPlain = "plain"
	// MethodKeyed selects [Keyed].
	MethodKeyed = "keyed"
)

// Key derivation parameters. Changing any of them makes existing files
// unreadable.
const (
	kdfIterations = 480000
	kdfKeyLen     = 32
)

var kdfSalt = []byte("ThisIsASalt")

var (
	// ErrCorruptData is returned when content cannot be parsed.
	ErrCorruptData = errors.New("corrupt data")
	// ErrDecryptionFailed is returned when keyed content fails authentication.
	ErrDecryptionFailed = errors.New("decryption failed: invalid key or data")
	// ErrConfiguration is returned for unsupported or incomplete settings.
	ErrConfiguration = errors.New("configuration error")
)

// Encoder is a reversible transform between a tree and a string.
type Encoder interface {
	// Name returns the method name.
	Name() string
	// Encode serializes root.
	Encode(root map[string]any) (string, error)
	// Decode parses the output of Encode.
	Decode(s string) (map[string]any, error)
}

// New returns the encoder for method. "base64" and "fernet" are accepted as
// aliases of [MethodPlain] and [MethodKeyed].
func New(method, key string) (Encoder, error) {
	switch NormalizeMethod(method) {
	case MethodPlain:
		return Plain{}, nil
	case MethodKeyed:
		return NewKeyed(key)
	default:
		return nil, fmt.Errorf("%w: unsupported encryption method %q", ErrConfiguration, method)
	}
}

// NormalizeMethod maps aliases to their canonical method name. An empty
// method means [MethodPlain].
func NormalizeMethod(method string) string {
	switch strings.ToLower(strings.TrimSpace(method)) {
	case "", MethodPlain, "base64":
		return MethodPlain
	case MethodKeyed, "fernet":
		return MethodKeyed
	default:
		return method
	}
}

// Plain encodes the JSON form of a tree with standard base64.
type Plain struct{}

// Name implements [Encoder].
func (Plain) Name() string { return MethodPlain }

// Encode implements [Encoder].
func (Plain) Encode(root map[string]any) (string, error) {
	data, err := marshal(root)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// Decode implements [Encoder].
func (Plain) Decode(s string) (map[string]any, error) {
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%w: bad base64: %w", ErrCorruptData, err)
	}
	return unmarshal(data)
}

// Keyed encrypts the JSON form of a tree into a Fernet token.
type Keyed struct {
	key *fernet.Key
}

// NewKeyed derives the encryption key from secret. Derivation is slow on
// purpose; build one Keyed per store.
func NewKeyed(secret string) (*Keyed, error) {
	if secret == "" {
		return nil, fmt.Errorf("%w: encryption key required for method %q", ErrConfiguration, MethodKeyed)
	}
	k, err := fernet.DecodeKey(DeriveKey(secret))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	return &Keyed{key: k}, nil
}

// DeriveKey returns the URL-safe base64 Fernet key derived from secret with
// PBKDF2-HMAC-SHA256.
func DeriveKey(secret string) string {
	raw := pbkdf2.Key([]byte(secret), kdfSalt, kdfIterations, kdfKeyLen, sha256.New)
	return base64.URLEncoding.EncodeToString(raw)
}

// Name implements [Encoder].
func (*Keyed) Name() string { return MethodKeyed }

// Encode implements [Encoder].
func (k *Keyed) Encode(root map[string]any) (string, error) {
	data, err := marshal(root)
	if err != nil {
		return "", err
	}
	tok, err := fernet.EncryptAndSign(data, k.key)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt tree: %w", err)
	}
	return string(tok), nil
}

// Decode implements [Encoder].
func (k *Keyed) Decode(s string) (map[string]any, error) {
	data, err := k.open(s)
	if err != nil {
		return nil, err
	}
	return unmarshal(data)
}

// open verifies a token and returns its plaintext. Tokens never expire.
func (k *Keyed) open(s string) ([]byte, error) {
	msg := fernet.VerifyAndDecrypt([]byte(strings.TrimSpace(s)), 0, []*fernet.Key{k.key})
	if msg == nil {
		return nil, ErrDecryptionFailed
	}
	return msg, nil
}

func marshal(root map[string]any) ([]byte, error) {
	if root == nil {
		root = map[string]any{}
	}
	data, err := json.Marshal(root)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tree: %w", err)
	}
	return data, nil
}

func unmarshal(data []byte) (map[string]any, error) {
	v, err := tree.DecodeJSON(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptData, err)
	}
	switch t := v.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return t, nil
	default:
		return nil, fmt.Errorf("%w: top level value must be an object", ErrCorruptData)
	}
}
