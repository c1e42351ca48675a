package database

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// hashParams are the argon2id cost settings baked into new hashes. Stored
// hashes carry their own settings, so these can be raised later without
// invalidating existing admin logins.
type hashParams struct {
	memory  uint32 // KiB
	passes  uint32
	lanes   uint8
	saltLen int
	keyLen  uint32
}

var defaultHashParams = hashParams{
	memory:  64 * 1024,
	passes:  3,
	lanes:   4,
	saltLen: 16,
	keyLen:  32,
}

// errMalformedHash covers every shape problem in a stored hash string. A
// failed login against a corrupt row should read as a server error, not as
// "wrong password".
var errMalformedHash = errors.New("malformed password hash")

// HashPassword derives an argon2id hash for an admin password and encodes
// it as $argon2id$v=19$m=...,t=...,p=...$<salt>$<key>, both parts raw
// base64.
func HashPassword(password string) (string, error) {
	p := defaultHashParams

	salt := make([]byte, p.saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("reading salt entropy: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, p.passes, p.memory, p.lanes, p.keyLen)

	var b strings.Builder
	fmt.Fprintf(&b, "$argon2id$v=%d$m=%d,t=%d,p=%d$", argon2.Version, p.memory, p.passes, p.lanes)
	b.WriteString(base64.RawStdEncoding.EncodeToString(salt))
	b.WriteByte('$')
	b.WriteString(base64.RawStdEncoding.EncodeToString(key))
	return b.String(), nil
}

// CheckPassword reports whether password matches the stored encoded hash,
// re-deriving with the cost settings recorded in the hash itself. The key
// comparison is constant time.
func CheckPassword(password, encoded string) (bool, error) {
	p, salt, key, err := splitEncoded(encoded)
	if err != nil {
		return false, err
	}

	derived := argon2.IDKey([]byte(password), salt, p.passes, p.memory, p.lanes, uint32(len(key)))
	return subtle.ConstantTimeCompare(derived, key) == 1, nil
}

// splitEncoded unpacks an encoded hash into cost settings, salt, and key.
func splitEncoded(encoded string) (hashParams, []byte, []byte, error) {
	var p hashParams

	fields := strings.Split(encoded, "$")
	if len(fields) != 6 || fields[0] != "" {
		return p, nil, nil, errMalformedHash
	}
	if fields[1] != "argon2id" {
		return p, nil, nil, fmt.Errorf("%w: algorithm %q", errMalformedHash, fields[1])
	}

	var version int
	if _, err := fmt.Sscanf(fields[2], "v=%d", &version); err != nil || version != argon2.Version {
		return p, nil, nil, fmt.Errorf("%w: version field %q", errMalformedHash, fields[2])
	}
	if _, err := fmt.Sscanf(fields[3], "m=%d,t=%d,p=%d", &p.memory, &p.passes, &p.lanes); err != nil {
		return p, nil, nil, fmt.Errorf("%w: cost field %q", errMalformedHash, fields[3])
	}

	salt, err := base64.RawStdEncoding.DecodeString(fields[4])
	if err != nil {
		return p, nil, nil, fmt.Errorf("%w: salt: %v", errMalformedHash, err)
	}
	key, err := base64.RawStdEncoding.DecodeString(fields[5])
	if err != nil {
		return p, nil, nil, fmt.Errorf("%w: key: %v", errMalformedHash, err)
	}

	return p, salt, key, nil
}
