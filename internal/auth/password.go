package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters, per the OWASP 2025 recommendation.
const (
	argonTime    = 3         // passes over memory
	argonMemory  = 64 * 1024 // KiB, so 64 MiB
	argonThreads = 1         // single lane suits Pi-class hardware
	argonKeyLen  = 32
	argonSaltLen = 16

	// phcFieldCount is the number of $-delimited fields in a PHC string.
	phcFieldCount = 6
)

// HashPassword derives an Argon2id hash of the password and encodes it
// in PHC form, $argon2id$v=19$m=65536,t=3,p=1$<salt>$<hash>.
//
// The hearth --hash-password flag uses this to produce password_hash
// values for the config file.
func HashPassword(password string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	hash := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		argonMemory, argonTime, argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// VerifyPassword checks a plaintext password against an Argon2id PHC
// hash string. The stored parameters are used for the comparison, so
// hashes created with older parameter sets keep verifying.
func VerifyPassword(password, encodedHash string) (bool, error) {
	phc, err := decodePHC(encodedHash)
	if err != nil {
		return false, err
	}

	candidate := argon2.IDKey([]byte(password), phc.salt,
		phc.time, phc.memory, phc.threads,
		uint32(len(phc.hash))) //nolint:gosec // G115: hash length always fits uint32

	return subtle.ConstantTimeCompare(phc.hash, candidate) == 1, nil
}

// phcHash holds the decoded components of an Argon2id PHC string.
type phcHash struct {
	salt    []byte
	hash    []byte
	time    uint32
	memory  uint32
	threads uint8
}

// decodePHC parses an Argon2id PHC string into its components.
func decodePHC(encoded string) (phcHash, error) {
	var phc phcHash

	fields := strings.Split(encoded, "$")
	if len(fields) != phcFieldCount {
		return phc, fmt.Errorf("invalid PHC hash format")
	}
	algorithm, version, params, salt64, hash64 := fields[1], fields[2], fields[3], fields[4], fields[5]

	if algorithm != "argon2id" {
		return phc, fmt.Errorf("unsupported algorithm: %s", algorithm)
	}

	var v int
	if _, err := fmt.Sscanf(version, "v=%d", &v); err != nil {
		return phc, fmt.Errorf("parsing version: %w", err)
	}

	if _, err := fmt.Sscanf(params, "m=%d,t=%d,p=%d", &phc.memory, &phc.time, &phc.threads); err != nil {
		return phc, fmt.Errorf("parsing parameters: %w", err)
	}

	var err error
	if phc.salt, err = base64.RawStdEncoding.DecodeString(salt64); err != nil {
		return phc, fmt.Errorf("decoding salt: %w", err)
	}
	if phc.hash, err = base64.RawStdEncoding.DecodeString(hash64); err != nil {
		return phc, fmt.Errorf("decoding hash: %w", err)
	}

	return phc, nil
}
