package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Supported hash algorithms for HashPassword.
const (
	AlgoBcrypt   = "bcrypt"
	AlgoArgon2id = "argon2id"
)

// bcryptCost is used for newly generated bcrypt hashes.
const bcryptCost = 12

// argon2id parameters for newly generated hashes: memory=64MB,
// iterations=3, parallelism=4.
const (
	argonTime    = 3
	argonMemory  = 64 * 1024 // KiB
	argonThreads = 4
	argonKeyLen  = 32
	argonSaltLen = 16
)

// HashPassword hashes password with the given algorithm. Stored hashes are
// self-describing, so VerifyPassword accepts either kind.
func HashPassword(password, algo string) (string, error) {
	switch algo {
	case "", AlgoBcrypt:
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
		if err != nil {
			return "", fmt.Errorf("hashing password: %w", err)
		}
		return string(hash), nil
	case AlgoArgon2id:
		return hashArgon2id(password)
	default:
		return "", fmt.Errorf("unsupported hash algorithm %q", algo)
	}
}

// decoyHash is compared against when no account matches, so unknown and
// known emails cost the same bcrypt work.
var decoyHash = sync.OnceValue(func() string {
	h, err := bcrypt.GenerateFromPassword([]byte("bizdir-decoy"), bcryptCost)
	if err != nil {
		return ""
	}
	return string(h)
})

// VerifyPassword reports whether password matches the stored hash. PHC
// "$argon2id$" strings use argon2id; everything else is treated as bcrypt.
// Malformed hashes never match.
func VerifyPassword(encodedHash, password string) bool {
	if strings.HasPrefix(encodedHash, "$argon2id$") {
		return verifyArgon2id(password, encodedHash)
	}
	return bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password)) == nil
}

// hashArgon2id produces $argon2id$v=19$m=65536,t=3,p=4$<salt>$<hash>.
func hashArgon2id(password string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	hash := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argonMemory, argonTime, argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// verifyArgon2id checks a password against a PHC-encoded argon2id hash,
// using the parameters embedded in the hash.
func verifyArgon2id(password, encodedHash string) bool {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 {
		return false
	}

	var memory, iterations uint32
	var parallelism uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		return false
	}
	// argon2.IDKey panics on zero time or threads.
	if iterations == 0 || parallelism == 0 {
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(expected) == 0 {
		return false
	}

	computed := argon2.IDKey([]byte(password), salt, iterations, memory, parallelism, uint32(len(expected)))
	return subtle.ConstantTimeCompare(expected, computed) == 1
}
