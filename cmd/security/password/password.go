package password

import (
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// bcryptMaxBytes is the input limit of the bcrypt algorithm.
const bcryptMaxBytes = 72

// scheme ties an Algorithm to the hash prefixes it emits and the input
// limit it can honor. Hash picks by Algorithm, Verify picks by prefix.
type scheme struct {
	alg      Algorithm
	prefixes []string
	maxBytes int // 0: no byte limit beyond the policy
	hash     func(c Config, password string) (string, error)
	verify   func(c Config, encodedHash, password string) (bool, error)
}

var schemes = []scheme{
	{
		alg:      AlgorithmBcrypt,
		prefixes: []string{"$2a$", "$2b$", "$2y$"},
		maxBytes: bcryptMaxBytes,
		hash:     Config.hashBcrypt,
		verify:   Config.verifyBcrypt,
	},
	{
		alg:      AlgorithmArgon2id,
		prefixes: []string{argon2idPrefix},
		hash:     Config.hashArgon2id,
		verify:   Config.verifyArgon2id,
	},
}

// schemeFor returns the scheme new hashes use. Unknown algorithms fall back to bcrypt.
func schemeFor(alg Algorithm) scheme {
	for _, s := range schemes {
		if s.alg == alg {
			return s
		}
	}
	return schemes[0]
}

// schemeOf finds the scheme that produced encodedHash.
func schemeOf(encodedHash string) (scheme, bool) {
	for _, s := range schemes {
		for _, p := range s.prefixes {
			if strings.HasPrefix(encodedHash, p) {
				return s, true
			}
		}
	}
	return scheme{}, false
}

// Hash validates password against the policy and returns an encoded hash
// produced by the configured algorithm.
func (c Config) Hash(password string) (string, error) {
	if err := c.Validate(password); err != nil {
		return "", err
	}
	return schemeFor(c.Algorithm).hash(c, password)
}

// Verify checks whether password matches the given encoded hash.
// The algorithm is taken from the hash prefix, so hashes created under a
// previous configuration keep verifying after the default changes.
//
// Returns (true, nil) for a match, (false, nil) for mismatch,
// and (false, ErrInvalidHash) for malformed/unsupported hashes.
func (c Config) Verify(encodedHash, password string) (bool, error) {
	s, ok := schemeOf(encodedHash)
	if !ok {
		return false, ErrInvalidHash
	}
	return s.verify(c, encodedHash, password)
}

func (c Config) hashBcrypt(password string) (string, error) {
	cost := c.BcryptCost
	if cost == 0 {
		cost = DefaultBcryptCost
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", ErrPasswordTooLong
		}
		return "", err
	}
	return string(b), nil
}

func (Config) verifyBcrypt(encodedHash, password string) (bool, error) {
	if _, err := bcrypt.Cost([]byte(encodedHash)); err != nil {
		return false, ErrInvalidHash
	}
	// Inputs bcrypt cannot have produced never match.
	if len(password) > bcryptMaxBytes {
		return false, nil
	}

	err := bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, ErrInvalidHash
	}
}
