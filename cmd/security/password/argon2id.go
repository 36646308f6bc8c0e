package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const argon2idPrefix = "$argon2id$"

var phcB64 = base64.RawStdEncoding

// phcArgon2id is a parsed "$argon2id$v=19$m=..,t=..,p=..$salt$key" string.
type phcArgon2id struct {
	memoryKiB   uint32
	iterations  uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

func (p phcArgon2id) String() string {
	return fmt.Sprintf("%sv=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2idPrefix, argon2.Version,
		p.memoryKiB, p.iterations, p.parallelism,
		phcB64.EncodeToString(p.salt), phcB64.EncodeToString(p.key),
	)
}

// derive runs Argon2id with p's cost parameters and salt.
func (p phcArgon2id) derive(password string, keyLen uint32) []byte {
	return argon2.IDKey([]byte(password), p.salt, p.iterations, p.memoryKiB, p.parallelism, keyLen)
}

// affordable rejects stored hashes whose cost is far above what this
// deployment is configured for, so a planted hash cannot pin the CPU.
func (p phcArgon2id) affordable(limit Argon2idParams) bool {
	switch {
	case p.memoryKiB > limit.MemoryKiB*2,
		p.iterations > limit.Iterations*2,
		p.parallelism > limit.Parallelism*2:
		return false
	}
	return len(p.salt) >= 8 && len(p.salt) <= 64 && len(p.key) >= 16 && len(p.key) <= 128
}

func parseArgon2id(encoded string) (phcArgon2id, error) {
	rest, ok := strings.CutPrefix(encoded, argon2idPrefix)
	if !ok {
		return phcArgon2id{}, ErrInvalidHash
	}
	fields := strings.Split(rest, "$")
	if len(fields) != 4 || fields[0] != "v="+strconv.Itoa(argon2.Version) {
		return phcArgon2id{}, ErrInvalidHash
	}

	var p phcArgon2id
	for _, kv := range strings.Split(fields[1], ",") {
		k, v, _ := strings.Cut(kv, "=")
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil || n == 0 {
			return phcArgon2id{}, ErrInvalidHash
		}
		switch k {
		case "m":
			p.memoryKiB = uint32(n)
		case "t":
			p.iterations = uint32(n)
		case "p":
			if n > 255 {
				return phcArgon2id{}, ErrInvalidHash
			}
			p.parallelism = uint8(n)
		default:
			return phcArgon2id{}, ErrInvalidHash
		}
	}
	if p.memoryKiB == 0 || p.iterations == 0 || p.parallelism == 0 {
		return phcArgon2id{}, ErrInvalidHash
	}

	var err error
	if p.salt, err = phcB64.DecodeString(fields[2]); err != nil {
		return phcArgon2id{}, ErrInvalidHash
	}
	if p.key, err = phcB64.DecodeString(fields[3]); err != nil {
		return phcArgon2id{}, ErrInvalidHash
	}
	return p, nil
}

func (c Config) hashArgon2id(password string) (string, error) {
	p := phcArgon2id{
		memoryKiB:   c.Params.MemoryKiB,
		iterations:  c.Params.Iterations,
		parallelism: c.Params.Parallelism,
		salt:        make([]byte, c.Params.SaltLength),
	}
	if _, err := rand.Read(p.salt); err != nil {
		return "", fmt.Errorf("salt: %w", err)
	}
	p.key = p.derive(password, c.Params.KeyLength)
	return p.String(), nil
}

func (c Config) verifyArgon2id(encodedHash, password string) (bool, error) {
	p, err := parseArgon2id(encodedHash)
	if err != nil {
		return false, err
	}
	if !p.affordable(c.Params) {
		return false, ErrInvalidHash
	}
	got := p.derive(password, uint32(len(p.key))) // #nosec G115 -- affordable caps the key at 128 bytes.
	return subtle.ConstantTimeCompare(got, p.key) == 1, nil
}
