package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/KevinKickass/OpenLogoBridge/internal/config"
	"golang.org/x/crypto/argon2"
)

var ErrMalformedHash = errors.New("malformed password hash")

// PasswordHasher creates and checks argon2id hashes in PHC notation:
// $argon2id$v=19$m=<KiB>,t=<passes>,p=<lanes>$<salt>$<key>
type PasswordHasher struct {
	cost config.Argon2Config
}

// NewPasswordHasher uses cfg for new hashes. Zero fields fall back to the defaults.
func NewPasswordHasher(cfg config.Argon2Config) *PasswordHasher {
	def := config.DefaultArgon2Config()
	if cfg.MemoryKiB == 0 {
		cfg.MemoryKiB = def.MemoryKiB
	}
	if cfg.Iterations == 0 {
		cfg.Iterations = def.Iterations
	}
	if cfg.Parallelism == 0 {
		cfg.Parallelism = def.Parallelism
	}
	if cfg.SaltLength == 0 {
		cfg.SaltLength = def.SaltLength
	}
	if cfg.KeyLength == 0 {
		cfg.KeyLength = def.KeyLength
	}
	return &PasswordHasher{cost: cfg}
}

type phcHash struct {
	cost config.Argon2Config
	salt []byte
	key  []byte
}

func (h phcHash) String() string {
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.cost.MemoryKiB, h.cost.Iterations, h.cost.Parallelism,
		base64.RawStdEncoding.EncodeToString(h.salt),
		base64.RawStdEncoding.EncodeToString(h.key))
}

func derive(password string, salt []byte, cost config.Argon2Config) []byte {
	return argon2.IDKey([]byte(password), salt, cost.Iterations, cost.MemoryKiB, cost.Parallelism, cost.KeyLength)
}

func (ph *PasswordHasher) HashPassword(password string) (string, error) {
	salt := make([]byte, ph.cost.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	return phcHash{
		cost: ph.cost,
		salt: salt,
		key:  derive(password, salt, ph.cost),
	}.String(), nil
}

// VerifyPassword checks password against encoded using the cost stored in the hash.
func (ph *PasswordHasher) VerifyPassword(password, encoded string) (bool, error) {
	h, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}

	computed := derive(password, h.salt, h.cost)
	return subtle.ConstantTimeCompare(h.key, computed) == 1, nil
}

// NeedsRehash reports whether encoded was made with a cost other than the configured one.
func (ph *PasswordHasher) NeedsRehash(encoded string) bool {
	h, err := parsePHC(encoded)
	if err != nil {
		return true
	}
	return h.cost.MemoryKiB != ph.cost.MemoryKiB ||
		h.cost.Iterations != ph.cost.Iterations ||
		h.cost.Parallelism != ph.cost.Parallelism ||
		h.cost.KeyLength != ph.cost.KeyLength
}

func parsePHC(encoded string) (phcHash, error) {
	fields := strings.Split(encoded, "$")
	if len(fields) != 6 || fields[0] != "" || fields[1] != "argon2id" {
		return phcHash{}, fmt.Errorf("%w: expected $argon2id$v=..$m=..,t=..,p=..$salt$key", ErrMalformedHash)
	}

	if fields[2] != "v="+strconv.Itoa(argon2.Version) {
		return phcHash{}, fmt.Errorf("%w: unsupported version %q", ErrMalformedHash, fields[2])
	}

	var h phcHash
	for _, kv := range strings.Split(fields[3], ",") {
		key, val, ok := strings.Cut(kv, "=")
		if !ok {
			return phcHash{}, fmt.Errorf("%w: parameter %q", ErrMalformedHash, kv)
		}
		n, err := strconv.ParseUint(val, 10, 32)
		if err != nil || n == 0 {
			return phcHash{}, fmt.Errorf("%w: parameter %q", ErrMalformedHash, kv)
		}
		switch key {
		case "m":
			h.cost.MemoryKiB = uint32(n)
		case "t":
			h.cost.Iterations = uint32(n)
		case "p":
			if n > 255 {
				return phcHash{}, fmt.Errorf("%w: parallelism %d", ErrMalformedHash, n)
			}
			h.cost.Parallelism = uint8(n)
		default:
			return phcHash{}, fmt.Errorf("%w: unknown parameter %q", ErrMalformedHash, key)
		}
	}
	if h.cost.MemoryKiB == 0 || h.cost.Iterations == 0 || h.cost.Parallelism == 0 {
		return phcHash{}, fmt.Errorf("%w: incomplete parameters %q", ErrMalformedHash, fields[3])
	}

	var err error
	if h.salt, err = base64.RawStdEncoding.DecodeString(fields[4]); err != nil {
		return phcHash{}, fmt.Errorf("%w: salt: %v", ErrMalformedHash, err)
	}
	if h.key, err = base64.RawStdEncoding.DecodeString(fields[5]); err != nil || len(h.key) == 0 {
		return phcHash{}, fmt.Errorf("%w: key", ErrMalformedHash)
	}
	h.cost.SaltLength = uint32(len(h.salt))
	h.cost.KeyLength = uint32(len(h.key))

	return h, nil
}
