// Package credentials issues initial passwords for clients created by an
// import. The plaintext is never stored or returned; clients reset it
// through the normal account flow.
package credentials

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"golang.org/x/crypto/bcrypt"

	"github.com/JonMunkholm/warehouse/internal/importer"
)

// alphabet omits look-alike characters.
const alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz23456789"

// DefaultLength is the generated password length.
const DefaultLength = 20

// Hasher generates random passwords and hashes them with bcrypt.
type Hasher struct {
	Length int
	Cost   int
}

var _ importer.PasswordHasher = Hasher{}

// NewHasher returns a Hasher with the default length and bcrypt cost.
func NewHasher() Hasher {
	return Hasher{Length: DefaultLength, Cost: bcrypt.DefaultCost}
}

// Generate returns a random password drawn from crypto/rand.
func (h Hasher) Generate() (string, error) {
	n := h.Length
	if n <= 0 {
		n = DefaultLength
	}

	limit := big.NewInt(int64(len(alphabet)))
	buf := make([]byte, n)
	for i := range buf {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("generate password: %w", err)
		}
		buf[i] = alphabet[idx.Int64()]
	}
	return string(buf), nil
}

// Hash returns the bcrypt hash of password.
func (h Hasher) Hash(password string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}
