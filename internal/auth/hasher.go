// Package auth provides the credential hashing primitive used by account
// provisioning.
package auth

import "golang.org/x/crypto/bcrypt"

// BcryptHasher hashes passwords with bcrypt (salted, one-way).
type BcryptHasher struct {
	cost int
}

func NewBcryptHasher(opts ...BcryptOption) *BcryptHasher {
	h := &BcryptHasher{cost: bcrypt.DefaultCost}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type BcryptOption func(*BcryptHasher)

// WithCost overrides the bcrypt work factor. Out-of-range values fall back
// to the library default.
func WithCost(cost int) BcryptOption {
	return func(h *BcryptHasher) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			h.cost = cost
		}
	}
}

func (h *BcryptHasher) Hash(plaintext string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func (h *BcryptHasher) Verify(hash, plaintext string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
}
