package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/rafid/crosspost/internal/apperror"
)

// defaultCost is the bcrypt work factor. Cost 12 takes ~250ms on current
// server hardware — negligible for a login, expensive for an attacker.
const defaultCost = 12

// MinPasswordLength is the registration password policy. Anything shorter
// is rejected as a weak password before it ever reaches bcrypt.
const MinPasswordLength = 8

// PasswordService provides bcrypt hashing, verification, and the strength
// policy. It's a struct so the cost can be lowered in tests.
type PasswordService struct {
	cost int
}

// NewPasswordService creates a PasswordService with the default cost.
func NewPasswordService() *PasswordService {
	return &PasswordService{cost: defaultCost}
}

// NewPasswordServiceForTest creates a PasswordService with a custom (low)
// cost so test suites aren't dominated by bcrypt time. Not for production.
func NewPasswordServiceForTest(cost int) *PasswordService {
	return &PasswordService{cost: cost}
}

// CheckStrength applies the registration password policy.
func (p *PasswordService) CheckStrength(plaintext string) error {
	if len(plaintext) < MinPasswordLength {
		return apperror.WeakPassword(
			fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}
	if len(plaintext) > 72 {
		// bcrypt silently truncates beyond 72 bytes; reject explicitly.
		return apperror.WeakPassword("password must be 72 bytes or fewer")
	}
	return nil
}

// Hash hashes a plaintext password. The returned string embeds the salt and
// cost; store it directly.
func (p *PasswordService) Hash(plaintext string) (string, error) {
	if len(plaintext) > 72 {
		return "", fmt.Errorf("auth: password must be 72 bytes or fewer")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), p.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing password: %w", err)
	}
	return string(hashed), nil
}

// Verify checks a plaintext against a stored hash. The comparison is
// constant-time inside bcrypt.
func (p *PasswordService) Verify(hash, plaintext string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return fmt.Errorf("auth: invalid password")
		}
		return fmt.Errorf("auth: comparing password hash: %w", err)
	}
	return nil
}
