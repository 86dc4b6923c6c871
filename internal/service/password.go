package service

import (
	"fmt"
	"strings"
	"unicode"

	apperrors "github.com/finsight/auth/pkg/errors"
)

// bcryptCost is the cost factor for bcrypt password hashing.
const bcryptCost = 12

// PasswordPolicy holds the configured password complexity requirements.
type PasswordPolicy struct {
	MinLength        int
	RequireUppercase bool
	RequireLowercase bool
	RequireNumbers   bool
	RequireSymbols   bool
}

// Validate checks the password against the policy. All violations are
// collected into a single message so the caller learns everything at once.
func (p PasswordPolicy) Validate(password string) error {
	var problems []string

	if len(password) < p.MinLength {
		problems = append(problems, fmt.Sprintf("be at least %d characters", p.MinLength))
	}

	var hasUpper, hasLower, hasDigit, hasSymbol bool
	for _, ch := range password {
		switch {
		case unicode.IsUpper(ch):
			hasUpper = true
		case unicode.IsLower(ch):
			hasLower = true
		case unicode.IsDigit(ch):
			hasDigit = true
		case unicode.IsPunct(ch) || unicode.IsSymbol(ch):
			hasSymbol = true
		}
	}

	if p.RequireUppercase && !hasUpper {
		problems = append(problems, "contain an uppercase letter")
	}
	if p.RequireLowercase && !hasLower {
		problems = append(problems, "contain a lowercase letter")
	}
	if p.RequireNumbers && !hasDigit {
		problems = append(problems, "contain a digit")
	}
	if p.RequireSymbols && !hasSymbol {
		problems = append(problems, "contain a symbol")
	}

	if len(problems) > 0 {
		return apperrors.InvalidInput("password must " + strings.Join(problems, ", "))
	}

	return nil
}
