package auth

import (
	"net/mail"
	"strings"
)

// FieldErrors maps form field names to their validation messages, mirroring
// the shape returned to browsers: { field: [message, ...] }.
type FieldErrors map[string][]string

// Empty reports whether validation passed.
func (f FieldErrors) Empty() bool {
	return len(f) == 0
}

func (f FieldErrors) add(field, message string) {
	f[field] = append(f[field], message)
}

const (
	maxEmailLength    = 40
	minPasswordLength = 8
	maxPasswordLength = 36
	minSpecialChars   = 2
)

const passwordSpecialChars = "+!@#$%&'*/=?^_`{|}~[]-"

// SignupForm is the raw signup submission before validation.
type SignupForm struct {
	Email          string
	Password       string
	PasswordRepeat string
	PolicyAgree    string
}

// ValidateSignup checks the signup form shape: email syntax and length,
// password length and special-character count, repeat match, and policy
// agreement. It returns per-field messages rather than an error.
func ValidateSignup(form SignupForm) FieldErrors {
	errs := FieldErrors{}

	email := strings.TrimSpace(form.Email)
	switch {
	case email == "":
		errs.add("email", "Email cannot be empty")
	case len(email) > maxEmailLength:
		errs.add("email", "Email must be less than 40 characters")
	default:
		if _, err := mail.ParseAddress(email); err != nil {
			errs.add("email", "Email is not valid")
		}
	}

	password := strings.TrimSpace(form.Password)
	switch {
	case len(password) < minPasswordLength:
		errs.add("password", "Password must be at least 8 characters long")
	case len(password) > maxPasswordLength:
		errs.add("password", "Password must be less than 36 characters")
	case countSpecialChars(password) < minSpecialChars:
		errs.add("password", "Password must contain at least 2 special characters (!@#$%^&*()_+[]-)")
	}

	if strings.TrimSpace(form.PasswordRepeat) != password {
		errs.add("passwordRepeat", "Passwords do not match")
	}

	if strings.TrimSpace(form.PolicyAgree) == "" {
		errs.add("policyAgree", "Agreement to policy is required")
	}

	return errs
}

// SigninForm is the raw sign-in submission before validation.
type SigninForm struct {
	Email    string
	Password string
}

// ValidateSignin checks that credentials were supplied and look plausible.
func ValidateSignin(form SigninForm) FieldErrors {
	errs := FieldErrors{}

	email := strings.TrimSpace(form.Email)
	if email == "" {
		errs.add("email", "Email is required")
	} else if _, err := mail.ParseAddress(email); err != nil {
		errs.add("email", "Email is not valid")
	}

	password := strings.TrimSpace(form.Password)
	if password == "" {
		errs.add("password", "Password is required")
	} else if len(password) < minPasswordLength || len(password) > maxPasswordLength {
		errs.add("password", "Password must be between 8 and 36 characters")
	}

	return errs
}

func countSpecialChars(password string) int {
	count := 0
	for _, ch := range password {
		if strings.ContainsRune(passwordSpecialChars, ch) {
			count++
		}
	}
	return count
}
