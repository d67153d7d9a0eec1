// Package validation checks member and listing input before it reaches storage.
package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Account and profile limits.
const (
	MinPasswordLength = 8
	MaxPasswordLength = 128
	MinUsernameLength = 3
	MaxUsernameLength = 30
	MaxEmailLength    = 254
	MaxFullNameLength = 120
	MaxLocationLength = 120
	MaxAboutLength    = 2000
)

var (
	// letters, digits, '_' and '-', never leading or trailing punctuation
	usernamePattern = regexp.MustCompile(`^[A-Za-z0-9](?:[A-Za-z0-9_-]*[A-Za-z0-9])?$`)
	emailPattern    = regexp.MustCompile(`^[A-Za-z0-9._%+\-]+@[A-Za-z0-9\-]+(\.[A-Za-z0-9\-]+)*\.[A-Za-z]{2,}$`)
)

// Registration is what a new member supplies at sign-up.
type Registration struct {
	Username string
	Email    string
	Password string
	FullName string
	Location string
	About    string
}

// ValidateRegistration returns the first problem with a sign-up form.
func ValidateRegistration(r Registration) error {
	if r.Username == "" || r.Email == "" || r.Password == "" || r.FullName == "" || r.Location == "" {
		return errors.New("Username, email, password, full name and location are required")
	}
	for _, check := range []error{
		ValidateUsername(r.Username),
		ValidateEmail(r.Email),
		ValidatePassword(r.Password),
		ValidateProfile(r.FullName, r.Location, r.About),
	} {
		if check != nil {
			return check
		}
	}
	return nil
}

// ValidateProfile bounds the free-form profile fields.
func ValidateProfile(fullName, location, about string) error {
	if err := maxRunes("full name", fullName, MaxFullNameLength); err != nil {
		return err
	}
	if err := maxRunes("location", location, MaxLocationLength); err != nil {
		return err
	}
	return maxRunes("about", about, MaxAboutLength)
}

// ValidatePassword requires a length in range and at least one letter and one digit.
func ValidatePassword(password string) error {
	switch n := len(password); {
	case n < MinPasswordLength:
		return fmt.Errorf("password must be at least %d characters long", MinPasswordLength)
	case n > MaxPasswordLength:
		return fmt.Errorf("password must not exceed %d characters", MaxPasswordLength)
	}
	if strings.IndexFunc(password, unicode.IsLetter) < 0 {
		return errors.New("password must contain at least one letter")
	}
	if strings.IndexFunc(password, unicode.IsDigit) < 0 {
		return errors.New("password must contain at least one digit")
	}
	return nil
}

func ValidateUsername(username string) error {
	switch n := len(username); {
	case n < MinUsernameLength:
		return fmt.Errorf("username must be at least %d characters long", MinUsernameLength)
	case n > MaxUsernameLength:
		return fmt.Errorf("username must not exceed %d characters", MaxUsernameLength)
	}
	if !usernamePattern.MatchString(username) {
		return errors.New("username may use letters, numbers, underscores and hyphens, and must start and end with a letter or number")
	}
	return nil
}

func ValidateEmail(email string) error {
	if len(email) > MaxEmailLength {
		return fmt.Errorf("email must not exceed %d characters", MaxEmailLength)
	}
	if !emailPattern.MatchString(email) {
		return errors.New("invalid email format")
	}
	return nil
}

func maxRunes(field, value string, limit int) error {
	if utf8.RuneCountInString(value) > limit {
		return fmt.Errorf("%s must not exceed %d characters", field, limit)
	}
	return nil
}
