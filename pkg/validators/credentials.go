package validators

import (
	"errors"
	"net/mail"
)

var (
	ErrEmailEmpty       = errors.New("no email address provided")
	ErrEmailInvalid     = errors.New("invalid email address provided")
	ErrPasswordEmpty    = errors.New("no password provided")
	ErrPasswordTooShort = errors.New("password must be at least 8 characters long")
	ErrPasswordTooLong  = errors.New("password is too long")
)

func EmailValidator(e string) error {
	if e == "" {
		return ErrEmailEmpty
	}

	if _, err := mail.ParseAddress(e); err != nil {
		return ErrEmailInvalid
	}

	return nil
}

// PasswordValidator checks length only, argon2 takes care of the rest
func PasswordValidator(p string) error {
	switch {
	case p == "":
		return ErrPasswordEmpty
	case len(p) < 8:
		return ErrPasswordTooShort
	case len(p) > 255:
		return ErrPasswordTooLong
	}

	return nil
}
