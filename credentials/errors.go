package credentials

import (
	"fmt"
	"time"
)

type (
	NameTaken struct{}

	PasswordTooShort struct {
		Min int
	}

	UserNotFound struct{}

	UserLocked struct {
		Until time.Time
	}

	WrongPassword struct{}

	InvalidSession struct{}

	RevocationUnsupported struct{}

	// Corrupted is returned when a user row lacks one of the columns
	// written by SignUp.
	Corrupted struct {
		Row    string
		Column string
	}
)

func (NameTaken) Error() string  { return "User already exists" }
func (NameTaken) Reason() string { return "User already exists" }

func (PasswordTooShort) Error() string  { return "Password too short" }
func (PasswordTooShort) Reason() string { return "Password too short" }

func (p PasswordTooShort) Is(target error) bool {
	_, ok := target.(PasswordTooShort)
	return ok
}

func (UserNotFound) Error() string  { return "User not found" }
func (UserNotFound) Reason() string { return "User not found" }

func (UserLocked) Error() string  { return "User is locked" }
func (UserLocked) Reason() string { return "User is locked" }

func (u UserLocked) Is(target error) bool {
	_, ok := target.(UserLocked)
	return ok
}

func (WrongPassword) Error() string  { return "Wrong password" }
func (WrongPassword) Reason() string { return "Wrong password" }

func (InvalidSession) Error() string  { return "Invalid session" }
func (InvalidSession) Reason() string { return "Invalid session" }

func (RevocationUnsupported) Error() string { return "tokens cannot be revoked" }

func (c Corrupted) Error() string {
	return fmt.Sprintf("user %v has no %v", c.Row, c.Column)
}
