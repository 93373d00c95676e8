package model

import (
	"errors"
	"fmt"
)

const (
	MaxUsernameLength = 32
	MaxBioLength      = 10 * 128
)

var ErrUsernameEmpty = errors.New("username must not be empty")
var ErrUsernameTooLong = fmt.Errorf("username must not exceed %d characters", MaxUsernameLength)
var ErrUsernameInvalidChars = errors.New("username must contain only alphanumeric characters, underscores, or hyphens")
var ErrBioTooLong = fmt.Errorf("bio must not exceed %d characters", MaxBioLength)

// User is a player profile. The bio is owned by the profile as a plain
// value; the stat totals are updated by the server at game end.
type User struct {
	Username   string
	ID         int32
	Bio        string
	TotalScore int32
	TotalGames int32
	TotalWins  int32
}

// NewUser returns a profile with zeroed stats.
func NewUser(username string, id int32) User {
	return User{Username: username, ID: id}
}

// ValidateUsername checks that a username is 1-32 ASCII alphanumeric,
// underscore, or hyphen characters. Returns nil on success or a
// descriptive error.
func ValidateUsername(name string) error {
	if len(name) == 0 {
		return ErrUsernameEmpty
	}
	if len(name) > MaxUsernameLength {
		return ErrUsernameTooLong
	}
	for _, r := range name {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && (r < '0' || r > '9') && r != '_' && r != '-' {
			return ErrUsernameInvalidChars
		}
	}
	return nil
}

// ValidateBio bounds the free-text bio.
func ValidateBio(bio string) error {
	if len(bio) > MaxBioLength {
		return ErrBioTooLong
	}
	return nil
}
