/*
Package user contains the account rules shared by the HTTP API and the socket: username
and password validation and the public profile returned to clients.
*/
package user

import (
	"errors"
	"regexp"
	"time"
	"unicode/utf8"

	"huddle/internal/app/store"
)

const (
	MinUsernameLength = 3
	MaxUsernameLength = 32

	MinPasswordLength = 8

	// MaxPasswordBytes is bcrypt's input limit.
	MaxPasswordBytes = 72
)

var (
	ErrInvalidUsername = errors.New("user: invalid username")
	ErrInvalidPassword = errors.New("user: invalid password")
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// ValidateUsername checks length and allowed characters (letters, digits, "_", "." and "-").
func ValidateUsername(name string) error {
	if n := utf8.RuneCountInString(name); n < MinUsernameLength || n > MaxUsernameLength {
		return ErrInvalidUsername
	}
	if !usernamePattern.MatchString(name) {
		return ErrInvalidUsername
	}
	return nil
}

// ValidatePassword checks the password length bounds.
func ValidatePassword(password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength || len(password) > MaxPasswordBytes {
		return ErrInvalidPassword
	}
	return nil
}

// Profile is the public representation of an account.
type Profile struct {
	// ID is the account's unique identifier.
	ID string `json:"id"`

	// Username is the unique display name, also used as the socket identity.
	Username string `json:"username"`

	// AvatarURL points at the user's avatar, empty when none was uploaded.
	AvatarURL string `json:"avatarUrl,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// NewProfile builds the public profile of u. avatarURL resolves an object key to a URL
// and may be nil when avatar storage is disabled.
func NewProfile(u store.User, avatarURL func(key string) string) Profile {
	p := Profile{
		ID:        u.ID,
		Username:  u.Username,
		CreatedAt: u.CreatedAt,
	}
	if u.AvatarKey != "" && avatarURL != nil {
		p.AvatarURL = avatarURL(u.AvatarKey)
	}
	return p
}
