package user

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"huddle/internal/app/store"
)

func TestValidateUsername(t *testing.T) {
	valid := []string{"bob", "alice_01", "j.doe", "a-b-c", strings.Repeat("x", MaxUsernameLength)}
	for _, name := range valid {
		assert.NoError(t, ValidateUsername(name), name)
	}

	invalid := []string{"", "ab", "has space", "emoji🙂x", "semi;colon", strings.Repeat("x", MaxUsernameLength+1)}
	for _, name := range invalid {
		assert.ErrorIs(t, ValidateUsername(name), ErrInvalidUsername, name)
	}
}

func TestValidatePassword(t *testing.T) {
	assert.NoError(t, ValidatePassword("correct horse"))
	assert.ErrorIs(t, ValidatePassword("short"), ErrInvalidPassword)
	assert.ErrorIs(t, ValidatePassword(strings.Repeat("p", MaxPasswordBytes+1)), ErrInvalidPassword)
}

func TestNewProfile(t *testing.T) {
	u := store.User{ID: "u1", Username: "bob", AvatarKey: "avatars/u1/a.png", CreatedAt: time.Unix(0, 0)}

	p := NewProfile(u, func(key string) string { return "https://cdn.example/" + key })
	assert.Equal(t, "https://cdn.example/avatars/u1/a.png", p.AvatarURL)

	p = NewProfile(u, nil)
	assert.Empty(t, p.AvatarURL)
	assert.Equal(t, "bob", p.Username)
}
