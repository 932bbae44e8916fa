/*
Package randx provides functions for generating cryptographically secure random identifiers.

It generates fixed-length Base62 invite codes, short resource identifiers for servers and
channels, and standard UUID message IDs.
*/
package randx

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

const (
	// Base62Chars defines the character set used for Base62 encoding (0-9, A-Z, a-z).
	Base62Chars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

	// Base62Len is the total number of characters in the Base62 character set (62).
	Base62Len = int64(len(Base62Chars))

	// InviteCodeLength is the fixed length of a server invite code.
	InviteCodeLength = 8

	// ResourceIDLength is the fixed length of server and channel identifiers.
	ResourceIDLength = 10
)

// base62 returns a random Base62 string of the given length read from crypto/rand.
func base62(length int) (string, error) {
	result := make([]byte, length)

	for i := range length {
		num, err := rand.Int(rand.Reader, big.NewInt(Base62Len))
		if err != nil {
			return "", fmt.Errorf("failed to generate random number: %w", err)
		}

		result[i] = Base62Chars[num.Int64()]
	}

	return string(result), nil
}

// InviteCode generates a Base62 invite code of InviteCodeLength characters.
func InviteCode() (string, error) {
	return base62(InviteCodeLength)
}

// ResourceID generates a Base62 identifier for servers and channels.
func ResourceID() (string, error) {
	return base62(ResourceIDLength)
}

// MessageID generates a standard UUID v4 string to serve as a unique identifier for a message.
func MessageID() string {
	return uuid.New().String()
}

// IsValidInviteCode checks that code has InviteCodeLength characters, all from Base62Chars.
func IsValidInviteCode(code string) bool {
	return isBase62(code, InviteCodeLength)
}

// IsValidResourceID checks that id has ResourceIDLength characters, all from Base62Chars.
func IsValidResourceID(id string) bool {
	return isBase62(id, ResourceIDLength)
}

func isBase62(s string, length int) bool {
	if len(s) != length {
		return false
	}

	for _, char := range s {
		if !strings.ContainsRune(Base62Chars, char) {
			return false
		}
	}

	return true
}
