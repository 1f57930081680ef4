/*
Package randx provides functions for generating cryptographically secure random strings and unique identifiers.

It is used to tag connections with UUID session IDs, to identify journal events,
and to generate default client nicknames from the Base62 alphabet.
*/
package randx

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/google/uuid"
)

const (
	// Base62Chars defines the character set used for Base62 encoding (0-9, A-Z, a-z).
	Base62Chars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

	// Base62Len is the total number of characters in the Base62 character set (62).
	Base62Len = int64(len(Base62Chars))

	// NicknamePrefix is prepended to every generated nickname.
	NicknamePrefix = "User_"

	// NicknameRandomLength is the number of random Base62 characters in a generated nickname.
	NicknameRandomLength = 6
)

// SessionID generates a UUID v4 string identifying one accepted connection in logs.
func SessionID() string {
	return uuid.New().String()
}

// EventID generates a UUID v4 used as the primary key of a journal event.
func EventID() uuid.UUID {
	return uuid.New()
}

// Base62 returns n random characters from Base62Chars using crypto/rand.
func Base62(n int) (string, error) {
	result := make([]byte, n)

	for i := range n {
		num, err := rand.Int(rand.Reader, big.NewInt(Base62Len))
		if err != nil {
			return "", fmt.Errorf("failed to generate random number: %w", err)
		}
		result[i] = Base62Chars[num.Int64()]
	}

	return string(result), nil
}

// Nickname generates a random display name with the NicknamePrefix and NicknameRandomLength Base62 characters.
func Nickname() (string, error) {
	suffix, err := Base62(NicknameRandomLength)
	if err != nil {
		return "", fmt.Errorf("nickname: %w", err)
	}
	return NicknamePrefix + suffix, nil
}
