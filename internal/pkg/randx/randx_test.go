package randx

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestNickname(t *testing.T) {
	seen := make(map[string]struct{})

	for range 50 {
		name, err := Nickname()
		require.NoError(t, err)
		require.True(t, strings.HasPrefix(name, NicknamePrefix))
		require.Len(t, name, len(NicknamePrefix)+NicknameRandomLength)

		for _, c := range strings.TrimPrefix(name, NicknamePrefix) {
			require.True(t, strings.ContainsRune(Base62Chars, c), "unexpected character %q", c)
		}
		seen[name] = struct{}{}
	}

	require.Greater(t, len(seen), 1)
}

func TestBase62_Length(t *testing.T) {
	for _, n := range []int{0, 1, 16} {
		s, err := Base62(n)
		require.NoError(t, err)
		require.Len(t, s, n)
	}
}

func TestSessionID(t *testing.T) {
	id := SessionID()
	_, err := uuid.Parse(id)
	require.NoError(t, err)
	require.NotEqual(t, id, SessionID())
	require.NotEqual(t, uuid.Nil, EventID())
}
