package strlist

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func values(list *Node) []string {
	var out []string
	for n := list; n != nil; n = n.Next() {
		out = append(out, n.Value())
	}
	return out
}

func TestPrependAppend(t *testing.T) {
	var l *Node
	l = Append(l, "b")
	l = Append(l, "c")
	l = Prepend(l, "a")
	require.Equal(t, []string{"a", "b", "c"}, values(l))
	require.Equal(t, 3, Length(l))
}

func TestTokenize(t *testing.T) {
	l, err := Tokenize("alice, bob ,,  carol ", ",")
	require.NoError(t, err)
	require.Equal(t, []string{"alice", "bob", "carol"}, values(l))

	_, err = Tokenize("  , ,", ",")
	require.ErrorIs(t, err, ErrNoTokens)

	_, err = Tokenize("", ",")
	require.ErrorIs(t, err, ErrNoTokens)
}

func TestTokenize_JoinRoundtrip(t *testing.T) {
	want := []string{"one", "two", "three"}
	l, err := Tokenize(strings.Join(want, ":"), ":")
	require.NoError(t, err)
	require.Equal(t, want, values(l))
}

func TestCopyIsDeep(t *testing.T) {
	l, err := Tokenize("x y z", " ")
	require.NoError(t, err)
	c := Copy(l)
	Wipe(l)
	require.Equal(t, []string{"x", "y", "z"}, values(c))
	require.Equal(t, []string{"", "", ""}, values(l))
}

func TestReverse(t *testing.T) {
	l, err := Tokenize("1 2 3 4", " ")
	require.NoError(t, err)
	l = Reverse(l)
	require.Equal(t, []string{"4", "3", "2", "1"}, values(l))

	require.Nil(t, Reverse(nil))
}

func TestPop(t *testing.T) {
	l, err := Tokenize("first second", " ")
	require.NoError(t, err)

	s, ok := Pop(&l)
	require.True(t, ok)
	require.Equal(t, "first", s)
	require.Equal(t, []string{"second"}, values(l))

	s, ok = Pop(&l)
	require.True(t, ok)
	require.Equal(t, "second", s)

	_, ok = Pop(&l)
	require.False(t, ok)
	require.Nil(t, l)
}

func TestFind(t *testing.T) {
	l, err := Tokenize("a b c", " ")
	require.NoError(t, err)
	require.NotNil(t, Find(l, "b"))
	require.Nil(t, Find(l, "missing"))
	require.Nil(t, Find(nil, "a"))
}
