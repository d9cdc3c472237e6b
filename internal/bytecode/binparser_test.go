package bytecode

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseOneInlineData(t *testing.T) {
	tok, rest, err := ParseOne([]byte{3, 'a', 'b', 'c', 'X'})
	require.NoError(t, err)
	require.Equal(t, KindData, tok.Kind)
	require.Equal(t, []byte("abc"), tok.Bytes)
	require.Equal(t, []byte("X"), rest)
}

func TestParseOneU8Length(t *testing.T) {
	payload := make([]byte, 200)
	b := append([]byte{tagU8Len, 200}, payload...)
	tok, rest, err := ParseOne(b)
	require.NoError(t, err)
	require.Equal(t, KindData, tok.Kind)
	require.Len(t, tok.Bytes, 200)
	require.Empty(t, rest)
}

func TestParseOneInstruction(t *testing.T) {
	name := []byte("DUP")
	tok, rest, err := ParseOne(append([]byte{0x80 | byte(len(name))}, name...))
	require.NoError(t, err)
	require.Equal(t, KindInstruction, tok.Kind)
	require.Equal(t, name, tok.Bytes)
	require.False(t, tok.Internal)
	require.Empty(t, rest)
}

func TestParseOneInternalInstruction(t *testing.T) {
	name := []byte("WRITE_END")
	b := append([]byte{tagInternal, 0x80 | byte(len(name))}, name...)
	tok, _, err := ParseOne(b)
	require.NoError(t, err)
	require.True(t, tok.Internal)
	require.Equal(t, name, tok.Bytes)
}

func TestParseOneReservedTag(t *testing.T) {
	_, _, err := ParseOne([]byte{125})
	require.ErrorIs(t, err, ErrReserved)
}

func TestParseOneIncomplete(t *testing.T) {
	_, _, err := ParseOne([]byte{tagU16Len, 0})
	require.ErrorIs(t, err, ErrIncomplete)
}

func TestParseOneInternalRejectsNonInstructionTag(t *testing.T) {
	_, _, err := ParseOne([]byte{tagInternal, 5})
	require.ErrorIs(t, err, ErrUnknown)
}

func TestRoundTrip(t *testing.T) {
	toks := []Token{
		{Kind: KindData, Bytes: []byte("hello")},
		{Kind: KindInstruction, Bytes: []byte("CONCAT")},
		{Kind: KindInstruction, Bytes: []byte("WRITE_END"), Internal: true},
	}
	var encoded []byte
	for _, tok := range toks {
		encoded = append(encoded, Encode(tok)...)
	}
	parsed, err := Parse(encoded)
	require.NoError(t, err)
	require.Equal(t, toks, parsed)
}
