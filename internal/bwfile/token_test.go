package bwfile

import (
	"testing"

	"github.com/irl/bushel/internal/bushelerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kinds(tokens []Token) []TokenKind {
	out := make([]TokenKind, len(tokens))
	for i, tok := range tokens {
		out[i] = tok.Kind
	}
	return out
}

func TestTokenizeHeaderAndRelayLines(t *testing.T) {
	raw := []byte("1523911758\n" +
		"version=1.0.0\n" +
		"=====\n" +
		"bw=380 node_id=$68A483E05A2ABDCA6DA5A3EF8DB5177638A27F80\n")
	tokens, err := Tokenize(raw)
	require.NoError(t, err)
	assert.Equal(t, []TokenKind{
		TokenTimestamp, TokenNL,
		TokenKeyValue, TokenNL,
		TokenTerminator,
		TokenKeyValue, TokenSP, TokenKeyValue, TokenNL,
		TokenEOF,
	}, kinds(tokens))
	assert.Equal(t, "1523911758", tokens[0].Value)
	assert.Equal(t, "version=1.0.0", tokens[2].Value)
}

func TestTokenizeShortTerminator(t *testing.T) {
	tokens, err := Tokenize([]byte("1523911758\n====\n"))
	require.NoError(t, err)
	assert.Equal(t, []TokenKind{TokenTimestamp, TokenNL, TokenShortTerminator, TokenEOF}, kinds(tokens))
}

func TestTokenizeTracksLineAndColumn(t *testing.T) {
	tokens, err := Tokenize([]byte("1523911758\nbw=1\n"))
	require.NoError(t, err)
	require.Len(t, tokens, 5)
	assert.Equal(t, 1, tokens[0].Line)
	assert.Equal(t, 1, tokens[0].Column)
	assert.Equal(t, 2, tokens[2].Line)
	assert.Equal(t, 1, tokens[2].Column)
}

func TestTokenizeMismatchIsFatalParseError(t *testing.T) {
	_, err := Tokenize([]byte("1523911758\nnot-a-keyvalue\n"))
	require.Error(t, err)
	assert.True(t, bushelerr.Is(err, bushelerr.KindParseError))
}

func TestTokenizeAfterEOFKeepsReturningEOF(t *testing.T) {
	lex := NewLexer([]byte("1\n"))
	for i := 0; i < 5; i++ {
		tok, err := lex.Next()
		require.NoError(t, err)
		if i >= 2 {
			assert.Equal(t, TokenEOF, tok.Kind)
		}
	}
}
