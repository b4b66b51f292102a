package authority

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFixedSetHasNineAuthorities(t *testing.T) {
	assert.Len(t, Authorities, 9)
}

func TestByV3Ident(t *testing.T) {
	a, ok := ByV3Ident("D586D18309DED4CD6D57C18FDB97EFA96D330566")
	assert.True(t, ok)
	assert.Equal(t, "moria1", a.Nickname)

	_, ok = ByV3Ident("0000000000000000000000000000000000000000")
	assert.False(t, ok)
}

func TestDirAddrPort(t *testing.T) {
	a, _ := ByV3Ident("D586D18309DED4CD6D57C18FDB97EFA96D330566")
	assert.Equal(t, "128.31.0.39:9131", a.DirAddrPort())
}
