package version

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInfo(t *testing.T) {
	info := Info()
	assert.Contains(t, info, "supportim")
	assert.Contains(t, info, Version)
	assert.Contains(t, info, "protocol 1")
	assert.Contains(t, info, runtime.GOOS+"/"+runtime.GOARCH)
}

func TestCurrentTruncatesCommit(t *testing.T) {
	orig := Commit
	t.Cleanup(func() { Commit = orig })

	Commit = "abc1234567890"
	b := Current()
	assert.Equal(t, "abc1234", b.Commit)
	assert.Equal(t, "supportim", b.Name)
	assert.Equal(t, Protocol, b.Protocol)
	assert.Equal(t, runtime.Version(), b.Go)
}

func TestShort(t *testing.T) {
	for in, want := range map[string]string{
		"abcdefghij": "abcdefg",
		"abc":        "abc",
		"":           "",
		"1234567":    "1234567",
	} {
		assert.Equal(t, want, short(in), in)
	}
}
