package mux

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLine(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want parsedLine
	}{
		{"output", "%output %3 hello\\040world", parsedLine{kind: lineOutput, paneID: "%3", data: "hello\\040world"}},
		{"extended-output", "%extended-output %3 123 : hello", parsedLine{kind: lineExtendedOutput, paneID: "%3", age: "123", data: "hello"}},
		{"begin", "%begin 1700000000 5 0", parsedLine{kind: lineBegin, raw: "%begin 1700000000 5 0"}},
		{"end", "%end 1700000000 5 0", parsedLine{kind: lineEnd, raw: "%end 1700000000 5 0"}},
		{"error", "%error 1700000000 5", parsedLine{kind: lineError, raw: "%error 1700000000 5"}},
		{"pause", "%pause %3", parsedLine{kind: linePause, paneID: "%3"}},
		{"other", "%sessions-changed", parsedLine{kind: lineOther, raw: "%sessions-changed"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := parseLine(tc.raw)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDecodeOctal(t *testing.T) {
	assert.Equal(t, []byte("hello world"), DecodeOctal(`hello\040world`))
	assert.Equal(t, []byte{0x1b}, DecodeOctal(`\033`))
	assert.Equal(t, []byte("plain"), DecodeOctal("plain"))

	// Malformed escape: too few digits after the backslash passes through
	// literally, backslash included.
	assert.Equal(t, []byte(`\0a`), DecodeOctal(`\0a`))
}

func TestEncodeDecodeOctalRoundTrip(t *testing.T) {
	input := []byte{0x00, 0x1b, ' ', 'x', 0x7f, '\\'}
	assert.Equal(t, input, DecodeOctal(EncodeOctal(input)))
}

func TestEncodeHex(t *testing.T) {
	assert.Equal(t, "68 65 6c 6c 6f", EncodeHex([]byte("hello")))
	assert.Equal(t, "", EncodeHex(nil))
}

func TestFormatSendKeys(t *testing.T) {
	got := FormatSendKeys("%4", []byte("ab"))
	assert.Equal(t, "send-keys -t %4 -H 61 62\n", got)
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "no such session", errorMessage("%error 1700000000 5 no such session"))
	assert.Equal(t, "%error", errorMessage("%error"))
}

func TestParseVersionAndAtLeast(t *testing.T) {
	maj, min, ok := parseVersion("tmux 3.4")
	assert.True(t, ok)
	assert.Equal(t, 3, maj)
	assert.Equal(t, 4, min)

	maj, min, ok = parseVersion("tmux next-3.5a")
	assert.True(t, ok)
	assert.Equal(t, 3, maj)
	assert.Equal(t, 5, min)

	_, _, ok = parseVersion("")
	assert.False(t, ok)

	assert.True(t, VersionAtLeast("tmux 3.4", 3, 2))
	assert.True(t, VersionAtLeast("tmux 3.4", 3, 4))
	assert.False(t, VersionAtLeast("tmux 3.2", 3, 4))
	assert.False(t, VersionAtLeast("tmux 2.9", 3, 0))
	assert.False(t, VersionAtLeast("garbage", 3, 0))
}
