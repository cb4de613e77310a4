package ipc

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	msg := PopupShow("e", []string{"è", "é", "ê", "ë"}, 24, 5000)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, msg))
	assert.Equal(t, byte('\n'), buf.Bytes()[buf.Len()-1])

	decoded, err := Decode(bufio.NewReader(&buf))
	require.NoError(t, err)
	assert.Equal(t, msg, decoded)
}

func TestDecodeMalformedJSON(t *testing.T) {
	r := bufio.NewReader(bytes.NewBufferString("not json\n"))
	_, err := Decode(r)
	assert.Error(t, err)
}

func TestSelectionMessageRoundTrip(t *testing.T) {
	msg := Message{Type: TypeSelection, Index: 2}

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, msg))

	decoded, err := Decode(bufio.NewReader(&buf))
	require.NoError(t, err)
	assert.Equal(t, TypeSelection, decoded.Type)
	assert.Equal(t, 2, decoded.Index)
}

func TestStatusMessageRoundTrip(t *testing.T) {
	msg := Status(true, "fr", []string{"kbd0"}, 300, "0.1.0")

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, msg))

	decoded, err := Decode(bufio.NewReader(&buf))
	require.NoError(t, err)
	assert.Equal(t, "fr", decoded.ActiveLocale)
	assert.Equal(t, []string{"kbd0"}, decoded.Devices)
	assert.True(t, decoded.Enabled)
}
