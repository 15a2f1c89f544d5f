package event

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpliceDecryptedContentPreservesEnvelopeFields(t *testing.T) {
	raw := json.RawMessage(`{"type":"m.room.encrypted","event_id":"$abc","sender":"@alice:example.org","origin_server_ts":123,"content":{"algorithm":"m.megolm.v1.aes-sha2","ciphertext":"..."}}`)

	spliced, err := SpliceDecryptedContent(raw, "m.room.message", json.RawMessage(`{"msgtype":"m.text","body":"hi"}`))
	require.NoError(t, err)

	assert.Equal(t, "m.room.message", gjsonString(t, spliced, "type"))
	assert.Equal(t, "$abc", gjsonString(t, spliced, "event_id"))
	assert.Equal(t, "@alice:example.org", gjsonString(t, spliced, "sender"))
	assert.Equal(t, "hi", gjsonString(t, spliced, "content.body"))
}

func gjsonString(t *testing.T, raw json.RawMessage, path string) string {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	cur := any(m)
	for _, part := range splitPath(path) {
		asMap, ok := cur.(map[string]any)
		require.True(t, ok, "path %q does not resolve through a map", path)
		cur = asMap[part]
	}
	s, ok := cur.(string)
	require.True(t, ok, "value at %q is not a string: %#v", path, cur)
	return s
}

func splitPath(path string) []string {
	var out []string
	start := 0
	for i := 0; i < len(path); i++ {
		if path[i] == '.' {
			out = append(out, path[start:i])
			start = i + 1
		}
	}
	out = append(out, path[start:])
	return out
}
