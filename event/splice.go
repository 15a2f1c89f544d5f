package event

import (
	"encoding/json"

	"github.com/tidwall/sjson"
)

// SpliceDecryptedContent returns a copy of a raw m.room.encrypted event
// with its `type` and `content` replaced by the decrypted plaintext's,
// leaving event_id/sender/origin_server_ts untouched. This is the
// concrete mechanism behind "a decrypted event replaces the encrypted
// envelope in the emitted stream."
func SpliceDecryptedContent(raw json.RawMessage, plaintextType string, plaintextContent json.RawMessage) (json.RawMessage, error) {
	out, err := sjson.SetBytes([]byte(raw), "type", plaintextType)
	if err != nil {
		return nil, err
	}
	out, err = sjson.SetRawBytes(out, "content", plaintextContent)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(out), nil
}
