package store

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/sparrowreader/microsub/internal/model"
)

type cursorWire struct {
	T string `json:"t"`
	I string `json:"i"`
}

// EncodeCursor opaquely encodes a (published, id) pair per §4.3/§9:
// base64url(json{t, i}) with full ISO-8601 precision.
func EncodeCursor(c model.Cursor) string {
	wire := cursorWire{T: c.T.UTC().Format(time.RFC3339Nano), I: c.I}
	data, _ := json.Marshal(wire)
	return base64.RawURLEncoding.EncodeToString(data)
}

// DecodeCursor reverses EncodeCursor, rejecting malformed tokens rather
// than guessing at a best-effort parse.
func DecodeCursor(token string) (model.Cursor, error) {
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return model.Cursor{}, err
	}
	var wire cursorWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return model.Cursor{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, wire.T)
	if err != nil {
		return model.Cursor{}, err
	}
	return model.Cursor{T: t, I: wire.I}, nil
}
