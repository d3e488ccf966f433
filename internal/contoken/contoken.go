// Package contoken implements the opaque continuation tokens used by
// search, track, and explore. A token encodes the verb that minted it,
// a monotonic cursor, and a checksum so a token minted by one verb can't be
// silently replayed against another.
package contoken

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/memogarden/memogarden/internal/ids"
)

// ErrInvalid is returned for a malformed, tampered, or verb-mismatched
// token.
var ErrInvalid = errors.New("contoken: invalid continuation token")

type payload struct {
	Verb     string `json:"v"`
	Cursor   int64  `json:"c"`
	Checksum string `json:"x"`
}

func checksum(verb string, cursor int64) string {
	return ids.HashBytes([]byte(fmt.Sprintf("%s:%d", verb, cursor)), "")[:16]
}

// Encode mints a continuation token bound to verb and cursor.
func Encode(verb string, cursor int64) string {
	p := payload{Verb: verb, Cursor: cursor}
	p.Checksum = checksum(verb, cursor)
	raw, _ := json.Marshal(p)
	return base64.RawURLEncoding.EncodeToString(raw)
}

// Decode validates token was minted for verb and recovers its cursor.
func Decode(verb, token string) (int64, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if p.Verb != verb {
		return 0, fmt.Errorf("%w: minted for %q, used with %q", ErrInvalid, p.Verb, verb)
	}
	if p.Checksum != checksum(p.Verb, p.Cursor) {
		return 0, fmt.Errorf("%w: checksum mismatch", ErrInvalid)
	}
	return p.Cursor, nil
}
