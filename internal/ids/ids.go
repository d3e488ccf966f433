// Package ids provides the prefixed identifier and canonical hashing
// primitives shared by every layer of MemoGarden: Soil (immutable facts,
// "soil_" prefix) and Core (mutable entities and active user relations,
// "core_" prefix).
package ids

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Layer names a storage layer. A bare identifier's prefix is always one of
// these.
type Layer string

const (
	Soil Layer = "soil"
	Core Layer = "core"
)

// ErrUnknownPrefix is returned by ParseID when the identifier carries a
// prefix that is neither "soil" nor "core".
var ErrUnknownPrefix = errors.New("ids: unknown identifier prefix")

// Epoch is the fixed reference point for time-horizon and created_at day
// arithmetic.
var Epoch = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

// NowFunc is the wall clock used throughout the package; tests may override
// it to pin "today".
var NowFunc = time.Now

// NewID mints a fresh prefixed identifier for the given layer.
func NewID(layer Layer) string {
	return string(layer) + "_" + uuid.New().String()
}

// ParseID splits a prefixed identifier into its layer and opaque part. It
// fails with ErrUnknownPrefix if the prefix is not "soil" or "core".
func ParseID(id string) (Layer, string, error) {
	idx := strings.IndexByte(id, '_')
	if idx < 0 {
		return "", "", fmt.Errorf("ids: %q has no prefix", id)
	}
	prefix, opaque := id[:idx], id[idx+1:]
	switch Layer(prefix) {
	case Soil, Core:
		return Layer(prefix), opaque, nil
	default:
		return "", "", fmt.Errorf("%w: %q", ErrUnknownPrefix, prefix)
	}
}

// Normalize accepts a bare or prefixed identifier and returns the fully
// prefixed form, using defaultLayer when the id has no underscore at all.
// An id whose prefix is not a recognized layer is an error.
// Writes must always store the prefixed form; reads may pass either.
func Normalize(id string, defaultLayer Layer) (string, error) {
	if id == "" {
		return "", errors.New("ids: empty identifier")
	}
	_, _, err := ParseID(id)
	switch {
	case err == nil:
		return id, nil
	case errors.Is(err, ErrUnknownPrefix):
		return "", err
	default:
		// No underscore at all: treat the whole string as opaque.
		return string(defaultLayer) + "_" + id, nil
	}
}

// HasLayer reports whether id carries the given layer's prefix.
func HasLayer(id string, layer Layer) bool {
	return strings.HasPrefix(id, string(layer)+"_")
}

// Repin changes an identifier's layer prefix while keeping its opaque part,
// used when a user relation fossilizes from Core into Soil.
func Repin(id string, newLayer Layer) (string, error) {
	_, opaque, err := ParseID(id)
	if err != nil {
		return "", err
	}
	return string(newLayer) + "_" + opaque, nil
}

// CanonicalJSON serializes v with sorted object keys, compact separators,
// and no HTML escaping, so that two payloads with the same logical content
// hash identically regardless of struct field order, map iteration order,
// or numeric literal form (1 vs 1.0).
func CanonicalJSON(v any) ([]byte, error) {
	raw, err := marshalCompact(v)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := encodeCanonical(&buf, generic); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func marshalCompact(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	// Encode appends a trailing newline; canonical form has none.
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func encodeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := marshalCompact(k)
			if err != nil {
				return err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := encodeCanonical(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case []any:
		buf.WriteByte('[')
		for i, e := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeCanonical(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	default:
		b, err := marshalCompact(val)
		if err != nil {
			return err
		}
		buf.Write(b)
	}
	return nil
}

// HashBytes computes hash(payload) = SHA-256(payload ⧺ "|" ⧺ priorHash).
// priorHash is empty for the first record in a chain.
func HashBytes(payload []byte, priorHash string) string {
	h := sha256.New()
	h.Write(payload)
	h.Write([]byte{'|'})
	h.Write([]byte(priorHash))
	return hex.EncodeToString(h.Sum(nil))
}

// Hash canonicalizes payload and feeds it through HashBytes.
func Hash(payload any, priorHash string) (string, error) {
	cj, err := CanonicalJSON(payload)
	if err != nil {
		return "", err
	}
	return HashBytes(cj, priorHash), nil
}

// CurrentDay returns the integer number of whole days elapsed since Epoch,
// UTC. Used for time-horizon arithmetic and created_at day stamps.
func CurrentDay() int {
	return int(NowFunc().UTC().Sub(Epoch).Hours() / 24)
}

// DayToDate converts a day-since-epoch integer back to a UTC time.
func DayToDate(day int) time.Time {
	return Epoch.AddDate(0, 0, day)
}

// DiagnosticID mints a sortable identifier for internal_error diagnostics:
// "diag_", the current UTC instant to the microsecond, and 8 random
// characters (no hashing), so operators can grep and order occurrences by
// time without a database lookup.
func DiagnosticID() string {
	now := NowFunc().UTC()
	rnd := uuid.New().String()[:8]
	return fmt.Sprintf("diag_%s_%s", now.Format("20060102T150405.000000"), rnd)
}
