package dispatch

import (
	"path"

	"github.com/memogarden/memogarden/pkg/pool"
)

// RedactedSentinel replaces a redacted parameter value on the Action fact
//; the real value is
// never written to Soil at all, not even encrypted.
const RedactedSentinel = "***redacted***"

// DefaultRedactedParamPaths are the param-path globs redacted before an
// Action fact is built; paths configured under "redacted_param_paths" are
// added to these. Dotted paths match top-level and nested keys of the
// params map; "*" matches any run of characters, dots included, so
// "*.token" matches "a.token" and "a.b.token", and a leading "*." also
// matches the bare top-level key ("token").
var DefaultRedactedParamPaths = []string{
	"*.password",
	"*.secret",
	"*.token",
	"*.api_key",
	"metadata.credentials",
}

// redactParams returns a copy of params with any value whose dotted path
// matches one of patterns replaced by RedactedSentinel. Matching is
// shallow-recursive: only object (map[string]any) values are descended
// into; arrays are left as-is since param paths name fields, not indices.
// The top-level copy is pool-backed (one redaction pass per verb
// submission is the common case); callers that own the result past the
// audit write must call ReleaseRedacted once it's been serialized.
func redactParams(params map[string]any, patterns []string) map[string]any {
	if len(patterns) == 0 {
		return params
	}
	return redactAt("", params, patterns)
}

// ReleaseRedacted returns the top-level map produced by redactParams to the
// shared pool once the caller is done with it (the Action fact has been
// built and the payload serialized). Only call this when patterns was
// non-empty at the redactParams call site that produced out; otherwise out
// is the caller's original params map, which redactParams never copies and
// which this package does not own.
func ReleaseRedacted(out map[string]any) {
	if out == nil {
		return
	}
	pool.PutMap(out)
}

func redactAt(prefix string, v any, patterns []string) map[string]any {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	var out map[string]any
	if prefix == "" {
		out = pool.GetMap()
	} else {
		out = make(map[string]any, len(m))
	}
	for k, val := range m {
		p := k
		if prefix != "" {
			p = prefix + "." + k
		}
		if matchesAny(p, patterns) {
			out[k] = RedactedSentinel
			continue
		}
		if nested, ok := val.(map[string]any); ok {
			out[k] = redactAt(p, nested, patterns)
			continue
		}
		out[k] = val
	}
	return out
}

func matchesAny(p string, patterns []string) bool {
	for _, pat := range patterns {
		if ok, _ := path.Match(pat, p); ok {
			return true
		}
		// A leading "*." also matches the named key at the top level.
		if len(pat) > 2 && pat[:2] == "*." {
			if ok, _ := path.Match(pat[2:], p); ok {
				return true
			}
		}
	}
	return false
}
