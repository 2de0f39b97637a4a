// Package canon implements canonical JSON serialization and SHA-256 hashing
// used throughout the pipeline for checksums, request fingerprints, and
// rollup-key hashes.
package canon

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// JSON returns the canonical JSON encoding of v: object keys sorted
// lexicographically at every nesting level, no insignificant whitespace,
// array order preserved. v is first round-tripped through encoding/json so
// that struct values, maps, and already-decoded any values are normalized
// the same way.
func JSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canon: marshal: %w", err)
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("canon: unmarshal: %w", err)
	}
	var buf []byte
	buf, err = appendCanonical(buf, generic)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

// MustJSON is JSON but panics on error; used only for values known to be
// JSON-marshalable (maps/slices/structs built internally, never raw user
// bytes).
func MustJSON(v any) []byte {
	b, err := JSON(v)
	if err != nil {
		panic(err)
	}
	return b
}

func appendCanonical(buf []byte, v any) ([]byte, error) {
	switch val := v.(type) {
	case nil:
		return append(buf, "null"...), nil
	case bool:
		if val {
			return append(buf, "true"...), nil
		}
		return append(buf, "false"...), nil
	case string:
		encoded, err := json.Marshal(val)
		if err != nil {
			return nil, err
		}
		return append(buf, encoded...), nil
	case float64:
		encoded, err := json.Marshal(val)
		if err != nil {
			return nil, err
		}
		return append(buf, encoded...), nil
	case json.Number:
		return append(buf, val.String()...), nil
	case []any:
		buf = append(buf, '[')
		for i, item := range val {
			if i > 0 {
				buf = append(buf, ',')
			}
			var err error
			buf, err = appendCanonical(buf, item)
			if err != nil {
				return nil, err
			}
		}
		return append(buf, ']'), nil
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf = append(buf, '{')
		for i, k := range keys {
			if i > 0 {
				buf = append(buf, ',')
			}
			keyEncoded, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			buf = append(buf, keyEncoded...)
			buf = append(buf, ':')
			buf, err = appendCanonical(buf, val[k])
			if err != nil {
				return nil, err
			}
		}
		return append(buf, '}'), nil
	default:
		return nil, fmt.Errorf("canon: unsupported type %T", v)
	}
}

// SHA256Hex returns the lowercase hex SHA-256 digest of b.
func SHA256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Hash canonicalizes v and returns the SHA-256 hex digest of the result,
// along with the canonical bytes themselves (callers frequently need both:
// the bytes to persist as an artifact, the digest as its checksum).
func Hash(v any) (digest string, canonical []byte, err error) {
	canonical, err = JSON(v)
	if err != nil {
		return "", nil, err
	}
	return SHA256Hex(canonical), canonical, nil
}
