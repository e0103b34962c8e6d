package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/itchyny/gojq"
)

// DefaultVolatileKeys are stripped before fingerprinting unless the
// configuration overrides the list. The correct set depends on the external
// payload schema, so it is a configuration input, not a constant contract.
var DefaultVolatileKeys = []string{
	"timestamp", "time", "ts", "nonce", "session", "session_id", "token", "request_id",
}

// Fingerprinter canonicalizes response payloads and digests them. The
// canonical form is JSON with lexicographically sorted object keys and the
// configured volatile keys removed, optionally after a jq reshaping rule.
type Fingerprinter struct {
	volatile map[string]bool
	code     *gojq.Code
}

func NewFingerprinter(volatileKeys []string, jqExpr string) (*Fingerprinter, error) {
	f := &Fingerprinter{volatile: make(map[string]bool, len(volatileKeys))}
	for _, k := range volatileKeys {
		f.volatile[strings.ToLower(strings.TrimSpace(k))] = true
	}
	if jqExpr != "" {
		q, err := gojq.Parse(jqExpr)
		if err != nil {
			return nil, fmt.Errorf("invalid fingerprint jq expression: %w", err)
		}
		code, err := gojq.Compile(q)
		if err != nil {
			return nil, fmt.Errorf("failed to compile fingerprint jq expression: %w", err)
		}
		f.code = code
	}
	return f, nil
}

// Fingerprint returns the hex sha256 of the canonical payload. Non-JSON
// payloads are digested as raw bytes.
func (f *Fingerprinter) Fingerprint(payload []byte) string {
	canonical, err := f.Canonical(payload)
	if err != nil {
		sum := sha256.Sum256(payload)
		return hex.EncodeToString(sum[:])
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}

// Canonical normalizes a JSON payload: jq rule first (when configured), then
// recursive volatile-key removal, then re-marshalling. encoding/json emits
// map keys in sorted order, which makes the result key-order insensitive.
func (f *Fingerprinter) Canonical(payload []byte) ([]byte, error) {
	var v any
	if err := json.Unmarshal(payload, &v); err != nil {
		return nil, err
	}
	if f.code != nil {
		iter := f.code.Run(v)
		out, ok := iter.Next()
		if !ok {
			return nil, fmt.Errorf("fingerprint jq rule produced no output")
		}
		if err, isErr := out.(error); isErr {
			return nil, fmt.Errorf("fingerprint jq rule failed: %w", err)
		}
		v = out
	}
	f.stripNode(&v)
	return json.Marshal(v)
}

func (f *Fingerprinter) stripNode(n *any) {
	switch t := (*n).(type) {
	case map[string]any:
		for k, v := range t {
			if f.volatile[strings.ToLower(k)] {
				delete(t, k)
				continue
			}
			vv := any(v)
			f.stripNode(&vv)
			t[k] = vv
		}
	case []any:
		for i := range t {
			vv := any(t[i])
			f.stripNode(&vv)
			t[i] = vv
		}
	}
}

// Number extracts the first numeric value found under any of the given keys,
// searched in key-priority order, descending into objects and arrays. Used to
// pull bet sizes and outcomes out of schema-dependent payloads.
func Number(payload []byte, keys []string) (float64, bool) {
	var v any
	if err := json.Unmarshal(payload, &v); err != nil {
		return 0, false
	}
	for _, k := range keys {
		if n, ok := findNumber(v, strings.ToLower(k)); ok {
			return n, true
		}
	}
	return 0, false
}

func findNumber(v any, key string) (float64, bool) {
	switch t := v.(type) {
	case map[string]any:
		// walk keys in sorted order so a key present under several siblings
		// always resolves to the same value
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if strings.ToLower(k) == key {
				if n, ok := asNumber(t[k]); ok {
					return n, true
				}
			}
		}
		for _, k := range keys {
			if n, ok := findNumber(t[k], key); ok {
				return n, true
			}
		}
	case []any:
		for _, val := range t {
			if n, ok := findNumber(val, key); ok {
				return n, true
			}
		}
	}
	return 0, false
}

func asNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		var n float64
		if _, err := fmt.Sscanf(t, "%g", &n); err == nil {
			return n, true
		}
	}
	return 0, false
}
