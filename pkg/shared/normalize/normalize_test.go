package normalize

import (
	"testing"
)

func mustFingerprinter(t *testing.T, keys []string, jq string) *Fingerprinter {
	t.Helper()
	f, err := NewFingerprinter(keys, jq)
	if err != nil {
		t.Fatalf("fingerprinter: %v", err)
	}
	return f
}

func TestFingerprintKeyOrderInsensitive(t *testing.T) {
	f := mustFingerprinter(t, nil, "")
	a := f.Fingerprint([]byte(`{"reels":[1,2,3],"win":5}`))
	b := f.Fingerprint([]byte(`{"win":5,"reels":[1,2,3]}`))
	if a != b {
		t.Fatalf("key order changed the fingerprint: %s != %s", a, b)
	}
}

func TestFingerprintStripsVolatileKeysRecursively(t *testing.T) {
	f := mustFingerprinter(t, DefaultVolatileKeys, "")
	a := f.Fingerprint([]byte(`{"win":5,"token":"abc","meta":{"nonce":"x1","round":7}}`))
	b := f.Fingerprint([]byte(`{"win":5,"token":"def","meta":{"nonce":"y2","round":7}}`))
	if a != b {
		t.Fatalf("volatile keys not stripped: %s != %s", a, b)
	}
	c := f.Fingerprint([]byte(`{"win":6,"token":"abc","meta":{"nonce":"x1","round":7}}`))
	if a == c {
		t.Fatalf("distinct payloads collided")
	}
}

func TestFingerprintVolatileKeysCaseInsensitive(t *testing.T) {
	f := mustFingerprinter(t, []string{"Token"}, "")
	a := f.Fingerprint([]byte(`{"win":5,"TOKEN":"abc"}`))
	b := f.Fingerprint([]byte(`{"win":5,"TOKEN":"def"}`))
	if a != b {
		t.Fatalf("volatile key matching must be case insensitive")
	}
}

func TestFingerprintJQRule(t *testing.T) {
	f := mustFingerprinter(t, nil, `{result: .data.result}`)
	a := f.Fingerprint([]byte(`{"data":{"result":[1,2,3]},"trace":"t1"}`))
	b := f.Fingerprint([]byte(`{"data":{"result":[1,2,3]},"trace":"t2"}`))
	if a != b {
		t.Fatalf("jq rule should project away the trace field")
	}
}

func TestFingerprintRejectsInvalidJQ(t *testing.T) {
	if _, err := NewFingerprinter(nil, `.data |`); err == nil {
		t.Fatalf("expected error for malformed jq expression")
	}
}

func TestFingerprintNonJSONFallsBackToRawBytes(t *testing.T) {
	f := mustFingerprinter(t, DefaultVolatileKeys, "")
	a := f.Fingerprint([]byte("binary\x00frame"))
	b := f.Fingerprint([]byte("binary\x00frame"))
	if a != b {
		t.Fatalf("raw fallback must be deterministic")
	}
	if a == f.Fingerprint([]byte("other")) {
		t.Fatalf("distinct raw payloads collided")
	}
}

func TestNumberDeterministicAcrossSiblingObjects(t *testing.T) {
	payload := []byte(`{"b":{"bet":2},"a":{"bet":1}}`)
	for i := 0; i < 50; i++ {
		got, ok := Number(payload, []string{"bet"})
		if !ok || got != 1 {
			t.Fatalf("expected bet 1 from the lexicographically first sibling, got (%v, %v)", got, ok)
		}
	}
}

func TestNumberExtraction(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		keys    []string
		want    float64
		ok      bool
	}{
		{"top level", `{"bet":2.5}`, []string{"bet"}, 2.5, true},
		{"nested", `{"round":{"bet":3}}`, []string{"bet"}, 3, true},
		{"inside array", `{"actions":[{"type":"spin","bet":1.2}]}`, []string{"bet"}, 1.2, true},
		{"numeric string", `{"bet":"0.40"}`, []string{"bet"}, 0.4, true},
		{"key priority", `{"stake":5,"bet":2}`, []string{"bet", "stake"}, 2, true},
		{"fallback key", `{"stake":5}`, []string{"bet", "stake"}, 5, true},
		{"case insensitive", `{"Bet":7}`, []string{"bet"}, 7, true},
		{"absent", `{"win":9}`, []string{"bet"}, 0, false},
		{"non numeric value", `{"bet":"all-in"}`, []string{"bet"}, 0, false},
		{"not json", `spin!`, []string{"bet"}, 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Number([]byte(tc.payload), tc.keys)
			if ok != tc.ok || got != tc.want {
				t.Fatalf("Number(%s, %v) = (%v, %v), want (%v, %v)", tc.payload, tc.keys, got, ok, tc.want, tc.ok)
			}
		})
	}
}
