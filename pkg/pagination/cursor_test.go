package pagination

import (
	"encoding/base64"
	"strings"
	"testing"
)

func TestEncodeDecodeCursor_RoundTrip(t *testing.T) {
	c := Cursor{
		V:   1,
		Sc:  ScopeDatasets,
		Src: "MyAffiliate",
		Off: 50,
		Ps:  25,
		N:   120,
	}
	tok, err := EncodeCursor(c)
	if err != nil {
		t.Fatalf("EncodeCursor error: %v", err)
	}
	// token should be url-safe base64 (no '+', '/', '=')
	if strings.ContainsAny(tok, "+/=") {
		t.Fatalf("token contains non-url-safe chars: %q", tok)
	}
	out, err := DecodeCursor(tok)
	if err != nil {
		t.Fatalf("DecodeCursor error: %v", err)
	}
	if out.Sc != c.Sc || out.Src != c.Src || out.Off != c.Off || out.Ps != c.Ps || out.N != c.N {
		t.Fatalf("roundtrip mismatch: got %+v want %+v", out, c)
	}
}

func TestDecodeCursor_Invalid(t *testing.T) {
	cases := []string{
		"",    // empty
		"!!!", // not base64
		base64.RawURLEncoding.EncodeToString([]byte("not-json")),
		mustB64(`{"v":1}`),
		mustB64(`{"v":1,"sc":"workbooks","off":0,"ps":10}`),
		mustB64(`{"v":1,"sc":"partners","off":0,"ps":10}`),
		mustB64(`{"v":1,"sc":"datasets","off":-1,"ps":10}`),
		mustB64(`{"v":1,"sc":"datasets","off":0,"ps":0}`),
	}
	for i, tok := range cases {
		if _, err := DecodeCursor(tok); err == nil {
			t.Fatalf("case %d: expected error for token %q", i, tok)
		}
	}
}

func TestPage(t *testing.T) {
	c := Cursor{Sc: ScopeDatasets, Ps: 2}
	start, end, next := Page(c, 5)
	if start != 0 || end != 2 || next == nil || next.Off != 2 {
		t.Fatalf("first page: got %d..%d next=%+v", start, end, next)
	}
	start, end, next = Page(Cursor{Sc: ScopeDatasets, Off: 4, Ps: 2}, 5)
	if start != 4 || end != 5 || next != nil {
		t.Fatalf("last page: got %d..%d next=%+v", start, end, next)
	}
	start, end, _ = Page(Cursor{Sc: ScopeDatasets, Off: 9, Ps: 2}, 5)
	if start != 5 || end != 5 {
		t.Fatalf("past end: got %d..%d", start, end)
	}
}

func FuzzDecodeCursor(f *testing.F) {
	seeds := []string{
		"", "abc", mustB64(`{"v":1}`), mustB64(`{"sc":"datasets"}`),
		mustB64(`{"v":1,"sc":"datasets","off":0,"ps":1}`),
	}
	for _, s := range seeds {
		f.Add(s)
	}
	f.Fuzz(func(t *testing.T, token string) {
		_, _ = DecodeCursor(token)
	})
}

func mustB64(s string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(s))
}
