package assemble

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestAssembler_Headers(t *testing.T) {
	a := New()

	lines := []string{
		"HTTP/1.1 200 OK\r\n",
		"Content-Type: text/plain\r\n",
		"  X-Test :  1  \r\n",
		"Location: http://example.com/a:b\r\n",
		"no separator here\r\n",
		"\r\n",
	}
	for _, l := range lines {
		a.HeaderLine([]byte(l))
	}

	resp := a.Freeze(200, "http://example.com/")

	want := map[string]string{
		"content-type": "text/plain",
		"x-test":       "1",
		"location":     "http://example.com/a:b",
	}
	if diff := cmp.Diff(want, resp.Headers); diff != "" {
		t.Errorf("headers mismatch (-want +got):\n%s", diff)
	}
	if got := resp.Header("X-TEST"); got != "1" {
		t.Errorf("Header(X-TEST) = %q, want 1", got)
	}
}

func TestAssembler_RepeatedHeaderLastWins(t *testing.T) {
	a := New()
	a.HeaderLine([]byte("Set-Cookie: a=1"))
	a.HeaderLine([]byte("set-cookie: b=2"))

	resp := a.Freeze(200, "")
	if got := resp.Headers["set-cookie"]; got != "b=2" {
		t.Errorf("set-cookie = %q, want last value b=2", got)
	}
}

func TestAssembler_Latin1(t *testing.T) {
	a := New()
	a.HeaderLine([]byte("X-Name: caf\xe9"))

	resp := a.Freeze(200, "")
	if got := resp.Headers["x-name"]; got != "café" {
		t.Errorf("x-name = %q, want café", got)
	}
}

func TestAssembler_Body(t *testing.T) {
	a := New()
	for _, chunk := range []string{"hello", ", ", "", "world"} {
		if _, err := a.Write([]byte(chunk)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if a.Len() != 12 {
		t.Errorf("Len = %d, want 12", a.Len())
	}

	resp := a.Freeze(201, "http://example.com/final")
	if string(resp.Body) != "hello, world" {
		t.Errorf("body = %q", resp.Body)
	}
	if resp.StatusCode != 201 || resp.EffectiveURL != "http://example.com/final" {
		t.Errorf("status/url = %d %q", resp.StatusCode, resp.EffectiveURL)
	}

	if _, err := a.Write([]byte("late")); !errors.Is(err, ErrFrozen) {
		t.Errorf("write after freeze: got %v, want ErrFrozen", err)
	}
	a.HeaderLine([]byte("X-Late: 1"))
	if _, ok := resp.Headers["x-late"]; ok {
		t.Error("header accepted after freeze")
	}
}
