package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestTransport(t *testing.T, opts ...HTTPOption) *HTTPTransport {
	t.Helper()
	tr, err := NewHTTPTransport(opts...)
	if err != nil {
		t.Fatalf("NewHTTPTransport() error = %v", err)
	}
	return tr
}

func TestHTTPTransportFetch(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "hello")
	})
	mux.HandleFunc("/big", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, strings.Repeat("x", 1024))
	})
	mux.HandleFunc("/throttle", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	})
	mux.HandleFunc("/gone", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusGone)
	})
	mux.HandleFunc("/loop", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/loop", http.StatusFound)
	})
	mux.HandleFunc("/hop", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ok", http.StatusMovedPermanently)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	tr := newTestTransport(t, WithMaxRedirects(3))
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		t.Parallel()
		data, err := tr.Fetch(ctx, server.URL+"/ok", 100)
		if err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
		if string(data) != "hello" {
			t.Errorf("Fetch() = %q, want hello", data)
		}
	})

	t.Run("follows redirect", func(t *testing.T) {
		t.Parallel()
		data, err := tr.Fetch(ctx, server.URL+"/hop", 0)
		if err != nil || string(data) != "hello" {
			t.Errorf("Fetch() = %q, %v", data, err)
		}
	})

	t.Run("not found", func(t *testing.T) {
		t.Parallel()
		_, err := tr.Fetch(ctx, server.URL+"/missing", 0)
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Fetch() error = %v, want ErrNotFound", err)
		}
		_, err = tr.Fetch(ctx, server.URL+"/gone", 0)
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Fetch(gone) error = %v, want ErrNotFound", err)
		}
	})

	t.Run("too large", func(t *testing.T) {
		t.Parallel()
		_, err := tr.Fetch(ctx, server.URL+"/big", 100)
		if !errors.Is(err, ErrTooLarge) {
			t.Errorf("Fetch() error = %v, want ErrTooLarge", err)
		}
	})

	t.Run("throttled", func(t *testing.T) {
		t.Parallel()
		_, err := tr.Fetch(ctx, server.URL+"/throttle", 0)
		var se *StatusError
		if !errors.As(err, &se) {
			t.Fatalf("Fetch() error = %v, want *StatusError", err)
		}
		if !se.Throttled() || !se.Temporary() {
			t.Errorf("status 429 should be throttled and temporary: %+v", se)
		}
		if !se.HasRetryAfter || se.RetryAfter != 7*time.Second {
			t.Errorf("RetryAfter = %v (%v), want 7s", se.RetryAfter, se.HasRetryAfter)
		}
	})

	t.Run("redirect loop", func(t *testing.T) {
		t.Parallel()
		_, err := tr.Fetch(ctx, server.URL+"/loop", 0)
		if !errors.Is(err, ErrTooManyRedirects) {
			t.Errorf("Fetch() error = %v, want ErrTooManyRedirects", err)
		}
	})

	t.Run("exists", func(t *testing.T) {
		t.Parallel()
		ok, err := tr.Exists(ctx, server.URL+"/ok")
		if err != nil || !ok {
			t.Errorf("Exists(ok) = %v, %v", ok, err)
		}
		ok, err = tr.Exists(ctx, server.URL+"/missing")
		if err != nil || ok {
			t.Errorf("Exists(missing) = %v, %v", ok, err)
		}
	})
}

func TestHTTPTransportRedirectCheck(t *testing.T) {
	t.Parallel()

	blocked := errors.New("blocked")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/start" {
			http.Redirect(w, r, "/private", http.StatusFound)
			return
		}
		fmt.Fprint(w, "secret")
	}))
	t.Cleanup(server.Close)

	tr := newTestTransport(t, WithRedirectCheck(func(_ context.Context, target *url.URL) error {
		if target.Path == "/private" {
			return blocked
		}
		return nil
	}))

	_, err := tr.Fetch(context.Background(), server.URL+"/start", 0)
	if !errors.Is(err, blocked) {
		t.Errorf("Fetch() error = %v, want redirect check error", err)
	}
}

func TestHTTPTransportSiteInjection(t *testing.T) {
	t.Parallel()

	type seen struct {
		cookie, token, ua string
	}
	got := make(chan seen, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got <- seen{r.Header.Get("Cookie"), r.Header.Get("X-Token"), r.Header.Get("User-Agent")}
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(server.Close)

	u, _ := url.Parse(server.URL) //nolint:errcheck // httptest URL is always valid
	tr := newTestTransport(t,
		WithUserAgent("burrow-test"),
		WithSites(func(host string) (Site, bool) {
			if host != u.Hostname() {
				return Site{}, false
			}
			return Site{Cookie: "session=abc", Headers: map[string]string{"X-Token": "t1"}}, true
		}),
	)

	if _, err := tr.Fetch(context.Background(), server.URL, 0); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	s := <-got
	if s.cookie != "session=abc" || s.token != "t1" || s.ua != "burrow-test" {
		t.Errorf("injected headers = %+v", s)
	}
}

func TestFileTransport(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("abc"), 0o600); err != nil {
		t.Fatal(err)
	}
	loc, err := FileLocation(filepath.Join(dir, "a.txt"))
	if err != nil {
		t.Fatal(err)
	}
	missing, _ := FileLocation(filepath.Join(dir, "nope.txt")) //nolint:errcheck // abs of temp path

	tr := NewFileTransport(WithRoot(dir))
	ctx := context.Background()

	data, err := tr.Fetch(ctx, loc, 10)
	if err != nil || string(data) != "abc" {
		t.Errorf("Fetch() = %q, %v", data, err)
	}
	if _, err := tr.Fetch(ctx, loc, 2); !errors.Is(err, ErrTooLarge) {
		t.Errorf("Fetch(limit 2) error = %v, want ErrTooLarge", err)
	}
	if _, err := tr.Fetch(ctx, missing, 0); !errors.Is(err, ErrNotFound) {
		t.Errorf("Fetch(missing) error = %v, want ErrNotFound", err)
	}
	if ok, err := tr.Exists(ctx, loc); err != nil || !ok {
		t.Errorf("Exists() = %v, %v", ok, err)
	}
	if ok, err := tr.Exists(ctx, missing); err != nil || ok {
		t.Errorf("Exists(missing) = %v, %v", ok, err)
	}

	outside, _ := FileLocation(filepath.Dir(dir)) //nolint:errcheck // abs of temp path
	if _, err := tr.Fetch(ctx, outside+"/x", 0); !errors.Is(err, ErrOutsideRoot) {
		t.Errorf("Fetch(outside) error = %v, want ErrOutsideRoot", err)
	}
}

type stubTransport struct {
	schemes []string
	data    string
}

func (s stubTransport) Schemes() []string { return s.schemes }

func (s stubTransport) Fetch(context.Context, string, int64) ([]byte, error) {
	return []byte(s.data), nil
}

func (s stubTransport) Exists(context.Context, string) (bool, error) { return true, nil }

func TestRegistry(t *testing.T) {
	t.Parallel()

	r := NewRegistry(NewFileTransport())
	if err := r.Register(stubTransport{schemes: []string{"GIT", "git+ssh"}, data: "repo"}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := r.Register(stubTransport{}); !errors.Is(err, ErrNoSchemes) {
		t.Errorf("Register(no schemes) error = %v, want ErrNoSchemes", err)
	}

	want := []string{"file", "git", "git+ssh"}
	if got := r.Schemes(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Schemes() = %v, want %v", got, want)
	}

	data, err := r.Fetch(context.Background(), "git://example.org/repo", 0)
	if err != nil || string(data) != "repo" {
		t.Errorf("Fetch(git) = %q, %v", data, err)
	}
	if _, err := r.Fetch(context.Background(), "ftp://example.org/x", 0); !errors.Is(err, ErrUnsupportedScheme) {
		t.Errorf("Fetch(ftp) error = %v, want ErrUnsupportedScheme", err)
	}
	if _, err := r.For("relative/path"); !errors.Is(err, ErrUnsupportedScheme) {
		t.Errorf("For(relative) error = %v, want ErrUnsupportedScheme", err)
	}
}

func TestParseRetryAfter(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tests := []struct {
		name   string
		value  string
		want   time.Duration
		wantOK bool
	}{
		{name: "seconds", value: "120", want: 2 * time.Minute, wantOK: true},
		{name: "date", value: now.Add(30 * time.Second).Format(http.TimeFormat), want: 30 * time.Second, wantOK: true},
		{name: "past date", value: now.Add(-time.Hour).Format(http.TimeFormat), want: 0, wantOK: true},
		{name: "empty", value: "", wantOK: false},
		{name: "negative", value: "-3", wantOK: false},
		{name: "garbage", value: "soon", wantOK: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := ParseRetryAfter(tt.value, now)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("ParseRetryAfter(%q) = %v, %v; want %v, %v", tt.value, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestStatusError(t *testing.T) {
	t.Parallel()

	unavailable := &StatusError{StatusCode: http.StatusServiceUnavailable}
	if unavailable.Throttled() {
		t.Error("503 without Retry-After is not a throttle")
	}
	unavailable.HasRetryAfter = true
	if !unavailable.Throttled() {
		t.Error("503 with Retry-After is a throttle")
	}
	if (&StatusError{StatusCode: http.StatusForbidden}).Temporary() {
		t.Error("403 is not temporary")
	}
}
