package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
)

func probe(t *testing.T, h *Handler, path string) (int, result) {
	t.Helper()
	mux := http.NewServeMux()
	h.Register(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return rec.Code, body
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	h := New(Checker{Name: "broken", Check: func(context.Context) error { return errors.New("down") }})
	code, body := probe(t, h, "/healthz")
	if code != http.StatusOK || body.Status != "ok" {
		t.Errorf("got %d %q, want 200 ok", code, body.Status)
	}
	if len(body.Checks) != 0 {
		t.Errorf("liveness ran checks: %v", body.Checks)
	}
}

func TestReadyz(t *testing.T) {
	t.Parallel()

	pass := func(context.Context) error { return nil }
	fail := func(context.Context) error { return errors.New("connection refused") }

	tests := []struct {
		name     string
		checkers []Checker
		wantCode int
		want     map[string]string
	}{
		{
			name:     "no checkers",
			wantCode: http.StatusOK,
		},
		{
			name:     "all pass",
			checkers: []Checker{{Name: "index", Check: pass}, {Name: "postgres", Check: pass}},
			wantCode: http.StatusOK,
			want:     map[string]string{"index": "ok", "postgres": "ok"},
		},
		{
			name:     "one fails",
			checkers: []Checker{{Name: "index", Check: pass}, {Name: "postgres", Check: fail}},
			wantCode: http.StatusServiceUnavailable,
			want:     map[string]string{"index": "ok", "postgres": "fail: connection refused"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			code, body := probe(t, New(tc.checkers...), "/readyz")
			if code != tc.wantCode {
				t.Errorf("status = %d, want %d", code, tc.wantCode)
			}
			for name, want := range tc.want {
				if got := body.Checks[name]; got != want {
					t.Errorf("check %s = %q, want %q", name, got, want)
				}
			}
		})
	}
}

func TestReadyz_CheckDeadline(t *testing.T) {
	t.Parallel()

	h := New(Checker{Name: "slow", Check: func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); !ok {
			return errors.New("no deadline")
		}
		return nil
	}})
	if code, body := probe(t, h, "/readyz"); code != http.StatusOK {
		t.Errorf("status = %d, checks = %v", code, body.Checks)
	}
}

func TestReady(t *testing.T) {
	t.Parallel()

	var built atomic.Bool
	c := Ready("index", built.Load)
	if err := c.Check(context.Background()); err == nil {
		t.Error("check passed before the index was built")
	}
	built.Store(true)
	if err := c.Check(context.Background()); err != nil {
		t.Errorf("check after build: %v", err)
	}
}

func TestPing(t *testing.T) {
	t.Parallel()

	want := errors.New("pool closed")
	c := Ping("postgres", func(context.Context) error { return want })
	if err := c.Check(context.Background()); !errors.Is(err, want) {
		t.Errorf("got %v, want %v", err, want)
	}
}

func TestWritableDir(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "out")
	if err := WritableDir("output", dir).Check(context.Background()); err != nil {
		t.Fatalf("check: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("probe file left behind: %v", entries)
	}

	file := filepath.Join(t.TempDir(), "plain")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	err = WritableDir("output", file).Check(context.Background())
	if err == nil || !strings.Contains(err.Error(), "plain") {
		t.Errorf("got %v, want error naming the path", err)
	}
}
