package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nao1215/burrow/internal/client"
	"github.com/nao1215/burrow/internal/database"
	"github.com/nao1215/burrow/internal/report"
)

func TestDiscoverCmd(t *testing.T) {
	t.Parallel()

	site := writeSite(t, false)
	env := newTestEnv(t, "")

	stdout, _, err := env.run(t, "discover", site)
	if err != nil {
		t.Fatalf("discover failed: %v", err)
	}
	for _, want := range []string{"burrow  file://", "Test site", "burrow/0.2.0/burrow", "Entries:  4"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("output missing %q:\n%s", want, stdout)
		}
	}
}

func TestDiscoverCmdNoManifest(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, "")

	_, stderr, err := env.run(t, "discover", t.TempDir())
	if !errors.Is(err, client.ErrNoManifest) {
		t.Fatalf("err = %v, want ErrNoManifest", err)
	}
	if !strings.Contains(stderr, "location(s) tried") {
		t.Errorf("stderr should count the attempts:\n%s", stderr)
	}
}

func TestListCmd(t *testing.T) {
	t.Parallel()

	site := writeSite(t, false)
	env := newTestEnv(t, "")

	stdout, _, err := env.run(t, "list", site)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	for _, want := range []string{"notes", "guide", "sub", "ext", "sha256:2cf24dba5fb0", "5 B"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("output missing %q:\n%s", want, stdout)
		}
	}
}

func TestFetchCmd(t *testing.T) {
	t.Parallel()

	t.Run("should write verified content to stdout", func(t *testing.T) {
		t.Parallel()

		site := writeSite(t, false)
		env := newTestEnv(t, "")

		stdout, _, err := env.run(t, "fetch", site, "notes")
		if err != nil {
			t.Fatalf("fetch failed: %v", err)
		}
		if stdout != "hello" {
			t.Errorf("stdout = %q, want %q", stdout, "hello")
		}
	})

	t.Run("should write content to a file", func(t *testing.T) {
		t.Parallel()

		site := writeSite(t, false)
		env := newTestEnv(t, "")
		out := filepath.Join(t.TempDir(), "nested", "notes.txt")

		stdout, stderr, err := env.run(t, "fetch", "-o", out, site, "notes")
		if err != nil {
			t.Fatalf("fetch failed: %v", err)
		}
		if stdout != "" {
			t.Errorf("stdout should be empty, got %q", stdout)
		}
		if !strings.Contains(stderr, "verified sha256:"+helloSHA256) {
			t.Errorf("stderr = %q", stderr)
		}
		data, err := os.ReadFile(out) //nolint:gosec // test file
		if err != nil {
			t.Fatal(err)
		}
		if string(data) != "hello" {
			t.Errorf("file content = %q", data)
		}
	})

	t.Run("should fail for an unknown id", func(t *testing.T) {
		t.Parallel()

		site := writeSite(t, false)
		env := newTestEnv(t, "")

		_, _, err := env.run(t, "fetch", site, "missing")
		if !errors.Is(err, client.ErrUnknownEntry) {
			t.Errorf("err = %v, want ErrUnknownEntry", err)
		}
	})

	t.Run("should discover the burrow below a site root", func(t *testing.T) {
		t.Parallel()

		site := t.TempDir()
		writeFile(t, site, "burrow.json",
			`{"formatVersion":"burrow/0.2.0/burrow","kind":"burrow","entries":[{"id":"readme","kind":"file","uri":"README"}]}`)
		writeFile(t, site, "README", "read me")
		env := newTestEnv(t, "")

		stdout, _, err := env.run(t, "fetch", site, "readme")
		if err != nil {
			t.Fatalf("fetch failed: %v", err)
		}
		if stdout != "read me" {
			t.Errorf("stdout = %q", stdout)
		}
	})

	t.Run("should refuse a location that only has a warren", func(t *testing.T) {
		t.Parallel()

		site := t.TempDir()
		writeFile(t, site, ".warren.json",
			`{"formatVersion":"burrow/0.2.0/warren","kind":"warren","burrows":[{"id":"docs","uri":"docs/"}]}`)
		env := newTestEnv(t, "")

		_, _, err := env.run(t, "fetch", site, "docs")
		if !errors.Is(err, client.ErrUnexpectedKind) {
			t.Errorf("err = %v, want ErrUnexpectedKind", err)
		}
	})

	t.Run("should not write content that fails verification", func(t *testing.T) {
		t.Parallel()

		site := writeSite(t, true)
		env := newTestEnv(t, "")
		out := filepath.Join(t.TempDir(), "bad.txt")

		_, _, err := env.run(t, "fetch", "-o", out, site, "bad")
		if !errors.Is(err, report.CategoryHashMismatch) {
			t.Errorf("err = %v, want hash mismatch", err)
		}
		if _, statErr := os.Stat(out); !os.IsNotExist(statErr) {
			t.Errorf("output file should not exist, stat err = %v", statErr)
		}
	})
}

func TestTraverseCmd(t *testing.T) {
	t.Parallel()

	site := writeSite(t, false)
	env := newTestEnv(t, "")

	stdout, _, err := env.run(t, "traverse", "--content", site)
	if err != nil {
		t.Fatalf("traverse failed: %v", err)
	}
	for _, want := range []string{
		"notes [file]",
		"fetched 5 B, verified",
		"sub [dir]",
		"  deep [file]",
		"ext [link]",
		"Processed: 5",
	} {
		if !strings.Contains(stdout, want) {
			t.Errorf("output missing %q:\n%s", want, stdout)
		}
	}

	db, err := database.Open(env.dbDir, database.DefaultOptions())
	if err != nil {
		t.Fatalf("history database not created: %v", err)
	}
	defer db.Close()

	rows, err := db.History(context.Background(), "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].EntriesProcessed != 5 || rows[0].ErrorCount != 0 {
		t.Errorf("history = %+v", rows)
	}
}

func TestTraverseCmdErrors(t *testing.T) {
	t.Parallel()

	site := writeSite(t, true)
	env := newTestEnv(t, "")

	stdout, _, err := env.run(t, "traverse", "--content", "--no-history", site)
	if !errors.Is(err, errTraversalFailed) {
		t.Fatalf("err = %v, want errTraversalFailed", err)
	}
	if !strings.Contains(stdout, "bad: ") || !strings.Contains(stdout, string(report.CategoryHashMismatch)) {
		t.Errorf("failed entry should be printed with its category:\n%s", stdout)
	}
	if !strings.Contains(stdout, "notes [file]") || !strings.Contains(stdout, "guide [file]") {
		t.Errorf("entries around the failure should still be visited:\n%s", stdout)
	}
	if _, statErr := os.Stat(filepath.Join(env.dbDir, database.FileName)); !os.IsNotExist(statErr) {
		t.Errorf("--no-history should not create the database, stat err = %v", statErr)
	}
}

func TestTraverseCmdJSONReport(t *testing.T) {
	t.Parallel()

	site := writeSite(t, false)
	env := newTestEnv(t, "")
	out := filepath.Join(t.TempDir(), "reports", "run.json")

	stdout, stderr, err := env.run(t, "traverse", "--json", "-o", out, site)
	if err != nil {
		t.Fatalf("traverse failed: %v", err)
	}
	if !strings.Contains(stderr, "Report written to "+out) {
		t.Errorf("stderr = %q", stderr)
	}
	if !strings.Contains(stdout, "Processed: 5") {
		t.Errorf("a text summary should go to stdout:\n%s", stdout)
	}

	data, err := os.ReadFile(out) //nolint:gosec // test file
	if err != nil {
		t.Fatal(err)
	}
	var doc struct {
		Version string         `json:"version"`
		Report  *report.Report `json:"report"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("report is not JSON: %v", err)
	}
	if doc.Version == "" || doc.Report == nil || doc.Report.EntriesProcessed != 5 {
		t.Errorf("unexpected report: %s", data)
	}
}

func TestTraverseCmdJSONToStdout(t *testing.T) {
	t.Parallel()

	site := writeSite(t, false)
	env := newTestEnv(t, "")

	stdout, _, err := env.run(t, "traverse", "--json", "--no-history", site)
	if err != nil {
		t.Fatalf("traverse failed: %v", err)
	}
	if !json.Valid([]byte(stdout)) {
		t.Errorf("stdout should hold only the JSON report:\n%s", stdout)
	}
}

func TestTraverseCmdFilters(t *testing.T) {
	t.Parallel()

	t.Run("should skip ignored entries", func(t *testing.T) {
		t.Parallel()

		site := writeSite(t, false)
		env := newTestEnv(t, "")

		stdout, _, err := env.run(t, "traverse", "--no-history", "--ignore", "notes.txt", site)
		if err != nil {
			t.Fatalf("traverse failed: %v", err)
		}
		if strings.Contains(stdout, "notes [file]") {
			t.Errorf("notes should be ignored:\n%s", stdout)
		}
		if !strings.Contains(stdout, "guide [file]") {
			t.Errorf("guide should be visited:\n%s", stdout)
		}
	})

	t.Run("should reject an unknown kind", func(t *testing.T) {
		t.Parallel()

		site := writeSite(t, false)
		env := newTestEnv(t, "")

		_, _, err := env.run(t, "traverse", "--no-history", "--kind", "bogus", site)
		if err == nil || !strings.Contains(err.Error(), `unknown entry kind "bogus"`) {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("should print nothing but the summary when quiet", func(t *testing.T) {
		t.Parallel()

		site := writeSite(t, false)
		env := newTestEnv(t, "")

		stdout, _, err := env.run(t, "traverse", "--no-history", "-q", site)
		if err != nil {
			t.Fatalf("traverse failed: %v", err)
		}
		if strings.Contains(stdout, "[file]") {
			t.Errorf("progress should be suppressed:\n%s", stdout)
		}
	})
}

func TestTraverseCmdPersistentCache(t *testing.T) {
	t.Parallel()

	site := writeSite(t, false)
	env := newTestEnv(t, "")

	if _, _, err := env.run(t, "traverse", "--no-history", "--persist-cache", "--content", site); err != nil {
		t.Fatalf("traverse failed: %v", err)
	}

	db, err := database.Open(env.cacheDir, database.Options{EnableWAL: true})
	if err != nil {
		t.Fatalf("cache database not created: %v", err)
	}
	defer db.Close()

	n, size, err := db.CacheSize(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n == 0 || size == 0 {
		t.Errorf("cache should hold the fetched documents, got %d entries, %d bytes", n, size)
	}
}

func TestHistoryCmd(t *testing.T) {
	t.Parallel()

	site := writeSite(t, false)
	env := newTestEnv(t, "")

	t.Run("should fail before any traversal", func(t *testing.T) {
		_, _, err := env.run(t, "history")
		if err == nil || !strings.Contains(err.Error(), "no traversal history yet") {
			t.Errorf("err = %v", err)
		}
	})

	if _, _, err := env.run(t, "traverse", "-q", site); err != nil {
		t.Fatalf("traverse failed: %v", err)
	}

	db, err := database.Open(env.dbDir, database.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	rows, err := db.History(context.Background(), "", 1)
	db.Close()
	if err != nil || len(rows) != 1 {
		t.Fatalf("history rows = %v, err = %v", rows, err)
	}
	id := rows[0].ID

	t.Run("should list saved reports", func(t *testing.T) {
		stdout, _, err := env.run(t, "history")
		if err != nil {
			t.Fatalf("history failed: %v", err)
		}
		if strings.Contains(stdout, "No traversal reports saved.") {
			t.Errorf("a report should be listed:\n%s", stdout)
		}
		if !strings.Contains(strings.ToUpper(stdout), "STOPPED") {
			t.Errorf("table header missing:\n%s", stdout)
		}
	})

	t.Run("should filter by location", func(t *testing.T) {
		stdout, _, err := env.run(t, "history", "https://elsewhere.example/")
		if err != nil {
			t.Fatalf("history failed: %v", err)
		}
		if !strings.Contains(stdout, "No traversal reports saved.") {
			t.Errorf("no report should match:\n%s", stdout)
		}
	})

	t.Run("should show one report", func(t *testing.T) {
		stdout, _, err := env.run(t, "history", "--show", id)
		if err != nil {
			t.Fatalf("history --show failed: %v", err)
		}
		if !strings.Contains(stdout, "Run:        "+id) {
			t.Errorf("report not printed:\n%s", stdout)
		}
	})

	t.Run("should show one report as JSON", func(t *testing.T) {
		stdout, _, err := env.run(t, "history", "--show", id, "--json")
		if err != nil {
			t.Fatalf("history --show failed: %v", err)
		}
		if !json.Valid([]byte(stdout)) || !strings.Contains(stdout, id) {
			t.Errorf("unexpected output:\n%s", stdout)
		}
	})

	t.Run("should fail for an unknown id", func(t *testing.T) {
		_, _, err := env.run(t, "history", "--show", "nope")
		if err == nil {
			t.Error("expected an error")
		}
	})
}

func TestValidateCmd(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		manifest string
		args     []string
		wantErr  bool
		want     string
	}{
		{
			name:     "should accept a valid burrow",
			manifest: `{"formatVersion":"burrow/0.2.0/burrow","kind":"burrow","entries":[{"id":"a","kind":"file","uri":"a.txt"}]}`,
			want:     "valid burrow, 1 entries, 0 warning(s)",
		},
		{
			name:     "should accept a valid warren",
			manifest: `{"formatVersion":"burrow/0.2.0/warren","kind":"warren","burrows":[{"id":"docs","uri":"https://example.com/docs/"}]}`,
			want:     "valid warren, 1 burrows, 0 warrens, 0 warning(s)",
		},
		{
			name:     "should reject duplicate ids",
			manifest: `{"formatVersion":"burrow/0.2.0/burrow","kind":"burrow","entries":[{"id":"a","kind":"file","uri":"a"},{"id":"a","kind":"file","uri":"b"}]}`,
			wantErr:  true,
			want:     "entries[1].id",
		},
		{
			name:     "should reject malformed JSON",
			manifest: `{"formatVersion":`,
			wantErr:  true,
		},
		{
			name:     "should tolerate warnings by default",
			manifest: `{"formatVersion":"burrow/0.2.0/burrow","kind":"burrow","entries":[{"id":"a","kind":"hologram","uri":"a"}]}`,
			want:     "1 warning(s)",
		},
		{
			name:     "should fail on warnings with --strict",
			manifest: `{"formatVersion":"burrow/0.2.0/burrow","kind":"burrow","entries":[{"id":"a","kind":"hologram","uri":"a"}]}`,
			args:     []string{"--strict"},
			wantErr:  true,
			want:     "unknown kind",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			writeFile(t, dir, ".burrow.json", tt.manifest)
			env := newTestEnv(t, "")

			args := append([]string{}, tt.args...)
			args = append(args, filepath.Join(dir, ".burrow.json"))
			stdout, _, err := env.run(t, "validate", args...)

			if tt.wantErr && !errors.Is(err, errValidationFailed) {
				t.Errorf("err = %v, want errValidationFailed", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if tt.want != "" && !strings.Contains(stdout, tt.want) {
				t.Errorf("output missing %q:\n%s", tt.want, stdout)
			}
		})
	}
}

func TestCacheCmd(t *testing.T) {
	t.Parallel()

	site := writeSite(t, false)
	env := newTestEnv(t, "")

	t.Run("should fail without a cache", func(t *testing.T) {
		if _, _, err := env.run(t, "cache info"); err == nil {
			t.Error("expected an error")
		}
	})

	if _, _, err := env.run(t, "traverse", "-q", "--no-history", "--persist-cache", site); err != nil {
		t.Fatalf("traverse failed: %v", err)
	}

	t.Run("should report the cache size", func(t *testing.T) {
		stdout, _, err := env.run(t, "cache info")
		if err != nil {
			t.Fatalf("cache info failed: %v", err)
		}
		if !strings.Contains(stdout, database.FileName) || strings.Contains(stdout, "Documents:  0\n") {
			t.Errorf("unexpected output:\n%s", stdout)
		}
	})

	t.Run("should keep recent documents", func(t *testing.T) {
		stdout, _, err := env.run(t, "cache purge", "--older-than", "1h")
		if err != nil {
			t.Fatalf("cache purge failed: %v", err)
		}
		if !strings.Contains(stdout, "Deleted 0 cached document(s)") {
			t.Errorf("unexpected output:\n%s", stdout)
		}
	})

	t.Run("should delete everything", func(t *testing.T) {
		if _, _, err := env.run(t, "cache purge"); err != nil {
			t.Fatalf("cache purge failed: %v", err)
		}
		stdout, _, err := env.run(t, "cache info")
		if err != nil {
			t.Fatalf("cache info failed: %v", err)
		}
		if !strings.Contains(stdout, "Documents:  0\n") {
			t.Errorf("cache should be empty:\n%s", stdout)
		}
	})
}
