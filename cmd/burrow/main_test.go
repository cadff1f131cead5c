package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// helloSHA256 is the SHA-256 of "hello".
const helloSHA256 = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"

// expectedSHA256 is the SHA-256 of "expected". Entries declare a hash of
// their own so the content-hash identity never merges them.
const expectedSHA256 = "cea23dd4b87e8b00d19fb9ccaaef93e97353c7353e2070f3baf05aeb3995dff4"

// writeFile creates path below dir with content.
func writeFile(t *testing.T, dir, path, content string) {
	t.Helper()
	full := filepath.Join(dir, filepath.FromSlash(path))
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

// writeSite creates a published tree:
//
//	.burrow.json  notes (verified), guide, sub (dir), ext (link)
//	sub/.burrow.json  deep
//
// With tampered, a "bad" entry whose declared hash does not match is added.
func writeSite(t *testing.T, tampered bool) string {
	t.Helper()
	dir := t.TempDir()

	entries := `{"id":"notes","kind":"file","uri":"notes.txt","title":"Notes","sizeBytes":5,"sha256":"` + helloSHA256 + `"},
		{"id":"guide","kind":"file","uri":"guide.md","priority":10},
		{"id":"sub","kind":"dir","uri":"sub/"},
		{"id":"ext","kind":"link","uri":"https://example.com/"}`
	if tampered {
		entries += `,{"id":"bad","kind":"file","uri":"bad.txt","sha256":"` + expectedSHA256 + `"}`
	}
	writeFile(t, dir, ".burrow.json",
		`{"formatVersion":"burrow/0.2.0/burrow","kind":"burrow","title":"Test site","entries":[`+entries+`]}`)
	writeFile(t, dir, "notes.txt", "hello")
	writeFile(t, dir, "guide.md", "# guide")
	writeFile(t, dir, "bad.txt", "not hello")
	writeFile(t, dir, "sub/.burrow.json",
		`{"formatVersion":"burrow/0.2.0/burrow","kind":"burrow","entries":[{"id":"deep","kind":"file","uri":"deep.txt"}]}`)
	writeFile(t, dir, "sub/deep.txt", "deep")
	return dir
}

// testEnv isolates a command run from the user's configuration and data.
type testEnv struct {
	configPath string
	dbDir      string
	cacheDir   string
}

func newTestEnv(t *testing.T, configYAML string) testEnv {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "config.yaml", configYAML)
	return testEnv{
		configPath: filepath.Join(dir, "config.yaml"),
		dbDir:      filepath.Join(dir, "data"),
		cacheDir:   filepath.Join(dir, "cache"),
	}
}

// run executes the root command with the subcommand, such as "traverse"
// or "cache info", and args.
func (e testEnv) run(t *testing.T, sub string, args ...string) (string, string, error) {
	t.Helper()

	full := append(strings.Fields(sub),
		"--config", e.configPath,
		"--db-dir", e.dbDir,
		"--cache-dir", e.cacheDir,
		"--parent-walk", "0",
	)
	full = append(full, args...)

	var stdout, stderr bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(full)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}
