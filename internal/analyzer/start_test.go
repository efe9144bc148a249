package analyzer

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// fakeDaemon writes an executable script that plays the daemon's startup
// role: it emits the given stdout lines and exits.
func fakeDaemon(t *testing.T, stdout string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake daemon script requires a POSIX shell")
	}

	script := "#!/bin/sh\n"
	for _, line := range strings.Split(stdout, "\n") {
		if line == "" {
			continue
		}
		script += "echo '" + line + "'\n"
	}

	path := filepath.Join(t.TempDir(), "peregrine.bin")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func testArguments(t *testing.T) Arguments {
	t.Helper()
	logPath := t.TempDir()
	return Arguments{
		LogPath:     logPath,
		GlobalRoot:  filepath.Dir(logPath),
		SourcePaths: []string{filepath.Dir(logPath)},
	}
}

func TestStartServer(t *testing.T) {
	binary := fakeDaemon(t, "[\"SocketCreated\", \"/tmp/s.sock\"]\n[\"ServerInitialized\"]")
	arguments := testArguments(t)

	if err := StartServer(binary, arguments); err != nil {
		t.Fatalf("StartServer() error = %v", err)
	}

	// The stderr log destination is created under the log directory.
	if _, err := os.Stat(filepath.Join(arguments.LogPath, "new_server", "server.stderr")); err != nil {
		t.Errorf("expected server stderr log: %v", err)
	}
}

func TestStartServerException(t *testing.T) {
	binary := fakeDaemon(t, "[\"Exception\", \"cannot bind socket\"]")

	err := StartServer(binary, testArguments(t))
	if err == nil || !strings.Contains(err.Error(), "cannot bind socket") {
		t.Errorf("expected startup exception, got %v", err)
	}
}

func TestStartServerMissingBinary(t *testing.T) {
	arguments := testArguments(t)
	if err := StartServer(filepath.Join(t.TempDir(), "missing.bin"), arguments); err == nil {
		t.Error("expected an error for a missing binary")
	}
}

func TestStartServerEarlyExit(t *testing.T) {
	binary := fakeDaemon(t, "")
	if err := StartServer(binary, testArguments(t)); err == nil {
		t.Error("expected an error when the daemon exits silently")
	}
}

func TestWriteArgumentFile(t *testing.T) {
	arguments := testArguments(t)
	path, err := writeArgumentFile(arguments)
	if err != nil {
		t.Fatalf("writeArgumentFile() error = %v", err)
	}
	defer os.Remove(path)

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, field := range []string{`"log_path"`, `"global_root"`, `"source_paths"`} {
		if !strings.Contains(string(contents), field) {
			t.Errorf("argument file missing %s: %s", field, contents)
		}
	}
}
