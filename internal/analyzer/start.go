package analyzer

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
)

// Arguments is the daemon configuration serialized into the argument file
// handed to `peregrine.bin newserver`.
type Arguments struct {
	LogPath     string   `json:"log_path"`
	GlobalRoot  string   `json:"global_root"`
	SourcePaths []string `json:"source_paths"`
	Excludes    []string `json:"excludes,omitempty"`
}

// writeArgumentFile serializes arguments to a temporary JSON file and
// returns its path. The caller removes the file once the daemon has started.
func writeArgumentFile(arguments Arguments) (string, error) {
	file, err := os.CreateTemp("", "peregrine_server_args_*.json")
	if err != nil {
		return "", err
	}
	if err := json.NewEncoder(file).Encode(arguments); err != nil {
		file.Close()
		os.Remove(file.Name())
		return "", err
	}
	if err := file.Close(); err != nil {
		os.Remove(file.Name())
		return "", err
	}
	return file.Name(), nil
}

// serverLogFile opens the stderr destination for a daemon started in the
// background, under <log>/new_server/.
func serverLogFile(logPath string) (*os.File, error) {
	directory := filepath.Join(logPath, "new_server")
	if err := os.MkdirAll(directory, 0o755); err != nil {
		return nil, err
	}
	return os.Create(filepath.Join(directory, "server.stderr"))
}

// StartServer launches the analyzer daemon in its own session and blocks
// until the daemon reports readiness on its stdout. There is no timeout; the
// caller layers one if desired. The daemon is detached and intentionally
// survives this process.
func StartServer(binary string, arguments Arguments) error {
	argumentFile, err := writeArgumentFile(arguments)
	if err != nil {
		return fmt.Errorf("cannot write server argument file: %w", err)
	}
	defer os.Remove(argumentFile)

	stderr, err := serverLogFile(arguments.LogPath)
	if err != nil {
		return fmt.Errorf("cannot open server log file: %w", err)
	}
	defer stderr.Close()

	stdoutRead, stdoutWrite, err := os.Pipe()
	if err != nil {
		return err
	}
	defer stdoutRead.Close()

	cmd := exec.Command(binary, "newserver", argumentFile)
	cmd.Stdout = stdoutWrite
	cmd.Stderr = stderr
	// The daemon resolves its socket root from TMPDIR. Forcing it here keeps
	// the daemon's socket path in agreement with SocketPath.
	cmd.Env = append(os.Environ(), "TMPDIR="+os.TempDir())
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		stdoutWrite.Close()
		return fmt.Errorf("cannot start analyzer server: %w", err)
	}
	stdoutWrite.Close()

	if err := (Waiter{WaitOnInitialization: true}).Wait(stdoutRead); err != nil {
		return err
	}

	// Not reaped: the daemon outlives the client by design.
	return cmd.Process.Release()
}
