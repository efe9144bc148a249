package analyzer

import (
	"crypto/md5"
	"fmt"
	"os"
	"path/filepath"
)

// SocketPath derives the daemon's subscription socket path from its log
// directory. Client and daemon compute the same digest independently, so the
// socket lives under the system temp directory rather than the (possibly
// deeply nested) log directory, keeping it under the unix socket path limit.
func SocketPath(logDirectory string) string {
	absolute, err := filepath.Abs(logDirectory)
	if err != nil {
		absolute = logDirectory
	}
	digest := md5.Sum([]byte(absolute))
	return filepath.Join(os.TempDir(), fmt.Sprintf("peregrine_server_%x.sock", digest))
}
