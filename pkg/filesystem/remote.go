package filesystem

import (
	"errors"
	"io"
	"net"
	"net/textproto"
	"os"
	"path"
	"strings"
	"syscall"

	"github.com/jlaffaye/ftp"
	"github.com/pkg/sftp"
)

// Exported variables.
var (
	ErrAuth           = errors.New("remote authentication failed")
	ErrConnectionLost = errors.New("remote connection lost")
	ErrNotExist       = errors.New("remote object does not exist")
)

// Conn is one session against the remote rendezvous directory.
// Names are forward-slash paths relative to the session's base directory.
// A Conn is not safe for concurrent use.
type Conn interface {
	// Open streams the content of a remote file. The caller must close the
	// reader before issuing the next operation.
	Open(name string) (io.ReadCloser, error)

	// Store writes r to name, creating missing parent directories.
	Store(name string, r io.Reader) error

	Remove(name string) error
	Stat(name string) (FileInfo, error)

	// Scan lists the files and directories below dir. A missing dir scans empty.
	Scan(dir string) FileScanner

	Close() error
}

// IsConnectionLost reports whether err means the session is unusable and
// must be re-established before another attempt.
func IsConnectionLost(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrConnectionLost) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, sftp.ErrSSHFxConnectionLost) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		return protoErr.Code == ftp.StatusNotAvailable
	}

	return false
}

// RemotePath joins elements with forward slashes, whatever the local OS uses.
func RemotePath(elem ...string) string {
	for i, e := range elem {
		elem[i] = strings.ReplaceAll(e, `\`, "/")
	}

	return path.Join(elem...)
}

// notExist normalises the backends' "no such file" errors to ErrNotExist.
func notExist(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, os.ErrNotExist) {
		return errors.Join(ErrNotExist, err)
	}

	var protoErr *textproto.Error
	if errors.As(err, &protoErr) && protoErr.Code == ftp.StatusFileUnavailable {
		return errors.Join(ErrNotExist, err)
	}

	return err
}
