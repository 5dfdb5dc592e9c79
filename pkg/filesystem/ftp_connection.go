package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/textproto"
	"path"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
)

// FTPConnection is a Conn backed by one FTP control connection.
type FTPConnection struct {
	conn *ftp.ServerConn
	base string
}

// ConnectFTP dials and logs in. Anonymous login is used when target has no user.
func ConnectFTP(ctx context.Context, target *RemoteURL, timeout time.Duration) (*FTPConnection, error) {
	conn, err := ftp.Dial(target.Address(),
		ftp.DialWithContext(ctx),
		ftp.DialWithTimeout(timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("FTP connection failed: %w", err)
	}

	user, password := target.User, target.Password
	if user == "" {
		user, password = "anonymous", "anonymous"
	}

	err = conn.Login(user, password)
	if err != nil {
		_ = conn.Quit()

		return nil, fmt.Errorf("%w: FTP login as %s: %w", ErrAuth, user, err)
	}

	return &FTPConnection{conn: conn, base: target.Path}, nil
}

// Close ends the session.
func (c *FTPConnection) Close() error {
	err := c.conn.Quit()
	if err != nil {
		return fmt.Errorf("failed to quit FTP session: %w", err)
	}

	return nil
}

// Open retrieves a remote file.
func (c *FTPConnection) Open(name string) (io.ReadCloser, error) {
	resp, err := c.conn.Retr(c.resolve(name))
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve %s: %w", name, notExist(err))
	}

	return resp, nil
}

// Remove deletes a remote file.
func (c *FTPConnection) Remove(name string) error {
	err := c.conn.Delete(c.resolve(name))
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", name, notExist(err))
	}

	return nil
}

// Scan walks a remote directory tree.
func (c *FTPConnection) Scan(dir string) FileScanner {
	root := c.resolve(dir)

	return newCollectingScanner(func() ([]FileInfo, error) {
		return c.walk(root)
	})
}

// Stat reports the size of a remote file. FTP has no portable modification
// time query, so ModTime stays zero.
func (c *FTPConnection) Stat(name string) (FileInfo, error) {
	size, err := c.conn.FileSize(c.resolve(name))
	if err != nil {
		return FileInfo{}, fmt.Errorf("failed to stat %s: %w", name, notExist(err))
	}

	return FileInfo{RelativePath: name, Size: size}, nil
}

// Store uploads r to a remote file, creating parent directories first.
func (c *FTPConnection) Store(name string, r io.Reader) error {
	full := c.resolve(name)

	err := c.mkdirAll(path.Dir(full))
	if err != nil {
		return fmt.Errorf("failed to create remote directory for %s: %w", name, err)
	}

	err = c.conn.Stor(full, r)
	if err != nil {
		return fmt.Errorf("failed to store %s: %w", name, err)
	}

	return nil
}

// mkdirAll creates each missing segment of dir. Servers answer MKD on an
// existing directory with a 5xx reply, so a failed MKD is only accepted when
// the directory is then found in its parent's listing.
func (c *FTPConnection) mkdirAll(dir string) error {
	if dir == "." || dir == "/" || dir == "" {
		return nil
	}

	current := ""
	if strings.HasPrefix(dir, "/") {
		current = "/"
	}

	for _, segment := range strings.Split(strings.Trim(dir, "/"), "/") {
		current = path.Join(current, segment)

		err := c.conn.MakeDir(current)
		if err == nil {
			continue
		}

		var protoErr *textproto.Error
		if errors.As(err, &protoErr) && protoErr.Code/100 == 5 && c.isDir(current) { //nolint:mnd // 5xx reply class
			continue
		}

		return err //nolint:wrapcheck // wrapped by caller
	}

	return nil
}

// isDir reports whether dir is listed as a folder in its parent.
func (c *FTPConnection) isDir(dir string) bool {
	entries, err := c.conn.List(path.Dir(dir))
	if err != nil {
		return false
	}

	name := path.Base(dir)
	for _, entry := range entries {
		if entry.Name == name && entry.Type == ftp.EntryTypeFolder {
			return true
		}
	}

	return false
}

func (c *FTPConnection) resolve(name string) string {
	return RemotePath(c.base, name)
}

func (c *FTPConnection) walk(root string) ([]FileInfo, error) {
	files := make([]FileInfo, 0)
	walker := c.conn.Walk(root)

	for walker.Next() {
		entry := walker.Stat()

		relPath, err := relativePath(root, walker.Path())
		if err != nil {
			return nil, fmt.Errorf("failed to get relative path for %s: %w", walker.Path(), err)
		}

		files = append(files, FileInfo{
			RelativePath: relPath,
			Size:         int64(entry.Size), //nolint:gosec // sizes fit in int64
			ModTime:      entry.Time,
			IsDir:        entry.Type == ftp.EntryTypeFolder,
		})
	}

	err := walker.Err()
	if err != nil {
		if errors.Is(notExist(err), ErrNotExist) && len(files) == 0 {
			return files, nil
		}

		return nil, fmt.Errorf("error scanning FTP directory %s: %w", root, err)
	}

	return files, nil
}
