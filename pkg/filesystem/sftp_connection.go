package filesystem

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

// SFTPConnection is a Conn backed by one SSH session and one SFTP channel.
type SFTPConnection struct {
	sshClient  *ssh.Client
	sftpClient *sftp.Client
	base       string
}

// ConnectSFTP establishes an SSH connection and opens an SFTP session rooted
// at target.Path. A password in target is tried before the SSH agent and the
// default keys.
func ConnectSFTP(ctx context.Context, target *RemoteURL, timeout time.Duration) (*SFTPConnection, error) {
	authMethods := getSSHAuthMethods()
	if target.Password != "" {
		authMethods = append([]ssh.AuthMethod{ssh.Password(target.Password)}, authMethods...)
	}

	if len(authMethods) == 0 {
		return nil, fmt.Errorf("%w: no SSH authentication methods available (tried password, SSH agent and default keys)", ErrAuth)
	}

	config := &ssh.ClientConfig{
		User:            target.User,
		Auth:            authMethods,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // TODO: verify against ~/.ssh/known_hosts
		Timeout:         timeout,
	}

	dialer := &net.Dialer{Timeout: timeout}

	rawConn, err := dialer.DialContext(ctx, "tcp", target.Address())
	if err != nil {
		return nil, fmt.Errorf("SSH connection failed: %w", err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(rawConn, target.Address(), config)
	if err != nil {
		_ = rawConn.Close()

		return nil, handshakeError(err)
	}

	sshClient := ssh.NewClient(sshConn, chans, reqs)

	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		_ = sshClient.Close()

		return nil, fmt.Errorf("SFTP session creation failed: %w", err)
	}

	return &SFTPConnection{
		sshClient:  sshClient,
		sftpClient: sftpClient,
		base:       target.Path,
	}, nil
}

// handshakeError marks rejected credentials as ErrAuth. x/crypto/ssh reports
// them only as text.
func handshakeError(err error) error {
	if strings.Contains(err.Error(), "unable to authenticate") {
		return fmt.Errorf("%w: SSH handshake: %w", ErrAuth, err)
	}

	return fmt.Errorf("SSH handshake failed: %w", err)
}

// Close closes the SFTP session and SSH connection.
func (c *SFTPConnection) Close() error {
	var firstErr error

	if c.sftpClient != nil {
		if err := c.sftpClient.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if c.sshClient != nil {
		if err := c.sshClient.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

// Open opens a remote file for reading.
func (c *SFTPConnection) Open(name string) (io.ReadCloser, error) {
	file, err := c.sftpClient.Open(c.resolve(name))
	if err != nil {
		return nil, fmt.Errorf("failed to open remote file %s: %w", name, notExist(err))
	}

	return file, nil
}

// Remove removes a remote file.
func (c *SFTPConnection) Remove(name string) error {
	err := c.sftpClient.Remove(c.resolve(name))
	if err != nil {
		return fmt.Errorf("failed to remove remote file %s: %w", name, notExist(err))
	}

	return nil
}

// Scan returns an iterator over a remote directory tree.
func (c *SFTPConnection) Scan(dir string) FileScanner {
	return newSFTPScanner(c.sftpClient, c.resolve(dir))
}

// Stat returns file information for a remote file.
func (c *SFTPConnection) Stat(name string) (FileInfo, error) {
	info, err := c.sftpClient.Stat(c.resolve(name))
	if err != nil {
		return FileInfo{}, fmt.Errorf("failed to stat remote file %s: %w", name, notExist(err))
	}

	return FileInfo{
		RelativePath: name,
		Size:         info.Size(),
		ModTime:      info.ModTime(),
		IsDir:        info.IsDir(),
	}, nil
}

// Store writes r to a remote file, creating parent directories first.
func (c *SFTPConnection) Store(name string, r io.Reader) error {
	full := c.resolve(name)

	err := c.sftpClient.MkdirAll(path.Dir(full))
	if err != nil {
		return fmt.Errorf("failed to create remote directory for %s: %w", name, err)
	}

	file, err := c.sftpClient.Create(full)
	if err != nil {
		return fmt.Errorf("failed to create remote file %s: %w", name, err)
	}

	_, err = file.ReadFrom(r)
	closeErr := file.Close()

	if err != nil {
		return fmt.Errorf("failed to write remote file %s: %w", name, err)
	}

	if closeErr != nil {
		return fmt.Errorf("failed to close remote file %s: %w", name, closeErr)
	}

	return nil
}

func (c *SFTPConnection) resolve(name string) string {
	return RemotePath(c.base, name)
}

// getSSHAuthMethods returns key-based SSH authentication methods in priority order:
// 1. SSH agent
// 2. Default SSH keys
func getSSHAuthMethods() []ssh.AuthMethod {
	var authMethods []ssh.AuthMethod

	// Try SSH agent first
	if agentAuth := trySSHAgent(); agentAuth != nil {
		authMethods = append(authMethods, agentAuth)
	}

	// Try default SSH keys
	keyAuths, err := tryDefaultSSHKeys()
	if err == nil && len(keyAuths) > 0 {
		authMethods = append(authMethods, keyAuths...)
	}

	return authMethods
}

// trySSHAgent attempts to connect to the SSH agent.
func trySSHAgent() ssh.AuthMethod {
	socket := os.Getenv("SSH_AUTH_SOCK")
	if socket == "" {
		return nil
	}

	conn, err := net.Dial("unix", socket)
	if err != nil {
		return nil
	}

	agentClient := agent.NewClient(conn)
	return ssh.PublicKeysCallback(agentClient.Signers)
}

// tryDefaultSSHKeys tries to load SSH keys from default locations.
func tryDefaultSSHKeys() ([]ssh.AuthMethod, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	sshDir := filepath.Join(homeDir, ".ssh")

	// Default key files to try (in order)
	keyFiles := []string{
		filepath.Join(sshDir, "id_ed25519"),
		filepath.Join(sshDir, "id_rsa"),
		filepath.Join(sshDir, "id_ecdsa"),
	}

	var authMethods []ssh.AuthMethod

	for _, keyPath := range keyFiles {
		// Check if key file exists
		if _, err := os.Stat(keyPath); os.IsNotExist(err) {
			continue
		}

		// Read private key
		keyData, err := os.ReadFile(keyPath)
		if err != nil {
			continue
		}

		// Parse private key
		signer, err := ssh.ParsePrivateKey(keyData)
		if err != nil {
			// If the key is encrypted, skip it (we don't support password-protected keys)
			continue
		}

		authMethods = append(authMethods, ssh.PublicKeys(signer))
	}

	return authMethods, nil
}
