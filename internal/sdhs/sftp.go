package sdhs

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/civichealth/interviewrelay/internal/interview"
)

// Dialer opens SFTP sessions to transfer destinations. The remote host key is
// pinned from the connection document; an unexpected key aborts the dial.
type Dialer struct {
	timeout time.Duration
}

func NewDialer(timeout time.Duration) *Dialer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Dialer{timeout: timeout}
}

func (d *Dialer) Dial(ctx context.Context, dest interview.Destination) (interview.RemoteSession, error) {
	hostKey, err := parseHostKey(dest)
	if err != nil {
		return nil, err
	}
	config := &ssh.ClientConfig{
		User:            dest.Username,
		Auth:            []ssh.AuthMethod{ssh.Password(dest.Password)},
		HostKeyCallback: ssh.FixedHostKey(hostKey),
		Timeout:         d.timeout,
	}

	port := dest.Port
	if port == 0 {
		port = defaultPort
	}
	addr := net.JoinHostPort(dest.Host, strconv.Itoa(port))
	netDialer := &net.Dialer{Timeout: d.timeout}
	conn, err := netDialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", addr, err)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}
	sshClient := ssh.NewClient(sshConn, chans, reqs)
	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		_ = sshClient.Close()
		return nil, fmt.Errorf("opening sftp subsystem on %s: %w", addr, err)
	}
	return &session{ssh: sshClient, sftp: sftpClient}, nil
}

func parseHostKey(dest interview.Destination) (ssh.PublicKey, error) {
	if dest.HostKey == "" {
		return nil, fmt.Errorf("destination %s has no pinned host key", dest.Host)
	}
	raw, err := base64.StdEncoding.DecodeString(dest.HostKey)
	if err != nil {
		return nil, fmt.Errorf("decoding host key for %s: %w", dest.Host, err)
	}
	key, err := ssh.ParsePublicKey(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing host key for %s: %w", dest.Host, err)
	}
	if dest.HostKeyType != "" && key.Type() != dest.HostKeyType {
		return nil, fmt.Errorf("host key for %s is %s, document says %s", dest.Host, key.Type(), dest.HostKeyType)
	}
	return key, nil
}

type session struct {
	ssh  *ssh.Client
	sftp *sftp.Client
}

func (s *session) MkdirAll(path string) error {
	return s.sftp.MkdirAll(path)
}

func (s *session) Stat(path string) (int64, bool, error) {
	info, err := s.sftp.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return info.Size(), true, nil
}

func (s *session) Create(path string) (io.WriteCloser, error) {
	return s.sftp.Create(path)
}

func (s *session) Close() error {
	sftpErr := s.sftp.Close()
	sshErr := s.ssh.Close()
	if sftpErr != nil {
		return sftpErr
	}
	return sshErr
}
