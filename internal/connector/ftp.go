package connector

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/oshokin/conda-channel-resource/internal/config"
	domain "github.com/oshokin/conda-channel-resource/internal/domain/channel"
	"github.com/oshokin/conda-channel-resource/internal/logger"
)

const (
	defaultFTPPort    = "21"
	ftpDialTimeout    = 30 * time.Second
	ftpAnonymousLogin = "anonymous"
)

// ftpConn is the subset of an FTP control connection used by ftpStore.
type ftpConn interface {
	ChangeDir(dir string) error
	MakeDir(dir string) error
	RemoveDir(dir string) error
	Retr(key string) (io.ReadCloser, error)
	Stor(key string, r io.Reader) error
	Quit() error
}

// serverConn adapts *ftp.ServerConn to ftpConn.
type serverConn struct {
	*ftp.ServerConn
}

func (c serverConn) Retr(key string) (io.ReadCloser, error) {
	resp, err := c.ServerConn.Retr(key)
	if err != nil {
		return nil, err
	}

	return resp, nil
}

// ftpStore keeps a channel on an FTP server. The connection's working
// directory is the channel root.
type ftpStore struct {
	conn        ftpConn
	lockTimeout time.Duration
	lockPoll    time.Duration
}

func newFTPStore(ctx context.Context, u *url.URL, src *config.Source, secure bool) (*ftpStore, error) {
	addr := u.Host
	if u.Port() == "" {
		addr = net.JoinHostPort(u.Hostname(), defaultFTPPort)
	}

	options := []ftp.DialOption{
		ftp.DialWithContext(ctx),
		ftp.DialWithTimeout(ftpDialTimeout),
	}

	if secure {
		options = append(options, ftp.DialWithExplicitTLS(&tls.Config{
			ServerName: u.Hostname(),
			MinVersion: tls.VersionTLS12,
		}))
	}

	dialed, err := ftp.Dial(addr, options...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	user, pass := src.User, src.Pass
	if user == "" {
		user, pass = ftpAnonymousLogin, ftpAnonymousLogin
	}

	if err = dialed.Login(user, pass); err != nil {
		_ = dialed.Quit()

		return nil, fmt.Errorf("login to %s: %w", addr, err)
	}

	conn := serverConn{ServerConn: dialed}

	root := path.Join("/", u.Path, src.Channel)
	if err = changeOrMakeDir(conn, root); err != nil {
		_ = conn.Quit()

		return nil, err
	}

	logger.DebugKV(ctx, "Connected to FTP channel", "addr", addr, "root", root)

	return &ftpStore{
		conn:        conn,
		lockTimeout: src.LockWait(),
		lockPoll:    defaultLockPollInterval,
	}, nil
}

// changeOrMakeDir enters dir, creating each missing component on the way.
func changeOrMakeDir(conn ftpConn, dir string) error {
	if conn.ChangeDir(dir) == nil {
		return nil
	}

	current := "/"
	for _, part := range strings.Split(strings.Trim(dir, "/"), "/") {
		current = path.Join(current, part)
		if conn.ChangeDir(current) == nil {
			continue
		}

		if err := conn.MakeDir(current); err != nil {
			return fmt.Errorf("create %s: %w", current, err)
		}
	}

	if err := conn.ChangeDir(dir); err != nil {
		return fmt.Errorf("enter %s: %w", dir, err)
	}

	return nil
}

// Get implements Store.
func (s *ftpStore) Get(_ context.Context, key string, w io.Writer) error {
	resp, err := s.conn.Retr(key)
	if isFTPFileUnavailable(err) {
		return fmt.Errorf("%s: %w", key, domain.ErrNoSuchObject)
	}

	if err != nil {
		return err
	}

	_, err = io.Copy(w, resp)
	if closeErr := resp.Close(); err == nil {
		err = closeErr
	}

	return err
}

// Put implements Store.
func (s *ftpStore) Put(_ context.Context, key string, body io.ReadSeeker, _ int64) error {
	if dir := path.Dir(key); dir != "." {
		// The subdir may already exist.
		_ = s.conn.MakeDir(dir)
	}

	return s.conn.Stor(key, body)
}

// Lock implements Locker. The lock is a directory, since MKD fails
// atomically when it already exists.
func (s *ftpStore) Lock(ctx context.Context) (func() error, error) {
	deadline := time.Now().Add(s.lockTimeout)

	for s.conn.MakeDir(lockFilename) != nil {
		if !time.Now().Before(deadline) {
			return nil, fmt.Errorf("%s: %w", lockFilename, errLockTimeout)
		}

		logger.DebugKV(ctx, "Channel is locked, waiting", "lock", lockFilename, "poll", s.lockPoll)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.lockPoll):
		}
	}

	return func() error {
		return s.conn.RemoveDir(lockFilename)
	}, nil
}

// Close implements Store.
func (s *ftpStore) Close() error {
	return s.conn.Quit()
}

func isFTPFileUnavailable(err error) bool {
	var protoErr *textproto.Error

	return errors.As(err, &protoErr) && protoErr.Code == ftp.StatusFileUnavailable
}
