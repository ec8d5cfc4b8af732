package dist

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Dialer returns the Node for a host address.
type Dialer func(host string) Node

// DialHTTP dials nodes with NewClient over http.DefaultClient.
func DialHTTP(host string) Node { return NewClient(host, nil) }

// Sender pushes a built artifact to every configured host, one worker
// per host.
type Sender struct {
	hosts   []string
	dial    Dialer
	timeout time.Duration
}

// NewSender returns a Sender for hosts. Every Send must finish within
// timeout.
func NewSender(hosts []string, timeout time.Duration, dial Dialer) *Sender {
	if dial == nil {
		dial = DialHTTP
	}
	return &Sender{hosts: hosts, dial: dial, timeout: timeout}
}

// Send streams file to all hosts in ChunkSize chunks. The first failure
// cancels the other hosts and is returned; chunks already delivered stay
// where they are.
func (s *Sender) Send(ctx context.Context, file string) error {
	if len(s.hosts) == 0 {
		return nil
	}
	path, err := filepath.Abs(file)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(len(s.hosts))
	for _, host := range s.hosts {
		host := host
		g.Go(func() error {
			if err := sendFile(ctx, s.dial(host), path); err != nil {
				return fmt.Errorf("send to %s: %w", host, err)
			}
			logrus.Debugf("sent %s to %s", path, host)
			return nil
		})
	}
	return g.Wait()
}

// sendFile pushes path to n. The file is read one chunk ahead so the
// final chunk carries LastPacket.
func sendFile(ctx context.Context, n Node, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	cur, next := make([]byte, ChunkSize), make([]byte, ChunkSize)
	size, err := readChunk(f, cur)
	if err != nil {
		return err
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		var more int
		if size == ChunkSize {
			if more, err = readChunk(f, next); err != nil {
				return err
			}
		}
		last := more == 0
		b := &Blob{Payload: cur[:size], Len: size, FilesLeft: 1, LastPacket: last, FilePath: path}
		if last {
			b.FilesLeft = 0
		}
		if err := n.Link(ctx, b); err != nil {
			return err
		}
		if last {
			return nil
		}
		cur, next, size = next, cur, more
	}
}
