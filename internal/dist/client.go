package dist

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/mkn/maiken/internal/app"
)

const contentType = "application/msgpack"

// ErrBusy is returned when a node is serving another request.
var ErrBusy = errors.New(msgBusy)

// Node is the client side of the node protocol.
type Node interface {
	Setup(ctx context.Context, args app.Args) error
	Compile(ctx context.Context, dir string, pairs []app.SourceObject) (int, error)
	// Fetch downloads every compiled object and returns their paths.
	Fetch(ctx context.Context) ([]string, error)
	// Link pushes one chunk of an artifact.
	Link(ctx context.Context, b *Blob) error
}

// Client talks to one node over HTTP.
type Client struct {
	base string
	http *http.Client
}

var _ Node = (*Client)(nil)

// NewClient returns a client for host ("host:port" or a URL). A nil hc
// uses http.DefaultClient.
func NewClient(host string, hc *http.Client) *Client {
	if !strings.Contains(host, "://") {
		host = "http://" + host
	}
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{base: strings.TrimRight(host, "/"), http: hc}
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	var body bytes.Buffer
	if err := encode(&body, in); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s%s: %s: %s", c.base, path, resp.Status, strings.TrimSpace(string(msg)))
	}
	return decode(resp.Body, out)
}

func (c *Client) call(ctx context.Context, path string, in any) (Response, error) {
	var resp Response
	if err := c.post(ctx, path, in, &resp); err != nil {
		return resp, err
	}
	switch resp.Status {
	case StatusOK:
		return resp, nil
	case StatusBusy:
		return resp, fmt.Errorf("%s: %w", c.base, ErrBusy)
	}
	return resp, fmt.Errorf("%s%s: %s", c.base, path, resp.Message)
}

func (c *Client) Setup(ctx context.Context, args app.Args) error {
	_, err := c.call(ctx, "/setup", SetupRequest{Args: args})
	return err
}

func (c *Client) Compile(ctx context.Context, dir string, pairs []app.SourceObject) (int, error) {
	resp, err := c.call(ctx, "/compile", CompileRequest{Directory: dir, Pairs: pairs})
	return resp.Files, err
}

// Download returns the next chunk of the compiled objects.
func (c *Client) Download(ctx context.Context) (*Blob, error) {
	var b Blob
	if err := c.post(ctx, "/download", DownloadRequest{}, &b); err != nil {
		return nil, err
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &b, nil
}

func (c *Client) Fetch(ctx context.Context) ([]string, error) {
	var (
		files []string
		w     *os.File
	)
	defer func() {
		if w != nil {
			w.Close()
		}
	}()
	for {
		b, err := c.Download(ctx)
		if err != nil {
			return files, err
		}
		if w == nil {
			if err := os.MkdirAll(filepath.Dir(b.FilePath), 0o755); err != nil {
				return files, err
			}
			if w, err = os.Create(b.FilePath); err != nil {
				return files, err
			}
		}
		if _, err := w.Write(b.Payload); err != nil {
			return files, err
		}
		if !b.LastPacket {
			continue
		}
		if err := w.Close(); err != nil {
			w = nil
			return files, err
		}
		w = nil
		files = append(files, b.FilePath)
		if b.FilesLeft == 0 {
			return files, nil
		}
	}
}

func (c *Client) Link(ctx context.Context, b *Blob) error {
	_, err := c.call(ctx, "/link", b)
	return err
}
