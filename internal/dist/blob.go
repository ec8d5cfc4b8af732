// Package dist implements remote build nodes: the node server, its client,
// the artifact sender and remote compilation.
package dist

import (
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// BufferSize is the payload capacity of one Blob.
const BufferSize = 1 << 20

// ChunkSize is the payload size used when pushing an artifact to a node.
const ChunkSize = BufferSize / 2

// Blob is one chunk of a file transfer.
type Blob struct {
	Payload    []byte `msgpack:"payload"`
	Len        int    `msgpack:"len"`
	FilesLeft  int    `msgpack:"files_left"`
	LastPacket bool   `msgpack:"last_packet"`
	FilePath   string `msgpack:"file"`
}

// Validate checks that the length field matches a payload within capacity.
func (b *Blob) Validate() error {
	if b.Len != len(b.Payload) {
		return fmt.Errorf("blob length %d does not match payload of %d bytes", b.Len, len(b.Payload))
	}
	if b.Len > BufferSize {
		return fmt.Errorf("blob of %d bytes exceeds buffer size %d", b.Len, BufferSize)
	}
	if b.FilePath == "" {
		return errors.New("blob without file path")
	}
	return nil
}

func encode(w io.Writer, v any) error {
	return msgpack.NewEncoder(w).Encode(v)
}

func decode(r io.Reader, v any) error {
	return msgpack.NewDecoder(r).Decode(v)
}

// readChunk fills buf from r and returns the number of bytes read. End of
// input is not an error.
func readChunk(r io.Reader, buf []byte) (int, error) {
	n, err := io.ReadFull(r, buf)
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return n, nil
	}
	return n, err
}
