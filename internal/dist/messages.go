package dist

import "github.com/mkn/maiken/internal/app"

// Status is the result code of a node request.
type Status int

const (
	StatusOK Status = iota
	StatusBusy
	StatusError
)

const msgBusy = "NODE BUSY"

// Response answers Setup and Compile requests.
type Response struct {
	Status  Status `msgpack:"status"`
	Message string `msgpack:"message,omitempty"`
	// Files is the number of objects a Compile request covered.
	Files int `msgpack:"files,omitempty"`
}

// SetupRequest carries the build arguments a node creates its
// Applications from.
type SetupRequest struct {
	Args app.Args `msgpack:"args"`
}

// CompileRequest asks a node to compile pairs from directory.
type CompileRequest struct {
	Directory string             `msgpack:"directory"`
	Pairs     []app.SourceObject `msgpack:"pairs"`
}

// DownloadRequest asks for the next chunk of the compiled objects.
type DownloadRequest struct{}
