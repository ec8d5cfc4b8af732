package dist

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/mkn/maiken/internal/app"
	"github.com/mkn/maiken/internal/settings"
)

// Server is a remote build node. Setup and Compile change the process
// working directory, so the node serves one of them at a time and
// answers the others with StatusBusy.
type Server struct {
	reg      *app.Registry
	sessions *Sessions
	recvDir  string
	busy     sync.Mutex
	router   *mux.Router
}

// NewServer returns a node building with reg. A relative receive
// directory is taken against the working directory at this call, since
// Compile moves the process working directory.
func NewServer(reg *app.Registry, cfg settings.Node) *Server {
	recvDir, err := filepath.Abs(cfg.ReceiveDir)
	if err != nil {
		logrus.Warnf("receive dir %s: %v", cfg.ReceiveDir, err)
		recvDir = cfg.ReceiveDir
	}
	s := &Server{
		reg:      reg,
		sessions: NewSessions(cfg.SessionLimit, cfg.SessionTTL),
		recvDir:  recvDir,
		router:   mux.NewRouter(),
	}
	s.router.HandleFunc("/setup", s.handleSetup).Methods("POST")
	s.router.HandleFunc("/compile", s.handleCompile).Methods("POST")
	s.router.HandleFunc("/download", s.handleDownload).Methods("POST")
	s.router.HandleFunc("/link", s.handleLink).Methods("POST")
	return s
}

// Handler returns the HTTP handler of the node protocol.
func (s *Server) Handler() http.Handler { return s.router }

// Sessions returns the client sessions of the node.
func (s *Server) Sessions() *Sessions { return s.sessions }

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.router}
	errc := make(chan error, 1)
	go func() {
		logrus.Infof("node listening on %s", addr)
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// clientAddr identifies the session of a request by the client host.
func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeMsg(w http.ResponseWriter, v any) {
	var buf bytes.Buffer
	if err := encode(&buf, v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Write(buf.Bytes())
}

func (s *Server) handleSetup(w http.ResponseWriter, r *http.Request) {
	addr := clientAddr(r)
	logrus.Infof("setup from %s", addr)

	var req SetupRequest
	if err := decode(r.Body, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if !s.busy.TryLock() {
		writeMsg(w, Response{Status: StatusBusy, Message: msgBusy})
		return
	}
	defer s.busy.Unlock()

	args := app.Args{}
	for k, v := range req.Args {
		args[k] = v
	}
	// a node never forwards to further nodes
	delete(args, app.ArgNodes)

	apps, err := s.reg.Create(r.Context(), args)
	if err != nil {
		logrus.Errorf("setup from %s: %v", addr, err)
		// the previous setup of this client is not left in place
		s.sessions.Remove(addr)
		writeMsg(w, Response{Status: StatusError, Message: err.Error()})
		return
	}

	sess := s.sessions.Get(addr)
	sess.mu.Lock()
	sess.closeReader()
	sess.apps = apps
	sess.pending = nil
	sess.objects = app.Strings{}
	sess.mu.Unlock()

	writeMsg(w, Response{Status: StatusOK})
}

func (s *Server) handleCompile(w http.ResponseWriter, r *http.Request) {
	addr := clientAddr(r)
	logrus.Infof("compile from %s", addr)

	var req CompileRequest
	if err := decode(r.Body, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if !s.busy.TryLock() {
		writeMsg(w, Response{Status: StatusBusy, Message: msgBusy})
		return
	}
	defer s.busy.Unlock()

	sess := s.sessions.Get(addr)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if len(sess.apps) == 0 {
		writeMsg(w, Response{Status: StatusError, Message: "compile before setup"})
		return
	}

	err := func() error {
		popd, err := app.PushDir(req.Directory)
		if err != nil {
			return err
		}
		defer popd()
		return sess.apps[0].Compile(r.Context(), req.Pairs, &sess.objects)
	}()
	if err != nil {
		logrus.Errorf("compile from %s: %v", addr, err)
		writeMsg(w, Response{Status: StatusError, Message: err.Error()})
		return
	}
	sess.closeReader()
	sess.pending = req.Pairs
	writeMsg(w, Response{Status: StatusOK, Files: len(req.Pairs)})
}

// handleDownload streams the compiled objects back one chunk per request.
// An empty read ends the current file.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	addr := clientAddr(r)
	sess := s.sessions.Get(addr)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if len(sess.pending) == 0 {
		http.Error(w, "no files to download", http.StatusConflict)
		return
	}
	file := sess.pending[0].Object
	if sess.reader == nil {
		f, err := os.Open(file)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		sess.reader = f
	}

	buf := make([]byte, BufferSize)
	n, err := readChunk(sess.reader, buf)
	if err != nil {
		sess.closeReader()
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	b := Blob{Payload: buf[:n], Len: n, FilesLeft: len(sess.pending), FilePath: file}
	if n == 0 {
		sess.pending = sess.pending[1:]
		sess.closeReader()
		b.FilesLeft = len(sess.pending)
		b.LastPacket = true
	}
	logrus.Debugf("download %s to %s: %d bytes, %d files left", file, addr, n, b.FilesLeft)
	writeMsg(w, &b)
}

// handleLink receives an artifact pushed by a Sender, chunk by chunk, into
// the receive directory.
func (s *Server) handleLink(w http.ResponseWriter, r *http.Request) {
	addr := clientAddr(r)
	var b Blob
	if err := decode(r.Body, &b); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := b.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	sess := s.sessions.Get(addr)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if err := s.receive(sess, &b); err != nil {
		logrus.Errorf("link from %s: %v", addr, err)
		writeMsg(w, Response{Status: StatusError, Message: err.Error()})
		return
	}
	writeMsg(w, Response{Status: StatusOK})
}

func (s *Server) receive(sess *Session, b *Blob) error {
	dest := filepath.Join(s.recvDir, filepath.Base(b.FilePath))
	f, ok := sess.writers[b.FilePath]
	if !ok {
		if err := os.MkdirAll(s.recvDir, 0o755); err != nil {
			return err
		}
		var err error
		if f, err = os.Create(dest); err != nil {
			return err
		}
		sess.writers[b.FilePath] = f
	}
	if _, err := f.Write(b.Payload); err != nil {
		return err
	}
	if !b.LastPacket {
		return nil
	}
	delete(sess.writers, b.FilePath)
	if err := f.Close(); err != nil {
		return err
	}
	logrus.Infof("received %s", dest)
	return os.Chmod(dest, 0o755)
}
