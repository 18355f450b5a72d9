package dispatcher

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/morezero/operations-host/pkg/hooks"
	"github.com/morezero/operations-host/pkg/reqctx"
)

// DefaultMaxBodyBytes caps request bodies read by Handler.
const DefaultMaxBodyBytes int64 = 10 << 20

// Handler adapts a Dispatcher to net/http.
type Handler struct {
	d        *Dispatcher
	maxBytes int64
}

// NewHandler creates a Handler. maxBytes <= 0 selects DefaultMaxBodyBytes.
func NewHandler(d *Dispatcher, maxBytes int64) *Handler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBodyBytes
	}
	return &Handler{d: d, maxBytes: maxBytes}
}

// ServeHTTP reads the body, dispatches, and writes the response.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBytes))
	if err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		slog.Warn(fmt.Sprintf("%s - reading body of %s failed: %v", logPrefix, r.URL.Path, err))
		rc := reqctx.New(r.Context(), r.Method, r.URL.Path, r.Header, nil)
		_ = WriteHTTP(w, r, h.d.errorResponse(rc, status, hooks.CodeBadRequest, "unreadable request body", nil))
		return
	}

	req := &Request{
		Method:     r.Method,
		Path:       r.URL.Path,
		RawQuery:   r.URL.RawQuery,
		Header:     r.Header,
		Body:       body,
		RemoteAddr: r.RemoteAddr,
	}
	_ = h.d.Dispatch(r.Context(), req, func(resp *Response) error {
		return WriteHTTP(w, r, resp)
	})
}

// WriteHTTP writes resp to w. Static files are served with
// http.ServeContent, so an index.html is returned in place without a redirect.
func WriteHTTP(w http.ResponseWriter, r *http.Request, resp *Response) error {
	for k, vals := range resp.Header {
		for _, v := range vals {
			w.Header().Add(k, v)
		}
	}
	if resp.FilePath != "" {
		return serveFile(w, r, resp.FilePath)
	}
	if resp.ContentType != "" {
		w.Header().Set("Content-Type", resp.ContentType)
	}
	w.WriteHeader(resp.Status)
	if len(resp.Body) == 0 || r.Method == http.MethodHead {
		return nil
	}
	_, err := w.Write(resp.Body)
	return err
}

func serveFile(w http.ResponseWriter, r *http.Request, name string) error {
	f, err := os.Open(name)
	if err != nil {
		http.NotFound(w, r)
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		return err
	}
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
	return nil
}
