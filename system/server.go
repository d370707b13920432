package system

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/OpenPrinting/goipp"
	"github.com/rusq/httpex"
)

// MaxDocumentSize bounds a Print-Job/Send-Document request body, matching
// the teacher's ippsrv.MaxDocumentSize guard.
var MaxDocumentSize int64 = 104857600

const ippMIMEType = "application/ipp"

// httpServer is the net/http front end over Dispatch: parse the IPP
// request, hand it to Dispatch, encode the response. The mux accepts POST
// on /ipp/print, /ipp/system, /printers/{id} and a catch-all "/"; every
// route goes to the same handler, and the target object is picked by
// Dispatch from the request's printer-uri, not from the HTTP path.
type httpServer struct {
	sys *System
}

// NewHTTPServer builds the IPP-over-HTTP listener for sys.
func (s *System) NewHTTPServer(addr string) *http.Server {
	hs := &httpServer{sys: s}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /ipp/print", hs.handleIPP)
	mux.HandleFunc("POST /ipp/system", hs.handleIPP)
	mux.HandleFunc("POST /printers/{id}", hs.handleIPP)
	mux.HandleFunc("POST /", hs.handleIPP)

	return &http.Server{
		Addr:    addr,
		Handler: httpex.LogMiddleware(mux, log.Default()),
	}
}

func (hs *httpServer) handleIPP(w http.ResponseWriter, r *http.Request) {
	if r.Body == nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var msg goipp.Message
	if err := msg.Decode(r.Body); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, MaxDocumentSize))
	if err != nil {
		hs.sys.Logger.Warn("system: failed reading request body", "error", err)
	}

	req := Request{
		Message:        &msg,
		Host:           r.Host,
		AcceptLanguage: r.Header.Get("Accept-Language"),
		User:           requestingUser(r),
		Authenticated:  r.TLS != nil,
		AdminGroup:     hs.sys.authorize(r, hs.sys.adminGroup),
		PrintGroup:     hs.sys.authorize(r, hs.sys.printGroup),
	}
	if len(body) > 0 {
		req.Body = bytes.NewReader(body)
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	resp := hs.sys.Dispatch(ctx, req)

	w.Header().Set("Content-Type", ippMIMEType)
	if err := resp.Encode(w); err != nil {
		hs.sys.Logger.Error("system: failed to encode response", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

// requestingUser resolves the IPP requesting-user-name from basic auth, if
// present, otherwise leaves it for the handler to fall back on the
// operation attribute.
func requestingUser(r *http.Request) string {
	if user, _, ok := r.BasicAuth(); ok {
		return user
	}
	return ""
}

// authorize is a placeholder authorization hook: with no group name set,
// every request passes (an unauthenticated single-user deployment). With a
// group name set, any request carrying HTTP basic auth with a non-empty user
// name passes; the password is not verified and group membership is not
// checked.
func (s *System) authorize(r *http.Request, group string) bool {
	if group == "" {
		return true
	}
	user, _, ok := r.BasicAuth()
	return ok && user != ""
}

// Serve runs the HTTP listener until ctx is canceled, then gracefully
// shuts it down, matching the teacher's Shutdown-with-timeout idiom
// (ippsrv/http.go's Server.Shutdown).
func (s *System) Serve(ctx context.Context, addr string) error {
	srv := s.NewHTTPServer(addr)
	s.MarkRunning()

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.Stop()
		if err := srv.Shutdown(sctx); err != nil {
			return fmt.Errorf("system: shutdown: %w", err)
		}
		return <-errCh
	case err := <-errCh:
		return err
	}
}
