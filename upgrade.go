package websock

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"

	"golang.org/x/net/http/httpguts"
)

// UpgradeOptions represents the options available to pass to
// UpgradeHTTP.
type UpgradeOptions struct {
	// InsecureSkipVerify disables UpgradeHTTP's origin verification
	// behaviour. By default the handshake only succeeds when the
	// javascript initiating it runs on the same domain as the
	// server, to prevent CSRF through cookie carrying cross origin
	// WebSocket dials.
	InsecureSkipVerify bool

	// Session configures the resulting Session.
	Session *SessionOptions
}

// UpgradeHTTP accepts a WebSocket handshake arriving through a
// net/http server and upgrades the connection to a Session. The
// ResponseWriter must implement http.Hijacker.
//
// Only the versioned drafts can arrive this way; a hixie-76
// handshake carries key bytes net/http cannot deliver, so serve
// legacy clients from a raw listener with NewSession instead.
//
// If an error occurs, UpgradeHTTP will always write an appropriate
// response so you do not have to.
func UpgradeHTTP(w http.ResponseWriter, r *http.Request, opts *UpgradeOptions) (*Session, error) {
	s, err := upgrade(w, r, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade http connection: %w", err)
	}
	return s, nil
}

func upgrade(w http.ResponseWriter, r *http.Request, opts *UpgradeOptions) (*Session, error) {
	if opts == nil {
		opts = &UpgradeOptions{}
	}

	err := verifyClientRequest(w, r)
	if err != nil {
		return nil, err
	}

	if !opts.InsecureSkipVerify {
		err = authenticateOrigin(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusForbidden)
			return nil, err
		}
	}

	hj, ok := w.(http.Hijacker)
	if !ok {
		err = errors.New("passed ResponseWriter does not implement http.Hijacker")
		http.Error(w, http.StatusText(http.StatusNotImplemented), http.StatusNotImplemented)
		return nil, err
	}

	netConn, brw, err := hj.Hijack()
	if err != nil {
		err = fmt.Errorf("failed to hijack connection: %w", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return nil, err
	}

	// https://github.com/golang/go/issues/32314
	b, _ := brw.Reader.Peek(brw.Reader.Buffered())
	rwc := &prefixedConn{
		r: io.MultiReader(bytes.NewReader(b), netConn),
		c: netConn,
	}

	s := NewSession(rwc, opts.Session)
	err = s.AcceptRequest(httpRequest(r))
	if err != nil {
		return nil, err
	}
	return s, nil
}

// prefixedConn replays bytes the http server had already buffered
// before handing the rest of the transport through.
type prefixedConn struct {
	r io.Reader
	c io.WriteCloser
}

func (pc *prefixedConn) Read(p []byte) (int, error)  { return pc.r.Read(p) }
func (pc *prefixedConn) Write(p []byte) (int, error) { return pc.c.Write(p) }
func (pc *prefixedConn) Close() error                { return pc.c.Close() }

// httpRequest converts a net/http request into a handshake Request.
// net/http drops header order; the handshake does not depend on it.
func httpRequest(r *http.Request) *Request {
	req := &Request{
		Method: r.Method,
		Path:   r.URL.RequestURI(),
		Proto:  "HTTP/1.1",
	}
	req.Header.Set("Host", r.Host)
	for key, vs := range r.Header {
		for _, v := range vs {
			req.Header.Add(key, v)
		}
	}
	return req
}

func verifyClientRequest(w http.ResponseWriter, r *http.Request) error {
	if !r.ProtoAtLeast(1, 1) {
		err := errMalformed("handshake request must be at least HTTP/1.1: %q", r.Proto)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return err
	}

	if !httpHeaderContainsToken(r.Header, "Connection", "Upgrade") {
		err := errMalformed("Connection header %q does not contain Upgrade", r.Header.Get("Connection"))
		http.Error(w, err.Error(), http.StatusBadRequest)
		return err
	}

	if !httpHeaderContainsToken(r.Header, "Upgrade", "websocket") {
		err := errMalformed("Upgrade header %q does not contain websocket", r.Header.Get("Upgrade"))
		http.Error(w, err.Error(), http.StatusBadRequest)
		return err
	}

	if r.Method != "GET" {
		err := errMalformed("handshake request method is not GET but %q", r.Method)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return err
	}

	if r.Header.Get("Sec-WebSocket-Key") == "" {
		err := errMalformed("missing Sec-WebSocket-Key")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return err
	}

	var hdr Header
	hdr.Set("Sec-WebSocket-Version", r.Header.Get("Sec-WebSocket-Version"))
	if _, err := SelectProtocol(hdr); err != nil {
		err = fmt.Errorf("%w: version %q (supported: %s)", ErrNotSupported,
			r.Header.Get("Sec-WebSocket-Version"), supportedVersions())
		w.Header().Set("Sec-WebSocket-Version", supportedVersions())
		http.Error(w, err.Error(), http.StatusBadRequest)
		return err
	}

	return nil
}

func httpHeaderContainsToken(h http.Header, key, token string) bool {
	key = textproto.CanonicalMIMEHeaderKey(key)
	return httpguts.HeaderValuesContainsToken(h[key], token)
}

func authenticateOrigin(r *http.Request) error {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return nil
	}
	u, err := url.Parse(origin)
	if err != nil {
		return fmt.Errorf("failed to parse Origin header %q: %w", origin, err)
	}
	if strings.EqualFold(u.Host, r.Host) {
		return nil
	}
	return fmt.Errorf("request origin %q is not authorized for host %q", origin, r.Host)
}
