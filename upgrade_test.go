package websock_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/websock-dev/websock"
	"github.com/websock-dev/websock/internal/test/assert"
)

func TestUpgradeHTTP(t *testing.T) {
	t.Parallel()

	newRequest := func(mutate func(r *http.Request)) *http.Request {
		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set("Connection", "Upgrade")
		r.Header.Set("Upgrade", "websocket")
		r.Header.Set("Sec-WebSocket-Version", "13")
		r.Header.Set("Sec-WebSocket-Key", "dGhlIHNhbXBsZSBub25jZQ==")
		if mutate != nil {
			mutate(r)
		}
		return r
	}

	testCases := []struct {
		name   string
		mutate func(r *http.Request)
		opts   *websock.UpgradeOptions

		wantStatus int
		wantBody   string
		wantHeader [2]string
	}{
		{
			name: "badVersion",
			mutate: func(r *http.Request) {
				r.Header.Set("Sec-WebSocket-Version", "9")
			},
			wantStatus: http.StatusBadRequest,
			wantHeader: [2]string{"Sec-WebSocket-Version", "13, 8"},
		},
		{
			name: "missingVersion",
			mutate: func(r *http.Request) {
				r.Header.Del("Sec-WebSocket-Version")
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "badMethod",
			mutate: func(r *http.Request) {
				r.Method = "POST"
			},
			wantStatus: http.StatusBadRequest,
			wantBody:   "not GET",
		},
		{
			name: "missingKey",
			mutate: func(r *http.Request) {
				r.Header.Del("Sec-WebSocket-Key")
			},
			wantStatus: http.StatusBadRequest,
			wantBody:   "Sec-WebSocket-Key",
		},
		{
			name: "badConnectionHeader",
			mutate: func(r *http.Request) {
				r.Header.Set("Connection", "close")
			},
			wantStatus: http.StatusBadRequest,
			wantBody:   "Upgrade",
		},
		{
			name: "badUpgradeHeader",
			mutate: func(r *http.Request) {
				r.Header.Set("Upgrade", "h2c")
			},
			wantStatus: http.StatusBadRequest,
			wantBody:   "websocket",
		},
		{
			name: "crossOrigin",
			mutate: func(r *http.Request) {
				r.Header.Set("Origin", "http://elsewhere.example")
			},
			wantStatus: http.StatusForbidden,
			wantBody:   "not authorized",
		},
		{
			name: "crossOriginAllowed",
			mutate: func(r *http.Request) {
				r.Header.Set("Origin", "http://elsewhere.example")
			},
			opts: &websock.UpgradeOptions{
				InsecureSkipVerify: true,
			},
			// The recorder cannot hijack, so a verified request dies
			// one step later.
			wantStatus: http.StatusNotImplemented,
		},
		{
			name:       "noHijacker",
			wantStatus: http.StatusNotImplemented,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			w := httptest.NewRecorder()
			_, err := websock.UpgradeHTTP(w, newRequest(tc.mutate), tc.opts)
			assert.Error(t, err)

			resp := w.Result()
			assert.Equal(t, "status", tc.wantStatus, resp.StatusCode)
			if tc.wantBody != "" {
				assert.Contains(t, w.Body.String(), tc.wantBody)
			}
			if tc.wantHeader[0] != "" {
				assert.Equal(t, "header", tc.wantHeader[1], resp.Header.Get(tc.wantHeader[0]))
			}
		})
	}
}
