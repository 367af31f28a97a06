package websock

import (
	"testing"

	"github.com/websock-dev/websock/internal/test/assert"
)

func TestHandshakeHeader(t *testing.T) {
	t.Parallel()

	t.Run("caseInsensitive", func(t *testing.T) {
		t.Parallel()

		var h Header
		h.Set("sec-websocket-key", "abc")
		assert.Equal(t, "get", "abc", h.Get("Sec-WebSocket-Key"))
		assert.Equal(t, "get lower", "abc", h.Get("sec-websocket-key"))
	})

	t.Run("setReplacesAll", func(t *testing.T) {
		t.Parallel()

		var h Header
		h.Add("X-Thing", "1")
		h.Add("X-Thing", "2")
		h.Set("X-Thing", "3")

		assert.Equal(t, "values", []string{"3"}, h.Values("X-Thing"))
		assert.Equal(t, "len", 1, h.Len())
	})

	t.Run("addPreservesOrder", func(t *testing.T) {
		t.Parallel()

		var h Header
		h.Add("B", "1")
		h.Add("A", "2")
		h.Add("B", "3")

		var got []string
		h.Each(func(key, value string) {
			got = append(got, key+"="+value)
		})
		assert.Equal(t, "order", []string{"B=1", "A=2", "B=3"}, got)
		assert.Equal(t, "values", []string{"1", "3"}, h.Values("B"))
	})

	t.Run("containsToken", func(t *testing.T) {
		t.Parallel()

		var h Header
		h.Set("Connection", "keep-alive, Upgrade")
		if !headerContainsToken(h, "Connection", "Upgrade") {
			t.Fatal("expected Connection to contain Upgrade")
		}
		if headerContainsToken(h, "Connection", "close") {
			t.Fatal("expected Connection not to contain close")
		}
	})
}
