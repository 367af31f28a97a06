package websock

import (
	"net/textproto"

	"golang.org/x/net/http/httpguts"
)

// Header is an ordered mapping of handshake header fields. Keys are
// case-insensitive and canonicalized on every access; insertion
// order is preserved, unlike net/http's Header map.
type Header struct {
	kvs []headerField
}

type headerField struct {
	key   string
	value string
}

// Get returns the first value associated with key, or "".
func (h *Header) Get(key string) string {
	key = textproto.CanonicalMIMEHeaderKey(key)
	for _, kv := range h.kvs {
		if kv.key == key {
			return kv.value
		}
	}
	return ""
}

// Values returns all values associated with key in order.
func (h *Header) Values(key string) []string {
	key = textproto.CanonicalMIMEHeaderKey(key)
	var vs []string
	for _, kv := range h.kvs {
		if kv.key == key {
			vs = append(vs, kv.value)
		}
	}
	return vs
}

// Set replaces any existing values of key with value.
func (h *Header) Set(key, value string) {
	key = textproto.CanonicalMIMEHeaderKey(key)
	for i := range h.kvs {
		if h.kvs[i].key == key {
			h.kvs[i].value = value
			h.kvs = deleteAfter(h.kvs, key, i)
			return
		}
	}
	h.kvs = append(h.kvs, headerField{key, value})
}

// Add appends value to the values of key.
func (h *Header) Add(key, value string) {
	h.kvs = append(h.kvs, headerField{textproto.CanonicalMIMEHeaderKey(key), value})
}

// Len returns the number of header fields.
func (h *Header) Len() int { return len(h.kvs) }

// Each calls fn for every field in order.
func (h *Header) Each(fn func(key, value string)) {
	for _, kv := range h.kvs {
		fn(kv.key, kv.value)
	}
}

func deleteAfter(kvs []headerField, key string, i int) []headerField {
	out := kvs[:i+1]
	for _, kv := range kvs[i+1:] {
		if kv.key != key {
			out = append(out, kv)
		}
	}
	return out
}

// headerContainsToken reports whether any comma separated value of
// key contains token, per the HTTP token list grammar.
func headerContainsToken(h Header, key, token string) bool {
	return httpguts.HeaderValuesContainsToken(h.Values(key), token)
}
