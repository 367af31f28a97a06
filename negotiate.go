package websock

import (
	"strconv"
	"strings"
)

// SelectProtocol inspects the version and key headers of a handshake
// request and returns the newest protocol version both sides
// support. A request may offer several versions in
// Sec-WebSocket-Version; ties break toward the newest. A request
// with hixie-76 key headers and no version header selects the legacy
// draft. SelectProtocol returns ErrNotSupported when there is no
// overlap.
func SelectProtocol(h Header) (*Protocol, error) {
	offered := offeredVersions(h)
	if len(offered) == 0 {
		if h.Get("Sec-WebSocket-Key1") != "" && h.Get("Sec-WebSocket-Key2") != "" {
			return Hixie76, nil
		}
		return nil, ErrNotSupported
	}

	// protocols is ordered newest first.
	for _, p := range protocols {
		if p.version == 0 {
			continue
		}
		for _, v := range offered {
			if v == p.version {
				return p, nil
			}
		}
	}
	return nil, ErrNotSupported
}

func offeredVersions(h Header) []int {
	var offered []int
	for _, val := range h.Values("Sec-WebSocket-Version") {
		for _, tok := range strings.Split(val, ",") {
			v, err := strconv.Atoi(strings.TrimSpace(tok))
			if err != nil {
				continue
			}
			offered = append(offered, v)
		}
	}
	return offered
}

// supportedVersions returns the versioned drafts as a
// Sec-WebSocket-Version header value, newest first.
func supportedVersions() string {
	var vs []string
	for _, p := range protocols {
		if p.version > 0 {
			vs = append(vs, strconv.Itoa(p.version))
		}
	}
	return strings.Join(vs, ", ")
}

// versionsSupporting returns the versioned drafts whose feature set
// covers fs, as a Sec-WebSocket-Version header value. Used in the
// RequireFeatures error response to tell the client which versions
// would have worked.
func versionsSupporting(fs FeatureSet) string {
	var vs []string
	for _, p := range protocols {
		if p.version > 0 && p.features.Has(fs) {
			vs = append(vs, strconv.Itoa(p.version))
		}
	}
	return strings.Join(vs, ", ")
}
