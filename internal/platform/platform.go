// Package platform implements platform detection and its fixed capability
// table, as a closed enumerated variant rather than runtime string
// sniffing spread across call sites — the small closed-variant style
// bringyour-connect uses for wire enumerations like ProvideMode in
// connect/transfer.go.
package platform

import "strings"

type kind int

const (
	browserKind kind = iota
	reactNativeKind
	serverKind
	otherKind
)

// Platform identifies a client runtime. kind is the closed set the broker
// dispatches and binds adapters on; raw carries the literal x-platform
// header value when kind is otherKind and the header didn't match a known
// name, so an unrecognized platform's own hint survives onto the welcome
// envelope instead of being collapsed to the bare string "other".
type Platform struct {
	kind kind
	raw  string
}

var (
	Browser     = Platform{kind: browserKind}
	ReactNative = Platform{kind: reactNativeKind}
	Server      = Platform{kind: serverKind} // "nodejs" on the wire
	Other       = Platform{kind: otherKind}
)

func (p Platform) String() string {
	switch p.kind {
	case browserKind:
		return "browser"
	case reactNativeKind:
		return "react-native"
	case serverKind:
		return "nodejs"
	default:
		if p.raw != "" {
			return p.raw
		}
		return "other"
	}
}

// Detect maps an explicit x-platform header (if present) or a User-Agent
// string to a Platform: read the platform hint from an x-platform header
// if present, else infer it from user-agent substrings. An unrecognized
// header value is kept verbatim on the returned Platform rather than
// discarded.
func Detect(headerHint string, userAgent string) Platform {
	switch headerHint {
	case "browser":
		return Browser
	case "react-native":
		return ReactNative
	case "nodejs":
		return Server
	case "":
		// fall through to user-agent sniffing
	default:
		return Platform{kind: otherKind, raw: headerHint}
	}
	return detectFromUserAgent(userAgent)
}

func detectFromUserAgent(userAgent string) Platform {
	if strings.Contains(userAgent, "React Native") {
		return ReactNative
	}
	if strings.Contains(userAgent, "Mozilla") || strings.Contains(userAgent, "Chrome") {
		return Browser
	}
	return Server
}

// Canonical strips any raw hint, returning the bare kind. storage.Registry
// keys adapter bindings on this rather than on Platform itself, since
// Detect gives every unrecognized header its own distinct raw value and a
// registry keyed on the full struct would need one Bind call per possible
// hint instead of one per kind.
func (p Platform) Canonical() Platform {
	return Platform{kind: p.kind}
}

// Capabilities returns the exact, order-significant capability list for a
// platform. It is a pure function of Platform's kind; an Other platform's
// raw hint does not affect the table.
func Capabilities(p Platform) []string {
	switch p.kind {
	case browserKind:
		return []string{"localStorage", "indexedDB", "sessionStorage"}
	case reactNativeKind:
		return []string{"asyncStorage", "sqlite", "secureStorage"}
	case serverKind:
		return []string{"filesystem", "sqlite", "memory"}
	default:
		return []string{"memory"}
	}
}
