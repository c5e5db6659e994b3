// Package router carries typed messages between the three execution
// contexts (page, background, panel) over an asynchronous, at-most-once,
// best-effort transport. No context may assume another is alive: sends
// are fire-and-forget with independent error handling, and "no receiver"
// is a recoverable condition, not a failure to surface.
package router

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Origin identifies one of the three execution contexts.
type Origin string

const (
	OriginPage       Origin = "page"
	OriginBackground Origin = "background"
	OriginPanel      Origin = "panel"
)

// Kind is the closed enumeration of message types on the wire.
type Kind string

const (
	KindCaptureReported     Kind = "capture-reported"
	KindCaptureRequested    Kind = "capture-requested"
	KindPermissionRequested Kind = "permission-requested"
	KindLifecycleLoaded     Kind = "lifecycle-loaded"
	KindLocaleChanged       Kind = "locale-changed"
	KindThemeChanged        Kind = "theme-changed"
	KindTestPing            Kind = "test-ping"
)

// retryableKinds are idempotent: duplicate delivery is harmless, so
// failed sends may be retried. Kinds whose duplicates would be
// user-visible rely on the dedup filters instead and are never retried.
var retryableKinds = map[Kind]bool{
	KindCaptureRequested: true,
}

// Retryable reports whether failed sends of this kind may be retried.
func (k Kind) Retryable() bool { return retryableKinds[k] }

// Message is the unit of cross-context communication.
type Message struct {
	Kind    Kind              `json:"kind"`
	Origin  Origin            `json:"origin"`
	Payload json.RawMessage   `json:"payload,omitempty"`
	Meta    map[string]string `json:"meta,omitempty"`
}

// idemPrefixLen bounds how much payload feeds the idempotency hash.
const idemPrefixLen = 128

// idemHash identifies a logical message for the router's idempotency
// window: kind, the type annotation from metadata, and a payload prefix.
// Two deliveries of the same logical user action hash identically even
// when they arrive through different trigger paths.
func (m Message) idemHash() string {
	p := m.Payload
	if len(p) > idemPrefixLen {
		p = p[:idemPrefixLen]
	}
	h := sha256.Sum256([]byte(string(m.Kind) + "\x00" + m.Meta["type"] + "\x00" + string(p)))
	return hex.EncodeToString(h[:16])
}

// NewMessage marshals payload and builds a Message.
func NewMessage(kind Kind, origin Origin, payload any, meta map[string]string) (Message, error) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return Message{}, fmt.Errorf("router: marshal %s payload: %w", kind, err)
		}
		raw = b
	}
	return Message{Kind: kind, Origin: origin, Payload: raw, Meta: meta}, nil
}
