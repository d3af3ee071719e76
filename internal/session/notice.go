package session

import (
	"time"
)

// NoticeKind classifies a transient, user-visible notification.
type NoticeKind string

const (
	// NoticeLoginRequired is sent when a cart mutation is attempted without
	// a valid credential. The presentation layer should start a login flow.
	NoticeLoginRequired NoticeKind = "login_required"

	// NoticeSessionExpired is sent when the server rejected the credential.
	// The credential has been purged; the local cart is kept.
	NoticeSessionExpired NoticeKind = "session_expired"

	// NoticeSyncFailed is sent when a background sync failed. The local
	// mutation it belongs to is kept.
	NoticeSyncFailed NoticeKind = "sync_failed"

	// NoticeSynced is sent when the server acknowledged a mutation.
	NoticeSynced NoticeKind = "synced"

	// NoticeInvalidInput is sent when a mutation was rejected before any
	// state changed.
	NoticeInvalidInput NoticeKind = "invalid_input"
)

// Notice is a single notification delivered on Session.Notices.
type Notice struct {
	Kind      NoticeKind `json:"kind"`
	Message   string     `json:"message"`
	ProductID string     `json:"productId,omitempty"`
	Size      string     `json:"size,omitempty"`
	Time      time.Time  `json:"time"`

	// Err is the underlying error, if any.
	Err error `json:"-"`
}
