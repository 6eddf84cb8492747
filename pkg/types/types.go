package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BackendStatus is the lifecycle state of a storage backend.
//
// "active" means eligible for allocation, not exclusive: more than one
// backend can be active at a time and the router picks the first by
// (priority, id). Backends are never hard-deleted, only transitioned.
type BackendStatus string

const (
	BackendActive   BackendStatus = "active"
	BackendInactive BackendStatus = "inactive"
	BackendFull     BackendStatus = "full"
)

// Valid reports whether s is one of the known backend states.
func (s BackendStatus) Valid() bool {
	switch s {
	case BackendActive, BackendInactive, BackendFull:
		return true
	}
	return false
}

// Backend is a registered remote storage target (a git repository) plus
// its local bookkeeping row.
//
// SizeEstimate is maintained additively on upload and overwritten by
// reconciliation; deletions do not decrement it, so it drifts upward
// until the next authoritative sync.
type Backend struct {
	ID           uint          `json:"id" gorm:"primaryKey"`
	Name         string        `json:"name" gorm:"uniqueIndex;not null"`
	Owner        string        `json:"owner" gorm:"not null"`
	Token        string        `json:"-"`
	DeployHook   string        `json:"deploy_hook,omitempty"`
	Status       BackendStatus `json:"status" gorm:"default:active;index"`
	SizeEstimate int64         `json:"size_estimate" gorm:"default:0"`
	FileCount    int64         `json:"file_count" gorm:"default:0"`
	Priority     int           `json:"priority" gorm:"default:0"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// TableName maps backends onto the repositories table.
func (Backend) TableName() string { return "repositories" }

// Setting is a single key/value configuration row with upsert semantics.
type Setting struct {
	Key       string    `json:"key" gorm:"primaryKey"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Setting) TableName() string { return "settings" }

// Image records an uploaded file and the backend it landed on.
// The row is advisory bookkeeping: failing to write it never fails
// the upload itself.
type Image struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Filename  string    `json:"filename" gorm:"not null;index"`
	Size      int64     `json:"size"`
	MimeType  string    `json:"mime_type"`
	Path      string    `json:"path" gorm:"not null"`
	SHA       string    `json:"sha"`
	BackendID uint      `json:"repository_id" gorm:"column:repository_id;index"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Image) TableName() string { return "images" }

// AuthSession is a logged-in admin session referenced by the session_id
// cookie.
type AuthSession struct {
	ID        uuid.UUID `json:"id" gorm:"primaryKey"`
	ExpiresAt time.Time `json:"expires_at" gorm:"index"`
	CreatedAt time.Time `json:"created_at"`
}

func (AuthSession) TableName() string { return "auth_sessions" }

// BeforeCreate generates a token for the session ID.
func (s *AuthSession) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// Allocation is the router's answer for "where do N bytes go".
type Allocation struct {
	Backend     *Backend `json:"repository"`
	Provisioned bool     `json:"need_new_repo"`
}

// ReconcileResult is the outcome of syncing one backend against the
// authoritative remote size.
type ReconcileResult struct {
	BackendID uint          `json:"id"`
	Name      string        `json:"name"`
	Size      int64         `json:"size"`
	Threshold int64         `json:"threshold"`
	IsFull    bool          `json:"is_full"`
	Status    BackendStatus `json:"status"`
}

// UploadResult carries the public link formats for a stored image.
type UploadResult struct {
	URL      string `json:"url"`
	Markdown string `json:"markdown"`
	HTML     string `json:"html"`
	BBCode   string `json:"bbcode"`
}

// ChunkReceipt reports progress after a chunk lands.
type ChunkReceipt struct {
	ReceivedCount int `json:"uploaded_chunks"`
	TotalChunks   int `json:"total_chunks"`
}

// LoginRequest is the admin login body.
type LoginRequest struct {
	Password string `json:"password" binding:"required"`
}

// APIResponse is the standard JSON envelope for every endpoint.
type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}
