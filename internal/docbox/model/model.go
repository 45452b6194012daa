// Package model defines the Docbox entity model: folders, files, links,
// generated artifacts, edit history, and presigned upload tasks.
//
// Every entity is scoped to a tenant database; nothing here carries an
// ambient tenant reference, matching the "no ambient tenant" rule.
package model

import (
	"time"

	"github.com/google/uuid"
)

// User is supplied by the upstream proxy; Docbox treats it as an opaque
// identifier rendered on display only.
type User struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	ImageID *string `json:"image_id,omitempty"`
}

// Folder is a node in the per-document-box folder forest. The document box
// root has FolderID == nil.
type Folder struct {
	ID            uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Name          string     `gorm:"not null" json:"name"`
	DocumentBox   string     `gorm:"column:document_box;not null;index" json:"document_box"`
	FolderID      *uuid.UUID `gorm:"column:folder_id;index" json:"folder_id,omitempty"`
	Pinned        bool       `gorm:"not null;default:false" json:"pinned"`
	CreatedAt     time.Time  `gorm:"not null" json:"created_at"`
	CreatedBy     *string    `gorm:"column:created_by" json:"created_by,omitempty"`
}

func (Folder) TableName() string { return "docbox_folders" }

// IsRoot reports whether f is the root folder of its document box.
func (f Folder) IsRoot() bool { return f.FolderID == nil }

// File is an uploaded or derived binary rooted in exactly one folder.
type File struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Name      string     `gorm:"not null" json:"name"`
	Mime      string     `gorm:"not null" json:"mime"`
	FolderID  uuid.UUID  `gorm:"column:folder_id;not null;index" json:"folder_id"`
	ParentID  *uuid.UUID `gorm:"column:parent_id;index" json:"parent_id,omitempty"`
	Hash      string     `gorm:"not null" json:"hash"`
	Size      int64      `gorm:"not null" json:"size"`
	Encrypted bool       `gorm:"not null;default:false" json:"encrypted"`
	Pinned    bool       `gorm:"not null;default:false" json:"pinned"`
	FileKey   string     `gorm:"column:file_key;not null" json:"-"`
	CreatedAt time.Time  `gorm:"not null" json:"created_at"`
	CreatedBy *string    `gorm:"column:created_by" json:"created_by,omitempty"`
}

func (File) TableName() string { return "docbox_files" }

// Link is a stored URL, not a file.
type Link struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name      string    `gorm:"not null" json:"name"`
	Value     string    `gorm:"not null" json:"value"`
	FolderID  uuid.UUID `gorm:"column:folder_id;not null;index" json:"folder_id"`
	Pinned    bool      `gorm:"not null;default:false" json:"pinned"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	CreatedBy *string   `gorm:"column:created_by" json:"created_by,omitempty"`
}

func (Link) TableName() string { return "docbox_links" }

// GeneratedFileType enumerates the artifact kinds a derivation may produce.
type GeneratedFileType string

const (
	GeneratedPdf            GeneratedFileType = "Pdf"
	GeneratedCoverPage      GeneratedFileType = "CoverPage"
	GeneratedSmallThumbnail GeneratedFileType = "SmallThumbnail"
	GeneratedLargeThumbnail GeneratedFileType = "LargeThumbnail"
	GeneratedTextContent    GeneratedFileType = "TextContent"
	GeneratedHtmlContent    GeneratedFileType = "HtmlContent"
	GeneratedJsonMetadata   GeneratedFileType = "JsonMetadata"
	GeneratedEmail          GeneratedFileType = "Email"
)

// GeneratedFile is an artifact produced from a source File by the
// processing pipeline. It is content-addressed by Hash for idempotence.
type GeneratedFile struct {
	ID        uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	FileID    uuid.UUID         `gorm:"column:file_id;not null;index" json:"file_id"`
	Mime      string            `gorm:"not null" json:"mime"`
	Type      GeneratedFileType `gorm:"column:type;not null" json:"type"`
	Hash      string            `gorm:"not null" json:"hash"`
	FileKey   string            `gorm:"column:file_key;not null" json:"-"`
	CreatedAt time.Time         `gorm:"not null" json:"created_at"`
}

func (GeneratedFile) TableName() string { return "docbox_generated_files" }

// FilePage is one page's worth of extracted text, 1-indexed.
type FilePage struct {
	FileID  uuid.UUID `gorm:"column:file_id;primaryKey" json:"file_id"`
	Page    int       `gorm:"primaryKey" json:"page"`
	Content string    `gorm:"not null" json:"content"`
}

func (FilePage) TableName() string { return "docbox_file_pages" }

// EditHistoryType enumerates recognized audit event kinds.
type EditHistoryType string

const (
	EditMoveToFolder EditHistoryType = "MoveToFolder"
	EditRename       EditHistoryType = "Rename"
	EditLinkValue    EditHistoryType = "LinkValue"
	EditCreate       EditHistoryType = "Create"
)

// EditHistoryEntry is an append-only audit record referencing exactly one
// subject (file, link, or folder).
type EditHistoryEntry struct {
	ID       uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	FileID   *uuid.UUID      `gorm:"column:file_id;index" json:"file_id,omitempty"`
	LinkID   *uuid.UUID      `gorm:"column:link_id;index" json:"link_id,omitempty"`
	FolderID *uuid.UUID      `gorm:"column:folder_id;index" json:"folder_id,omitempty"`
	UserID   *string         `gorm:"column:user_id" json:"user_id,omitempty"`
	Type     EditHistoryType `gorm:"column:type;not null" json:"type"`
	Metadata JSONMap         `gorm:"column:metadata;type:jsonb" json:"metadata"`
	// Seq is a monotonically increasing tie-breaker used only for
	// deterministic ordering in tests; never exposed as a "version".
	Seq       int64     `gorm:"autoIncrement" json:"-"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (EditHistoryEntry) TableName() string { return "docbox_edit_history" }

// Subject reports which single subject this entry belongs to. Exactly one
// of file/link/folder is expected to be non-nil per §8's invariant.
func (e EditHistoryEntry) Subject() (kind string, id uuid.UUID) {
	switch {
	case e.FileID != nil:
		return "file", *e.FileID
	case e.LinkID != nil:
		return "link", *e.LinkID
	case e.FolderID != nil:
		return "folder", *e.FolderID
	default:
		return "", uuid.Nil
	}
}

// ResolvedLinkMetadata is a TTL-cached scrape result for a Link's URL.
type ResolvedLinkMetadata struct {
	URL         string    `gorm:"primaryKey" json:"url"`
	Title       *string   `json:"title,omitempty"`
	Description *string   `json:"description,omitempty"`
	Favicon     *string   `json:"favicon,omitempty"`
	Image       *string   `json:"image,omitempty"`
	ExpiresAt   time.Time `gorm:"column:expires_at;not null" json:"expires_at"`
}

func (ResolvedLinkMetadata) TableName() string { return "docbox_resolved_link_metadata" }

// FolderPathSegment is one element of a resolved folder path.
type FolderPathSegment struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// FolderCounts is the aggregate subtree count for a folder root.
type FolderCounts struct {
	Files   int `json:"files"`
	Links   int `json:"links"`
	Folders int `json:"folders"`
}

// Tenant is a row in the root registry database (internal/tenant reads this
// table to build a Handle). Field names follow the original source exactly:
// s3_name (not "bucket"), os_index_name (not "index_name").
type Tenant struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name          string    `gorm:"not null" json:"name"`
	DBName        string    `gorm:"column:db_name;not null" json:"db_name"`
	DBSecretName  string    `gorm:"column:db_secret_name;not null" json:"db_secret_name"`
	S3Name        string    `gorm:"column:s3_name;not null" json:"s3_name"`
	OsIndexName   string    `gorm:"column:os_index_name;not null" json:"os_index_name"`
	Env           string    `gorm:"column:env;not null;index" json:"env"`
	EventQueueURL string    `gorm:"column:event_queue_url;not null" json:"event_queue_url"`
}

func (Tenant) TableName() string { return "docbox_tenants" }

// WithExtra wraps an entity with its optional joined creator and last editor the way
// the "resolve with extras" reads do (cb_/lmb_ prefixed columns upstream).
type WithExtra[T any] struct {
	Entity         T          `json:"entity"`
	CreatedBy      *User      `json:"created_by,omitempty"`
	LastModifiedBy *User      `json:"last_modified_by,omitempty"`
	LastModifiedAt *time.Time `json:"last_modified_at,omitempty"`
	Path           []FolderPathSegment `json:"path,omitempty"`
}
