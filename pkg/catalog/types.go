package catalog

import (
	"slices"
	"time"
)

// PermissionSet lists the actors allowed to perform each action on an
// object. The wildcard "*" matches any actor. IsPublic grants read to
// everyone, including anonymous callers, whatever Read contains.
type PermissionSet struct {
	Read     []string `json:"read"`
	Write    []string `json:"write"`
	Delete   []string `json:"delete"`
	Share    []string `json:"share"`
	IsPublic bool     `json:"is_public"`
}

// Clone returns a deep copy.
func (p PermissionSet) Clone() PermissionSet {
	return PermissionSet{
		Read:     slices.Clone(p.Read),
		Write:    slices.Clone(p.Write),
		Delete:   slices.Clone(p.Delete),
		Share:    slices.Clone(p.Share),
		IsPublic: p.IsPublic,
	}
}

// Metadata holds the descriptive fields a caller may attach to an upload.
type Metadata struct {
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Category    string   `json:"category,omitempty"`
}

// StoredObject is the catalog row for one version of a stored file.
type StoredObject struct {
	// ID uniquely identifies this version.
	ID string `json:"id"`

	// LineageID groups every version of the same logical file. It equals
	// the ID of version 1.
	LineageID string `json:"lineage_id"`

	Tenant     string `json:"tenant"`
	Module     string `json:"module"`
	EntityType string `json:"entity_type,omitempty"`
	EntityID   string `json:"entity_id,omitempty"`

	// Key is the object-store key holding the bytes.
	Key string `json:"key"`

	// Path is the resolved absolute location of the bytes, when the
	// object store exposes one.
	Path string `json:"path,omitempty"`

	Filename  string `json:"filename"`
	Extension string `json:"extension,omitempty"`
	MimeType  string `json:"mime_type"`
	Size      int64  `json:"size"`

	Metadata

	Version           int    `json:"version"`
	IsLatest          bool   `json:"is_latest"`
	PreviousVersionID string `json:"previous_version_id,omitempty"`

	Permissions PermissionSet `json:"permissions"`

	CreatedBy      string     `json:"created_by"`
	UpdatedBy      string     `json:"updated_by"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	LastAccessedAt *time.Time `json:"last_accessed_at,omitempty"`
}

// Clone returns a deep copy so callers cannot mutate stored rows.
func (o *StoredObject) Clone() *StoredObject {
	if o == nil {
		return nil
	}
	c := *o
	c.Tags = slices.Clone(o.Tags)
	c.Permissions = o.Permissions.Clone()
	if o.LastAccessedAt != nil {
		t := *o.LastAccessedAt
		c.LastAccessedAt = &t
	}
	return &c
}

// ShareLevel is what a grant lets its bearer do.
type ShareLevel string

const (
	ShareView     ShareLevel = "view"
	ShareDownload ShareLevel = "download"
	ShareEdit     ShareLevel = "edit"
)

// Valid reports whether l is a known level.
func (l ShareLevel) Valid() bool {
	switch l {
	case ShareView, ShareDownload, ShareEdit:
		return true
	}
	return false
}

// ShareGrant is bearer-style access to one object. Grants are never erased:
// expired and revoked grants stay in the catalog as an audit trail.
type ShareGrant struct {
	ID         string     `json:"id"`
	Tenant     string     `json:"tenant"`
	ObjectID   string     `json:"object_id"`
	SharedBy   string     `json:"shared_by"`
	SharedWith string     `json:"shared_with"`
	Level      ShareLevel `json:"level"`

	// ExpiresAt is nil for grants that never expire.
	ExpiresAt *time.Time `json:"expires_at,omitempty"`

	// CodeHash is the bcrypt hash of the access code. Empty when the grant
	// has no code.
	CodeHash []byte `json:"code_hash,omitempty"`

	// Downloads counts successful resolutions of download grants.
	Downloads int64 `json:"downloads"`

	CreatedAt time.Time  `json:"created_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}

// HasCode reports whether the grant is protected by an access code.
func (g *ShareGrant) HasCode() bool {
	return len(g.CodeHash) > 0
}

// Expired reports whether the grant's expiry has passed at now.
func (g *ShareGrant) Expired(now time.Time) bool {
	return g.ExpiresAt != nil && !now.Before(*g.ExpiresAt)
}

// Revoked reports whether the grant was revoked.
func (g *ShareGrant) Revoked() bool {
	return g.RevokedAt != nil
}

// Clone returns a deep copy.
func (g *ShareGrant) Clone() *ShareGrant {
	if g == nil {
		return nil
	}
	c := *g
	c.CodeHash = slices.Clone(g.CodeHash)
	if g.ExpiresAt != nil {
		t := *g.ExpiresAt
		c.ExpiresAt = &t
	}
	if g.RevokedAt != nil {
		t := *g.RevokedAt
		c.RevokedAt = &t
	}
	return &c
}

// OrphanRecord notes object-store bytes that no catalog row may reference,
// left behind when a catalog write failed after the bytes were stored or a
// byte delete failed after the row was removed.
type OrphanRecord struct {
	Key        string    `json:"key"`
	Tenant     string    `json:"tenant,omitempty"`
	Reason     string    `json:"reason"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Filter selects catalog rows for List. Tenant is mandatory.
type Filter struct {
	Tenant     string
	Module     string
	EntityType string
	EntityID   string

	// IncludeHistory returns superseded versions as well as latest ones.
	IncludeHistory bool
}

// Matches reports whether o satisfies the filter.
func (f Filter) Matches(o *StoredObject) bool {
	if o.Tenant != f.Tenant {
		return false
	}
	if f.Module != "" && o.Module != f.Module {
		return false
	}
	if f.EntityType != "" && o.EntityType != f.EntityType {
		return false
	}
	if f.EntityID != "" && o.EntityID != f.EntityID {
		return false
	}
	return f.IncludeHistory || o.IsLatest
}
