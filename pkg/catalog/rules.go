package catalog

import (
	"cmp"
	"slices"
	"strings"
	"time"
	"unicode"
)

// The helpers below hold the row rules every backend applies, so the
// backends differ only in how they store and lock.

// RequireTenant panics when a listing is not tenant-scoped.
func RequireTenant(filter Filter) {
	if filter.Tenant == "" {
		panic("catalog: List called without a tenant filter")
	}
}

// PrepareCreate validates obj and fills in the version-1 fields.
func PrepareCreate(obj *StoredObject) error {
	if err := validateRow(obj); err != nil {
		return err
	}

	obj.Tags = NormalizeTags(obj.Tags)
	obj.LineageID = obj.ID
	obj.Version = 1
	obj.IsLatest = true
	obj.PreviousVersionID = ""
	fillTimestamps(obj)
	return nil
}

// PrepareSuccessor validates next and derives its lineage fields from old.
// It does not check that old is latest; backends do that inside their
// atomic section.
func PrepareSuccessor(old, next *StoredObject) error {
	next.Tenant = old.Tenant
	next.Module = old.Module
	next.EntityType = old.EntityType
	next.EntityID = old.EntityID
	if err := validateRow(next); err != nil {
		return err
	}
	if next.ID == old.ID {
		return NewError(ErrAlreadyExists, "successor reuses the superseded id", next.ID)
	}

	next.Tags = NormalizeTags(next.Tags)
	next.LineageID = old.LineageID
	next.Version = old.Version + 1
	next.IsLatest = true
	next.PreviousVersionID = old.ID
	fillTimestamps(next)
	return nil
}

// NewestVersion returns the row with the highest version, or nil.
func NewestVersion(rows []*StoredObject) *StoredObject {
	if len(rows) == 0 {
		return nil
	}
	return slices.MaxFunc(rows, func(a, b *StoredObject) int {
		return cmp.Compare(a.Version, b.Version)
	})
}

// SortObjects orders rows oldest first, breaking ties by id.
func SortObjects(rows []*StoredObject) {
	slices.SortFunc(rows, func(a, b *StoredObject) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Version, b.Version); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

// SortGrants orders grants oldest first, breaking ties by id.
func SortGrants(grants []*ShareGrant) {
	slices.SortFunc(grants, func(a, b *ShareGrant) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

// ValidateGrant checks the fields a grant needs before it is stored.
func ValidateGrant(g *ShareGrant) error {
	switch {
	case g.ID == "":
		return NewError(ErrInvalidArgument, "grant id is required", "")
	case g.Tenant == "":
		return NewError(ErrInvalidArgument, "grant tenant is required", g.ID)
	case g.ObjectID == "":
		return NewError(ErrInvalidArgument, "grant object id is required", g.ID)
	case !g.Level.Valid():
		return NewError(ErrInvalidArgument, "unknown share level "+string(g.Level), g.ID)
	case !ValidIdentifier(g.ID) || !ValidIdentifier(g.Tenant) || !ValidIdentifier(g.ObjectID):
		return NewError(ErrInvalidArgument, "grant identifiers contain control characters", "")
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}
	return nil
}

// CheckGrantActive returns ErrGrantInactive when g cannot be used at now.
func CheckGrantActive(g *ShareGrant, now time.Time) error {
	if g.Revoked() {
		return NewError(ErrGrantInactive, "grant revoked", g.ID)
	}
	if g.Expired(now) {
		return NewError(ErrGrantInactive, "grant expired", g.ID)
	}
	return nil
}

func validateRow(obj *StoredObject) error {
	switch {
	case obj == nil:
		return NewError(ErrInvalidArgument, "object is required", "")
	case obj.ID == "":
		return NewError(ErrInvalidArgument, "object id is required", "")
	case obj.Tenant == "":
		return NewError(ErrInvalidArgument, "tenant is required", obj.ID)
	case obj.Module == "":
		return NewError(ErrInvalidArgument, "module is required", obj.ID)
	case obj.Key == "":
		return NewError(ErrInvalidArgument, "storage key is required", obj.ID)
	case obj.EntityID != "" && obj.EntityType == "":
		return NewError(ErrInvalidArgument, "entity id without entity type", obj.ID)
	}

	for _, f := range []struct{ name, value string }{
		{"id", obj.ID},
		{"tenant", obj.Tenant},
		{"module", obj.Module},
		{"entity type", obj.EntityType},
		{"entity id", obj.EntityID},
	} {
		if !ValidIdentifier(f.value) {
			return NewError(ErrInvalidArgument, f.name+" contains control characters", "")
		}
	}
	return nil
}

// ValidIdentifier reports whether s is free of control characters. Index
// keys join identifiers with NUL, so a NUL inside one would let its rows
// fall under another identifier's scan prefix.
func ValidIdentifier(s string) bool {
	return !strings.ContainsFunc(s, unicode.IsControl)
}

// NormalizeTags returns tags as a set: trimmed, without blanks or
// duplicates, sorted. The input slice is not modified.
func NormalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			out = append(out, tag)
		}
	}
	slices.Sort(out)
	out = slices.Compact(out)
	if len(out) == 0 {
		return nil
	}
	return out
}

func fillTimestamps(obj *StoredObject) {
	now := time.Now().UTC()
	if obj.CreatedAt.IsZero() {
		obj.CreatedAt = now
	}
	if obj.UpdatedAt.IsZero() {
		obj.UpdatedAt = obj.CreatedAt
	}
	if obj.UpdatedBy == "" {
		obj.UpdatedBy = obj.CreatedBy
	}
}
