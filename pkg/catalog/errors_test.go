package catalog

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStoreError_Helpers(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", NewError(ErrNotLatest, "version already superseded", "v1"))

	assert.True(t, IsNotLatest(err))
	assert.False(t, IsNotFound(err))
	code, ok := CodeOf(err)
	assert.True(t, ok)
	assert.Equal(t, ErrNotLatest, code)
	assert.Equal(t, "wrapped: version already superseded: v1", err.Error())

	_, ok = CodeOf(errors.New("plain"))
	assert.False(t, ok)
}

func TestIOError_Unwraps(t *testing.T) {
	cause := errors.New("disk on fire")
	err := IOError("create object", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "create object: disk on fire", err.Error())
}

func TestShareGrant_Activity(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	g := &ShareGrant{ID: "g"}

	assert.NoError(t, CheckGrantActive(g, now), "no expiry means active")

	past := now.Add(-time.Second)
	g.ExpiresAt = &past
	assert.True(t, g.Expired(now))
	assert.Error(t, CheckGrantActive(g, now))

	exact := now
	g.ExpiresAt = &exact
	assert.True(t, g.Expired(now), "a grant is unusable at its expiry instant")

	future := now.Add(time.Hour)
	g.ExpiresAt = &future
	g.RevokedAt = &now
	code, _ := CodeOf(CheckGrantActive(g, now))
	assert.Equal(t, ErrGrantInactive, code)
}

func TestFilter_Matches(t *testing.T) {
	obj := &StoredObject{Tenant: "t1", Module: "crm", EntityType: "deal", EntityID: "9", IsLatest: false}

	assert.False(t, Filter{Tenant: "t1"}.Matches(obj), "history hidden by default")
	assert.True(t, Filter{Tenant: "t1", IncludeHistory: true}.Matches(obj))
	assert.False(t, Filter{Tenant: "t2", IncludeHistory: true}.Matches(obj))
	assert.False(t, Filter{Tenant: "t1", Module: "hr", IncludeHistory: true}.Matches(obj))
	assert.True(t, Filter{Tenant: "t1", EntityType: "deal", EntityID: "9", IncludeHistory: true}.Matches(obj))
}

func TestRequireTenant(t *testing.T) {
	assert.Panics(t, func() { RequireTenant(Filter{}) })
	assert.NotPanics(t, func() { RequireTenant(Filter{Tenant: "t1"}) })
}

func TestStoredObject_Clone(t *testing.T) {
	at := time.Now()
	obj := &StoredObject{
		Metadata:       Metadata{Tags: []string{"a"}},
		Permissions:    PermissionSet{Read: []string{"alice"}},
		LastAccessedAt: &at,
	}
	c := obj.Clone()
	c.Tags[0] = "b"
	c.Permissions.Read[0] = "mallory"
	*c.LastAccessedAt = at.Add(time.Hour)

	assert.Equal(t, "a", obj.Tags[0])
	assert.Equal(t, "alice", obj.Permissions.Read[0])
	assert.True(t, at.Equal(*obj.LastAccessedAt))
}
