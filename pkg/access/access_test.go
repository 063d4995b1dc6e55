package access

import (
	"testing"

	"github.com/marmos91/dittostore/pkg/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func objWith(perms catalog.PermissionSet) *catalog.StoredObject {
	return &catalog.StoredObject{ID: "o", Tenant: "t", Permissions: perms}
}

func TestCan(t *testing.T) {
	private := objWith(catalog.PermissionSet{
		Read:   []string{"alice", "bob"},
		Write:  []string{"alice"},
		Delete: []string{"alice"},
		Share:  []string{},
	})
	wildcardWrite := objWith(catalog.PermissionSet{
		Read:  []string{"alice"},
		Write: []string{"*"},
	})

	tests := []struct {
		name   string
		obj    *catalog.StoredObject
		actor  string
		action Action
		want   bool
	}{
		{"listed reader", private, "bob", Read, true},
		{"unlisted reader", private, "carol", Read, false},
		{"listed writer", private, "alice", Write, true},
		{"reader cannot write", private, "bob", Write, false},
		{"empty share list", private, "alice", Share, false},
		{"wildcard write", wildcardWrite, "anyone", Write, true},
		{"wildcard does not leak to other actions", wildcardWrite, "anyone", Delete, false},
		{"anonymous on private", private, "", Read, false},
		{"anonymous matches wildcard", wildcardWrite, "", Write, true},
		{"nil object", nil, "alice", Read, false},
		{"unknown action", private, "alice", Action(99), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Can(tt.obj, tt.actor, tt.action))
		})
	}
}

func TestCan_PublicImpliesRead(t *testing.T) {
	// The read list is ignored for public objects, even when empty.
	obj := objWith(catalog.PermissionSet{IsPublic: true, Write: []string{"alice"}})

	for _, actor := range []string{"", "alice", "stranger"} {
		assert.True(t, Can(obj, actor, Read), "actor %q", actor)
	}
	assert.False(t, Can(obj, "stranger", Write), "public only covers read")
}

func TestCan_IsPure(t *testing.T) {
	obj := objWith(catalog.PermissionSet{Read: []string{"alice"}, Delete: []string{"*"}})
	snapshot := obj.Clone()

	for i := 0; i < 100; i++ {
		for _, action := range Actions {
			for _, actor := range []string{"alice", "bob", ""} {
				first := Can(obj, actor, action)
				require.Equal(t, first, Can(obj, actor, action))
			}
		}
	}
	assert.Equal(t, snapshot, obj, "Can must not mutate its input")
}

func TestParseAction(t *testing.T) {
	for _, a := range Actions {
		got, err := ParseAction(a.String())
		require.NoError(t, err)
		assert.Equal(t, a, got)
	}

	got, err := ParseAction(" DELETE ")
	require.NoError(t, err)
	assert.Equal(t, Delete, got)

	_, err = ParseAction("admin")
	assert.Error(t, err)
	assert.Equal(t, "Action(7)", Action(7).String())
}

// Scenario: upload to a module with no entity and no explicit permissions.
func TestDefaults_PrivateToUploader(t *testing.T) {
	p := NewPolicy([]PublicRead{{Module: "real-estate", EntityType: "apartment"}})

	perms := p.Defaults("chat", "", "u-1")

	assert.Equal(t, []string{"u-1"}, perms.Read)
	assert.Equal(t, []string{"u-1"}, perms.Write)
	assert.Equal(t, []string{"u-1"}, perms.Delete)
	assert.Equal(t, []string{"u-1"}, perms.Share)
	assert.False(t, perms.IsPublic)

	obj := objWith(perms)
	for _, a := range Actions {
		assert.True(t, Can(obj, "u-1", a), "uploader must hold %s", a)
		assert.False(t, Can(obj, "u-2", a), "others must not hold %s", a)
	}
}

// Scenario: upload for an allow-listed (module, entity type) pair.
func TestDefaults_PublicRead(t *testing.T) {
	p := NewPolicy([]PublicRead{{Module: "real-estate", EntityType: "apartment"}})

	perms := p.Defaults("real-estate", "apartment", "u-1")

	assert.Equal(t, []string{"*"}, perms.Read)
	assert.True(t, perms.IsPublic)
	assert.Equal(t, []string{"u-1"}, perms.Write)

	obj := objWith(perms)
	assert.True(t, Can(obj, "", Read))
	assert.False(t, Can(obj, "u-2", Delete))
}

func TestPolicy_PairsAreExact(t *testing.T) {
	p := NewPolicy([]PublicRead{{Module: "real-estate", EntityType: "apartment"}, {Module: "website"}})

	assert.True(t, p.IsPublicRead("real-estate", "apartment"))
	assert.False(t, p.IsPublicRead("real-estate", "lease"))
	assert.False(t, p.IsPublicRead("real-estate", ""))
	assert.True(t, p.IsPublicRead("website", ""))
	assert.False(t, p.IsPublicRead("website", "page"))

	p.SetPublicRead(nil)
	assert.False(t, p.IsPublicRead("website", ""))
}

func TestDefaults_ReturnsIndependentSlices(t *testing.T) {
	p := NewPolicy(nil)
	perms := p.Defaults("crm", "", "u-1")
	perms.Read[0] = "mallory"

	assert.Equal(t, []string{"u-1"}, perms.Write)
}

func TestRequire(t *testing.T) {
	obj := objWith(catalog.PermissionSet{Delete: []string{"alice"}})

	assert.NoError(t, Require(obj, "alice", Delete))

	err := Require(obj, "bob", Delete)
	require.ErrorIs(t, err, ErrUnauthorized)
	assert.Contains(t, err.Error(), "delete")
}
