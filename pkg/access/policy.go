package access

import (
	"sync"

	"github.com/marmos91/dittostore/pkg/catalog"
)

// PublicRead names a (module, entity type) pair whose uploads are readable
// by everyone by default. An empty EntityType matches uploads made without
// an entity.
type PublicRead struct {
	Module     string `mapstructure:"module" yaml:"module" json:"module"`
	EntityType string `mapstructure:"entity_type" yaml:"entity_type" json:"entity_type"`
}

// Policy computes default permission sets. The allow-list is consulted once
// per upload and may be replaced at runtime.
type Policy struct {
	mu     sync.RWMutex
	public map[PublicRead]struct{}
}

// NewPolicy builds a policy from the public-read allow-list.
func NewPolicy(public []PublicRead) *Policy {
	p := &Policy{}
	p.SetPublicRead(public)
	return p
}

// SetPublicRead replaces the allow-list.
func (p *Policy) SetPublicRead(public []PublicRead) {
	m := make(map[PublicRead]struct{}, len(public))
	for _, pr := range public {
		m[pr] = struct{}{}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.public = m
}

// IsPublicRead reports whether the pair is on the allow-list.
func (p *Policy) IsPublicRead(module, entityType string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.public[PublicRead{Module: module, EntityType: entityType}]
	return ok
}

// Defaults returns the permission set for a new upload by uploader.
//
// Public pairs get read = ["*"] and IsPublic. Write, delete and share go to
// the uploader alone in every case, so the uploader is never locked out of
// their own file.
func (p *Policy) Defaults(module, entityType, uploader string) catalog.PermissionSet {
	owner := func() []string { return []string{uploader} }

	perms := catalog.PermissionSet{
		Read:   owner(),
		Write:  owner(),
		Delete: owner(),
		Share:  owner(),
	}
	if p.IsPublicRead(module, entityType) {
		perms.Read = []string{Wildcard}
		perms.IsPublic = true
	}
	return perms
}
