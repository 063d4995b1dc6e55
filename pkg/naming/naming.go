// Package naming looks up short human-readable labels for domain entities
// ("Tower B unit 12" for apartment 4711) so storage paths stay browsable.
//
// The storage core has no compile-time knowledge of domain entities: the
// hosting application registers one LabelFunc per entity type. Lookups
// never fail the caller. A missing entity, an unregistered type, a lookup
// error and a timeout all come back as "no label", and the caller falls
// back to the raw entity id.
package naming

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/marmos91/dittostore/internal/logger"
)

// LabelFunc returns the label of one entity. ok is false when the entity
// has no label (or does not exist).
type LabelFunc func(ctx context.Context, entityID string) (label string, ok bool, err error)

// Namer is what the upload pipeline depends on.
type Namer interface {
	Label(ctx context.Context, entityType, entityID string) (string, bool)
}

// Registry dispatches label lookups to the resolver registered for the
// entity type. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	resolvers map[string]LabelFunc
	timeout   time.Duration
}

// NewRegistry creates an empty registry. A positive timeout bounds every
// lookup.
func NewRegistry(timeout time.Duration) *Registry {
	return &Registry{
		resolvers: make(map[string]LabelFunc),
		timeout:   timeout,
	}
}

// Register installs fn for entityType, replacing any previous resolver.
func (r *Registry) Register(entityType string, fn LabelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolvers[entityType] = fn
}

// EntityTypes returns the registered entity types in sorted order.
func (r *Registry) EntityTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.resolvers))
	for t := range r.resolvers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Label implements Namer.
func (r *Registry) Label(ctx context.Context, entityType, entityID string) (string, bool) {
	if entityType == "" || entityID == "" {
		return "", false
	}

	r.mu.RLock()
	fn, ok := r.resolvers[entityType]
	r.mu.RUnlock()
	if !ok {
		return "", false
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	label, ok, err := safeCall(ctx, fn, entityID)
	if err != nil {
		logger.Warn("label lookup for %q %q failed, falling back to id: %v", entityType, entityID, err)
		return "", false
	}
	label = strings.TrimSpace(label)
	if !ok || label == "" {
		return "", false
	}
	return label, true
}

// safeCall runs fn, turning a panic in host code into an error.
func safeCall(ctx context.Context, fn LabelFunc, entityID string) (label string, ok bool, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("label resolver panicked: %v", p)
		}
	}()
	label, ok, err = fn(ctx, entityID)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	return label, ok, err
}

// Static returns a LabelFunc backed by a fixed id -> label table, as loaded
// from the naming.labels configuration section.
func Static(labels map[string]string) LabelFunc {
	table := make(map[string]string, len(labels))
	for id, label := range labels {
		table[id] = label
	}
	return func(_ context.Context, entityID string) (string, bool, error) {
		label, ok := table[entityID]
		return label, ok, nil
	}
}

// NewStaticRegistry builds a registry from an entity type -> id -> label
// table.
func NewStaticRegistry(timeout time.Duration, tables map[string]map[string]string) *Registry {
	r := NewRegistry(timeout)
	for entityType, labels := range tables {
		r.Register(entityType, Static(labels))
	}
	return r
}
