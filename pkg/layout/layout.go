// Package layout derives human-readable, collision-resistant storage keys.
//
// Keys have the form
//
//	tenants/{tenant}/module-files/{module}[/{entityType}[/{labelOrID}]]/{YYYY-MM-DD}/{token}_{filename}
//
// Every segment is sanitized to [A-Za-z0-9._-]. The date is the UTC date at
// resolution time and the token is random, so concurrent uploads of the same
// filename to the same entity on the same day land on distinct keys.
//
// Keys are persisted and consumed outside this module (backups, CDNs), so
// the format must not change once objects have been written.
package layout

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

const (
	// DefaultMaxPathLength matches Linux PATH_MAX.
	DefaultMaxPathLength = 4096

	// DefaultTokenLength gives 36^8 possible tokens per filename and day.
	DefaultTokenLength = 8

	// MinTokenLength is the shortest token a resolver accepts.
	MinTokenLength = 6

	// MaxSegmentLength bounds every sanitized segment.
	MaxSegmentLength = 100

	tokenAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	dateLayout    = "2006-01-02"
)

var (
	// ErrPathTooLong indicates the storage root plus key would exceed the
	// configured maximum path length.
	ErrPathTooLong = errors.New("storage path too long")

	// ErrInvalidFilename indicates the filename is empty or sanitizes to
	// nothing usable.
	ErrInvalidFilename = errors.New("invalid filename")

	// ErrInvalidRequest indicates a required field is missing.
	ErrInvalidRequest = errors.New("invalid layout request")
)

// Request describes the object a key is being resolved for.
type Request struct {
	Tenant string
	Module string

	// EntityType and EntityID are optional. EntityID without EntityType is
	// rejected.
	EntityType string
	EntityID   string

	// EntityLabel, when set, replaces EntityID as the folder name.
	EntityLabel string

	Filename string
}

// Config configures a Resolver.
type Config struct {
	// Root is the storage root the key will live under. It only counts
	// towards the path length limit.
	Root string

	// MaxPathLength bounds len(Root + "/" + key). Zero selects
	// DefaultMaxPathLength.
	MaxPathLength int

	// TokenLength is the length of the random prefix. Zero selects
	// DefaultTokenLength.
	TokenLength int
}

// Resolver builds storage keys. It is safe for concurrent use.
type Resolver struct {
	root          string
	maxPathLength int
	tokenLength   int

	now    func() time.Time
	random io.Reader
}

// Option customises a Resolver.
type Option func(*Resolver)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// WithRandom replaces crypto/rand as the token source.
func WithRandom(src io.Reader) Option {
	return func(r *Resolver) { r.random = src }
}

// NewResolver creates a Resolver.
func NewResolver(cfg Config, opts ...Option) (*Resolver, error) {
	r := &Resolver{
		root:          strings.TrimRight(cfg.Root, "/"),
		maxPathLength: cfg.MaxPathLength,
		tokenLength:   cfg.TokenLength,
		now:           time.Now,
		random:        rand.Reader,
	}
	if r.maxPathLength == 0 {
		r.maxPathLength = DefaultMaxPathLength
	}
	if r.tokenLength == 0 {
		r.tokenLength = DefaultTokenLength
	}
	if r.tokenLength < MinTokenLength {
		return nil, fmt.Errorf("token length %d is below the minimum of %d", r.tokenLength, MinTokenLength)
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Resolve returns a fresh storage key for req. Each call draws a new token,
// so resolving the same request twice yields two different keys.
func (r *Resolver) Resolve(req Request) (string, error) {
	if req.Tenant == "" || req.Module == "" {
		return "", fmt.Errorf("%w: tenant and module are required", ErrInvalidRequest)
	}
	if req.EntityID != "" && req.EntityType == "" {
		return "", fmt.Errorf("%w: entity id %q without entity type", ErrInvalidRequest, req.EntityID)
	}

	filename := SanitizeFilename(req.Filename)
	if filename == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidFilename, req.Filename)
	}

	token, err := r.token()
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}

	segments := []string{"tenants", Sanitize(req.Tenant), "module-files", Sanitize(req.Module)}
	if req.EntityType != "" {
		segments = append(segments, Sanitize(req.EntityType))
		folder := req.EntityLabel
		if Sanitize(folder) == "" {
			folder = req.EntityID
		}
		if s := Sanitize(folder); s != "" {
			segments = append(segments, s)
		}
	}
	segments = append(segments,
		r.now().UTC().Format(dateLayout),
		token+"_"+filename,
	)
	key := strings.Join(segments, "/")

	full := key
	if r.root != "" {
		full = r.root + "/" + key
	}
	if len(full) > r.maxPathLength {
		return "", fmt.Errorf("%w: %d bytes exceeds %d", ErrPathTooLong, len(full), r.maxPathLength)
	}

	return key, nil
}

// token draws tokenLength characters from the alphabet. Rejection sampling
// keeps the distribution uniform.
func (r *Resolver) token() (string, error) {
	const limit = 256 - 256%len(tokenAlphabet)

	out := make([]byte, 0, r.tokenLength)
	buf := make([]byte, r.tokenLength*2)
	for len(out) < r.tokenLength {
		if _, err := io.ReadFull(r.random, buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, tokenAlphabet[int(b)%len(tokenAlphabet)])
			if len(out) == r.tokenLength {
				break
			}
		}
	}
	return string(out), nil
}

// Sanitize maps s onto [A-Za-z0-9._-]: other characters become '_', runs of
// '_' collapse to one, and the result is cut to MaxSegmentLength bytes. A
// result made only of dots becomes "_" so it can never act as a relative
// path segment. An empty input stays empty.
func Sanitize(s string) string {
	out := clean(s)
	if len(out) > MaxSegmentLength {
		out = out[:MaxSegmentLength]
	}
	return undot(out)
}

// SanitizeFilename is Sanitize for filenames: when the name has to be
// shortened, a short extension is kept. Blank names sanitize to "".
func SanitizeFilename(name string) string {
	if strings.TrimSpace(name) == "" {
		return ""
	}

	out := clean(name)
	if len(out) <= MaxSegmentLength {
		return undot(out)
	}

	ext := path.Ext(out)
	if ext == "" || len(ext) > 16 {
		return undot(out[:MaxSegmentLength])
	}
	return undot(out[:MaxSegmentLength-len(ext)] + ext)
}

// clean replaces unsafe characters and collapses underscores. The result
// is ASCII, so callers may slice it by byte.
func clean(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	lastUnderscore := false
	for _, c := range s {
		if !isSafe(c) {
			c = '_'
		}
		if c == '_' && lastUnderscore {
			continue
		}
		lastUnderscore = c == '_'
		b.WriteRune(c)
	}
	return b.String()
}

func undot(s string) string {
	if s != "" && strings.Trim(s, ".") == "" {
		return "_"
	}
	return s
}

func isSafe(c rune) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') ||
		c == '.' || c == '_' || c == '-'
}
