// Package access evaluates per-object capability lists and computes the
// default permission set of a new upload.
package access

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/marmos91/dittostore/pkg/catalog"
)

// Wildcard in a permission list matches every actor.
const Wildcard = "*"

// ErrUnauthorized is returned by callers of Can when the actor lacks the
// right for the attempted action.
var ErrUnauthorized = errors.New("unauthorized")

// Require returns ErrUnauthorized, annotated with the action and object,
// when Can denies.
func Require(obj *catalog.StoredObject, actor string, action Action) error {
	if Can(obj, actor, action) {
		return nil
	}
	id := ""
	if obj != nil {
		id = obj.ID
	}
	return fmt.Errorf("%w: %q may not %s object %s", ErrUnauthorized, actor, action, id)
}

// Action is an operation an actor may attempt on a stored object.
type Action int

const (
	Read Action = iota
	Write
	Delete
	Share
)

// Actions lists every action, in declaration order.
var Actions = []Action{Read, Write, Delete, Share}

func (a Action) String() string {
	switch a {
	case Read:
		return "read"
	case Write:
		return "write"
	case Delete:
		return "delete"
	case Share:
		return "share"
	default:
		return fmt.Sprintf("Action(%d)", int(a))
	}
}

// ParseAction parses the lower-case action name.
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "read":
		return Read, nil
	case "write":
		return Write, nil
	case "delete":
		return Delete, nil
	case "share":
		return Share, nil
	default:
		return 0, fmt.Errorf("unknown action %q", s)
	}
}

// allowed returns the actor list governing action. Unknown actions have no
// list and are therefore never granted.
func allowed(perms catalog.PermissionSet, action Action) []string {
	switch action {
	case Read:
		return perms.Read
	case Write:
		return perms.Write
	case Delete:
		return perms.Delete
	case Share:
		return perms.Share
	default:
		return nil
	}
}

// Can reports whether actor may perform action on obj.
//
// Read is granted to everyone when the object is public. Otherwise the
// actor must appear in the action's list, or the list must contain the
// wildcard. Nobody, the creator included, has rights beyond what the
// permission set records. An empty actor (anonymous caller) only matches
// the wildcard.
//
// Can is a pure function of its inputs.
func Can(obj *catalog.StoredObject, actor string, action Action) bool {
	if obj == nil {
		return false
	}
	if action == Read && obj.Permissions.IsPublic {
		return true
	}

	list := allowed(obj.Permissions, action)
	if slices.Contains(list, Wildcard) {
		return true
	}
	return actor != "" && slices.Contains(list, actor)
}
