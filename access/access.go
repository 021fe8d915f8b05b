// Package access holds the acting identity of a request and the capability
// predicates every read and write in the engine is checked against.
package access

import (
	"context"
)

// Actor is the identity a unit of work runs as. The zero value is anonymous.
type Actor struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	Admin    bool   `json:"admin"`
}

// Anonymous is the actor of unauthenticated requests.
var Anonymous = Actor{}

// IsAnonymous reports whether the actor carries no member identity.
func (a Actor) IsAnonymous() bool {
	return a.ID == 0 && !a.Admin
}

// Is reports whether the actor is the member with the given id.
func (a Actor) Is(memberID uint) bool {
	return a.ID != 0 && a.ID == memberID
}

// System returns the administrator actor used for maintenance writes.
func System(adminID uint) Actor {
	return Actor{ID: adminID, Username: "system", Admin: true}
}

// Capability is an operation class checked against a resource.
type Capability int

const (
	View Capability = iota
	Edit
	Delete
)

func (c Capability) String() string {
	switch c {
	case View:
		return "view"
	case Edit:
		return "edit"
	case Delete:
		return "delete"
	default:
		return "<unknown>"
	}
}

// Resource is implemented by every entity type with its own capability rules.
type Resource interface {
	Permits(a Actor, c Capability) bool
}

// Grantable resources can be opened to extra viewers through explicit grants.
// ok is false when the resource is in a state no grant may override.
type Grantable interface {
	Resource
	GrantKey() (kind string, id uint, ok bool)
}

// GrantSource answers whether a member holds an explicit view grant.
type GrantSource interface {
	HasGrant(ctx context.Context, kind string, id uint, memberID uint) (bool, error)
}

// Checker evaluates capabilities. Administrators hold every capability.
type Checker struct {
	grants GrantSource
}

// NewChecker creates a Checker. grants may be nil.
func NewChecker(grants GrantSource) *Checker {
	return &Checker{grants: grants}
}

// Can reports whether a holds capability c on r.
func (ch *Checker) Can(ctx context.Context, a Actor, r Resource, c Capability) bool {
	if r == nil {
		return false
	}
	if a.Admin {
		return true
	}
	if r.Permits(a, c) {
		return true
	}
	if c != View || a.IsAnonymous() || ch.grants == nil {
		return false
	}
	g, ok := r.(Grantable)
	if !ok {
		return false
	}
	kind, id, ok := g.GrantKey()
	if !ok {
		return false
	}
	has, err := ch.grants.HasGrant(ctx, kind, id, a.ID)
	return err == nil && has
}

func (ch *Checker) CanView(ctx context.Context, a Actor, r Resource) bool {
	return ch.Can(ctx, a, r, View)
}

func (ch *Checker) CanEdit(ctx context.Context, a Actor, r Resource) bool {
	return ch.Can(ctx, a, r, Edit)
}

func (ch *Checker) CanDelete(ctx context.Context, a Actor, r Resource) bool {
	return ch.Can(ctx, a, r, Delete)
}
