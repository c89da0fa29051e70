// Package access holds the role capability consumed at every administrative
// operation boundary and the engine-wide pause switch.
package access

import (
	"sort"

	"GoldLedger/internal/errs"

	"github.com/google/uuid"
)

// Role is an administrative capability.
type Role uint8

const (
	RoleAdmin Role = iota + 1
	RoleManager
	RoleKeeper
	RolePauser
)

func (r Role) String() string {
	switch r {
	case RoleAdmin:
		return "Admin"
	case RoleManager:
		return "Manager"
	case RoleKeeper:
		return "Keeper"
	case RolePauser:
		return "Pauser"
	default:
		return "Unknown"
	}
}

// ParseRole is the inverse of Role.String.
func ParseRole(s string) (Role, error) {
	for _, r := range []Role{RoleAdmin, RoleManager, RoleKeeper, RolePauser} {
		if r.String() == s {
			return r, nil
		}
	}
	return 0, errs.Validation("parse role", "unknown role %q", s)
}

// Gate answers role checks.
type Gate interface {
	HasRole(role Role, caller uuid.UUID) bool
}

// Require returns Unauthorized unless caller holds role.
func Require(g Gate, role Role, caller uuid.UUID, op string) error {
	if g == nil || !g.HasRole(role, caller) {
		return errs.Unauthorized(op, "caller %s lacks role %s", caller, role)
	}
	return nil
}

// RoleSet is an in-memory Gate. It is not safe for concurrent mutation.
type RoleSet struct {
	members map[Role]map[uuid.UUID]struct{}
}

func NewRoleSet() *RoleSet {
	return &RoleSet{members: make(map[Role]map[uuid.UUID]struct{})}
}

func (s *RoleSet) HasRole(role Role, caller uuid.UUID) bool {
	_, ok := s.members[role][caller]
	return ok
}

// Grant adds account to role. Granting a role twice is a StateError.
func (s *RoleSet) Grant(role Role, account uuid.UUID) error {
	if role < RoleAdmin || role > RolePauser {
		return errs.Validation("grant role", "unknown role %d", role)
	}
	if s.HasRole(role, account) {
		return errs.State("grant role", "%s already holds %s", account, role)
	}
	if s.members[role] == nil {
		s.members[role] = make(map[uuid.UUID]struct{})
	}
	s.members[role][account] = struct{}{}
	return nil
}

// Revoke removes account from role.
func (s *RoleSet) Revoke(role Role, account uuid.UUID) error {
	if !s.HasRole(role, account) {
		return errs.State("revoke role", "%s does not hold %s", account, role)
	}
	delete(s.members[role], account)
	return nil
}

// Members lists the holders of role in a stable order.
func (s *RoleSet) Members(role Role) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(s.members[role]))
	for id := range s.members[role] {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// PauseView reports whether mutating operations are halted.
type PauseView interface {
	IsPaused() bool
}

// Guard returns a StateError while p is paused.
func Guard(p PauseView, op string) error {
	if p == nil {
		return nil
	}
	if p.IsPaused() {
		return errs.State(op, "engine paused")
	}
	return nil
}

// Switch is a PauseView toggled by Pauser callers.
type Switch struct {
	paused bool
}

func (s *Switch) IsPaused() bool { return s.paused }

func (s *Switch) Pause() error {
	if s.paused {
		return errs.State("pause", "already paused")
	}
	s.paused = true
	return nil
}

func (s *Switch) Unpause() error {
	if !s.paused {
		return errs.State("unpause", "not paused")
	}
	s.paused = false
	return nil
}
