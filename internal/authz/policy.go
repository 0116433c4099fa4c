package authz

import "github.com/spec-kit/helpdesk-core/internal/domain"

// Capability is a single permission gate consulted before mutating calls.
type Capability string

const (
	CanCreateTicket Capability = "canCreateTicket"
	CanEditStatus   Capability = "canEditStatus"
	CanAttend       Capability = "canAttend"
	CanClose        Capability = "canClose"
	CanViewAll      Capability = "canViewAll"
)

// CapabilitySet is the set of capabilities a role holds.
type CapabilitySet map[Capability]struct{}

// Has reports whether the capability is present.
func (s CapabilitySet) Has(c Capability) bool {
	_, ok := s[c]
	return ok
}

// Capabilities maps a directory role to its capability set. The mapping
// is pure and holds no mutable state; unknown roles get no capabilities.
func Capabilities(role domain.Role) CapabilitySet {
	switch role {
	case domain.RoleUser:
		return capabilitySet(CanCreateTicket)
	case domain.RoleTechnician, domain.RoleAdmin:
		return capabilitySet(CanCreateTicket, CanEditStatus, CanAttend, CanClose, CanViewAll)
	}
	return CapabilitySet{}
}

// Allowed is shorthand for Capabilities(role).Has(c).
func Allowed(role domain.Role, c Capability) bool {
	return Capabilities(role).Has(c)
}

// IsStaff reports whether the role is an elevated (technician/admin) role.
func IsStaff(role domain.Role) bool {
	return role == domain.RoleTechnician || role == domain.RoleAdmin
}

func capabilitySet(caps ...Capability) CapabilitySet {
	set := make(CapabilitySet, len(caps))
	for _, c := range caps {
		set[c] = struct{}{}
	}
	return set
}
