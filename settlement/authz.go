/*
authz.go - Role/capability authorization for mutating entry points

PURPOSE:
  Gates every mutating operation (settlement creation, payout
  processing, slab overrides) behind an explicit capability check.

DESIGN:
  Roles are a closed enumeration with a fixed capability set per role,
  resolved once at the boundary. Business logic asks "can this actor
  process payouts?" - never "does the role string contain 'Admin'?".
  Substring matching on role labels is exactly the failure mode this
  replaces.

ROLE MATRIX:
  admin:        everything
  finance:      create settlements, process payouts, view ledger
  campus_admin: manage slabs, view ledger
  viewer:       view ledger only

SEE ALSO:
  - payout.go, ledger.go: Call Require before any read/write
  - api/handlers.go: Resolves the actor from the request
*/
package settlement

import "github.com/warp/referral-engine/benefit"

// =============================================================================
// CAPABILITIES
// =============================================================================

type Capability string

const (
	CapCreateSettlement Capability = "settlement.create"
	CapProcessPayout    Capability = "settlement.process"
	CapManageSlabs      Capability = "slabs.manage"
	CapViewLedger       Capability = "ledger.view"
)

// =============================================================================
// ACTOR ROLES - Closed enumeration with explicit capability sets
// =============================================================================

type ActorRole string

const (
	RoleAdmin       ActorRole = "admin"
	RoleFinance     ActorRole = "finance"
	RoleCampusAdmin ActorRole = "campus_admin"
	RoleViewer      ActorRole = "viewer"
)

var roleCapabilities = map[ActorRole]map[Capability]bool{
	RoleAdmin: {
		CapCreateSettlement: true,
		CapProcessPayout:    true,
		CapManageSlabs:      true,
		CapViewLedger:       true,
	},
	RoleFinance: {
		CapCreateSettlement: true,
		CapProcessPayout:    true,
		CapViewLedger:       true,
	},
	RoleCampusAdmin: {
		CapManageSlabs: true,
		CapViewLedger:  true,
	},
	RoleViewer: {
		CapViewLedger: true,
	},
}

// Actor is the authenticated administrator performing an operation.
// Authentication itself is an external concern; the core receives the
// resolved actor and checks capabilities.
type Actor struct {
	ID   string
	Role ActorRole
}

// Can reports whether the actor's role grants the capability.
func (a Actor) Can(c Capability) bool {
	return roleCapabilities[a.Role][c]
}

// Require returns an AuthorizationError when the capability is
// missing. Called before any read or write in a mutating path.
func Require(actor Actor, c Capability) error {
	if actor.Can(c) {
		return nil
	}
	return &benefit.AuthorizationError{Actor: actor.ID, Capability: string(c)}
}
