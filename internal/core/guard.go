package core

import (
	"strconv"

	"GoldLedger/internal/errs"

	"github.com/google/uuid"
)

// Guard tracks logical resources with an operation in flight. An operation
// entering while any of its resources is held fails with a StateError, which
// is how transfer callbacks are kept from re-entering the engine.
type Guard struct {
	held map[string]string // resource -> holding operation
}

func NewGuard() *Guard {
	return &Guard{held: make(map[string]string)}
}

// Enter claims every resource or none. release must be called on every exit
// path.
func (g *Guard) Enter(op string, resources ...string) (release func(), err error) {
	for _, r := range resources {
		if holder, busy := g.held[r]; busy {
			return nil, errs.State(op, "reentrant call: %s is held by %s", r, holder)
		}
	}
	claimed := make([]string, 0, len(resources))
	for _, r := range resources {
		if _, dup := g.held[r]; dup {
			continue
		}
		g.held[r] = op
		claimed = append(claimed, r)
	}
	return func() {
		for _, r := range claimed {
			delete(g.held, r)
		}
	}, nil
}

// Held reports whether resource is claimed.
func (g *Guard) Held(resource string) bool {
	_, ok := g.held[resource]
	return ok
}

func positionResource(user uuid.UUID) string { return "position:" + user.String() }
func loanResource(id uint64) string         { return "loan:" + strconv.FormatUint(id, 10) }
func auctionResource(id uint64) string      { return "auction:" + strconv.FormatUint(id, 10) }
func fundResource(asset string) string      { return "fund:" + asset }
func walletResource(user uuid.UUID) string  { return "wallet:" + user.String() }

const (
	oracleResource = "oracle"
	adminResource  = "admin"
)
