package resolver

import (
	"github.com/c0deZ3R0/pixel-chunk/errors"
	"github.com/c0deZ3R0/pixel-chunk/grid"
	"github.com/c0deZ3R0/pixel-chunk/protocol"
)

// Conflict is the set of cells changed both by other commits since Source
// and by the pending changes being committed.
type Conflict struct {
	ProjectID string
	Source    string
	FailedAt  string
	Cells     []int
}

// Result converts c to its wire form.
func (c Conflict) Result() protocol.Conflict {
	return protocol.Conflict{
		SourceSnapshot:   c.Source,
		FailedAtSnapshot: c.FailedAt,
		ConflictedChunks: c.Cells,
	}
}

// Resolution is the set of changes a strategy decided to apply.
type Resolution struct {
	Changes  []grid.UpdateAction
	Decision string
}

// StrategyResolver resolves a conflict between pending changes and the
// latest snapshot. Implementations never report a further conflict.
type StrategyResolver interface {
	Resolve(c Conflict, changes []grid.UpdateAction) Resolution
}

var (
	_ StrategyResolver = OursResolver{}
	_ StrategyResolver = TheirsResolver{}
)

// OursResolver forces every pending change, including conflicted cells.
type OursResolver struct{}

func (OursResolver) Resolve(c Conflict, changes []grid.UpdateAction) Resolution {
	return Resolution{Changes: changes, Decision: "keep_ours"}
}

// TheirsResolver drops pending changes to conflicted cells.
type TheirsResolver struct{}

func (TheirsResolver) Resolve(c Conflict, changes []grid.UpdateAction) Resolution {
	return Resolution{Changes: grid.Without(changes, c.Cells), Decision: "keep_theirs"}
}

// ForStrategy returns the resolver for s.
func ForStrategy(s protocol.Strategy) (StrategyResolver, error) {
	switch s {
	case protocol.StrategyOurs:
		return OursResolver{}, nil
	case protocol.StrategyTheirs:
		return TheirsResolver{}, nil
	}
	return nil, errors.E(errors.Op("resolver.ForStrategy"), s.Validate())
}
