// Package protocol defines the messages exchanged over an edit session.
//
// Every message carries an explicit discriminant: client requests a "type"
// field, server results a "kind" field. Decoders dispatch on the
// discriminant only, never on which other fields happen to be present.
package protocol

import (
	"fmt"
	"strings"

	"github.com/c0deZ3R0/pixel-chunk/errors"
	"github.com/c0deZ3R0/pixel-chunk/grid"
)

// Strategy chooses how conflicted cells are resolved on a rebase commit.
type Strategy string

const (
	// StrategyOurs keeps the client's values for conflicted cells.
	StrategyOurs Strategy = "ours"
	// StrategyTheirs keeps the latest snapshot's values for conflicted cells.
	StrategyTheirs Strategy = "theirs"
)

// ParseStrategy validates s as a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	st := Strategy(s)
	if err := st.Validate(); err != nil {
		return "", err
	}
	return st, nil
}

func (s Strategy) Validate() error {
	switch s {
	case StrategyOurs, StrategyTheirs:
		return nil
	}
	return errors.E(errors.Op("protocol.Strategy"), errors.KindInvalid,
		fmt.Sprintf("unknown rebase strategy %q", string(s)))
}

// RequestType discriminates client → server messages.
type RequestType string

const (
	TypeCommit       RequestType = "commit"
	TypeRebaseCommit RequestType = "rebase_commit"
)

// Request is a client → server message.
type Request interface {
	RequestType() RequestType
	// Validate checks the request against a grid of size cells.
	Validate(size int) error
}

// Commit asks the server to commit the client's pending edits.
type Commit struct {
	Message string              `json:"message"`
	Changes []grid.UpdateAction `json:"changes"`
}

func (Commit) RequestType() RequestType { return TypeCommit }

func (c Commit) Validate(size int) error {
	if strings.TrimSpace(c.Message) == "" {
		return errors.E(errors.Op("protocol.Commit"), errors.KindInvalid, "commit message is empty")
	}
	if len(c.Changes) == 0 {
		return errors.E(errors.Op("protocol.Commit"), errors.KindInvalid, "commit has no changes")
	}
	return grid.CheckBounds(size, c.Changes)
}

// RebaseCommit retries the edits of a conflicted commit using Strategy.
type RebaseCommit struct {
	Message  string   `json:"message"`
	Strategy Strategy `json:"strategy"`
}

func (RebaseCommit) RequestType() RequestType { return TypeRebaseCommit }

func (r RebaseCommit) Validate(int) error {
	if strings.TrimSpace(r.Message) == "" {
		return errors.E(errors.Op("protocol.RebaseCommit"), errors.KindInvalid, "commit message is empty")
	}
	return r.Strategy.Validate()
}

// ResultKind discriminates server → client messages.
type ResultKind string

const (
	KindReady    ResultKind = "ready"
	KindSuccess  ResultKind = "success"
	KindConflict ResultKind = "conflict"
	KindError    ResultKind = "error"
)

// Result is a server → client message.
type Result interface {
	ResultKind() ResultKind
}

// Ready is sent once when a session opens.
type Ready struct {
	ProjectID    string `json:"project_id"`
	BaseSnapshot string `json:"base_snapshot"`
	Rows         int    `json:"rows"`
	Cols         int    `json:"cols"`
}

func (Ready) ResultKind() ResultKind { return KindReady }

// Success reports the snapshot a commit produced.
type Success struct {
	LatestSnapshot string `json:"latest_snapshot"`
}

func (Success) ResultKind() ResultKind { return KindSuccess }

// Conflict reports cells changed both remotely since SourceSnapshot and in
// the client's edits. The store was not modified.
type Conflict struct {
	SourceSnapshot   string `json:"source_snapshot"`
	FailedAtSnapshot string `json:"failed_at_snapshot"`
	ConflictedChunks []int  `json:"conflicted_chunks"`
}

func (Conflict) ResultKind() ResultKind { return KindConflict }

// Failure reports a rejected request. A fatal failure ends the session.
type Failure struct {
	Code    errors.Kind `json:"code"`
	Message string      `json:"message"`
	Fatal   bool        `json:"fatal"`
}

func (Failure) ResultKind() ResultKind { return KindError }

// Err converts the failure back into an error of the same kind.
func (f Failure) Err() error {
	return errors.E(errors.Op("protocol.Failure"), f.Code, f.Message)
}

// FailureFrom builds a Failure from err.
func FailureFrom(err error, fatal bool) Failure {
	kind := errors.KindOf(err)
	if kind == errors.KindOther {
		kind = errors.KindInternal
	}
	return Failure{Code: kind, Message: err.Error(), Fatal: fatal}
}
