package snapshot

import (
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// Snapshot ids are ULIDs so that ids from one store sort by creation time.
var (
	NewProjectID  = uuid.NewString
	NewSnapshotID = func() string { return ulid.Make().String() }
)
