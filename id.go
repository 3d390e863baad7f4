package walkthrough

import "github.com/xraph/walkthrough/id"

// ID is the primary identifier type for all walkthrough entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
