package quiver

import "github.com/brimdata/quiver/assemble"

// Error kinds.  Assembly errors originate in the assemble package;
// they are re-exported here so callers can match with errors.Is
// without importing the engine.
var (
	ErrInvalidArgument = assemble.ErrInvalidArgument
	ErrNotImplemented  = assemble.ErrNotImplemented
	ErrInvalid         = assemble.ErrInvalid
	ErrIO              = assemble.ErrIO
)
