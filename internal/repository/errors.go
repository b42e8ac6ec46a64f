// Package repository defines error types that are reused across the
// store. These sentinel values allow higher layers such as handlers to
// distinguish between a negative lookup and a broken backend.
package repository

import (
	"github.com/pkg/errors"

	"github.com/iliyamo/discord-age-gate/internal/database"
)

// ErrNotFound is returned when no record matches a lookup. It is a valid
// outcome, not a failure; handlers translate it into a 404.
var ErrNotFound = errors.New("not found")

// ErrStoreUnavailable is returned when the database could not be reached
// within the retry budget. Handlers translate it into a 500.
var ErrStoreUnavailable = database.ErrUnavailable
