package types

import "errors"

var (
	// ErrUnknownEntity is returned for entity names outside Entities.
	ErrUnknownEntity = errors.New("unknown entity")

	// ErrUnknownQueryKind is returned for query names outside QueryKinds.
	ErrUnknownQueryKind = errors.New("unknown query kind")

	// ErrUnsupportedRecord is returned when a backend receives a record type
	// it has no write path for.
	ErrUnsupportedRecord = errors.New("unsupported record")
)
