package db

import "errors"

var (
	// requested record does not exist.
	ErrMissing = errors.New("missing")

	// a record with the same identity already exists.
	ErrAlreadyExists = errors.New("already exists")
)

type TrackDatabase interface {
	Experiment() ExperimentInterface
	Run() RunInterface
	Schema() SchemaInterface
	Close() error
}
