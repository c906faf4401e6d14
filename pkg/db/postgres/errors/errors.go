package errors

import (
	"fmt"

	"github.com/opst/trackfab/pkg/db"
)

// requested record is missing.
type Missing struct {
	Table    string
	Identity string
}

var _ error = Missing{}

func (m Missing) Error() string {
	return fmt.Sprintf("%s is not found in %s", m.Identity, m.Table)
}

func (m Missing) Unwrap() error {
	return db.ErrMissing
}

// requested record exists already.
type Exists struct {
	Table    string
	Identity string
}

var _ error = Exists{}

func (e Exists) Error() string {
	return fmt.Sprintf("%s exists already in %s", e.Identity, e.Table)
}

func (e Exists) Unwrap() error {
	return db.ErrAlreadyExists
}
