package ledger

import (
	"errors"
	"fmt"
)

// Precondition failures. These are expected outcomes of a request and leave
// the ledger unchanged.
var (
	ErrInvalidRequest           = errors.New("ledger: invalid request")
	ErrInsufficientCapacity     = errors.New("ledger: insufficient capacity")
	ErrPoolExists               = errors.New("ledger: pool already exists")
	ErrPoolNotFound             = errors.New("ledger: pool not found")
	ErrInsufficientPoolCapacity = errors.New("ledger: insufficient capacity in source pool")
	ErrSamePool                 = errors.New("ledger: source and target pool are the same")
	ErrVMNotFound               = errors.New("ledger: vm not found")
)

// PersistError reports that a mutation could not be made durable. The
// in-memory ledger is left as it was before the operation.
type PersistError struct {
	Op  string
	Err error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("ledger: persist %s: %v", e.Op, e.Err)
}

func (e *PersistError) Unwrap() error {
	return e.Err
}

// IsPersistError reports whether err is or wraps a *PersistError.
func IsPersistError(err error) bool {
	var pe *PersistError
	return errors.As(err, &pe)
}
