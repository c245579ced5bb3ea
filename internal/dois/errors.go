package dois

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates that no DOI matches the lookup.
	ErrNotFound = errors.New("dois: doi not found")
	// ErrContextNotFound indicates that a DOI references a missing context.
	ErrContextNotFound = errors.New("dois: context not found")
	// ErrMissingPrefix indicates that a context has no DOI prefix to mint with.
	ErrMissingPrefix = errors.New("dois: context has no doi prefix")
	// ErrInvalidProps indicates that props could not be decoded into a DOI.
	ErrInvalidProps = errors.New("dois: invalid props")

	errMissingDatabase = errors.New("dois: database handle is required")
	errMissingDAO      = errors.New("dois: dao is required")
	errMissingContexts = errors.New("dois: context checker is required")
	errNilDoi          = errors.New("dois: doi is required")
)

// ServiceError describes a repository failure with a stable code of the form
// "<operation>.<reason>".
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opRepositoryNew = "dois.repository.new"
	opAdd           = "dois.add"
	opEdit          = "dois.edit"
	opDelete        = "dois.delete"
	opDeleteMany    = "dois.delete_many"
	opMint          = "dois.mint"
)

func newServiceError(operation, reason string, cause error) error {
	return &ServiceError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}
