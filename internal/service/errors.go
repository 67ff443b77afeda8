package service

import (
	"errors"
	"fmt"

	"github.com/iliyamo/class-reservation/internal/lifecycle"
	"github.com/iliyamo/class-reservation/internal/repository"
)

var taxonomy = []error{
	lifecycle.ErrNotFound,
	lifecycle.ErrForbidden,
	lifecycle.ErrWindowClosed,
	lifecycle.ErrCapacityFull,
	lifecycle.ErrAlreadyReserved,
	lifecycle.ErrNotEligible,
	lifecycle.ErrInvalidTransition,
	lifecycle.ErrInternal,
}

// translate maps an error leaving the store onto the lifecycle taxonomy.
// Errors already in the taxonomy pass through unchanged; anything else is
// Internal with the cause kept in the chain.
func translate(err error) error {
	if err == nil {
		return nil
	}
	for _, t := range taxonomy {
		if errors.Is(err, t) {
			return err
		}
	}
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: %w", lifecycle.ErrNotFound, err)
	}
	return fmt.Errorf("%w: %w", lifecycle.ErrInternal, err)
}
