package repository

import "errors"

var (
	ErrCartNotFound     = errors.New("cart not found")
	ErrOutcomeNotFound  = errors.New("checkout outcome not found")
	ErrDuplicateOutcome = errors.New("checkout outcome already recorded")
)
