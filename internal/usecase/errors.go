package usecase

import "errors"

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("player not found")
	ErrNoHistory    = errors.New("no match history")
)
