package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrUnknownSymbol = errors.New("unknown symbol")
)
