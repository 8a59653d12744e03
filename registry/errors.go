package registry

import "errors"

var (
	ErrInvalidDefinition   = errors.New("invalid view definition")
	ErrDuplicateDefinition = errors.New("view definition already registered")
	ErrUnknownView         = errors.New("unknown view")
	ErrInvalidDescriptor   = errors.New("invalid instance descriptor")
	ErrInvalidProperties   = errors.New("instance properties do not match the view parameter schema")
	ErrInvalidSchema       = errors.New("invalid view parameter schema")
	ErrReservedContextPath = errors.New("context path overlaps a host route")
)
