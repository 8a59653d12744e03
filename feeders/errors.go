package feeders

import "errors"

var (
	ErrEnvInvalidStructure     = errors.New("env: expected pointer to struct")
	ErrEnvEmptyPrefixAndSuffix = errors.New("env: prefix or suffix cannot be empty")
	ErrFieldCannotBeSet        = errors.New("field cannot be set")
	ErrKeyNotObject            = errors.New("config section is not an object")
)
