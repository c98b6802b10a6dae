package domain

import "errors"

var (
	ErrNotFound           = errors.New("resource not found")
	ErrAlreadyExists      = errors.New("resource already exists")
	ErrRecordFrozen       = errors.New("scan record is completed and can no longer change")
	ErrUnsupportedVersion = errors.New("unsupported scan record version")
)
