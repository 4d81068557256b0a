package tabular

import "errors"

// Errors surfaced while parsing statement files
var (
	ErrEmptyFile       = errors.New("file is empty")
	ErrInvalidEncoding = errors.New("file is not valid UTF-8")
)
