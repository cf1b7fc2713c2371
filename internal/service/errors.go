package service

import "errors"

// ErrInvalidFilter is returned for query parameters that can never match
var ErrInvalidFilter = errors.New("invalid filter")
