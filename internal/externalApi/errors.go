package externalApi

import "errors"

var (
	ErrNotFound       = errors.New("error not found")
	ErrRejected       = errors.New("error request rejected")
	ErrUnexpectedCode = errors.New("error unexpected response code")
)
