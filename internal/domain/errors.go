package domain

import "errors"

// Sentinel errors for domain operations
var (
	// ErrServerOffline indicates the remote service is unreachable
	ErrServerOffline = errors.New("server is unreachable")

	// ErrAuthFailed indicates the API token was rejected
	ErrAuthFailed = errors.New("authentication token is invalid")

	// ErrNotFound indicates the requested title or chapter does not exist
	ErrNotFound = errors.New("not found")

	// ErrSourceUnresolved indicates an aggregator title could not be mapped
	// to a concrete source
	ErrSourceUnresolved = errors.New("could not resolve a concrete source for title")

	// ErrReaderClosed indicates a reader operation on a closed session
	ErrReaderClosed = errors.New("reader session is not active")
)
