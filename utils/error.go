package utils

import "errors"

var (
	ErrorRecordNotFound = errors.New("record not found")

	// ErrorAlreadyResolved signals an attempt to resolve a review match a
	// second time; the record is left untouched.
	ErrorAlreadyResolved = errors.New("review match already resolved")

	// ErrorScopeBusy signals that another batch job currently holds the
	// per-scope lock.
	ErrorScopeBusy = errors.New("another job is running for this scope")
)
