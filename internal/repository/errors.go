// Package repository provides data access layer implementations.
package repository

import "errors"

// Common errors for repository operations.
var (
	ErrRuleNotFound   = errors.New("point rule not found")
	ErrSetNotFound    = errors.New("daily challenge set not found")
	ErrRecordNotFound = errors.New("challenge record not found")
)

// dateLayout is how calendar days are bound to DATE parameters.
const dateLayout = "2006-01-02"
