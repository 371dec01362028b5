// Package service implements the point ledger, achievement and daily challenge engines.
package service

import (
	"errors"
	"fmt"
)

// Error kinds. Every business error below wraps exactly one of these, so callers can
// branch on the kind (404, 403, ordinary message) or on the concrete error.
var (
	ErrNotFound     = errors.New("not found")
	ErrDisabled     = errors.New("disabled")
	ErrLimitReached = errors.New("limit reached")
	ErrInvalidState = errors.New("invalid state")
	ErrForbidden    = errors.New("forbidden")
	ErrInsufficient = errors.New("insufficient")
)

// Ledger errors.
var (
	ErrRuleNotFound        = fmt.Errorf("point rule not found: %w", ErrNotFound)
	ErrRuleDisabled        = fmt.Errorf("point rule disabled: %w", ErrDisabled)
	ErrDailyCapReached     = fmt.Errorf("daily cap reached: %w", ErrLimitReached)
	ErrInvalidAmount       = fmt.Errorf("invalid amount: %w", ErrInvalidState)
	ErrSelfTransfer        = fmt.Errorf("cannot transfer to self: %w", ErrInvalidState)
	ErrInsufficientBalance = fmt.Errorf("insufficient balance: %w", ErrInsufficient)
)

// Achievement errors.
var (
	ErrAchievementNotFound    = fmt.Errorf("achievement not found: %w", ErrNotFound)
	ErrAchievementNotUnlocked = fmt.Errorf("achievement not unlocked: %w", ErrNotFound)
	ErrShowcaseLimitReached   = fmt.Errorf("showcase limit reached: %w", ErrLimitReached)
)

// Challenge errors.
var (
	ErrInsufficientTemplates = fmt.Errorf("no eligible challenge templates: %w", ErrInsufficient)
	ErrTemplateNotFound      = fmt.Errorf("challenge template not found: %w", ErrNotFound)
	ErrRecordNotFound        = fmt.Errorf("challenge record not found: %w", ErrNotFound)
	ErrNotOwner              = fmt.Errorf("challenge record belongs to another user: %w", ErrForbidden)
	ErrNotCompleted          = fmt.Errorf("challenge not completed: %w", ErrInvalidState)
	ErrAlreadyClaimed        = fmt.Errorf("challenge reward already claimed: %w", ErrInvalidState)
)
