package controller

import "errors"

// Terminal error classes. Callers branch with errors.Is to tell "we tried
// and the install approach seems genuinely hard" from "infrastructure was
// broken" from "the producer could not produce".
var (
	// ErrBudgetExhausted means the attempt budget was consumed with only
	// script failures observed.
	ErrBudgetExhausted = errors.New("attempt budget exhausted")

	// ErrSandbox means the execution environment failed; revising the
	// script cannot fix it.
	ErrSandbox = errors.New("sandbox failure")

	// ErrProducer means script generation or revision itself failed.
	ErrProducer = errors.New("producer failure")
)
