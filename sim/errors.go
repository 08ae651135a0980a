package sim

import (
	"errors"
	"fmt"
)

var (
	// ErrInvariant marks a specification that violates a structural rule.
	ErrInvariant = errors.New("invariant violated")

	// ErrLifecycle marks a lifecycle call made in the wrong state.
	ErrLifecycle = errors.New("lifecycle violation")

	// ErrNotAllocated is returned by operations that need allocated memory.
	ErrNotAllocated = fmt.Errorf("memory was not allocated: %w", ErrLifecycle)

	// ErrNonContiguous is returned when partition regions do not tile their range.
	ErrNonContiguous = fmt.Errorf("partition regions are not contiguous: %w", ErrInvariant)

	// ErrUnresolved is returned when generated code references an attribute
	// that was declared but never given a value.
	ErrUnresolved = errors.New("attribute declared but unset")
)

func invariantf(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrInvariant)
}
