package swap

import (
	"fmt"
	"math"
	"strings"
)

// Tolerance modes.
const (
	Exact   = "exact"
	AtLeast = "at_least"
	Band    = "band"
)

// Tolerance decides whether a staging row count is close enough to the
// expected count to go live.
type Tolerance struct {
	Mode string
	// Band is the allowed relative deviation in band mode, e.g. 0.001.
	Band float64
}

// ValidationError is a refused swap.
type ValidationError struct {
	Expected int64
	Actual   int64
	Reason   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("staging validation failed: %s (expected %d, got %d)", e.Reason, e.Expected, e.Actual)
}

// Validate checks the tolerance itself.
func (t Tolerance) Validate() error {
	switch t.mode() {
	case Exact, AtLeast:
		return nil
	case Band:
		if t.Band < 0 || t.Band >= 1 || math.IsNaN(t.Band) {
			return fmt.Errorf("band tolerance must be in [0, 1), got %v", t.Band)
		}
		return nil
	}
	return fmt.Errorf("unknown tolerance mode %q", t.Mode)
}

func (t Tolerance) mode() string {
	m := strings.ToLower(strings.TrimSpace(t.Mode))
	if m == "" {
		return Exact
	}
	return m
}

// Check returns a *ValidationError when actual is not acceptable.
func (t Tolerance) Check(expected, actual int64) error {
	fail := func(reason string) error {
		return &ValidationError{Expected: expected, Actual: actual, Reason: reason}
	}
	if err := t.Validate(); err != nil {
		return fail(err.Error())
	}
	if expected <= 0 && t.mode() != AtLeast {
		return fail("no expected row count configured")
	}
	if actual == 0 {
		return fail("staging is empty")
	}
	switch t.mode() {
	case Exact:
		if actual != expected {
			return fail("row count mismatch")
		}
	case AtLeast:
		if actual < expected {
			return fail("fewer rows than expected")
		}
	case Band:
		dev := math.Abs(float64(actual-expected)) / float64(expected)
		if dev > t.Band {
			return fail(fmt.Sprintf("deviation %.4f%% exceeds %.4f%%", dev*100, t.Band*100))
		}
	}
	return nil
}
