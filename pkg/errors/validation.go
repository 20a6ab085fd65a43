package errors

import (
	"strings"
	"unicode"
)

// ValidateRule checks a rule index N. Every rule is 1-based: N=1 selects
// the first outgoing link of a page.
func ValidateRule(n int) error {
	if n < 1 {
		return New(ErrCodeInvalidRule, "rule index must be >= 1, got %d", n)
	}
	return nil
}

// ValidateRules checks a set of rule indices for a multiplex run.
func ValidateRules(ns []int) error {
	if len(ns) == 0 {
		return New(ErrCodeInvalidRule, "at least one rule index is required")
	}
	for _, n := range ns {
		if err := ValidateRule(n); err != nil {
			return err
		}
	}
	return nil
}

// ValidateBudget checks optional traversal budgets. Zero means unlimited.
func ValidateBudget(maxDepth, maxNodes int) error {
	if maxDepth < 0 {
		return New(ErrCodeInvalidInput, "max depth must not be negative, got %d", maxDepth)
	}
	if maxNodes < 0 {
		return New(ErrCodeInvalidInput, "max nodes must not be negative, got %d", maxNodes)
	}
	return nil
}

// ValidateThreshold checks a share threshold in (0, 1].
func ValidateThreshold(name string, v float64) error {
	if v <= 0 || v > 1 {
		return New(ErrCodeInvalidInput, "%s must be in (0, 1], got %g", name, v)
	}
	return nil
}

// ValidateRunTag validates a run tag. Run tags become part of artifact paths,
// so the rules mirror a single safe path component:
//   - Maximum length of 64 characters
//   - Letters, digits, '-', '_' and '.' only
//   - No path traversal sequences (..)
//
// The empty tag is valid and means "untagged".
func ValidateRunTag(tag string) error {
	if tag == "" {
		return nil
	}
	if len(tag) > 64 {
		return New(ErrCodeInvalidPath, "run tag too long (max 64 characters)")
	}
	if strings.Contains(tag, "..") {
		return New(ErrCodeInvalidPath, "run tag cannot contain path traversal sequences (..)")
	}
	for _, r := range tag {
		if r > unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' || r == '.') {
			return New(ErrCodeInvalidPath, "run tag contains invalid character %q", r)
		}
	}
	return nil
}

// ValidatePath validates a user-supplied input file path.
//
// Validation rules:
//   - Path cannot be empty
//   - Maximum length of 4096 characters
//   - No null bytes or control characters
func ValidatePath(path string) error {
	if path == "" {
		return New(ErrCodeInvalidPath, "path cannot be empty")
	}

	const maxPathLength = 4096
	if len(path) > maxPathLength {
		return New(ErrCodeInvalidPath, "path too long (max %d characters)", maxPathLength)
	}

	for _, r := range path {
		if r == '\x00' || unicode.IsControl(r) {
			return New(ErrCodeInvalidPath, "path contains invalid characters")
		}
	}
	return nil
}
