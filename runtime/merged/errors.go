package merged

import (
	"errors"
	"fmt"
)

var (
	// ErrNilFilter is returned when a view is configured without a filter
	ErrNilFilter = errors.New("filter must not be nil")

	// ErrNilContainers is returned when a view is configured without a
	// repeatable-container strategy
	ErrNilContainers = errors.New("repeatable containers must not be nil")

	// ErrNotPresent is returned when reading attributes of Missing
	ErrNotPresent = errors.New("tag is not present")
)

// AliasConfigError reports an inconsistent alias declaration on a tag type
// attribute. It only affects merging of tags whose hierarchy contains the
// offending tag type.
type AliasConfigError struct {
	Tag       string
	Attribute string
	Message   string
}

func (e *AliasConfigError) Error() string {
	return fmt.Sprintf("invalid alias declaration on attribute '%s' of tag [%s]: %s",
		e.Attribute, e.Tag, e.Message)
}

// MirrorConflictError reports alias group members declared with different
// explicit values at the same hierarchy level
type MirrorConflictError struct {
	Tag    string
	Source string
	First  string
	Second string
	Values [2]string
}

func (e *MirrorConflictError) Error() string {
	return fmt.Sprintf("different alias values for tag [%s] declared on %s: attribute '%s' and its alias '%s' are declared with values of [%s] and [%s]",
		e.Tag, e.Source, e.First, e.Second, e.Values[0], e.Values[1])
}
