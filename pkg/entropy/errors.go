package entropy

import (
	"errors"
	"fmt"
	"strings"
)

// ErrFinalized is returned when an Accumulator is fed after Finalize.
var ErrFinalized = errors.New("entropy: accumulator already finalized")

// ConfigError reports an unrecognised log base token.
type ConfigError struct {
	Token string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("entropy: unsupported log base %q, expected one of [\"\" log log2 log10]", e.Token)
}

// SchemaTypeError reports a count field whose declared kind is not integral.
type SchemaTypeError struct {
	Expected []Kind
	Found    Kind
}

func (e *SchemaTypeError) Error() string {
	names := make([]string, len(e.Expected))
	for i, k := range e.Expected {
		names[i] = k.String()
	}
	return fmt.Sprintf("entropy: expect the type of the input record to be of ([%s]), but instead found %s",
		strings.Join(names, ", "), e.Found)
}

// SchemaShapeError reports a record schema that is missing or does not have
// exactly one field.
type SchemaShapeError struct {
	// Fields is the declared field count, or -1 when the schema is absent.
	Fields int
}

func (e *SchemaShapeError) Error() string {
	if e.Fields < 0 {
		return "entropy: the field schema of the input record is null or its size is not 1 (schema missing)"
	}
	return fmt.Sprintf("entropy: the field schema of the input record is null or its size is not 1 (got %d fields)", e.Fields)
}
