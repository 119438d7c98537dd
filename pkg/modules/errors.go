package modules

import "fmt"

// ParseError reports configuration source text that is not valid
// syntax, or a recognized declaration with invalid field values. It is
// fatal for the source it occurred in; other sources are still
// processed.
type ParseError struct {
	Origin string
	Line   int32
	Col    int32
	Msg    string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d:%d: %s", e.Origin, e.Line, e.Col, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.Origin, e.Msg)
}

func (e *ParseError) Unwrap() error { return e.Err }

// UnsupportedConstructError reports syntactically valid source that
// falls outside the recognized declarative vocabulary: control flow,
// assignments, unknown calls, or any expression that would require
// runtime evaluation. Such constructs are rejected, never guessed at.
type UnsupportedConstructError struct {
	Origin    string
	Line      int32
	Col       int32
	Construct string
}

func (e *UnsupportedConstructError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d:%d: unsupported construct: %s", e.Origin, e.Line, e.Col, e.Construct)
	}
	return fmt.Sprintf("%s: unsupported construct: %s", e.Origin, e.Construct)
}
