package interfaces

import "context"

// Preprocessor expands a C source file without compiling it. Flatten
// returns the preprocessed text with all whitespace removed, ready for
// pattern extraction.
type Preprocessor interface {
	Flatten(ctx context.Context, path string) (string, error)
}
