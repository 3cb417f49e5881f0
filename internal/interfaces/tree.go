package interfaces

// SourceTree provides read access to a firmware source checkout. All
// paths passed in are relative to the tree root; lookups against a list
// of candidates report existence explicitly instead of guessing.
type SourceTree interface {
	// Root returns the absolute path of the tree root
	Root() string

	// KeyboardPath joins path parts under the keyboards directory
	KeyboardPath(parts ...string) string

	// Exists reports whether the relative path exists
	Exists(rel string) bool

	// FirstExisting returns the first candidate path that exists
	FirstExisting(candidates []string) (string, bool)

	// AllExisting returns the candidates that exist, preserving order
	AllExisting(candidates []string) []string

	// ReadText reads a file with lenient text decoding. A missing or
	// unreadable file is a soft miss, not an error.
	ReadText(rel string) (string, bool)

	// Keyboards returns all keyboard folder names, sorted
	Keyboards() ([]string, error)

	// Keymaps returns the keymap names under a keyboard folder, sorted
	Keymaps(keyboard string) []string

	// Headers returns the .h files directly inside a directory, sorted
	Headers(dir string) []string

	// FindReadme locates readme.md in a directory case-insensitively
	FindReadme(dir string) (string, bool)

	// Revision returns the tree's git revision, or "unknown"
	Revision() string
}
