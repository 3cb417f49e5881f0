package readme

import (
	"bytes"
	"path"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"

	"github.com/ternarybob/clavis/internal/common"
	"github.com/ternarybob/clavis/internal/interfaces"
)

// Service locates readme files in the firmware tree and renders them to
// HTML for the catalog.
type Service struct {
	tree     interfaces.SourceTree
	rec      interfaces.RunRecorder
	logger   arbor.ILogger
	markdown goldmark.Markdown
}

// NewService creates a readme service reading from tree.
func NewService(tree interfaces.SourceTree, rec interfaces.RunRecorder, logger arbor.ILogger) *Service {
	if logger == nil {
		logger = common.GetLogger()
	}

	md := goldmark.New(
		goldmark.WithExtensions(extension.Table, extension.Strikethrough, extension.Linkify),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
	)

	return &Service{
		tree:     tree,
		rec:      rec,
		logger:   logger,
		markdown: md,
	}
}

// ForKeyboard returns the readme text for a keyboard. Every folder level
// from the top of the keyboard path down is searched and the deepest
// readme wins, so a revision folder can shadow its parent's file. A
// keyboard without any readme records a warning.
func (s *Service) ForKeyboard(keyboard string) (string, bool) {
	var found string
	prefix := ""
	for _, segment := range strings.Split(keyboard, "/") {
		prefix = path.Join(prefix, segment)
		if rel, ok := s.tree.FindReadme(s.tree.KeyboardPath(prefix)); ok {
			found = rel // last one wins
		}
	}

	if found != "" {
		if text, ok := s.tree.ReadText(found); ok {
			return text, true
		}
	}

	s.rec.Warningf("%s does not have a readme.md.", keyboard)
	return "", false
}

// ForKeymap returns the readme text inside one keymap folder. Most
// keymaps have none, so absence is not worth recording.
func (s *Service) ForKeymap(keyboard, keymap string) (string, bool) {
	rel, ok := s.tree.FindReadme(s.tree.KeyboardPath(keyboard, "keymaps", keymap))
	if !ok {
		return "", false
	}
	return s.tree.ReadText(rel)
}

// RenderHTML converts readme markdown to HTML.
func (s *Service) RenderHTML(text string) (string, error) {
	var buf bytes.Buffer
	if err := s.markdown.Convert([]byte(text), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
