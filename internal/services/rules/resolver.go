package rules

import (
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/clavis/internal/common"
	"github.com/ternarybob/clavis/internal/interfaces"
	"github.com/ternarybob/clavis/internal/models"
)

// Resolver produces the merged build configuration for a keyboard from
// its rules.mk and config.h files, honoring one level of DEFAULT_FOLDER
// redirection. The redirected file is parsed into the same map as the
// keyboard's own file, so a key assigned in both takes the redirected
// file's value. That cross-file last-write-wins behavior is long-standing
// and consumers depend on it, so it is kept as-is.
type Resolver struct {
	tree   interfaces.SourceTree
	rec    interfaces.RunRecorder
	logger arbor.ILogger
}

// NewResolver creates a resolver reading from tree and recording parse
// anomalies on rec.
func NewResolver(tree interfaces.SourceTree, rec interfaces.RunRecorder, logger arbor.ILogger) *Resolver {
	if logger == nil {
		logger = common.GetLogger()
	}
	return &Resolver{
		tree:   tree,
		rec:    rec,
		logger: logger,
	}
}

// Rules returns the merged rules.mk for a keyboard. A missing file yields
// an empty map. The DEFAULT_FOLDER used for redirection is the one from
// the keyboard's own file; the returned map may carry a different value
// if the redirected file reassigns the key.
func (r *Resolver) Rules(keyboard string) *models.ConfigMap {
	rules := r.parseRulesFile(r.tree.KeyboardPath(keyboard, "rules.mk"), nil)

	if folder, ok := rules.Get("DEFAULT_FOLDER"); ok {
		rules = r.parseRulesFile(r.tree.KeyboardPath(folder, "rules.mk"), rules)
	}

	return rules
}

// Resolve returns the merged rules.mk and config.h for a keyboard. The
// config.h redirection follows the DEFAULT_FOLDER value present after the
// rules merge, which is what downstream path resolution uses as well.
func (r *Resolver) Resolve(keyboard string) (*models.ConfigMap, models.DefineMap) {
	rules := r.Rules(keyboard)

	defines := r.parseDefinesFile(r.tree.KeyboardPath(keyboard, "config.h"), nil)
	if folder, ok := rules.Get("DEFAULT_FOLDER"); ok {
		defines = r.parseDefinesFile(r.tree.KeyboardPath(folder, "config.h"), defines)
	}

	return rules, defines
}

func (r *Resolver) parseRulesFile(rel string, into *models.ConfigMap) *models.ConfigMap {
	if into == nil {
		into = models.NewConfigMap()
	}

	text, ok := r.tree.ReadText(rel)
	if !ok {
		return into
	}

	r.logger.Debug().Str("file", rel).Msg("Parsing rules.mk")
	return ParseRules(rel, text, into, r.rec)
}

func (r *Resolver) parseDefinesFile(rel string, into models.DefineMap) models.DefineMap {
	if into == nil {
		into = make(models.DefineMap)
	}

	text, ok := r.tree.ReadText(rel)
	if !ok {
		return into
	}

	r.logger.Debug().Str("file", rel).Msg("Parsing config.h")
	return ParseDefines(rel, text, into, r.rec)
}
