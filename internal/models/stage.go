package models

import "fmt"

// BuildStage is one step of the per-keyboard extraction pipeline.
type BuildStage int

const (
	StageInit BuildStage = iota
	StageConfigResolved
	StageLayoutsDiscovered
	StageManifestMerged
	StageClassified
	StageKeymapsEnumerated
	StagePublished
	StageFailed
)

var stageNames = map[BuildStage]string{
	StageInit:              "init",
	StageConfigResolved:    "config_resolved",
	StageLayoutsDiscovered: "layouts_discovered",
	StageManifestMerged:    "manifest_merged",
	StageClassified:        "classified",
	StageKeymapsEnumerated: "keymaps_enumerated",
	StagePublished:         "published",
	StageFailed:            "failed",
}

func (s BuildStage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// Terminal reports whether no further transition is allowed.
func (s BuildStage) Terminal() bool {
	return s == StagePublished || s == StageFailed
}

// BuildState tracks one keyboard through the pipeline. Stages advance
// strictly in order and a failure is terminal, so the stage recorded for
// a broken keyboard names exactly where it stopped.
type BuildState struct {
	Keyboard string
	Stage    BuildStage
}

// NewBuildState starts a keyboard at StageInit.
func NewBuildState(keyboard string) *BuildState {
	return &BuildState{Keyboard: keyboard, Stage: StageInit}
}

// Advance moves to next, which must be the immediate successor of the
// current stage.
func (s *BuildState) Advance(next BuildStage) error {
	if s.Stage.Terminal() {
		return fmt.Errorf("keyboard %s: stage %s is terminal", s.Keyboard, s.Stage)
	}
	if next != s.Stage+1 || next == StageFailed {
		return fmt.Errorf("keyboard %s: cannot advance from %s to %s", s.Keyboard, s.Stage, next)
	}
	s.Stage = next
	return nil
}

// Fail marks the keyboard broken at its current stage.
func (s *BuildState) Fail() {
	s.Stage = StageFailed
}
