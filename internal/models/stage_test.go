package models

import "testing"

func TestBuildState_AdvanceInOrder(t *testing.T) {
	state := NewBuildState("gh60")
	order := []BuildStage{
		StageConfigResolved,
		StageLayoutsDiscovered,
		StageManifestMerged,
		StageClassified,
		StageKeymapsEnumerated,
		StagePublished,
	}

	for _, next := range order {
		if err := state.Advance(next); err != nil {
			t.Fatalf("advance to %s failed: %v", next, err)
		}
	}
	if state.Stage != StagePublished {
		t.Errorf("got %s, expected published", state.Stage)
	}
}

func TestBuildState_RejectsSkippedStage(t *testing.T) {
	state := NewBuildState("gh60")
	if err := state.Advance(StageClassified); err == nil {
		t.Error("skipping stages should fail")
	}
	if state.Stage != StageInit {
		t.Errorf("failed advance must not move the stage, got %s", state.Stage)
	}
}

func TestBuildState_FailIsTerminal(t *testing.T) {
	state := NewBuildState("gh60")
	if err := state.Advance(StageConfigResolved); err != nil {
		t.Fatalf("advance failed: %v", err)
	}
	state.Fail()

	if !state.Stage.Terminal() {
		t.Error("failed state should be terminal")
	}
	if err := state.Advance(StageLayoutsDiscovered); err == nil {
		t.Error("advancing a failed keyboard should error")
	}
}

func TestBuildState_PublishedIsTerminal(t *testing.T) {
	state := &BuildState{Keyboard: "gh60", Stage: StagePublished}
	if err := state.Advance(StageFailed); err == nil {
		t.Error("published is terminal")
	}
}
