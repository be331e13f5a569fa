package coach

import (
	"testing"
)

func TestRiskLevel(t *testing.T) {
	cases := []struct {
		text string
		want string
	}{
		{"I want to plan my week", "none"},
		{"I feel hopeless about this", "medium"},
		{"sometimes I think about suicide", "high"},
		{"I want to die", "high"},
		{"I keep having a panic attack at work", "medium"},
		{"", "none"},
	}

	for _, tc := range cases {
		if got := RiskLevel(tc.text); got != tc.want {
			t.Errorf("RiskLevel(%q) = %q, want %q", tc.text, got, tc.want)
		}
	}
}

func TestClassifyIntent(t *testing.T) {
	cases := []struct {
		text string
		want string
	}{
		{"I'm so burned out at work", "burnout"},
		{"I've been really anxious lately", "anxiety"},
		{"there's so much pressure and deadlines", "stress"},
		{"my partner and I keep fighting", "relationship"},
		{"I want to start a new habit", "goal_setting"},
		{"I just need to vent for a minute", "venting"},
		{"the weather is nice", "other"},
		{"", "other"},
	}

	for _, tc := range cases {
		if got := ClassifyIntent(tc.text); got != tc.want {
			t.Errorf("ClassifyIntent(%q) = %q, want %q", tc.text, got, tc.want)
		}
	}
}

func TestDetectEmotion(t *testing.T) {
	cases := []struct {
		text string
		want string
	}{
		{"I'm scared of what comes next", "fear"},
		{"I'm so angry about this", "anger"},
		{"I've been crying all day", "sadness"},
		{"I got great news today", "joy"},
		{"just an ordinary update", "neutral"},
		{"", "neutral"},
	}

	for _, tc := range cases {
		if got := DetectEmotion(tc.text); got != tc.want {
			t.Errorf("DetectEmotion(%q) = %q, want %q", tc.text, got, tc.want)
		}
	}
}

func TestAllowedModes_AlwaysIncludesReflection(t *testing.T) {
	for _, emotion := range []string{"neutral", "sadness", "anger", "joy", "fear"} {
		allowed := AllowedModes("other", emotion)
		found := false
		for _, m := range allowed {
			if m == "reflection" {
				found = true
			}
		}
		if !found {
			t.Errorf("AllowedModes(other, %s) missing reflection: %v", emotion, allowed)
		}
	}
}

func TestAllowedModes_GoalSetting(t *testing.T) {
	allowed := AllowedModes("goal_setting", "neutral")
	want := map[string]bool{"reflection": true, "micro_plan": true, "options": true, "values": true}
	if len(allowed) != len(want) {
		t.Fatalf("Expected %d modes, got %v", len(want), allowed)
	}
	for _, m := range allowed {
		if !want[m] {
			t.Errorf("Unexpected mode %q in %v", m, allowed)
		}
	}
}

func TestChooseMode_Deterministic(t *testing.T) {
	allowed := AllowedModes("goal_setting", "sadness")

	first := ChooseMode(allowed, nil, "sess:3")
	second := ChooseMode(allowed, nil, "sess:3")
	if first != second {
		t.Errorf("Expected identical choices for same seed, got %q and %q", first, second)
	}
}

func TestChooseMode_AvoidsRecent(t *testing.T) {
	allowed := []string{"reflection", "compassion", "micro_plan"}
	last := []string{"reflection", "compassion"}

	for i := 0; i < 20; i++ {
		got := ChooseMode(allowed, last, "")
		if got != "micro_plan" {
			t.Fatalf("Expected micro_plan (only non-recent candidate), got %q", got)
		}
	}
}

func TestChooseMode_Empty(t *testing.T) {
	if got := ChooseMode(nil, nil, "x"); got != "reflection" {
		t.Errorf("Expected fallback 'reflection', got %q", got)
	}
}

func TestClassify(t *testing.T) {
	meta := Classify("I'm so anxious and scared about my exam", nil, "seed")

	if meta.Intent != "anxiety" {
		t.Errorf("Expected intent 'anxiety', got '%s'", meta.Intent)
	}
	if meta.Emotion != "fear" {
		t.Errorf("Expected emotion 'fear', got '%s'", meta.Emotion)
	}
	if meta.Risk != "none" {
		t.Errorf("Expected risk 'none', got '%s'", meta.Risk)
	}
	if meta.Mode == "" {
		t.Error("Expected a mode to be chosen")
	}
}
