package coach

import (
	"hash/fnv"
	"math/rand"
	"regexp"
	"strings"
)

// Meta is the per-turn session classification shown by the presentation
// layer: what the user seems to want, how they sound, which coaching
// mode the reply takes, and the safety risk level.
type Meta struct {
	Intent  string `json:"intent"`
	Emotion string `json:"emotion"`
	Mode    string `json:"mode"`
	Risk    string `json:"risk"`
}

var highRiskPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bkill myself\b`),
	regexp.MustCompile(`\bsuicide\b`),
	regexp.MustCompile(`\bend my life\b`),
	regexp.MustCompile(`\bwant to die\b`),
	regexp.MustCompile(`\bself[- ]?harm\b`),
	regexp.MustCompile(`\bcut myself\b`),
	regexp.MustCompile(`\boverdose\b`),
	regexp.MustCompile(`\bno reason to live\b`),
}

var mediumRiskPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bhopeless\b`),
	regexp.MustCompile(`\bworthless\b`),
	regexp.MustCompile(`\bcan't go on\b`),
	regexp.MustCompile(`\bpanic attack\b`),
}

// RiskLevel classifies the transcript as high, medium or none.
func RiskLevel(text string) string {
	t := strings.ToLower(text)
	for _, p := range highRiskPatterns {
		if p.MatchString(t) {
			return "high"
		}
	}
	for _, p := range mediumRiskPatterns {
		if p.MatchString(t) {
			return "medium"
		}
	}
	return "none"
}

var intentKeywords = []struct {
	intent   string
	keywords []string
}{
	{"burnout", []string{"burnout", "burned out", "burnt out", "exhausted", "drained"}},
	{"anxiety", []string{"anxious", "anxiety", "worried", "worry", "nervous", "panic"}},
	{"stress", []string{"stress", "stressed", "overwhelmed", "pressure", "deadline"}},
	{"grief", []string{"grief", "grieving", "loss", "passed away", "died", "miss them"}},
	{"relationship", []string{"partner", "relationship", "friend", "family", "boyfriend", "girlfriend", "marriage"}},
	{"goal_setting", []string{"goal", "plan", "want to start", "want to achieve", "habit", "improve"}},
	{"venting", []string{"just need to talk", "need to vent", "get this off", "so frustrated", "fed up"}},
}

// ClassifyIntent maps the transcript onto one of the known intent labels
// by keyword match, first hit wins. Empty or unmatched text is "other".
func ClassifyIntent(text string) string {
	t := strings.ToLower(strings.TrimSpace(text))
	if t == "" {
		return "other"
	}
	for _, entry := range intentKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(t, kw) {
				return entry.intent
			}
		}
	}
	return "other"
}

var emotionKeywords = []struct {
	emotion  string
	keywords []string
}{
	{"fear", []string{"afraid", "scared", "terrified", "anxious", "dread"}},
	{"anger", []string{"angry", "furious", "mad at", "rage", "frustrated", "irritated"}},
	{"sadness", []string{"sad", "down", "crying", "depressed", "miserable", "lonely", "hopeless"}},
	{"joy", []string{"happy", "excited", "great news", "thrilled", "proud"}},
	{"love", []string{"love", "grateful", "thankful", "appreciate"}},
	{"surprise", []string{"surprised", "shocked", "unexpected", "can't believe"}},
}

// DetectEmotion maps the transcript onto one of the known emotion
// labels, defaulting to neutral.
func DetectEmotion(text string) string {
	t := strings.ToLower(strings.TrimSpace(text))
	if t == "" {
		return "neutral"
	}
	for _, entry := range emotionKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(t, kw) {
				return entry.emotion
			}
		}
	}
	return "neutral"
}

// Modes lists coaching modes in canonical order.
var Modes = []string{
	"reflection",
	"reframe",
	"options",
	"values",
	"micro_plan",
	"summary",
	"compassion",
	"curious",
}

// AllowedModes gates the candidate modes by intent and emotion.
// Reflection is always allowed.
func AllowedModes(intent, emotion string) []string {
	allowed := map[string]bool{"reflection": true}

	switch emotion {
	case "sadness", "fear":
		for _, m := range []string{"compassion", "reflection", "micro_plan", "values"} {
			allowed[m] = true
		}
	case "anger":
		for _, m := range []string{"reflection", "reframe", "options"} {
			allowed[m] = true
		}
	case "joy":
		for _, m := range []string{"summary", "values", "micro_plan"} {
			allowed[m] = true
		}
	}

	if intent == "goal_setting" {
		for _, m := range []string{"micro_plan", "options", "values"} {
			allowed[m] = true
		}
	}

	out := make([]string, 0, len(allowed))
	for _, m := range Modes {
		if allowed[m] {
			out = append(out, m)
		}
	}
	return out
}

// ChooseMode picks a mode from allowed, avoiding the two most recent
// ones when possible. A non-empty seed makes the choice deterministic.
func ChooseMode(allowed, lastModes []string, seed string) string {
	if len(allowed) == 0 {
		return "reflection"
	}

	recent := map[string]bool{}
	start := len(lastModes) - 2
	if start < 0 {
		start = 0
	}
	for _, m := range lastModes[start:] {
		recent[m] = true
	}

	candidates := make([]string, 0, len(allowed))
	for _, m := range allowed {
		if !recent[m] {
			candidates = append(candidates, m)
		}
	}
	if len(candidates) == 0 {
		candidates = allowed
	}

	rng := rand.New(rand.NewSource(seedValue(seed)))
	return candidates[rng.Intn(len(candidates))]
}

func seedValue(seed string) int64 {
	if seed == "" {
		return rand.Int63()
	}
	h := fnv.New64a()
	h.Write([]byte(seed))
	return int64(h.Sum64())
}

// Classify runs the full heuristic tier against one transcript.
// lastModes feeds mode rotation; seed makes the rotation reproducible.
func Classify(transcript string, lastModes []string, seed string) Meta {
	intent := ClassifyIntent(transcript)
	emotion := DetectEmotion(transcript)
	return Meta{
		Intent:  intent,
		Emotion: emotion,
		Mode:    ChooseMode(AllowedModes(intent, emotion), lastModes, seed),
		Risk:    RiskLevel(transcript),
	}
}
