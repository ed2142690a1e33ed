package coachcontext

import "regexp"

type CorrectionType string

const (
	CorrectionFactWrong CorrectionType = "fact_wrong"
	CorrectionOutdated  CorrectionType = "outdated"
	CorrectionPartial   CorrectionType = "partial"
)

// DetectedCorrection is the result of running a user message against the
// correction-marker set.
type DetectedCorrection struct {
	Detected          bool
	Type              CorrectionType
	Confidence        float64
	SuggestedResponse string
}

// correctionConfidence carries the per-family confidence weight ported
// from dossier_validator.py's marker table: FACT_WRONG is a direct denial
// (highest confidence), OUTDATED and PARTIAL are softer signals.
var correctionConfidence = map[CorrectionType]float64{
	CorrectionFactWrong: 0.9,
	CorrectionOutdated:  0.85,
	CorrectionPartial:   0.7,
}

// factWrongMarkers/outdatedMarkers/partialMarkers carry both the Russian
// markers the original coach used and their direct English equivalents,
// since this port serves both languages.
var factWrongMarkers = compileAll(
	`нет[,.]?\s*(на самом деле|это не так)`,
	`это\s+(не\s+так|неверно|неправда|ошибка)`,
	`ты\s+(ошиб|не\s*прав|путаешь)`,
	`я\s+не\s+(говорил|имел|хотел)`,
	`no[,.]?\s*(that's not (right|true)|actually)`,
	`that's\s+(wrong|not\s+(right|true|correct))`,
	`you'?re\s+(wrong|mistaken)`,
	`i\s+never\s+(said|meant)`,
)

var outdatedMarkers = compileAll(
	`это\s+было\s+раньше`,
	`уже\s+(не|нет)`,
	`больше\s+не`,
	`that\s+was\s+before`,
	`no\s+longer`,
	`not\s+anymore`,
	`things\s+have\s+changed`,
)

var partialMarkers = compileAll(
	`не\s+совсем\s+(так|верно|правильно)?`,
	`точнее\s+будет`,
	`not\s+quite`,
	`sort\s+of`,
	`kind\s+of,?\s+but`,
	`partially`,
)

func compileAll(patterns ...string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		compiled[i] = regexp.MustCompile("(?i)" + p)
	}
	return compiled
}

func matchesAny(patterns []*regexp.Regexp, text string) bool {
	for _, p := range patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// correctionResponses mirrors the original coach's apology-and-re-ground
// prefixes, translated rather than carried in Russian since this port's
// user-facing copy is English.
var correctionResponses = map[CorrectionType]string{
	CorrectionFactWrong: "Thanks for the correction — let me update that.",
	CorrectionOutdated:  "Apologies for the outdated read, help me understand where things stand now.",
	CorrectionPartial:   "Got it, tell me more so I get the full picture.",
}

// DetectCorrection checks a user message against the three marker
// families in priority order (FACT_WRONG, then OUTDATED, then PARTIAL)
// and returns a suggested response prefix on a hit.
func DetectCorrection(userMessage string) DetectedCorrection {
	switch {
	case matchesAny(factWrongMarkers, userMessage):
		return DetectedCorrection{Detected: true, Type: CorrectionFactWrong, Confidence: correctionConfidence[CorrectionFactWrong], SuggestedResponse: correctionResponses[CorrectionFactWrong]}
	case matchesAny(outdatedMarkers, userMessage):
		return DetectedCorrection{Detected: true, Type: CorrectionOutdated, Confidence: correctionConfidence[CorrectionOutdated], SuggestedResponse: correctionResponses[CorrectionOutdated]}
	case matchesAny(partialMarkers, userMessage):
		return DetectedCorrection{Detected: true, Type: CorrectionPartial, Confidence: correctionConfidence[CorrectionPartial], SuggestedResponse: correctionResponses[CorrectionPartial]}
	default:
		return DetectedCorrection{}
	}
}
