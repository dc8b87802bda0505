package emergency

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"medroom/pkg/interfaces"
	"medroom/pkg/types"
)

// Severity levels returned by classification
const (
	LevelCritical = "CRITICAL"
	LevelHigh     = "HIGH"
	LevelModerate = "MODERATE"
	LevelLow      = "LOW"
)

// FallbackReasoning is reported when the classifier cannot be reached
const FallbackReasoning = "Emergency keywords detected and automated severity assessment is unavailable; treat as urgent until reviewed."

const fallbackAdvice = "If you are experiencing a medical emergency, call your local emergency number or go to the nearest emergency department now."

// Keywords is the fixed set of phrases that trigger classification
var Keywords = []string{
	"chest pain",
	"can't breathe",
	"cannot breathe",
	"difficulty breathing",
	"shortness of breath",
	"heart attack",
	"stroke",
	"unconscious",
	"passed out",
	"fainted",
	"seizure",
	"severe bleeding",
	"bleeding heavily",
	"suicide",
	"kill myself",
	"overdose",
	"allergic reaction",
	"anaphylaxis",
	"throat closing",
	"numbness on one side",
	"slurred speech",
	"severe headache",
	"coughing blood",
	"vomiting blood",
}

const classifierPrompt = `You triage messages from a telemedicine consultation.
Classify the medical urgency of the patient's message.
Respond with JSON only, no prose:
{"level": "CRITICAL|HIGH|MODERATE|LOW", "reasoning": "<one or two sentences>", "urgentAdvice": "<what the patient should do right now>"}`

// Detector flags emergency messages.
// FUNCTIONAL DISCOVERY: Keyword scanning is local and cheap; only a keyword
// hit costs a model call
type Detector struct {
	model  interfaces.LanguageModel
	logger zerolog.Logger
}

// NewDetector creates a detector; model may be nil, in which case every
// keyword hit is classified by the fail-safe path
func NewDetector(model interfaces.LanguageModel, logger zerolog.Logger) *Detector {
	return &Detector{
		model:  model,
		logger: logger.With().Str("component", "emergency").Logger(),
	}
}

// Scan returns the keywords present in text (case-insensitive substring match)
func (d *Detector) Scan(text string) []string {
	lower := strings.ToLower(text)
	var hits []string
	for _, keyword := range Keywords {
		if strings.Contains(lower, keyword) {
			hits = append(hits, keyword)
		}
	}
	return hits
}

type classification struct {
	Level        string `json:"level"`
	Reasoning    string `json:"reasoning"`
	UrgentAdvice string `json:"urgentAdvice"`
}

// Classify asks the model how urgent a flagged message is.
// FUNCTIONAL DISCOVERY: Fails toward caution; any error or unparseable answer
// reports an emergency at HIGH
func (d *Detector) Classify(ctx context.Context, text string, keywords []string) types.EmergencyAssessment {
	result, err := d.classify(ctx, text, keywords)
	if err != nil {
		d.logger.Warn().Err(err).Strs("keywords", keywords).Msg("emergency classification failed, assuming HIGH")
		return types.EmergencyAssessment{
			IsEmergency:  true,
			Level:        LevelHigh,
			Reasoning:    FallbackReasoning,
			UrgentAdvice: fallbackAdvice,
			Keywords:     keywords,
		}
	}

	level := strings.ToUpper(strings.TrimSpace(result.Level))
	return types.EmergencyAssessment{
		IsEmergency:  level == LevelCritical || level == LevelHigh,
		Level:        level,
		Reasoning:    strings.TrimSpace(result.Reasoning),
		UrgentAdvice: strings.TrimSpace(result.UrgentAdvice),
		Keywords:     keywords,
	}
}

func (d *Detector) classify(ctx context.Context, text string, keywords []string) (*classification, error) {
	if d.model == nil {
		return nil, fmt.Errorf("%w: no classifier configured", types.ErrModelUnavailable)
	}

	raw, err := d.model.Complete(ctx, []interfaces.PromptSegment{
		{Role: interfaces.SegmentSystem, Content: classifierPrompt},
		{Role: interfaces.SegmentUser, Content: fmt.Sprintf("Flagged keywords: %s\nMessage: %s", strings.Join(keywords, ", "), text)},
	})
	if err != nil {
		return nil, err
	}

	body, err := types.ExtractJSONObject(raw)
	if err != nil {
		return nil, err
	}
	var result classification
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		return nil, fmt.Errorf("%w: malformed classification: %v", types.ErrValidation, err)
	}
	switch strings.ToUpper(strings.TrimSpace(result.Level)) {
	case LevelCritical, LevelHigh, LevelModerate, LevelLow:
		return &result, nil
	default:
		return nil, fmt.Errorf("%w: unknown level %q", types.ErrValidation, result.Level)
	}
}
