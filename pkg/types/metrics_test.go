package types

import (
	"errors"
	"testing"
)

func TestParseHealthMetrics_FencedJSON(t *testing.T) {
	raw := "Here you go:\n```json\n" + `{
		"vitals": {"bloodPressure": {"value": "150/95", "unit": "mmHg", "status": "high"},
		           "heartRate": {"value": 88, "unit": "bpm", "status": "normal"}},
		"diagnosis": {"primary": "Hypertension", "confidence": 140, "riskLevel": "HIGH", "summary": "Stage 2"},
		"keyFindings": [{"parameter": "LDL", "value": 190, "normalRange": "<100", "status": "high", "concern": "elevated"}]
	}` + "\n```"

	m, err := ParseHealthMetrics(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Vitals["heartRate"].Value != "88" {
		t.Errorf("numeric vital not normalized: %q", m.Vitals["heartRate"].Value)
	}
	if m.Diagnosis.Confidence != 100 {
		t.Errorf("confidence not clamped: %v", m.Diagnosis.Confidence)
	}
	if m.Diagnosis.RiskLevel != RiskHigh {
		t.Errorf("risk level not normalized: %q", m.Diagnosis.RiskLevel)
	}
	if m.Recommendations == nil {
		t.Error("recommendations should default to empty slice")
	}
	if m.KeyFindings[0].Value != "190" {
		t.Errorf("finding value = %q", m.KeyFindings[0].Value)
	}
}

func TestParseHealthMetrics_Rejects(t *testing.T) {
	inputs := map[string]string{
		"no json":        "I cannot extract metrics from this.",
		"wrong sections": `{"foo": 1}`,
		"broken":         `{"vitals": {"bp": {"value": [1,2]}}}`,
	}
	for name, raw := range inputs {
		t.Run(name, func(t *testing.T) {
			m, err := ParseHealthMetrics(raw)
			if err == nil {
				t.Fatalf("expected error, got %+v", m)
			}
			if !errors.Is(err, ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestHealthMetrics_SanitizeUnknownRisk(t *testing.T) {
	m := &HealthMetrics{Diagnosis: Diagnosis{RiskLevel: "catastrophic", Confidence: -3}}
	m.Sanitize()
	if m.Diagnosis.RiskLevel != RiskMedium {
		t.Errorf("risk = %q", m.Diagnosis.RiskLevel)
	}
	if m.Diagnosis.Confidence != 0 {
		t.Errorf("confidence = %v", m.Diagnosis.Confidence)
	}
	if m.Vitals == nil || m.KeyFindings == nil {
		t.Error("collections should be initialized")
	}
	if m.Diagnosis.Primary == "" {
		t.Error("primary diagnosis should default")
	}
}

func TestHealthMetrics_CloneIsDeep(t *testing.T) {
	m := &HealthMetrics{
		Vitals:          map[string]Vital{"hr": {Value: "80"}},
		Recommendations: []string{"rest"},
	}
	c := m.Clone()
	c.Vitals["hr"] = Vital{Value: "120"}
	c.Recommendations[0] = "run"
	if m.Vitals["hr"].Value != "80" || m.Recommendations[0] != "rest" {
		t.Error("clone shares state with original")
	}
	var nilMetrics *HealthMetrics
	if nilMetrics.Clone() != nil {
		t.Error("nil clone should be nil")
	}
}

func TestDefaultMetrics(t *testing.T) {
	m := DefaultMetrics()
	if m.Diagnosis.Primary != "Extraction error" {
		t.Errorf("primary = %q", m.Diagnosis.Primary)
	}
	if m.Vitals == nil || m.KeyFindings == nil {
		t.Error("default metrics must have initialized collections")
	}
}
