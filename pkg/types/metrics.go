package types

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Risk levels accepted on a diagnosis
const (
	RiskLow      = "low"
	RiskMedium   = "medium"
	RiskHigh     = "high"
	RiskCritical = "critical"
)

// FlexString accepts a JSON string, number, boolean or null and keeps it as text.
// TECHNICAL DISCOVERY: Model output alternates between "120" and 120 for the
// same field; normalizing at decode time keeps the rest of the code typed
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" || raw == "" {
		*f = ""
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	if n, err := strconv.ParseFloat(raw, 64); err == nil {
		*f = FlexString(strconv.FormatFloat(n, 'f', -1, 64))
		return nil
	}
	if raw == "true" || raw == "false" {
		*f = FlexString(raw)
		return nil
	}
	return fmt.Errorf("unsupported value %s", raw)
}

// Vital is one named measurement
type Vital struct {
	Value  FlexString `json:"value"`
	Unit   string     `json:"unit"`
	Status string     `json:"status"`
}

// Diagnosis is the model's primary assessment
type Diagnosis struct {
	Primary    string  `json:"primary"`
	Confidence float64 `json:"confidence"`
	RiskLevel  string  `json:"riskLevel"`
	Summary    string  `json:"summary"`
}

// Finding is one notable parameter from a document
type Finding struct {
	Parameter   string     `json:"parameter"`
	Value       FlexString `json:"value"`
	NormalRange string     `json:"normalRange"`
	Status      string     `json:"status"`
	Concern     string     `json:"concern"`
}

// HealthMetrics is the structured snapshot extracted from the latest document.
// ARCHITECTURAL DISCOVERY: Replaced wholesale on each successful extraction,
// never merged field by field
type HealthMetrics struct {
	Vitals          map[string]Vital `json:"vitals"`
	Diagnosis       Diagnosis        `json:"diagnosis"`
	KeyFindings     []Finding        `json:"keyFindings"`
	Recommendations []string         `json:"recommendations"`
	UpdatedAt       time.Time        `json:"updatedAt"`
}

// Sanitize applies explicit defaults to every optional field
func (m *HealthMetrics) Sanitize() {
	if m.Vitals == nil {
		m.Vitals = make(map[string]Vital)
	}
	if m.KeyFindings == nil {
		m.KeyFindings = []Finding{}
	}
	if m.Recommendations == nil {
		m.Recommendations = []string{}
	}
	if m.Diagnosis.Confidence < 0 {
		m.Diagnosis.Confidence = 0
	}
	if m.Diagnosis.Confidence > 100 {
		m.Diagnosis.Confidence = 100
	}
	switch strings.ToLower(strings.TrimSpace(m.Diagnosis.RiskLevel)) {
	case RiskLow, RiskMedium, RiskHigh, RiskCritical:
		m.Diagnosis.RiskLevel = strings.ToLower(strings.TrimSpace(m.Diagnosis.RiskLevel))
	default:
		m.Diagnosis.RiskLevel = RiskMedium
	}
	if strings.TrimSpace(m.Diagnosis.Primary) == "" {
		m.Diagnosis.Primary = "Not determined"
	}
}

// Clone returns a deep copy
func (m *HealthMetrics) Clone() *HealthMetrics {
	if m == nil {
		return nil
	}
	c := *m
	c.Vitals = make(map[string]Vital, len(m.Vitals))
	for k, v := range m.Vitals {
		c.Vitals[k] = v
	}
	c.KeyFindings = append([]Finding(nil), m.KeyFindings...)
	c.Recommendations = append([]string(nil), m.Recommendations...)
	return &c
}

// DefaultMetrics is the structure used when extraction fails
func DefaultMetrics() *HealthMetrics {
	return &HealthMetrics{
		Vitals: make(map[string]Vital),
		Diagnosis: Diagnosis{
			Primary:    "Extraction error",
			Confidence: 0,
			RiskLevel:  RiskLow,
			Summary:    "Structured metrics could not be extracted from this document.",
		},
		KeyFindings:     []Finding{},
		Recommendations: []string{"Review the document manually."},
		UpdatedAt:       time.Now(),
	}
}

// ParseHealthMetrics decodes model output into a sanitized snapshot.
// FUNCTIONAL DISCOVERY: Rejects output that carries none of the expected
// sections instead of accepting an all-default object as a success
func ParseHealthMetrics(raw string) (*HealthMetrics, error) {
	body, err := ExtractJSONObject(raw)
	if err != nil {
		return nil, err
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &probe); err != nil {
		return nil, fmt.Errorf("%w: metrics are not a JSON object: %v", ErrValidation, err)
	}
	_, hasVitals := probe["vitals"]
	_, hasDiagnosis := probe["diagnosis"]
	_, hasFindings := probe["keyFindings"]
	if !hasVitals && !hasDiagnosis && !hasFindings {
		return nil, fmt.Errorf("%w: metrics missing vitals, diagnosis and keyFindings", ErrValidation)
	}

	var metrics HealthMetrics
	if err := json.Unmarshal([]byte(body), &metrics); err != nil {
		return nil, fmt.Errorf("%w: malformed metrics: %v", ErrValidation, err)
	}
	metrics.Sanitize()
	metrics.UpdatedAt = time.Now()
	return &metrics, nil
}

// ExtractJSONObject pulls the outermost {...} out of model text, tolerating
// markdown code fences and leading prose
func ExtractJSONObject(raw string) (string, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return "", fmt.Errorf("%w: no JSON object in model output", ErrValidation)
	}
	return raw[start : end+1], nil
}
