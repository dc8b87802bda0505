package analysis

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"medroom/internal/extract"
	"medroom/pkg/interfaces"
	"medroom/pkg/types"
)

// Bounds applied to the stored document summary
const (
	MinContentLength   = 20
	MaxSummaryAnalysis = 1500
	MaxSummaryExcerpt  = 500
	MaxPriorAnalysis   = 500
	maxKeyMetrics      = 8
	maxPromptContent   = extract.MaxContentLength
)

// Result is the outcome of analyzing one upload
type Result struct {
	// Analyzed is false when the content was below threshold or non-text
	Analyzed bool
	Analysis string
	Summary  *types.DocumentSummary
	// Metrics is nil when extraction failed; the room snapshot must not change
	Metrics *types.HealthMetrics
}

// Pipeline analyzes uploaded documents with two independent model calls.
// ARCHITECTURAL DISCOVERY: Pure function of its inputs; the hub snapshots
// the file and prior files before calling and applies the Result afterwards
type Pipeline struct {
	model  interfaces.LanguageModel
	logger zerolog.Logger
}

// NewPipeline creates an analysis pipeline
func NewPipeline(model interfaces.LanguageModel, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		model:  model,
		logger: logger.With().Str("component", "analysis").Logger(),
	}
}

// Analyzable reports whether extracted content is worth a model call.
// The threshold counts characters, not bytes
func Analyzable(content string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(content)) > MinContentLength && !extract.IsSentinel(content)
}

// PatientNotice is the reassurance sent to a patient who uploaded a file
func PatientNotice(fileName string) string {
	return fmt.Sprintf(patientNotice, fileName)
}

// Analyze runs temporal (or plain) analysis and metrics extraction concurrently.
// FUNCTIONAL DISCOVERY: Never fails; model errors degrade to FallbackAnalysis
// and a summary built from DefaultMetrics
func (p *Pipeline) Analyze(ctx context.Context, file *types.UploadedFile, prior []*types.UploadedFile) Result {
	if !Analyzable(file.ExtractedContent) {
		p.logger.Debug().Str("file_id", file.ID).Msg("content below threshold, skipping analysis")
		return Result{}
	}

	var (
		analysis string
		metrics  *types.HealthMetrics
		g        errgroup.Group
	)
	g.Go(func() error {
		analysis = p.analyze(ctx, file, prior)
		return nil
	})
	g.Go(func() error {
		metrics = p.extractMetrics(ctx, file)
		return nil
	})
	_ = g.Wait()

	summaryMetrics := metrics
	if summaryMetrics == nil {
		summaryMetrics = types.DefaultMetrics()
	}
	return Result{
		Analyzed: true,
		Analysis: analysis,
		Summary:  BuildSummary(analysis, file.ExtractedContent, summaryMetrics),
		Metrics:  metrics,
	}
}

func (p *Pipeline) analyze(ctx context.Context, file *types.UploadedFile, prior []*types.UploadedFile) string {
	segments := analysisPrompt(file, prior)
	text, err := p.model.Complete(ctx, segments)
	if err != nil {
		p.logger.Warn().Err(err).Str("file_id", file.ID).Msg("document analysis failed")
		return FallbackAnalysis
	}
	return strings.TrimSpace(text)
}

// analysisPrompt compares against earlier files when any have a stored analysis
func analysisPrompt(file *types.UploadedFile, prior []*types.UploadedFile) []interfaces.PromptSegment {
	document := fmt.Sprintf("Document: %s\n\n%s", file.Name, types.Truncate(file.ExtractedContent, maxPromptContent))

	var history strings.Builder
	n := 0
	for _, f := range prior {
		if f.ID == file.ID {
			continue
		}
		n++
		brief := "No analysis on file."
		if f.DocumentSummary != nil && f.DocumentSummary.Analysis != "" {
			brief = types.Truncate(f.DocumentSummary.Analysis, MaxPriorAnalysis)
		}
		fmt.Fprintf(&history, "%d. %s (uploaded %s): %s\n", n, f.Name, f.UploadedAt.Format("2006-01-02"), brief)
	}

	if n == 0 {
		return []interfaces.PromptSegment{
			{Role: interfaces.SegmentSystem, Content: analysisPersona},
			{Role: interfaces.SegmentUser, Content: document},
		}
	}
	return []interfaces.PromptSegment{
		{Role: interfaces.SegmentSystem, Content: temporalPersona},
		{Role: interfaces.SegmentUser, Content: "Earlier documents:\n" + history.String() + "\nNew " + document},
	}
}

func (p *Pipeline) extractMetrics(ctx context.Context, file *types.UploadedFile) *types.HealthMetrics {
	raw, err := p.model.Complete(ctx, []interfaces.PromptSegment{
		{Role: interfaces.SegmentSystem, Content: metricsPersona},
		{Role: interfaces.SegmentUser, Content: types.Truncate(file.ExtractedContent, maxPromptContent)},
	})
	if err != nil {
		p.logger.Warn().Err(err).Str("file_id", file.ID).Msg("metrics extraction failed")
		return nil
	}
	metrics, err := types.ParseHealthMetrics(raw)
	if err != nil {
		p.logger.Warn().Err(err).Str("file_id", file.ID).Msg("metrics response unparseable")
		return nil
	}
	return metrics
}

// BuildSummary bounds the analysis and content and condenses the metrics
func BuildSummary(analysis, content string, metrics *types.HealthMetrics) *types.DocumentSummary {
	return &types.DocumentSummary{
		Analysis:         types.Truncate(analysis, MaxSummaryAnalysis),
		ContentExcerpt:   types.Truncate(strings.TrimSpace(content), MaxSummaryExcerpt),
		KeyMetrics:       KeyMetrics(metrics),
		RiskLevel:        metrics.Diagnosis.RiskLevel,
		PrimaryDiagnosis: metrics.Diagnosis.Primary,
	}
}

// KeyMetrics condenses vitals and findings into short lines, abnormal first
func KeyMetrics(metrics *types.HealthMetrics) []string {
	var abnormal, normal []string
	names := make([]string, 0, len(metrics.Vitals))
	for name := range metrics.Vitals {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		v := metrics.Vitals[name]
		line := strings.TrimSpace(fmt.Sprintf("%s: %s %s", name, v.Value, v.Unit))
		if v.Status != "" {
			line += " (" + v.Status + ")"
		}
		if strings.EqualFold(v.Status, "normal") || v.Status == "" {
			normal = append(normal, line)
		} else {
			abnormal = append(abnormal, line)
		}
	}
	for _, f := range metrics.KeyFindings {
		if f.Parameter == "" {
			continue
		}
		abnormal = append(abnormal, strings.TrimSpace(fmt.Sprintf("%s: %s (%s)", f.Parameter, f.Value, f.Status)))
	}

	out := append(abnormal, normal...)
	if len(out) > maxKeyMetrics {
		out = out[:maxKeyMetrics]
	}
	if out == nil {
		out = []string{}
	}
	return out
}
