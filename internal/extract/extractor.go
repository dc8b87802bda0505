package extract

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog"

	"medroom/pkg/types"
)

// Sentinels returned in place of text when a file cannot be read
const (
	NoTextDetected  = "[No text detected]"
	UnsupportedType = "[Unsupported file type]"
)

// MaxContentLength bounds extracted text kept on a file record
const MaxContentLength = 5000

const visionInstruction = "Transcribe all readable text in this medical document or image. " +
	"Return only the transcribed text. If there is no readable text, reply exactly with " + NoTextDetected

// Vision transcribes images; implemented by llm.Client
type Vision interface {
	DescribeImage(ctx context.Context, mimeType string, data []byte, instruction string) (string, error)
}

// Extractor implements interfaces.ContentExtractor.
// FUNCTIONAL DISCOVERY: Reads the stored file and never writes to it; every
// outcome other than an unreadable path is reported as text
type Extractor struct {
	vision Vision
	logger zerolog.Logger
}

// NewExtractor creates an extractor; vision may be nil to disable image OCR
func NewExtractor(vision Vision, logger zerolog.Logger) *Extractor {
	return &Extractor{
		vision: vision,
		logger: logger.With().Str("component", "extract").Logger(),
	}
}

// IsSentinel reports whether extracted text is one of the non-text markers
func IsSentinel(content string) bool {
	return strings.Contains(content, NoTextDetected) || strings.Contains(content, UnsupportedType)
}

// Extract returns the bounded plain text of the file at path
func (e *Extractor) Extract(ctx context.Context, path, mimeType string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}

	switch {
	case isTextType(mimeType):
		if !utf8.Valid(data) {
			return NoTextDetected, nil
		}
		text := strings.TrimSpace(string(data))
		if text == "" {
			return NoTextDetected, nil
		}
		return types.Truncate(text, MaxContentLength), nil

	case strings.HasPrefix(mimeType, "image/"):
		if e.vision == nil {
			return UnsupportedType, nil
		}
		text, err := e.vision.DescribeImage(ctx, mimeType, data, visionInstruction)
		if err != nil {
			// TECHNICAL DISCOVERY: OCR failure degrades to the sentinel so the
			// upload still succeeds without analysis
			e.logger.Warn().Err(err).Str("mime", mimeType).Msg("image transcription unavailable")
			return NoTextDetected, nil
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return NoTextDetected, nil
		}
		return types.Truncate(text, MaxContentLength), nil

	case mimeType == "application/pdf":
		text, err := pdfText(data)
		if err != nil {
			e.logger.Warn().Err(err).Str("path", path).Msg("pdf text layer unreadable")
			return NoTextDetected, nil
		}
		text = strings.TrimSpace(text)
		if text == "" {
			// Scanned PDFs carry no text layer
			return NoTextDetected, nil
		}
		return types.Truncate(text, MaxContentLength), nil

	default:
		return UnsupportedType, nil
	}
}

// pdfText returns the text layer of every page in order.
// TECHNICAL DISCOVERY: the parser panics on some malformed files, so a
// panic is turned into an ordinary error
func pdfText(data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parse pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return buf.String(), nil
}

func isTextType(mimeType string) bool {
	return strings.HasPrefix(mimeType, "text/") || mimeType == "application/json"
}
