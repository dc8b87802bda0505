package interfaces

import "context"

// Prompt segment roles understood by the language model collaborator
const (
	SegmentSystem    = "system"
	SegmentUser      = "user"
	SegmentAssistant = "assistant"
)

// PromptSegment is one role-tagged part of a model request
type PromptSegment struct {
	Role    string
	Content string
}

// LanguageModel is the natural-language analysis collaborator
// FUNCTIONAL DISCOVERY: Every failure (transport, non-2xx, timeout, empty
// reply) surfaces as an error wrapping types.ErrModelUnavailable
type LanguageModel interface {
	Complete(ctx context.Context, segments []PromptSegment) (string, error)
}

// ContentExtractor turns an uploaded file into plain text
// FUNCTIONAL DISCOVERY: Must not modify the file; unreadable content is
// reported through a sentinel string in the returned text, not an error
type ContentExtractor interface {
	Extract(ctx context.Context, path, mimeType string) (string, error)
}
