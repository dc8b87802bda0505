package interfaces

import (
	"context"

	"medroom/pkg/types"
)

// AuditLog records consultation events for later review
// ARCHITECTURAL DISCOVERY: Write-only by contract; room state is never
// rebuilt from it, so a failing audit sink cannot change session behavior
type AuditLog interface {
	// RecordInvitation stores an invitation lifecycle event ("created", "deleted")
	RecordInvitation(ctx context.Context, invitation *types.Invitation, action string) error

	// RecordMessage stores one appended room message with its seq and audience
	RecordMessage(ctx context.Context, roomID string, message types.Message) error

	// RecordFile stores an uploaded file record, once on upload and again
	// once analysis completes
	RecordFile(ctx context.Context, roomID string, file *types.UploadedFile) error

	// HealthCheck verifies the sink is writable
	HealthCheck(ctx context.Context) error

	// Close flushes pending writes and releases resources
	Close() error
}
