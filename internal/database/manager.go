package database

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	dbconfig "medroom/pkg/database"
	"medroom/pkg/interfaces"
	"medroom/pkg/types"
)

var (
	// ErrQueueFull is returned when a record is dropped instead of waiting
	ErrQueueFull = errors.New("audit write queue is full")
	// ErrClosed is returned after Close
	ErrClosed = errors.New("audit log is closed")
)

// AuditLog implements interfaces.AuditLog on SQLite.
// ARCHITECTURAL DISCOVERY: All writes go through one goroutine; callers sit on
// the hub loop and only ever enqueue, so a slow disk never stalls a room
type AuditLog struct {
	db       *sql.DB
	config   *dbconfig.Config
	writes   chan writeOperation
	shutdown chan struct{}
	wg       sync.WaitGroup
	closed   bool
	mu       sync.RWMutex
	logger   zerolog.Logger
}

var _ interfaces.AuditLog = (*AuditLog)(nil)

// writeOperation is one queued statement; result is nil for fire-and-forget writes
type writeOperation struct {
	name      string
	operation func(ctx context.Context, db *sql.DB) error
	result    chan error
}

// NewAuditLog opens the database, applies the embedded migrations and starts the writer
func NewAuditLog(config *dbconfig.Config, logger zerolog.Logger) (*AuditLog, error) {
	db, err := dbconfig.Open(config)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}
	if err := dbconfig.NewMigrationManager(db).ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate audit database: %w", err)
	}

	audit := &AuditLog{
		db:       db,
		config:   config,
		writes:   make(chan writeOperation, config.QueueSize),
		shutdown: make(chan struct{}),
		logger:   logger.With().Str("component", "audit").Logger(),
	}
	audit.wg.Add(1)
	go audit.writeLoop()

	audit.logger.Info().Str("path", config.DatabasePath).Msg("audit log opened")
	return audit, nil
}

// writeLoop executes queued writes until shutdown, then drains what is left
func (a *AuditLog) writeLoop() {
	defer a.wg.Done()

	for {
		select {
		case op := <-a.writes:
			a.execute(op)
		case <-a.shutdown:
			for {
				select {
				case op := <-a.writes:
					a.execute(op)
				default:
					return
				}
			}
		}
	}
}

// execute runs one write, retrying exactly once after RetryDelay
func (a *AuditLog) execute(op writeOperation) {
	err := a.run(op)
	if err != nil {
		time.Sleep(a.config.RetryDelay)
		err = a.run(op)
	}
	if err != nil {
		a.logger.Warn().Err(err).Str("operation", op.name).Msg("audit write failed")
	}
	if op.result != nil {
		op.result <- err
	}
}

func (a *AuditLog) run(op writeOperation) error {
	ctx, cancel := context.WithTimeout(context.Background(), a.config.WriteTimeout)
	defer cancel()
	return op.operation(ctx, a.db)
}

// enqueue hands a write to the writer without blocking
func (a *AuditLog) enqueue(op writeOperation) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrClosed
	}

	select {
	case a.writes <- op:
		return nil
	default:
		return ErrQueueFull
	}
}

// RecordInvitation stores an invitation lifecycle event.
// FUNCTIONAL DISCOVERY: Only a hash of the token is kept; the token is the
// room's bearer credential
func (a *AuditLog) RecordInvitation(ctx context.Context, invitation *types.Invitation, action string) error {
	inv := *invitation
	recordedAt := time.Now().UTC()
	return a.enqueue(writeOperation{
		name: "invitation",
		operation: func(ctx context.Context, db *sql.DB) error {
			_, err := db.ExecContext(ctx, `
				INSERT INTO invitation_events (token_hash, room_id, doctor_email, patient_email, action, recorded_at)
				VALUES (?, ?, ?, ?, ?, ?)`,
				HashToken(inv.Token), inv.RoomID, inv.DoctorEmail, inv.PatientEmail, action, recordedAt)
			return err
		},
	})
}

// RecordMessage stores one appended room message with its audience
func (a *AuditLog) RecordMessage(ctx context.Context, roomID string, message types.Message) error {
	return a.enqueue(writeOperation{
		name: "message",
		operation: func(ctx context.Context, db *sql.DB) error {
			_, err := db.ExecContext(ctx, `
				INSERT INTO messages (room_id, seq, speaker_role, nickname, content, for_role, is_private, file_ref, sent_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				roomID, message.Seq, message.SpeakerRole, message.Nickname, message.Content,
				nullString(string(message.ForRole)), message.IsPrivate, nullString(message.FileRef), message.Timestamp.UTC())
			return err
		},
	})
}

// RecordFile stores a snapshot of an upload record
func (a *AuditLog) RecordFile(ctx context.Context, roomID string, file *types.UploadedFile) error {
	record := *file
	var summary sql.NullString
	if record.DocumentSummary != nil {
		data, err := json.Marshal(record.DocumentSummary)
		if err != nil {
			return fmt.Errorf("failed to marshal document summary: %w", err)
		}
		summary = sql.NullString{String: string(data), Valid: true}
	}
	recordedAt := time.Now().UTC()

	return a.enqueue(writeOperation{
		name: "file",
		operation: func(ctx context.Context, db *sql.DB) error {
			_, err := db.ExecContext(ctx, `
				INSERT INTO files (file_id, room_id, name, mime_type, size, uploaded_by, uploader_role, analysis_text, summary, recorded_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				record.ID, roomID, record.Name, record.MimeType, record.Size, record.UploadedBy,
				string(record.UploaderRole), nullString(record.AnalysisText), summary, recordedAt)
			return err
		},
	})
}

// Flush waits until every write queued before the call has been executed
func (a *AuditLog) Flush(ctx context.Context) error {
	done := make(chan error, 1)
	op := writeOperation{
		name:      "flush",
		operation: func(context.Context, *sql.DB) error { return nil },
		result:    done,
	}

	// TECHNICAL DISCOVERY: The barrier may wait for space; record writes never do
	a.mu.RLock()
	if a.closed {
		a.mu.RUnlock()
		return ErrClosed
	}
	select {
	case a.writes <- op:
		a.mu.RUnlock()
	case <-ctx.Done():
		a.mu.RUnlock()
		return ctx.Err()
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HealthCheck verifies the database is reachable
func (a *AuditLog) HealthCheck(ctx context.Context) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrClosed
	}

	var result int
	if err := a.db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("database query failed: %w", err)
	}
	return nil
}

// Close stops accepting records, drains the queue and closes the database
func (a *AuditLog) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	close(a.shutdown)
	a.mu.Unlock()

	a.wg.Wait()
	a.logger.Info().Msg("audit log closed")
	return a.db.Close()
}

// HashToken returns the hex SHA-256 of an invitation token
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
