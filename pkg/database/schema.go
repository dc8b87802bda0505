package database

import (
	"database/sql"
	"fmt"
)

// SchemaValidator checks that an audit database has the expected structure
type SchemaValidator struct {
	db *sql.DB
}

// NewSchemaValidator creates a new schema validator
func NewSchemaValidator(db *sql.DB) *SchemaValidator {
	return &SchemaValidator{db: db}
}

// Validate runs the table, column and index checks
func (v *SchemaValidator) Validate() error {
	if err := v.ValidateTablesExist(); err != nil {
		return err
	}
	if err := v.ValidateTableStructure(); err != nil {
		return err
	}
	return v.ValidateIndexes()
}

// ValidateTablesExist verifies that all required tables exist
func (v *SchemaValidator) ValidateTablesExist() error {
	for _, table := range []string{"invitation_events", "messages", "files", "schema_migrations"} {
		exists, err := v.exists("table", table)
		if err != nil {
			return fmt.Errorf("error checking table %s: %w", table, err)
		}
		if !exists {
			return fmt.Errorf("required table %s does not exist", table)
		}
	}
	return nil
}

// ValidateTableStructure verifies column types match what the audit writer binds
func (v *SchemaValidator) ValidateTableStructure() error {
	expected := map[string]map[string]string{
		"invitation_events": {
			"token_hash":    "TEXT",
			"room_id":       "TEXT",
			"action":        "TEXT",
			"recorded_at":   "DATETIME",
			"doctor_email":  "TEXT",
			"patient_email": "TEXT",
		},
		"messages": {
			"room_id":      "TEXT",
			"seq":          "INTEGER",
			"speaker_role": "TEXT",
			"content":      "TEXT",
			"for_role":     "TEXT",
			"is_private":   "INTEGER",
			"sent_at":      "DATETIME",
		},
		"files": {
			"file_id":       "TEXT",
			"room_id":       "TEXT",
			"size":          "INTEGER",
			"analysis_text": "TEXT",
			"summary":       "TEXT",
		},
	}
	for table, columns := range expected {
		if err := v.validateColumns(table, columns); err != nil {
			return fmt.Errorf("%s table structure invalid: %w", table, err)
		}
	}
	return nil
}

// ValidateIndexes verifies that the lookup indexes exist
func (v *SchemaValidator) ValidateIndexes() error {
	for _, index := range []string{"idx_invitation_events_room", "idx_messages_room_seq", "idx_files_room"} {
		exists, err := v.exists("index", index)
		if err != nil {
			return fmt.Errorf("error checking index %s: %w", index, err)
		}
		if !exists {
			return fmt.Errorf("required index %s does not exist", index)
		}
	}
	return nil
}

func (v *SchemaValidator) exists(kind, name string) (bool, error) {
	var count int
	err := v.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type = ? AND name = ?", kind, name).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (v *SchemaValidator) validateColumns(table string, expected map[string]string) error {
	rows, err := v.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	found := make(map[string]string)
	for rows.Next() {
		var (
			cid          int
			name, typ    string
			notNull, pk  int
			defaultValue interface{}
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &defaultValue, &pk); err != nil {
			return err
		}
		found[name] = typ
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for column, typ := range expected {
		got, ok := found[column]
		if !ok {
			return fmt.Errorf("column %s not found", column)
		}
		if got != typ {
			return fmt.Errorf("column %s has type %s, expected %s", column, got, typ)
		}
	}
	return nil
}
