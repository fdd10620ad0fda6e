package profile

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nerrad567/feedsync-core/internal/engine"
)

// Repository stores actuator assignments.
type Repository struct {
	db  *sql.DB
	now func() time.Time
}

// NewRepository creates a repository on an open, migrated database.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// Load returns every saved assignment.
func (r *Repository) Load(ctx context.Context) (map[engine.ActuatorKey]engine.Assignment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT device_name, actuator_index, signal_index, oscillation_percent
		FROM actuator_assignments`)
	if err != nil {
		return nil, fmt.Errorf("querying assignments: %w", err)
	}
	defer rows.Close()

	out := make(map[engine.ActuatorKey]engine.Assignment)
	for rows.Next() {
		var (
			key engine.ActuatorKey
			asg engine.Assignment
		)
		if err := rows.Scan(&key.DeviceName, &key.ActuatorIndex, &asg.SignalIndex, &asg.OscillationPercent); err != nil {
			return nil, fmt.Errorf("scanning assignment: %w", err)
		}
		out[key] = asg
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating assignments: %w", err)
	}
	return out, nil
}

// Save inserts or replaces the assignment for key.
func (r *Repository) Save(ctx context.Context, key engine.ActuatorKey, asg engine.Assignment) error {
	if key.DeviceName == "" || key.ActuatorIndex < 0 {
		return ErrInvalidKey
	}
	if err := asg.Validate(); err != nil {
		return err
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO actuator_assignments
			(device_name, actuator_index, signal_index, oscillation_percent, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (device_name, actuator_index) DO UPDATE SET
			signal_index = excluded.signal_index,
			oscillation_percent = excluded.oscillation_percent,
			updated_at = excluded.updated_at`,
		key.DeviceName, key.ActuatorIndex, asg.SignalIndex, asg.OscillationPercent,
		r.now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("saving assignment: %w", err)
	}
	return nil
}

// Delete removes every assignment of a device.
func (r *Repository) Delete(ctx context.Context, deviceName string) (int64, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM actuator_assignments WHERE device_name = ?", deviceName)
	if err != nil {
		return 0, fmt.Errorf("deleting assignments: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("deleting assignments: %w", err)
	}
	return n, nil
}
