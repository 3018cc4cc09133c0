package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines the interface for descriptor persistence.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
//
// List must return descriptors in registration order. Fleet results and
// device listings follow that order, so implementations must preserve
// insertion order (the SQLite implementation orders by rowid).
type Repository interface {
	// GetByID retrieves a descriptor by its unique identifier.
	// Returns ErrDeviceNotFound if the device does not exist.
	GetByID(ctx context.Context, id string) (*Descriptor, error)

	// List retrieves all descriptors in registration order.
	List(ctx context.Context) ([]Descriptor, error)

	// Create inserts a new descriptor.
	// Returns ErrDeviceExists if a device with the same ID already exists.
	Create(ctx context.Context, d *Descriptor) error

	// Update modifies an existing descriptor.
	// Returns ErrDeviceNotFound if the device does not exist.
	Update(ctx context.Context, d *Descriptor) error

	// Delete removes a descriptor by ID.
	// Returns ErrDeviceNotFound if the device does not exist.
	Delete(ctx context.Context, id string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// GetByID retrieves a descriptor by its unique identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Descriptor, error) {
	query := `
		SELECT id, name, host, port, ws_path, transport, created_at, updated_at
		FROM devices
		WHERE id = ?`

	row := r.db.QueryRowContext(ctx, query, id)
	d, err := scanDescriptor(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by id: %w", err)
	}
	return d, nil
}

// List retrieves all descriptors in registration order.
// rowid is SQLite's insertion counter, so ordering by it preserves
// the order devices were registered in.
func (r *SQLiteRepository) List(ctx context.Context) ([]Descriptor, error) {
	query := `
		SELECT id, name, host, port, ws_path, transport, created_at, updated_at
		FROM devices
		ORDER BY rowid`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var descriptors []Descriptor
	for rows.Next() {
		d, err := scanDescriptor(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		descriptors = append(descriptors, *d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}

	return descriptors, nil
}

// Create inserts a new descriptor.
func (r *SQLiteRepository) Create(ctx context.Context, d *Descriptor) error {
	now := time.Now().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now

	query := `
		INSERT INTO devices (id, name, host, port, ws_path, transport, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		d.ID,
		d.Name,
		d.Host,
		d.Port,
		d.WSPath,
		string(d.Transport),
		d.CreatedAt.Format(time.RFC3339),
		d.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDeviceExists
		}
		return fmt.Errorf("inserting device: %w", err)
	}

	return nil
}

// Update modifies an existing descriptor.
func (r *SQLiteRepository) Update(ctx context.Context, d *Descriptor) error {
	d.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE devices
		SET name = ?, host = ?, port = ?, ws_path = ?, transport = ?, updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		d.Name,
		d.Host,
		d.Port,
		d.WSPath,
		string(d.Transport),
		d.UpdatedAt.Format(time.RFC3339),
		d.ID,
	)
	if err != nil {
		return fmt.Errorf("updating device: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrDeviceNotFound
	}

	return nil
}

// Delete removes a descriptor by ID.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM devices WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting device: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrDeviceNotFound
	}

	return nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanDescriptor scans a row or rows result into a Descriptor.
func scanDescriptor(scanner rowScanner) (*Descriptor, error) {
	var d Descriptor
	var transport string
	var createdAt, updatedAt string

	err := scanner.Scan(
		&d.ID,
		&d.Name,
		&d.Host,
		&d.Port,
		&d.WSPath,
		&transport,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	d.Transport = Transport(transport)

	var parseErr error
	d.CreatedAt, parseErr = time.Parse(time.RFC3339, createdAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing created_at: %w", parseErr)
	}
	d.UpdatedAt, parseErr = time.Parse(time.RFC3339, updatedAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", parseErr)
	}

	return &d, nil
}

// isUniqueConstraintError checks if an error is a SQLite unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "unique constraint")
}
