package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ayusman/airdrums/internal/kit"
)

// Kit is a named, saved instrument map.
type Kit struct {
	ID        string
	Name      string
	Bindings  []kit.Binding
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Map validates the bindings and builds the instrument map.
func (k *Kit) Map() (*kit.Map, error) {
	return kit.New(k.Bindings)
}

// KitRepository provides CRUD operations for kits.
type KitRepository struct {
	db *sql.DB
}

// Kits returns the kit repository for this store.
func (s *Store) Kits() *KitRepository {
	return &KitRepository{db: s.db}
}

// Create inserts a kit and its bindings. Bindings are validated with
// kit.New first, so an invalid map is never stored.
func (r *KitRepository) Create(k *Kit) error {
	if _, err := k.Map(); err != nil {
		return err
	}

	now := time.Now()
	k.CreatedAt = now
	k.UpdatedAt = now

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO kits (id, name, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		k.ID, k.Name, k.CreatedAt, k.UpdatedAt,
	)
	if err != nil {
		return wrapConstraint(err)
	}

	if err := insertBindings(tx, k.ID, k.Bindings); err != nil {
		return err
	}

	return tx.Commit()
}

// GetByID retrieves a kit and its bindings by ID.
func (r *KitRepository) GetByID(id string) (*Kit, error) {
	return r.get(`SELECT id, name, created_at, updated_at FROM kits WHERE id = ?`, id)
}

// GetByName retrieves a kit and its bindings by name.
func (r *KitRepository) GetByName(name string) (*Kit, error) {
	return r.get(`SELECT id, name, created_at, updated_at FROM kits WHERE name = ?`, name)
}

func (r *KitRepository) get(query string, arg string) (*Kit, error) {
	k := &Kit{}
	err := r.db.QueryRow(query, arg).Scan(&k.ID, &k.Name, &k.CreatedAt, &k.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	k.Bindings, err = r.bindings(k.ID)
	if err != nil {
		return nil, err
	}
	return k, nil
}

// List retrieves all kits ordered by name, with their bindings.
func (r *KitRepository) List() ([]*Kit, error) {
	rows, err := r.db.Query(`SELECT id, name, created_at, updated_at FROM kits ORDER BY name`)
	if err != nil {
		return nil, err
	}

	var kits []*Kit
	for rows.Next() {
		k := &Kit{}
		if err := rows.Scan(&k.ID, &k.Name, &k.CreatedAt, &k.UpdatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		kits = append(kits, k)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	// Bindings are loaded after the kit rows are closed; the store holds a
	// single connection.
	for _, k := range kits {
		if k.Bindings, err = r.bindings(k.ID); err != nil {
			return nil, err
		}
	}

	return kits, nil
}

// Update replaces a kit's name and bindings.
func (r *KitRepository) Update(k *Kit) error {
	if _, err := k.Map(); err != nil {
		return err
	}

	k.UpdatedAt = time.Now()

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	result, err := tx.Exec(
		`UPDATE kits SET name = ?, updated_at = ? WHERE id = ?`,
		k.Name, k.UpdatedAt, k.ID,
	)
	if err != nil {
		return wrapConstraint(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	if _, err := tx.Exec(`DELETE FROM kit_bindings WHERE kit_id = ?`, k.ID); err != nil {
		return err
	}
	if err := insertBindings(tx, k.ID, k.Bindings); err != nil {
		return err
	}

	return tx.Commit()
}

// Delete removes a kit and, by cascade, its bindings.
func (r *KitRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM kits WHERE id = ?`, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

func (r *KitRepository) bindings(kitID string) ([]kit.Binding, error) {
	rows, err := r.db.Query(
		`SELECT side, finger, code, name FROM kit_bindings WHERE kit_id = ?`,
		kitID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bindings []kit.Binding
	for rows.Next() {
		var side, finger string
		var b kit.Binding
		if err := rows.Scan(&side, &finger, &b.Code, &b.Name); err != nil {
			return nil, err
		}
		if b.Side, err = kit.ParseSide(side); err != nil {
			return nil, fmt.Errorf("kit %s: %w", kitID, err)
		}
		if b.Finger, err = kit.ParseFinger(finger); err != nil {
			return nil, fmt.Errorf("kit %s: %w", kitID, err)
		}
		bindings = append(bindings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Rebuild through kit.New for anatomical order.
	m, err := kit.New(bindings)
	if err != nil {
		return nil, fmt.Errorf("kit %s: %w", kitID, err)
	}
	return m.Bindings(), nil
}

func insertBindings(tx *sql.Tx, kitID string, bindings []kit.Binding) error {
	stmt, err := tx.Prepare(
		`INSERT INTO kit_bindings (kit_id, side, finger, code, name) VALUES (?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, b := range bindings {
		if _, err := stmt.Exec(kitID, b.Side.String(), b.Finger.String(), b.Code, b.Name); err != nil {
			return wrapConstraint(err)
		}
	}
	return nil
}

// wrapConstraint maps SQLite uniqueness violations to ErrConflict.
func wrapConstraint(err error) error {
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}
