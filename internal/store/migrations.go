package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Kits table - named instrument maps
		`CREATE TABLE IF NOT EXISTS kits (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Kit bindings table - one row per assigned (side, finger)
		`CREATE TABLE IF NOT EXISTS kit_bindings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			kit_id TEXT NOT NULL REFERENCES kits(id) ON DELETE CASCADE,
			side TEXT NOT NULL CHECK(side IN ('left', 'right')),
			finger TEXT NOT NULL CHECK(finger IN ('thumb', 'index', 'middle', 'ring', 'pinky')),
			code INTEGER NOT NULL CHECK(code BETWEEN 0 AND 127),
			name TEXT NOT NULL,
			UNIQUE(kit_id, side, finger)
		)`,

		// Settings table - stores application settings as key-value pairs
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_kit_bindings_kit_id ON kit_bindings(kit_id)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
