package database

import (
	"database/sql"
	"fmt"
)

// InitSchema создает таблицы истории итераций
func InitSchema(db *sql.DB) error {
	schema := `
	-- Итерации оптимизации. Записи только добавляются
	CREATE TABLE IF NOT EXISTS iterations (
		id TEXT PRIMARY KEY,
		project TEXT NOT NULL,
		number INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		solver_status TEXT NOT NULL,
		min_coeff REAL NOT NULL,
		max_coeff REAL NOT NULL,
		lambda REAL NOT NULL,
		forecast TEXT NOT NULL,
		proposed TEXT NOT NULL,
		gap TEXT NOT NULL,
		ok INTEGER NOT NULL DEFAULT 0,
		payload TEXT NOT NULL,
		UNIQUE(project, number)
	);

	CREATE INDEX IF NOT EXISTS idx_iterations_project ON iterations(project, number);

	-- Запрет изменения сохраненных итераций
	CREATE TRIGGER IF NOT EXISTS iterations_no_update
	BEFORE UPDATE ON iterations
	BEGIN
		SELECT RAISE(ABORT, 'iterations are append-only');
	END;
	`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create iterations schema: %w", err)
	}
	return nil
}
