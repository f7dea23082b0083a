package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"bidcoef/models"
)

var (
	// ErrIterationExists итерация с таким номером уже сохранена
	ErrIterationExists = errors.New("iteration already exists")
	// ErrIterationNotFound итерация не найдена
	ErrIterationNotFound = errors.New("iteration not found")
	// ErrProjectRequired у итерации не указан проект
	ErrProjectRequired = errors.New("iteration project is required")
)

// IterationSummary краткая запись истории без полной разбивки
type IterationSummary struct {
	ID           string          `json:"id"`
	Project      string          `json:"project"`
	Number       int             `json:"number"`
	CreatedAt    time.Time       `json:"created_at"`
	SolverStatus string          `json:"solver_status"`
	Params       models.Params   `json:"params"`
	Forecast     decimal.Decimal `json:"forecast"`
	Proposed     decimal.Decimal `json:"proposed"`
	Gap          decimal.Decimal `json:"gap"`
	OK           bool            `json:"ok"`
}

// AppendIteration сохраняет итерацию. При Number == 0 присваивается
// следующий номер проекта. Существующая итерация не перезаписывается.
func (db *DB) AppendIteration(iter *models.IterationResult) error {
	if iter == nil {
		return errors.New("iteration is nil")
	}
	if iter.Project == "" {
		return ErrProjectRequired
	}

	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	number := iter.Number
	if number == 0 {
		err := tx.QueryRow(
			`SELECT COALESCE(MAX(number), 0) + 1 FROM iterations WHERE project = ?`,
			iter.Project,
		).Scan(&number)
		if err != nil {
			return fmt.Errorf("failed to get next iteration number: %w", err)
		}
	}

	id := iter.ID
	if id == "" {
		id = uuid.NewString()
	}
	createdAt := iter.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	stored := *iter
	stored.ID = id
	stored.Number = number
	stored.CreatedAt = createdAt.UTC()

	payload, err := json.Marshal(&stored)
	if err != nil {
		return fmt.Errorf("failed to marshal iteration: %w", err)
	}

	query := `
		INSERT INTO iterations
		(id, project, number, created_at, solver_status, min_coeff, max_coeff, lambda,
		 forecast, proposed, gap, ok, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = tx.Exec(query,
		stored.ID,
		stored.Project,
		stored.Number,
		stored.CreatedAt.Format(time.RFC3339Nano),
		stored.SolverStatus,
		stored.Params.MinCoeff,
		stored.Params.MaxCoeff,
		stored.Params.Lambda,
		stored.Totals.Forecast.String(),
		stored.Totals.Proposed.String(),
		stored.Totals.Gap.String(),
		stored.Totals.OK,
		string(payload),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("project %s iteration %d: %w", stored.Project, stored.Number, ErrIterationExists)
		}
		return fmt.Errorf("failed to insert iteration: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit iteration: %w", err)
	}

	iter.ID = stored.ID
	iter.Number = stored.Number
	iter.CreatedAt = stored.CreatedAt
	return nil
}

// GetIteration возвращает полную итерацию проекта по номеру
func (db *DB) GetIteration(project string, number int) (*models.IterationResult, error) {
	var payload string
	err := db.conn.QueryRow(
		`SELECT payload FROM iterations WHERE project = ? AND number = ?`,
		project, number,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("project %s iteration %d: %w", project, number, ErrIterationNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get iteration: %w", err)
	}
	return decodeIteration(payload)
}

// LatestIteration возвращает последнюю итерацию проекта
func (db *DB) LatestIteration(project string) (*models.IterationResult, error) {
	var payload string
	err := db.conn.QueryRow(
		`SELECT payload FROM iterations WHERE project = ? ORDER BY number DESC LIMIT 1`,
		project,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("project %s: %w", project, ErrIterationNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest iteration: %w", err)
	}
	return decodeIteration(payload)
}

// ListIterations возвращает историю проекта по возрастанию номера
func (db *DB) ListIterations(project string) ([]IterationSummary, error) {
	query := `
		SELECT id, project, number, created_at, solver_status, min_coeff, max_coeff, lambda,
		       forecast, proposed, gap, ok
		FROM iterations
		WHERE project = ?
		ORDER BY number ASC
	`
	rows, err := db.conn.Query(query, project)
	if err != nil {
		return nil, fmt.Errorf("failed to list iterations: %w", err)
	}
	defer rows.Close()

	summaries := make([]IterationSummary, 0)
	for rows.Next() {
		var s IterationSummary
		var createdAt, forecast, proposed, gap string
		err := rows.Scan(
			&s.ID,
			&s.Project,
			&s.Number,
			&createdAt,
			&s.SolverStatus,
			&s.Params.MinCoeff,
			&s.Params.MaxCoeff,
			&s.Params.Lambda,
			&forecast,
			&proposed,
			&gap,
			&s.OK,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan iteration: %w", err)
		}

		if s.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("iteration %s: bad created_at: %w", s.ID, err)
		}
		if s.Forecast, err = decimal.NewFromString(forecast); err != nil {
			return nil, fmt.Errorf("iteration %s: bad forecast: %w", s.ID, err)
		}
		if s.Proposed, err = decimal.NewFromString(proposed); err != nil {
			return nil, fmt.Errorf("iteration %s: bad proposed: %w", s.ID, err)
		}
		if s.Gap, err = decimal.NewFromString(gap); err != nil {
			return nil, fmt.Errorf("iteration %s: bad gap: %w", s.ID, err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate iterations: %w", err)
	}

	return summaries, nil
}

// Projects возвращает проекты, для которых есть история
func (db *DB) Projects() ([]string, error) {
	rows, err := db.conn.Query(`SELECT DISTINCT project FROM iterations ORDER BY project`)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

func decodeIteration(payload string) (*models.IterationResult, error) {
	var iter models.IterationResult
	if err := json.Unmarshal([]byte(payload), &iter); err != nil {
		return nil, fmt.Errorf("failed to decode iteration: %w", err)
	}
	return &iter, nil
}

func isConstraintViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return false
}
