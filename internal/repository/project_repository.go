package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/crossorg/migrator/internal/db"
	"github.com/crossorg/migrator/internal/domain"
)

type projectRepository struct {
	conn *db.Connection
}

// NewProjectRepository creates a pgx-backed project repository.
func NewProjectRepository(conn *db.Connection) ProjectRepository {
	return &projectRepository{conn: conn}
}

func (r *projectRepository) Create(ctx context.Context, project domain.MigrationProject) error {
	sourceJSON, err := json.Marshal(project.SourceOrg)
	if err != nil {
		return fmt.Errorf("marshal source org: %w", err)
	}
	targetJSON, err := json.Marshal(project.TargetOrg)
	if err != nil {
		return fmt.Errorf("marshal target org: %w", err)
	}
	optionsJSON, err := json.Marshal(project.Options)
	if err != nil {
		return fmt.Errorf("marshal options: %w", err)
	}

	_, err = r.conn.Pool.Exec(ctx, `
		INSERT INTO migration_projects (id, name, source_org, target_org, object_types, options, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		project.ID, project.Name, sourceJSON, targetJSON, project.ObjectTypes, optionsJSON, project.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create migration project: %w", err)
	}
	return nil
}

func (r *projectRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.MigrationProject, error) {
	row := r.conn.Pool.QueryRow(ctx, `
		SELECT id, name, source_org, target_org, object_types, options, created_at
		FROM migration_projects WHERE id = $1`, id)

	project, err := scanProject(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.MigrationProject{}, domain.ErrProjectNotFound
		}
		return domain.MigrationProject{}, fmt.Errorf("failed to get migration project: %w", err)
	}
	return project, nil
}

func (r *projectRepository) List(ctx context.Context) ([]domain.MigrationProject, error) {
	rows, err := r.conn.Pool.Query(ctx, `
		SELECT id, name, source_org, target_org, object_types, options, created_at
		FROM migration_projects ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list migration projects: %w", err)
	}
	defer rows.Close()

	var projects []domain.MigrationProject
	for rows.Next() {
		project, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan migration project: %w", err)
		}
		projects = append(projects, project)
	}
	return projects, rows.Err()
}

func scanProject(row pgx.Row) (domain.MigrationProject, error) {
	var (
		project     domain.MigrationProject
		sourceJSON  []byte
		targetJSON  []byte
		optionsJSON []byte
	)
	err := row.Scan(&project.ID, &project.Name, &sourceJSON, &targetJSON, &project.ObjectTypes, &optionsJSON, &project.CreatedAt)
	if err != nil {
		return domain.MigrationProject{}, err
	}
	if err := json.Unmarshal(sourceJSON, &project.SourceOrg); err != nil {
		return domain.MigrationProject{}, fmt.Errorf("unmarshal source org: %w", err)
	}
	if err := json.Unmarshal(targetJSON, &project.TargetOrg); err != nil {
		return domain.MigrationProject{}, fmt.Errorf("unmarshal target org: %w", err)
	}
	if err := json.Unmarshal(optionsJSON, &project.Options); err != nil {
		return domain.MigrationProject{}, fmt.Errorf("unmarshal options: %w", err)
	}
	return project, nil
}
