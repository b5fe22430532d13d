package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"collabnest/domain"
)

// SQLite implements Backend on a local SQLite database.
type SQLite struct {
	db *sqlx.DB
}

var (
	_ Backend = (*SQLite)(nil)
	_ Members = (*SQLite)(nil)
)

// NewSQLite opens (or creates) the database at path and applies pending
// migrations.
func NewSQLite(path string) (*SQLite, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	if path == ":memory:" {
		// Every connection would get its own empty in-memory database.
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLite{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

// Ping is used by the health check.
func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLite) runMigrations() error {
	current := 0
	var tables int
	err := s.db.Get(&tables, "SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'")
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}
	if tables > 0 {
		if err := s.db.Get(&current, "SELECT COALESCE(MAX(version), 0) FROM schema_version"); err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}
	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}
	return nil
}

type taskRow struct {
	ID           string       `db:"id"`
	Title        string       `db:"title"`
	Description  string       `db:"description"`
	Status       string       `db:"status"`
	Priority     string       `db:"priority"`
	Organization string       `db:"organization"`
	SortOrder    int          `db:"sort_order"`
	DueDate      sql.NullTime `db:"due_date"`
	AssignedTo   string       `db:"assigned_to"`
	Labels       string       `db:"labels"`
	ClientRef    string       `db:"client_ref"`
	Owner        string       `db:"owner"`
	CreatedAt    time.Time    `db:"created_at"`
	UpdatedAt    time.Time    `db:"updated_at"`
}

const taskColumns = `id, title, description, status, priority, organization, sort_order,
	due_date, assigned_to, labels, client_ref, owner, created_at, updated_at`

func (r taskRow) task() (domain.Task, error) {
	t := domain.Task{
		ID:           r.ID,
		Title:        r.Title,
		Description:  r.Description,
		Status:       domain.Status(r.Status),
		Priority:     domain.Priority(r.Priority),
		Organization: r.Organization,
		Order:        r.SortOrder,
		AssignedTo:   r.AssignedTo,
		ClientRef:    r.ClientRef,
		Owner:        r.Owner,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
	if r.DueDate.Valid {
		d := r.DueDate.Time
		t.DueDate = &d
	}
	if r.Labels != "" && r.Labels != "[]" {
		if err := sonic.UnmarshalString(r.Labels, &t.Labels); err != nil {
			return domain.Task{}, fmt.Errorf("unmarshaling labels of task %s: %w", r.ID, err)
		}
	}
	return t, nil
}

func encodeLabels(labels []string) (string, error) {
	if len(labels) == 0 {
		return "[]", nil
	}
	return sonic.MarshalString(labels)
}

func dueDateArg(d *time.Time) any {
	if d == nil {
		return nil
	}
	return d.UTC()
}

func (s *SQLite) ListTasks(ctx context.Context, organization string) ([]domain.Task, error) {
	var rows []taskRow
	err := s.db.SelectContext(ctx, &rows,
		"SELECT "+taskColumns+" FROM tasks WHERE organization = ? ORDER BY sort_order, created_at", organization)
	if err != nil {
		return nil, fmt.Errorf("querying tasks: %w", err)
	}
	tasks := make([]domain.Task, 0, len(rows))
	for _, r := range rows {
		t, err := r.task()
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

func (s *SQLite) GetTask(ctx context.Context, id string) (domain.Task, error) {
	return s.getOne(ctx, s.db, "id", id)
}

func (s *SQLite) FindByClientRef(ctx context.Context, ref string) (domain.Task, error) {
	if ref == "" {
		return domain.Task{}, ErrNotFound
	}
	return s.getOne(ctx, s.db, "client_ref", ref)
}

func (s *SQLite) getOne(ctx context.Context, q sqlx.QueryerContext, column, value string) (domain.Task, error) {
	var r taskRow
	err := sqlx.GetContext(ctx, q, &r, "SELECT "+taskColumns+" FROM tasks WHERE "+column+" = ? LIMIT 1", value)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Task{}, ErrNotFound
	}
	if err != nil {
		return domain.Task{}, fmt.Errorf("getting task by %s: %w", column, err)
	}
	return r.task()
}

func (s *SQLite) CreateTask(ctx context.Context, t domain.Task) error {
	labels, err := encodeLabels(t.Labels)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Title, t.Description, string(t.Status), string(t.Priority), t.Organization, t.Order,
		dueDateArg(t.DueDate), t.AssignedTo, labels, t.ClientRef, t.Owner, t.CreatedAt.UTC(), t.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("creating task %s: %w", t.ID, err)
	}
	return nil
}

func (s *SQLite) UpdateTask(ctx context.Context, t domain.Task) error {
	labels, err := encodeLabels(t.Labels)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET
			title = ?, description = ?, status = ?, priority = ?, organization = ?,
			sort_order = ?, due_date = ?, assigned_to = ?, labels = ?, owner = ?, updated_at = ?
		WHERE id = ?`,
		t.Title, t.Description, string(t.Status), string(t.Priority), t.Organization,
		t.Order, dueDateArg(t.DueDate), t.AssignedTo, labels, t.Owner, t.UpdatedAt.UTC(),
		t.ID,
	)
	if err != nil {
		return fmt.Errorf("updating task %s: %w", t.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating task %s: %w", t.ID, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func partitionColumn(p domain.Partition) string {
	if p.Kind == domain.KindOrganization {
		return "organization"
	}
	return "status"
}

func (s *SQLite) ReorderTasks(ctx context.Context, p domain.Partition, ids []string) ([]domain.Task, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	stmt, err := tx.PreparexContext(ctx,
		"UPDATE tasks SET sort_order = ?, updated_at = ? WHERE id = ? AND "+partitionColumn(p)+" = ?")
	if err != nil {
		return nil, fmt.Errorf("preparing reorder statement: %w", err)
	}
	defer stmt.Close()

	var updated []string
	for i, id := range ids {
		res, err := stmt.ExecContext(ctx, i, now, id, p.Key)
		if err != nil {
			return nil, fmt.Errorf("reordering task %s: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			updated = append(updated, id)
		}
	}

	tasks := make([]domain.Task, 0, len(updated))
	for _, id := range updated {
		t, err := s.getOne(ctx, tx, "id", id)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing reorder: %w", err)
	}
	return tasks, nil
}

func (s *SQLite) DeleteTask(ctx context.Context, id string) (domain.Task, error) {
	t, err := s.GetTask(ctx, id)
	if err != nil {
		return domain.Task{}, err
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM tasks WHERE id = ?", id); err != nil {
		return domain.Task{}, fmt.Errorf("deleting task %s: %w", id, err)
	}
	return t, nil
}

func (s *SQLite) Role(ctx context.Context, organization, userID string) (string, error) {
	var role string
	err := s.db.GetContext(ctx, &role,
		"SELECT role FROM org_members WHERE organization = ? AND user_id = ?", organization, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotMember
	}
	if err != nil {
		return "", fmt.Errorf("reading membership: %w", err)
	}
	return role, nil
}

func (s *SQLite) CreateOrganization(ctx context.Context, organization, adminID string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var n int
	if err := tx.GetContext(ctx, &n, "SELECT COUNT(*) FROM org_members WHERE organization = ?", organization); err != nil {
		return fmt.Errorf("counting members: %w", err)
	}
	if n > 0 {
		return ErrConflict
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO org_members (organization, user_id, role, created_at) VALUES (?, ?, ?, ?)",
		organization, adminID, domain.RoleAdmin, time.Now().UTC()); err != nil {
		return fmt.Errorf("creating organization %s: %w", organization, err)
	}
	return tx.Commit()
}

func (s *SQLite) AddMember(ctx context.Context, organization, userID, role string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO org_members (organization, user_id, role, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (organization, user_id) DO UPDATE SET role = excluded.role`,
		organization, userID, role, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("adding member %s to %s: %w", userID, organization, err)
	}
	return nil
}

type memberRow struct {
	Organization string `db:"organization"`
	UserID       string `db:"user_id"`
	Role         string `db:"role"`
}

func (s *SQLite) Organizations(ctx context.Context, userID string) ([]domain.Membership, error) {
	var rows []memberRow
	err := s.db.SelectContext(ctx, &rows,
		"SELECT organization, user_id, role FROM org_members WHERE user_id = ? ORDER BY organization", userID)
	if err != nil {
		return nil, fmt.Errorf("listing memberships: %w", err)
	}
	out := make([]domain.Membership, len(rows))
	for i, r := range rows {
		out[i] = domain.Membership{Organization: r.Organization, UserID: r.UserID, Role: r.Role}
	}
	return out, nil
}
