package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"identity-link/internal/auth"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
	"github.com/google/uuid"
)

const batchSize = 100

// Table stores the rows of one TableSpec.
type Table struct {
	db       *DB
	spec     TableSpec
	validate *validator.Validate
}

// NewTable binds spec to d. Migrate must have run for it.
func NewTable(d *DB, spec TableSpec) *Table {
	v := validator.New()
	_ = v.RegisterValidation("notblank", validators.NotBlank)
	return &Table{db: d, spec: spec, validate: v}
}

func (t *Table) Name() string {
	return t.spec.Name
}

// New returns an empty, unsaved row.
func (t *Table) New() auth.Entity {
	return newRow(&t.spec)
}

// Find loads a row by id.
func (t *Table) Find(ctx context.Context, id string) (auth.Entity, error) {
	return t.FindBy(ctx, idField, id)
}

// FindBy loads the first row whose field equals value, or auth.ErrNotFound.
func (t *Table) FindBy(ctx context.Context, field, value string) (auth.Entity, error) {
	if field != idField && !t.spec.hasColumn(field) {
		return nil, fmt.Errorf("db: %s has no column %q", t.spec.Name, field)
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s LIMIT 1",
		t.selectList(), t.spec.Name, field, t.db.placeholder(1))
	rows, err := t.db.QueryContext(ctx, query, value)
	if err != nil {
		return nil, fmt.Errorf("db: find %s by %s: %w", t.spec.Name, field, err)
	}
	found, err := t.scan(rows)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("%w: %s.%s = %q", auth.ErrNotFound, t.spec.Name, field, value)
	}
	return found[0], nil
}

// Each calls fn for every row in id order. Rows are loaded in batches, so fn
// may write to the table.
func (t *Table) Each(ctx context.Context, fn func(auth.Entity) error) error {
	after := ""
	for {
		query := fmt.Sprintf("SELECT %s FROM %s WHERE id > %s ORDER BY id LIMIT %d",
			t.selectList(), t.spec.Name, t.db.placeholder(1), batchSize)
		rows, err := t.db.QueryContext(ctx, query, after)
		if err != nil {
			return fmt.Errorf("db: scan %s: %w", t.spec.Name, err)
		}
		batch, err := t.scan(rows)
		if err != nil {
			return err
		}

		for _, r := range batch {
			if err := fn(r); err != nil {
				return err
			}
		}
		if len(batch) < batchSize {
			return nil
		}
		after = batch[len(batch)-1].ID()
	}
}

// Count returns the number of rows.
func (t *Table) Count(ctx context.Context) (int, error) {
	var n int
	err := t.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+t.spec.Name).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("db: count %s: %w", t.spec.Name, err)
	}
	return n, nil
}

// Save validates e and inserts or updates it. A new row gets its id once
// the transaction has committed.
func (t *Table) Save(ctx context.Context, e auth.Entity) error {
	var id string
	err := t.inTx(ctx, func(tx *sql.Tx) error {
		if err := t.check(ctx, tx, e); err != nil {
			return err
		}
		var err error
		id, err = t.write(ctx, tx, e)
		return err
	})
	if err != nil {
		return err
	}
	e.Set(idField, id)
	return nil
}

// Create validates and inserts e. before runs inside the transaction after
// validation; its error aborts the insert.
func (t *Table) Create(ctx context.Context, e auth.Entity, before auth.Hook) error {
	if id, _ := e.Get(idField); id != "" {
		return fmt.Errorf("db: %s row %s already exists", t.spec.Name, id)
	}
	var id string
	err := t.inTx(ctx, func(tx *sql.Tx) error {
		if err := t.check(ctx, tx, e); err != nil {
			return err
		}
		if before != nil {
			if err := before(ctx, e); err != nil {
				return err
			}
		}
		var err error
		id, err = t.write(ctx, tx, e)
		return err
	})
	if err != nil {
		return err
	}
	e.Set(idField, id)
	return nil
}

// Destroy deletes e. after runs inside the transaction once the row is gone;
// its error restores the row.
func (t *Table) Destroy(ctx context.Context, e auth.Entity, after auth.Hook) error {
	id, _ := e.Get(idField)
	if id == "" {
		return fmt.Errorf("db: %s row is not persisted", t.spec.Name)
	}
	return t.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE id = %s", t.spec.Name, t.db.placeholder(1)), id)
		if err != nil {
			return fmt.Errorf("db: delete %s: %w", t.spec.Name, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("%w: %s.id = %q", auth.ErrNotFound, t.spec.Name, id)
		}
		if after != nil {
			return after(ctx, e)
		}
		return nil
	})
}

func (t *Table) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("db: begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("db: commit: %w", err)
	}
	return nil
}

// check enforces required and unique columns.
func (t *Table) check(ctx context.Context, tx *sql.Tx, e auth.Entity) error {
	for _, c := range t.spec.Required {
		v, _ := e.Get(c)
		if err := t.validate.Var(v, "notblank"); err != nil {
			return &auth.ValidationError{Field: c, Message: "can't be blank"}
		}
	}

	id, _ := e.Get(idField)
	for _, c := range t.spec.Unique {
		v, _ := e.Get(c)
		if strings.TrimSpace(v) == "" {
			continue
		}
		var n int
		query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE LOWER(%s) = LOWER(%s) AND id <> %s",
			t.spec.Name, c, t.db.placeholder(1), t.db.placeholder(2))
		if err := tx.QueryRowContext(ctx, query, v, id).Scan(&n); err != nil {
			return fmt.Errorf("db: check %s.%s: %w", t.spec.Name, c, err)
		}
		if n > 0 {
			return &auth.ValidationError{Field: c, Message: "has already been taken"}
		}
	}
	return nil
}

// write inserts or updates e and returns its id. It never assigns the id to
// e; callers do that after commit.
func (t *Table) write(ctx context.Context, tx *sql.Tx, e auth.Entity) (string, error) {
	args := make([]any, 0, len(t.spec.Columns)+1)
	for _, c := range t.spec.Columns {
		v, _ := e.Get(c)
		args = append(args, nullable(v))
	}

	id, _ := e.Get(idField)
	if id == "" {
		id = uuid.NewString()
		cols := append([]string{idField}, t.spec.Columns...)
		marks := make([]string, len(cols))
		for i := range cols {
			marks[i] = t.db.placeholder(i + 1)
		}
		query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			t.spec.Name, strings.Join(cols, ", "), strings.Join(marks, ", "))
		if _, err := tx.ExecContext(ctx, query, append([]any{id}, args...)...); err != nil {
			return "", fmt.Errorf("db: insert %s: %w", t.spec.Name, err)
		}
		return id, nil
	}

	sets := make([]string, 0, len(t.spec.Columns)+1)
	for i, c := range t.spec.Columns {
		sets = append(sets, fmt.Sprintf("%s = %s", c, t.db.placeholder(i+1)))
	}
	sets = append(sets, "updated_at = CURRENT_TIMESTAMP")
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = %s",
		t.spec.Name, strings.Join(sets, ", "), t.db.placeholder(len(t.spec.Columns)+1))
	res, err := tx.ExecContext(ctx, query, append(args, id)...)
	if err != nil {
		return "", fmt.Errorf("db: update %s: %w", t.spec.Name, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return "", fmt.Errorf("%w: %s.id = %q", auth.ErrNotFound, t.spec.Name, id)
	}
	return id, nil
}

func (t *Table) selectList() string {
	return strings.Join(append([]string{idField}, t.spec.Columns...), ", ")
}

func (t *Table) scan(rows *sql.Rows) ([]*Row, error) {
	defer rows.Close()

	var out []*Row
	for rows.Next() {
		vals := make([]sql.NullString, len(t.spec.Columns)+1)
		dest := make([]any, len(vals))
		for i := range vals {
			dest[i] = &vals[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("db: scan %s: %w", t.spec.Name, err)
		}

		r := newRow(&t.spec)
		r.fields[idField] = vals[0].String
		for i, c := range t.spec.Columns {
			r.fields[c] = vals[i+1].String
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db: scan %s: %w", t.spec.Name, err)
	}
	return out, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

// IsNotFound reports whether err means a missing row.
func IsNotFound(err error) bool {
	return errors.Is(err, auth.ErrNotFound)
}
