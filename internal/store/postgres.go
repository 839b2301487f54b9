package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/opennewsroom/newsdesk-api/internal/models"
)

var collectionName = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// PostgresStore persists documents as JSONB rows, one table per
// collection: id TEXT PRIMARY KEY, unique_id BIGSERIAL, doc JSONB.
// Conditional replaces are pushed into the UPDATE predicate so a stale
// etag loses the race at the store rather than in application code.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore wraps an sqlx pool.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func table(collection string) (string, error) {
	if !collectionName.MatchString(collection) {
		return "", fmt.Errorf("invalid collection name %q", collection)
	}
	return pq.QuoteIdentifier(collection), nil
}

// Insert stores a new document and stamps the generated unique_id back
// into the JSONB payload.
func (s *PostgresStore) Insert(ctx context.Context, collection string, doc models.Doc) (string, error) {
	tbl, err := table(collection)
	if err != nil {
		return "", err
	}
	id := doc.ID()
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("marshal document: %w", err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin insert tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var uniqueID int64
	query := fmt.Sprintf(`INSERT INTO %s (id, doc) VALUES ($1, $2) RETURNING unique_id`, tbl)
	if err := tx.GetContext(ctx, &uniqueID, query, id, raw); err != nil {
		if isUniqueViolation(err) {
			return "", ErrDuplicate
		}
		return "", fmt.Errorf("insert document: %w", err)
	}

	if !doc.Has(models.FieldUniqueID) {
		doc[models.FieldUniqueID] = int(uniqueID)
		raw, err = json.Marshal(doc)
		if err != nil {
			return "", fmt.Errorf("marshal document: %w", err)
		}
		update := fmt.Sprintf(`UPDATE %s SET doc = $2 WHERE id = $1`, tbl)
		if _, err := tx.ExecContext(ctx, update, id, raw); err != nil {
			return "", fmt.Errorf("stamp unique_id: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit insert tx: %w", err)
	}
	return id, nil
}

// FindByID fetches a single document by primary key.
func (s *PostgresStore) FindByID(ctx context.Context, collection, id string) (models.Doc, error) {
	tbl, err := table(collection)
	if err != nil {
		return nil, err
	}
	var raw []byte
	query := fmt.Sprintf(`SELECT doc FROM %s WHERE id = $1`, tbl)
	if err := s.db.GetContext(ctx, &raw, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find document: %w", err)
	}
	return decodeDoc(raw)
}

// FindOne returns the first match in unique_id order.
func (s *PostgresStore) FindOne(ctx context.Context, collection string, where Cond) (models.Doc, error) {
	result, err := s.Find(ctx, collection, Query{
		Where:    where,
		Sort:     []SortField{{Field: models.FieldUniqueID}},
		Page:     1,
		PageSize: 1,
	})
	if err != nil {
		return nil, err
	}
	if len(result.Docs) == 0 {
		return nil, ErrNotFound
	}
	return result.Docs[0], nil
}

// Find translates the neutral query into SQL over the JSONB column.
func (s *PostgresStore) Find(ctx context.Context, collection string, q Query) (*Result, error) {
	tbl, err := table(collection)
	if err != nil {
		return nil, err
	}

	clause, args := buildCond(q.Where, &argCounter{})
	whereSQL := ""
	if clause != "" {
		whereSQL = " WHERE " + clause
	}

	var total int
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM %s%s`, tbl, whereSQL)
	if err := s.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, fmt.Errorf("count documents: %w", err)
	}

	query := fmt.Sprintf(`SELECT doc FROM %s%s%s%s`, tbl, whereSQL, buildSort(q.Sort), buildPage(q.Page, q.PageSize))
	var rows [][]byte
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("select documents: %w", err)
	}

	docs := make([]models.Doc, 0, len(rows))
	for _, raw := range rows {
		doc, err := decodeDoc(raw)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return &Result{Docs: docs, Total: total}, nil
}

// Replace swaps the stored document. A non-empty ifETag turns the write
// into a conditional update at the store.
func (s *PostgresStore) Replace(ctx context.Context, collection, id string, doc models.Doc, ifETag string) error {
	tbl, err := table(collection)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	var (
		query string
		args  []interface{}
	)
	if ifETag == "" {
		query = fmt.Sprintf(`UPDATE %s SET doc = $2, updated_at = now() WHERE id = $1`, tbl)
		args = []interface{}{id, raw}
	} else {
		query = fmt.Sprintf(`UPDATE %s SET doc = $2, updated_at = now() WHERE id = $1 AND doc->>'_etag' = $3`, tbl)
		args = []interface{}{id, raw, ifETag}
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("replace document: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("replace document: %w", err)
	}
	if affected == 0 {
		if _, err := s.FindByID(ctx, collection, id); errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return ErrPrecondition
	}
	return nil
}

// Delete removes one document by id.
func (s *PostgresStore) Delete(ctx context.Context, collection, id string) error {
	tbl, err := table(collection)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, tbl), id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteWhere removes every matching document.
func (s *PostgresStore) DeleteWhere(ctx context.Context, collection string, where Cond) (int, error) {
	tbl, err := table(collection)
	if err != nil {
		return 0, err
	}
	clause, args := buildCond(where, &argCounter{})
	query := fmt.Sprintf(`DELETE FROM %s`, tbl)
	if clause != "" {
		query += " WHERE " + clause
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete documents: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete documents: %w", err)
	}
	return int(affected), nil
}

// Count returns the number of matching documents.
func (s *PostgresStore) Count(ctx context.Context, collection string, where Cond) (int, error) {
	tbl, err := table(collection)
	if err != nil {
		return 0, err
	}
	clause, args := buildCond(where, &argCounter{})
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s`, tbl)
	if clause != "" {
		query += " WHERE " + clause
	}
	var total int
	if err := s.db.GetContext(ctx, &total, query, args...); err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return total, nil
}

func decodeDoc(raw []byte) (models.Doc, error) {
	var doc models.Doc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

type argCounter struct{ n int }

func (c *argCounter) next() string {
	c.n++
	return fmt.Sprintf("$%d", c.n)
}

// jsonPath renders a dotted field path as a JSONB text extraction.
func jsonPath(field string) string {
	parts := strings.Split(field, ".")
	quoted := make([]string, len(parts))
	for i, p := range parts {
		quoted[i] = strings.ReplaceAll(p, "'", "")
	}
	return fmt.Sprintf("doc #>> '{%s}'", strings.Join(quoted, ","))
}

func buildCond(c Cond, counter *argCounter) (string, []interface{}) {
	if c.IsZero() {
		return "", nil
	}
	switch c.Op {
	case OpAnd, OpOr:
		parts := make([]string, 0, len(c.Subs))
		args := make([]interface{}, 0)
		for _, sub := range c.Subs {
			clause, subArgs := buildCond(sub, counter)
			if clause == "" {
				continue
			}
			parts = append(parts, "("+clause+")")
			args = append(args, subArgs...)
		}
		if len(parts) == 0 {
			return "", nil
		}
		joiner := " AND "
		if c.Op == OpOr {
			joiner = " OR "
		}
		return strings.Join(parts, joiner), args
	case OpExists:
		return jsonPath(c.Field) + " IS NOT NULL", nil
	case OpMissing:
		return jsonPath(c.Field) + " IS NULL", nil
	case OpIn:
		values, _ := c.Value.([]interface{})
		if len(values) == 0 {
			return "FALSE", nil
		}
		placeholders := make([]string, len(values))
		args := make([]interface{}, len(values))
		for i, v := range values {
			placeholders[i] = counter.next()
			args[i] = scalarArg(v)
		}
		return fmt.Sprintf("%s IN (%s)", jsonPath(c.Field), strings.Join(placeholders, ",")), args
	}

	path := jsonPath(c.Field)
	operator := map[Op]string{OpEq: "=", OpNe: "<>", OpLt: "<", OpLte: "<=", OpGt: ">", OpGte: ">="}[c.Op]
	if operator == "" {
		return "", nil
	}
	if _, numeric := asFloat(c.Value); numeric {
		return fmt.Sprintf("(%s)::numeric %s %s", path, operator, counter.next()), []interface{}{scalarArg(c.Value)}
	}
	if c.Op == OpNe {
		// JSONB text extraction yields NULL for absent fields; ne matches those too.
		return fmt.Sprintf("(%s %s %s OR %s IS NULL)", path, operator, counter.next(), path), []interface{}{scalarArg(c.Value)}
	}
	return fmt.Sprintf("%s %s %s", path, operator, counter.next()), []interface{}{scalarArg(c.Value)}
}

func scalarArg(v interface{}) interface{} {
	switch typed := v.(type) {
	case string, float64, int, int64, bool:
		return typed
	default:
		return fmt.Sprintf("%v", typed)
	}
}

func buildSort(fields []SortField) string {
	if len(fields) == 0 {
		return " ORDER BY unique_id ASC"
	}
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		dir := "ASC"
		if f.Desc {
			dir = "DESC"
		}
		if f.Field == models.FieldUniqueID {
			parts = append(parts, "unique_id "+dir)
			continue
		}
		parts = append(parts, fmt.Sprintf("%s %s", jsonPath(f.Field), dir))
	}
	return " ORDER BY " + strings.Join(parts, ", ")
}

func buildPage(page, size int) string {
	if size <= 0 {
		return ""
	}
	if page < 1 {
		page = 1
	}
	return fmt.Sprintf(" LIMIT %d OFFSET %d", size, (page-1)*size)
}
