package borrow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"lendingapi/internal/availability"
)

const (
	activeUniqueIndex = "borrow_requests_active_uniq"
	bookForeignKey    = "borrow_requests_book_fk"
	userForeignKey    = "borrow_requests_user_fk"
)

const selectColumns = `
	br.id, br.book_id, br.user_id, br.status,
	br.request_date, br.approval_date, br.borrow_date, br.due_date, br.return_date,
	br.admin_notes, br.created_at, br.updated_at,
	b.title, b.author, u.email, u.username`

const selectFrom = `
	FROM borrow_requests br
	JOIN books b ON b.id = br.book_id
	JOIN users u ON u.id = br.user_id`

var dialect = goqu.Dialect("postgres")

type PostgresRepo struct {
	db      *pgxpool.Pool
	timeout time.Duration
}

func NewPostgresRepo(db *pgxpool.Pool, timeout time.Duration) *PostgresRepo {
	return &PostgresRepo{db: db, timeout: timeout}
}

func (r *PostgresRepo) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.timeout)
}

func (r *PostgresRepo) InTx(ctx context.Context, fn func(tx Tx) error) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		return fn(&pgTx{tx: tx})
	})
	return classify(err)
}

func (r *PostgresRepo) GetByID(ctx context.Context, id string) (Request, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	row := r.db.QueryRow(ctx, "SELECT"+selectColumns+selectFrom+" WHERE br.id = $1", id)
	req, err := scanRequest(row)
	if err != nil {
		return Request{}, classifyLookup(err, ErrNotFound)
	}
	return req, nil
}

func (r *PostgresRepo) List(ctx context.Context, q Query) ([]Request, error) {
	sql, args, err := listSQL(q)
	if err != nil {
		return nil, err
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	out := []Request{}
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, classify(err)
		}
		out = append(out, req)
	}
	return out, classify(rows.Err())
}

// listSQL builds the keyset query for q. Rows come newest first, ordered by
// (created_at, id) so the cursor comparison stays stable on ties.
func listSQL(q Query) (string, []any, error) {
	ds := dialect.
		From(goqu.T("borrow_requests").As("br")).
		Join(goqu.T("books").As("b"), goqu.On(goqu.I("b.id").Eq(goqu.I("br.book_id")))).
		Join(goqu.T("users").As("u"), goqu.On(goqu.I("u.id").Eq(goqu.I("br.user_id")))).
		Select(
			goqu.I("br.id"), goqu.I("br.book_id"), goqu.I("br.user_id"), goqu.I("br.status"),
			goqu.I("br.request_date"), goqu.I("br.approval_date"), goqu.I("br.borrow_date"),
			goqu.I("br.due_date"), goqu.I("br.return_date"),
			goqu.I("br.admin_notes"), goqu.I("br.created_at"), goqu.I("br.updated_at"),
			goqu.I("b.title"), goqu.I("b.author"), goqu.I("u.email"), goqu.I("u.username"),
		).
		Order(goqu.I("br.created_at").Desc(), goqu.I("br.id").Desc()).
		Prepared(true)

	var where []goqu.Expression
	if q.UserID != "" {
		where = append(where, goqu.I("br.user_id").Eq(q.UserID))
	}
	if q.BookID != "" {
		where = append(where, goqu.I("br.book_id").Eq(q.BookID))
	}
	if q.Status != "" {
		where = append(where, goqu.I("br.status").Eq(string(q.Status)))
	}
	if q.ActiveOnly {
		active := make([]string, len(ActiveStatuses))
		for i, s := range ActiveStatuses {
			active[i] = string(s)
		}
		where = append(where, goqu.I("br.status").In(active))
	}
	if s := strings.TrimSpace(q.Search); s != "" {
		pattern := "%" + s + "%"
		where = append(where, goqu.Or(
			goqu.I("b.title").ILike(pattern),
			goqu.I("b.author").ILike(pattern),
			goqu.I("u.username").ILike(pattern),
			goqu.I("u.email").ILike(pattern),
		))
	}
	if !q.After.IsZero() {
		at, err := q.After.Time()
		if err != nil {
			return "", nil, err
		}
		where = append(where, goqu.L("(br.created_at, br.id) < (?, ?::uuid)", at, q.After.AfterID))
	}
	if len(where) > 0 {
		ds = ds.Where(where...)
	}
	if q.Limit > 0 {
		ds = ds.Limit(uint(q.Limit))
	}

	return ds.ToSQL()
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) LockRequest(ctx context.Context, id string) (Request, error) {
	row := t.tx.QueryRow(ctx, "SELECT"+selectColumns+selectFrom+" WHERE br.id = $1 FOR UPDATE OF br", id)
	req, err := scanRequest(row)
	if err != nil {
		return Request{}, classifyLookup(err, ErrNotFound)
	}
	return req, nil
}

func (t *pgTx) LockActive(ctx context.Context, bookID, userID string) (Request, error) {
	row := t.tx.QueryRow(ctx, "SELECT"+selectColumns+selectFrom+`
		WHERE br.book_id = $1 AND br.user_id = $2
		  AND br.status IN ('pending', 'approved', 'borrowed')
		ORDER BY br.created_at DESC
		LIMIT 1
		FOR UPDATE OF br`, bookID, userID)
	req, err := scanRequest(row)
	if err != nil {
		return Request{}, classifyLookup(err, ErrNotFound)
	}
	return req, nil
}

func (t *pgTx) LockStock(ctx context.Context, bookID string) (availability.Stock, error) {
	var total, available int
	err := t.tx.QueryRow(ctx,
		`SELECT total_copies, available_copies FROM books WHERE id = $1 FOR UPDATE`,
		bookID).Scan(&total, &available)
	if err != nil {
		return availability.Stock{}, classifyLookup(err, ErrBookNotFound)
	}
	return availability.Restore(total, available)
}

func (t *pgTx) SaveStock(ctx context.Context, bookID string, s availability.Stock) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE books SET total_copies = $2, available_copies = $3, updated_at = now() WHERE id = $1`,
		bookID, s.Total(), s.Available())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrBookNotFound
	}
	return nil
}

func (t *pgTx) InsertRequest(ctx context.Context, r *Request) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO borrow_requests
			(book_id, user_id, status, request_date, borrow_date, due_date, admin_notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		r.BookID, r.UserID, string(r.Status), r.RequestDate, r.BorrowDate, r.DueDate,
		r.AdminNotes, r.CreatedAt, r.UpdatedAt,
	).Scan(&r.ID)
	if err != nil {
		return err
	}

	// Fill the display fields so the caller returns the same shape as a read.
	return t.tx.QueryRow(ctx, `
		SELECT b.title, b.author, u.email, u.username
		FROM books b, users u
		WHERE b.id = $1 AND u.id = $2`,
		r.BookID, r.UserID,
	).Scan(&r.BookTitle, &r.BookAuthor, &r.UserEmail, &r.Username)
}

func (t *pgTx) UpdateRequest(ctx context.Context, r *Request) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE borrow_requests
		SET status = $2, approval_date = $3, borrow_date = $4, due_date = $5,
		    return_date = $6, admin_notes = $7, updated_at = $8
		WHERE id = $1`,
		r.ID, string(r.Status), r.ApprovalDate, r.BorrowDate, r.DueDate,
		r.ReturnDate, r.AdminNotes, r.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanRequest(row pgx.Row) (Request, error) {
	var (
		req    Request
		status string
	)
	err := row.Scan(
		&req.ID, &req.BookID, &req.UserID, &status,
		&req.RequestDate, &req.ApprovalDate, &req.BorrowDate, &req.DueDate, &req.ReturnDate,
		&req.AdminNotes, &req.CreatedAt, &req.UpdatedAt,
		&req.BookTitle, &req.BookAuthor, &req.UserEmail, &req.Username,
	)
	req.Status = Status(status)
	return req, err
}

func classifyLookup(err error, notFound error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return notFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "22P02" {
		// Malformed uuid: nothing can match it.
		return notFound
	}
	return err
}

// classify maps driver failures onto the package errors. Domain errors pass
// through untouched.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			if pgErr.ConstraintName == activeUniqueIndex {
				return ErrActiveRequestExists
			}
		case "23503":
			switch pgErr.ConstraintName {
			case bookForeignKey:
				return ErrBookNotFound
			case userForeignKey:
				return ErrUserNotFound
			}
		case "22P02":
			return ErrNotFound
		case "40001", "40P01", "57014":
			return fmt.Errorf("%w: %s", ErrUnavailable, pgErr.Message)
		}
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}
