package book

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const bookColumns = `
	id, isbn, title, author, description, genre, publisher,
	publication_year, cover_url, total_copies, available_copies,
	created_at, updated_at`

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

func (r *PostgresRepo) List(ctx context.Context, q Query) ([]Book, int, error) {
	countSQL, countArgs, err := countSQL(q)
	if err != nil {
		return nil, 0, err
	}
	dataSQL, dataArgs, err := listSQL(q)
	if err != nil {
		return nil, 0, err
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var total int
	if err := r.db.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, classify(err)
	}

	rows, err := r.db.Query(ctx, dataSQL, dataArgs...)
	if err != nil {
		return nil, 0, classify(err)
	}
	defer rows.Close()

	out := []Book{}
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, 0, classify(err)
		}
		out = append(out, b)
	}
	return out, total, classify(rows.Err())
}

func filtered(q Query) *goqu.SelectDataset {
	ds := dialect.From("books").Prepared(true)

	var where []exp.Expression
	if q.Genre != "" {
		where = append(where, goqu.C("genre").ILike(q.Genre))
	}
	if q.Author != "" {
		where = append(where, goqu.C("author").ILike("%"+q.Author+"%"))
	}
	if q.AvailableOnly {
		where = append(where, goqu.C("available_copies").Gt(0))
	}
	if s := strings.TrimSpace(q.Search); s != "" {
		pattern := "%" + s + "%"
		where = append(where, goqu.Or(
			goqu.C("title").ILike(pattern),
			goqu.C("author").ILike(pattern),
			goqu.C("isbn").ILike(pattern),
			goqu.C("genre").ILike(pattern),
		))
	}
	if len(where) > 0 {
		ds = ds.Where(where...)
	}
	return ds
}

func countSQL(q Query) (string, []any, error) {
	return filtered(q).Select(goqu.COUNT(goqu.Star())).ToSQL()
}

func listSQL(q Query) (string, []any, error) {
	col := "title"
	switch q.Sort {
	case "created_at":
		col = "created_at"
	case "year":
		col = "publication_year"
	case "available":
		col = "available_copies"
	}
	order := goqu.C(col).Asc().NullsLast()
	if q.Desc {
		order = goqu.C(col).Desc().NullsLast()
	}

	ds := filtered(q).
		Select(goqu.L(bookColumns)).
		Order(order, goqu.C("id").Asc())
	if q.Limit > 0 {
		ds = ds.Limit(uint(q.Limit))
	}
	if q.Offset > 0 {
		ds = ds.Offset(uint(q.Offset))
	}
	return ds.ToSQL()
}

func (r *PostgresRepo) GetByID(ctx context.Context, id string) (Book, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	b, err := scanBook(r.db.QueryRow(ctx, "SELECT"+bookColumns+" FROM books WHERE id = $1", id))
	if err != nil {
		return Book{}, classifyLookup(err)
	}
	return b, nil
}

func (r *PostgresRepo) GetByISBN(ctx context.Context, isbn string) (Book, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	b, err := scanBook(r.db.QueryRow(ctx, "SELECT"+bookColumns+" FROM books WHERE isbn = $1 LIMIT 1", isbn))
	if err != nil {
		return Book{}, classifyLookup(err)
	}
	return b, nil
}

func (r *PostgresRepo) Create(ctx context.Context, b *Book) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	err := r.db.QueryRow(ctx, `
		INSERT INTO books (isbn, title, author, description, genre, publisher,
		                   publication_year, cover_url, total_copies, available_copies)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at`,
		b.ISBN, b.Title, b.Author, b.Description, b.Genre, b.Publisher,
		b.PublicationYear, b.CoverURL, b.TotalCopies, b.AvailableCopies,
	).Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt)
	return classify(err)
}

func (r *PostgresRepo) Mutate(ctx context.Context, id string, fn func(b *Book, onLoan int) error) (Book, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var out Book
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		b, err := scanBook(tx.QueryRow(ctx, "SELECT"+bookColumns+" FROM books WHERE id = $1 FOR UPDATE", id))
		if err != nil {
			return classifyLookup(err)
		}

		var onLoan int
		if err := tx.QueryRow(ctx,
			`SELECT count(*) FROM borrow_requests WHERE book_id = $1 AND status = 'borrowed'`,
			id).Scan(&onLoan); err != nil {
			return err
		}

		if err := fn(&b, onLoan); err != nil {
			return err
		}

		err = tx.QueryRow(ctx, `
			UPDATE books
			SET title = $2, author = $3, description = $4, genre = $5, publisher = $6,
			    publication_year = $7, cover_url = $8, total_copies = $9,
			    available_copies = $10, updated_at = now()
			WHERE id = $1
			RETURNING updated_at`,
			b.ID, b.Title, b.Author, b.Description, b.Genre, b.Publisher,
			b.PublicationYear, b.CoverURL, b.TotalCopies, b.AvailableCopies,
		).Scan(&b.UpdatedAt)
		if err != nil {
			return err
		}
		out = b
		return nil
	})
	if err != nil {
		return Book{}, classify(err)
	}
	return out, nil
}

func (r *PostgresRepo) Delete(ctx context.Context, id string) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT true FROM books WHERE id = $1 FOR UPDATE`, id).Scan(&exists); err != nil {
			return classifyLookup(err)
		}

		var active int
		if err := tx.QueryRow(ctx, `
			SELECT count(*) FROM borrow_requests
			WHERE book_id = $1 AND status IN ('pending', 'approved', 'borrowed')`,
			id).Scan(&active); err != nil {
			return err
		}
		if active > 0 {
			return ErrInUse
		}

		// Finished history goes with the book.
		if _, err := tx.Exec(ctx, `DELETE FROM borrow_requests WHERE book_id = $1`, id); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `DELETE FROM books WHERE id = $1`, id)
		return err
	})
	return classify(err)
}

func scanBook(row pgx.Row) (Book, error) {
	var b Book
	err := row.Scan(
		&b.ID, &b.ISBN, &b.Title, &b.Author, &b.Description, &b.Genre, &b.Publisher,
		&b.PublicationYear, &b.CoverURL, &b.TotalCopies, &b.AvailableCopies,
		&b.CreatedAt, &b.UpdatedAt,
	)
	return b, err
}

func classifyLookup(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "22P02" {
		return ErrNotFound
	}
	return err
}

func classify(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return ErrDuplicateISBN
		case "23503":
			return ErrInUse
		case "23514":
			return fmt.Errorf("%w: %s", ErrInvalidStock, pgErr.Message)
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
