package repository

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/akhmetow/borrowing-service/borrowing/internal/errs"
	"github.com/akhmetow/borrowing-service/borrowing/internal/model"
)

type CreateBorrowingParams struct {
	BookUid            string
	Username           string
	BorrowDate         time.Time
	ExpectedReturnDate time.Time
}

// PaymentIntent is an externally created payment session to be persisted
// alongside the return transition.
type PaymentIntent struct {
	Amount     decimal.Decimal
	SessionID  string
	SessionURL string
}

// SettleFunc runs inside the return transaction after the terminal-state
// guard. It sees the still-open record and the locked book row; returning
// a non-nil intent persists a Pending payment, an error aborts the whole
// transition.
type SettleFunc func(ctx context.Context, b model.Borrowing, book model.Book) (*PaymentIntent, error)

type Repository interface {
	GetBook(ctx context.Context, bookUid string) (model.Book, error)
	ListBooks(ctx context.Context) ([]model.Book, error)

	CreateBorrowing(ctx context.Context, p CreateBorrowingParams) (model.Borrowing, error)
	GetBorrowing(ctx context.Context, borrowingUid string) (model.Borrowing, error)
	ListBorrowings(ctx context.Context, f model.BorrowingsFilter) ([]model.Borrowing, error)
	ListOverdue(ctx context.Context, today time.Time) ([]model.Borrowing, error)
	ReturnBorrowing(ctx context.Context, borrowingUid string, returnDate time.Time, settle SettleFunc) (model.Borrowing, *model.Payment, error)

	GetPayment(ctx context.Context, paymentUid string) (model.Payment, error)
	ListPayments(ctx context.Context, username string) ([]model.Payment, error)
	UpdatePaymentStatus(ctx context.Context, sessionID string, status model.PaymentStatus) error
}

type repository struct {
	db  *sqlx.DB
	log *zap.Logger
}

func NewRepository(db *sqlx.DB, log *zap.Logger) (*repository, error) {
	return &repository{
		db:  db,
		log: log.Named("repo"),
	}, nil
}

const (
	bookTableName      = `book`
	borrowingTableName = `borrowing`
	paymentTableName   = `payment`

	txAttempts = 3
)

var qb = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

func (r *repository) GetBook(ctx context.Context, bookUid string) (model.Book, error) {
	query, args, err := qb.Select("id", "book_uid", "title", "author", "cover", "inventory", "daily_fee").
		From(bookTableName).
		Where(sq.Eq{"book_uid": bookUid}).
		Limit(1).
		ToSql()
	if err != nil {
		return model.Book{}, err
	}

	var book model.Book
	if err := r.db.GetContext(ctx, &book, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Book{}, errs.ErrBookNotFound
		}
		return model.Book{}, err
	}
	return book, nil
}

func (r *repository) ListBooks(ctx context.Context) ([]model.Book, error) {
	query, args, err := qb.Select("id", "book_uid", "title", "author", "cover", "inventory", "daily_fee").
		From(bookTableName).
		OrderBy("title").
		ToSql()
	if err != nil {
		return nil, err
	}

	var books []model.Book
	if err := r.db.SelectContext(ctx, &books, query, args...); err != nil {
		return nil, err
	}
	return books, nil
}

// CreateBorrowing reserves one copy and inserts the open record in a
// single transaction. The book row is locked for the duration so two
// concurrent borrows cannot both see the last copy.
func (r *repository) CreateBorrowing(ctx context.Context, p CreateBorrowingParams) (model.Borrowing, error) {
	var res model.Borrowing
	err := r.withTxRetry(ctx, func(tx *sqlx.Tx) error {
		book, err := getBookForUpdate(ctx, tx, p.BookUid)
		if err != nil {
			return err
		}
		if book.Inventory <= 0 {
			return errs.ErrBookUnavailable
		}

		if _, err := tx.ExecContext(ctx,
			`update book set inventory = inventory - 1 where id = $1`, book.ID); err != nil {
			return errors.Wrap(err, "reserve")
		}

		query, args, err := qb.Insert(borrowingTableName).
			Columns("borrowing_uid", "book_id", "username", "borrow_date", "expected_return_date").
			Values(uuid.New(), book.ID, p.Username,
				p.BorrowDate.Format(time.DateOnly), p.ExpectedReturnDate.Format(time.DateOnly)).
			Suffix("returning id, borrowing_uid, username, borrow_date, expected_return_date, actual_return_date").
			ToSql()
		if err != nil {
			return err
		}
		if err := tx.GetContext(ctx, &res, query, args...); err != nil {
			r.log.Error("CreateBorrowing", zap.String("q", query), zap.Any("args", args))
			return err
		}
		res.BookUid = book.BookUid
		return nil
	})
	if err != nil {
		return model.Borrowing{}, err
	}
	return res, nil
}

func (r *repository) GetBorrowing(ctx context.Context, borrowingUid string) (model.Borrowing, error) {
	query, args, err := borrowingSelect().
		Where(sq.Eq{"borrowing_uid": borrowingUid}).
		Limit(1).
		ToSql()
	if err != nil {
		return model.Borrowing{}, err
	}

	var b model.Borrowing
	if err := r.db.GetContext(ctx, &b, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Borrowing{}, errs.ErrBorrowingNotFound
		}
		return model.Borrowing{}, err
	}
	return b, nil
}

func (r *repository) ListBorrowings(ctx context.Context, f model.BorrowingsFilter) ([]model.Borrowing, error) {
	q := borrowingSelect()
	if f.Username != "" {
		q = q.Where(sq.Eq{"b.username": f.Username})
	}
	if f.IsActive != nil {
		if *f.IsActive {
			q = q.Where("actual_return_date is null")
		} else {
			q = q.Where("actual_return_date is not null")
		}
	}

	query, args, err := q.OrderBy("b.id").ToSql()
	if err != nil {
		return nil, err
	}

	var items []model.Borrowing
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) ListOverdue(ctx context.Context, today time.Time) ([]model.Borrowing, error) {
	query, args, err := borrowingSelect().
		Where(sq.Lt{"expected_return_date": today.Format(time.DateOnly)}).
		Where("actual_return_date is null").
		OrderBy("expected_return_date").
		ToSql()
	if err != nil {
		return nil, err
	}

	var items []model.Borrowing
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, err
	}
	return items, nil
}

// ReturnBorrowing performs the whole return transition atomically: flip
// the record terminal, release the copy, and run settle. Any failure,
// including the payment-session call inside settle, rolls everything back
// and the record stays open.
func (r *repository) ReturnBorrowing(ctx context.Context, borrowingUid string, returnDate time.Time, settle SettleFunc) (model.Borrowing, *model.Payment, error) {
	var (
		res     model.Borrowing
		payment *model.Payment
	)
	err := r.withTxRetry(ctx, func(tx *sqlx.Tx) error {
		payment = nil
		var row struct {
			model.Borrowing
			BookID int `db:"book_id"`
		}
		if err := tx.GetContext(ctx, &row,
			`select id, borrowing_uid, book_id, username, borrow_date, expected_return_date, actual_return_date
			 from borrowing where borrowing_uid = $1 for update`, borrowingUid); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return errs.ErrBorrowingNotFound
			}
			return err
		}
		if row.ActualReturnDate != nil {
			return errs.ErrAlreadyReturned
		}

		var book model.Book
		if err := tx.GetContext(ctx, &book,
			`select id, book_uid, title, author, cover, inventory, daily_fee
			 from book where id = $1 for update`, row.BookID); err != nil {
			return err
		}
		row.Borrowing.BookUid = book.BookUid

		intent, err := settle(ctx, row.Borrowing, book)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			`update borrowing set actual_return_date = $2 where id = $1`,
			row.ID, returnDate.Format(time.DateOnly)); err != nil {
			return errors.Wrap(err, "set actual_return_date")
		}
		if _, err := tx.ExecContext(ctx,
			`update book set inventory = inventory + 1 where id = $1`, book.ID); err != nil {
			return errors.Wrap(err, "release")
		}

		if intent != nil {
			query, args, err := qb.Insert(paymentTableName).
				Columns("payment_uid", "borrowing_id", "username", "amount", "status", "session_id", "session_url").
				Values(uuid.New(), row.ID, row.Username, intent.Amount, model.PaymentPending, intent.SessionID, intent.SessionURL).
				Suffix("returning id, payment_uid, username, amount, status, session_id, session_url, created_at").
				ToSql()
			if err != nil {
				return err
			}
			var p model.Payment
			if err := tx.GetContext(ctx, &p, query, args...); err != nil {
				r.log.Error("CreatePayment", zap.String("q", query), zap.Any("args", args))
				return err
			}
			p.BorrowingUid = row.BorrowingUid
			payment = &p
		}

		res = row.Borrowing
		rd := returnDate
		res.ActualReturnDate = &rd
		return nil
	})
	if err != nil {
		return model.Borrowing{}, nil, err
	}
	return res, payment, nil
}

func (r *repository) GetPayment(ctx context.Context, paymentUid string) (model.Payment, error) {
	query, args, err := paymentSelect().
		Where(sq.Eq{"payment_uid": paymentUid}).
		Limit(1).
		ToSql()
	if err != nil {
		return model.Payment{}, err
	}

	var p model.Payment
	if err := r.db.GetContext(ctx, &p, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Payment{}, errs.ErrPaymentNotFound
		}
		return model.Payment{}, err
	}
	return p, nil
}

func (r *repository) ListPayments(ctx context.Context, username string) ([]model.Payment, error) {
	q := paymentSelect()
	if username != "" {
		q = q.Where(sq.Eq{"p.username": username})
	}
	query, args, err := q.OrderBy("p.id").ToSql()
	if err != nil {
		return nil, err
	}

	var items []model.Payment
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, err
	}
	return items, nil
}

// UpdatePaymentStatus flips a Pending payment by its processor session id.
// Re-delivered callbacks for an already terminal payment are a no-op.
func (r *repository) UpdatePaymentStatus(ctx context.Context, sessionID string, status model.PaymentStatus) error {
	res, err := r.db.ExecContext(ctx,
		`update payment set status = $2 where session_id = $1 and status = $3`,
		sessionID, status, model.PaymentPending)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	var exists bool
	if err := r.db.GetContext(ctx, &exists,
		`select exists(select 1 from payment where session_id = $1)`, sessionID); err != nil {
		return err
	}
	if !exists {
		return errs.ErrPaymentNotFound
	}
	return nil
}

func borrowingSelect() sq.SelectBuilder {
	return qb.Select("b.id", "borrowing_uid", "bk.book_uid", "b.username",
		"borrow_date", "expected_return_date", "actual_return_date").
		From(borrowingTableName + " b").
		Join(bookTableName + " bk on bk.id = b.book_id")
}

func paymentSelect() sq.SelectBuilder {
	return qb.Select("p.id", "payment_uid", "b.borrowing_uid", "p.username",
		"amount", "p.status", "session_id", "session_url", "p.created_at").
		From(paymentTableName + " p").
		Join(borrowingTableName + " b on b.id = p.borrowing_id")
}

func (r *repository) withTxRetry(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	for attempt := 1; ; attempt++ {
		err := r.runTx(ctx, fn)
		if err == nil {
			return nil
		}
		if attempt < txAttempts && retryable(err) {
			r.log.Warn("tx conflict", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}
		return err
	}
}

func (r *repository) runTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func retryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure ||
			pgErr.Code == pgerrcode.DeadlockDetected
	}
	return false
}

func getBookForUpdate(ctx context.Context, tx *sqlx.Tx, bookUid string) (model.Book, error) {
	var book model.Book
	if err := tx.GetContext(ctx, &book,
		`select id, book_uid, title, author, cover, inventory, daily_fee
		 from book where book_uid = $1 for update`, bookUid); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Book{}, errs.ErrBookNotFound
		}
		return model.Book{}, err
	}
	return book, nil
}
