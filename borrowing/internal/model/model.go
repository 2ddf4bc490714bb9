package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Date is a calendar date in JSON bodies (2006-01-02).
type Date struct {
	time.Time
}

func (d *Date) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		return nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.Format(time.DateOnly) + `"`), nil
}

type Cover string

const (
	CoverHard Cover = "HARD"
	CoverSoft Cover = "SOFT"
)

// Book is a read-only catalog view. The core never creates books and
// mutates inventory exclusively through the repository reserve/release
// statements.
type Book struct {
	ID        int             `json:"-" db:"id"`
	BookUid   string          `json:"bookUid" db:"book_uid"`
	Title     string          `json:"title" db:"title"`
	Author    string          `json:"author" db:"author"`
	Cover     Cover           `json:"cover" db:"cover"`
	Inventory int             `json:"inventory" db:"inventory"`
	DailyFee  decimal.Decimal `json:"dailyFee" db:"daily_fee"`
}

// Borrowing is one loan. ActualReturnDate == nil means the loan is open;
// a set date is terminal.
type Borrowing struct {
	ID                 int        `json:"-" db:"id"`
	BorrowingUid       string     `json:"borrowingUid" db:"borrowing_uid"`
	BookUid            string     `json:"bookUid" db:"book_uid"`
	Username           string     `json:"username" db:"username"`
	BorrowDate         time.Time  `json:"borrowDate" db:"borrow_date"`
	ExpectedReturnDate time.Time  `json:"expectedReturnDate" db:"expected_return_date"`
	ActualReturnDate   *time.Time `json:"actualReturnDate" db:"actual_return_date"`
}

func (b Borrowing) IsActive() bool {
	return b.ActualReturnDate == nil
}

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "Pending"
	PaymentSuccess PaymentStatus = "Success"
	PaymentFailed  PaymentStatus = "Failed"
)

// Money always renders with two decimal places on the wire.
type Money struct {
	decimal.Decimal
}

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.StringFixed(2) + `"`), nil
}

type Payment struct {
	ID           int           `json:"-" db:"id"`
	PaymentUid   string        `json:"paymentUid" db:"payment_uid"`
	BorrowingUid string        `json:"borrowingUid" db:"borrowing_uid"`
	Username     string        `json:"username" db:"username"`
	Amount       Money         `json:"amount" db:"amount"`
	Status       PaymentStatus `json:"status" db:"status"`
	SessionID    string        `json:"sessionId" db:"session_id"`
	SessionURL   string        `json:"sessionUrl,omitempty" db:"session_url"`
	CreatedAt    time.Time     `json:"createdAt" db:"created_at"`
}

type CreateBorrowingRequest struct {
	BookUid            string `json:"bookUid" validate:"required,uuid"`
	ExpectedReturnDate Date   `json:"expectedReturnDate" validate:"required"`
	// Username is honored for admins only; regular users always borrow
	// for themselves.
	Username string `json:"username,omitempty"`
}

type ReturnBorrowingRequest struct {
	// ReturnDate overrides today, admins only.
	ReturnDate *Date `json:"returnDate,omitempty"`
}

type ReturnBorrowingResponse struct {
	Returned bool     `json:"returned"`
	Fine     *Money   `json:"fine"`
	Payment  *Payment `json:"payment,omitempty"`
}

type BorrowingsFilter struct {
	Username string
	IsActive *bool
}

type PaymentResultMessage struct {
	SessionID string `json:"sessionId"`
	Status    string `json:"status"`
}

const (
	SessionStatusPaid   = "paid"
	SessionStatusFailed = "failed"
)
