package errs

import (
	"errors"
)

var (
	ErrBookNotFound         = errors.New("book not found")
	ErrBookUnavailable      = errors.New("book is not available for borrowing")
	ErrBorrowingNotFound    = errors.New("borrowing not found")
	ErrAlreadyReturned      = errors.New("borrowing has already been returned")
	ErrForbidden            = errors.New("can only return books borrowed by yourself")
	ErrPaymentNotFound      = errors.New("payment not found")
	ErrProcessorUnavailable = errors.New("payment processor unavailable")
	ErrExpectedDate         = errors.New("expectedReturnDate must not be in the past")
)
