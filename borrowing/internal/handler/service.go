package handler

import (
	"context"
	"time"

	"github.com/akhmetow/borrowing-service/borrowing/internal/model"
	"github.com/akhmetow/borrowing-service/borrowing/internal/service"
	"github.com/akhmetow/borrowing-service/pkg/auth"
)

//go:generate go run github.com/golang/mock/mockgen -source=service.go -destination=mocks/mock.go

type BorrowingService interface {
	GetBook(ctx context.Context, bookUid string) (model.Book, error)
	ListBooks(ctx context.Context) ([]model.Book, error)

	CreateBorrowing(ctx context.Context, ident auth.Identity, req model.CreateBorrowingRequest) (model.Borrowing, error)
	GetBorrowing(ctx context.Context, ident auth.Identity, borrowingUid string) (model.Borrowing, error)
	ListBorrowings(ctx context.Context, ident auth.Identity, f model.BorrowingsFilter) ([]model.Borrowing, error)
	ReturnBorrowing(ctx context.Context, ident auth.Identity, borrowingUid string, returnDate time.Time) (model.ReturnBorrowingResponse, error)

	GetPayment(ctx context.Context, ident auth.Identity, paymentUid string) (model.Payment, error)
	ListPayments(ctx context.Context, ident auth.Identity) ([]model.Payment, error)
	MarkPaymentResult(ctx context.Context, sessionID string, succeeded bool) error
}

var _ BorrowingService = (*service.Service)(nil)
