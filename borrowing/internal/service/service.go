package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/akhmetow/borrowing-service/borrowing/internal/errs"
	"github.com/akhmetow/borrowing-service/borrowing/internal/model"
	"github.com/akhmetow/borrowing-service/borrowing/internal/payment"
	"github.com/akhmetow/borrowing-service/borrowing/internal/repository"
	"github.com/akhmetow/borrowing-service/pkg/auth"
	"github.com/akhmetow/borrowing-service/pkg/circuit_breaker"
)

type Config struct {
	FineMultiplier int64 `yaml:"fineMultiplier" envconfig:"FINE_MULTIPLIER" default:"2"`
}

type Notifier interface {
	Notify(ctx context.Context, text string) error
}

type Service struct {
	log       *zap.Logger
	repo      repository.Repository
	processor payment.Processor
	notifier  Notifier
	cb        circuit_breaker.CircuitBreaker
	fines     FineCalculator
}

func NewService(cfg Config, repo repository.Repository, processor payment.Processor,
	notifier Notifier, cb circuit_breaker.CircuitBreaker, log *zap.Logger) *Service {
	return &Service{
		log:       log,
		repo:      repo,
		processor: processor,
		notifier:  notifier,
		cb:        cb,
		fines:     NewFineCalculator(cfg.FineMultiplier),
	}
}

func (s *Service) GetBook(ctx context.Context, bookUid string) (model.Book, error) {
	return s.repo.GetBook(ctx, bookUid)
}

func (s *Service) ListBooks(ctx context.Context) ([]model.Book, error) {
	return s.repo.ListBooks(ctx)
}

func (s *Service) CreateBorrowing(ctx context.Context, ident auth.Identity, req model.CreateBorrowingRequest) (model.Borrowing, error) {
	username := ident.Username
	if req.Username != "" && ident.IsAdmin() {
		username = req.Username
	}

	today := toDate(time.Now().UTC())
	if toDate(req.ExpectedReturnDate.Time).Before(today) {
		return model.Borrowing{}, errs.ErrExpectedDate
	}

	b, err := s.repo.CreateBorrowing(ctx, repository.CreateBorrowingParams{
		BookUid:            req.BookUid,
		Username:           username,
		BorrowDate:         today,
		ExpectedReturnDate: toDate(req.ExpectedReturnDate.Time),
	})
	if err != nil {
		return model.Borrowing{}, err
	}

	s.notify(ctx, fmt.Sprintf("New borrowing: %s took book %s until %s",
		b.Username, b.BookUid, b.ExpectedReturnDate.Format(time.DateOnly)))
	return b, nil
}

func (s *Service) GetBorrowing(ctx context.Context, ident auth.Identity, borrowingUid string) (model.Borrowing, error) {
	b, err := s.repo.GetBorrowing(ctx, borrowingUid)
	if err != nil {
		return model.Borrowing{}, err
	}
	if !auth.CanReturn(ident, b.Username) {
		// do not leak other users' records
		return model.Borrowing{}, errs.ErrBorrowingNotFound
	}
	return b, nil
}

func (s *Service) ListBorrowings(ctx context.Context, ident auth.Identity, f model.BorrowingsFilter) ([]model.Borrowing, error) {
	if !ident.IsAdmin() {
		f.Username = ident.Username
	}
	return s.repo.ListBorrowings(ctx, f)
}

// ReturnBorrowing flips the record terminal, releases the copy and, when
// the return is overdue, creates the fine payment session. All of it is
// one transaction: a processor outage leaves the borrowing open and the
// inventory untouched, the caller may retry later.
func (s *Service) ReturnBorrowing(ctx context.Context, ident auth.Identity, borrowingUid string, returnDate time.Time) (model.ReturnBorrowingResponse, error) {
	returnDate = toDate(returnDate)

	b, p, err := s.repo.ReturnBorrowing(ctx, borrowingUid, returnDate,
		func(ctx context.Context, rec model.Borrowing, book model.Book) (*repository.PaymentIntent, error) {
			if !auth.CanReturn(ident, rec.Username) {
				return nil, errs.ErrForbidden
			}

			fine := s.fines.Fine(book.DailyFee, rec.ExpectedReturnDate, returnDate)
			if fine.IsZero() {
				return nil, nil
			}

			var sess payment.Session
			cbErr := s.cb.Call(func() error {
				var err error
				sess, err = s.processor.CreateSession(ctx, rec.Username, fine,
					fmt.Sprintf("Overdue fine for borrowing %s", rec.BorrowingUid))
				return err
			})
			if cbErr != nil {
				s.log.Warn("payment session", zap.String("borrowing", rec.BorrowingUid), zap.Error(cbErr))
				return nil, errs.ErrProcessorUnavailable
			}

			return &repository.PaymentIntent{
				Amount:     fine,
				SessionID:  sess.SessionID,
				SessionURL: sess.SessionURL,
			}, nil
		})
	if err != nil {
		return model.ReturnBorrowingResponse{}, err
	}

	s.notify(ctx, fmt.Sprintf("Book returned: %s returned book %s on %s",
		b.Username, b.BookUid, returnDate.Format(time.DateOnly)))

	resp := model.ReturnBorrowingResponse{Returned: true}
	if p != nil {
		amount := p.Amount
		resp.Fine = &amount
		resp.Payment = p
	}
	return resp, nil
}

func (s *Service) GetPayment(ctx context.Context, ident auth.Identity, paymentUid string) (model.Payment, error) {
	p, err := s.repo.GetPayment(ctx, paymentUid)
	if err != nil {
		return model.Payment{}, err
	}
	if !auth.CanReturn(ident, p.Username) {
		return model.Payment{}, errs.ErrPaymentNotFound
	}
	return p, nil
}

func (s *Service) ListPayments(ctx context.Context, ident auth.Identity) ([]model.Payment, error) {
	username := ident.Username
	if ident.IsAdmin() {
		username = ""
	}
	return s.repo.ListPayments(ctx, username)
}

// MarkPaymentResult is the synchronous entry point for the processor's
// asynchronous callback: it flips the Pending payment found by session id.
func (s *Service) MarkPaymentResult(ctx context.Context, sessionID string, succeeded bool) error {
	status := model.PaymentFailed
	if succeeded {
		status = model.PaymentSuccess
	}
	return s.repo.UpdatePaymentStatus(ctx, sessionID, status)
}

// notify is best effort: failures are logged, never surfaced to the
// caller's transaction.
func (s *Service) notify(ctx context.Context, text string) {
	if err := s.notifier.Notify(ctx, text); err != nil {
		s.log.Error("notify", zap.String("text", text), zap.Error(err))
	}
}
