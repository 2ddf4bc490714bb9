package handler_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/akhmetow/borrowing-service/borrowing/internal/errs"
	"github.com/akhmetow/borrowing-service/borrowing/internal/handler"
	service_mocks "github.com/akhmetow/borrowing-service/borrowing/internal/handler/mocks"
	"github.com/akhmetow/borrowing-service/borrowing/internal/model"
	"github.com/akhmetow/borrowing-service/pkg/auth"
	md "github.com/akhmetow/borrowing-service/pkg/middleware"
	"github.com/akhmetow/borrowing-service/pkg/validate"
)

var testIdent = auth.Identity{Username: "ivan", Role: auth.RoleUser}

func newTestRouter(h *handler.Handler) *echo.Echo {
	e := echo.New()
	e.Validator = validate.NewCustomValidator()
	e.POST("/borrowings", h.CreateBorrowing, md.AuthContext)
	e.POST("/borrowings/:borrowingUid/return", h.ReturnBorrowing, md.AuthContext)
	e.POST("/payments/callback", h.PaymentCallback)
	return e
}

func TestHandler_CreateBorrowing(t *testing.T) {
	t.Parallel()
	type response struct {
		expectedCode int
		expectedBody string
	}
	type mockBehavior func(r *service_mocks.MockBorrowingService)

	var tests = []struct {
		name         string
		body         string
		mockBehavior mockBehavior
		response     response
	}{
		{
			name: "ok",
			body: `{"bookUid":"7a5a526d-9166-4808-b941-7a4c91a4571d","expectedReturnDate":"2024-12-10"}`,
			mockBehavior: func(r *service_mocks.MockBorrowingService) {
				r.EXPECT().
					CreateBorrowing(gomock.Any(), testIdent, gomock.Any()).
					Return(model.Borrowing{
						BorrowingUid:       "0cf1e1a0-77c5-4e31-b160-0a06ccfb0f0f",
						BookUid:            "7a5a526d-9166-4808-b941-7a4c91a4571d",
						Username:           "ivan",
						BorrowDate:         date("2024-12-01"),
						ExpectedReturnDate: date("2024-12-10"),
					}, nil)
			},
			response: response{
				expectedCode: http.StatusCreated,
				expectedBody: `{"borrowingUid":"0cf1e1a0-77c5-4e31-b160-0a06ccfb0f0f","bookUid":"7a5a526d-9166-4808-b941-7a4c91a4571d","username":"ivan","borrowDate":"2024-12-01T00:00:00Z","expectedReturnDate":"2024-12-10T00:00:00Z","actualReturnDate":null}`,
			},
		},
		{
			name: "err. no copies left",
			body: `{"bookUid":"7a5a526d-9166-4808-b941-7a4c91a4571d","expectedReturnDate":"2024-12-10"}`,
			mockBehavior: func(r *service_mocks.MockBorrowingService) {
				r.EXPECT().
					CreateBorrowing(gomock.Any(), testIdent, gomock.Any()).
					Return(model.Borrowing{}, errs.ErrBookUnavailable)
			},
			response: response{
				expectedCode: http.StatusConflict,
				expectedBody: `{"message":"book is not available for borrowing"}`,
			},
		},
		{
			name: "err. expected date in the past",
			body: `{"bookUid":"7a5a526d-9166-4808-b941-7a4c91a4571d","expectedReturnDate":"2020-01-01"}`,
			mockBehavior: func(r *service_mocks.MockBorrowingService) {
				r.EXPECT().
					CreateBorrowing(gomock.Any(), testIdent, gomock.Any()).
					Return(model.Borrowing{}, errs.ErrExpectedDate)
			},
			response: response{
				expectedCode: http.StatusBadRequest,
				expectedBody: `{"message":"expectedReturnDate must not be in the past"}`,
			},
		},
		{
			name:         "err. bookUid required",
			body:         `{"expectedReturnDate":"2024-12-10"}`,
			mockBehavior: func(r *service_mocks.MockBorrowingService) {},
			response: response{
				expectedCode: http.StatusBadRequest,
			},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := gomock.NewController(t)
			defer c.Finish()
			svc := service_mocks.NewMockBorrowingService(c)
			tt.mockBehavior(svc)

			h := handler.New(svc, zap.NewExample().Named("test"))
			e := newTestRouter(h)

			r := httptest.NewRequest(http.MethodPost, "/borrowings", strings.NewReader(tt.body))
			r.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			r.Header.Set(auth.XUserNameHeader, testIdent.Username)
			r.Header.Set(auth.XUserRoleHeader, testIdent.Role)
			w := httptest.NewRecorder()

			e.ServeHTTP(w, r)

			require.Equal(t, tt.response.expectedCode, w.Code)
			if tt.response.expectedBody != "" {
				require.Equal(t, tt.response.expectedBody, strings.Trim(w.Body.String(), "\n"))
			}
		})
	}
}

func TestHandler_ReturnBorrowing(t *testing.T) {
	t.Parallel()
	const borrowingUid = "0cf1e1a0-77c5-4e31-b160-0a06ccfb0f0f"
	fine := model.Money{Decimal: decimal.RequireFromString("50.00")}

	type response struct {
		expectedCode int
		expectedBody string
	}
	type mockBehavior func(r *service_mocks.MockBorrowingService)

	var tests = []struct {
		name         string
		body         string
		mockBehavior mockBehavior
		response     response
	}{
		{
			name: "ok with fine",
			mockBehavior: func(r *service_mocks.MockBorrowingService) {
				r.EXPECT().
					ReturnBorrowing(gomock.Any(), testIdent, borrowingUid, gomock.Any()).
					Return(model.ReturnBorrowingResponse{Returned: true, Fine: &fine}, nil)
			},
			response: response{
				expectedCode: http.StatusOK,
				expectedBody: `{"returned":true,"fine":"50.00"}`,
			},
		},
		{
			name: "ok without fine",
			mockBehavior: func(r *service_mocks.MockBorrowingService) {
				r.EXPECT().
					ReturnBorrowing(gomock.Any(), testIdent, borrowingUid, gomock.Any()).
					Return(model.ReturnBorrowingResponse{Returned: true}, nil)
			},
			response: response{
				expectedCode: http.StatusOK,
				expectedBody: `{"returned":true,"fine":null}`,
			},
		},
		{
			name: "ok with return date in the body",
			body: `{"returnDate":"2024-12-15"}`,
			mockBehavior: func(r *service_mocks.MockBorrowingService) {
				r.EXPECT().
					ReturnBorrowing(gomock.Any(), testIdent, borrowingUid, gomock.Any()).
					Return(model.ReturnBorrowingResponse{Returned: true}, nil)
			},
			response: response{
				expectedCode: http.StatusOK,
				expectedBody: `{"returned":true,"fine":null}`,
			},
		},
		{
			name: "err. already returned",
			mockBehavior: func(r *service_mocks.MockBorrowingService) {
				r.EXPECT().
					ReturnBorrowing(gomock.Any(), testIdent, borrowingUid, gomock.Any()).
					Return(model.ReturnBorrowingResponse{}, errs.ErrAlreadyReturned)
			},
			response: response{
				expectedCode: http.StatusConflict,
				expectedBody: `{"message":"borrowing has already been returned"}`,
			},
		},
		{
			name: "err. someone else's borrowing",
			mockBehavior: func(r *service_mocks.MockBorrowingService) {
				r.EXPECT().
					ReturnBorrowing(gomock.Any(), testIdent, borrowingUid, gomock.Any()).
					Return(model.ReturnBorrowingResponse{}, errs.ErrForbidden)
			},
			response: response{
				expectedCode: http.StatusForbidden,
				expectedBody: `{"message":"can only return books borrowed by yourself"}`,
			},
		},
		{
			name: "err. processor is down",
			mockBehavior: func(r *service_mocks.MockBorrowingService) {
				r.EXPECT().
					ReturnBorrowing(gomock.Any(), testIdent, borrowingUid, gomock.Any()).
					Return(model.ReturnBorrowingResponse{}, errs.ErrProcessorUnavailable)
			},
			response: response{
				expectedCode: http.StatusServiceUnavailable,
				expectedBody: `{"message":"payment processor unavailable"}`,
			},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := gomock.NewController(t)
			defer c.Finish()
			svc := service_mocks.NewMockBorrowingService(c)
			tt.mockBehavior(svc)

			h := handler.New(svc, zap.NewExample().Named("test"))
			e := newTestRouter(h)

			// most returns arrive with no body at all
			var rdr io.Reader = http.NoBody
			if tt.body != "" {
				rdr = strings.NewReader(tt.body)
			}
			r := httptest.NewRequest(http.MethodPost, "/borrowings/"+borrowingUid+"/return", rdr)
			r.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			r.Header.Set(auth.XUserNameHeader, testIdent.Username)
			r.Header.Set(auth.XUserRoleHeader, testIdent.Role)
			w := httptest.NewRecorder()

			e.ServeHTTP(w, r)

			require.Equal(t, tt.response.expectedCode, w.Code)
			require.Equal(t, tt.response.expectedBody, strings.Trim(w.Body.String(), "\n"))
		})
	}
}

func TestHandler_PaymentCallback(t *testing.T) {
	t.Parallel()
	type response struct {
		expectedCode int
	}
	type mockBehavior func(r *service_mocks.MockBorrowingService)

	var tests = []struct {
		name         string
		body         string
		mockBehavior mockBehavior
		response     response
	}{
		{
			name: "paid",
			body: `{"sessionId":"sess_1","status":"paid"}`,
			mockBehavior: func(r *service_mocks.MockBorrowingService) {
				r.EXPECT().
					MarkPaymentResult(gomock.Any(), "sess_1", true).
					Return(nil)
			},
			response: response{expectedCode: http.StatusOK},
		},
		{
			name: "failed",
			body: `{"sessionId":"sess_1","status":"failed"}`,
			mockBehavior: func(r *service_mocks.MockBorrowingService) {
				r.EXPECT().
					MarkPaymentResult(gomock.Any(), "sess_1", false).
					Return(nil)
			},
			response: response{expectedCode: http.StatusOK},
		},
		{
			name: "err. unknown session",
			body: `{"sessionId":"sess_404","status":"paid"}`,
			mockBehavior: func(r *service_mocks.MockBorrowingService) {
				r.EXPECT().
					MarkPaymentResult(gomock.Any(), "sess_404", true).
					Return(errs.ErrPaymentNotFound)
			},
			response: response{expectedCode: http.StatusNotFound},
		},
		{
			name:         "err. bad status",
			body:         `{"sessionId":"sess_1","status":"maybe"}`,
			mockBehavior: func(r *service_mocks.MockBorrowingService) {},
			response:     response{expectedCode: http.StatusBadRequest},
		},
		{
			name:         "err. empty session id",
			body:         `{"status":"paid"}`,
			mockBehavior: func(r *service_mocks.MockBorrowingService) {},
			response:     response{expectedCode: http.StatusBadRequest},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := gomock.NewController(t)
			defer c.Finish()
			svc := service_mocks.NewMockBorrowingService(c)
			tt.mockBehavior(svc)

			h := handler.New(svc, zap.NewExample().Named("test"))
			e := newTestRouter(h)

			r := httptest.NewRequest(http.MethodPost, "/payments/callback", strings.NewReader(tt.body))
			r.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			w := httptest.NewRecorder()

			e.ServeHTTP(w, r)

			require.Equal(t, tt.response.expectedCode, w.Code)
		})
	}
}

func date(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}
