package handler

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/akhmetow/borrowing-service/borrowing/internal/errs"
	"github.com/akhmetow/borrowing-service/borrowing/internal/model"
	"github.com/akhmetow/borrowing-service/pkg/auth"
	md "github.com/akhmetow/borrowing-service/pkg/middleware"
	"github.com/akhmetow/borrowing-service/pkg/validate"
)

type Handler struct {
	borrowingSvc BorrowingService
	log          *zap.Logger
}

func New(borrowingSvc BorrowingService, log *zap.Logger) *Handler {
	return &Handler{
		borrowingSvc: borrowingSvc,
		log:          log,
	}
}

func (h *Handler) NewRouter() *echo.Echo {
	e := echo.New()
	const (
		baseRPS = 10
		apiRPS  = 100
	)
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 4 << 10, // 4 KB
	}))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{http.MethodGet, http.MethodOptions, http.MethodHead, http.MethodPut, http.MethodPatch, http.MethodPost, http.MethodDelete},
		AllowCredentials: true,
	}))

	base := e.Group("", md.NewRateLimiter(baseRPS))
	base.GET("/manage/health", h.Health)

	e.Validator = validate.NewCustomValidator()
	api := e.Group("/api/v1",
		middleware.RequestLoggerWithConfig(md.RequestLoggerConfig()),
		middleware.RequestID(),
		md.NewRateLimiter(apiRPS),
	)

	api.GET("/books", h.ListBooks)
	api.GET("/books/:bookUid", h.GetBook)

	// processor callback carries no user identity
	api.POST("/payments/callback", h.PaymentCallback)

	authed := api.Group("", md.AuthContext)
	authed.POST("/borrowings", h.CreateBorrowing)
	authed.GET("/borrowings", h.ListBorrowings)
	authed.GET("/borrowings/:borrowingUid", h.GetBorrowing)
	authed.POST("/borrowings/:borrowingUid/return", h.ReturnBorrowing)

	authed.GET("/payments", h.ListPayments)
	authed.GET("/payments/:paymentUid", h.GetPayment)

	return e
}

func (h *Handler) Health(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

func (h *Handler) ListBooks(c echo.Context) error {
	books, err := h.borrowingSvc.ListBooks(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, books)
}

func (h *Handler) GetBook(c echo.Context) error {
	bookUid := c.Param("bookUid")
	book, err := h.borrowingSvc.GetBook(c.Request().Context(), bookUid)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, book)
}

func (h *Handler) CreateBorrowing(c echo.Context) error {
	ctx := c.Request().Context()
	ident, ok := auth.FromContext(ctx)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "no identity")
	}

	var req model.CreateBorrowingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	b, err := h.borrowingSvc.CreateBorrowing(ctx, ident, req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, b)
}

func (h *Handler) GetBorrowing(c echo.Context) error {
	ctx := c.Request().Context()
	ident, ok := auth.FromContext(ctx)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "no identity")
	}
	borrowingUid := c.Param("borrowingUid")

	b, err := h.borrowingSvc.GetBorrowing(ctx, ident, borrowingUid)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) ListBorrowings(c echo.Context) error {
	ctx := c.Request().Context()
	ident, ok := auth.FromContext(ctx)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "no identity")
	}

	var f model.BorrowingsFilter
	f.Username = c.QueryParam("username")
	if isActiveParam := c.QueryParam("isActive"); isActiveParam != "" {
		isActive, err := strconv.ParseBool(isActiveParam)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "isActive is invalid")
		}
		f.IsActive = &isActive
	}

	items, err := h.borrowingSvc.ListBorrowings(ctx, ident, f)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) ReturnBorrowing(c echo.Context) error {
	ctx := c.Request().Context()
	ident, ok := auth.FromContext(ctx)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "no identity")
	}
	borrowingUid := c.Param("borrowingUid")
	if borrowingUid == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "borrowingUid is empty")
	}

	// the body is optional, a bare POST returns today
	var req model.ReturnBorrowingRequest
	if err := c.Bind(&req); err != nil && !errors.Is(err, io.EOF) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	returnDate := time.Now().UTC()
	if req.ReturnDate != nil && ident.IsAdmin() {
		returnDate = req.ReturnDate.Time
	}

	resp, err := h.borrowingSvc.ReturnBorrowing(ctx, ident, borrowingUid, returnDate)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) ListPayments(c echo.Context) error {
	ctx := c.Request().Context()
	ident, ok := auth.FromContext(ctx)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "no identity")
	}
	items, err := h.borrowingSvc.ListPayments(ctx, ident)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) GetPayment(c echo.Context) error {
	ctx := c.Request().Context()
	ident, ok := auth.FromContext(ctx)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "no identity")
	}
	p, err := h.borrowingSvc.GetPayment(ctx, ident, c.Param("paymentUid"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) PaymentCallback(c echo.Context) error {
	var msg model.PaymentResultMessage
	if err := c.Bind(&msg); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if msg.SessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "sessionId is empty")
	}
	if msg.Status != model.SessionStatusPaid && msg.Status != model.SessionStatusFailed {
		return echo.NewHTTPError(http.StatusBadRequest, "status must be paid or failed")
	}

	err := h.borrowingSvc.MarkPaymentResult(c.Request().Context(), msg.SessionID, msg.Status == model.SessionStatusPaid)
	if err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusOK)
}

func httpError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, errs.ErrBookNotFound),
		errors.Is(err, errs.ErrBorrowingNotFound),
		errors.Is(err, errs.ErrPaymentNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, errs.ErrBookUnavailable),
		errors.Is(err, errs.ErrAlreadyReturned):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, errs.ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, errs.ErrExpectedDate):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, errs.ErrProcessorUnavailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
