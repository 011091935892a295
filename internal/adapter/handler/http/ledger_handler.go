package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	domainErrors "github.com/wekeepgrowing/academy-payments/internal/domain/errors"
	"github.com/wekeepgrowing/academy-payments/internal/domain/model"
	"github.com/wekeepgrowing/academy-payments/internal/domain/repository"
	"github.com/wekeepgrowing/academy-payments/internal/usecase"
)

const defaultStaleAge = 15 * time.Minute

// LedgerReader serves ledger reports
type LedgerReader interface {
	Get(ctx context.Context, id uuid.UUID) (*usecase.LedgerEntryView, error)
	GetByExternalID(ctx context.Context, externalID string) (*usecase.LedgerEntryView, error)
	List(ctx context.Context, query repository.LedgerQuery) (*usecase.LedgerPage, error)
	ListStalePending(ctx context.Context, olderThan time.Duration, limit int) ([]usecase.LedgerEntryView, error)
}

type LedgerHandler struct {
	ledger LedgerReader
	logger *zap.Logger
}

func NewLedgerHandler(ledger LedgerReader, logger *zap.Logger) *LedgerHandler {
	return &LedgerHandler{
		ledger: ledger,
		logger: logger,
	}
}

// GetEntry handles GET /api/v1/ledger/:id
func (h *LedgerHandler) GetEntry(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return domainErrors.NewValidationError("id", "must be a UUID")
	}

	view, err := h.ledger.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

// GetEntryByExternalID handles GET /api/v1/ledger/external/:externalId
func (h *LedgerHandler) GetEntryByExternalID(c echo.Context) error {
	view, err := h.ledger.GetByExternalID(c.Request().Context(), c.Param("externalId"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

// ListEntries handles GET /api/v1/ledger
func (h *LedgerHandler) ListEntries(c echo.Context) error {
	limit, err := intParam(c, "limit")
	if err != nil {
		return err
	}
	offset, err := intParam(c, "offset")
	if err != nil {
		return err
	}

	page, err := h.ledger.List(c.Request().Context(), repository.LedgerQuery{
		BeneficiaryID: c.QueryParam("beneficiary_id"),
		Status:        model.LedgerStatus(c.QueryParam("status")),
		Limit:         limit,
		Offset:        offset,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, page)
}

// ListStalePending handles GET /api/v1/ledger/pending
func (h *LedgerHandler) ListStalePending(c echo.Context) error {
	olderThan := defaultStaleAge
	if raw := c.QueryParam("older_than"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return domainErrors.NewValidationError("older_than", "must be a duration such as 15m")
		}
		olderThan = d
	}
	limit, err := intParam(c, "limit")
	if err != nil {
		return err
	}

	entries, err := h.ledger.ListStalePending(c.Request().Context(), olderThan, limit)
	if err != nil {
		return err
	}

	h.logger.Debug("Listed stale pending entries",
		zap.Duration("older_than", olderThan),
		zap.Int("count", len(entries)))

	return c.JSON(http.StatusOK, echo.Map{
		"entries":    entries,
		"older_than": olderThan.String(),
	})
}

func intParam(c echo.Context, name string) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, domainErrors.NewValidationError(name, "must be a non-negative integer")
	}
	return v, nil
}
