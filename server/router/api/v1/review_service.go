package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/recall/server/internal/errors"
	"github.com/hrygo/recall/server/service/review"
)

// DefaultDueLimit is the queue size when the client does not ask for one.
const DefaultDueLimit = 20

// GetOrCreateItem returns the caller's item for a content reference.
// POST /api/v1/items
func (s *APIV1Service) GetOrCreateItem(c echo.Context) error {
	var req CreateItemRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, errors.InvalidArgument("invalid request body"))
	}
	item, created, err := s.ReviewService.GetOrCreateItem(c.Request().Context(), ownerID(c), req.ContentRef)
	if err != nil {
		return writeError(c, err)
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	return c.JSON(status, CreateItemResponse{Item: convertItem(item), Created: created})
}

// GET /api/v1/items/:id
func (s *APIV1Service) GetItem(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	item, err := s.ReviewService.GetItem(c.Request().Context(), ownerID(c), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, convertItem(item))
}

// DELETE /api/v1/items/:id
func (s *APIV1Service) DeleteItem(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	if err := s.ReviewService.DeleteItem(c.Request().Context(), ownerID(c), id); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// GET /api/v1/items/:id/history
func (s *APIV1Service) ListHistory(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	events, err := s.ReviewService.ListHistory(c.Request().Context(), ownerID(c), id)
	if err != nil {
		return writeError(c, err)
	}
	resp := make([]*EventResponse, 0, len(events))
	for _, e := range events {
		resp = append(resp, convertEvent(e))
	}
	return c.JSON(http.StatusOK, resp)
}

// PreviewReview shows what every grade would do to the item.
// GET /api/v1/items/:id/preview
func (s *APIV1Service) PreviewReview(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	outcomes, err := s.ReviewService.PreviewReview(c.Request().Context(), ownerID(c), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, PreviewResponse{Outcomes: outcomes})
}

// SubmitReview grades an item.
// POST /api/v1/items/:id/reviews
func (s *APIV1Service) SubmitReview(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	var req SubmitReviewRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, errors.InvalidArgument("invalid request body"))
	}
	if req.Grade == nil {
		return writeError(c, errors.InvalidArgument("grade is required"))
	}

	result, err := s.ReviewService.SubmitReview(c.Request().Context(), &review.SubmitReviewRequest{
		ItemID:            id,
		OwnerID:           ownerID(c),
		Grade:             *req.Grade,
		ResponseLatencyMs: req.ResponseLatencyMs,
		ExpectedVersion:   req.ExpectedVersion,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, SubmitReviewResponse{
		Item:     convertItem(result.Item),
		Event:    convertEvent(result.Event),
		Clamps:   result.Clamps,
		Attempts: result.Attempts,
	})
}

// GetDueItems returns the caller's review queue.
// GET /api/v1/reviews/due?limit=
func (s *APIV1Service) GetDueItems(c echo.Context) error {
	limit, err := queryInt(c, "limit", DefaultDueLimit)
	if err != nil {
		return writeError(c, err)
	}
	queue, err := s.ReviewService.GetDueItems(c.Request().Context(), ownerID(c), limit)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, convertDueQueue(queue))
}
