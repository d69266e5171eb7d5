package v1

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/recall/server/internal/errors"
)

// POST /api/v1/groups
func (s *APIV1Service) CreateGroup(c echo.Context) error {
	var req CreateGroupRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, errors.InvalidArgument("invalid request body"))
	}
	group, err := s.ReviewService.CreateGroup(c.Request().Context(), ownerID(c), req.Name)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, convertGroup(group))
}

// DeleteGroup removes a group; members are kept unless cascade=true.
// DELETE /api/v1/groups/:id?cascade=
func (s *APIV1Service) DeleteGroup(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	cascade := false
	if raw := c.QueryParam("cascade"); raw != "" {
		cascade, err = strconv.ParseBool(raw)
		if err != nil {
			return writeError(c, errors.InvalidArgument("cascade must be a boolean"))
		}
	}
	if err := s.ReviewService.DeleteGroup(c.Request().Context(), ownerID(c), id, cascade); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// POST /api/v1/groups/:id/items/:itemId
func (s *APIV1Service) AddToGroup(c echo.Context) error {
	groupID, itemID, err := groupItemIDs(c)
	if err != nil {
		return writeError(c, err)
	}
	item, err := s.ReviewService.AddToGroup(c.Request().Context(), ownerID(c), groupID, itemID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, convertItem(item))
}

// DELETE /api/v1/groups/:id/items/:itemId
func (s *APIV1Service) RemoveFromGroup(c echo.Context) error {
	groupID, itemID, err := groupItemIDs(c)
	if err != nil {
		return writeError(c, err)
	}
	item, err := s.ReviewService.RemoveFromGroup(c.Request().Context(), ownerID(c), groupID, itemID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, convertItem(item))
}

// GetGroupStatistics returns the mastery distribution of a group.
// GET /api/v1/groups/:id/statistics
func (s *APIV1Service) GetGroupStatistics(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	snapshot, err := s.Aggregator.GetGroupStatistics(c.Request().Context(), ownerID(c), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, snapshot)
}

func groupItemIDs(c echo.Context) (int32, int32, error) {
	groupID, err := pathID(c, "id")
	if err != nil {
		return 0, 0, err
	}
	itemID, err := pathID(c, "itemId")
	if err != nil {
		return 0, 0, err
	}
	return groupID, itemID, nil
}
