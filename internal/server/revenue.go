package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/levy/internal/period"
)

// periodOptionsResponse sets FreeDate for daily schedules, which accept any
// calendar date instead of a fixed list.
type periodOptionsResponse struct {
	ScheduleID string   `json:"schedule_id"`
	Recurrence string   `json:"recurrence"`
	AsOf       string   `json:"as_of"`
	Periods    []string `json:"periods"`
	FreeDate   bool     `json:"free_date"`
}

func (s *Server) ListRevenueTypes(c *gin.Context) {
	schedules, err := s.revenueSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": schedules})
}

func (s *Server) ListPeriods(c *gin.Context) {
	id, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrNotFound)
		return
	}

	asOf, err := period.ParseDate(strings.TrimSpace(c.Query("as_of")), s.clock.Now())
	if err != nil {
		AbortWithError(c, newValidationError("as_of", "invalid_as_of", "as_of must be YYYY-MM-DD"))
		return
	}

	schedule, err := s.revenueSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	refs, err := period.Resolve(schedule.Recurrence, asOf)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": periodOptionsResponse{
		ScheduleID: schedule.ID.String(),
		Recurrence: string(schedule.Recurrence),
		AsOf:       asOf.Format(dateOnlyLayout),
		Periods:    refs,
		FreeDate:   len(refs) == 0,
	}})
}
