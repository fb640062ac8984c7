// Package stats computes the admin dashboard summary.
package stats

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/aura-events/backend/internal/apperr"
	"github.com/aura-events/backend/internal/middleware"
	"github.com/aura-events/backend/internal/models"
	"github.com/aura-events/backend/internal/store"
	"github.com/aura-events/backend/pkg/response"
)

const (
	// PopularLimit is the number of events in the popular list.
	PopularLimit = 5
	// OrganizerLimit is the number of organizers in the most active list.
	OrganizerLimit = 5
)

// Service reads platform statistics.
type Service struct {
	store  store.Reader
	logger *zap.Logger
}

// NewService creates a stats service.
func NewService(st store.Reader, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: st, logger: logger}
}

// Summary returns event counts per state, reservation totals, the average number of
// reservations per event that has any, the most booked approved events, user counts per
// role and the organizers with the most events.
func (s *Service) Summary(ctx context.Context, actor models.Actor) (*models.Stats, error) {
	if !actor.Is(models.RoleAdmin) {
		return nil, apperr.New(apperr.CodeForbidden, "only administrators can view statistics")
	}
	var (
		byState        map[models.ModerationState]int
		total, withRes int
		popular        []models.EventView
		byRole         map[models.Role]int
		organizers     []models.OrganizerActivity
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		byState, err = s.store.EventsByState(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		total, withRes, err = s.store.ReservationTotals(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		popular, err = s.store.PopularEvents(gctx, PopularLimit)
		return err
	})
	g.Go(func() error {
		var err error
		byRole, err = s.store.UsersByRole(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		organizers, err = s.store.ActiveOrganizers(gctx, OrganizerLimit)
		return err
	})
	if err := g.Wait(); err != nil {
		s.logger.Error("stats query failed", zap.Error(err))
		return nil, apperr.Storage(err)
	}

	out := &models.Stats{
		EventsByState:     make(map[models.ModerationState]int, 3),
		TotalReservations: total,
		PopularEvents:     popular,
		UsersByRole:       make(map[models.Role]int, 3),
		ActiveOrganizers:  organizers,
	}
	for _, st := range []models.ModerationState{models.StatePending, models.StateApproved, models.StateRejected} {
		out.EventsByState[st] = byState[st]
		out.TotalEvents += byState[st]
	}
	for _, r := range []models.Role{models.RoleOrganizer, models.RoleAttendee, models.RoleAdmin} {
		out.UsersByRole[r] = byRole[r]
		out.TotalUsers += byRole[r]
	}
	if withRes > 0 {
		out.AvgReservationsPerEvent = float64(total) / float64(withRes)
	}
	if out.PopularEvents == nil {
		out.PopularEvents = []models.EventView{}
	}
	if out.ActiveOrganizers == nil {
		out.ActiveOrganizers = []models.OrganizerActivity{}
	}
	return out, nil
}

// Handler serves GET /admin/stats.
type Handler struct {
	svc *Service
}

// NewHandler creates a stats handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Summary handles GET /admin/stats.
func (h *Handler) Summary(c *gin.Context) {
	actor, ok := middleware.MustActor(c)
	if !ok {
		return
	}
	out, err := h.svc.Summary(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, out)
}
