package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/shivang-goliyan/CloudRadius-sub000/internal/aaa"
	"github.com/shivang-goliyan/CloudRadius-sub000/internal/coa"
	"github.com/shivang-goliyan/CloudRadius-sub000/internal/metrics"
	"github.com/shivang-goliyan/CloudRadius-sub000/internal/model"
	"github.com/shivang-goliyan/CloudRadius-sub000/internal/repository"
)

const defaultStaleSessionWindow = 15 * time.Minute

var ErrNasNotFound = errors.New("nas device not found")

type SessionHistoryRequest struct {
	Username     string     `json:"username"`
	NasIPAddress string     `json:"nas_ip_address"`
	From         *time.Time `json:"from,omitempty"`
	To           *time.Time `json:"to,omitempty"`
	Limit        int32      `json:"limit"`
	Offset       int32      `json:"offset"`
}

// SessionService reads the accounting log and pushes session-level control
// packets. The accounting log is written by the RADIUS server, never here,
// except for the stale-session sweep.
type SessionService struct {
	store      *aaa.Store
	nasRepo    repository.NasRepository
	controller *coa.Controller
	logger     *zap.Logger

	staleWindow time.Duration
}

func NewSessionService(
	store *aaa.Store,
	nasRepo repository.NasRepository,
	controller *coa.Controller,
	staleWindow time.Duration,
	logger *zap.Logger,
) *SessionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if staleWindow <= 0 {
		staleWindow = defaultStaleSessionWindow
	}

	return &SessionService{
		store:       store,
		nasRepo:     nasRepo,
		controller:  controller,
		logger:      logger,
		staleWindow: staleWindow,
	}
}

// OnlineUsers returns every open session belonging to the tenant.
func (s *SessionService) OnlineUsers(ctx context.Context, tenant *model.Tenant) ([]aaa.Session, error) {
	sessions, err := s.store.OpenSessionsByPrefix(ctx, aaa.TenantPrefix(tenant.Slug))
	if err != nil {
		return nil, err
	}

	metrics.SetOnlineSessions(tenant.Slug, len(sessions))
	return sessions, nil
}

// SubscriberSessions returns the subscriber's open sessions, one per
// attached device.
func (s *SessionService) SubscriberSessions(ctx context.Context, tenant *model.Tenant, username string) ([]aaa.Session, error) {
	return s.store.OpenSessionsByUser(ctx, aaa.Username(tenant.Slug, username))
}

// History returns a page of past and present sessions for the tenant.
func (s *SessionService) History(ctx context.Context, tenant *model.Tenant, req SessionHistoryRequest) ([]aaa.Session, int64, error) {
	filter := aaa.HistoryFilter{
		UsernamePrefix: aaa.TenantPrefix(tenant.Slug),
		NasIPAddress:   req.NasIPAddress,
		From:           req.From,
		To:             req.To,
		Limit:          req.Limit,
		Offset:         req.Offset,
	}
	if req.Username != "" {
		filter.Username = aaa.Username(tenant.Slug, req.Username)
		filter.UsernamePrefix = ""
	}
	return s.store.SessionHistory(ctx, filter)
}

// Disconnect sends a Disconnect-Request for every open session of the
// subscriber, grouped by the NAS each session is attached to. Unknown NAS
// devices are skipped: without the shared secret no packet can be signed.
func (s *SessionService) Disconnect(ctx context.Context, tenant *model.Tenant, username string) (coa.Result, error) {
	sessions, err := s.SubscriberSessions(ctx, tenant, username)
	if err != nil {
		return coa.Result{}, err
	}

	total := coa.Result{}
	for nasIP, group := range groupByNas(sessions) {
		nas, err := s.nasRepo.FindByIP(ctx, nasIP)
		if err != nil {
			total.Attempted += len(group)
			s.logger.Warn("disconnect skipped, nas unknown",
				zap.String("nas_ip", nasIP),
				zap.Error(err),
			)
			continue
		}

		result := s.controller.DisconnectSessions(ctx, nas, group)
		total.Attempted += result.Attempted
		total.Confirmed += result.Confirmed
		for i := 0; i < result.Confirmed; i++ {
			metrics.IncCoAPacket("disconnect", true)
		}
		for i := 0; i < result.Attempted-result.Confirmed; i++ {
			metrics.IncCoAPacket("disconnect", false)
		}
	}

	return total, nil
}

// PushRateLimit applies a new rate-limit string to the subscriber's open
// sessions without disconnecting them.
func (s *SessionService) PushRateLimit(ctx context.Context, tenant *model.Tenant, username, rateLimit string) (coa.Result, error) {
	sessions, err := s.SubscriberSessions(ctx, tenant, username)
	if err != nil {
		return coa.Result{}, err
	}

	total := coa.Result{}
	for nasIP, group := range groupByNas(sessions) {
		nas, err := s.nasRepo.FindByIP(ctx, nasIP)
		if err != nil {
			total.Attempted += len(group)
			s.logger.Warn("coa skipped, nas unknown",
				zap.String("nas_ip", nasIP),
				zap.Error(err),
			)
			continue
		}

		result := s.controller.ChangeSessionsRateLimit(ctx, nas, group, rateLimit)
		total.Attempted += result.Attempted
		total.Confirmed += result.Confirmed
		for i := 0; i < result.Confirmed; i++ {
			metrics.IncCoAPacket("coa", true)
		}
		for i := 0; i < result.Attempted-result.Confirmed; i++ {
			metrics.IncCoAPacket("coa", false)
		}
	}

	return total, nil
}

// CloseStale writes synthetic stop times on sessions whose last interim
// update is older than the staleness window.
func (s *SessionService) CloseStale(ctx context.Context) (int64, error) {
	closed, err := s.store.CloseStaleSessions(ctx, "", s.staleWindow)
	if err != nil {
		return 0, err
	}

	if closed > 0 {
		metrics.AddStaleSessionsClosed(closed)
		s.logger.Info("closed stale sessions", zap.Int64("count", closed))
	}
	return closed, nil
}

func groupByNas(sessions []aaa.Session) map[string][]aaa.Session {
	grouped := make(map[string][]aaa.Session, 2)
	for _, session := range sessions {
		grouped[session.NasIPAddress] = append(grouped[session.NasIPAddress], session)
	}
	return grouped
}
