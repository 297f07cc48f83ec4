package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/shivang-goliyan/CloudRadius-sub000/internal/metrics"
	"github.com/shivang-goliyan/CloudRadius-sub000/internal/model"
	"github.com/shivang-goliyan/CloudRadius-sub000/internal/provision"
	"github.com/shivang-goliyan/CloudRadius-sub000/internal/repository"
)

const nasDefaultCoAPort = 3799

var (
	ErrInvalidNasID    = errors.New("invalid nas id")
	ErrInvalidNasInput = errors.New("invalid nas input")
	ErrNasIPTaken      = errors.New("nas ip address already registered")
)

type CreateNasRequest struct {
	Name        string  `json:"name"`
	IPAddress   string  `json:"ip_address"`
	Secret      string  `json:"secret"`
	Vendor      string  `json:"vendor"`
	CoAPort     int     `json:"coa_port"`
	Description *string `json:"description"`
}

type UpdateNasRequest struct {
	Name        *string `json:"name"`
	Secret      *string `json:"secret"`
	Vendor      *string `json:"vendor"`
	CoAPort     *int    `json:"coa_port"`
	Description *string `json:"description"`
}

type NasService struct {
	nasRepo   repository.NasRepository
	auditRepo repository.AuditRepository
	engine    *provision.Engine
	outbox    *provision.Outbox
	logger    *zap.Logger
}

func NewNasService(
	nasRepo repository.NasRepository,
	auditRepo repository.AuditRepository,
	engine *provision.Engine,
	outbox *provision.Outbox,
	logger *zap.Logger,
) *NasService {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &NasService{
		nasRepo:   nasRepo,
		auditRepo: auditRepo,
		engine:    engine,
		outbox:    outbox,
		logger:    logger,
	}
}

// Create registers a NAS device. When no shared secret is supplied one is
// generated; the response is the only time the caller sees it in clear.
func (s *NasService) Create(ctx context.Context, operatorID string, tenant *model.Tenant, req CreateNasRequest) (*model.NasDevice, error) {
	name := strings.TrimSpace(req.Name)
	ip := strings.TrimSpace(req.IPAddress)
	if name == "" || net.ParseIP(ip) == nil {
		return nil, ErrInvalidNasInput
	}

	secret := strings.TrimSpace(req.Secret)
	if secret == "" {
		generated, err := generateSecret(16)
		if err != nil {
			return nil, err
		}
		secret = generated
	}

	vendor := strings.ToLower(strings.TrimSpace(req.Vendor))
	if vendor == "" {
		vendor = "mikrotik"
	}

	coaPort := req.CoAPort
	if coaPort <= 0 {
		coaPort = nasDefaultCoAPort
	}

	nas := &model.NasDevice{
		ID:          uuid.New(),
		TenantID:    tenant.ID,
		Name:        name,
		IPAddress:   ip,
		Secret:      secret,
		Vendor:      vendor,
		CoAPort:     coaPort,
		Description: req.Description,
	}

	if err := s.nasRepo.Create(ctx, nas); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrNasIPTaken
		}
		return nil, err
	}

	s.syncDevice(ctx, tenant, nas)

	writeAudit(ctx, s.auditRepo, s.logger, operatorID, &tenant.ID, "nas.create", "nas", nas.ID.String(), nil, map[string]interface{}{
		"name":       nas.Name,
		"ip_address": nas.IPAddress,
		"vendor":     nas.Vendor,
	})

	return nas, nil
}

func (s *NasService) Get(ctx context.Context, tenant *model.Tenant, nasID string) (*model.NasDevice, error) {
	id, err := uuid.Parse(strings.TrimSpace(nasID))
	if err != nil {
		return nil, ErrInvalidNasID
	}

	nas, err := s.nasRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNasNotFound
		}
		return nil, err
	}
	if nas.TenantID != tenant.ID {
		return nil, ErrNasNotFound
	}
	return nas, nil
}

func (s *NasService) List(ctx context.Context, tenant *model.Tenant) ([]*model.NasDevice, error) {
	return s.nasRepo.ListByTenant(ctx, tenant.ID)
}

func (s *NasService) Update(ctx context.Context, operatorID string, tenant *model.Tenant, nasID string, req UpdateNasRequest) (*model.NasDevice, error) {
	nas, err := s.Get(ctx, tenant, nasID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			return nil, ErrInvalidNasInput
		}
		nas.Name = strings.TrimSpace(*req.Name)
	}
	if req.Secret != nil {
		if strings.TrimSpace(*req.Secret) == "" {
			return nil, ErrInvalidNasInput
		}
		nas.Secret = strings.TrimSpace(*req.Secret)
	}
	if req.Vendor != nil {
		nas.Vendor = strings.ToLower(strings.TrimSpace(*req.Vendor))
	}
	if req.CoAPort != nil {
		if *req.CoAPort <= 0 || *req.CoAPort > 65535 {
			return nil, ErrInvalidNasInput
		}
		nas.CoAPort = *req.CoAPort
	}
	if req.Description != nil {
		nas.Description = req.Description
	}

	if err := s.nasRepo.Update(ctx, nas); err != nil {
		return nil, err
	}

	s.syncDevice(ctx, tenant, nas)

	writeAudit(ctx, s.auditRepo, s.logger, operatorID, &tenant.ID, "nas.update", "nas", nas.ID.String(), nil, map[string]interface{}{
		"name":   nas.Name,
		"vendor": nas.Vendor,
	})

	return nas, nil
}

func (s *NasService) Delete(ctx context.Context, operatorID string, tenant *model.Tenant, nasID string) error {
	nas, err := s.Get(ctx, tenant, nasID)
	if err != nil {
		return err
	}

	if err := s.engine.RemoveNasDevice(ctx, nas.IPAddress); err != nil {
		metrics.IncProvisionSyncError(provision.OpNasRemove)
		s.logger.Error("nas registration removal failed",
			zap.String("nas_ip", nas.IPAddress),
			zap.Error(err),
		)
		if s.outbox != nil {
			ip := nas.IPAddress
			if qErr := s.outbox.Enqueue(ctx, tenant.ID, provision.OpNasRemove, nil, &ip, err); qErr != nil {
				s.logger.Error("enqueue provisioning retry failed", zap.Error(qErr))
			}
		}
	}

	if err := s.nasRepo.Delete(ctx, nas.ID); err != nil {
		return err
	}

	writeAudit(ctx, s.auditRepo, s.logger, operatorID, &tenant.ID, "nas.delete", "nas", nas.ID.String(), map[string]interface{}{
		"name":       nas.Name,
		"ip_address": nas.IPAddress,
	}, nil)

	return nil
}

func (s *NasService) syncDevice(ctx context.Context, tenant *model.Tenant, nas *model.NasDevice) {
	start := time.Now()
	if err := s.engine.SyncNasDevice(ctx, nas); err != nil {
		metrics.IncProvisionSyncError(provision.OpNasSync)
		s.logger.Error("nas registration sync failed",
			zap.String("nas_ip", nas.IPAddress),
			zap.Error(err),
		)
		if s.outbox != nil {
			if qErr := s.outbox.Enqueue(ctx, tenant.ID, provision.OpNasSync, &nas.ID, nil, err); qErr != nil {
				s.logger.Error("enqueue provisioning retry failed", zap.Error(qErr))
			}
		}
		return
	}
	metrics.ObserveProvisionSync(provision.OpNasSync, time.Since(start))
}

func generateSecret(bytes int) (string, error) {
	buf := make([]byte, bytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
