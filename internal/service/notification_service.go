package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shivang-goliyan/CloudRadius-sub000/internal/event"
	"github.com/shivang-goliyan/CloudRadius-sub000/internal/metrics"
	"github.com/shivang-goliyan/CloudRadius-sub000/internal/model"
	"github.com/shivang-goliyan/CloudRadius-sub000/internal/repository"
	tplfs "github.com/shivang-goliyan/CloudRadius-sub000/templates"
)

type NotificationTemplate string

const (
	NotificationExpiryReminder    NotificationTemplate = "expiry_reminder"
	NotificationAutoRenewed       NotificationTemplate = "auto_renewed"
	NotificationSubscriberExpired NotificationTemplate = "subscriber_expired"
)

var notificationTemplateFiles = map[NotificationTemplate]string{
	NotificationExpiryReminder:    "notifications/expiry_reminder.tmpl",
	NotificationAutoRenewed:       "notifications/auto_renewed.tmpl",
	NotificationSubscriberExpired: "notifications/subscriber_expired.tmpl",
}

// maxInFlightSends caps concurrent deliveries so a burst of expiring
// subscribers cannot flood the delivery channel.
const maxInFlightSends = 5

// Sender delivers one rendered message to a subscriber's contact address
// (SMS gateway, email relay, messaging webhook).
type Sender interface {
	Send(ctx context.Context, recipient, text string) error
}

type NotificationService struct {
	subRepo    repository.SubscriberRepository
	tenantRepo repository.TenantRepository
	planRepo   repository.PlanRepository
	sender     Sender
	logger     *zap.Logger

	templateMu sync.RWMutex
	templates  map[NotificationTemplate]*template.Template
	sem        chan struct{}
}

func NewNotificationService(
	subRepo repository.SubscriberRepository,
	tenantRepo repository.TenantRepository,
	planRepo repository.PlanRepository,
	sender Sender,
	logger *zap.Logger,
) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &NotificationService{
		subRepo:    subRepo,
		tenantRepo: tenantRepo,
		planRepo:   planRepo,
		sender:     sender,
		logger:     logger,
		templates:  make(map[NotificationTemplate]*template.Template),
		sem:        make(chan struct{}, maxInFlightSends),
	}
}

// SubscribeTo wires the dispatcher onto the event bus. Lifecycle events
// become rendered messages without the billing job knowing how delivery
// works.
func (s *NotificationService) SubscribeTo(bus *event.Bus) {
	if bus == nil {
		return
	}

	bus.Subscribe(event.EventSubscriberExpiring, func(payload any) {
		typed, ok := payload.(event.SubscriberExpiringPayload)
		if !ok {
			return
		}
		vars := map[string]string{
			"days_left":  strconv.Itoa(typed.DaysLeft),
			"expires_at": typed.ExpiresAt.Format("2006-01-02"),
		}
		s.notifySubscriber(typed.SubscriberID, NotificationExpiryReminder, vars)
	})

	bus.Subscribe(event.EventSubscriberRenewed, func(payload any) {
		typed, ok := payload.(event.SubscriberRenewedPayload)
		if !ok || typed.Charged == 0 {
			return
		}
		vars := map[string]string{
			"expires_at": typed.NewExpiry.Format("2006-01-02"),
			"charged_raw": strconv.FormatInt(typed.Charged, 10),
		}
		s.notifySubscriber(typed.SubscriberID, NotificationAutoRenewed, vars)
	})

	bus.Subscribe(event.EventSubscriberExpired, func(payload any) {
		typed, ok := payload.(event.SubscriberExpiredPayload)
		if !ok {
			return
		}
		s.notifySubscriber(typed.SubscriberID, NotificationSubscriberExpired, nil)
	})
}

func (s *NotificationService) notifySubscriber(subscriberID string, templateName NotificationTemplate, vars map[string]string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.SendToSubscriber(ctx, subscriberID, templateName, vars); err != nil {
		s.logger.Warn("dispatch notification failed",
			zap.String("subscriber_id", subscriberID),
			zap.String("template", string(templateName)),
			zap.Error(err),
		)
	}
}

// SendToSubscriber renders the template with the subscriber's context and
// hands it to the sender asynchronously. Subscribers without a phone on
// file are silently skipped.
func (s *NotificationService) SendToSubscriber(
	ctx context.Context,
	subscriberID string,
	templateName NotificationTemplate,
	vars map[string]string,
) error {
	if s.sender == nil {
		return nil
	}

	id, err := uuid.Parse(strings.TrimSpace(subscriberID))
	if err != nil {
		return ErrInvalidSubscriberID
	}

	sub, err := s.subRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrSubscriberNotFound
		}
		return err
	}

	if sub.Phone == nil || strings.TrimSpace(*sub.Phone) == "" {
		return nil
	}

	payload := cloneStringMap(vars)
	payload["name"] = displayName(sub)
	payload["balance"] = strconv.FormatInt(sub.Balance, 10)

	tenant, err := s.tenantRepo.FindByID(ctx, sub.TenantID)
	if err == nil {
		payload["tenant"] = tenant.Name
		payload["balance"] = formatAmount(sub.Balance, tenant.Currency)
		if raw, ok := payload["charged_raw"]; ok {
			if charged, parseErr := strconv.ParseInt(raw, 10, 64); parseErr == nil {
				payload["charged"] = formatAmount(charged, tenant.Currency)
			}
			delete(payload, "charged_raw")
		}
	}

	if sub.PlanID != nil {
		if plan, planErr := s.planRepo.FindByID(ctx, *sub.PlanID); planErr == nil {
			payload["plan"] = plan.Name
		}
	}
	if _, ok := payload["plan"]; !ok {
		payload["plan"] = "your plan"
	}

	text, err := s.renderTemplate(templateName, payload)
	if err != nil {
		return err
	}

	s.sendAsyncWithRetry(strings.TrimSpace(*sub.Phone), text, templateName)
	return nil
}

func (s *NotificationService) sendAsyncWithRetry(recipient, text string, templateName NotificationTemplate) {
	s.sem <- struct{}{}
	go func() {
		defer func() { <-s.sem }()

		retryDelays := []time.Duration{0, 5 * time.Second, 15 * time.Second, 60 * time.Second}
		var sendErr error
		for i, delay := range retryDelays {
			if i > 0 {
				time.Sleep(delay)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			sendErr = s.sender.Send(ctx, recipient, text)
			cancel()
			if sendErr == nil {
				metrics.IncNotification(string(templateName), true)
				return
			}
		}

		metrics.IncNotification(string(templateName), false)
		s.logger.Error("send notification failed",
			zap.String("template", string(templateName)),
			zap.Error(sendErr),
		)
	}()
}

func (s *NotificationService) renderTemplate(templateName NotificationTemplate, vars map[string]string) (string, error) {
	tpl, err := s.loadTemplate(templateName)
	if err != nil {
		return "", err
	}

	buf := bytes.NewBuffer(nil)
	if err := tpl.Execute(buf, vars); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (s *NotificationService) loadTemplate(name NotificationTemplate) (*template.Template, error) {
	s.templateMu.RLock()
	if tpl, ok := s.templates[name]; ok {
		s.templateMu.RUnlock()
		return tpl, nil
	}
	s.templateMu.RUnlock()

	file, ok := notificationTemplateFiles[name]
	if !ok {
		return nil, fmt.Errorf("notification template not found: %s", name)
	}

	raw, err := tplfs.NotificationTemplateFS.ReadFile(file)
	if err != nil {
		return nil, err
	}

	tpl, err := template.New(file).Parse(string(raw))
	if err != nil {
		return nil, err
	}

	s.templateMu.Lock()
	s.templates[name] = tpl
	s.templateMu.Unlock()
	return tpl, nil
}

func displayName(sub *model.Subscriber) string {
	if sub.FullName != nil && strings.TrimSpace(*sub.FullName) != "" {
		return strings.TrimSpace(*sub.FullName)
	}
	return sub.Username
}

func cloneStringMap(in map[string]string) map[string]string {
	out := make(map[string]string, len(in)+4)
	for k, v := range in {
		out[k] = v
	}
	return out
}
