package notification

import (
	"context"

	"licensing-controlplane/pkg/config"
	applog "licensing-controlplane/pkg/logger"
	"licensing-controlplane/pkg/mailer"
	"licensing-controlplane/services/license"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// LicenseSource yields the subscription licenses a sweep works on, with
// client and system loaded.
type LicenseSource interface {
	FindSubscriptions(ctx context.Context, status license.Status) ([]*license.License, error)
}

//go:generate mockgen -destination=mock/dispatcher.go -package=mock . Dispatcher

type Dispatcher interface {
	Send(ctx context.Context, msg *mailer.Message) error
}

type Service struct {
	licenses   LicenseSource
	dispatcher Dispatcher
	renderer   *Renderer
	routing    Routing
}

type ServiceParams struct {
	fx.In
	Config     *config.Config
	Licenses   LicenseSource
	Dispatcher Dispatcher
}

func NewService(p ServiceParams) (*Service, error) {
	renderer, err := NewRenderer(p.Config.Notification.SenderName, p.Config.Notification.CompanyName)
	if err != nil {
		return nil, err
	}
	return &Service{
		licenses:   p.Licenses,
		dispatcher: p.Dispatcher,
		renderer:   renderer,
		routing:    RoutingFromConfig(p.Config),
	}, nil
}

// ExpiredSweep notifies about every expired subscription. Licenses of the
// internal category go to the admin address, the rest to the client.
func (s *Service) ExpiredSweep(ctx context.Context) (*SweepResult, error) {
	return s.sweep(ctx, KindExpired, license.StatusExpired, func(*license.License) bool { return true })
}

// PendingSweep warns clients whose subscription enters the renewal window.
// Internal category licenses are not part of this sweep.
func (s *Service) PendingSweep(ctx context.Context) (*SweepResult, error) {
	return s.sweep(ctx, KindPending, license.StatusPendingRenewal, func(l *license.License) bool {
		return !s.routing.IsInternal(l)
	})
}

func (s *Service) sweep(ctx context.Context, kind Kind, status license.Status, include func(*license.License) bool) (*SweepResult, error) {
	zapLog := applog.FromContext(ctx).With(zap.String("sweep", string(kind)))
	res := &SweepResult{Kind: kind}

	licenses, err := s.licenses.FindSubscriptions(ctx, status)
	if err != nil {
		zapLog.Error("failed to load licenses", zap.Error(err))
		return nil, err
	}

	for _, l := range licenses {
		if !include(l) {
			continue
		}
		res.Found++

		if err := ctx.Err(); err != nil {
			return res, err
		}

		fields := []zap.Field{
			zap.String("license_id", l.ID),
			zap.String("identifier", l.Identifier),
			zap.String("client_key", l.ClientKey),
		}

		rcpt, err := s.routing.Resolve(l)
		if err != nil {
			res.Skipped++
			zapLog.Error("no recipient for license notice, skipping", append(fields, zap.Error(err))...)
			continue
		}

		msg, err := s.renderer.Render(kind, rcpt, l)
		if err != nil {
			res.Failed++
			zapLog.Error("failed to render license notice", append(fields, zap.Error(err))...)
			continue
		}

		if err := s.dispatcher.Send(ctx, msg); err != nil {
			res.Failed++
			zapLog.Error("failed to send license notice", append(fields, zap.String("to", rcpt.Address), zap.Error(err))...)
			continue
		}

		res.Sent++
		zapLog.Info("license notice sent", append(fields,
			zap.String("to", rcpt.Address),
			zap.String("audience", string(rcpt.Audience)),
		)...)
	}

	zapLog.Info("sweep finished",
		zap.Int("found", res.Found),
		zap.Int("sent", res.Sent),
		zap.Int("skipped", res.Skipped),
		zap.Int("failed", res.Failed),
	)
	return res, nil
}
