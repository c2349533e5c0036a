package push

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"

	"campus_realtime/internal/domain"
)

// ErrGone reports that the push service no longer knows the endpoint. The
// subscription should be removed.
var ErrGone = fmt.Errorf("%w: push subscription gone", domain.ErrDeliveryFailure)

// Pusher delivers one payload to one subscription.
type Pusher interface {
	Send(ctx context.Context, sub *domain.PushSubscription, payload []byte) error
}

// Config holds VAPID credentials.
type Config struct {
	PublicKey  string
	PrivateKey string
	Subject    string
	TTL        int
	HTTPClient webpush.HTTPClient
}

// WebPusher sends notifications with the Web Push protocol.
type WebPusher struct {
	cfg    Config
	logger *slog.Logger
}

func NewWebPusher(cfg Config, logger *slog.Logger) *WebPusher {
	return &WebPusher{cfg: cfg, logger: logger.With("component", "push")}
}

var _ Pusher = (*WebPusher)(nil)

func (p *WebPusher) Send(ctx context.Context, sub *domain.PushSubscription, payload []byte) error {
	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			Auth:   sub.Auth,
			P256dh: sub.P256dh,
		},
	}, &webpush.Options{
		HTTPClient:      p.cfg.HTTPClient,
		Subscriber:      p.cfg.Subject,
		VAPIDPublicKey:  p.cfg.PublicKey,
		VAPIDPrivateKey: p.cfg.PrivateKey,
		TTL:             p.cfg.TTL,
		Urgency:         webpush.UrgencyNormal,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrDeliveryFailure, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return classify(resp.StatusCode)
}

func classify(status int) error {
	switch {
	case status == http.StatusNotFound || status == http.StatusGone:
		return ErrGone
	case status >= 400:
		return fmt.Errorf("%w: push service returned %d", domain.ErrDeliveryFailure, status)
	default:
		return nil
	}
}

// IsGone reports whether err means the subscription is permanently gone.
func IsGone(err error) bool {
	return errors.Is(err, ErrGone)
}

// Noop discards every payload. Used when VAPID keys are not configured.
type Noop struct{}

func (Noop) Send(context.Context, *domain.PushSubscription, []byte) error {
	return nil
}

// GenerateVAPIDKeys returns a fresh key pair for deployments without one.
func GenerateVAPIDKeys() (privateKey, publicKey string, err error) {
	return webpush.GenerateVAPIDKeys()
}
