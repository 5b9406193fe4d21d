package services

import (
	"context"
	"fmt"
	"log/slog"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// Notification is a push message for one device.
type Notification struct {
	Title string
	Body  string
	Data  map[string]string
	Tag   string
}

// Pusher delivers push notifications to device tokens.
type Pusher interface {
	Push(ctx context.Context, token string, n Notification) error
}

// FCMPusher sends through Firebase Cloud Messaging.
type FCMPusher struct {
	client *messaging.Client
	log    *slog.Logger
}

// NewFCMPusher returns nil when no service account is configured; callers
// treat a nil Pusher as push disabled.
func NewFCMPusher(ctx context.Context, serviceAccountPath string, log *slog.Logger) (*FCMPusher, error) {
	if serviceAccountPath == "" {
		log.Warn("FIREBASE_SERVICE_ACCOUNT_PATH not set, push notifications disabled")
		return nil, nil
	}

	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(serviceAccountPath))
	if err != nil {
		return nil, fmt.Errorf("firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase messaging client: %w", err)
	}

	log.Info("firebase cloud messaging initialized")
	return &FCMPusher{client: client, log: log}, nil
}

func (p *FCMPusher) Push(ctx context.Context, token string, n Notification) error {
	if p == nil || p.client == nil || token == "" {
		return nil
	}

	msg := &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: n.Title,
			Body:  n.Body,
		},
		Data:    n.Data,
		Android: androidConfig(n),
		APNS:    apnsConfig(),
	}

	id, err := p.client.Send(ctx, msg)
	if err != nil {
		return fmt.Errorf("fcm send: %w", err)
	}
	p.log.Debug("push sent", "message_id", id, "tag", n.Tag)
	return nil
}

func androidConfig(n Notification) *messaging.AndroidConfig {
	return &messaging.AndroidConfig{
		Priority: "high",
		Notification: &messaging.AndroidNotification{
			ChannelID:             "mooveit_freight",
			Sound:                 "default",
			DefaultSound:          true,
			Icon:                  "ic_stat_logo",
			Color:                 "#7FFF00",
			Tag:                   n.Tag,
			Priority:              messaging.PriorityHigh,
			DefaultVibrateTimings: true,
		},
	}
}

func apnsConfig() *messaging.APNSConfig {
	badge := 1
	return &messaging.APNSConfig{
		Payload: &messaging.APNSPayload{
			Aps: &messaging.Aps{
				Sound:            "default",
				Badge:            &badge,
				MutableContent:   true,
				ContentAvailable: true,
			},
		},
	}
}
