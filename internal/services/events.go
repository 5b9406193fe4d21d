package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// Event types pushed to real-time subscribers.
const (
	EventNewBid           = "new_bid"
	EventBidUpdated       = "bid_updated"
	EventBidCancelled     = "bid_cancelled"
	EventBidPlaced        = "bid_placed"
	EventBidRejected      = "bid_rejected"
	EventBookingCreated   = "booking_created"
	EventBookingConfirmed = "booking_confirmed"
	EventBookingCancelled = "booking_cancelled"
	EventTrackingUpdate   = "tracking_update"
	EventDriverLocation   = "driverLocation"
)

const (
	AdminChannel  = "admins"
	PublicChannel = "public"
)

func BookingChannel(id uint) string { return "booking:" + strconv.FormatUint(uint64(id), 10) }
func UserChannel(id uint) string    { return "user:" + strconv.FormatUint(uint64(id), 10) }
func DriverChannel(id uint) string  { return "driver:" + strconv.FormatUint(uint64(id), 10) }

// Event is the frame written to subscribers.
type Event struct {
	Type      string    `json:"type"`
	Channel   string    `json:"channel"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// EventSink publishes events to a channel. Publishing is best-effort; the
// returned error is for logging only.
type EventSink interface {
	Publish(ctx context.Context, channel string, evt Event) error
}

// TokenLookup resolves the push token of a user, "" when none is registered.
type TokenLookup interface {
	PushToken(ctx context.Context, userID uint) (string, error)
}

// Fanout delivers events to the in-process registry, mirrors them to redis
// and sends a push notification for personal channels.
type Fanout struct {
	registry *ChannelRegistry
	cache    *RedisCache
	pusher   Pusher
	tokens   TokenLookup
	log      *slog.Logger
	now      func() time.Time
}

func NewFanout(registry *ChannelRegistry, cache *RedisCache, pusher Pusher, tokens TokenLookup, log *slog.Logger) *Fanout {
	return &Fanout{
		registry: registry,
		cache:    cache,
		pusher:   pusher,
		tokens:   tokens,
		log:      log,
		now:      time.Now,
	}
}

func (f *Fanout) Publish(ctx context.Context, channel string, evt Event) error {
	evt.Channel = channel
	if evt.Timestamp.IsZero() {
		evt.Timestamp = f.now().UTC()
	}
	frame, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", evt.Type, err)
	}

	delivered := f.registry.Publish(channel, frame)
	f.log.Debug("event published", "type", evt.Type, "channel", channel, "delivered", delivered)

	var errs []error
	if err := f.cache.PublishEvent(ctx, frame); err != nil {
		errs = append(errs, fmt.Errorf("redis mirror: %w", err))
	}
	if f.pusher != nil && f.tokens != nil {
		if userID, ok := personalChannelUser(channel); ok {
			if n, ok := pushFor(evt); ok {
				go f.push(userID, n)
			}
		}
	}
	if len(errs) > 0 {
		return ErrNotificationFailure.Wrap(errs[0])
	}
	return nil
}

func (f *Fanout) push(userID uint, n Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	token, err := f.tokens.PushToken(ctx, userID)
	if err != nil || token == "" {
		return
	}
	if err := f.pusher.Push(ctx, token, n); err != nil {
		f.log.Warn("push notification failed", "user_id", userID, "tag", n.Tag, "error", err)
	}
}

func personalChannelUser(channel string) (uint, bool) {
	for _, prefix := range []string{"user:", "driver:"} {
		if rest, ok := strings.CutPrefix(channel, prefix); ok {
			id, err := strconv.ParseUint(rest, 10, 64)
			if err != nil || id == 0 {
				return 0, false
			}
			return uint(id), true
		}
	}
	return 0, false
}

// pushFor picks the events worth a device notification.
func pushFor(evt Event) (Notification, bool) {
	data := map[string]string{"type": evt.Type}
	switch p := evt.Data.(type) {
	case BidEvent:
		data["bookingId"] = strconv.FormatUint(uint64(p.BookingID), 10)
		data["amount"] = strconv.FormatFloat(p.Amount, 'f', 2, 64)
		switch evt.Type {
		case EventNewBid:
			return Notification{Title: "New bid", Body: fmt.Sprintf("You received a bid of KES %.2f", p.Amount), Data: data, Tag: evt.Type}, true
		case EventBidRejected:
			return Notification{Title: "Bid not selected", Body: "The customer chose another driver", Data: data, Tag: evt.Type}, true
		}
	case BookingEvent:
		data["bookingId"] = strconv.FormatUint(uint64(p.BookingID), 10)
		data["reference"] = p.Reference
		data["status"] = string(p.Status)
		switch evt.Type {
		case EventBookingConfirmed:
			return Notification{Title: "Booking confirmed", Body: fmt.Sprintf("Booking %s is confirmed", p.Reference), Data: data, Tag: evt.Type}, true
		case EventTrackingUpdate:
			return Notification{Title: "Shipment update", Body: fmt.Sprintf("Booking %s is now %s", p.Reference, p.Status), Data: data, Tag: evt.Type}, true
		case EventBookingCancelled:
			return Notification{Title: "Booking cancelled", Body: fmt.Sprintf("Booking %s was cancelled", p.Reference), Data: data, Tag: evt.Type}, true
		}
	}
	return Notification{}, false
}

// publishAll sends evt to every channel, logging failures. It never panics
// into the caller: the state change it reports has already committed.
func publishAll(ctx context.Context, sink EventSink, log *slog.Logger, evt Event, channels ...string) {
	if sink == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error("event publish panicked", "type", evt.Type, "panic", r)
		}
	}()
	for _, ch := range channels {
		if err := sink.Publish(ctx, ch, evt); err != nil {
			log.Warn("event publish failed", "type", evt.Type, "channel", ch, "kind", KindOf(err), "error", err)
		}
	}
}
