package telemetry

import (
	"context"
	"encoding/json"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/computebaker/tekir-quota/internal/redis"
)

const (
	queueDepth    = 1024
	writeTimeout  = 2 * time.Second
	hitCounterTTL = 48 * time.Hour
	eventKindHit  = "hit"
	eventKindDeny = "quota_denied"
)

type event struct {
	Kind      string    `json:"kind"`
	Day       time.Time `json:"-"`
	SessionID string    `json:"sessionId,omitempty"`
	Count     int       `json:"count,omitempty"`
	Limit     int       `json:"limit,omitempty"`
	At        time.Time `json:"at"`
}

// Emitter is a fire-and-forget telemetry sink. Events go through a bounded
// queue drained by a single goroutine; a full queue drops the event and a
// failed Redis write is logged and swallowed. Nothing here may fail an
// enforcement decision.
type Emitter struct {
	client *goredis.Client
	events chan event
	done   chan struct{}
}

func NewEmitter(client *goredis.Client) *Emitter {
	e := &Emitter{
		client: client,
		events: make(chan event, queueDepth),
		done:   make(chan struct{}),
	}
	go e.run()
	return e
}

// RecordHit increments the global per-day allowed-request counter.
func (e *Emitter) RecordHit(at time.Time) {
	e.enqueue(event{Kind: eventKindHit, Day: at.UTC(), At: at.UTC()})
}

// QuotaDenied publishes a denial event for analytics consumers.
func (e *Emitter) QuotaDenied(sessionID string, count, limit int) {
	e.enqueue(event{
		Kind:      eventKindDeny,
		SessionID: sessionID,
		Count:     count,
		Limit:     limit,
		At:        time.Now().UTC(),
	})
}

func (e *Emitter) enqueue(ev event) {
	select {
	case e.events <- ev:
	default:
		log.Debug().Str("kind", ev.Kind).Msg("telemetry queue full, dropping event")
	}
}

func (e *Emitter) Close() {
	close(e.done)
}

func (e *Emitter) run() {
	for {
		select {
		case <-e.done:
			return
		case ev := <-e.events:
			e.emit(ev)
		}
	}
}

func (e *Emitter) emit(ev event) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	switch ev.Kind {
	case eventKindHit:
		key := redis.HitCounterKey(ev.Day)
		if err := e.client.Incr(ctx, key).Err(); err != nil {
			log.Debug().Err(err).Str("key", key).Msg("hit counter increment failed")
			return
		}
		e.client.Expire(ctx, key, hitCounterTTL)
	case eventKindDeny:
		payload, err := json.Marshal(ev)
		if err != nil {
			return
		}
		if err := e.client.Publish(ctx, redis.QuotaEventChannel, payload).Err(); err != nil {
			log.Debug().Err(err).Msg("quota event publish failed")
		}
	}
}
