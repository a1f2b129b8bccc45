package server

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/gorhill/cronexpr"
	"github.com/redis/go-redis/v9"

	"github.com/aquaregiaswarm-blip/scout/internal/agent/core"
	"github.com/aquaregiaswarm-blip/scout/internal/agent/telemetry"
	"github.com/aquaregiaswarm-blip/scout/internal/store"
)

const (
	tickInterval = 10 * time.Minute
	// dashboards older than this get a refresh session
	defaultStaleAfter = 7 * 24 * time.Hour
	maxRefreshPerTick = 3
)

// Scheduler periodically refreshes initiatives whose dashboards have gone
// stale, reusing the same orchestrator as the HTTP trigger. The refresh
// pass fires on a cron schedule; the ticker only polls for due activations.
type Scheduler struct {
	Store       *store.Store
	Orch        *core.Orchestrator
	Rdb         *redis.Client
	Stop        chan struct{}
	Logger      *log.Logger
	RefreshCron string
	StaleAfter  time.Duration

	lastTick time.Time
}

func (s *Scheduler) Start() {
	s.lastTick = time.Now()
	ticker := time.NewTicker(tickInterval)
	go func() {
		for {
			select {
			case <-s.Stop:
				ticker.Stop()
				return
			case <-ticker.C:
				now := time.Now()
				if s.due(now) {
					s.tick()
					s.lastTick = now
				}
			}
		}
	}()
}

// due reports whether the refresh cron has an activation since the last
// pass. Supports "@hourly", "@daily", and 5-field cron expressions; an
// invalid spec falls back to hourly.
func (s *Scheduler) due(now time.Time) bool {
	spec := s.RefreshCron
	switch spec {
	case "":
		return now.Sub(s.lastTick) >= time.Hour
	case "@hourly":
		return now.Sub(s.lastTick) >= time.Hour
	case "@daily":
		return now.Sub(s.lastTick) >= 24*time.Hour
	}
	expr, err := cronexpr.Parse(spec)
	if err != nil {
		s.Logger.Printf("invalid refresh cron %q, falling back to hourly: %v", spec, err)
		return now.Sub(s.lastTick) >= time.Hour
	}
	next := expr.Next(s.lastTick)
	return !next.IsZero() && !next.After(now)
}

func (s *Scheduler) tick() {
	ctx := context.Background()
	staleAfter := s.StaleAfter
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}
	cutoff := time.Now().Add(-staleAfter)
	stale, err := s.Store.ListStaleInitiatives(ctx, cutoff, maxRefreshPerTick)
	if err != nil {
		s.Logger.Printf("stale scan failed: %v", err)
		return
	}
	for _, in := range stale {
		// distributed lock to avoid duplicate refreshes across instances
		if s.Rdb != nil {
			lockKey := "sched:lock:" + in.ID
			ok, _ := s.Rdb.SetNX(ctx, lockKey, uuid.NewString(), 2*time.Minute).Result()
			if !ok {
				continue
			}
		}

		userID, err := s.Store.SystemUserForInitiative(ctx, in.ID)
		if err != nil {
			s.Logger.Printf("no owner for initiative %s: %v", in.ID, err)
			continue
		}
		sessionID, err := s.Store.CreateSession(ctx, in.ID, userID, "")
		if err != nil {
			s.Logger.Printf("refresh session for %s failed: %v", in.ID, err)
			continue
		}
		telemetry.SessionsStarted.Inc()
		s.Logger.Printf("refreshing stale initiative %s (session %s)", in.ID, sessionID)

		go func(sessionID string) {
			// jitter to avoid stampedes
			time.Sleep(time.Duration(250+int64(time.Now().UnixNano()%250)) * time.Millisecond)
			runCtx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
			defer cancel()
			_ = s.Orch.Run(runCtx, sessionID)
			if status, err := s.Store.SessionStatus(runCtx, sessionID); err == nil {
				telemetry.SessionsFinished.WithLabelValues(status).Inc()
			}
		}(sessionID)
	}
}
