package settlementd

import (
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"vibestream/core/events"
	"vibestream/core/types"
	"vibestream/native/stream"
	"vibestream/observability"
	"vibestream/storage"
)

// Service hosts the settlement engine on top of the durable state store and
// fans engine events into structured logs and Prometheus collectors.
type Service struct {
	cfg      Config
	operator [20]byte
	engine   *stream.Engine
	state    *storage.State
	logger   *slog.Logger
	metrics  *observability.SettlementMetrics
	runID    string

	mu        sync.Mutex
	paused    bool
	startedAt time.Time
}

// New wires a service instance from the supplied configuration.
func New(cfg Config, logger *slog.Logger) (*Service, error) {
	operator, err := ParseAddress(cfg.Operator)
	if err != nil {
		return nil, fmt.Errorf("operator: %w", err)
	}
	state, err := storage.Open(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	svc := &Service{
		cfg:       cfg,
		operator:  operator,
		state:     state,
		logger:    logger,
		metrics:   observability.Settlement(),
		runID:     uuid.NewString(),
		startedAt: time.Now(),
	}
	engine := stream.NewEngine()
	engine.SetState(state)
	engine.SetEmitter(svc)
	svc.engine = engine
	logger.Info("settlement service initialised", "run_id", svc.runID, "database", cfg.DatabasePath)
	return svc, nil
}

// Engine exposes the hosted settlement engine.
func (s *Service) Engine() *stream.Engine { return s.engine }

// State exposes the durable store for read-only operational queries.
func (s *Service) State() *storage.State { return s.state }

// Close releases the underlying database.
func (s *Service) Close() error {
	if s == nil || s.state == nil {
		return nil
	}
	return s.state.Close()
}

// Pause stops the service from accepting settlement triggers.
func (s *Service) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = true
	s.logger.Warn("settlements paused", "run_id", s.runID)
}

// Resume re-enables settlement triggers.
func (s *Service) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = false
	s.logger.Info("settlements resumed", "run_id", s.runID)
}

// Paused reports whether settlement triggers are currently suspended.
func (s *Service) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// EndStream runs the signed settlement path unless the service is paused.
func (s *Service) EndStream(streamID string, attestations []stream.ViewerAttestation, sig []byte) (*stream.Settlement, error) {
	if s.Paused() {
		return nil, fmt.Errorf("settlementd: settlements are paused")
	}
	settlement, err := s.engine.EndStream(streamID, attestations, sig)
	if err != nil {
		s.metrics.OperationFailed("end_stream")
		return nil, err
	}
	s.metrics.StreamSettled("signed")
	return settlement, nil
}

// AutoSettleStream runs the timeout settlement path unless the service is
// paused. The timeout comes from configuration.
func (s *Service) AutoSettleStream(streamID string) (*stream.Settlement, error) {
	if s.Paused() {
		return nil, fmt.Errorf("settlementd: settlements are paused")
	}
	timeout := int64(s.cfg.AutoSettle.Timeout.Duration / time.Second)
	settlement, err := s.engine.AutoSettleStream(streamID, timeout)
	if err != nil {
		s.metrics.OperationFailed("auto_settle_stream")
		return nil, err
	}
	s.metrics.StreamSettled("timeout")
	return settlement, nil
}

// Status summarises service health for the admin API.
type Status struct {
	RunID     string `json:"runId"`
	Operator  string `json:"operator"`
	Paused    bool   `json:"paused"`
	StartedAt string `json:"startedAt"`
	Streams   uint64 `json:"streamsStarted"`
}

// Status returns the current service snapshot.
func (s *Service) Status() Status {
	status := Status{
		RunID:     s.runID,
		Operator:  hexAddress(s.operator),
		Paused:    s.Paused(),
		StartedAt: s.startedAt.UTC().Format(time.RFC3339),
	}
	if platform, err := s.engine.Platform(); err == nil {
		status.Streams = platform.StreamCounter
	}
	return status
}

// Emit implements events.Emitter: every engine event becomes a structured log
// line and a metrics update. Event delivery never affects engine state.
func (s *Service) Emit(evt events.Event) {
	if evt == nil {
		return
	}
	var payload *types.Event
	if carrier, ok := evt.(interface{ Event() *types.Event }); ok {
		payload = carrier.Event()
	}
	attrs := []any{"event", evt.EventType(), "run_id", s.runID}
	if payload != nil {
		for k, v := range payload.Attributes {
			attrs = append(attrs, k, v)
		}
	}
	s.logger.Info("engine event", attrs...)

	switch evt.EventType() {
	case stream.EventTypeStreamStarted:
		s.metrics.StreamStarted()
	case stream.EventTypeDonationReceived:
		amount := 0.0
		if payload != nil {
			amount, _ = strconv.ParseFloat(payload.Attributes["amount"], 64)
		}
		s.metrics.DonationAccepted(amount)
	case stream.EventTypeRewardCalculated:
		s.metrics.RewardCreated()
	case stream.EventTypeRewardClaimed:
		s.metrics.RewardClaimed()
	case stream.EventTypeDisputeOpened:
		s.metrics.DisputeOpened()
	case stream.EventTypeDisputeResolved:
		s.metrics.DisputeResolved()
	}
}
