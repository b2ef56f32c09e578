package settlementd

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vibestream/native/stream"
)

// AdminServer exposes the operational HTTP surface: health and metrics
// unauthenticated, operator controls and ledger lookups behind the bearer
// token from configuration.
type AdminServer struct {
	service *Service
	token   string
	router  chi.Router
}

// NewAdminServer constructs the HTTP handler for the supplied service.
func NewAdminServer(service *Service, token string) *AdminServer {
	server := &AdminServer{service: service, token: token}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", server.handleHealthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(server.requireBearer)
		r.Get("/status", server.handleStatus)
		r.Post("/admin/pause", server.handlePause)
		r.Post("/admin/resume", server.handleResume)
		r.Get("/v1/streams/{streamID}", server.handleStream)
		r.Get("/v1/streams/{streamID}/donations", server.handleDonations)
		r.Get("/v1/streams/{streamID}/rewards/{viewer}", server.handleReward)
		r.Get("/v1/streams/{streamID}/disputes/{claimant}", server.handleDispute)
	})
	server.router = r
	return server
}

// ServeHTTP implements http.Handler.
func (s *AdminServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *AdminServer) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		supplied, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(supplied), []byte(s.token)) != 1 {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *AdminServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *AdminServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Status())
}

func (s *AdminServer) handlePause(w http.ResponseWriter, r *http.Request) {
	s.service.Pause()
	w.WriteHeader(http.StatusNoContent)
}

func (s *AdminServer) handleResume(w http.ResponseWriter, r *http.Request) {
	s.service.Resume()
	w.WriteHeader(http.StatusNoContent)
}

type streamView struct {
	ID             string `json:"id"`
	Creator        string `json:"creator"`
	Vault          string `json:"vault"`
	CreatorShare   uint8  `json:"creatorShare"`
	MinWatchPct    uint8  `json:"minWatchPct"`
	MinDuration    int64  `json:"minDuration"`
	StartTime      int64  `json:"startTime"`
	EndTime        int64  `json:"endTime,omitempty"`
	Active         bool   `json:"active"`
	TotalDonations string `json:"totalDonations"`
}

func (s *AdminServer) handleStream(w http.ResponseWriter, r *http.Request) {
	record, err := s.service.Engine().Stream(chi.URLParam(r, "streamID"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	total := "0"
	if record.TotalDonations != nil {
		total = record.TotalDonations.String()
	}
	writeJSON(w, http.StatusOK, streamView{
		ID:             record.ID,
		Creator:        hexAddress(record.Creator),
		Vault:          hexAddress(record.Vault),
		CreatorShare:   record.CreatorShare,
		MinWatchPct:    record.MinWatchPct,
		MinDuration:    record.MinDuration,
		StartTime:      record.StartTime,
		EndTime:        record.EndTime,
		Active:         record.Active,
		TotalDonations: total,
	})
}

type donationView struct {
	Donor     string `json:"donor"`
	Amount    string `json:"amount"`
	Timestamp int64  `json:"timestamp"`
}

func (s *AdminServer) handleDonations(w http.ResponseWriter, r *http.Request) {
	streamID := chi.URLParam(r, "streamID")
	if _, err := s.service.Engine().Stream(streamID); err != nil {
		writeEngineError(w, err)
		return
	}
	donations, err := s.service.State().DonationsByStream(streamID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	views := make([]donationView, 0, len(donations))
	for _, d := range donations {
		amount := "0"
		if d.Amount != nil {
			amount = d.Amount.String()
		}
		views = append(views, donationView{
			Donor:     hexAddress(d.Donor),
			Amount:    amount,
			Timestamp: d.Timestamp,
		})
	}
	writeJSON(w, http.StatusOK, views)
}

type rewardView struct {
	StreamID  string `json:"streamId"`
	Viewer    string `json:"viewer"`
	Amount    string `json:"amount"`
	Claimed   bool   `json:"claimed"`
	ClaimedAt int64  `json:"claimedAt,omitempty"`
}

func (s *AdminServer) handleReward(w http.ResponseWriter, r *http.Request) {
	viewer, err := ParseAddress(chi.URLParam(r, "viewer"))
	if err != nil {
		http.Error(w, "invalid viewer address", http.StatusBadRequest)
		return
	}
	reward, err := s.service.Engine().Reward(chi.URLParam(r, "streamID"), viewer)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	amount := "0"
	if reward.Amount != nil {
		amount = reward.Amount.String()
	}
	writeJSON(w, http.StatusOK, rewardView{
		StreamID:  reward.StreamID,
		Viewer:    hexAddress(reward.Viewer),
		Amount:    amount,
		Claimed:   reward.Claimed,
		ClaimedAt: reward.ClaimedAt,
	})
}

type disputeView struct {
	StreamID   string `json:"streamId"`
	Claimant   string `json:"claimant"`
	Reason     string `json:"reason"`
	Evidence   string `json:"evidence,omitempty"`
	Resolved   bool   `json:"resolved"`
	Resolution string `json:"resolution,omitempty"`
	Resolver   string `json:"resolver,omitempty"`
	OpenedAt   int64  `json:"openedAt"`
	ResolvedAt int64  `json:"resolvedAt,omitempty"`
}

func (s *AdminServer) handleDispute(w http.ResponseWriter, r *http.Request) {
	claimant, err := ParseAddress(chi.URLParam(r, "claimant"))
	if err != nil {
		http.Error(w, "invalid claimant address", http.StatusBadRequest)
		return
	}
	dispute, err := s.service.Engine().Dispute(chi.URLParam(r, "streamID"), claimant)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	view := disputeView{
		StreamID:   dispute.StreamID,
		Claimant:   hexAddress(dispute.Claimant),
		Reason:     dispute.Reason,
		Evidence:   dispute.Evidence,
		Resolved:   dispute.Resolved,
		Resolution: dispute.Resolution,
		OpenedAt:   dispute.OpenedAt,
		ResolvedAt: dispute.ResolvedAt,
	}
	if dispute.Resolved {
		view.Resolver = hexAddress(dispute.Resolver)
	}
	writeJSON(w, http.StatusOK, view)
}

func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, stream.ErrStreamNotFound),
		errors.Is(err, stream.ErrRewardNotFound),
		errors.Is(err, stream.ErrDisputeNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
