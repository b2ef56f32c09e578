package stream

import (
	"fmt"
	"math/big"
	"strings"
)

// Bounded field sizes enforced at record creation. Persisted layouts reserve a
// fixed maximum per record, so oversized strings are rejected up front.
const (
	MaxStreamIDLength   = 64
	MaxReasonLength     = 512
	MaxEvidenceLength   = 1024
	MaxResolutionLength = 512

	// MaxAttestations caps the viewer list accepted by a single settlement
	// call so one end_stream invocation stays within a bounded amount of
	// work. Larger audiences need the backend to pre-aggregate the list.
	MaxAttestations = 256
)

// Platform is the deployment-wide registry: the operator identity, the
// registered attestation backend signer, the default fee parameter and a
// monotonic stream counter.
type Platform struct {
	Operator      [20]byte `json:"operator"`
	BackendSigner [20]byte `json:"backendSigner"`
	FeePercentage uint8    `json:"feePercentage"`
	StreamCounter uint64   `json:"streamCounter"`
	CreatedAt     int64    `json:"createdAt"`
}

// Clone returns a copy of the platform record.
func (p *Platform) Clone() *Platform {
	if p == nil {
		return nil
	}
	clone := *p
	return &clone
}

// Stream captures one monetized broadcast session: payout parameters fixed at
// creation, the derived escrow vault, and the running donation total. A stream
// is active from start until it is settled; settlement is terminal.
type Stream struct {
	ID             string   `json:"id"`
	Creator        [20]byte `json:"creator"`
	Vault          [20]byte `json:"vault"`
	CreatorShare   uint8    `json:"creatorShare"`
	MinWatchPct    uint8    `json:"minWatchPct"`
	MinDuration    int64    `json:"minDuration"`
	StartTime      int64    `json:"startTime"`
	EndTime        int64    `json:"endTime"`
	Active         bool     `json:"active"`
	TotalDonations *big.Int `json:"totalDonations"`
}

// Clone returns a deep copy of the stream so callers can safely mutate the
// copy without affecting the stored instance.
func (s *Stream) Clone() *Stream {
	if s == nil {
		return nil
	}
	clone := *s
	if s.TotalDonations != nil {
		clone.TotalDonations = new(big.Int).Set(s.TotalDonations)
	} else {
		clone.TotalDonations = big.NewInt(0)
	}
	return &clone
}

// Donation is the append-only record of a single contribution event.
type Donation struct {
	StreamID  string   `json:"streamId"`
	Donor     [20]byte `json:"donor"`
	Amount    *big.Int `json:"amount"`
	Timestamp int64    `json:"timestamp"`
}

// Clone returns a deep copy of the donation record.
func (d *Donation) Clone() *Donation {
	if d == nil {
		return nil
	}
	clone := *d
	if d.Amount != nil {
		clone.Amount = new(big.Int).Set(d.Amount)
	} else {
		clone.Amount = big.NewInt(0)
	}
	return &clone
}

// ViewerReward is a payable claim created during settlement. The claimed flag
// flips false to true exactly once, inside the claim operation.
type ViewerReward struct {
	StreamID  string   `json:"streamId"`
	Viewer    [20]byte `json:"viewer"`
	Amount    *big.Int `json:"amount"`
	Claimed   bool     `json:"claimed"`
	CreatedAt int64    `json:"createdAt"`
	ClaimedAt int64    `json:"claimedAt,omitempty"`
}

// Clone returns a deep copy of the reward record.
func (r *ViewerReward) Clone() *ViewerReward {
	if r == nil {
		return nil
	}
	clone := *r
	if r.Amount != nil {
		clone.Amount = new(big.Int).Set(r.Amount)
	} else {
		clone.Amount = big.NewInt(0)
	}
	return &clone
}

// Dispute is a post-settlement arbitration record. One slot exists per
// (stream, claimant) pair and it resolves exactly once.
type Dispute struct {
	StreamID   string   `json:"streamId"`
	Claimant   [20]byte `json:"claimant"`
	Reason     string   `json:"reason"`
	Evidence   string   `json:"evidence"`
	Resolved   bool     `json:"resolved"`
	Resolution string   `json:"resolution,omitempty"`
	Resolver   [20]byte `json:"resolver,omitempty"`
	OpenedAt   int64    `json:"openedAt"`
	ResolvedAt int64    `json:"resolvedAt,omitempty"`
}

// Clone returns a copy of the dispute record.
func (d *Dispute) Clone() *Dispute {
	if d == nil {
		return nil
	}
	clone := *d
	return &clone
}

// ViewerAttestation is one entry of the backend-signed watch report: the
// viewer identity, accumulated watch-time units and the watch percentage
// relative to the stream length.
type ViewerAttestation struct {
	Viewer    [20]byte `json:"viewer"`
	WatchTime uint64   `json:"watchTime"`
	WatchPct  uint8    `json:"watchPct"`
}

// Settlement summarises the payout produced by a terminal stream transition.
type Settlement struct {
	StreamID       string
	CreatorAmount  *big.Int
	ViewersAmount  *big.Int
	TotalWatchTime uint64
	Rewards        []ViewerReward
	Remainder      *big.Int
}

// SanitizeStreamID validates and canonicalises a stream identifier.
func SanitizeStreamID(id string) (string, error) {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return "", fmt.Errorf("stream: id required")
	}
	if len(trimmed) > MaxStreamIDLength {
		return "", fmt.Errorf("stream: id exceeds %d bytes", MaxStreamIDLength)
	}
	return trimmed, nil
}

// SanitizeStream validates the supplied stream definition and returns a cloned
// instance with a non-nil donation total. The original value is not mutated.
func SanitizeStream(s *Stream) (*Stream, error) {
	if s == nil {
		return nil, fmt.Errorf("stream: nil stream")
	}
	clone := s.Clone()
	id, err := SanitizeStreamID(clone.ID)
	if err != nil {
		return nil, err
	}
	clone.ID = id
	if clone.CreatorShare > 100 {
		return nil, fmt.Errorf("stream: creator share out of range: %d", clone.CreatorShare)
	}
	if clone.MinWatchPct > 100 {
		return nil, fmt.Errorf("stream: min watch percentage out of range: %d", clone.MinWatchPct)
	}
	if clone.MinDuration < 0 {
		return nil, fmt.Errorf("stream: negative minimum duration")
	}
	if clone.TotalDonations.Sign() < 0 {
		return nil, fmt.Errorf("stream: negative donation total")
	}
	return clone, nil
}
