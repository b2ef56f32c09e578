package stream

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"vibestream/core/events"
	"vibestream/core/types"
)

const (
	// EventTypeStreamStarted is emitted when a creator opens a stream.
	EventTypeStreamStarted = "stream.started"
	// EventTypeDonationReceived is emitted for every accepted donation.
	EventTypeDonationReceived = "stream.donation.received"
	// EventTypeStreamEnded is emitted when a stream settles via the signed path.
	EventTypeStreamEnded = "stream.ended"
	// EventTypeStreamAutoSettled is emitted when a stream settles on timeout.
	EventTypeStreamAutoSettled = "stream.auto_settled"
	// EventTypeRewardCalculated is emitted per viewer reward created at settlement.
	EventTypeRewardCalculated = "stream.reward.calculated"
	// EventTypeRewardClaimed is emitted when a viewer redeems a reward.
	EventTypeRewardClaimed = "stream.reward.claimed"
	// EventTypeDisputeOpened is emitted when a claimant opens a dispute.
	EventTypeDisputeOpened = "stream.dispute.opened"
	// EventTypeDisputeResolved is emitted when the operator resolves a dispute.
	EventTypeDisputeResolved = "stream.dispute.resolved"
)

type eventEnvelope struct {
	evt *types.Event
}

func (e eventEnvelope) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e eventEnvelope) Event() *types.Event { return e.evt }

// WrapEvent converts a raw event payload into the emitter-friendly envelope.
func WrapEvent(evt *types.Event) events.Event { return eventEnvelope{evt: evt} }

func hexAddr(addr [20]byte) string {
	return "0x" + hex.EncodeToString(addr[:])
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// NewStreamStartedEvent returns the canonical payload for a stream opening.
func NewStreamStartedEvent(s *Stream) *types.Event {
	if s == nil {
		return &types.Event{Type: EventTypeStreamStarted, Attributes: map[string]string{}}
	}
	return &types.Event{
		Type: EventTypeStreamStarted,
		Attributes: map[string]string{
			"streamId":     s.ID,
			"creator":      hexAddr(s.Creator),
			"vault":        hexAddr(s.Vault),
			"creatorShare": strconv.FormatUint(uint64(s.CreatorShare), 10),
			"minWatchPct":  strconv.FormatUint(uint64(s.MinWatchPct), 10),
			"startTime":    strconv.FormatInt(s.StartTime, 10),
		},
	}
}

// NewDonationReceivedEvent returns the payload for an accepted donation,
// including the running stream total after the contribution.
func NewDonationReceivedEvent(d *Donation, total *big.Int) *types.Event {
	if d == nil {
		return &types.Event{Type: EventTypeDonationReceived, Attributes: map[string]string{}}
	}
	return &types.Event{
		Type: EventTypeDonationReceived,
		Attributes: map[string]string{
			"streamId":       d.StreamID,
			"donor":          hexAddr(d.Donor),
			"amount":         amountString(d.Amount),
			"totalDonations": amountString(total),
			"timestamp":      strconv.FormatInt(d.Timestamp, 10),
		},
	}
}

// NewStreamEndedEvent returns the payload for a signature-gated settlement.
func NewStreamEndedEvent(s *Stream, creatorAmount, viewersAmount *big.Int) *types.Event {
	if s == nil {
		return &types.Event{Type: EventTypeStreamEnded, Attributes: map[string]string{}}
	}
	return &types.Event{
		Type: EventTypeStreamEnded,
		Attributes: map[string]string{
			"streamId":      s.ID,
			"creator":       hexAddr(s.Creator),
			"creatorAmount": amountString(creatorAmount),
			"viewersAmount": amountString(viewersAmount),
			"endTime":       strconv.FormatInt(s.EndTime, 10),
		},
	}
}

// NewStreamAutoSettledEvent returns the payload for a timeout settlement.
func NewStreamAutoSettledEvent(s *Stream, payout *big.Int) *types.Event {
	if s == nil {
		return &types.Event{Type: EventTypeStreamAutoSettled, Attributes: map[string]string{}}
	}
	return &types.Event{
		Type: EventTypeStreamAutoSettled,
		Attributes: map[string]string{
			"streamId": s.ID,
			"creator":  hexAddr(s.Creator),
			"payout":   amountString(payout),
			"endTime":  strconv.FormatInt(s.EndTime, 10),
		},
	}
}

// NewRewardCalculatedEvent returns the payload for one reward created during
// settlement, carrying the attested watch time the share was derived from.
func NewRewardCalculatedEvent(r *ViewerReward, watchTime uint64) *types.Event {
	if r == nil {
		return &types.Event{Type: EventTypeRewardCalculated, Attributes: map[string]string{}}
	}
	return &types.Event{
		Type: EventTypeRewardCalculated,
		Attributes: map[string]string{
			"streamId":  r.StreamID,
			"viewer":    hexAddr(r.Viewer),
			"amount":    amountString(r.Amount),
			"watchTime": strconv.FormatUint(watchTime, 10),
		},
	}
}

// NewRewardClaimedEvent returns the payload for a redeemed reward.
func NewRewardClaimedEvent(r *ViewerReward) *types.Event {
	if r == nil {
		return &types.Event{Type: EventTypeRewardClaimed, Attributes: map[string]string{}}
	}
	return &types.Event{
		Type: EventTypeRewardClaimed,
		Attributes: map[string]string{
			"streamId":  r.StreamID,
			"viewer":    hexAddr(r.Viewer),
			"amount":    amountString(r.Amount),
			"claimedAt": strconv.FormatInt(r.ClaimedAt, 10),
		},
	}
}

// NewDisputeOpenedEvent returns the payload for a newly opened dispute.
func NewDisputeOpenedEvent(d *Dispute) *types.Event {
	if d == nil {
		return &types.Event{Type: EventTypeDisputeOpened, Attributes: map[string]string{}}
	}
	return &types.Event{
		Type: EventTypeDisputeOpened,
		Attributes: map[string]string{
			"streamId": d.StreamID,
			"claimant": hexAddr(d.Claimant),
			"reason":   d.Reason,
			"openedAt": strconv.FormatInt(d.OpenedAt, 10),
		},
	}
}

// NewDisputeResolvedEvent returns the payload for a resolved dispute.
func NewDisputeResolvedEvent(d *Dispute) *types.Event {
	if d == nil {
		return &types.Event{Type: EventTypeDisputeResolved, Attributes: map[string]string{}}
	}
	return &types.Event{
		Type: EventTypeDisputeResolved,
		Attributes: map[string]string{
			"streamId":   d.StreamID,
			"claimant":   hexAddr(d.Claimant),
			"resolution": d.Resolution,
			"resolver":   hexAddr(d.Resolver),
			"resolvedAt": strconv.FormatInt(d.ResolvedAt, 10),
		},
	}
}
