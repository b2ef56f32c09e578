package stream

import (
	"fmt"
	"strings"
)

// OpenDispute records a post-settlement challenge against a stream. Only one
// dispute slot exists per (stream, claimant) pair, and disputes can only
// target streams that have already settled.
func (e *Engine) OpenDispute(claimant [20]byte, streamID, reason, evidence string) (*Dispute, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	reason = strings.TrimSpace(reason)
	evidence = strings.TrimSpace(evidence)
	if reason == "" {
		return nil, fmt.Errorf("stream engine: dispute reason required")
	}
	if len(reason) > MaxReasonLength {
		return nil, fmt.Errorf("stream engine: dispute reason exceeds %d bytes", MaxReasonLength)
	}
	if len(evidence) > MaxEvidenceLength {
		return nil, fmt.Errorf("stream engine: dispute evidence exceeds %d bytes", MaxEvidenceLength)
	}
	var dispute *Dispute
	err := e.withUpdate(func(st State) error {
		s, err := loadStream(st, streamID)
		if err != nil {
			return err
		}
		if s.Active {
			return ErrStreamStillActive
		}
		if _, ok, err := st.DisputeGet(s.ID, claimant); err != nil {
			return err
		} else if ok {
			return ErrDisputeExists
		}
		dispute = &Dispute{
			StreamID: s.ID,
			Claimant: claimant,
			Reason:   reason,
			Evidence: evidence,
			OpenedAt: e.now(),
		}
		return st.DisputePut(dispute)
	})
	if err != nil {
		return nil, err
	}
	e.emit(NewDisputeOpenedEvent(dispute))
	return dispute.Clone(), nil
}

// ResolveDispute finalises a dispute. Operator only; a dispute resolves
// exactly once. When a corrected attestation list is supplied it must carry a
// valid backend signature, the same gate settlement applies.
func (e *Engine) ResolveDispute(caller [20]byte, streamID string, claimant [20]byte, resolution string, corrections []ViewerAttestation, sig []byte) (*Dispute, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	resolution = strings.TrimSpace(resolution)
	if resolution == "" {
		return nil, fmt.Errorf("stream engine: resolution required")
	}
	if len(resolution) > MaxResolutionLength {
		return nil, fmt.Errorf("stream engine: resolution exceeds %d bytes", MaxResolutionLength)
	}
	var dispute *Dispute
	err := e.withUpdate(func(st State) error {
		platform, err := loadPlatform(st)
		if err != nil {
			return err
		}
		if caller != platform.Operator {
			return ErrUnauthorized
		}
		s, err := loadStream(st, streamID)
		if err != nil {
			return err
		}
		var ok bool
		dispute, ok, err = st.DisputeGet(s.ID, claimant)
		if err != nil {
			return err
		}
		if !ok || dispute == nil {
			return ErrDisputeNotFound
		}
		if dispute.Resolved {
			return ErrDisputeAlreadyResolved
		}
		if len(corrections) > 0 {
			if err := e.verifyAttestations(platform, s.ID, corrections, sig); err != nil {
				return err
			}
			if err := e.applyRewardCorrections(st, s, corrections); err != nil {
				return err
			}
		}
		dispute.Resolved = true
		dispute.Resolution = resolution
		dispute.Resolver = caller
		dispute.ResolvedAt = e.now()
		return st.DisputePut(dispute)
	})
	if err != nil {
		return nil, err
	}
	e.emit(NewDisputeResolvedEvent(dispute))
	return dispute.Clone(), nil
}

// applyRewardCorrections is the extension point for recomputing existing
// reward records from an operator-accepted corrected attestation list. The
// correction arithmetic is deliberately not implemented yet: a corrected list
// is authenticated and recorded with the resolution, but reward records are
// left unchanged.
func (e *Engine) applyRewardCorrections(State, *Stream, []ViewerAttestation) error {
	return nil
}
