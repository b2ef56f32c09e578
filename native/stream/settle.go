package stream

import (
	"math/big"

	"vibestream/core/types"
)

// EndStream settles an active stream against a backend-signed watch report.
// Viewers meeting the stream's minimum watch percentage split the viewer pool
// in proportion to their attested watch time; the creator receives the
// configured share up front. Settlement is terminal: the stream can never be
// reactivated and a second settlement attempt fails with ErrStreamInactive.
// All writes of one settlement commit together; a failure anywhere leaves no
// payout, reward or status change behind.
func (e *Engine) EndStream(streamID string, attestations []ViewerAttestation, sig []byte) (*Settlement, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	var (
		settlement *Settlement
		pending    []*types.Event
	)
	err := e.withUpdate(func(st State) error {
		s, err := loadStream(st, streamID)
		if err != nil {
			return err
		}
		if !s.Active {
			return ErrStreamInactive
		}
		now := e.now()
		earliest, err := checkedDeadline(s.StartTime, s.MinDuration)
		if err != nil {
			return err
		}
		if now < earliest {
			return ErrStreamDurationNotMet
		}
		platform, err := loadPlatform(st)
		if err != nil {
			return err
		}
		if err := e.verifyAttestations(platform, s.ID, attestations, sig); err != nil {
			return err
		}

		// Eligibility filter runs before the proportional split so viewers
		// below the threshold receive nothing and do not dilute eligible
		// shares.
		eligible := make([]ViewerAttestation, 0, len(attestations))
		var totalWatchTime uint64
		for _, a := range attestations {
			if a.WatchPct < s.MinWatchPct {
				continue
			}
			totalWatchTime, err = checkedAddWatchTime(totalWatchTime, a.WatchTime)
			if err != nil {
				return err
			}
			eligible = append(eligible, a)
		}

		creatorAmount, viewersAmount := splitPot(s.TotalDonations, s.CreatorShare)
		if creatorAmount.Sign() > 0 {
			if err := transfer(st, s.Vault, s.Creator, creatorAmount); err != nil {
				return err
			}
		}

		settlement = &Settlement{
			StreamID:       s.ID,
			CreatorAmount:  creatorAmount,
			ViewersAmount:  viewersAmount,
			TotalWatchTime: totalWatchTime,
			Remainder:      big.NewInt(0),
		}
		if viewersAmount.Sign() > 0 && totalWatchTime > 0 {
			distributed := big.NewInt(0)
			for _, a := range eligible {
				amount := proportionalShare(viewersAmount, a.WatchTime, totalWatchTime)
				if amount.Sign() == 0 {
					continue
				}
				reward := &ViewerReward{
					StreamID:  s.ID,
					Viewer:    a.Viewer,
					Amount:    amount,
					CreatedAt: now,
				}
				if err := st.RewardPut(reward); err != nil {
					return err
				}
				distributed.Add(distributed, amount)
				settlement.Rewards = append(settlement.Rewards, *reward.Clone())
				pending = append(pending, NewRewardCalculatedEvent(reward, a.WatchTime))
			}
			// Floor-division truncation is not redistributed; whatever the
			// per-viewer shares leave behind stays in the vault.
			settlement.Remainder = new(big.Int).Sub(viewersAmount, distributed)
		} else {
			settlement.Remainder = cloneBigInt(viewersAmount)
		}

		s.Active = false
		s.EndTime = now
		if err := st.StreamPut(s); err != nil {
			return err
		}
		pending = append(pending, NewStreamEndedEvent(s, creatorAmount, viewersAmount))
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.emitAll(pending)
	return settlement, nil
}

// AutoSettleStream is the fallback path when the attestation pipeline never
// delivers signed data: once the timeout has elapsed since the stream start,
// the entire donation pot is paid to the creator and the stream is closed.
// No signature is required because no externally computed data is accepted.
func (e *Engine) AutoSettleStream(streamID string, timeout int64) (*Settlement, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	var (
		settlement *Settlement
		pending    []*types.Event
	)
	err := e.withUpdate(func(st State) error {
		s, err := loadStream(st, streamID)
		if err != nil {
			return err
		}
		if !s.Active {
			return ErrStreamInactive
		}
		now := e.now()
		deadline, err := checkedDeadline(s.StartTime, timeout)
		if err != nil {
			return err
		}
		if now < deadline {
			return ErrTimeoutNotElapsed
		}
		payout := cloneBigInt(s.TotalDonations)
		if payout.Sign() > 0 {
			if err := transfer(st, s.Vault, s.Creator, payout); err != nil {
				return err
			}
		}
		s.Active = false
		s.EndTime = now
		if err := st.StreamPut(s); err != nil {
			return err
		}
		settlement = &Settlement{
			StreamID:      s.ID,
			CreatorAmount: payout,
			ViewersAmount: big.NewInt(0),
			Remainder:     big.NewInt(0),
		}
		pending = append(pending, NewStreamAutoSettledEvent(s, payout))
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.emitAll(pending)
	return settlement, nil
}

// ClaimReward pays out a viewer's settlement entitlement from the stream
// vault. The claimed flag flips inside the same serialised operation as the
// transfer, so concurrent claims on one reward yield exactly one success.
func (e *Engine) ClaimReward(streamID string, viewer [20]byte) (*ViewerReward, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	var reward *ViewerReward
	err := e.withUpdate(func(st State) error {
		s, err := loadStream(st, streamID)
		if err != nil {
			return err
		}
		var ok bool
		reward, ok, err = st.RewardGet(s.ID, viewer)
		if err != nil {
			return err
		}
		if !ok || reward == nil {
			return ErrRewardNotFound
		}
		if reward.Claimed {
			return ErrRewardAlreadyClaimed
		}
		if s.Active {
			return ErrStreamStillActive
		}
		if err := transfer(st, s.Vault, viewer, reward.Amount); err != nil {
			return err
		}
		reward.Claimed = true
		reward.ClaimedAt = e.now()
		return st.RewardPut(reward)
	})
	if err != nil {
		return nil, err
	}
	e.emit(NewRewardClaimedEvent(reward))
	return reward.Clone(), nil
}
