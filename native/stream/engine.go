package stream

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"vibestream/core/events"
	"vibestream/core/types"
)

var (
	errNilState = errors.New("stream engine: state not configured")

	ErrPlatformNotInitialized  = errors.New("stream engine: platform not initialized")
	ErrPlatformExists          = errors.New("stream engine: platform already initialized")
	ErrPercentageRange         = errors.New("stream engine: percentage exceeds 100")
	ErrStreamExists            = errors.New("stream engine: stream already exists")
	ErrStreamNotFound          = errors.New("stream engine: stream not found")
	ErrStreamInactive          = errors.New("stream engine: stream is not active")
	ErrStreamStillActive       = errors.New("stream engine: stream is still active")
	ErrStreamDurationNotMet    = errors.New("stream engine: minimum stream duration not met")
	ErrTimeoutNotElapsed       = errors.New("stream engine: settlement timeout not elapsed")
	ErrInvalidBackendSignature = errors.New("stream engine: invalid backend signature")
	ErrMathOverflow            = errors.New("stream engine: arithmetic overflow")
	ErrInvalidAmount           = errors.New("stream engine: amount must be positive")
	ErrInsufficientFunds       = errors.New("stream engine: insufficient balance")
	ErrRewardNotFound          = errors.New("stream engine: reward not found")
	ErrRewardAlreadyClaimed    = errors.New("stream engine: reward already claimed")
	ErrDisputeExists           = errors.New("stream engine: dispute already open for claimant")
	ErrDisputeNotFound         = errors.New("stream engine: dispute not found")
	ErrDisputeAlreadyResolved  = errors.New("stream engine: dispute already resolved")
	ErrUnauthorized            = errors.New("stream engine: caller not authorized")
	ErrTooManyAttestations     = errors.New("stream engine: attestation list too long")
	ErrDuplicateAttestation    = errors.New("stream engine: duplicate viewer in attestation list")
)

// State is the storage surface the engine drives. Implementations must make
// each individual call atomic; backends that can batch the calls of one
// engine operation into a single storage transaction should additionally
// implement TransactionalState.
type State interface {
	PlatformGet() (*Platform, bool, error)
	PlatformPut(*Platform) error
	StreamGet(id string) (*Stream, bool, error)
	StreamPut(*Stream) error
	DonationAppend(*Donation) error
	RewardGet(streamID string, viewer [20]byte) (*ViewerReward, bool, error)
	RewardPut(*ViewerReward) error
	DisputeGet(streamID string, claimant [20]byte) (*Dispute, bool, error)
	DisputePut(*Dispute) error
	GetAccount(addr []byte) (*types.Account, error)
	PutAccount(addr []byte, account *types.Account) error
}

// TransactionalState is implemented by backends whose writes can be scoped to
// one atomic storage transaction. When the engine's state implements it,
// every mutating operation runs inside a single transaction: a failed write
// anywhere in the operation rolls the whole operation back, so no partial
// settlement state can ever persist.
type TransactionalState interface {
	State
	WithinTransaction(fn func(State) error) error
}

// Engine wires the stream settlement business logic with external state, the
// attestation verifier and event emission. Mutating operations are serialised
// behind a single mutex so the state machine guarantees hold: at most one
// successful settlement per stream and at most one successful claim per
// reward.
type Engine struct {
	mu       sync.Mutex
	state    State
	emitter  events.Emitter
	verifier Verifier
	nowFn    func() int64
}

// NewEngine constructs a settlement engine with a no-op emitter and the
// default signature verifier. Callers wire state via SetState.
func NewEngine() *Engine {
	return &Engine{
		emitter:  events.NoopEmitter{},
		verifier: RecoverVerifier{},
		nowFn:    func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state State) { e.state = state }

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetVerifier overrides the signature verification predicate. Passing nil
// restores the default recovery-based verifier.
func (e *Engine) SetVerifier(v Verifier) {
	if v == nil {
		e.verifier = RecoverVerifier{}
		return
	}
	e.verifier = v
}

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(WrapEvent(event))
}

func (e *Engine) emitAll(pending []*types.Event) {
	for _, event := range pending {
		e.emit(event)
	}
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

// withUpdate runs fn, routing it through a single storage transaction when
// the backend supports one. Events must be emitted by the caller after fn has
// committed, never inside it.
func (e *Engine) withUpdate(fn func(State) error) error {
	if tx, ok := e.state.(TransactionalState); ok {
		return tx.WithinTransaction(fn)
	}
	return fn(e.state)
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func ensureAccount(acc *types.Account) *types.Account {
	if acc == nil {
		return &types.Account{Balance: big.NewInt(0)}
	}
	if acc.Balance == nil {
		acc.Balance = big.NewInt(0)
	}
	return acc
}

func loadPlatform(st State) (*Platform, error) {
	platform, ok, err := st.PlatformGet()
	if err != nil {
		return nil, err
	}
	if !ok || platform == nil {
		return nil, ErrPlatformNotInitialized
	}
	return platform, nil
}

func loadStream(st State, id string) (*Stream, error) {
	sanitized, err := SanitizeStreamID(id)
	if err != nil {
		return nil, err
	}
	s, ok, err := st.StreamGet(sanitized)
	if err != nil {
		return nil, err
	}
	if !ok || s == nil {
		return nil, ErrStreamNotFound
	}
	return s, nil
}

// transfer moves amount between two ledger accounts. A zero amount is a no-op;
// a shortfall on the source aborts with no balance change.
func transfer(st State, from, to [20]byte, amount *big.Int) error {
	amt := cloneBigInt(amount)
	if amt.Sign() == 0 {
		return nil
	}
	if amt.Sign() < 0 {
		return fmt.Errorf("stream engine: negative transfer amount")
	}
	fromAcc, err := st.GetAccount(from[:])
	if err != nil {
		return err
	}
	toAcc, err := st.GetAccount(to[:])
	if err != nil {
		return err
	}
	fromAcc = ensureAccount(fromAcc)
	toAcc = ensureAccount(toAcc)
	if fromAcc.Balance.Cmp(amt) < 0 {
		return ErrInsufficientFunds
	}
	fromAcc.Balance = new(big.Int).Sub(fromAcc.Balance, amt)
	toAcc.Balance = new(big.Int).Add(toAcc.Balance, amt)
	if err := st.PutAccount(from[:], fromAcc); err != nil {
		return err
	}
	if err := st.PutAccount(to[:], toAcc); err != nil {
		return err
	}
	return nil
}

// Initialize creates the platform registry record. The caller becomes the
// operator; the backend signer is the identity whose signatures gate
// settlement. Fails if the registry already exists.
func (e *Engine) Initialize(operator [20]byte, feePercentage uint8, backendSigner [20]byte) (*Platform, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if feePercentage > 100 {
		return nil, ErrPercentageRange
	}
	if backendSigner == ([20]byte{}) {
		return nil, fmt.Errorf("stream engine: backend signer required")
	}
	var platform *Platform
	err := e.withUpdate(func(st State) error {
		if _, ok, err := st.PlatformGet(); err != nil {
			return err
		} else if ok {
			return ErrPlatformExists
		}
		platform = &Platform{
			Operator:      operator,
			BackendSigner: backendSigner,
			FeePercentage: feePercentage,
			StreamCounter: 0,
			CreatedAt:     e.now(),
		}
		return st.PlatformPut(platform)
	})
	if err != nil {
		return nil, err
	}
	return platform.Clone(), nil
}

// SetBackendSigner rotates the registered attestation signer. Operator only.
func (e *Engine) SetBackendSigner(caller, signer [20]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if signer == ([20]byte{}) {
		return fmt.Errorf("stream engine: backend signer required")
	}
	return e.withUpdate(func(st State) error {
		platform, err := loadPlatform(st)
		if err != nil {
			return err
		}
		if caller != platform.Operator {
			return ErrUnauthorized
		}
		platform.BackendSigner = signer
		return st.PlatformPut(platform)
	})
}

// StartStream registers a new stream with its payout parameters, derives the
// escrow vault bound to it and bumps the platform stream counter.
func (e *Engine) StartStream(creator [20]byte, id string, creatorShare, minWatchPct uint8, minDuration int64) (*Stream, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if creatorShare > 100 || minWatchPct > 100 {
		return nil, ErrPercentageRange
	}
	if minDuration < 0 {
		return nil, fmt.Errorf("stream engine: negative minimum duration")
	}
	sanitized, err := SanitizeStreamID(id)
	if err != nil {
		return nil, err
	}
	var s *Stream
	err = e.withUpdate(func(st State) error {
		platform, err := loadPlatform(st)
		if err != nil {
			return err
		}
		if _, ok, err := st.StreamGet(sanitized); err != nil {
			return err
		} else if ok {
			return ErrStreamExists
		}
		s = &Stream{
			ID:             sanitized,
			Creator:        creator,
			Vault:          DeriveVaultAddress(sanitized),
			CreatorShare:   creatorShare,
			MinWatchPct:    minWatchPct,
			MinDuration:    minDuration,
			StartTime:      e.now(),
			Active:         true,
			TotalDonations: big.NewInt(0),
		}
		if err := st.StreamPut(s); err != nil {
			return err
		}
		platform.StreamCounter++
		return st.PlatformPut(platform)
	})
	if err != nil {
		return nil, err
	}
	e.emit(NewStreamStartedEvent(s))
	return s.Clone(), nil
}

// Donate moves amount from the donor into the stream's escrow vault, grows
// the stream donation total and appends the donation record. The operation is
// all-or-nothing: a failed transfer or write leaves no partial state behind.
func (e *Engine) Donate(donor [20]byte, streamID string, amount *big.Int) (*Donation, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	var (
		donation *Donation
		total    *big.Int
	)
	err := e.withUpdate(func(st State) error {
		s, err := loadStream(st, streamID)
		if err != nil {
			return err
		}
		if !s.Active {
			return ErrStreamInactive
		}
		if err := transfer(st, donor, s.Vault, amount); err != nil {
			return err
		}
		s.TotalDonations = new(big.Int).Add(s.TotalDonations, amount)
		if err := st.StreamPut(s); err != nil {
			return err
		}
		donation = &Donation{
			StreamID:  s.ID,
			Donor:     donor,
			Amount:    cloneBigInt(amount),
			Timestamp: e.now(),
		}
		total = cloneBigInt(s.TotalDonations)
		return st.DonationAppend(donation)
	})
	if err != nil {
		return nil, err
	}
	e.emit(NewDonationReceivedEvent(donation, total))
	return donation.Clone(), nil
}

// Platform returns a copy of the platform registry record.
func (e *Engine) Platform() (*Platform, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	platform, err := loadPlatform(e.state)
	if err != nil {
		return nil, err
	}
	return platform.Clone(), nil
}

// Stream returns a copy of the stream record for the supplied identifier.
func (e *Engine) Stream(id string) (*Stream, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	s, err := loadStream(e.state, id)
	if err != nil {
		return nil, err
	}
	return s.Clone(), nil
}

// Reward returns a copy of the viewer reward for (stream, viewer).
func (e *Engine) Reward(streamID string, viewer [20]byte) (*ViewerReward, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	sanitized, err := SanitizeStreamID(streamID)
	if err != nil {
		return nil, err
	}
	reward, ok, err := e.state.RewardGet(sanitized, viewer)
	if err != nil {
		return nil, err
	}
	if !ok || reward == nil {
		return nil, ErrRewardNotFound
	}
	return reward.Clone(), nil
}

// Dispute returns a copy of the dispute record for (stream, claimant).
func (e *Engine) Dispute(streamID string, claimant [20]byte) (*Dispute, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	sanitized, err := SanitizeStreamID(streamID)
	if err != nil {
		return nil, err
	}
	dispute, ok, err := e.state.DisputeGet(sanitized, claimant)
	if err != nil {
		return nil, err
	}
	if !ok || dispute == nil {
		return nil, ErrDisputeNotFound
	}
	return dispute.Clone(), nil
}
