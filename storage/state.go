package storage

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"vibestream/core/types"
	"vibestream/native/stream"
)

var (
	bucketPlatform  = []byte("platform")
	bucketStreams   = []byte("streams")
	bucketDonations = []byte("donations")
	bucketRewards   = []byte("rewards")
	bucketDisputes  = []byte("disputes")
	bucketAccounts  = []byte("accounts")

	platformKey = []byte("platform")
)

var (
	_ stream.State              = (*State)(nil)
	_ stream.TransactionalState = (*State)(nil)
	_ stream.State              = (*txState)(nil)
)

// State is a durable implementation of the settlement engine's state backend
// on top of bbolt. Records are stored JSON-encoded; donation keys carry the
// stream id as a prefix followed by a bucket-wide sequence number, which keeps
// per-stream insertion order under a prefix scan.
//
// Standalone calls each run in their own bbolt transaction. The engine batches
// all writes of one operation into a single transaction via WithinTransaction,
// so a failed write mid-operation rolls the whole operation back.
type State struct {
	db *bolt.DB
}

// Open creates or opens the settlement database at path.
func Open(path string) (*State, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketPlatform, bucketStreams, bucketDonations, bucketRewards, bucketDisputes, bucketAccounts} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: create buckets: %w", err)
	}
	return &State{db: db}, nil
}

// Close releases the underlying database handle.
func (s *State) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// WithinTransaction executes fn against a view of the store scoped to one
// read-write bbolt transaction. If fn returns an error the transaction is
// rolled back and none of its writes persist.
func (s *State) WithinTransaction(fn func(stream.State) error) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return fn(&txState{tx: tx})
	})
}

// txState serves engine state calls from an already-open transaction. It must
// not outlive the WithinTransaction callback that produced it.
type txState struct {
	tx *bolt.Tx
}

func putJSON(b *bolt.Bucket, key []byte, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put(key, raw)
}

// rewardKey and disputeKey scope records to their parent stream while staying
// independently addressable by viewer/claimant identity.
func scopedKey(streamID string, addr [20]byte) []byte {
	key := make([]byte, 0, len(streamID)+1+len(addr))
	key = append(key, []byte(streamID)...)
	key = append(key, 0x00)
	key = append(key, addr[:]...)
	return key
}

func donationKey(streamID string, seq uint64) []byte {
	key := make([]byte, 0, len(streamID)+9)
	key = append(key, []byte(streamID)...)
	key = append(key, 0x00)
	var suffix [8]byte
	binary.BigEndian.PutUint64(suffix[:], seq)
	return append(key, suffix[:]...)
}

func platformGet(tx *bolt.Tx) (*stream.Platform, bool, error) {
	raw := tx.Bucket(bucketPlatform).Get(platformKey)
	if raw == nil {
		return nil, false, nil
	}
	platform := new(stream.Platform)
	if err := json.Unmarshal(raw, platform); err != nil {
		return nil, false, err
	}
	return platform, true, nil
}

func platformPut(tx *bolt.Tx, p *stream.Platform) error {
	if p == nil {
		return fmt.Errorf("storage: nil platform")
	}
	return putJSON(tx.Bucket(bucketPlatform), platformKey, p)
}

func streamGet(tx *bolt.Tx, id string) (*stream.Stream, bool, error) {
	raw := tx.Bucket(bucketStreams).Get([]byte(id))
	if raw == nil {
		return nil, false, nil
	}
	record := new(stream.Stream)
	if err := json.Unmarshal(raw, record); err != nil {
		return nil, false, err
	}
	return record, true, nil
}

func streamPut(tx *bolt.Tx, record *stream.Stream) error {
	sanitized, err := stream.SanitizeStream(record)
	if err != nil {
		return err
	}
	return putJSON(tx.Bucket(bucketStreams), []byte(sanitized.ID), sanitized)
}

func donationAppend(tx *bolt.Tx, d *stream.Donation) error {
	if d == nil {
		return fmt.Errorf("storage: nil donation")
	}
	bucket := tx.Bucket(bucketDonations)
	seq, err := bucket.NextSequence()
	if err != nil {
		return err
	}
	return putJSON(bucket, donationKey(d.StreamID, seq), d)
}

func rewardGet(tx *bolt.Tx, streamID string, viewer [20]byte) (*stream.ViewerReward, bool, error) {
	raw := tx.Bucket(bucketRewards).Get(scopedKey(streamID, viewer))
	if raw == nil {
		return nil, false, nil
	}
	reward := new(stream.ViewerReward)
	if err := json.Unmarshal(raw, reward); err != nil {
		return nil, false, err
	}
	return reward, true, nil
}

func rewardPut(tx *bolt.Tx, r *stream.ViewerReward) error {
	if r == nil {
		return fmt.Errorf("storage: nil reward")
	}
	return putJSON(tx.Bucket(bucketRewards), scopedKey(r.StreamID, r.Viewer), r)
}

func disputeGet(tx *bolt.Tx, streamID string, claimant [20]byte) (*stream.Dispute, bool, error) {
	raw := tx.Bucket(bucketDisputes).Get(scopedKey(streamID, claimant))
	if raw == nil {
		return nil, false, nil
	}
	dispute := new(stream.Dispute)
	if err := json.Unmarshal(raw, dispute); err != nil {
		return nil, false, err
	}
	return dispute, true, nil
}

func disputePut(tx *bolt.Tx, d *stream.Dispute) error {
	if d == nil {
		return fmt.Errorf("storage: nil dispute")
	}
	return putJSON(tx.Bucket(bucketDisputes), scopedKey(d.StreamID, d.Claimant), d)
}

func getAccount(tx *bolt.Tx, addr []byte) (*types.Account, error) {
	raw := tx.Bucket(bucketAccounts).Get(addr)
	if raw == nil {
		return &types.Account{}, nil
	}
	account := new(types.Account)
	if err := json.Unmarshal(raw, account); err != nil {
		return nil, err
	}
	return account, nil
}

func putAccount(tx *bolt.Tx, addr []byte, account *types.Account) error {
	if account == nil {
		return fmt.Errorf("storage: nil account")
	}
	key := append([]byte(nil), addr...)
	return putJSON(tx.Bucket(bucketAccounts), key, account)
}

// PlatformGet loads the platform registry record if it exists.
func (s *State) PlatformGet() (platform *stream.Platform, ok bool, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		platform, ok, err = platformGet(tx)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return platform, ok, nil
}

// PlatformPut persists the platform registry record.
func (s *State) PlatformPut(p *stream.Platform) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return platformPut(tx, p)
	})
}

// StreamGet loads a stream by identifier.
func (s *State) StreamGet(id string) (record *stream.Stream, ok bool, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		record, ok, err = streamGet(tx, id)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return record, ok, nil
}

// StreamPut persists a sanitized copy of the stream record.
func (s *State) StreamPut(record *stream.Stream) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return streamPut(tx, record)
	})
}

// DonationAppend stores one donation record keyed by stream prefix and the
// next sequence number. Donations are never mutated or deleted.
func (s *State) DonationAppend(d *stream.Donation) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return donationAppend(tx, d)
	})
}

// DonationsByStream returns the stored donations for a stream in append
// order. Used by operational surfaces, not by the engine itself.
func (s *State) DonationsByStream(streamID string) ([]*stream.Donation, error) {
	prefix := append([]byte(streamID), 0x00)
	var out []*stream.Donation
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketDonations).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			d := new(stream.Donation)
			if err := json.Unmarshal(v, d); err != nil {
				return err
			}
			out = append(out, d)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RewardGet loads the viewer reward for (stream, viewer).
func (s *State) RewardGet(streamID string, viewer [20]byte) (reward *stream.ViewerReward, ok bool, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		reward, ok, err = rewardGet(tx, streamID, viewer)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return reward, ok, nil
}

// RewardPut persists a viewer reward record.
func (s *State) RewardPut(r *stream.ViewerReward) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return rewardPut(tx, r)
	})
}

// DisputeGet loads the dispute for (stream, claimant).
func (s *State) DisputeGet(streamID string, claimant [20]byte) (dispute *stream.Dispute, ok bool, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		dispute, ok, err = disputeGet(tx, streamID, claimant)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return dispute, ok, nil
}

// DisputePut persists a dispute record.
func (s *State) DisputePut(d *stream.Dispute) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return disputePut(tx, d)
	})
}

// GetAccount loads a ledger account, returning a zero-balance account when
// the address has never been seen.
func (s *State) GetAccount(addr []byte) (account *types.Account, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		account, err = getAccount(tx, addr)
		return err
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

// PutAccount persists a ledger account.
func (s *State) PutAccount(addr []byte, account *types.Account) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putAccount(tx, addr, account)
	})
}

func (t *txState) PlatformGet() (*stream.Platform, bool, error) {
	return platformGet(t.tx)
}

func (t *txState) PlatformPut(p *stream.Platform) error {
	return platformPut(t.tx, p)
}

func (t *txState) StreamGet(id string) (*stream.Stream, bool, error) {
	return streamGet(t.tx, id)
}

func (t *txState) StreamPut(record *stream.Stream) error {
	return streamPut(t.tx, record)
}

func (t *txState) DonationAppend(d *stream.Donation) error {
	return donationAppend(t.tx, d)
}

func (t *txState) RewardGet(streamID string, viewer [20]byte) (*stream.ViewerReward, bool, error) {
	return rewardGet(t.tx, streamID, viewer)
}

func (t *txState) RewardPut(r *stream.ViewerReward) error {
	return rewardPut(t.tx, r)
}

func (t *txState) DisputeGet(streamID string, claimant [20]byte) (*stream.Dispute, bool, error) {
	return disputeGet(t.tx, streamID, claimant)
}

func (t *txState) DisputePut(d *stream.Dispute) error {
	return disputePut(t.tx, d)
}

func (t *txState) GetAccount(addr []byte) (*types.Account, error) {
	return getAccount(t.tx, addr)
}

func (t *txState) PutAccount(addr []byte, account *types.Account) error {
	return putAccount(t.tx, addr, account)
}
