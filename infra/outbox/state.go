package outbox

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"
)

type PublishState uint8

const (
	StateNew PublishState = iota
	StateSent
	StateAcked
	StateFailed
)

func (s PublishState) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateSent:
		return "SENT"
	case StateAcked:
		return "ACKED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// StateRecord tracks the publish lifecycle of one journaled event and
// points back at its payload in the journal.
type StateRecord struct {
	State       PublishState
	Retries     uint32
	LastAttempt int64
	Pos         Position
}

const stateRecordLen = 1 + 4 + 8 + 4 + 8

// binary encoding: [state:1][retries:4][lastAttempt:8][segment:4][offset:8]
func encodeStateRecord(r StateRecord) []byte {
	buf := make([]byte, stateRecordLen)
	buf[0] = byte(r.State)
	binary.BigEndian.PutUint32(buf[1:5], r.Retries)
	binary.BigEndian.PutUint64(buf[5:13], uint64(r.LastAttempt))
	binary.BigEndian.PutUint32(buf[13:17], r.Pos.Segment)
	binary.BigEndian.PutUint64(buf[17:25], uint64(r.Pos.Offset))
	return buf
}

func decodeStateRecord(b []byte) (StateRecord, error) {
	if len(b) != stateRecordLen {
		return StateRecord{}, errors.New("outbox: invalid state record length")
	}
	return StateRecord{
		State:       PublishState(b[0]),
		Retries:     binary.BigEndian.Uint32(b[1:5]),
		LastAttempt: int64(binary.BigEndian.Uint64(b[5:13])),
		Pos: Position{
			Segment: binary.BigEndian.Uint32(b[13:17]),
			Offset:  int64(binary.BigEndian.Uint64(b[17:25])),
		},
	}, nil
}

// StateStore is the pebble-backed publish-state index.
type StateStore struct {
	db *pebble.DB
}

func OpenStateStore(dir string) (*StateStore, error) {
	db, err := pebble.Open(dir, &pebble.Options{
		DisableWAL: false, // publish state must survive a crash
	})
	if err != nil {
		return nil, err
	}
	return &StateStore{db: db}, nil
}

func (s *StateStore) Close() error {
	return s.db.Close()
}

// PutNew registers a freshly journaled event.
func (s *StateStore) PutNew(seq uint64, pos Position) error {
	rec := StateRecord{State: StateNew, Pos: pos}
	return s.db.Set(keyFor(seq), encodeStateRecord(rec), pebble.Sync)
}

// MarkSent flags an event as handed to the producer. Idempotent.
func (s *StateStore) MarkSent(seq uint64) error {
	return s.transition(seq, StateSent)
}

// MarkAcked flags an event as confirmed by the broker.
func (s *StateStore) MarkAcked(seq uint64) error {
	return s.transition(seq, StateAcked)
}

// MarkFailed parks an event after the producer gave up on it.
func (s *StateStore) MarkFailed(seq uint64) error {
	return s.transition(seq, StateFailed)
}

func (s *StateStore) transition(seq uint64, state PublishState) error {
	rec, err := s.Get(seq)
	if err != nil {
		return err
	}
	rec.State = state
	rec.Retries++
	rec.LastAttempt = time.Now().UnixNano()
	return s.db.Set(keyFor(seq), encodeStateRecord(rec), pebble.Sync)
}

// Get returns the current record for an event.
func (s *StateStore) Get(seq uint64) (StateRecord, error) {
	val, closer, err := s.db.Get(keyFor(seq))
	if err != nil {
		return StateRecord{}, err
	}
	defer closer.Close()

	return decodeStateRecord(val)
}

// ScanPending iterates every record still awaiting publication, in
// sequence order. Acked records are done; failed records are parked
// for the operator and not retried.
func (s *StateStore) ScanPending(fn func(seq uint64, rec StateRecord) error) error {
	return s.scan(func(seq uint64, rec StateRecord) error {
		if rec.State == StateAcked || rec.State == StateFailed {
			return nil
		}
		return fn(seq, rec)
	})
}

// MinPending returns the lowest sequence whose payload must still be
// retained (anything not acked, parked failures included), or
// lastSeq+1 when everything up to lastSeq is done.
func (s *StateStore) MinPending(lastSeq uint64) (uint64, error) {
	min := lastSeq + 1
	err := s.scan(func(seq uint64, rec StateRecord) error {
		if rec.State != StateAcked && seq < min {
			min = seq
		}
		return nil
	})
	return min, err
}

// DeleteAckedBefore removes acked records with sequence < seq.
func (s *StateStore) DeleteAckedBefore(seq uint64) error {
	return s.scan(func(recSeq uint64, rec StateRecord) error {
		if rec.State == StateAcked && recSeq < seq {
			return s.db.Delete(keyFor(recSeq), pebble.Sync)
		}
		return nil
	})
}

func (s *StateStore) scan(fn func(seq uint64, rec StateRecord) error) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte("evt/"),
		UpperBound: []byte("evt/~"),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		rec, err := decodeStateRecord(iter.Value())
		if err != nil {
			return err
		}
		seq, err := parseKey(iter.Key())
		if err != nil {
			return err
		}
		if err := fn(seq, rec); err != nil {
			return err
		}
	}
	return iter.Error()
}

// ---- keys ----

func keyFor(seq uint64) []byte {
	return []byte(fmt.Sprintf("evt/%020d", seq))
}

func parseKey(b []byte) (uint64, error) {
	var seq uint64
	_, err := fmt.Sscanf(string(bytes.TrimPrefix(b, []byte("evt/"))), "%d", &seq)
	return seq, err
}
