package outbox

import (
	"path/filepath"
	"sync/atomic"
)

// Outbox ties the payload journal to the publish-state index. Append
// is called on the engine's write path; the broadcaster drains with
// ScanPending and acknowledges with MarkSent/MarkAcked; GC trims both
// stores once a prefix is fully acked. lastSeq is atomic because GC
// runs on the broadcaster goroutine.
type Outbox struct {
	journal *Journal
	state   *StateStore
	lastSeq atomic.Uint64
}

type Config struct {
	Dir         string
	SegmentSize int64
}

func Open(cfg Config) (*Outbox, error) {
	j, err := OpenJournal(JournalConfig{Dir: filepath.Join(cfg.Dir, "journal"), SegmentSize: cfg.SegmentSize})
	if err != nil {
		return nil, err
	}
	st, err := OpenStateStore(filepath.Join(cfg.Dir, "state"))
	if err != nil {
		_ = j.Close()
		return nil, err
	}
	return &Outbox{journal: j, state: st}, nil
}

func (o *Outbox) Close() error {
	jerr := o.journal.Close()
	serr := o.state.Close()
	if jerr != nil {
		return jerr
	}
	return serr
}

// Append journals an event payload and registers it as pending.
func (o *Outbox) Append(t RecordType, seq uint64, payload []byte) error {
	pos, err := o.journal.Append(NewRecord(t, seq, payload))
	if err != nil {
		return err
	}
	for {
		last := o.lastSeq.Load()
		if seq <= last || o.lastSeq.CompareAndSwap(last, seq) {
			break
		}
	}
	return o.state.PutNew(seq, pos)
}

// ScanPending visits every unacked event with its publish state and
// journal payload, in sequence order.
func (o *Outbox) ScanPending(fn func(seq uint64, st StateRecord, rec *Record) error) error {
	return o.state.ScanPending(func(seq uint64, st StateRecord) error {
		rec, err := o.journal.ReadAt(st.Pos)
		if err != nil {
			return err
		}
		return fn(seq, st, rec)
	})
}

func (o *Outbox) MarkSent(seq uint64) error   { return o.state.MarkSent(seq) }
func (o *Outbox) MarkAcked(seq uint64) error  { return o.state.MarkAcked(seq) }
func (o *Outbox) MarkFailed(seq uint64) error { return o.state.MarkFailed(seq) }

// GC drops acked state records and journal segments that no pending
// event still references.
func (o *Outbox) GC() error {
	min, err := o.state.MinPending(o.lastSeq.Load())
	if err != nil {
		return err
	}
	if err := o.state.DeleteAckedBefore(min); err != nil {
		return err
	}
	if min == 0 {
		return nil
	}
	return o.journal.TruncateBefore(min - 1)
}

// Sync flushes the journal to disk.
func (o *Outbox) Sync() error {
	return o.journal.Sync()
}
