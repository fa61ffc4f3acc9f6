// Package storage persists the engine's event stream. Events are the only
// externally observable history of the exchange, so the journal doubles as
// its durable audit log.
package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"go.uber.org/zap"

	"github.com/jpark-fi/onbook/pkg/core/engine"
	"github.com/jpark-fi/onbook/pkg/util"
)

// Record is one journaled event. Seq is assigned by the journal and is
// strictly increasing; Event holds the JSON encoding of the engine event.
type Record struct {
	Seq   uint64          `json:"seq"`
	Name  string          `json:"name"`
	Time  time.Time       `json:"time"`
	Event json.RawMessage `json:"event"`
}

// EventLog is a pebble-backed append-only event journal. It implements
// engine.Sink, so it can be wired directly as (part of) the engine's sink.
type EventLog struct {
	mu    sync.Mutex
	db    *pebble.DB
	seq   uint64 // last assigned sequence number
	clock util.Clock
	log   *zap.SugaredLogger
}

// keys: e:<8-byte big-endian seq>
func kEvent(seq uint64) []byte {
	key := make([]byte, 2+8)
	copy(key, "e:")
	binary.BigEndian.PutUint64(key[2:], seq)
	return key
}

var eventPrefix = []byte("e:")

// OpenEventLog opens (or creates) the journal at path and recovers the last
// sequence number from the newest key.
func OpenEventLog(path string, logger *zap.SugaredLogger) (*EventLog, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open event log at %s: %w", path, err)
	}

	l := &EventLog{db: db, clock: util.RealClock{}, log: logger}
	if l.log == nil {
		l.log = zap.NewNop().Sugar()
	}

	iter, err := db.NewIter(&pebble.IterOptions{
		LowerBound: eventPrefix,
		UpperBound: keyUpperBound(eventPrefix),
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("recover event log: %w", err)
	}
	if iter.Last() && iter.Valid() {
		l.seq = binary.BigEndian.Uint64(iter.Key()[2:])
	}
	if err := iter.Close(); err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

func (l *EventLog) Close() error { return l.db.Close() }

// Emit journals the event. Sink delivery is fire-and-forget, so journal
// failures are logged rather than propagated; the in-memory engine state is
// already committed by the time the sink runs.
func (l *EventLog) Emit(ev engine.Event) {
	if err := l.Append(ev.Name(), ev); err != nil {
		l.log.Errorw("event_journal_append_failed", "event", ev.Name(), "err", err)
	}
}

// Append journals one event under the next sequence number.
func (l *EventLog) Append(name string, ev any) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", name, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	rec := Record{
		Seq:   l.seq + 1,
		Name:  name,
		Time:  l.clock.Now().UTC(),
		Event: payload,
	}
	val, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record %d: %w", rec.Seq, err)
	}
	if err := l.db.Set(kEvent(rec.Seq), val, pebble.Sync); err != nil {
		return fmt.Errorf("append record %d: %w", rec.Seq, err)
	}
	l.seq = rec.Seq
	return nil
}

// Replay streams every journaled record in sequence order. A non-nil error
// from fn stops the replay and is returned.
func (l *EventLog) Replay(fn func(Record) error) error {
	iter, err := l.db.NewIter(&pebble.IterOptions{
		LowerBound: eventPrefix,
		UpperBound: keyUpperBound(eventPrefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		var rec Record
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			return fmt.Errorf("decode record at %x: %w", iter.Key(), err)
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return iter.Error()
}

// Seq returns the last assigned sequence number (0 when empty).
func (l *EventLog) Seq() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seq
}

// keyUpperBound returns the smallest key greater than every key with the
// given prefix.
func keyUpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

var _ engine.Sink = (*EventLog)(nil)
