package redo

import (
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/kartikbazzad/bunbase/redolog/internal/errors"
	"github.com/kartikbazzad/bunbase/redolog/internal/logio"
)

// TransactionID names one logical operation from its start marker to its
// commit or abort. Ids order by Time, then Counter.
type TransactionID struct {
	Time    int32
	Counter int32
}

func (id TransactionID) Compare(o TransactionID) int {
	switch {
	case id.Time < o.Time:
		return -1
	case id.Time > o.Time:
		return 1
	case id.Counter < o.Counter:
		return -1
	case id.Counter > o.Counter:
		return 1
	}
	return 0
}

func (id TransactionID) Less(o TransactionID) bool { return id.Compare(o) < 0 }

func (id TransactionID) Equal(o TransactionID) bool { return id == o }

func (id TransactionID) IsZero() bool { return id == TransactionID{} }

// EncodeToString returns "<time>-<counter>".
func (id TransactionID) EncodeToString() string {
	return fmt.Sprintf("%d-%d", id.Time, id.Counter)
}

func (id TransactionID) String() string {
	return id.EncodeToString()
}

// DecodeTransactionID parses the form produced by EncodeToString.
func DecodeTransactionID(s string) (TransactionID, error) {
	fields, err := splitSigned(s, 2)
	if err != nil {
		return TransactionID{}, err
	}
	t, err := strconv.ParseInt(fields[0], 10, 32)
	if err != nil {
		return TransactionID{}, errors.Wrapf(errors.ErrMalformedID, "transaction id %q: time", s)
	}
	c, err := strconv.ParseInt(fields[1], 10, 32)
	if err != nil {
		return TransactionID{}, errors.Wrapf(errors.ErrMalformedID, "transaction id %q: counter", s)
	}
	return TransactionID{Time: int32(t), Counter: int32(c)}, nil
}

func (id TransactionID) Serialize(out *logio.Output) {
	out.Int(id.Time)
	out.Int(id.Counter)
}

func DeserializeTransactionID(in *logio.Input) (TransactionID, error) {
	id := TransactionID{Time: in.Int(), Counter: in.Int()}
	return id, in.Err()
}

// splitSigned splits s on '-' into exactly n fields. A '-' at the start of a
// field is a minus sign, not a separator.
func splitSigned(s string, n int) ([]string, error) {
	fields := make([]string, 0, n)
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] != '-' || i == start {
			continue
		}
		fields = append(fields, s[start:i])
		start = i + 1
	}
	fields = append(fields, s[start:])
	if len(fields) != n {
		return nil, errors.Wrapf(errors.ErrMalformedID, "%q: want %d fields, got %d", s, n, len(fields))
	}
	for _, f := range fields {
		if f == "" || f == "-" {
			return nil, errors.Wrapf(errors.ErrMalformedID, "%q: empty field", s)
		}
	}
	return fields, nil
}

// TxnIDGenerator hands out increasing transaction ids. Time is wall-clock
// seconds; Counter restarts when the clock moves forward.
type TxnIDGenerator struct {
	mu      sync.Mutex
	now     func() time.Time
	time    int32
	counter int32
}

func NewTxnIDGenerator() *TxnIDGenerator {
	return &TxnIDGenerator{now: time.Now}
}

func (g *TxnIDGenerator) Next() TransactionID {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := int32(g.now().Unix())
	if now > g.time {
		g.time = now
		g.counter = 0
	}
	if g.counter == math.MaxInt32 {
		g.time++
		g.counter = 0
	}
	g.counter++
	return TransactionID{Time: g.time, Counter: g.counter}
}

// Observe makes every later id greater than id. Used after a scan so new ids
// never collide with ones already in the journal.
func (g *TxnIDGenerator) Observe(id TransactionID) {
	g.mu.Lock()
	defer g.mu.Unlock()

	cur := TransactionID{Time: g.time, Counter: g.counter}
	if id.Compare(cur) > 0 {
		g.time = id.Time
		g.counter = id.Counter
	}
}
