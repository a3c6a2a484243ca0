package redo

import (
	"bytes"
	"math"
	"testing"
	"time"

	"github.com/kartikbazzad/bunbase/redolog/internal/errors"
	"github.com/kartikbazzad/bunbase/redolog/internal/logio"
)

func TestTransactionIDRoundTrip(t *testing.T) {
	ids := []TransactionID{
		{Time: 100, Counter: 1},
		{Time: 0, Counter: 0},
		{Time: -5, Counter: 3},
		{Time: 5, Counter: -3},
		{Time: math.MinInt32, Counter: math.MaxInt32},
	}
	for _, id := range ids {
		s := id.EncodeToString()
		got, err := DecodeTransactionID(s)
		if err != nil {
			t.Fatalf("Failed to decode %q: %v", s, err)
		}
		if got != id {
			t.Errorf("DecodeTransactionID(%q) = %v, want %v", s, got, id)
		}
	}
}

func TestTransactionIDOrdering(t *testing.T) {
	a := TransactionID{Time: 100, Counter: 2}
	b := TransactionID{Time: 100, Counter: 3}
	c := TransactionID{Time: 101, Counter: 1}

	if !a.Less(b) || !b.Less(c) || !a.Less(c) {
		t.Error("Expected a < b < c")
	}
	if c.Compare(a) != 1 || a.Compare(a) != 0 {
		t.Error("Compare mismatch")
	}
	if !a.Equal(TransactionID{Time: 100, Counter: 2}) || a.Equal(b) {
		t.Error("Equal mismatch")
	}
}

func TestDecodeTransactionIDMalformed(t *testing.T) {
	for _, s := range []string{"", "100", "100-", "-100", "a-b", "1-2-3", "100--", "99999999999-1"} {
		if _, err := DecodeTransactionID(s); !errors.Is(err, errors.ErrMalformedID) {
			t.Errorf("DecodeTransactionID(%q) error = %v, want ErrMalformedID", s, err)
		}
	}
}

func TestTransactionIDSerialize(t *testing.T) {
	var buf bytes.Buffer
	out := logio.NewOutput(&buf)
	id := TransactionID{Time: 42, Counter: -7}
	id.Serialize(out)

	got, err := DeserializeTransactionID(logio.NewInput(&buf))
	if err != nil {
		t.Fatalf("Failed to deserialize: %v", err)
	}
	if got != id {
		t.Errorf("Got %v, want %v", got, id)
	}
}

func TestCommitIDRoundTrip(t *testing.T) {
	ids := []CommitID{
		{RedoSeq: 7, TxnTimestamp: 1700000000123, TxnID: TransactionID{Time: 100, Counter: 1}},
		{RedoSeq: 0, TxnTimestamp: -1, TxnID: TransactionID{Time: -2, Counter: -3}},
	}
	for _, id := range ids {
		s := id.EncodeToString()
		got, err := DecodeCommitID(s)
		if err != nil {
			t.Fatalf("Failed to decode %q: %v", s, err)
		}
		if got != id {
			t.Errorf("DecodeCommitID(%q) = %v, want %v", s, got, id)
		}
	}
}

func TestDecodeCommitIDMalformed(t *testing.T) {
	for _, s := range []string{"", "1-2-3", "x-2-3-4", "1-y-3-4", "1-2-3-4-5", "1-2--"} {
		if _, err := DecodeCommitID(s); !errors.Is(err, errors.ErrMalformedID) {
			t.Errorf("DecodeCommitID(%q) error = %v, want ErrMalformedID", s, err)
		}
	}
}

func TestCommitIDMatches(t *testing.T) {
	env := newTestEnv()
	op := env.put(100, 1, 1, "A")
	commit := commitAt(op, 500)
	id := NewCommitID(3, commit)

	if !id.Matches(commit) {
		t.Error("Expected commit to match its own id")
	}
	if id.Matches(commitAt(op, 501)) {
		t.Error("Replayed commit with a different timestamp must not match")
	}
	if id.Matches(abortAt(op, 500)) {
		t.Error("Abort must not match a commit id")
	}
	if id.Matches(op) {
		t.Error("Start marker must not match a commit id")
	}
}

func TestVersion(t *testing.T) {
	latest := LatestVersion()

	tests := []struct {
		v       Version
		tooHigh bool
	}{
		{Version{Major: latest.Major + 1, Minor: 0}, true},
		{Version{Major: latest.Major, Minor: latest.Minor + 1}, true},
		{latest, false},
		{Version{Major: latest.Major, Minor: 0}, false},
		{Version{Major: 0, Minor: 9}, false},
	}
	for _, tt := range tests {
		if got := tt.v.TooHigh(); got != tt.tooHigh {
			t.Errorf("%s.TooHigh() = %v, want %v", tt.v, got, tt.tooHigh)
		}
	}

	v := Version{Major: 1, Minor: 1}
	if !v.AtLeast(1, 0) || !v.AtLeast(1, 1) || v.AtLeast(1, 2) || v.AtLeast(2, 0) {
		t.Error("AtLeast mismatch")
	}

	parsed, err := ParseVersion(latest.String())
	if err != nil || parsed != latest {
		t.Errorf("ParseVersion(%q) = %v, %v", latest.String(), parsed, err)
	}
	if _, err := ParseVersion("1"); !errors.Is(err, errors.ErrCorruptVersion) {
		t.Errorf("Expected ErrCorruptVersion, got %v", err)
	}
}

func TestVersionSerialize(t *testing.T) {
	var buf bytes.Buffer
	out := logio.NewOutput(&buf)
	LatestVersion().Serialize(out)
	Version{Major: -1, Minor: 2}.Serialize(out)

	in := logio.NewInput(&buf)
	v, err := DeserializeVersion(in)
	if err != nil || v != LatestVersion() {
		t.Fatalf("DeserializeVersion = %v, %v", v, err)
	}
	if _, err := DeserializeVersion(in); !errors.Is(err, errors.ErrCorruptVersion) {
		t.Errorf("Expected ErrCorruptVersion for negative major, got %v", err)
	}
}

func TestTxnIDGenerator(t *testing.T) {
	now := time.Unix(1000, 0)
	g := NewTxnIDGenerator()
	g.now = func() time.Time { return now }

	seen := make(map[TransactionID]bool)
	var prev TransactionID
	for i := 0; i < 100; i++ {
		id := g.Next()
		if seen[id] {
			t.Fatalf("Duplicate id %v", id)
		}
		if i > 0 && !prev.Less(id) {
			t.Fatalf("Id %v not greater than %v", id, prev)
		}
		seen[id] = true
		prev = id
	}
	if prev != (TransactionID{Time: 1000, Counter: 100}) {
		t.Errorf("Unexpected last id %v", prev)
	}

	now = now.Add(time.Second)
	if id := g.Next(); id != (TransactionID{Time: 1001, Counter: 1}) {
		t.Errorf("Expected counter reset, got %v", id)
	}

	// Clock going backwards keeps ids increasing.
	now = time.Unix(900, 0)
	if id := g.Next(); id != (TransactionID{Time: 1001, Counter: 2}) {
		t.Errorf("Expected 1001-2 after clock step back, got %v", id)
	}

	g.Observe(TransactionID{Time: 2000, Counter: 5})
	if id := g.Next(); id != (TransactionID{Time: 2000, Counter: 6}) {
		t.Errorf("Expected 2000-6 after Observe, got %v", id)
	}
}
