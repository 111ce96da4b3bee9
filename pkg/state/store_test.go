package state

import (
	"math/big"
	"sync"
	"testing"
)

func TestNewStore(t *testing.T) {
	s := NewStore()

	if !s.Busy() {
		t.Error("Expected new store to start busy (loading)")
	}
	if s.Identity() != "" {
		t.Error("Expected empty identity at start")
	}
	if len(s.Entries()) != 0 {
		t.Error("Expected empty catalog at start")
	}
	if payload, seq := s.StagedPayload(); payload != nil || seq != 0 {
		t.Error("Expected empty staging buffer at start")
	}
}

func TestFieldUpdates(t *testing.T) {
	s := NewStore()

	s.SetIdentity("0xabc")
	if s.Identity() != "0xabc" {
		t.Errorf("Expected identity 0xabc, got %s", s.Identity())
	}

	s.SetNetwork("5777")
	if s.Network() != "5777" {
		t.Errorf("Expected network 5777, got %s", s.Network())
	}

	s.SetRegistryAvailable(true)
	if !s.RegistryAvailable() {
		t.Error("Expected registry available")
	}

	s.SetBusy(false)
	if s.Busy() {
		t.Error("Expected busy cleared")
	}
}

func TestStagedPayloadLastWriteWins(t *testing.T) {
	s := NewStore()

	seq1 := s.SetStagedPayload([]byte("first"))
	seq2 := s.SetStagedPayload([]byte("second"))

	if seq2 <= seq1 {
		t.Errorf("Expected increasing sequence numbers, got %d then %d", seq1, seq2)
	}

	payload, seq := s.StagedPayload()
	if string(payload) != "second" {
		t.Errorf("Expected last write to win, got %q", payload)
	}
	if seq != seq2 {
		t.Errorf("Expected sequence %d, got %d", seq2, seq)
	}
}

func TestEntries(t *testing.T) {
	t.Run("append_is_observable", func(t *testing.T) {
		s := NewStore()

		s.AppendEntry(Entry{ID: 1, TipAmount: big.NewInt(5)})
		if len(s.Entries()) != 1 {
			t.Fatalf("Expected 1 entry after append, got %d", len(s.Entries()))
		}
		s.AppendEntry(Entry{ID: 2, TipAmount: big.NewInt(20)})
		if len(s.Entries()) != 2 {
			t.Fatalf("Expected 2 entries after append, got %d", len(s.Entries()))
		}
	})

	t.Run("set_replaces_wholesale", func(t *testing.T) {
		s := NewStore()
		s.AppendEntry(Entry{ID: 1})
		s.SetEntries([]Entry{{ID: 2}, {ID: 1}})

		entries := s.Entries()
		if len(entries) != 2 || entries[0].ID != 2 {
			t.Errorf("Expected replaced sequence [2,1], got %v", entries)
		}
	})

	t.Run("returned_slice_is_a_copy", func(t *testing.T) {
		s := NewStore()
		s.SetEntries([]Entry{{ID: 1}})

		entries := s.Entries()
		entries[0].ID = 99

		if s.Entries()[0].ID != 1 {
			t.Error("Mutating the returned slice must not affect the store")
		}
	})
}

func TestAdvisories(t *testing.T) {
	s := NewStore()

	s.RecordAdvisory("no compatible execution context")
	s.RecordAdvisory("registry not deployed to this network")

	advisories := s.Advisories()
	if len(advisories) != 2 {
		t.Fatalf("Expected 2 advisories, got %d", len(advisories))
	}
	if advisories[0] != "no compatible execution context" {
		t.Errorf("Unexpected first advisory: %s", advisories[0])
	}
}

func TestSnapshot(t *testing.T) {
	s := NewStore()
	s.SetIdentity("0xabc")
	s.SetNetwork("1337")
	s.SetRegistryAvailable(true)
	s.SetEntries([]Entry{{ID: 1, TipAmount: big.NewInt(7)}})
	s.SetStagedPayload([]byte("blob"))
	s.SetBusy(false)
	s.RecordAdvisory("note")

	snap := s.Snapshot()
	if snap.Identity != "0xabc" || snap.Network != "1337" {
		t.Errorf("Snapshot identity/network mismatch: %+v", snap)
	}
	if !snap.RegistryAvailable || snap.Busy {
		t.Errorf("Snapshot flags mismatch: %+v", snap)
	}
	if len(snap.Entries) != 1 || snap.Entries[0].ID != 1 {
		t.Errorf("Snapshot entries mismatch: %+v", snap.Entries)
	}
	if snap.StagedBytes != 4 {
		t.Errorf("Expected 4 staged bytes, got %d", snap.StagedBytes)
	}
	if len(snap.Advisories) != 1 {
		t.Errorf("Expected 1 advisory in snapshot, got %d", len(snap.Advisories))
	}
}

func TestSubscribe(t *testing.T) {
	t.Run("mutation_signals_subscriber", func(t *testing.T) {
		s := NewStore()
		ch := s.Subscribe()

		s.SetBusy(false)

		select {
		case <-ch:
		default:
			t.Error("Expected a signal after mutation")
		}
	})

	t.Run("signals_coalesce", func(t *testing.T) {
		s := NewStore()
		ch := s.Subscribe()

		s.SetIdentity("a")
		s.SetIdentity("b")
		s.SetIdentity("c")

		// A lagging subscriber sees at least one signal, not a backlog
		<-ch
		select {
		case <-ch:
			t.Error("Expected coalesced signals, got a backlog")
		default:
		}
	})

	t.Run("unsubscribe_stops_signals", func(t *testing.T) {
		s := NewStore()
		ch := s.Subscribe()
		s.Unsubscribe(ch)

		s.SetBusy(false)

		select {
		case <-ch:
			t.Error("Expected no signal after unsubscribe")
		default:
		}
	})
}

func TestConcurrentAccess(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			s.SetStagedPayload([]byte{byte(n)})
			s.AppendEntry(Entry{ID: uint64(n)})
			s.SetBusy(n%2 == 0)
		}(i)
		go func() {
			defer wg.Done()
			_ = s.Snapshot()
			_, _ = s.StagedPayload()
			_ = s.Entries()
		}()
	}
	wg.Wait()

	if len(s.Entries()) != 8 {
		t.Errorf("Expected 8 appended entries, got %d", len(s.Entries()))
	}
	if payload, _ := s.StagedPayload(); len(payload) != 1 {
		t.Errorf("Expected a single staged byte, got %d", len(payload))
	}
}
