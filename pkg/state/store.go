package state

import (
	"math/big"
	"sync"
)

// Entry is one published-media record fetched from the registry. Entries are
// immutable once fetched; the catalog replaces them wholesale on re-fetch.
type Entry struct {
	ID          uint64   `json:"id"`
	ContentHash string   `json:"content_hash"`
	Description string   `json:"description"`
	Owner       string   `json:"owner"`
	TipAmount   *big.Int `json:"tip_amount"`
}

// Snapshot is a consistent read-only copy of the application state, suitable
// for projection by a render boundary.
type Snapshot struct {
	Identity          string   `json:"identity"`
	Network           string   `json:"network"`
	RegistryAvailable bool     `json:"registry_available"`
	Entries           []Entry  `json:"entries"`
	StagedBytes       int      `json:"staged_bytes"`
	Busy              bool     `json:"busy"`
	Advisories        []string `json:"advisories"`
}

// Store is the single authoritative mutable record shared by every component
// of the client. Each field update is a single indivisible operation; readers
// observe either the value before or after a write, never a torn state.
// There is deliberately no cross-field transaction boundary: two workflows
// issued back-to-back may interleave between updates, and the last write to
// a field wins. That is the documented policy, not an accident.
type Store struct {
	mu sync.RWMutex

	identity          string
	network           string
	registryAvailable bool
	entries           []Entry
	staged            []byte
	stagedSeq         uint64
	busy              bool
	advisories        []string

	subscribers []chan struct{}
}

// NewStore creates an empty store. The busy flag starts set: the client is
// "loading" until the initial startup sequence clears it.
func NewStore() *Store {
	return &Store{busy: true}
}

// SetIdentity records the active account address
func (s *Store) SetIdentity(identity string) {
	s.mu.Lock()
	s.identity = identity
	s.mu.Unlock()
	s.notify()
}

// Identity returns the active account address
func (s *Store) Identity() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity
}

// SetNetwork records the connected network reference
func (s *Store) SetNetwork(network string) {
	s.mu.Lock()
	s.network = network
	s.mu.Unlock()
	s.notify()
}

// Network returns the connected network reference
func (s *Store) Network() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.network
}

// SetRegistryAvailable records whether a registry handle was resolved for
// the connected network
func (s *Store) SetRegistryAvailable(available bool) {
	s.mu.Lock()
	s.registryAvailable = available
	s.mu.Unlock()
	s.notify()
}

// RegistryAvailable reports whether the registry handle is present
func (s *Store) RegistryAvailable() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registryAvailable
}

// AppendEntry appends one fetched entry, making partial catalog-load
// progress observable before the load completes
func (s *Store) AppendEntry(entry Entry) {
	s.mu.Lock()
	s.entries = append(s.entries, entry)
	s.mu.Unlock()
	s.notify()
}

// SetEntries replaces the entry sequence wholesale
func (s *Store) SetEntries(entries []Entry) {
	cp := append([]Entry(nil), entries...)
	s.mu.Lock()
	s.entries = cp
	s.mu.Unlock()
	s.notify()
}

// Entries returns a copy of the current entry sequence
func (s *Store) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Entry(nil), s.entries...)
}

// SetStagedPayload replaces the staged payload, unconditionally discarding
// any previous value, and returns the new staging sequence number. Sequence
// numbers make the last-write-wins policy observable: the payload held by
// the store always belongs to the highest sequence handed out.
func (s *Store) SetStagedPayload(payload []byte) uint64 {
	s.mu.Lock()
	s.staged = payload
	s.stagedSeq++
	seq := s.stagedSeq
	s.mu.Unlock()
	s.notify()
	return seq
}

// StagedPayload returns the staged payload and its sequence number. A nil
// payload means no file has been selected.
func (s *Store) StagedPayload() ([]byte, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.staged, s.stagedSeq
}

// SetBusy sets the busy/loading flag
func (s *Store) SetBusy(busy bool) {
	s.mu.Lock()
	s.busy = busy
	s.mu.Unlock()
	s.notify()
}

// Busy reports the busy/loading flag
func (s *Store) Busy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.busy
}

// RecordAdvisory appends a user-visible, non-fatal warning
func (s *Store) RecordAdvisory(message string) {
	s.mu.Lock()
	s.advisories = append(s.advisories, message)
	s.mu.Unlock()
	s.notify()
}

// Advisories returns a copy of the recorded advisories
func (s *Store) Advisories() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.advisories...)
}

// Snapshot returns a consistent copy of the whole state
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Identity:          s.identity,
		Network:           s.network,
		RegistryAvailable: s.registryAvailable,
		Entries:           append([]Entry(nil), s.entries...),
		StagedBytes:       len(s.staged),
		Busy:              s.busy,
		Advisories:        append([]string(nil), s.advisories...),
	}
}

// Subscribe returns a channel that receives a signal after every state
// mutation. The channel has a buffer of one; signals coalesce when the
// subscriber lags, so a receive means "state changed at least once".
func (s *Store) Subscribe() <-chan struct{} {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	s.subscribers = append(s.subscribers, ch)
	s.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscription channel
func (s *Store) Unsubscribe(ch <-chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sub := range s.subscribers {
		if sub == ch {
			s.subscribers = append(s.subscribers[:i], s.subscribers[i+1:]...)
			return
		}
	}
}

func (s *Store) notify() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
