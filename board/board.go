// Package board implements the public bulletin board: an append-only,
// hash-chained log of every protocol message (registrations, ballots, tally
// claims). The board records the public discussion; it never gates it.
package board

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"
)

// EntryKind labels what a board entry records.
type EntryKind string

const (
	KindRegistration EntryKind = "registration"
	KindBallot       EntryKind = "ballot"
	KindTally        EntryKind = "tally"
)

// Entry is one immutable board record, chained to its predecessor by hash.
type Entry struct {
	Index     uint64    `json:"index"`
	Timestamp int64     `json:"timestamp"`
	Kind      EntryKind `json:"kind"`
	Data      []byte    `json:"data"`
	PrevHash  []byte    `json:"prev_hash"`
	Hash      []byte    `json:"hash"`
}

func (e *Entry) calculateHash() []byte {
	buffer := new(bytes.Buffer)
	binary.Write(buffer, binary.BigEndian, e.Index)
	binary.Write(buffer, binary.BigEndian, e.Timestamp)
	buffer.WriteString(string(e.Kind))
	buffer.Write(e.Data)
	buffer.Write(e.PrevHash)

	hash := sha256.Sum256(buffer.Bytes())
	return hash[:]
}

// Verify recomputes the entry hash and checks it against the recorded one.
func (e *Entry) Verify() bool {
	return bytes.Equal(e.Hash, e.calculateHash())
}

func (e *Entry) clone() *Entry {
	return &Entry{
		Index:     e.Index,
		Timestamp: e.Timestamp,
		Kind:      e.Kind,
		Data:      append([]byte(nil), e.Data...),
		PrevHash:  append([]byte(nil), e.PrevHash...),
		Hash:      append([]byte(nil), e.Hash...),
	}
}

// Log is a thread-safe append-only sequence of entries.
type Log struct {
	mu      sync.RWMutex
	entries []*Entry
}

// NewLog returns an empty board log.
func NewLog() *Log {
	return &Log{entries: make([]*Entry, 0)}
}

// Append records a new entry and returns it.
func (l *Log) Append(kind EntryKind, data []byte) *Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := &Entry{
		Index:     uint64(len(l.entries)),
		Timestamp: time.Now().Unix(),
		Kind:      kind,
		Data:      append([]byte(nil), data...),
		PrevHash:  l.lastHashLocked(),
	}
	entry.Hash = entry.calculateHash()

	l.entries = append(l.entries, entry)
	return entry.clone()
}

// Entries returns a deep copy of the log. Mutating the result cannot corrupt
// the recorded entries.
func (l *Log) Entries() []*Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	entries := make([]*Entry, len(l.entries))
	for i, entry := range l.entries {
		entries[i] = entry.clone()
	}
	return entries
}

// Len reports the number of entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// LastHash returns the hash of the newest entry, or the zero hash for an
// empty log.
func (l *Log) LastHash() []byte {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]byte(nil), l.lastHashLocked()...)
}

func (l *Log) lastHashLocked() []byte {
	if len(l.entries) == 0 {
		return make([]byte, sha256.Size)
	}
	return l.entries[len(l.entries)-1].Hash
}

// Restore replaces the log contents with a previously persisted sequence,
// after validating it.
func (l *Log) Restore(entries []*Entry) error {
	if err := Validate(entries); err != nil {
		return fmt.Errorf("refusing to restore board: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = make([]*Entry, len(entries))
	for i, entry := range entries {
		l.entries[i] = entry.clone()
	}
	return nil
}

// Validate checks hash integrity and chain linkage over a whole log.
func Validate(entries []*Entry) error {
	if len(entries) == 0 {
		return nil
	}

	if !entries[0].Verify() {
		return errors.New("entry 0 hash mismatch")
	}
	if !bytes.Equal(entries[0].PrevHash, make([]byte, sha256.Size)) {
		return errors.New("entry 0 is not anchored to the zero hash")
	}

	for i := 1; i < len(entries); i++ {
		if !entries[i].Verify() {
			return fmt.Errorf("entry %d hash mismatch", i)
		}
		if !bytes.Equal(entries[i].PrevHash, entries[i-1].Hash) {
			return fmt.Errorf("entry %d does not chain to entry %d", i, i-1)
		}
		if entries[i].Index != entries[i-1].Index+1 {
			return fmt.Errorf("entry %d has index %d", i, entries[i].Index)
		}
	}
	return nil
}
