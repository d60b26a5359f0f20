package audit

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sota-6741/gemini-auto-refactor/internal/security"
)

// Ledger is an append-only JSON-lines file of signed, hash-chained blocks.
type Ledger struct {
	mu     sync.Mutex
	blocks []*Block
	path   string
	keys   security.KeyPair
	now    func() time.Time
}

// OpenLedger loads path (creating it if missing). keys sign new blocks; a
// zero KeyPair opens the ledger read-only.
func OpenLedger(path string, keys security.KeyPair) (*Ledger, error) {
	l := &Ledger{path: path, keys: keys, now: time.Now}

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("audit: ensure ledger dir: %w", err)
		}
		return l, nil
	}
	if err != nil {
		return nil, fmt.Errorf("audit: open ledger: %w", err)
	}
	defer f.Close()

	dec := json.NewDecoder(bufio.NewReader(f))
	for dec.More() {
		var blk Block
		if err := dec.Decode(&blk); err != nil {
			return nil, fmt.Errorf("audit: decode ledger entry %d: %w", len(l.blocks), err)
		}
		l.blocks = append(l.blocks, &blk)
	}
	return l, nil
}

// Path is the ledger file location.
func (l *Ledger) Path() string { return l.path }

// Append links entry to the chain, signs it and persists it. Index and
// previous hash are assigned under the ledger lock.
func (l *Ledger) Append(e Entry) (*Block, error) {
	if len(l.keys.Private) == 0 {
		return nil, errors.New("audit: ledger opened without a signing key")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	prev := ""
	if n := len(l.blocks); n > 0 {
		prev = l.blocks[n-1].Hash
	}
	blk, err := newBlock(len(l.blocks), prev, e, l.now())
	if err != nil {
		return nil, err
	}
	blk.Signature = l.keys.Sign([]byte(blk.Hash))
	blk.PubKey = l.keys.PublicHex()

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("audit: open ledger file: %w", err)
	}
	defer f.Close()
	if err := json.NewEncoder(f).Encode(blk); err != nil {
		return nil, fmt.Errorf("audit: write ledger file: %w", err)
	}

	l.blocks = append(l.blocks, blk)
	return blk, nil
}

// Blocks returns the in-memory chain. Callers must not append to it.
func (l *Ledger) Blocks() []*Block {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.blocks
}

// Len returns the number of blocks.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.blocks)
}

// LastHash returns the head hash, or empty for an empty ledger.
func (l *Ledger) LastHash() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.blocks) == 0 {
		return ""
	}
	return l.blocks[len(l.blocks)-1].Hash
}

// Rewrite replaces the ledger file with the in-memory blocks as they are now.
// The ledger tool uses it to simulate tampering.
func (l *Ledger) Rewrite() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := os.Create(l.path)
	if err != nil {
		return fmt.Errorf("audit: rewrite ledger: %w", err)
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	for _, b := range l.blocks {
		if err := enc.Encode(b); err != nil {
			return fmt.Errorf("audit: rewrite block %d: %w", b.Index, err)
		}
	}
	return nil
}
