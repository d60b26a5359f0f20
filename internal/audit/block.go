package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// Outcome values recorded in a block.
const (
	OutcomeRefactored = "refactored"
	OutcomeFailed     = "failed"
)

// Block is a tamper-evident record of one finished refactor job.
type Block struct {
	Index      int    `json:"index"`
	Timestamp  string `json:"timestamp"`
	SessionID  string `json:"sessionId"`
	File       string `json:"file"`
	Outcome    string `json:"outcome"`
	SourceHash string `json:"sourceHash"`
	ResultPath string `json:"resultPath"`
	ResultHash string `json:"resultHash"`
	PrevHash   string `json:"prevHash"`
	Hash       string `json:"hash"`
	Signature  string `json:"signature"`
	PubKey     string `json:"pubKey"`
}

// canonicalData is what the block hash covers. Hash, Signature and PubKey
// are excluded.
func (b *Block) canonicalData() ([]byte, error) {
	view := struct {
		Index      int    `json:"index"`
		Timestamp  string `json:"timestamp"`
		SessionID  string `json:"sessionId"`
		File       string `json:"file"`
		Outcome    string `json:"outcome"`
		SourceHash string `json:"sourceHash"`
		ResultPath string `json:"resultPath"`
		ResultHash string `json:"resultHash"`
		PrevHash   string `json:"prevHash"`
	}{
		Index:      b.Index,
		Timestamp:  b.Timestamp,
		SessionID:  b.SessionID,
		File:       b.File,
		Outcome:    b.Outcome,
		SourceHash: b.SourceHash,
		ResultPath: b.ResultPath,
		ResultHash: b.ResultHash,
		PrevHash:   b.PrevHash,
	}
	return json.Marshal(view)
}

// ComputeHash calculates SHA256 over canonicalData.
func (b *Block) ComputeHash() (string, error) {
	data, err := b.canonicalData()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Entry is the caller-supplied part of a block.
type Entry struct {
	SessionID  string
	File       string
	Outcome    string
	SourceHash string
	ResultPath string
	ResultHash string
}

func newBlock(index int, prevHash string, e Entry, now time.Time) (*Block, error) {
	blk := &Block{
		Index:      index,
		Timestamp:  now.UTC().Format(time.RFC3339Nano),
		SessionID:  e.SessionID,
		File:       e.File,
		Outcome:    e.Outcome,
		SourceHash: e.SourceHash,
		ResultPath: e.ResultPath,
		ResultHash: e.ResultHash,
		PrevHash:   prevHash,
	}
	h, err := blk.ComputeHash()
	if err != nil {
		return nil, fmt.Errorf("compute block hash: %w", err)
	}
	blk.Hash = h
	return blk, nil
}
