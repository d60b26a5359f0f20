package audit

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sota-6741/gemini-auto-refactor/internal/core"
	"github.com/sota-6741/gemini-auto-refactor/internal/security"
	"github.com/sota-6741/gemini-auto-refactor/internal/storage"
	"github.com/sota-6741/gemini-auto-refactor/pkg/utils"
)

func newKeys(t *testing.T) security.KeyPair {
	t.Helper()
	kp, err := security.GenerateKeyPair()
	require.NoError(t, err)
	return kp
}

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := OpenLedger(filepath.Join(t.TempDir(), "ledger.jsonl"), newKeys(t))
	require.NoError(t, err)
	return l
}

func TestNewBlock_HashCoversContent(t *testing.T) {
	t.Parallel()

	blk, err := newBlock(0, "", Entry{SessionID: "task-x-1", File: "x.py", Outcome: OutcomeRefactored,
		SourceHash: utils.HashString("x = 1\n")}, time.Unix(0, 0))
	require.NoError(t, err)

	h, err := blk.ComputeHash()
	require.NoError(t, err)
	assert.Equal(t, h, blk.Hash)

	blk.File = "y.py"
	h2, err := blk.ComputeHash()
	require.NoError(t, err)
	assert.NotEqual(t, h, h2)
}

func TestLedger_AppendLinksAndVerifies(t *testing.T) {
	t.Parallel()

	l := openTestLedger(t)
	b1, err := l.Append(Entry{SessionID: "s1", File: "a.py", Outcome: OutcomeRefactored})
	require.NoError(t, err)
	b2, err := l.Append(Entry{SessionID: "s2", File: "b.py", Outcome: OutcomeFailed})
	require.NoError(t, err)

	assert.Equal(t, 0, b1.Index)
	assert.Empty(t, b1.PrevHash)
	assert.Equal(t, 1, b2.Index)
	assert.Equal(t, b1.Hash, b2.PrevHash)
	assert.Equal(t, b2.Hash, l.LastHash())
	assert.Equal(t, 2, l.Len())
	require.NoError(t, l.VerifyChain())
}

func TestLedger_VerifyChain_DetectsTampering(t *testing.T) {
	t.Parallel()

	cases := map[string]func(b []*Block){
		"result hash": func(b []*Block) { b[0].ResultHash = "fakehash" },
		"prev link":   func(b []*Block) { b[1].PrevHash = b[1].Hash },
		"index":       func(b []*Block) { b[1].Index = 7 },
		"signature":   func(b []*Block) { b[0].Signature = b[1].Signature },
	}
	for name, tamper := range cases {
		t.Run(name, func(t *testing.T) {
			l := openTestLedger(t)
			_, err := l.Append(Entry{SessionID: "s1", File: "a.py", Outcome: OutcomeRefactored})
			require.NoError(t, err)
			_, err = l.Append(Entry{SessionID: "s1", File: "a.py", Outcome: OutcomeRefactored})
			require.NoError(t, err)

			tamper(l.Blocks())
			assert.Error(t, l.VerifyChain())
		})
	}
}

func TestLedger_PersistsAcrossReopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "ledger.jsonl")
	keys := newKeys(t)
	l, err := OpenLedger(path, keys)
	require.NoError(t, err)
	_, err = l.Append(Entry{SessionID: "s1", File: "a.py", Outcome: OutcomeRefactored})
	require.NoError(t, err)
	_, err = l.Append(Entry{SessionID: "s1", File: "a.py", Outcome: OutcomeFailed})
	require.NoError(t, err)

	reopened, err := OpenLedger(path, security.KeyPair{})
	require.NoError(t, err)
	assert.Equal(t, 2, reopened.Len())
	assert.Equal(t, l.LastHash(), reopened.LastHash())
	require.NoError(t, reopened.VerifyChain())

	_, err = reopened.Append(Entry{File: "a.py"})
	assert.Error(t, err, "read-only ledger must refuse appends")
}

func TestLedger_Rewrite_PersistsTampering(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "ledger.jsonl")
	l, err := OpenLedger(path, newKeys(t))
	require.NoError(t, err)
	_, err = l.Append(Entry{SessionID: "s1", File: "a.py", Outcome: OutcomeRefactored})
	require.NoError(t, err)

	l.Blocks()[0].ResultHash = "FAKE_HASH_TAMPERED"
	require.NoError(t, l.Rewrite())

	reopened, err := OpenLedger(path, security.KeyPair{})
	require.NoError(t, err)
	assert.Error(t, reopened.VerifyChain())
}

func TestOpenLedger_When_FileCorrupt_ReturnsError(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "ledger.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	_, err := OpenLedger(path, security.KeyPair{})
	assert.Error(t, err)
}

func TestTrail_Record_StoresResultAndAppendsBlock(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	rs := storage.NewResultStorage(filepath.Join(dir, "results"))
	l, err := OpenLedger(filepath.Join(dir, "ledger.jsonl"), newKeys(t))
	require.NoError(t, err)
	trail := NewTrail(rs, l)

	ok := core.Outcome{SessionID: "task-x-1", Path: "/src/x.py", Filename: "x.py", Succeeded: true,
		Refactored: "x = 2\n", ContentHash: utils.HashString("x = 1\n")}
	require.NoError(t, trail.Record(context.Background(), ok))
	failed := core.Outcome{SessionID: "task-x-1", Path: "/src/x.py", Filename: "x.py",
		Error: "command 'gemini' not found"}
	require.NoError(t, trail.Record(context.Background(), failed))

	blocks := l.Blocks()
	require.Len(t, blocks, 2)
	assert.Equal(t, OutcomeRefactored, blocks[0].Outcome)
	assert.Equal(t, ok.ContentHash, blocks[0].SourceHash)
	assert.Equal(t, OutcomeFailed, blocks[1].Outcome)

	body, err := os.ReadFile(blocks[0].ResultPath)
	require.NoError(t, err)
	assert.Equal(t, "x = 2\n", string(body))
	assert.Equal(t, utils.HashString("x = 2\n"), blocks[0].ResultHash)

	body, err = os.ReadFile(blocks[1].ResultPath)
	require.NoError(t, err)
	assert.Equal(t, "command 'gemini' not found", string(body))
	require.NoError(t, l.VerifyChain())
}

func TestTrail_Record_WithoutStorageHashesBody(t *testing.T) {
	t.Parallel()

	l := openTestLedger(t)
	trail := NewTrail(nil, l)
	require.NoError(t, trail.Record(context.Background(), core.Outcome{Filename: "x.py", Succeeded: true, Refactored: "pass\n"}))

	blk := l.Blocks()[0]
	assert.Empty(t, blk.ResultPath)
	assert.Equal(t, utils.HashString("pass\n"), blk.ResultHash)
}
