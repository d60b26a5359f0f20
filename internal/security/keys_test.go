package security

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyPair_SignAndVerify(t *testing.T) {
	t.Parallel()

	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	sig := kp.Sign([]byte("block-hash"))
	ok, err := VerifySignatureFromHex(kp.PublicHex(), []byte("block-hash"), sig)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifySignatureFromHex(kp.PublicHex(), []byte("other-hash"), sig)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = VerifySignatureFromHex("zz", []byte("block-hash"), sig)
	assert.Error(t, err)
	_, err = VerifySignatureFromHex("abcd", []byte("block-hash"), sig)
	assert.Error(t, err)
}

func TestEnsureKeyPair_GeneratesOnceThenReloads(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "keys")
	first, created, err := EnsureKeyPair(dir)
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := EnsureKeyPair(dir)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.Public, second.Public)
	assert.Equal(t, first.Private, second.Private)
}

func TestLoadKeys_RejectBadFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	notHex := filepath.Join(dir, "bad.pub")
	require.NoError(t, os.WriteFile(notHex, []byte("not-hex"), 0o600))
	_, err := LoadPublicKey(notHex)
	assert.Error(t, err)

	short := filepath.Join(dir, "short.priv")
	require.NoError(t, os.WriteFile(short, []byte("abcd\n"), 0o600))
	_, err = LoadPrivateKey(short)
	assert.Error(t, err)

	_, err = LoadPublicKey(filepath.Join(dir, "missing.pub"))
	assert.Error(t, err)
}
