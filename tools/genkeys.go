package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sota-6741/gemini-auto-refactor/internal/security"
)

// genkeys writes a fresh audit signing key pair into the given directory
// (default .refactor/keys), refusing to overwrite existing keys.
func main() {
	dir := filepath.Join(".refactor", "keys")
	if len(os.Args) > 1 {
		dir = os.Args[1]
	}

	pubPath := filepath.Join(dir, security.PublicKeyFile)
	privPath := filepath.Join(dir, security.PrivateKeyFile)
	if _, err := os.Stat(pubPath); err == nil {
		fmt.Fprintf(os.Stderr, "keys already exist in %s\n", dir)
		os.Exit(1)
	}

	kp, err := security.GenerateKeyPair()
	if err != nil {
		fmt.Fprintf(os.Stderr, "keygen error: %v\n", err)
		os.Exit(2)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		fmt.Fprintf(os.Stderr, "keygen error: %v\n", err)
		os.Exit(2)
	}
	if err := security.SaveKeyPair(kp, pubPath, privPath); err != nil {
		fmt.Fprintf(os.Stderr, "keygen error: %v\n", err)
		os.Exit(2)
	}

	fmt.Println("# ======= Audit signing keypair =======")
	fmt.Println("public: ", pubPath)
	fmt.Println("private:", privPath)
	fmt.Println("PUBLIC_KEY_HEX:", kp.PublicHex())
}
