package core

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrPromptMissing is returned when the instruction template cannot be read.
var ErrPromptMissing = errors.New("refactor prompt missing")

// promptSeparator sits between the instruction template and the source code.
const promptSeparator = "\n---\n"

// LoadPrompt reads the instruction template. It is re-read for every job so
// edits to the prompt file apply without a restart.
func LoadPrompt(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrPromptMissing, path, err)
	}
	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		return "", fmt.Errorf("%w: %s is empty", ErrPromptMissing, path)
	}
	return prompt, nil
}

// BuildInput concatenates the instruction template with the file content.
func BuildInput(prompt, code string) string {
	return prompt + promptSeparator + code
}

// SplitInput is the inverse of BuildInput. Tools that only care about the
// code (the stub tool, tests) use it to strip the instruction template.
func SplitInput(input string) (prompt, code string) {
	prompt, code, found := strings.Cut(input, promptSeparator)
	if !found {
		return "", input
	}
	return prompt, code
}
