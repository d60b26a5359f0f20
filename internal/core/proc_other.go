//go:build !unix

package core

import "os/exec"

func configureProcess(cmd *exec.Cmd) {}
