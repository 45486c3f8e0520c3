//go:build !unix

package process

import "os/exec"

func isolateProcessGroup(*exec.Cmd) {}

func killProcessGroup(*exec.Cmd) {}
