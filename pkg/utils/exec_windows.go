//go:build windows

package utils

import (
	"errors"
	"os/exec"
	"syscall"
)

func shellCommand(command string) (string, []string) {
	return "cmd.exe", []string{"/C", command}
}

func configureCommand(cmd *exec.Cmd, runAs string) error {
	if runAs != "" {
		return errors.New("RUN_AS_USER is not supported on windows")
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{HideWindow: true}
	return nil
}
