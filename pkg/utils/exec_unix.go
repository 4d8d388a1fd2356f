//go:build !windows

package utils

import (
	"fmt"
	"os/exec"
	"os/user"
	"strconv"
	"syscall"
)

func shellCommand(command string) (string, []string) {
	return "/bin/sh", []string{"-c", command}
}

// configureCommand puts the shell in its own process group so a timeout kills
// everything it spawned, and optionally drops privileges to runAs.
func configureCommand(cmd *exec.Cmd, runAs string) error {
	attr := &syscall.SysProcAttr{Setpgid: true}
	if runAs != "" {
		u, err := user.Lookup(runAs)
		if err != nil {
			return fmt.Errorf("lookup run-as user %q: %w", runAs, err)
		}
		uid, err := strconv.ParseUint(u.Uid, 10, 32)
		if err != nil {
			return fmt.Errorf("parse uid of %q: %w", runAs, err)
		}
		gid, err := strconv.ParseUint(u.Gid, 10, 32)
		if err != nil {
			return fmt.Errorf("parse gid of %q: %w", runAs, err)
		}
		attr.Credential = &syscall.Credential{Uid: uint32(uid), Gid: uint32(gid)}
	}
	cmd.SysProcAttr = attr
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	return nil
}
