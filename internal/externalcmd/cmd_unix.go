//go:build !windows

package externalcmd

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

func (e *Cmd) runOSSpecific(env []string) error {
	cmd := exec.Command("/bin/sh", "-c", e.cmdstr)

	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}

	cmd.Env = env
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	err := cmd.Start()
	if err != nil {
		return err
	}

	cmdDone := make(chan error)
	go func() {
		cmdDone <- cmd.Wait()
	}()

	select {
	case <-e.terminate:
		// the minus is needed to kill all subprocesses
		syscall.Kill(-cmd.Process.Pid, syscall.SIGINT) //nolint:errcheck
		<-cmdDone
		return errTerminated

	case err = <-cmdDone:
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			return fmt.Errorf("command exited with code %d", ee.ExitCode())
		}
		return err
	}
}
