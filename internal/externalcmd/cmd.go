// Package externalcmd allows to launch external commands.
package externalcmd

import (
	"errors"
	"os"
)

var errTerminated = errors.New("terminated")

// OnExitFunc is the prototype of onExit.
type OnExitFunc func(error)

// Environment is a Cmd environment.
type Environment map[string]string

// Cmd is an external command that runs once.
type Cmd struct {
	pool   *Pool
	cmdstr string
	env    Environment
	onExit OnExitFunc

	// in
	terminate chan struct{}
}

// NewCmd allocates a Cmd and starts it.
func NewCmd(
	pool *Pool,
	cmdstr string,
	env Environment,
	onExit OnExitFunc,
) *Cmd {
	// replace variables in both Linux and Windows, in order to allow using the
	// same commands on both of them.
	cmdstr = os.Expand(cmdstr, func(variable string) string {
		if value, ok := env[variable]; ok {
			return value
		}
		return os.Getenv(variable)
	})

	if onExit == nil {
		onExit = func(_ error) {}
	}

	e := &Cmd{
		pool:      pool,
		cmdstr:    cmdstr,
		env:       env,
		onExit:    onExit,
		terminate: make(chan struct{}),
	}

	pool.add(e)

	go e.run()

	return e
}

// Close terminates the command. It doesn't wait for the command to exit.
func (e *Cmd) Close() {
	select {
	case <-e.terminate:
	default:
		close(e.terminate)
	}
}

func (e *Cmd) run() {
	defer e.pool.remove(e)

	env := append([]string(nil), os.Environ()...)
	for key, val := range e.env {
		env = append(env, key+"="+val)
	}

	err := e.runOSSpecific(env)
	if errors.Is(err, errTerminated) {
		return
	}

	e.onExit(err)
}
