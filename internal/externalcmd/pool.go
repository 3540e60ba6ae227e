package externalcmd

import (
	"sync"
)

// Pool is a pool of external commands.
type Pool struct {
	mutex sync.Mutex
	cmds  map[*Cmd]struct{}
	wg    sync.WaitGroup
}

// Initialize initializes a Pool.
func (p *Pool) Initialize() {
	p.cmds = make(map[*Cmd]struct{})
}

// Close terminates all external commands and waits for them to exit.
func (p *Pool) Close() {
	p.mutex.Lock()
	for c := range p.cmds {
		c.Close()
	}
	p.mutex.Unlock()

	p.wg.Wait()
}

// Wait waits for all external commands to exit.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) add(c *Cmd) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.cmds[c] = struct{}{}
	p.wg.Add(1)
}

func (p *Pool) remove(c *Cmd) {
	p.mutex.Lock()
	delete(p.cmds, c)
	p.mutex.Unlock()
	p.wg.Done()
}
