package core

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"code.cloudfoundry.org/bytefmt"
	"github.com/bluenviron/mediatrim/internal/logger"
	"github.com/bluenviron/mediatrim/internal/processing"
	"github.com/bluenviron/mediatrim/internal/trim"
)

const oneShotProgressInterval = 500 * time.Millisecond

type oneShotCallback struct {
	p *Core
}

func (c *oneShotCallback) OnProgress(progress float64) {
	c.p.Log(logger.Info, "progress: %d%%", int(progress*100))
}

func (c *oneShotCallback) OnSuccess(_ string) {
}

func (c *oneShotCallback) OnFailed(_ error) {
}

func (p *Core) initializeOneShotLogger() {
	p.logger = &logger.Logger{
		Level:        logger.Info,
		Destinations: []logger.Destination{logger.DestinationStdout},
	}
	p.logger.Initialize() //nolint:errcheck
}

func (p *Core) runTrim(c *cliTrim) {
	defer close(p.done)

	p.initializeOneShotLogger()
	defer p.logger.Close()

	e := &trim.Engine{
		Callback:         &oneShotCallback{p: p},
		MinDuration:      c.MinDuration,
		ProgressInterval: oneShotProgressInterval,
		Parent:           p,
	}
	e.Initialize()

	err := e.Trim(c.Source, c.Dest, c.Start.Milliseconds(), c.End.Milliseconds())
	if err != nil {
		p.Log(logger.Error, "%s", err)
		p.failed = true
		return
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(interrupt)

	jobDone := make(chan struct{})
	go func() {
		e.Wait()
		close(jobDone)
	}()

	select {
	case <-jobDone:

	case <-interrupt:
		p.Log(logger.Info, "cancelling")
		e.Close()

	case <-p.ctx.Done():
		e.Close()
	}

	st := e.Status()

	if st.State != trim.StateCompleted {
		p.Log(logger.Error, "trim failed: %s", trim.Reason(st.Err))
		p.failed = true
		return
	}

	p.Log(logger.Info, "%s written (%s)", st.Destination, bytefmt.ByteSize(st.BytesWritten))
}

func (p *Core) runProbe(c *cliProbe) {
	defer close(p.done)

	p.initializeOneShotLogger()
	defer p.logger.Close()

	s := &processing.Service{Parent: p}
	s.Initialize()

	res, err := s.Probe(c.Source)
	if err != nil {
		p.Log(logger.Error, "%s", err)
		p.failed = true
		return
	}

	buf, _ := json.MarshalIndent(res, "", "  ")
	fmt.Println(string(buf))
}
