// Package core contains the main struct of the software.
package core

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"reflect"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/bluenviron/mediatrim/internal/api"
	"github.com/bluenviron/mediatrim/internal/conf"
	"github.com/bluenviron/mediatrim/internal/confwatcher"
	"github.com/bluenviron/mediatrim/internal/externalcmd"
	"github.com/bluenviron/mediatrim/internal/logger"
	"github.com/bluenviron/mediatrim/internal/metrics"
	"github.com/bluenviron/mediatrim/internal/processing"
	"github.com/gin-gonic/gin"
)

var version = "v0.0.0"

var defaultConfPaths = []string{
	"mediatrim.yml",
	"/usr/local/etc/mediatrim.yml",
	"/usr/etc/mediatrim.yml",
	"/etc/mediatrim/mediatrim.yml",
}

type cliRun struct {
	Confpath string `arg:"" optional:""`
}

type cliTrim struct {
	Source      string        `arg:"" help:"source MP4 file."`
	Dest        string        `arg:"" help:"destination MP4 file."`
	Start       time.Duration `default:"0s" help:"start of the window."`
	End         time.Duration `required:"" help:"end of the window."`
	MinDuration time.Duration `default:"500ms" help:"minimum duration of the window."`
}

type cliProbe struct {
	Source string `arg:"" help:"MP4 file."`
}

type cli struct {
	Version bool     `help:"print version"`
	Run     cliRun   `cmd:"" default:"withargs" help:"run the trim service (default)."`
	Trim    cliTrim  `cmd:"" help:"trim a file and exit."`
	Probe   cliProbe `cmd:"" help:"print the tracks of a file and exit."`
}

// Core is an instance of mediatrim.
type Core struct {
	ctx             context.Context
	ctxCancel       func()
	confPath        string
	conf            *conf.Conf
	logger          *logger.Logger
	externalCmdPool *externalcmd.Pool
	metrics         *metrics.Metrics
	processing      *processing.Service
	api             *api.API
	confWatcher     *confwatcher.ConfWatcher
	failed          bool

	// out
	done chan struct{}
}

// New allocates a Core.
func New(args []string) (*Core, bool) {
	var c cli

	parser, err := kong.New(&c,
		kong.Description("mediatrim "+version),
		kong.UsageOnError(),
		kong.ValueFormatter(func(value *kong.Value) string {
			switch value.Name {
			case "confpath":
				return "path to a config file. The default is mediatrim.yml."

			default:
				return kong.DefaultHelpValueFormatter(value)
			}
		}))
	if err != nil {
		panic(err)
	}

	kctx, err := parser.Parse(args)
	parser.FatalIfErrorf(err)

	if c.Version {
		fmt.Println(version)
		os.Exit(0)
	}

	ctx, ctxCancel := context.WithCancel(context.Background())

	p := &Core{
		ctx:       ctx,
		ctxCancel: ctxCancel,
		done:      make(chan struct{}),
	}

	switch kctx.Command() {
	case "trim <source> <dest>":
		go p.runTrim(&c.Trim)
		return p, true

	case "probe <source>":
		go p.runProbe(&c.Probe)
		return p, true
	}

	var confPath string
	p.conf, confPath, err = conf.Load(c.Run.Confpath, defaultConfPaths)
	if err != nil {
		fmt.Printf("ERR: %s\n", err)
		return nil, false
	}
	p.confPath = confPath

	err = p.createResources(true)
	if err != nil {
		if p.logger != nil {
			p.Log(logger.Error, "%s", err)
		} else {
			fmt.Printf("ERR: %s\n", err)
		}
		p.closeResources(nil)
		return nil, false
	}

	go p.run()

	return p, true
}

// Close closes Core and waits for all goroutines to return.
func (p *Core) Close() {
	p.ctxCancel()
	<-p.done
}

// Wait waits for the Core to exit.
func (p *Core) Wait() {
	<-p.done
}

// Failed returns whether a one-shot command has failed.
// It must be called after Wait.
func (p *Core) Failed() bool {
	return p.failed
}

// Log is the main logging function.
func (p *Core) Log(level logger.Level, format string, args ...interface{}) {
	p.logger.Log(level, format, args...)
}

func (p *Core) run() {
	defer close(p.done)

	confChanged := func() chan struct{} {
		if p.confWatcher != nil {
			return p.confWatcher.Watch()
		}
		return make(chan struct{})
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(interrupt)

outer:
	for {
		select {
		case <-confChanged:
			p.Log(logger.Info, "reloading configuration (file changed)")

			newConf, _, err := conf.Load(p.confPath, nil)
			if err != nil {
				p.Log(logger.Error, "%s", err)
				break outer
			}

			err = p.reloadConf(newConf)
			if err != nil {
				p.Log(logger.Error, "%s", err)
				break outer
			}

		case <-interrupt:
			p.Log(logger.Info, "shutting down gracefully")
			break outer

		case <-p.ctx.Done():
			break outer
		}
	}

	p.ctxCancel()

	p.closeResources(nil)
}

func (p *Core) createResources(initial bool) error {
	if p.logger == nil {
		i := &logger.Logger{
			Level:        logger.Level(p.conf.LogLevel),
			Destinations: p.conf.LogDestinations,
			Structured:   p.conf.LogStructured,
			File:         p.conf.LogFile,
		}
		err := i.Initialize()
		if err != nil {
			return err
		}
		p.logger = i
	}

	if initial {
		p.Log(logger.Info, "mediatrim %s", version)

		if p.confPath == "" {
			p.Log(logger.Warn, "configuration file not found, using the default configuration")
		}

		gin.SetMode(gin.ReleaseMode)

		p.externalCmdPool = &externalcmd.Pool{}
		p.externalCmdPool.Initialize()
	}

	if p.conf.Metrics && p.metrics == nil {
		i := &metrics.Metrics{
			Address:      p.conf.MetricsAddress,
			AllowOrigin:  p.conf.APIAllowOrigin,
			ReadTimeout:  p.conf.ReadTimeout,
			WriteTimeout: p.conf.WriteTimeout,
			Parent:       p,
		}
		err := i.Initialize()
		if err != nil {
			return err
		}
		p.metrics = i
	}

	if p.processing == nil {
		p.processing = &processing.Service{
			OutputDirectory:   p.conf.OutputDirectory,
			OutputFilePrefix:  p.conf.OutputFilePrefix,
			MinTrimDuration:   time.Duration(p.conf.MinTrimDuration),
			ProgressInterval:  time.Duration(p.conf.ProgressInterval),
			MaxSampleSize:     uint64(p.conf.MaxSampleSize),
			JobTimeout:        time.Duration(p.conf.JobTimeout),
			HistorySize:       p.conf.JobHistorySize,
			RunOnTrimComplete: p.conf.RunOnTrimComplete,
			RunOnTrimFail:     p.conf.RunOnTrimFail,
			ExternalCmdPool:   p.externalCmdPool,
			Parent:            p,
		}
		if p.metrics != nil {
			p.processing.Stats = p.metrics
		}
		p.processing.Initialize()
	}

	if p.conf.API && p.api == nil {
		i := &api.API{
			Version:      version,
			Started:      time.Now(),
			Address:      p.conf.APIAddress,
			AllowOrigin:  p.conf.APIAllowOrigin,
			ReadTimeout:  p.conf.ReadTimeout,
			WriteTimeout: p.conf.WriteTimeout,
			User:         p.conf.APIUser,
			Pass:         p.conf.APIPass,
			Processing:   p.processing,
			Parent:       p,
		}
		err := i.Initialize()
		if err != nil {
			return err
		}
		p.api = i
	}

	if initial && p.confPath != "" {
		i := &confwatcher.ConfWatcher{FilePath: p.confPath}
		err := i.Initialize()
		if err != nil {
			return err
		}
		p.confWatcher = i
	}

	return nil
}

func (p *Core) closeResources(newConf *conf.Conf) {
	closeLogger := newConf == nil ||
		newConf.LogLevel != p.conf.LogLevel ||
		!reflect.DeepEqual(newConf.LogDestinations, p.conf.LogDestinations) ||
		newConf.LogStructured != p.conf.LogStructured ||
		newConf.LogFile != p.conf.LogFile

	closeMetrics := newConf == nil ||
		newConf.Metrics != p.conf.Metrics ||
		newConf.MetricsAddress != p.conf.MetricsAddress ||
		newConf.APIAllowOrigin != p.conf.APIAllowOrigin ||
		newConf.ReadTimeout != p.conf.ReadTimeout ||
		newConf.WriteTimeout != p.conf.WriteTimeout ||
		closeLogger

	closeProcessing := newConf == nil ||
		newConf.OutputDirectory != p.conf.OutputDirectory ||
		newConf.OutputFilePrefix != p.conf.OutputFilePrefix ||
		newConf.MinTrimDuration != p.conf.MinTrimDuration ||
		newConf.ProgressInterval != p.conf.ProgressInterval ||
		newConf.MaxSampleSize != p.conf.MaxSampleSize ||
		newConf.JobTimeout != p.conf.JobTimeout ||
		newConf.JobHistorySize != p.conf.JobHistorySize ||
		newConf.RunOnTrimComplete != p.conf.RunOnTrimComplete ||
		newConf.RunOnTrimFail != p.conf.RunOnTrimFail ||
		closeMetrics

	closeAPI := newConf == nil ||
		newConf.API != p.conf.API ||
		newConf.APIAddress != p.conf.APIAddress ||
		newConf.APIUser != p.conf.APIUser ||
		newConf.APIPass != p.conf.APIPass ||
		newConf.APIAllowOrigin != p.conf.APIAllowOrigin ||
		newConf.ReadTimeout != p.conf.ReadTimeout ||
		newConf.WriteTimeout != p.conf.WriteTimeout ||
		closeProcessing

	if newConf == nil && p.confWatcher != nil {
		p.confWatcher.Close()
		p.confWatcher = nil
	}

	if closeAPI && p.api != nil {
		p.api.Close()
		p.api = nil
	}

	if closeProcessing && p.processing != nil {
		p.processing.Close()
		p.processing = nil
	}

	if closeMetrics && p.metrics != nil {
		p.metrics.Close()
		p.metrics = nil
	}

	if newConf == nil && p.externalCmdPool != nil {
		p.Log(logger.Info, "waiting for external commands")
		p.externalCmdPool.Close()
	}

	if closeLogger && p.logger != nil {
		p.logger.Close()
		p.logger = nil
	}
}

func (p *Core) reloadConf(newConf *conf.Conf) error {
	p.closeResources(newConf)
	p.conf = newConf
	return p.createResources(false)
}
