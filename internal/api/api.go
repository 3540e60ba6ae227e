// Package api contains the API server.
package api //nolint:revive

import (
	"errors"
	"net/http"
	"time"

	"github.com/bluenviron/mediatrim/internal/conf"
	"github.com/bluenviron/mediatrim/internal/defs"
	"github.com/bluenviron/mediatrim/internal/logger"
	"github.com/bluenviron/mediatrim/internal/processing"
	"github.com/bluenviron/mediatrim/internal/protocols/httpp"
	"github.com/bluenviron/mediatrim/internal/track"
	"github.com/bluenviron/mediatrim/internal/trim"
	"github.com/gin-gonic/gin"
)

const pauseAfterAuthError = 2 * time.Second

// API is an API server.
type API struct {
	Version      string
	Started      time.Time
	Address      string
	AllowOrigin  string
	ReadTimeout  conf.Duration
	WriteTimeout conf.Duration
	User         conf.Credential
	Pass         conf.Credential
	Processing   defs.APIProcessing
	Parent       logger.Writer

	pauseAfterAuthError time.Duration
	httpServer          *httpp.Server
}

// Initialize initializes API.
func (a *API) Initialize() error {
	if a.pauseAfterAuthError == 0 {
		a.pauseAfterAuthError = pauseAfterAuthError
	}

	router := gin.New()
	router.SetTrustedProxies(nil) //nolint:errcheck

	router.Use(a.middlewarePreflightRequests)
	router.Use(a.middlewareAuth)

	group := router.Group("/v1")

	group.GET("/info", a.onInfo)

	group.POST("/trims/add", a.onTrimsAdd)
	group.GET("/trims/list", a.onTrimsList)
	group.GET("/trims/get/:id", a.onTrimsGet)
	group.POST("/trims/cancel/:id", a.onTrimsCancel)

	group.GET("/probe", a.onProbe)

	group.GET("/outputs/list", a.onOutputsList)

	a.httpServer = &httpp.Server{
		Address:      a.Address,
		AllowOrigin:  a.AllowOrigin,
		ReadTimeout:  time.Duration(a.ReadTimeout),
		WriteTimeout: time.Duration(a.WriteTimeout),
		Handler:      router,
		Parent:       a,
	}
	err := a.httpServer.Initialize()
	if err != nil {
		return err
	}

	a.Log(logger.Info, "listener opened on "+a.Address)

	return nil
}

// Close closes the API.
func (a *API) Close() {
	a.Log(logger.Info, "listener is closing")
	a.httpServer.Close()
}

// Log implements logger.Writer.
func (a *API) Log(level logger.Level, format string, args ...interface{}) {
	a.Parent.Log(level, "[API] "+format, args...)
}

func (a *API) writeError(ctx *gin.Context, status int, err error) {
	// show error in logs
	a.Log(logger.Error, err.Error())

	// add error to response
	ctx.JSON(status, &defs.APIError{
		Status: "error",
		Error:  err.Error(),
	})
}

func (a *API) writeOK(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, &defs.APIOK{Status: "ok"})
}

// errorStatus maps errors of the processing layer to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, trim.ErrBusy):
		return http.StatusConflict

	case errors.Is(err, processing.ErrJobNotFound),
		errors.Is(err, track.ErrSourceUnavailable):
		return http.StatusNotFound

	case errors.Is(err, processing.ErrInvalidRequest),
		errors.Is(err, track.ErrFormatUnrecognized):
		return http.StatusBadRequest
	}

	return http.StatusInternalServerError
}

func (a *API) middlewarePreflightRequests(ctx *gin.Context) {
	if ctx.Request.Method == http.MethodOptions &&
		ctx.Request.Header.Get("Access-Control-Request-Method") != "" {
		ctx.Header("Access-Control-Allow-Methods", "OPTIONS, GET, POST")
		ctx.Header("Access-Control-Allow-Headers", "Authorization, Content-Type")
		ctx.AbortWithStatus(http.StatusNoContent)
		return
	}
}

func (a *API) middlewareAuth(ctx *gin.Context) {
	if a.User.IsEmpty() {
		return
	}

	user, pass := httpp.Credentials(ctx.Request)

	if user == "" && pass == "" {
		ctx.Header("WWW-Authenticate", `Basic realm="mediatrim"`)
		ctx.AbortWithStatusJSON(http.StatusUnauthorized, &defs.APIError{
			Status: "error",
			Error:  "authentication error",
		})
		return
	}

	if !a.User.Check(user) || !a.Pass.Check(pass) {
		a.Log(logger.Info, "connection %v failed to authenticate", httpp.RemoteAddr(ctx))

		// wait some seconds to delay brute force attacks
		<-time.After(a.pauseAfterAuthError)

		ctx.AbortWithStatusJSON(http.StatusUnauthorized, &defs.APIError{
			Status: "error",
			Error:  "authentication error",
		})
		return
	}
}

func (a *API) onInfo(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, &defs.APIInfo{
		Version: a.Version,
		Started: a.Started,
	})
}
