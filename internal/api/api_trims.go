package api

import (
	"net/http"

	"github.com/bluenviron/mediatrim/internal/conf/jsonwrapper"
	"github.com/bluenviron/mediatrim/internal/defs"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func (a *API) onTrimsAdd(ctx *gin.Context) {
	var req defs.APITrimAddRequest
	err := jsonwrapper.Decode(ctx.Request.Body, &req)
	if err != nil {
		a.writeError(ctx, http.StatusBadRequest, err)
		return
	}

	data, err := a.Processing.Submit(&req)
	if err != nil {
		a.writeError(ctx, errorStatus(err), err)
		return
	}

	ctx.JSON(http.StatusOK, data)
}

func (a *API) onTrimsList(ctx *gin.Context) {
	data := &defs.APITrimList{
		Items: a.Processing.List(),
	}

	data.ItemCount = len(data.Items)
	pageCount, err := paginate(&data.Items, ctx.Query("itemsPerPage"), ctx.Query("page"))
	if err != nil {
		a.writeError(ctx, http.StatusBadRequest, err)
		return
	}
	data.PageCount = pageCount

	ctx.JSON(http.StatusOK, data)
}

func (a *API) onTrimsGet(ctx *gin.Context) {
	id, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		a.writeError(ctx, http.StatusBadRequest, err)
		return
	}

	data, err := a.Processing.Get(id)
	if err != nil {
		a.writeError(ctx, errorStatus(err), err)
		return
	}

	ctx.JSON(http.StatusOK, data)
}

func (a *API) onTrimsCancel(ctx *gin.Context) {
	id, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		a.writeError(ctx, http.StatusBadRequest, err)
		return
	}

	err = a.Processing.Cancel(id)
	if err != nil {
		a.writeError(ctx, errorStatus(err), err)
		return
	}

	a.writeOK(ctx)
}
