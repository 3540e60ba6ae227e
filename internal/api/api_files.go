package api

import (
	"net/http"

	"github.com/bluenviron/mediatrim/internal/defs"
	"github.com/gin-gonic/gin"
)

func (a *API) onProbe(ctx *gin.Context) {
	data, err := a.Processing.Probe(ctx.Query("path"))
	if err != nil {
		a.writeError(ctx, errorStatus(err), err)
		return
	}

	ctx.JSON(http.StatusOK, data)
}

func (a *API) onOutputsList(ctx *gin.Context) {
	items, err := a.Processing.Outputs()
	if err != nil {
		a.writeError(ctx, http.StatusInternalServerError, err)
		return
	}

	data := &defs.APIOutputList{
		Items: items,
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
