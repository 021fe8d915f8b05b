package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cppla/socialbbs/middleware"
	"github.com/cppla/socialbbs/services"
	"github.com/cppla/socialbbs/utils"
)

// respondError maps engine errors onto HTTP statuses.
func respondError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrUnauthorized):
		if middleware.ActorFrom(ctx).IsAnonymous() {
			utils.Error(ctx, http.StatusUnauthorized, utils.CodeUnauthorized, "authentication required")
			return
		}
		utils.Error(ctx, http.StatusForbidden, utils.CodeForbidden, "forbidden")
	case errors.Is(err, services.ErrNotFound):
		utils.Error(ctx, http.StatusNotFound, utils.CodeNotFound, "not found")
	case errors.Is(err, services.ErrInvalidInput):
		utils.Error(ctx, http.StatusBadRequest, utils.CodeBadRequest, err.Error())
	default:
		utils.Sugar.Errorw("request failed", "path", ctx.FullPath(), "error", err, "request_id", ctx.GetString(utils.RequestIDKey))
		utils.Error(ctx, http.StatusInternalServerError, utils.CodeInternal, "internal server error")
	}
}

func parseID(ctx *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(ctx.Param(name), 10, 64)
	if err != nil || id == 0 {
		utils.Error(ctx, http.StatusBadRequest, utils.CodeBadRequest, "invalid "+name)
		return 0, false
	}
	return uint(id), true
}

func queryUint(ctx *gin.Context, key string) uint {
	v, err := strconv.ParseUint(ctx.Query(key), 10, 64)
	if err != nil {
		return 0
	}
	return uint(v)
}

func queryInt(ctx *gin.Context, key string) int {
	v, err := strconv.Atoi(ctx.Query(key))
	if err != nil {
		return 0
	}
	return v
}

// feedQuery reads the shared feed parameters: since, before, offset, limit,
// sort, type, tags and hidden.
func feedQuery(ctx *gin.Context) services.FeedQuery {
	var tags []string
	for _, raw := range ctx.QueryArray("tags") {
		tags = append(tags, strings.Split(raw, ",")...)
	}
	includeHidden, _ := strconv.ParseBool(ctx.Query("hidden"))
	return services.FeedQuery{
		Filter: services.Filter{
			Type:          strings.ToLower(strings.TrimSpace(ctx.Query("type"))),
			IncludeHidden: includeHidden,
		},
		Sort:   services.ParseSort(ctx.Query("sort")),
		Since:  queryUint(ctx, "since"),
		Before: queryUint(ctx, "before"),
		Tags:   tags,
		Offset: queryInt(ctx, "offset"),
		Limit:  queryInt(ctx, "limit"),
	}
}
