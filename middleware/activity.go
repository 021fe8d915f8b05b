package middleware

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cppla/socialbbs/services"
	"github.com/cppla/socialbbs/utils"
)

// Activity gives each request its own activity cache and flushes it to
// tracker after the handlers ran.
func Activity(tracker services.ActivityTracker) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, act := services.WithActivity(c.Request.Context())
		c.Request = c.Request.WithContext(ctx)
		c.Next()

		if act.Len() == 0 {
			return
		}
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := act.Flush(fctx, tracker); err != nil {
			utils.Sugar.Warnf("activity flush failed path=%s err=%v", c.Request.URL.Path, err)
		}
	}
}
