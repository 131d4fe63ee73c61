package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/chenBenjamin97/pose-action/pkg/log"
	"github.com/chenBenjamin97/pose-action/pkg/notify"
	"github.com/chenBenjamin97/pose-action/pkg/pose"
	"github.com/chenBenjamin97/pose-action/pkg/store"
	"github.com/chenBenjamin97/pose-action/pkg/utils"
)

const maxActionsLimit = 500

//Pipeline is the part of *pose.Pipeline the API reads
type Pipeline interface {
	Stats() pose.Stats
}

//Runner is the part of *pose.Runner the API uses
type Runner interface {
	Submit(frame pose.Frame) bool
	Stats() pose.RunnerStats
}

//Journal is the part of *store.Store the API reads
type Journal interface {
	RecentActions(ctx context.Context, limit int) ([]store.Action, error)
	CountActions(ctx context.Context) (map[string]int, error)
}

//Deps are the services behind the routes. Journal and Hub may be nil when disabled.
type Deps struct {
	Pipeline      Pipeline
	Runner        Runner
	Journal       Journal
	Hub           *notify.Hub
	RecordingsDir string
}

type statusResponse struct {
	Pipeline pose.Stats       `json:"pipeline"`
	Runner   pose.RunnerStats `json:"runner"`
	Hub      *notify.HubStats `json:"hub,omitempty"`
}

type actionsResponse struct {
	Actions []store.Action `json:"actions"`
	Counts  map[string]int `json:"counts"`
}

//keypointsRequest is a frame whose bodies were detected by the client
type keypointsRequest struct {
	Bodies []pose.KeypointFrame `json:"bodies"`
}

func SetRouter(deps Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	var apiSeq atomic.Uint64

	apiRoutes := r.Group("/api")

	apiRoutes.GET("/status", func(ctx *gin.Context) {
		resp := statusResponse{
			Pipeline: deps.Pipeline.Stats(),
			Runner:   deps.Runner.Stats(),
		}
		if deps.Hub != nil {
			hubStats := deps.Hub.Stats()
			resp.Hub = &hubStats
		}
		ctx.JSON(http.StatusOK, resp)
	})

	apiRoutes.GET("/actions", func(ctx *gin.Context) {
		if deps.Journal == nil {
			abortWithError(ctx, http.StatusServiceUnavailable, errors.New("action journal is disabled"))
			return
		}

		limit := 50
		if q := ctx.Query("limit"); q != "" {
			n, err := strconv.Atoi(q)
			if err != nil || n <= 0 {
				abortWithError(ctx, http.StatusBadRequest, errors.New("limit must be a positive integer"))
				return
			}
			limit = min(n, maxActionsLimit)
		}

		actions, err := deps.Journal.RecentActions(ctx.Request.Context(), limit)
		if err != nil {
			log.Error(log.Fields{"error": err.Error()}, "[api.actions] could not read journal")
			ctx.Status(http.StatusInternalServerError)
			return
		}
		counts, err := deps.Journal.CountActions(ctx.Request.Context())
		if err != nil {
			log.Error(log.Fields{"error": err.Error()}, "[api.actions] could not count journal")
			ctx.Status(http.StatusInternalServerError)
			return
		}

		ctx.JSON(http.StatusOK, actionsResponse{Actions: actions, Counts: counts})
	})

	apiRoutes.POST("/keypoints", func(ctx *gin.Context) {
		var req keypointsRequest
		if err := ctx.ShouldBindJSON(&req); err != nil {
			abortWithError(ctx, http.StatusBadRequest, err)
			return
		}
		for _, body := range req.Bodies {
			if err := body.Validate(); err != nil {
				abortWithError(ctx, http.StatusBadRequest, err)
				return
			}
		}

		seq := apiSeq.Add(1)
		accepted := deps.Runner.Submit(pose.Frame{
			Seq:       seq,
			Timestamp: time.Now(),
			Payload:   req.Bodies,
		})
		if !accepted {
			abortWithError(ctx, http.StatusTooManyRequests, errors.New("pipeline is busy, frame dropped"))
			return
		}

		ctx.JSON(http.StatusAccepted, gin.H{"seq": seq})
	})

	if deps.Hub != nil {
		apiRoutes.GET("/ws", gin.WrapH(deps.Hub))
	}

	apiRoutes.GET("/recordings", func(ctx *gin.Context) {
		if deps.RecordingsDir == "" {
			ctx.JSON(http.StatusOK, []string{})
			return
		}
		if names, err := utils.ListDir(deps.RecordingsDir); err != nil {
			log.Error(log.Fields{"error": err.Error(), "dir": deps.RecordingsDir}, "[api.recordings] could not list directory")
			ctx.Status(http.StatusInternalServerError)
		} else {
			ctx.JSON(http.StatusOK, names)
		}
	})

	return r
}

func abortWithError(ctx *gin.Context, status int, err error) {
	ctx.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func requestLogger() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()

		fields := log.Fields{
			"method":  ctx.Request.Method,
			"path":    ctx.Request.URL.Path,
			"status":  ctx.Writer.Status(),
			"latency": time.Since(start).String(),
			"remote":  ctx.ClientIP(),
		}
		if ctx.Writer.Status() >= http.StatusInternalServerError {
			log.Error(fields, "[api] request failed")
			return
		}
		log.Debug(fields, "[api] request")
	}
}
