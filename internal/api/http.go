package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-hclog"
)

type createVMRequest struct {
	CPU     json.Number `json:"cpu" form:"cpu"`
	Memory  json.Number `json:"memory" form:"memory"`
	Storage json.Number `json:"storage" form:"storage"`
}

type createPoolRequest struct {
	Name   string      `json:"name" form:"name"`
	CPU    json.Number `json:"cpu" form:"cpu"`
	Memory json.Number `json:"memory" form:"memory"`
}

type transferRequest struct {
	Source string      `json:"source" form:"source"`
	Target string      `json:"target" form:"target"`
	CPU    json.Number `json:"cpu" form:"cpu"`
	Memory json.Number `json:"memory" form:"memory"`
}

// RouterOptions configures NewRouter.
type RouterOptions struct {
	// Metrics, when set, is served at /metrics.
	Metrics http.Handler
}

// NewRouter exposes the service over HTTP.
func NewRouter(svc *Service, logger hclog.Logger, opts RouterOptions) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger.Named("http")))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	if opts.Metrics != nil {
		router.GET("/metrics", gin.WrapH(opts.Metrics))
	}

	v1 := router.Group("/v1")

	v1.GET("/resources", func(c *gin.Context) {
		respond(c, svc.Resources())
	})

	v1.GET("/vms", func(c *gin.Context) {
		respond(c, svc.VMs())
	})
	v1.GET("/vms/:id", func(c *gin.Context) {
		respond(c, svc.VM(c.Param("id")))
	})
	v1.POST("/vms", func(c *gin.Context) {
		var req createVMRequest
		if !bind(c, &req) {
			return
		}
		respond(c, svc.CreateVM(req.CPU.String(), req.Memory.String(), req.Storage.String()))
	})
	v1.DELETE("/vms/:id", func(c *gin.Context) {
		respond(c, svc.DestroyVM(c.Param("id")))
	})

	v1.GET("/pools", func(c *gin.Context) {
		respond(c, svc.Pools())
	})
	v1.GET("/pools/:name", func(c *gin.Context) {
		respond(c, svc.Pool(c.Param("name")))
	})
	v1.POST("/pools", func(c *gin.Context) {
		var req createPoolRequest
		if !bind(c, &req) {
			return
		}
		respond(c, svc.CreatePool(req.Name, req.CPU.String(), req.Memory.String()))
	})
	v1.DELETE("/pools/:name", func(c *gin.Context) {
		respond(c, svc.DeletePool(c.Param("name")))
	})
	v1.POST("/pools/transfer", func(c *gin.Context) {
		var req transferRequest
		if !bind(c, &req) {
			return
		}
		respond(c, svc.AdjustResources(req.Source, req.Target, req.CPU.String(), req.Memory.String()))
	})

	return router
}

func bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBind(req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Message: "Invalid request body: " + err.Error()})
		return false
	}
	return true
}

func respond(c *gin.Context, resp Response) {
	c.JSON(resp.Code, resp)
}

func requestLogger(logger hclog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("request complete",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}
