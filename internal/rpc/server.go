package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"distscan/internal/pkg/logger"
)

// Server hosts the RPC endpoints for one process (an agent or the
// coordinator's inbound add_event listener). Handlers are plain Go
// functions over typed request/response values; Handle adapts them to
// gin so individual packages never import gin directly.
type Server struct {
	engine *gin.Engine
	http   *http.Server
}

// NewServer builds a Server bound to addr ("host:port"), not yet started.
func NewServer(addr string) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	return &Server{
		engine: engine,
		http:   &http.Server{Addr: addr, Handler: engine},
	}
}

// Handle registers method at POST /rpc/<method>. fn receives a pointer to
// the decoded request body (a zero value when the request has no body)
// and returns a response value (or nil for no body) and an error. A
// handler error is logged and answered with a 500 and no body, so the
// caller's Client.Call returns an error promptly (rather than stalling
// on a hung connection), which callers log and treat as "no data".
func Handle[Req any, Resp any](s *Server, method string, fn func(ctx context.Context, req *Req) (*Resp, error)) {
	s.engine.POST("/rpc/"+method, func(c *gin.Context) {
		var req Req
		hasBody := c.Request.ContentLength != 0
		if hasBody {
			if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
				logger.Warn("rpc: bad request body", map[string]interface{}{"method": method, "error": err.Error()})
				c.Status(http.StatusBadRequest)
				return
			}
		}

		resp, err := fn(c.Request.Context(), &req)
		if err != nil {
			logger.Error(fmt.Sprintf("rpc: handler for %s failed", method), err, nil)
			c.Status(http.StatusInternalServerError)
			return
		}
		if resp == nil {
			c.Status(http.StatusOK)
			return
		}
		c.JSON(http.StatusOK, resp)
	})
}

// Start serves in the background and returns immediately; errors after
// startup (other than a graceful Shutdown) are logged.
func (s *Server) Start() {
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("rpc: server stopped unexpectedly", err, map[string]interface{}{"addr": s.http.Addr})
		}
	}()
}

// Shutdown stops the server, waiting up to 5s for in-flight requests.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.http.Shutdown(ctx)
}
