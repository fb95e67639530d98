package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hunter-volkman/image-emailer/internal/auth"
	"github.com/hunter-volkman/image-emailer/internal/command"
	"github.com/hunter-volkman/image-emailer/internal/state"
)

// Server exposes the out-of-band command channel: status plus the two
// manual commands. Commands re-enter the scheduler's lock/state discipline
// through the command handler.
type Server struct {
	handler *command.Handler
	state   *state.Store
	router  *gin.Engine
}

func NewServer(handler *command.Handler, st *state.Store, secret string) *Server {
	s := &Server{
		handler: handler,
		state:   st,
		router:  gin.Default(),
	}
	s.setupRoutes(secret)
	return s
}

func (s *Server) setupRoutes(secret string) {
	api := s.router.Group("/api/v1")
	api.Use(auth.Middleware(secret))

	api.GET("/status", s.status)
	api.POST("/report/send", s.sendReport)
	api.POST("/artifact/build", s.buildArtifact)
}

func (s *Server) Start(port int) error {
	return s.router.Run(fmt.Sprintf(":%d", port))
}

// Router is exposed for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) status(c *gin.Context) {
	st := s.state.Snapshot()
	resp := gin.H{
		"last_capture_time": "",
		"last_sent_date":    "",
	}
	if !st.LastCaptureTime.IsZero() {
		resp["last_capture_time"] = st.LastCaptureTime.Format(time.RFC3339)
	}
	if !st.LastSentDate.IsZero() {
		resp["last_sent_date"] = st.LastSentDate.Format("2006-01-02")
	}
	c.JSON(http.StatusOK, resp)
}

type commandRequest struct {
	Date string `json:"date" binding:"required"`
}

func (s *Server) sendReport(c *gin.Context) {
	var req commandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date is required (YYYYMMDD)"})
		return
	}

	if err := s.handler.SendReport(contextOf(c), req.Date); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "sent", "date": req.Date})
}

func (s *Server) buildArtifact(c *gin.Context) {
	var req commandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date is required (YYYYMMDD)"})
		return
	}

	path, err := s.handler.BuildArtifact(contextOf(c), req.Date)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "built", "date": req.Date, "path": path})
}

func contextOf(c *gin.Context) context.Context {
	return c.Request.Context()
}
