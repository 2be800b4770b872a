package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type askRequest struct {
	Message string `json:"message"`
}

func (s *Server) ask(c *gin.Context) {
	var req askRequest
	if err := bindJSON(c, &req); err != nil {
		s.fail(c, err)
		return
	}
	ex, err := s.svc.Chat.Ask(c.Request.Context(), req.Message)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reply": ex.Reply})
}

func (s *Server) chatHistory(c *gin.Context) {
	limit, err := intQuery(c, "limit", 0)
	if err != nil {
		s.fail(c, err)
		return
	}
	hist, err := s.svc.Chat.History(c.Request.Context(), limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, hist)
}
