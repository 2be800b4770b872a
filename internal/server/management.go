package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/unkn0wn-root/pocketbook/apperr"
	"github.com/unkn0wn-root/pocketbook/docstore"
	"github.com/unkn0wn-root/pocketbook/expenses"
)

type recordRequest struct {
	expenses.Bucket
	ID     string          `json:"id"`
	Record docstore.Fields `json:"record"`
}

func (s *Server) managementTree(c *gin.Context) {
	tree, err := s.svc.Expenses.Tree(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, tree)
}

func (s *Server) bucket(c *gin.Context) (expenses.Bucket, error) {
	y, err := intParam(c, "year")
	if err != nil {
		return expenses.Bucket{}, err
	}
	m, err := intParam(c, "month")
	if err != nil {
		return expenses.Bucket{}, err
	}
	return expenses.Bucket{Year: y, Month: m, Type: c.Param("type")}, nil
}

func (s *Server) managementItems(c *gin.Context) {
	b, err := s.bucket(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	items, err := s.svc.Expenses.Items(c.Request.Context(), b.Year, b.Month)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func (s *Server) managementTypeItems(c *gin.Context) {
	b, err := s.bucket(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	limit, err := intQuery(c, "limit", 0)
	if err != nil {
		s.fail(c, err)
		return
	}
	items, err := s.svc.Expenses.TypeItems(c.Request.Context(), b, limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func (s *Server) addRecord(c *gin.Context) {
	var req recordRequest
	if err := bindJSON(c, &req); err != nil {
		s.fail(c, err)
		return
	}
	id, err := s.svc.Expenses.AddRecord(c.Request.Context(), req.Bucket, req.Record)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "id": id})
}

func (s *Server) updateRecord(c *gin.Context) {
	var req recordRequest
	if err := bindJSON(c, &req); err != nil {
		s.fail(c, err)
		return
	}
	if len(req.Record) == 0 {
		s.fail(c, apperr.E(apperr.InvalidInput, "server.updateRecord", "record is required"))
		return
	}
	if err := s.svc.Expenses.UpdateRecord(c.Request.Context(), req.Bucket, req.ID, req.Record); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) deleteRecord(c *gin.Context) {
	var req recordRequest
	if err := bindJSON(c, &req); err != nil {
		s.fail(c, err)
		return
	}
	if err := s.svc.Expenses.DeleteRecord(c.Request.Context(), req.Bucket, req.ID); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
