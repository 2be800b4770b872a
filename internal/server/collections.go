package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/unkn0wn-root/pocketbook/crud"
	"github.com/unkn0wn-root/pocketbook/docstore"
)

func (s *Server) listCollections(c *gin.Context) {
	names, err := s.svc.Catalog.Names(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, names)
}

func (s *Server) collection(c *gin.Context) (*crud.Collection, bool) {
	coll, err := s.svc.Collections.Collection(c.Param("collection"))
	if err != nil {
		s.fail(c, err)
		return nil, false
	}
	return coll, true
}

// listDocuments returns the whole collection, or one page when pageSize or
// startAfter is given.
func (s *Server) listDocuments(c *gin.Context) {
	coll, ok := s.collection(c)
	if !ok {
		return
	}
	if c.Query("pageSize") == "" && c.Query("startAfter") == "" {
		docs, err := coll.All(c.Request.Context())
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, docs)
		return
	}
	size, err := intQuery(c, "pageSize", docstore.DefaultPageSize)
	if err != nil {
		s.fail(c, err)
		return
	}
	page, err := coll.Page(c.Request.Context(), docstore.PageQuery{Size: size, StartAfter: c.Query("startAfter")})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// createDocument stores the body under the id held in its id field.
func (s *Server) createDocument(c *gin.Context) {
	coll, ok := s.collection(c)
	if !ok {
		return
	}
	var body docstore.Fields
	if err := bindJSON(c, &body); err != nil {
		s.fail(c, err)
		return
	}
	id, err := coll.CreateWithID(c.Request.Context(), body)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "id": id})
}

func (s *Server) getDocument(c *gin.Context) {
	coll, ok := s.collection(c)
	if !ok {
		return
	}
	doc, err := coll.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (s *Server) updateDocument(c *gin.Context) {
	coll, ok := s.collection(c)
	if !ok {
		return
	}
	var body docstore.Fields
	if err := bindJSON(c, &body); err != nil {
		s.fail(c, err)
		return
	}
	id, err := coll.Update(c.Request.Context(), c.Param("id"), body)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "id": id})
}

func (s *Server) deleteDocument(c *gin.Context) {
	coll, ok := s.collection(c)
	if !ok {
		return
	}
	if err := coll.Delete(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
