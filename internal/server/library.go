package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/unkn0wn-root/pocketbook/docstore"
	"github.com/unkn0wn-root/pocketbook/library"
)

func (s *Server) listBooks(c *gin.Context) {
	docs, err := s.svc.Library.Books().All(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, docs)
}

func (s *Server) getBook(c *gin.Context) {
	doc, err := s.svc.Library.Books().Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (s *Server) createBook(c *gin.Context) {
	var body docstore.Fields
	if err := bindJSON(c, &body); err != nil {
		s.fail(c, err)
		return
	}
	id, err := s.svc.Library.CreateBook(c.Request.Context(), body)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "id": id})
}

func (s *Server) updateBook(c *gin.Context) {
	var body docstore.Fields
	if err := bindJSON(c, &body); err != nil {
		s.fail(c, err)
		return
	}
	id := c.Param("id")
	if err := s.svc.Library.UpdateBook(c.Request.Context(), id, body); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "id": id})
}

func (s *Server) deleteBook(c *gin.Context) {
	if err := s.svc.Library.Books().Delete(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) listGenres(c *gin.Context) {
	docs, err := s.svc.Library.Genres().All(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, docs)
}

func (s *Server) createGenre(c *gin.Context) {
	var body docstore.Fields
	if err := bindJSON(c, &body); err != nil {
		s.fail(c, err)
		return
	}
	id, err := s.svc.Library.CreateGenre(c.Request.Context(), body)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "id": id})
}

func (s *Server) updateGenre(c *gin.Context) {
	var body docstore.Fields
	if err := bindJSON(c, &body); err != nil {
		s.fail(c, err)
		return
	}
	id, err := s.svc.Library.UpdateGenre(c.Request.Context(), c.Param("id"), body)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "id": id})
}

func (s *Server) deleteGenre(c *gin.Context) {
	if err := s.svc.Library.Genres().Delete(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) shelves(c *gin.Context) {
	layout, err := s.svc.Library.Shelves(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, layout)
}

func (s *Server) saveShelves(c *gin.Context) {
	var layout []library.Row
	if err := bindJSON(c, &layout); err != nil {
		s.fail(c, err)
		return
	}
	if err := s.svc.Library.SaveShelves(c.Request.Context(), layout); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
