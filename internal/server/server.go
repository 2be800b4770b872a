// Package server exposes the services over HTTP with gin.
package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/unkn0wn-root/pocketbook"
	"github.com/unkn0wn-root/pocketbook/chat"
	"github.com/unkn0wn-root/pocketbook/crud"
	"github.com/unkn0wn-root/pocketbook/expenses"
	"github.com/unkn0wn-root/pocketbook/internal/logging"
	"github.com/unkn0wn-root/pocketbook/ledger"
	"github.com/unkn0wn-root/pocketbook/library"
)

// Action identifiers required in X-Action-Identifier on write routes.
const (
	ActionAddCollectionDocument    = "ADD_COLLECTION_DOCUMENT"
	ActionUpdateCollectionDocument = "UPDATE_COLLECTION_DOCUMENT"
	ActionDeleteCollectionDocument = "DELETE_COLLECTION_DOCUMENT"
	ActionAddManagementItem        = "ADD_MANAGEMENT_ITEM"
	ActionUpdateManagementRecord   = "UPDATE_MANAGEMENT_RECORD"
	ActionDeleteManagementRecord   = "DELETE_MANAGEMENT_RECORD"
	ActionCreateLoan               = "CREATE_LOAN"
	ActionAddLoanPayment           = "ADD_LOAN_PAYMENT"
	ActionCreateBook               = "CREATE_BOOK"
	ActionUpdateBook               = "UPDATE_BOOK"
	ActionDeleteBook               = "DELETE_BOOK"
	ActionCreateGenre              = "CREATE_GENRE"
	ActionUpdateGenre              = "UPDATE_GENRE"
	ActionDeleteGenre              = "DELETE_GENRE"
	ActionUpdateShelves            = "UPDATE_SHELVES"
)

type Services struct {
	Collections *crud.Registry
	Catalog     *crud.Catalog
	Expenses    *expenses.Service
	Ledger      *ledger.Ledger
	Library     *library.Library
	Chat        *chat.Service
}

type Options struct {
	// APIKey guards write routes; empty disables the check.
	APIKey string
	// ServiceName names otelgin spans; empty leaves the router untraced.
	ServiceName string
	Logger      pocketbook.Logger
	// Health reports backend reachability for /healthz; nil means always healthy.
	Health func(ctx context.Context) error
}

type Server struct {
	svc  Services
	opts Options
	log  pocketbook.Logger
}

// NewRouter builds the gin engine with all routes registered.
func NewRouter(svc Services, opts Options) *gin.Engine {
	s := &Server{svc: svc, opts: opts, log: pocketbook.LoggerOrNop(opts.Logger)}

	r := gin.New()
	r.Use(s.recovery())
	if opts.ServiceName != "" {
		r.Use(otelgin.Middleware(opts.ServiceName))
	}
	r.Use(requestID(), s.accessLog())

	r.GET("/healthz", s.health)

	api := r.Group("/api")

	api.GET("/collections", s.listCollections)
	api.GET("/collections/:collection/documents", s.listDocuments)
	api.POST("/collections/:collection/documents", s.guard(ActionAddCollectionDocument), s.createDocument)
	api.GET("/collections/:collection/documents/:id", s.getDocument)
	api.PUT("/collections/:collection/documents/:id", s.guard(ActionUpdateCollectionDocument), s.updateDocument)
	api.DELETE("/collections/:collection/documents/:id", s.guard(ActionDeleteCollectionDocument), s.deleteDocument)

	api.GET("/management/tree", s.managementTree)
	api.GET("/management/items/:year/:month", s.managementItems)
	api.GET("/management/items/:year/:month/:type", s.managementTypeItems)
	api.POST("/management/record", s.guard(ActionAddManagementItem), s.addRecord)
	api.PUT("/management/record", s.guard(ActionUpdateManagementRecord), s.updateRecord)
	api.DELETE("/management/record", s.guard(ActionDeleteManagementRecord), s.deleteRecord)

	api.GET("/dashboard/years", s.dashboardYears)
	api.GET("/dashboard/summary/:year", s.dashboardSummary)
	api.GET("/dashboard/summary/:year/:month", s.dashboardSummary)
	api.GET("/dashboard/loan", s.listLoans)
	api.GET("/dashboard/loan/:id/payments", s.loanPayments)

	api.POST("/loans", s.guard(ActionCreateLoan), s.createLoan)
	api.POST("/loans/payments", s.guard(ActionAddLoanPayment), s.addPayment)

	api.GET("/books", s.listBooks)
	api.POST("/books", s.guard(ActionCreateBook), s.createBook)
	api.GET("/books/:id", s.getBook)
	api.PUT("/books/:id", s.guard(ActionUpdateBook), s.updateBook)
	api.DELETE("/books/:id", s.guard(ActionDeleteBook), s.deleteBook)

	api.GET("/genres", s.listGenres)
	api.POST("/genres", s.guard(ActionCreateGenre), s.createGenre)
	api.PUT("/genres/:id", s.guard(ActionUpdateGenre), s.updateGenre)
	api.DELETE("/genres/:id", s.guard(ActionDeleteGenre), s.deleteGenre)

	api.GET("/shelves", s.shelves)
	api.PUT("/shelves", s.guard(ActionUpdateShelves), s.saveShelves)

	api.POST("/chatbot", s.ask)
	api.GET("/chatbot/history", s.chatHistory)

	return r
}

func (s *Server) health(c *gin.Context) {
	if s.opts.Health != nil {
		if err := s.opts.Health(c.Request.Context()); err != nil {
			logging.FromContext(c.Request.Context(), s.log).Warn("health check failed", pocketbook.Fields{"err": err})
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
