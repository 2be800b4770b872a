package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/unkn0wn-root/pocketbook/docstore"
	"github.com/unkn0wn-root/pocketbook/ledger"
)

func (s *Server) dashboardYears(c *gin.Context) {
	years, err := s.svc.Expenses.Years(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, years)
}

// dashboardSummary totals one month, or the whole year without a month.
func (s *Server) dashboardSummary(c *gin.Context) {
	year, err := intParam(c, "year")
	if err != nil {
		s.fail(c, err)
		return
	}
	month := 0
	if c.Param("month") != "" {
		if month, err = intParam(c, "month"); err != nil {
			s.fail(c, err)
			return
		}
	}
	sum, err := s.svc.Expenses.Summary(c.Request.Context(), year, month)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (s *Server) listLoans(c *gin.Context) {
	size, err := intQuery(c, "pageSize", docstore.DefaultPageSize)
	if err != nil {
		s.fail(c, err)
		return
	}
	page, err := s.svc.Ledger.ListLoans(c.Request.Context(), docstore.PageQuery{Size: size, StartAfter: c.Query("startAfter")})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (s *Server) loanPayments(c *gin.Context) {
	payments, err := s.svc.Ledger.Payments(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, payments)
}

func (s *Server) createLoan(c *gin.Context) {
	var in ledger.LoanInput
	if err := bindJSON(c, &in); err != nil {
		s.fail(c, err)
		return
	}
	id, err := s.svc.Ledger.CreateLoan(c.Request.Context(), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "id": id})
}

func (s *Server) addPayment(c *gin.Context) {
	var in ledger.PaymentInput
	if err := bindJSON(c, &in); err != nil {
		s.fail(c, err)
		return
	}
	id, err := s.svc.Ledger.AddPayment(c.Request.Context(), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "payment_id": id})
}
