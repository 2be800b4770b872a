// Package ledger records loans and applies payments to them.
//
// A payment is one store transaction: read the loan's outstanding balance,
// write the payment under loans/{id}/payments and the reduced balance on the
// loan. Concurrent payments on one loan are serialized by the store's
// conflict detection, so no payment is computed from a stale balance.
package ledger

import (
	"context"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/unkn0wn-root/pocketbook"
	"github.com/unkn0wn-root/pocketbook/apperr"
	"github.com/unkn0wn-root/pocketbook/codec"
	"github.com/unkn0wn-root/pocketbook/docstore"
	"github.com/unkn0wn-root/pocketbook/internal/money"
)

const LoansCollection pocketbook.Collection = "loans"

var validate = validator.New()

type Options struct {
	Logger pocketbook.Logger
	NewID  func() string    // default uuid.NewString
	Now    func() time.Time // default time.Now
	// Codec serializes cached loan listings; default JSON.
	Codec codec.Codec[[]docstore.Document]
}

type Ledger struct {
	store  docstore.Store
	writer *pocketbook.VersionBumpingWriter
	all    *pocketbook.CachedReader[[]docstore.Document]
	log    pocketbook.Logger
	newID  func() string
	now    func() time.Time
}

func New(store docstore.Store, gw *pocketbook.Gateway, opts Options) *Ledger {
	l := &Ledger{
		store:  store,
		writer: pocketbook.NewVersionBumpingWriter(gw, LoansCollection),
		log:    pocketbook.LoggerOrNop(opts.Logger),
		newID:  opts.NewID,
		now:    opts.Now,
	}
	if l.newID == nil {
		l.newID = uuid.NewString
	}
	if l.now == nil {
		l.now = time.Now
	}
	c := opts.Codec
	if c == nil {
		c = codec.JSON[[]docstore.Document]{}
	}
	l.all = pocketbook.NewCachedView[[]docstore.Document](gw, LoansCollection, docstore.ListView,
		pocketbook.ReaderFunc[[]docstore.Document](func(ctx context.Context) ([]docstore.Document, error) {
			return store.List(ctx, string(LoansCollection))
		}), c)
	return l
}

func paymentsOf(loanID string) string {
	return docstore.Join(string(LoansCollection), loanID, "payments")
}

// PaymentInput is one payment against a loan. At least one of the amounts must be positive.
type PaymentInput struct {
	LoanID        string          `json:"loan_id" validate:"required,excludes=/"`
	PaidDate      string          `json:"paidDate" validate:"required"`
	PrincipalPaid decimal.Decimal `json:"principalPaid"`
	InterestPaid  decimal.Decimal `json:"interestPaid"`
}

func (in PaymentInput) check() (time.Time, error) {
	const op = "ledger.addPayment"
	if err := validate.Struct(in); err != nil {
		return time.Time{}, apperr.Wrap(apperr.InvalidInput, op, err)
	}
	paid, err := money.ParseDate(in.PaidDate)
	if err != nil {
		return time.Time{}, apperr.Wrap(apperr.InvalidInput, op, err)
	}
	if in.PrincipalPaid.IsNegative() || in.InterestPaid.IsNegative() {
		return time.Time{}, apperr.E(apperr.InvalidInput, op, "amounts must not be negative")
	}
	if !in.PrincipalPaid.IsPositive() && !in.InterestPaid.IsPositive() {
		return time.Time{}, apperr.E(apperr.InvalidInput, op, "principalPaid or interestPaid must be positive")
	}
	return paid, nil
}

// AddPayment records a payment and lowers the loan's outstanding balance by
// the principal paid, never below zero. It returns the new payment's id.
//
// Errors: NotFound when the loan does not exist, DataConsistency when its
// stored balance is not a number, Transaction for other store failures.
// Nothing is written unless the whole payment commits.
func (l *Ledger) AddPayment(ctx context.Context, in PaymentInput) (string, error) {
	const op = "ledger.addPayment"
	paidDate, err := in.check()
	if err != nil {
		return "", err
	}

	var (
		id      string
		before  decimal.Decimal
		clamped bool
	)
	err = l.writer.Apply(ctx, func(ctx context.Context) error {
		return l.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
			loan, err := tx.Get(ctx, string(LoansCollection), in.LoanID)
			if err != nil {
				return err
			}
			outstanding, err := money.FromValue(loan.Get("outstanding"))
			if err != nil {
				return apperr.Wrap(apperr.DataConsistency, op, err)
			}

			next := outstanding.Sub(in.PrincipalPaid)
			before, clamped = outstanding, next.IsNegative()
			if clamped {
				next = decimal.Zero
			}

			id = l.newID()
			now := l.now().UTC()
			err = tx.Create(ctx, paymentsOf(in.LoanID), id, docstore.Fields{
				"loan_id":       in.LoanID,
				"paidDate":      paidDate,
				"principalPaid": money.Store(in.PrincipalPaid),
				"interestPaid":  money.Store(in.InterestPaid),
				"totalPaid":     money.Store(in.PrincipalPaid.Add(in.InterestPaid)),
				"created_at":    now,
			})
			if err != nil {
				return err
			}
			return tx.Update(ctx, string(LoansCollection), in.LoanID, docstore.Fields{
				"outstanding": money.Store(next),
				"updatedAt":   now,
			})
		})
	})
	if err != nil {
		if apperr.KindOf(err) == apperr.Internal {
			err = apperr.Wrap(apperr.Transaction, op, err)
		}
		l.log.Warn("payment not recorded", pocketbook.Fields{"loan_id": in.LoanID, "err": err})
		return "", err
	}
	if clamped {
		l.log.Warn("payment exceeds outstanding balance; clamped to zero", pocketbook.Fields{
			"loan_id": in.LoanID, "outstanding": before.String(), "principalPaid": in.PrincipalPaid.String(),
		})
	}
	l.log.Info("payment recorded", pocketbook.Fields{"loan_id": in.LoanID, "payment_id": id})
	return id, nil
}

// LoanInput creates a loan. Outstanding defaults to Principal.
type LoanInput struct {
	Name         string           `json:"name" validate:"required,max=200"`
	Principal    decimal.Decimal  `json:"principal"`
	Outstanding  *decimal.Decimal `json:"outstanding,omitempty"`
	InterestRate decimal.Decimal  `json:"interestRate"`
	TermMonths   int              `json:"termMonths" validate:"gte=0,lte=1200"`
	StartDate    string           `json:"startDate" validate:"required"`
}

func (l *Ledger) CreateLoan(ctx context.Context, in LoanInput) (string, error) {
	const op = "ledger.createLoan"
	if err := validate.Struct(in); err != nil {
		return "", apperr.Wrap(apperr.InvalidInput, op, err)
	}
	start, err := money.ParseDate(in.StartDate)
	if err != nil {
		return "", apperr.Wrap(apperr.InvalidInput, op, err)
	}
	if !in.Principal.IsPositive() {
		return "", apperr.E(apperr.InvalidInput, op, "principal must be positive")
	}
	if in.InterestRate.IsNegative() {
		return "", apperr.E(apperr.InvalidInput, op, "interestRate must not be negative")
	}
	outstanding := in.Principal
	if in.Outstanding != nil {
		if in.Outstanding.IsNegative() {
			return "", apperr.E(apperr.InvalidInput, op, "outstanding must not be negative")
		}
		outstanding = *in.Outstanding
	}

	return pocketbook.Write(ctx, l.writer, func(ctx context.Context) (string, error) {
		return l.store.Add(ctx, string(LoansCollection), docstore.Fields{
			"name":         in.Name,
			"principal":    money.Store(in.Principal),
			"outstanding":  money.Store(outstanding),
			"interestRate": money.Store(in.InterestRate),
			"termMonths":   in.TermMonths,
			"startDate":    start,
			"created_at":   l.now().UTC(),
		})
	})
}

// Loan returns one loan document.
func (l *Ledger) Loan(ctx context.Context, id string) (docstore.Document, error) {
	return l.store.Get(ctx, string(LoansCollection), id)
}

// ListLoans returns one page of loans in id order.
func (l *Ledger) ListLoans(ctx context.Context, q docstore.PageQuery) (docstore.Page, error) {
	return l.store.Page(ctx, string(LoansCollection), q)
}

// AllLoans returns every loan, served from the cache while the loans version is unchanged.
func (l *Ledger) AllLoans(ctx context.Context) ([]docstore.Document, error) {
	return l.all.ReadAll(ctx)
}

type Payment struct {
	ID            string          `json:"id"`
	LoanID        string          `json:"loan_id"`
	PaidDate      time.Time       `json:"paidDate"`
	PrincipalPaid decimal.Decimal `json:"principalPaid"`
	InterestPaid  decimal.Decimal `json:"interestPaid"`
	TotalPaid     decimal.Decimal `json:"totalPaid"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Payments lists a loan's payments ordered by paid date.
func (l *Ledger) Payments(ctx context.Context, loanID string) ([]Payment, error) {
	const op = "ledger.payments"
	if _, err := l.store.Get(ctx, string(LoansCollection), loanID); err != nil {
		return nil, err
	}
	docs, err := l.store.List(ctx, paymentsOf(loanID))
	if err != nil {
		return nil, err
	}
	out := make([]Payment, 0, len(docs))
	for _, d := range docs {
		p, err := paymentFrom(loanID, d)
		if err != nil {
			return nil, apperr.Wrap(apperr.DataConsistency, op, err)
		}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].PaidDate.Equal(out[j].PaidDate) {
			return out[i].PaidDate.Before(out[j].PaidDate)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func paymentFrom(loanID string, d docstore.Document) (Payment, error) {
	p := Payment{ID: d.ID, LoanID: loanID}
	var err error
	if p.PrincipalPaid, err = money.FromValue(d.Get("principalPaid")); err != nil {
		return p, err
	}
	if p.InterestPaid, err = money.FromValue(d.Get("interestPaid")); err != nil {
		return p, err
	}
	p.TotalPaid, err = money.FromValue(d.Get("totalPaid"))
	if err != nil {
		p.TotalPaid = p.PrincipalPaid.Add(p.InterestPaid)
	}
	p.PaidDate, _ = money.TimeValue(d.Get("paidDate"))
	p.CreatedAt, _ = money.TimeValue(d.Get("created_at"))
	return p, nil
}
