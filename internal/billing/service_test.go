package billing

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"visadesk/internal/models"
)

type fakeInvoiceStore struct {
	invoices map[uuid.UUID]*models.Invoice
	sequence int
	// conflicts makes the next N inserts fail as if a concurrent
	// creation had taken the allocated number.
	conflicts int
}

func newFakeInvoiceStore() *fakeInvoiceStore {
	return &fakeInvoiceStore{invoices: make(map[uuid.UUID]*models.Invoice)}
}

func (f *fakeInvoiceStore) NextInvoiceNumber(_ context.Context, year int) (string, error) {
	f.sequence++
	return fmt.Sprintf("INV-%d-%04d", year, f.sequence), nil
}

func (f *fakeInvoiceStore) Insert(_ context.Context, invoice *models.Invoice) error {
	if f.conflicts > 0 {
		f.conflicts--
		return models.NewPersistenceError("insert invoice",
			errors.Wrap(models.ErrNumberConflict, invoice.InvoiceNumber))
	}
	f.invoices[invoice.ID] = invoice
	return nil
}

func (f *fakeInvoiceStore) GetByID(_ context.Context, id uuid.UUID) (*models.Invoice, error) {
	inv, ok := f.invoices[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *inv
	return &cp, nil
}

func (f *fakeInvoiceStore) SaveStatus(_ context.Context, invoice *models.Invoice) error {
	f.invoices[invoice.ID] = invoice
	return nil
}

func (f *fakeInvoiceStore) MarkOverdue(_ context.Context, now time.Time) ([]string, error) {
	var numbers []string
	for _, inv := range f.invoices {
		if inv.Status == models.InvoiceSent && inv.DueDate.Before(now) {
			inv.Status = models.InvoiceOverdue
			numbers = append(numbers, inv.InvoiceNumber)
		}
	}
	return numbers, nil
}

func validRequest() *models.CreateInvoiceRequest {
	return &models.CreateInvoiceRequest{
		ClientID: uuid.New(),
		Items: []models.InvoiceItem{
			{Description: "Visa application handling", Quantity: 1, UnitPrice: 25000},
			{Description: "Document courier", Quantity: 2, UnitPrice: 1500},
		},
		Tax:     2800,
		DueDate: time.Now().UTC().Add(14 * 24 * time.Hour),
	}
}

func TestService_Create(t *testing.T) {
	t.Run("computes line amounts and totals", func(t *testing.T) {
		svc := NewService(newFakeInvoiceStore(), zap.NewNop())

		invoice, err := svc.Create(context.Background(), validRequest())
		require.NoError(t, err)

		assert.Regexp(t, `^INV-\d{4}-\d{4}$`, invoice.InvoiceNumber)
		assert.Equal(t, models.InvoiceDraft, invoice.Status)
		assert.Equal(t, int64(25000), invoice.Items[0].Amount)
		assert.Equal(t, int64(3000), invoice.Items[1].Amount)
		assert.Equal(t, int64(28000), invoice.Subtotal)
		assert.Equal(t, int64(30800), invoice.Total)
	})

	t.Run("reallocates the number when an insert conflicts", func(t *testing.T) {
		store := newFakeInvoiceStore()
		store.conflicts = 2
		svc := NewService(store, zap.NewNop())

		invoice, err := svc.Create(context.Background(), validRequest())
		require.NoError(t, err)
		// Two losing attempts consumed 0001 and 0002.
		assert.Regexp(t, `-0003$`, invoice.InvoiceNumber)
	})

	t.Run("gives up after repeated conflicts with a retryable error", func(t *testing.T) {
		store := newFakeInvoiceStore()
		store.conflicts = 5
		svc := NewService(store, zap.NewNop())

		_, err := svc.Create(context.Background(), validRequest())
		require.Error(t, err)
		assert.True(t, models.IsPersistence(err))
	})

	t.Run("rejects empty and malformed items", func(t *testing.T) {
		svc := NewService(newFakeInvoiceStore(), zap.NewNop())

		req := validRequest()
		req.Items = nil
		_, err := svc.Create(context.Background(), req)
		assert.True(t, models.IsValidation(err))

		req = validRequest()
		req.Items[0].Quantity = 0
		_, err = svc.Create(context.Background(), req)
		assert.True(t, models.IsValidation(err))
	})
}

func TestService_Transition(t *testing.T) {
	create := func(t *testing.T) (*Service, *models.Invoice) {
		svc := NewService(newFakeInvoiceStore(), zap.NewNop())
		invoice, err := svc.Create(context.Background(), validRequest())
		require.NoError(t, err)
		return svc, invoice
	}

	t.Run("draft to sent to paid stamps paid date once", func(t *testing.T) {
		svc, invoice := create(t)

		_, err := svc.Transition(context.Background(), invoice.ID, models.InvoiceSent)
		require.NoError(t, err)

		paid, err := svc.Transition(context.Background(), invoice.ID, models.InvoicePaid)
		require.NoError(t, err)
		require.NotNil(t, paid.PaidDate)
	})

	t.Run("partial payment path", func(t *testing.T) {
		svc, invoice := create(t)

		_, err := svc.Transition(context.Background(), invoice.ID, models.InvoiceSent)
		require.NoError(t, err)
		_, err = svc.Transition(context.Background(), invoice.ID, models.InvoicePartiallyPaid)
		require.NoError(t, err)
		paid, err := svc.Transition(context.Background(), invoice.ID, models.InvoicePaid)
		require.NoError(t, err)
		assert.Equal(t, models.InvoicePaid, paid.Status)
	})

	t.Run("illegal jumps fail", func(t *testing.T) {
		svc, invoice := create(t)

		_, err := svc.Transition(context.Background(), invoice.ID, models.InvoicePaid)
		assert.True(t, errors.Is(err, models.ErrInvalidTransition))

		_, err = svc.Transition(context.Background(), invoice.ID, models.InvoiceOverdue)
		assert.True(t, errors.Is(err, models.ErrInvalidTransition))
	})

	t.Run("terminal statuses reject transitions", func(t *testing.T) {
		svc, invoice := create(t)

		_, err := svc.Transition(context.Background(), invoice.ID, models.InvoiceCancelled)
		require.NoError(t, err)
		_, err = svc.Transition(context.Background(), invoice.ID, models.InvoiceSent)
		assert.True(t, errors.Is(err, models.ErrInvalidTransition))
	})
}

func TestService_MarkOverdue(t *testing.T) {
	store := newFakeInvoiceStore()
	svc := NewService(store, zap.NewNop())

	req := validRequest()
	req.DueDate = time.Now().UTC().Add(-24 * time.Hour)
	invoice, err := svc.Create(context.Background(), req)
	require.NoError(t, err)
	_, err = svc.Transition(context.Background(), invoice.ID, models.InvoiceSent)
	require.NoError(t, err)

	numbers, err := svc.MarkOverdue(context.Background(), time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, numbers, 1)
	assert.Equal(t, invoice.InvoiceNumber, numbers[0])

	updated, err := store.GetByID(context.Background(), invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceOverdue, updated.Status)
}
