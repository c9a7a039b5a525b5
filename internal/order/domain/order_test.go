package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validLines() []OrderLine {
	return []OrderLine{
		{SKU: "SKU-1", Quantity: 2, UnitPriceCents: 1500},
		{SKU: "SKU-2", Quantity: 1, UnitPriceCents: 499},
	}
}

func TestNewOrder_Valid(t *testing.T) {
	o, err := NewOrder("cliente@example.com", validLines())

	require.NoError(t, err)
	assert.Equal(t, OrderPendingPayment, o.Status)
	assert.Equal(t, int64(3499), o.TotalCents())

	// order.created queda registrado en el buffer del agregado.
	events := o.PendingEvents()
	require.Len(t, events, 1)
	created, ok := events[0].(OrderCreated)
	require.True(t, ok)
	assert.Equal(t, o.ID, created.OrderID)
	assert.Equal(t, int64(3499), created.TotalCents)
}

func TestNewOrder_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		email   string
		lines   []OrderLine
		wantErr error
	}{
		{name: "sin email", email: "", lines: validLines(), wantErr: ErrInvalidOrder},
		{name: "sin líneas", email: "a@example.com", lines: nil, wantErr: ErrEmptyOrder},
		{name: "línea sin SKU", email: "a@example.com", lines: []OrderLine{{Quantity: 1, UnitPriceCents: 100}}, wantErr: ErrInvalidOrder},
		{name: "cantidad cero", email: "a@example.com", lines: []OrderLine{{SKU: "X", Quantity: 0, UnitPriceCents: 100}}, wantErr: ErrInvalidOrder},
		{name: "precio negativo", email: "a@example.com", lines: []OrderLine{{SKU: "X", Quantity: 1, UnitPriceCents: -1}}, wantErr: ErrInvalidOrder},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewOrder(tt.email, tt.lines)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestOrder_Pay(t *testing.T) {
	o, err := NewOrder("cliente@example.com", validLines())
	require.NoError(t, err)
	o.ClearEvents()

	require.NoError(t, o.Pay("card"))
	assert.Equal(t, OrderPaid, o.Status)

	events := o.PendingEvents()
	require.Len(t, events, 1)
	paid, ok := events[0].(OrderPaidEvent)
	require.True(t, ok)
	assert.Equal(t, "card", paid.Method)

	// Pagar dos veces no es válido y no registra evento extra.
	assert.ErrorIs(t, o.Pay("card"), ErrOrderNotPayable)
	assert.Len(t, o.PendingEvents(), 1)
}

func TestOrder_Cancel(t *testing.T) {
	o, err := NewOrder("cliente@example.com", validLines())
	require.NoError(t, err)
	o.ClearEvents()

	require.NoError(t, o.Cancel("out of stock"))
	assert.Equal(t, OrderCancelled, o.Status)
	require.Len(t, o.PendingEvents(), 1)

	// Cancelar de nuevo es idempotente: ni error ni evento duplicado.
	require.NoError(t, o.Cancel("again"))
	assert.Len(t, o.PendingEvents(), 1)
}

func TestOrder_CancelPaid_NotAllowed(t *testing.T) {
	o, err := NewOrder("cliente@example.com", validLines())
	require.NoError(t, err)
	require.NoError(t, o.Pay("card"))

	assert.ErrorIs(t, o.Cancel("too late"), ErrOrderNotCancellable)
	assert.Equal(t, OrderPaid, o.Status)
}

func TestOrder_ClearEvents_AfterCommit(t *testing.T) {
	o, err := NewOrder("cliente@example.com", validLines())
	require.NoError(t, err)
	require.NoError(t, o.Pay("card"))
	require.Len(t, o.PendingEvents(), 2)

	o.ClearEvents()
	assert.Empty(t, o.PendingEvents())
}
