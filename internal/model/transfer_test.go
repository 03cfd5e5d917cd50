package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validTransfer() Transfer {
	return Transfer{
		ID:                "t1",
		Source:            AccountRef("wallet"),
		SourceAmount:      1000,
		Destination:       CategoryRef("groceries"),
		DestinationAmount: 1000,
		Time:              time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestTransferValidate(t *testing.T) {
	tests := []struct {
		mutate  func(*Transfer)
		name    string
		wantErr bool
	}{
		{name: "valid", mutate: func(*Transfer) {}},
		{name: "zero source amount", mutate: func(tr *Transfer) { tr.SourceAmount = 0 }, wantErr: true},
		{name: "negative destination amount", mutate: func(tr *Transfer) { tr.DestinationAmount = -5 }, wantErr: true},
		{name: "missing source", mutate: func(tr *Transfer) { tr.Source = Counterparty{} }, wantErr: true},
		{name: "missing destination", mutate: func(tr *Transfer) { tr.Destination = Counterparty{} }, wantErr: true},
		{name: "same endpoints", mutate: func(tr *Transfer) { tr.Destination = AccountRef("wallet") }, wantErr: true},
		{name: "missing time", mutate: func(tr *Transfer) { tr.Time = time.Time{} }, wantErr: true},
		{name: "unknown kind", mutate: func(tr *Transfer) { tr.Destination.Kind = "budget" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := validTransfer()
			tt.mutate(&tr)
			err := tr.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidTransfer)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTransferBalanceDeltas(t *testing.T) {
	deltas := func(tr Transfer) map[string]int64 {
		t.Helper()
		d, err := tr.BalanceDeltas()
		require.NoError(t, err)
		return d
	}

	expense := validTransfer()
	assert.Equal(t, map[string]int64{"wallet": -1000}, deltas(expense))
	reversed, err := expense.Reversed()
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"wallet": 1000}, reversed)

	exchange := Transfer{
		Source:            AccountRef("eur"),
		SourceAmount:      900,
		Destination:       AccountRef("usd"),
		DestinationAmount: 1000,
	}
	assert.Equal(t, map[string]int64{"eur": -900, "usd": 1000}, deltas(exchange))

	income := Transfer{
		Source:            CategoryRef("salary"),
		SourceAmount:      5000,
		Destination:       AccountRef("bank"),
		DestinationAmount: 5000,
	}
	assert.Equal(t, map[string]int64{"bank": 5000}, deltas(income))
}

func TestTransferBalanceDeltas_UnknownKind(t *testing.T) {
	tr := validTransfer()
	tr.Source = Counterparty{Kind: "budget", ID: "wallet"}

	_, err := tr.BalanceDeltas()
	assert.ErrorIs(t, err, ErrUnknownCounterpartyKind)
	_, err = tr.Reversed()
	assert.ErrorIs(t, err, ErrUnknownCounterpartyKind)
}

func TestCounterpartyIsAccount(t *testing.T) {
	tests := []struct {
		name    string
		cp      Counterparty
		want    bool
		wantErr bool
	}{
		{name: "account", cp: AccountRef("a"), want: true},
		{name: "category", cp: CategoryRef("c")},
		{name: "unknown", cp: Counterparty{Kind: "budget", ID: "b"}, wantErr: true},
		{name: "zero", cp: Counterparty{}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cp.IsAccount()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownCounterpartyKind)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
