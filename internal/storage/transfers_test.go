package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/pocket-ledger/internal/journal"
	"github.com/Veraticus/pocket-ledger/internal/model"
)

var testTime = time.Date(2024, 4, 2, 18, 30, 0, 0, time.UTC)

func balanceOf(t *testing.T, store *SQLiteStorage, id string) int64 {
	t.Helper()
	acct, err := store.GetAccount(context.Background(), id)
	require.NoError(t, err)
	return acct.Balance
}

func TestCreateTransfer(t *testing.T) {
	store := createTestStorage(t)
	f := seedLedger(t, store)
	ctx := context.Background()

	memo := "  lunch  "
	xfer, err := store.CreateTransfer(ctx, TransferInput{
		SourceID:          f.cash.ID,
		DestinationID:     f.food.ID,
		SourceAmount:      1250,
		DestinationAmount: 1250,
		Time:              testTime,
		Memo:              &memo,
	})
	require.NoError(t, err)
	assert.Equal(t, model.AccountRef(f.cash.ID), xfer.Source)
	assert.Equal(t, model.CategoryRef(f.food.ID), xfer.Destination)
	require.NotNil(t, xfer.Memo)
	assert.Equal(t, "lunch", *xfer.Memo)

	assert.Equal(t, int64(10000-1250), balanceOf(t, store, f.cash.ID))

	batch := nextBatch(t, store)
	require.Len(t, batch.Entries, 1, "balance deltas are not journaled")
	e := batch.Entries[0]
	assert.Equal(t, model.TableTransfers, e.Table)
	assert.Equal(t, journal.OpPut, e.Op)
	assert.Equal(t, journal.TagTransferCreate, e.Tag)
	assert.Equal(t, []string{"time", "source_id", "source_amount", "destination_id", "destination_amount", "memo"}, e.Data.Names())

	got, err := store.GetTransfer(ctx, xfer.ID)
	require.NoError(t, err)
	assert.Equal(t, xfer, got)
}

func TestCreateTransfer_BetweenAccounts(t *testing.T) {
	store := createTestStorage(t)
	f := seedLedger(t, store)
	ctx := context.Background()

	_, err := store.CreateTransfer(ctx, TransferInput{
		SourceID:          f.cash.ID,
		DestinationID:     f.card.ID,
		SourceAmount:      4000,
		DestinationAmount: 4000,
		Time:              testTime,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(6000), balanceOf(t, store, f.cash.ID))
	assert.Equal(t, int64(4000), balanceOf(t, store, f.card.ID))
}

func TestCreateTransfer_CrossCurrency(t *testing.T) {
	store := createTestStorage(t)
	f := seedLedger(t, store)
	ctx := context.Background()

	usd, err := store.CreateCurrency(ctx, CurrencyInput{Code: "USD", Symbol: "$", Precision: 2})
	require.NoError(t, err)
	dollars, err := store.CreateAccount(ctx, AccountInput{Title: "Dollars", CurrencyID: usd.ID})
	require.NoError(t, err)

	_, err = store.CreateTransfer(ctx, TransferInput{
		SourceID:          f.cash.ID,
		DestinationID:     dollars.ID,
		SourceAmount:      1000,
		DestinationAmount: 1085,
		Time:              testTime,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(9000), balanceOf(t, store, f.cash.ID))
	assert.Equal(t, int64(1085), balanceOf(t, store, dollars.ID))
}

func TestCreateTransfer_Validation(t *testing.T) {
	store := createTestStorage(t)
	f := seedLedger(t, store)
	ctx := context.Background()

	valid := TransferInput{
		SourceID:          f.cash.ID,
		DestinationID:     f.food.ID,
		SourceAmount:      100,
		DestinationAmount: 100,
		Time:              testTime,
	}

	tests := []struct {
		name    string
		mutate  func(*TransferInput)
		wantErr error
	}{
		{name: "zero amount", mutate: func(in *TransferInput) { in.SourceAmount = 0 }, wantErr: ErrInvalidTransfer},
		{name: "negative amount", mutate: func(in *TransferInput) { in.DestinationAmount = -5 }, wantErr: ErrInvalidTransfer},
		{name: "same endpoint", mutate: func(in *TransferInput) { in.DestinationID = in.SourceID }, wantErr: ErrInvalidTransfer},
		{name: "missing time", mutate: func(in *TransferInput) { in.Time = time.Time{} }, wantErr: ErrInvalidTransfer},
		{name: "unknown source", mutate: func(in *TransferInput) { in.SourceID = "ghost" }, wantErr: ErrUnknownCounterparty},
		{name: "same currency unequal amounts", mutate: func(in *TransferInput) { in.DestinationAmount = 99 }, wantErr: ErrCurrencyMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			tt.mutate(&in)
			_, err := store.CreateTransfer(ctx, in)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	stats, err := f.journal.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.PendingEntries)
	assert.Equal(t, int64(10000), balanceOf(t, store, f.cash.ID))
}

func TestEditTransfer(t *testing.T) {
	store := createTestStorage(t)
	f := seedLedger(t, store)
	ctx := context.Background()

	xfer, err := store.CreateTransfer(ctx, TransferInput{
		SourceID: f.cash.ID, DestinationID: f.food.ID,
		SourceAmount: 2000, DestinationAmount: 2000, Time: testTime,
	})
	require.NoError(t, err)
	drainJournal(t, store)

	// Move the expense to the card and change the amount.
	edited, err := store.EditTransfer(ctx, xfer.ID, TransferInput{
		SourceID: f.card.ID, DestinationID: f.food.ID,
		SourceAmount: 500, DestinationAmount: 500, Time: testTime.Add(time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, xfer.ID, edited.ID)

	assert.Equal(t, int64(10000), balanceOf(t, store, f.cash.ID))
	assert.Equal(t, int64(-500), balanceOf(t, store, f.card.ID))

	batch := nextBatch(t, store)
	require.Len(t, batch.Entries, 1)
	e := batch.Entries[0]
	assert.Equal(t, journal.OpPut, e.Op)
	assert.Equal(t, journal.TagTransferEdit, e.Tag)
	src, _ := e.Data.Text("source_id")
	assert.Equal(t, f.card.ID, src)

	_, err = store.EditTransfer(ctx, "missing", TransferInput{
		SourceID: f.card.ID, DestinationID: f.food.ID,
		SourceAmount: 1, DestinationAmount: 1, Time: testTime,
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRevertTransfer(t *testing.T) {
	store := createTestStorage(t)
	f := seedLedger(t, store)
	ctx := context.Background()

	xfer, err := store.CreateTransfer(ctx, TransferInput{
		SourceID: f.salary.ID, DestinationID: f.card.ID,
		SourceAmount: 300000, DestinationAmount: 300000, Time: testTime,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(300000), balanceOf(t, store, f.card.ID))
	drainJournal(t, store)

	require.NoError(t, store.RevertTransfer(ctx, xfer.ID))
	assert.Equal(t, int64(0), balanceOf(t, store, f.card.ID))

	_, err = store.GetTransfer(ctx, xfer.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	batch := nextBatch(t, store)
	require.Len(t, batch.Entries, 1)
	assert.Equal(t, journal.OpDelete, batch.Entries[0].Op)
	assert.Equal(t, xfer.ID, batch.Entries[0].RowID)
	assert.Empty(t, batch.Entries[0].Data)

	assert.ErrorIs(t, store.RevertTransfer(ctx, xfer.ID), ErrNotFound)
}

func TestListTransfers(t *testing.T) {
	store := createTestStorage(t)
	f := seedLedger(t, store)
	ctx := context.Background()

	for i, dest := range []string{f.food.ID, f.card.ID, f.food.ID} {
		_, err := store.CreateTransfer(ctx, TransferInput{
			SourceID: f.cash.ID, DestinationID: dest,
			SourceAmount: 100, DestinationAmount: 100,
			Time: testTime.Add(time.Duration(i) * 24 * time.Hour),
		})
		require.NoError(t, err)
	}

	all, err := store.ListTransfers(ctx, TransferFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.True(t, all[0].Time.After(all[1].Time), "newest first")

	food, err := store.ListTransfers(ctx, TransferFilter{CounterpartyID: f.food.ID})
	require.NoError(t, err)
	assert.Len(t, food, 2)
	for _, xfer := range food {
		assert.Equal(t, model.CategoryRef(f.food.ID), xfer.Destination)
	}

	start := testTime.Add(12 * time.Hour)
	end := testTime.Add(36 * time.Hour)
	window, err := store.ListTransfers(ctx, TransferFilter{Start: &start, End: &end})
	require.NoError(t, err)
	require.Len(t, window, 1)
	assert.Equal(t, model.AccountRef(f.card.ID), window[0].Destination)

	limited, err := store.ListTransfers(ctx, TransferFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestLookupCounterparty(t *testing.T) {
	store := createTestStorage(t)
	f := seedLedger(t, store)
	ctx := context.Background()

	cp, cur, err := store.LookupCounterparty(ctx, f.cash.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AccountRef(f.cash.ID), cp)
	assert.Equal(t, f.eur.ID, cur)

	cp, _, err = store.LookupCounterparty(ctx, f.food.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CategoryRef(f.food.ID), cp)

	_, _, err = store.LookupCounterparty(ctx, "ghost")
	assert.ErrorIs(t, err, ErrUnknownCounterparty)
}
