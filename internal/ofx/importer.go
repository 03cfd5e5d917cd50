package ofx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/Veraticus/pocket-ledger/internal/model"
	"github.com/Veraticus/pocket-ledger/internal/storage"
)

// importNamespace scopes transfer ids derived from FITIDs.
var importNamespace = uuid.MustParse("9d4c3b1e-53a8-4c1f-9a43-4f0c1b6a7e21")

// Ledger is the storage the importer writes to.
type Ledger interface {
	GetAccount(ctx context.Context, id string) (*model.Account, error)
	GetCategory(ctx context.Context, id string) (*model.Category, error)
	GetCurrency(ctx context.Context, id string) (*model.Currency, error)
	GetTransfer(ctx context.Context, id string) (*model.Transfer, error)
	CreateTransfer(ctx context.Context, in storage.TransferInput) (*model.Transfer, error)
}

// Options selects where imported lines are booked. Debits go from the
// account to ExpenseCategoryID, credits from IncomeCategoryID to the account.
type Options struct {
	AccountID         string
	ExpenseCategoryID string
	IncomeCategoryID  string
	DryRun            bool
}

// Result counts what an import did.
type Result struct {
	Created int
	Skipped int
	Zero    int
}

// Importer books statement lines as transfers.
type Importer struct {
	ledger Ledger
	logger *slog.Logger
}

// NewImporter creates an importer.
func NewImporter(ledger Ledger, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{ledger: ledger, logger: logger}
}

// TransferID derives the transfer id of a statement line. Importing the same
// line twice yields the same id.
func TransferID(accountID, fitid string) string {
	return uuid.NewSHA1(importNamespace, []byte(accountID+"\x00"+fitid)).String()
}

// Import books every line of stmt. Lines already imported are skipped.
// progress, when non-nil, is called after each line.
func (im *Importer) Import(ctx context.Context, stmt Statement, opts Options, progress func(done, total int)) (Result, error) {
	var res Result

	account, currency, err := im.resolve(ctx, stmt, opts)
	if err != nil {
		return res, err
	}

	for i, line := range stmt.Lines {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		created, err := im.importLine(ctx, line, account, currency, opts)
		switch {
		case err != nil:
			return res, fmt.Errorf("line %s: %w", line.FITID, err)
		case created == lineZero:
			res.Zero++
		case created == lineSkipped:
			res.Skipped++
		default:
			res.Created++
		}
		if progress != nil {
			progress(i+1, len(stmt.Lines))
		}
	}

	im.logger.Info("imported statement",
		"account", account.Title,
		"created", res.Created,
		"skipped", res.Skipped,
		"dry_run", opts.DryRun)
	return res, nil
}

type lineOutcome int

const (
	lineCreated lineOutcome = iota
	lineSkipped
	lineZero
)

func (im *Importer) importLine(ctx context.Context, line Line, account *model.Account, currency *model.Currency, opts Options) (lineOutcome, error) {
	if line.FITID == "" {
		return 0, errors.New("missing FITID")
	}
	minor, err := model.ToMinorUnits(line.Amount.Abs(), currency.Precision)
	if err != nil {
		return 0, err
	}
	if minor == 0 {
		return lineZero, nil
	}

	id := TransferID(account.ID, line.FITID)
	if _, err := im.ledger.GetTransfer(ctx, id); err == nil {
		return lineSkipped, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return 0, err
	}

	in := storage.TransferInput{
		ID:                id,
		Time:              line.Posted,
		Memo:              memo(line),
		SourceAmount:      minor,
		DestinationAmount: minor,
	}
	if line.Amount.IsNegative() {
		in.SourceID, in.DestinationID = account.ID, opts.ExpenseCategoryID
	} else {
		in.SourceID, in.DestinationID = opts.IncomeCategoryID, account.ID
	}

	if opts.DryRun {
		return lineCreated, nil
	}
	if _, err := im.ledger.CreateTransfer(ctx, in); err != nil {
		return 0, err
	}
	return lineCreated, nil
}

func (im *Importer) resolve(ctx context.Context, stmt Statement, opts Options) (*model.Account, *model.Currency, error) {
	account, err := im.ledger.GetAccount(ctx, opts.AccountID)
	if err != nil {
		return nil, nil, err
	}
	currency, err := im.ledger.GetCurrency(ctx, account.CurrencyID)
	if err != nil {
		return nil, nil, err
	}
	if stmt.Currency != "" && !strings.EqualFold(stmt.Currency, currency.Code) {
		return nil, nil, fmt.Errorf("%w: statement is in %s, account %s is in %s",
			storage.ErrCurrencyMismatch, stmt.Currency, account.Title, currency.Code)
	}

	for _, id := range []string{opts.ExpenseCategoryID, opts.IncomeCategoryID} {
		cat, err := im.ledger.GetCategory(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		if cat.CurrencyID != account.CurrencyID {
			return nil, nil, fmt.Errorf("%w: category %s is not in %s",
				storage.ErrCurrencyMismatch, cat.Title, currency.Code)
		}
	}
	return account, currency, nil
}

func memo(line Line) *string {
	parts := make([]string, 0, 2)
	if line.Payee != "" {
		parts = append(parts, line.Payee)
	}
	if line.Memo != "" && line.Memo != line.Payee {
		parts = append(parts, line.Memo)
	}
	if len(parts) == 0 {
		return nil
	}
	m := strings.Join(parts, " - ")
	return &m
}
