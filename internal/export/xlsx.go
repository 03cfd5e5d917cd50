// Package export writes the ledger to an Excel workbook.
package export

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/Veraticus/pocket-ledger/internal/model"
	"github.com/Veraticus/pocket-ledger/internal/storage"
)

// Sheet names of the exported workbook.
const (
	SheetAccounts   = "Accounts"
	SheetCategories = "Categories"
	SheetTransfers  = "Transfers"
)

// Ledger is the read side of storage the export needs.
type Ledger interface {
	ListCurrencies(ctx context.Context) ([]model.Currency, error)
	ListAccounts(ctx context.Context, includeArchived bool) ([]model.Account, error)
	ListCategories(ctx context.Context, includeArchived bool) ([]model.Category, error)
	GetSubcategories(ctx context.Context, parentID string) ([]model.Subcategory, error)
	ListTransfers(ctx context.Context, filter storage.TransferFilter) ([]model.Transfer, error)
}

// Options narrows the exported transfers.
type Options struct {
	Start *time.Time
	End   *time.Time
}

type endpoint struct {
	title    string
	currency model.Currency
}

// Exporter renders a ledger as an XLSX workbook.
type Exporter struct {
	ledger Ledger
	logger *slog.Logger
}

// NewExporter creates an exporter.
func NewExporter(ledger Ledger, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{ledger: ledger, logger: logger}
}

// Write renders the workbook to w.
func (e *Exporter) Write(ctx context.Context, w io.Writer, opts Options) error {
	f, err := e.Build(ctx, opts)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// Build assembles the workbook in memory.
func (e *Exporter) Build(ctx context.Context, opts Options) (*excelize.File, error) {
	currencies, err := e.ledger.ListCurrencies(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]model.Currency, len(currencies))
	for _, c := range currencies {
		byID[c.ID] = c
	}

	accounts, err := e.ledger.ListAccounts(ctx, true)
	if err != nil {
		return nil, err
	}
	categories, err := e.ledger.ListCategories(ctx, true)
	if err != nil {
		return nil, err
	}
	transfers, err := e.ledger.ListTransfers(ctx, storage.TransferFilter{Start: opts.Start, End: opts.End})
	if err != nil {
		return nil, err
	}

	endpoints := make(map[string]endpoint, len(accounts)+len(categories))
	for _, a := range accounts {
		endpoints[a.ID] = endpoint{title: a.Title, currency: byID[a.CurrencyID]}
	}

	f := excelize.NewFile()
	ok := false
	defer func() {
		if !ok {
			_ = f.Close()
		}
	}()

	st, err := newStyles(f)
	if err != nil {
		return nil, err
	}

	if err := f.SetSheetName("Sheet1", SheetAccounts); err != nil {
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}
	if err := writeAccounts(f, st, accounts, byID); err != nil {
		return nil, err
	}

	if _, err := f.NewSheet(SheetCategories); err != nil {
		return nil, fmt.Errorf("failed to add sheet: %w", err)
	}
	rows := [][]any{}
	for _, c := range categories {
		cur := byID[c.CurrencyID]
		endpoints[c.ID] = endpoint{title: c.Title, currency: cur}
		rows = append(rows, []any{c.Title, "", cur.Code, direction(c.IsIncome), c.IsArchived})

		subs, err := e.ledger.GetSubcategories(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		for _, s := range subs {
			endpoints[s.ID] = endpoint{title: c.Title + " / " + s.Title, currency: cur}
			rows = append(rows, []any{s.Title, c.Title, cur.Code, direction(c.IsIncome), c.IsArchived})
		}
	}
	if err := writeTable(f, st, SheetCategories,
		[]string{"Title", "Parent", "Currency", "Direction", "Archived"},
		[]float64{28, 28, 10, 12, 10}, rows); err != nil {
		return nil, err
	}

	if _, err := f.NewSheet(SheetTransfers); err != nil {
		return nil, fmt.Errorf("failed to add sheet: %w", err)
	}
	if err := writeTransfers(f, st, transfers, endpoints); err != nil {
		return nil, err
	}

	f.SetActiveSheet(0)
	e.logger.Info("built workbook",
		"accounts", len(accounts),
		"categories", len(categories),
		"transfers", len(transfers))
	ok = true
	return f, nil
}

type styles struct {
	header int
	date   int
}

func newStyles(f *excelize.File) (styles, error) {
	header, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"4F81BD"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return styles{}, fmt.Errorf("failed to create header style: %w", err)
	}
	dateFmt := "yyyy-mm-dd hh:mm"
	date, err := f.NewStyle(&excelize.Style{CustomNumFmt: &dateFmt})
	if err != nil {
		return styles{}, fmt.Errorf("failed to create date style: %w", err)
	}
	return styles{header: header, date: date}, nil
}

func writeAccounts(f *excelize.File, st styles, accounts []model.Account, currencies map[string]model.Currency) error {
	rows := make([][]any, 0, len(accounts))
	for _, a := range accounts {
		cur := currencies[a.CurrencyID]
		rows = append(rows, []any{a.Title, string(a.Type), cur.Code, major(a.Balance, cur), a.IsArchived})
	}
	return writeTable(f, st, SheetAccounts,
		[]string{"Title", "Type", "Currency", "Balance", "Archived"},
		[]float64{28, 10, 10, 14, 10}, rows)
}

func writeTransfers(f *excelize.File, st styles, transfers []model.Transfer, endpoints map[string]endpoint) error {
	rows := make([][]any, 0, len(transfers))
	for _, t := range transfers {
		src, dst := endpoints[t.Source.ID], endpoints[t.Destination.ID]
		memo := ""
		if t.Memo != nil {
			memo = *t.Memo
		}
		rows = append(rows, []any{
			t.Time,
			titleOr(src, t.Source.ID),
			major(t.SourceAmount, src.currency),
			src.currency.Code,
			titleOr(dst, t.Destination.ID),
			major(t.DestinationAmount, dst.currency),
			dst.currency.Code,
			memo,
		})
	}

	if err := writeTable(f, st, SheetTransfers,
		[]string{"Time", "From", "Amount", "Currency", "To", "Received", "Currency", "Memo"},
		[]float64{18, 24, 12, 10, 24, 12, 10, 40}, rows); err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	last := fmt.Sprintf("A%d", len(rows)+1)
	if err := f.SetCellStyle(SheetTransfers, "A2", last, st.date); err != nil {
		return fmt.Errorf("failed to style dates: %w", err)
	}
	return nil
}

// writeTable writes a styled header row followed by rows starting at A2.
func writeTable(f *excelize.File, st styles, sheet string, headers []string, widths []float64, rows [][]any) error {
	for i, h := range headers {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, col+"1", h); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
		if i < len(widths) {
			if err := f.SetColWidth(sheet, col, col, widths[i]); err != nil {
				return fmt.Errorf("failed to size column: %w", err)
			}
		}
	}

	lastCol, err := excelize.ColumnNumberToName(len(headers))
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", lastCol+"1", st.header); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write %s row %d: %w", strings.ToLower(sheet), i+1, err)
		}
	}
	return nil
}

// major converts minor units to a spreadsheet number in major units.
func major(minor int64, cur model.Currency) float64 {
	return decimal.New(minor, -int32(cur.Precision)).InexactFloat64()
}

func titleOr(ep endpoint, id string) string {
	if ep.title != "" {
		return ep.title
	}
	return id
}

func direction(income bool) string {
	if income {
		return "income"
	}
	return "expense"
}
