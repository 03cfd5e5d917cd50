// Package ofx reads OFX/QFX bank statements and imports their lines as
// ledger transfers.
package ofx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/aclindsa/ofxgo"
	"github.com/shopspring/decimal"

	"github.com/Veraticus/pocket-ledger/internal/model"
)

// ErrNoStatements is returned when a file holds no bank or card statements.
var ErrNoStatements = errors.New("no statements in OFX file")

var (
	severityPattern = regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)</SEVERITY>`)
	openTagPattern  = regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)
)

// Line is one posted statement entry. Amount is signed: negative lines left
// the account.
type Line struct {
	Posted time.Time
	Amount decimal.Decimal
	FITID  string
	Payee  string
	Memo   string
	Type   string
}

// Statement is the list of lines for one bank or card account.
type Statement struct {
	AccountNumber string
	Currency      string
	Lines         []Line
}

// Parser reads OFX/QFX files.
type Parser struct {
	logger *slog.Logger
}

// NewParser creates a new OFX parser.
func NewParser(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{logger: logger}
}

// preprocess fixes common formatting issues in exported OFX files.
func preprocess(content string) string {
	content = strings.TrimLeft(content, " \t\r\n")
	content = severityPattern.ReplaceAllStringFunc(content, strings.ToUpper)
	// SGML files sometimes drop the closing bracket of a bare opening tag.
	return openTagPattern.ReplaceAllString(content, "$1>")
}

// Parse reads every bank and credit card statement in the file.
func (p *Parser) Parse(ctx context.Context, reader io.Reader) ([]Statement, error) {
	if ctx == nil {
		return nil, errors.New("context cannot be nil")
	}
	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read OFX file: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resp, err := ofxgo.ParseResponse(strings.NewReader(preprocess(string(content))))
	if err != nil {
		return nil, fmt.Errorf("failed to parse OFX file: %w", err)
	}

	var statements []Statement
	for _, msg := range resp.Bank {
		if stmt, ok := msg.(*ofxgo.StatementResponse); ok {
			statements = append(statements, convertStatement(
				string(stmt.BankAcctFrom.AcctID), stmt.CurDef.String(), stmt.BankTranList))
		}
	}
	for _, msg := range resp.CreditCard {
		if stmt, ok := msg.(*ofxgo.CCStatementResponse); ok {
			statements = append(statements, convertStatement(
				string(stmt.CCAcctFrom.AcctID), stmt.CurDef.String(), stmt.BankTranList))
		}
	}
	if len(statements) == 0 {
		return nil, ErrNoStatements
	}

	total := 0
	for _, s := range statements {
		total += len(s.Lines)
	}
	p.logger.Info("parsed OFX file",
		"statements", len(statements),
		"lines", total)
	return statements, nil
}

func convertStatement(account, currency string, list *ofxgo.TransactionList) Statement {
	stmt := Statement{AccountNumber: account, Currency: currency}
	if list == nil {
		return stmt
	}
	for _, tx := range list.Transactions {
		stmt.Lines = append(stmt.Lines, Line{
			FITID:  string(tx.FiTID),
			Posted: tx.DtPosted.Time.UTC(),
			Amount: decimal.NewFromBigRat(&tx.TrnAmt.Rat, model.MaxPrecision),
			Payee:  payeeName(tx),
			Memo:   strings.TrimSpace(string(tx.Memo)),
			Type:   tx.TrnType.String(),
		})
	}
	return stmt
}

var payeePrefixes = []string{
	"POS PURCHASE ",
	"PURCHASE AUTHORIZED ON ",
	"DEBIT CARD PURCHASE ",
	"ACH DEBIT ",
	"CHECK CARD ",
	"VISA PURCHASE ",
	"MC PURCHASE ",
	"DEBIT PURCHASE ",
}

// payeeName prefers PAYEE, then NAME, then MEMO when NAME is generic, and
// strips card-terminal prefixes and leading MM/DD dates.
func payeeName(tx ofxgo.Transaction) string {
	if tx.Payee != nil && tx.Payee.Name != "" {
		return strings.TrimSpace(string(tx.Payee.Name))
	}

	name := strings.TrimSpace(string(tx.Name))
	if tx.Memo != "" && isGeneric(name) {
		name = strings.TrimSpace(string(tx.Memo))
	}

	upper := strings.ToUpper(name)
	for _, prefix := range payeePrefixes {
		if strings.HasPrefix(upper, prefix) {
			name = name[len(prefix):]
			break
		}
	}

	if len(name) > 5 && name[2] == '/' && name[5] == ' ' {
		name = strings.TrimSpace(name[6:])
	}
	return name
}

func isGeneric(name string) bool {
	switch strings.ToUpper(name) {
	case "DEBIT", "CREDIT", "PURCHASE", "PAYMENT", "POS TRANSACTION", "CARD PURCHASE":
		return true
	}
	return false
}
