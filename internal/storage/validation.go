// Package storage provides the local ledger database for pocket.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/Veraticus/pocket-ledger/internal/model"
)

// Validation errors.
var (
	ErrNilContext          = errors.New("context cannot be nil")
	ErrEmptyString         = errors.New("string parameter cannot be empty")
	ErrNotFound            = errors.New("not found")
	ErrInvalidCurrency     = errors.New("invalid currency")
	ErrInvalidAccount      = errors.New("invalid account")
	ErrInvalidCategory     = errors.New("invalid category")
	ErrInvalidTransfer     = model.ErrInvalidTransfer
	ErrUnknownCounterparty = errors.New("unknown counterparty")
	ErrCurrencyMismatch    = errors.New("currency mismatch")
)

// Length limits, in characters, for user text.
const (
	MaxCodeLength  = 16
	MaxTitleLength = 200
	MaxColorLength = 64
	MaxMemoLength  = 2000
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateLength rejects text longer than limit characters.
func validateLength(sentinel error, field, s string, limit int) error {
	if n := utf8.RuneCountInString(s); n > limit {
		return fmt.Errorf("%w: %s is %d characters, limit is %d", sentinel, field, n, limit)
	}
	return nil
}

func validateCurrencyInput(in CurrencyInput) error {
	if strings.TrimSpace(in.Code) == "" {
		return fmt.Errorf("%w: missing code", ErrInvalidCurrency)
	}
	if err := validateLength(ErrInvalidCurrency, "code", in.Code, MaxCodeLength); err != nil {
		return err
	}
	if err := validateLength(ErrInvalidCurrency, "symbol", in.Symbol, MaxCodeLength); err != nil {
		return err
	}
	if in.Precision < 0 || in.Precision > model.MaxPrecision {
		return fmt.Errorf("%w: precision must be between 0 and %d, got %d", ErrInvalidCurrency, model.MaxPrecision, in.Precision)
	}
	return nil
}

func validateAccountInput(in AccountInput) error {
	if strings.TrimSpace(in.Title) == "" {
		return fmt.Errorf("%w: missing title", ErrInvalidAccount)
	}
	if err := validateLabels(ErrInvalidAccount, &in.Title, &in.ColorScheme); err != nil {
		return err
	}
	if in.CurrencyID == "" {
		return fmt.Errorf("%w: missing currency", ErrInvalidAccount)
	}
	if in.Type != "" && !in.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidAccount, in.Type)
	}
	return nil
}

func validateCategoryInput(in CategoryInput) error {
	if strings.TrimSpace(in.Title) == "" {
		return fmt.Errorf("%w: missing title", ErrInvalidCategory)
	}
	if err := validateLabels(ErrInvalidCategory, &in.Title, &in.ColorScheme); err != nil {
		return err
	}
	if in.CurrencyID == "" {
		return fmt.Errorf("%w: missing currency", ErrInvalidCategory)
	}
	return nil
}

// validateLabels checks the title and color scheme of an account or category.
// Nil values are not being changed.
func validateLabels(sentinel error, title, colorScheme *string) error {
	if title != nil {
		if err := validateLength(sentinel, "title", strings.TrimSpace(*title), MaxTitleLength); err != nil {
			return err
		}
	}
	if colorScheme != nil {
		return validateLength(sentinel, "color scheme", *colorScheme, MaxColorLength)
	}
	return nil
}

// validateTransferInput checks what can be checked before the counterparties
// are resolved.
func validateTransferInput(in TransferInput) error {
	if in.SourceID == "" {
		return fmt.Errorf("%w: missing source", ErrInvalidTransfer)
	}
	if in.DestinationID == "" {
		return fmt.Errorf("%w: missing destination", ErrInvalidTransfer)
	}
	if in.SourceID == in.DestinationID {
		return fmt.Errorf("%w: source and destination are the same", ErrInvalidTransfer)
	}
	if in.SourceAmount <= 0 || in.DestinationAmount <= 0 {
		return fmt.Errorf("%w: amounts must be positive", ErrInvalidTransfer)
	}
	if in.Time.IsZero() {
		return fmt.Errorf("%w: missing time", ErrInvalidTransfer)
	}
	if in.Memo != nil {
		return validateLength(ErrInvalidTransfer, "memo", strings.TrimSpace(*in.Memo), MaxMemoLength)
	}
	return nil
}
