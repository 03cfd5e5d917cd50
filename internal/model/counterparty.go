package model

import (
	"errors"
	"fmt"
)

// ErrUnknownCounterpartyKind is returned for a counterparty whose kind is
// neither account nor category.
var ErrUnknownCounterpartyKind = errors.New("unknown counterparty kind")

// CounterpartyKind tags which table a counterparty id points into.
type CounterpartyKind string

const (
	// CounterpartyAccount refers to a row in accounts.
	CounterpartyAccount CounterpartyKind = "account"
	// CounterpartyCategory refers to a row in categories.
	CounterpartyCategory CounterpartyKind = "category"
)

// Counterparty is one end of a transfer: either an account or a category.
type Counterparty struct {
	Kind CounterpartyKind
	ID   string
}

// AccountRef returns a counterparty pointing at an account.
func AccountRef(id string) Counterparty {
	return Counterparty{Kind: CounterpartyAccount, ID: id}
}

// CategoryRef returns a counterparty pointing at a category.
func CategoryRef(id string) Counterparty {
	return Counterparty{Kind: CounterpartyCategory, ID: id}
}

// IsZero reports whether the counterparty is unset.
func (c Counterparty) IsZero() bool {
	return c.ID == ""
}

// IsAccount reports whether the counterparty is an account.
func (c Counterparty) IsAccount() (bool, error) {
	switch c.Kind {
	case CounterpartyAccount:
		return true, nil
	case CounterpartyCategory:
		return false, nil
	default:
		return false, fmt.Errorf("%w: %q", ErrUnknownCounterpartyKind, c.Kind)
	}
}

func (c Counterparty) String() string {
	return fmt.Sprintf("%s:%s", c.Kind, c.ID)
}
