package model

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidTransfer is returned when a transfer fails validation.
var ErrInvalidTransfer = errors.New("invalid transfer")

// Transfer moves money from a source counterparty to a destination
// counterparty. The two sides carry their own amounts because they may be in
// different currencies.
type Transfer struct {
	Time              time.Time
	Memo              *string
	Source            Counterparty
	Destination       Counterparty
	ID                string
	SourceAmount      int64
	DestinationAmount int64
}

// Validate checks the invariants every persisted transfer must hold.
func (t Transfer) Validate() error {
	if t.Source.IsZero() {
		return fmt.Errorf("%w: missing source", ErrInvalidTransfer)
	}
	if t.Destination.IsZero() {
		return fmt.Errorf("%w: missing destination", ErrInvalidTransfer)
	}
	for _, side := range []Counterparty{t.Source, t.Destination} {
		if _, err := side.IsAccount(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidTransfer, err)
		}
	}
	if t.Source.ID == t.Destination.ID {
		return fmt.Errorf("%w: source and destination are the same", ErrInvalidTransfer)
	}
	if t.SourceAmount <= 0 {
		return fmt.Errorf("%w: source amount must be positive, got %d", ErrInvalidTransfer, t.SourceAmount)
	}
	if t.DestinationAmount <= 0 {
		return fmt.Errorf("%w: destination amount must be positive, got %d", ErrInvalidTransfer, t.DestinationAmount)
	}
	if t.Time.IsZero() {
		return fmt.Errorf("%w: missing time", ErrInvalidTransfer)
	}
	return nil
}

// BalanceDeltas returns the change the transfer applies to each account it
// touches. Category endpoints carry no balance and are left out.
func (t Transfer) BalanceDeltas() (map[string]int64, error) {
	deltas := make(map[string]int64, 2)
	sides := []struct {
		cp    Counterparty
		delta int64
	}{
		{t.Source, -t.SourceAmount},
		{t.Destination, t.DestinationAmount},
	}
	for _, side := range sides {
		switch side.cp.Kind {
		case CounterpartyAccount:
			deltas[side.cp.ID] += side.delta
		case CounterpartyCategory:
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownCounterpartyKind, side.cp.Kind)
		}
	}
	return deltas, nil
}

// Reversed returns the deltas that undo BalanceDeltas.
func (t Transfer) Reversed() (map[string]int64, error) {
	deltas, err := t.BalanceDeltas()
	if err != nil {
		return nil, err
	}
	for id, d := range deltas {
		deltas[id] = -d
	}
	return deltas, nil
}
