package memory

import (
	"fmt"
	"maps"
	"time"

	"github.com/Veraticus/pocket-ledger/internal/model"
	"github.com/Veraticus/pocket-ledger/internal/remote"
)

// view mutates the tables in place. Callers snapshot and restore around it.
type view struct {
	tables map[string]map[string]Row
}

func (v *view) applyBatch(ops []remote.Operation) error {
	for i, op := range ops {
		allowed, ok := columns[op.Table]
		if !ok {
			if op.Table == model.TableTransfers {
				return &remote.Error{
					Code:    remote.CodeInsufficientPriv,
					Message: "transfers are only writable through the transfer procedures",
				}
			}
			return &remote.Error{Code: remote.CodeInvalidParameter, Message: fmt.Sprintf("unknown table %q", op.Table)}
		}
		if op.ID == "" {
			return &remote.Error{Code: remote.CodeNotNullViolation, Message: fmt.Sprintf("operation %d has no id", i)}
		}

		rows := v.tables[op.Table]
		switch op.Op {
		case "PUT":
			row := Row{"id": op.ID}
			if err := copyColumns(row, op.Data, allowed); err != nil {
				return err
			}
			if existing, ok := rows[op.ID]; ok && op.Table == model.TableAccounts {
				// Balances of existing accounts move only through PATCH and the
				// transfer procedures.
				row["balance"] = existing["balance"]
			}
			if err := v.checkRow(op.Table, row); err != nil {
				return err
			}
			rows[op.ID] = row
		case "PATCH":
			existing, ok := rows[op.ID]
			if !ok {
				continue
			}
			patched := maps.Clone(existing)
			if err := copyColumns(patched, op.Data, allowed); err != nil {
				return err
			}
			if err := v.checkRow(op.Table, patched); err != nil {
				return err
			}
			rows[op.ID] = patched
		case "DELETE":
			delete(rows, op.ID)
		default:
			return &remote.Error{Code: remote.CodeInvalidParameter, Message: fmt.Sprintf("unknown operation %q", op.Op)}
		}
	}
	return nil
}

func copyColumns(row Row, data map[string]any, allowed []string) error {
	for _, col := range allowed {
		val, ok := data[col]
		if !ok {
			continue
		}
		if col == "balance" || col == "precision" {
			n, err := asInt64(val)
			if err != nil {
				return &remote.Error{Code: "22P02", Message: fmt.Sprintf("invalid integer for %s", col), Details: err.Error()}
			}
			val = n
		}
		row[col] = val
	}
	return nil
}

// checkRow enforces the foreign keys and NOT NULL columns of the schema.
func (v *view) checkRow(table string, row Row) error {
	required := map[string][]string{
		model.TableCurrencies: {"code", "precision"},
		model.TableAccounts:   {"title", "currency_id", "position", "type"},
		model.TableCategories: {"title", "currency_id", "position"},
	}
	for _, col := range required[table] {
		if row[col] == nil {
			return &remote.Error{
				Code:    remote.CodeNotNullViolation,
				Message: fmt.Sprintf("null value in column %q of relation %q", col, table),
			}
		}
	}

	if table == model.TableAccounts || table == model.TableCategories {
		if cur, _ := row["currency_id"].(string); v.tables[model.TableCurrencies][cur] == nil {
			return &remote.Error{
				Code:    remote.CodeForeignKeyViolation,
				Message: fmt.Sprintf("insert or update on table %q violates foreign key constraint", table),
				Details: fmt.Sprintf("Key (currency_id)=(%s) is not present in table \"currencies\".", cur),
			}
		}
	}
	if table == model.TableCategories {
		if parent, ok := row["parent_category_id"].(string); ok && parent != "" && v.tables[model.TableCategories][parent] == nil {
			return &remote.Error{
				Code:    remote.CodeForeignKeyViolation,
				Message: "insert or update on table \"categories\" violates foreign key constraint",
				Details: fmt.Sprintf("Key (parent_category_id)=(%s) is not present in table \"categories\".", parent),
			}
		}
	}
	return nil
}

// endpointIsAccount resolves an id the same way the server does: accounts
// first, then categories.
func (v *view) endpointIsAccount(id string) (bool, error) {
	if _, ok := v.tables[model.TableAccounts][id]; ok {
		return true, nil
	}
	if _, ok := v.tables[model.TableCategories][id]; ok {
		return false, nil
	}
	return false, &remote.Error{
		Code:    remote.CodeForeignKeyViolation,
		Message: fmt.Sprintf("counterparty %s does not exist", id),
	}
}

func (v *view) adjust(id string, delta int64) error {
	isAccount, err := v.endpointIsAccount(id)
	if err != nil || !isAccount {
		return err
	}
	row := v.tables[model.TableAccounts][id]
	balance, err := asInt64(row["balance"])
	if err != nil {
		return &remote.Error{Code: "22P02", Message: "stored balance is not an integer"}
	}
	row["balance"] = balance + delta
	return nil
}

func (v *view) applyTransfer(sourceID, destinationID string, sourceAmount, destinationAmount int64, sign int64) error {
	if err := v.adjust(sourceID, -sign*sourceAmount); err != nil {
		return err
	}
	return v.adjust(destinationID, sign*destinationAmount)
}

func (v *view) createTransfer(p remote.TransferPayload) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if _, exists := v.tables[model.TableTransfers][p.ID]; exists {
		return nil
	}
	if err := v.applyTransfer(p.SourceID, p.DestinationID, p.SourceAmount, p.DestinationAmount, 1); err != nil {
		return err
	}
	v.tables[model.TableTransfers][p.ID] = transferRow(p)
	return nil
}

func (v *view) editTransfer(p remote.TransferPayload) error {
	if err := p.Validate(); err != nil {
		return err
	}
	old, exists := v.tables[model.TableTransfers][p.ID]
	if !exists {
		return v.createTransfer(p)
	}
	if err := v.applyTransfer(old["source_id"].(string), old["destination_id"].(string),
		old["source_amount"].(int64), old["destination_amount"].(int64), -1); err != nil {
		return err
	}
	if err := v.applyTransfer(p.SourceID, p.DestinationID, p.SourceAmount, p.DestinationAmount, 1); err != nil {
		return err
	}
	v.tables[model.TableTransfers][p.ID] = transferRow(p)
	return nil
}

func (v *view) revertTransfer(id string) error {
	if id == "" {
		return &remote.Error{Code: remote.CodeInvalidParameter, Message: "transfer id is required"}
	}
	old, exists := v.tables[model.TableTransfers][id]
	if !exists {
		return nil
	}
	if err := v.applyTransfer(old["source_id"].(string), old["destination_id"].(string),
		old["source_amount"].(int64), old["destination_amount"].(int64), -1); err != nil {
		return err
	}
	delete(v.tables[model.TableTransfers], id)
	return nil
}

func transferRow(p remote.TransferPayload) Row {
	var memo any
	if p.Memo != nil {
		memo = *p.Memo
	}
	return Row{
		"id":                 p.ID,
		"time":               p.Time.UTC().Format(time.RFC3339Nano),
		"source_id":          p.SourceID,
		"source_amount":      p.SourceAmount,
		"destination_id":     p.DestinationID,
		"destination_amount": p.DestinationAmount,
		"memo":               memo,
	}
}
