package upload

import (
	"errors"
	"fmt"
	"time"

	"github.com/Veraticus/pocket-ledger/internal/journal"
	"github.com/Veraticus/pocket-ledger/internal/model"
	"github.com/Veraticus/pocket-ledger/internal/remote"
)

// ErrMalformedEntry is returned by BuildPlan when a tagged transfer entry
// lacks a column its procedure needs.
var ErrMalformedEntry = errors.New("malformed journal entry")

// CallKind names the remote procedure a plan step invokes.
type CallKind string

// Plan step kinds.
const (
	CallCreateTransfer CallKind = remote.ProcCreateTransfer
	CallEditTransfer   CallKind = remote.ProcEditTransfer
	CallRevertTransfer CallKind = remote.ProcRevertTransfer
)

// TransferCall is one dedicated transfer procedure call.
type TransferCall struct {
	Kind    CallKind
	Payload remote.TransferPayload
	EntryID int64
}

// Plan is the set of remote calls one journal transaction turns into. The
// batch runs first so rows created alongside a transfer exist remotely; the
// transfer calls follow in journal order.
type Plan struct {
	Batch     []remote.Operation
	Transfers []TransferCall
}

// Calls returns the number of remote calls executing the plan makes.
func (p Plan) Calls() int {
	n := len(p.Transfers)
	if len(p.Batch) > 0 {
		n++
	}
	return n
}

// Empty reports whether the plan makes no remote calls.
func (p Plan) Empty() bool {
	return p.Calls() == 0
}

// BuildPlan routes each entry of a journal transaction. Tagged transfer PUTs
// and transfer DELETEs use the dedicated procedures; everything else is
// bundled into one batch.
func BuildPlan(tx *journal.Transaction) (Plan, error) {
	var plan Plan
	for _, e := range tx.Entries {
		call, dedicated, err := routeEntry(e)
		if err != nil {
			return Plan{}, err
		}
		if dedicated {
			plan.Transfers = append(plan.Transfers, call)
			continue
		}

		op := remote.Operation{Table: e.Table, ID: e.RowID, Op: string(e.Op)}
		if e.Op != journal.OpDelete {
			op.Data = e.Data.Map()
		}
		plan.Batch = append(plan.Batch, op)
	}
	return plan, nil
}

func routeEntry(e journal.Entry) (TransferCall, bool, error) {
	if e.Table != model.TableTransfers {
		return TransferCall{}, false, nil
	}

	switch {
	case e.Op == journal.OpPut && e.Tag == journal.TagTransferCreate:
		p, err := transferPayload(e)
		return TransferCall{Kind: CallCreateTransfer, Payload: p, EntryID: e.ID}, true, err
	case e.Op == journal.OpPut && e.Tag == journal.TagTransferEdit:
		p, err := transferPayload(e)
		return TransferCall{Kind: CallEditTransfer, Payload: p, EntryID: e.ID}, true, err
	case e.Op == journal.OpDelete:
		return TransferCall{
			Kind:    CallRevertTransfer,
			Payload: remote.TransferPayload{ID: e.RowID},
			EntryID: e.ID,
		}, true, nil
	}
	return TransferCall{}, false, nil
}

func transferPayload(e journal.Entry) (remote.TransferPayload, error) {
	malformed := func(format string, args ...any) error {
		return fmt.Errorf("%w: entry %d (%s %s): %s", ErrMalformedEntry, e.ID, e.Table, e.RowID, fmt.Sprintf(format, args...))
	}

	p := remote.TransferPayload{ID: e.RowID}

	var ok bool
	if p.SourceID, ok = e.Data.Text("source_id"); !ok || p.SourceID == "" {
		return p, malformed("missing source_id")
	}
	if p.DestinationID, ok = e.Data.Text("destination_id"); !ok || p.DestinationID == "" {
		return p, malformed("missing destination_id")
	}

	var err error
	if p.SourceAmount, err = e.Data.Int64("source_amount"); err != nil {
		return p, malformed("%v", err)
	}
	if p.DestinationAmount, err = e.Data.Int64("destination_amount"); err != nil {
		return p, malformed("%v", err)
	}

	ts, ok := e.Data.Text("time")
	if !ok {
		return p, malformed("missing time")
	}
	if p.Time, err = time.Parse(time.RFC3339Nano, ts); err != nil {
		return p, malformed("invalid time %q", ts)
	}

	if memo, ok := e.Data.Text("memo"); ok {
		p.Memo = &memo
	}
	return p, nil
}
