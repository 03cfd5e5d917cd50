// Package remote defines the contract between the upload connector and the
// remote relational store.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Remote procedure names. They are also the RPC paths of the gateway.
const (
	ProcApplyBatch     = "apply_batch"
	ProcCreateTransfer = "create_transfer"
	ProcEditTransfer   = "edit_transfer"
	ProcRevertTransfer = "revert_transfer"
)

// Operation is one row mutation inside an apply_batch call.
type Operation struct {
	Data  map[string]any `json:"data,omitempty"`
	Table string         `json:"table"`
	ID    string         `json:"id"`
	Op    string         `json:"op"`
}

// TransferPayload is the argument of create_transfer and edit_transfer.
type TransferPayload struct {
	Time              time.Time `json:"time"`
	Memo              *string   `json:"memo"`
	ID                string    `json:"id"`
	SourceID          string    `json:"source_id"`
	DestinationID     string    `json:"destination_id"`
	SourceAmount      int64     `json:"source_amount"`
	DestinationAmount int64     `json:"destination_amount"`
}

// Validate checks the payload invariants the server procedures enforce.
func (p TransferPayload) Validate() error {
	switch {
	case p.ID == "":
		return &Error{Code: CodeInvalidParameter, Message: "transfer id is required"}
	case p.SourceID == "" || p.DestinationID == "":
		return &Error{Code: CodeNotNullViolation, Message: "transfer endpoints are required"}
	case p.SourceID == p.DestinationID:
		return &Error{Code: CodeCheckViolation, Message: "source and destination must differ"}
	case p.SourceAmount <= 0 || p.DestinationAmount <= 0:
		return &Error{Code: CodeCheckViolation, Message: "transfer amounts must be positive"}
	case p.Time.IsZero():
		return &Error{Code: CodeNotNullViolation, Message: "transfer time is required"}
	}
	return nil
}

// RevertRequest is the argument of revert_transfer.
type RevertRequest struct {
	ID string `json:"id"`
}

// Backend is the set of remote calls the connector makes. Every call is
// atomic on the server.
type Backend interface {
	ApplyBatch(ctx context.Context, ops []Operation) error
	CreateTransfer(ctx context.Context, p TransferPayload) error
	EditTransfer(ctx context.Context, p TransferPayload) error
	RevertTransfer(ctx context.Context, id string) error
}

// Transactional is implemented by backends that can run several calls in one
// remote transaction.
type Transactional interface {
	InTx(ctx context.Context, fn func(Backend) error) error
}

// SQLSTATE codes produced by the backends themselves.
const (
	CodeInvalidParameter     = "22023"
	CodeNotNullViolation     = "23502"
	CodeForeignKeyViolation  = "23503"
	CodeUniqueViolation      = "23505"
	CodeCheckViolation       = "23514"
	CodeInsufficientPriv     = "42501"
	CodeProgramLimitExceeded = "54000"
	CodeConnectionFailure    = "08006"
)

// Error is a rejection reported by the remote store. Code is a SQLSTATE.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Hint    string `json:"hint,omitempty"`
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("remote error %s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("remote error %s: %s", e.Code, e.Message)
}

// CodeOf returns the SQLSTATE carried by err, or "" when err is not a remote
// rejection.
func CodeOf(err error) string {
	var re *Error
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}

// DecodeJSON decodes an RPC body keeping numbers as json.Number so int64
// amounts survive.
func DecodeJSON(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return &Error{Code: CodeInvalidParameter, Message: "malformed request body", Details: err.Error()}
	}
	return nil
}
