package gateway

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Veraticus/pocket-ledger/internal/remote"
)

const maxBodyBytes = 4 << 20

// Response is the body of a successful call.
type Response struct {
	Status string `json:"status"`
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   s.now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) applyBatch(c *gin.Context) {
	var ops []remote.Operation
	if !s.bind(c, &ops) {
		return
	}
	s.respond(c, remote.ProcApplyBatch, s.backend.ApplyBatch(c.Request.Context(), ops))
}

func (s *Server) createTransfer(c *gin.Context) {
	var p remote.TransferPayload
	if !s.bind(c, &p) {
		return
	}
	s.respond(c, remote.ProcCreateTransfer, s.backend.CreateTransfer(c.Request.Context(), p))
}

func (s *Server) editTransfer(c *gin.Context) {
	var p remote.TransferPayload
	if !s.bind(c, &p) {
		return
	}
	s.respond(c, remote.ProcEditTransfer, s.backend.EditTransfer(c.Request.Context(), p))
}

func (s *Server) revertTransfer(c *gin.Context) {
	var req remote.RevertRequest
	if !s.bind(c, &req) {
		return
	}
	s.respond(c, remote.ProcRevertTransfer, s.backend.RevertTransfer(c.Request.Context(), req.ID))
}

// bind decodes the JSON body keeping numbers exact.
func (s *Server) bind(c *gin.Context, v any) bool {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		abort(c, http.StatusRequestEntityTooLarge, &remote.Error{
			Code:    remote.CodeProgramLimitExceeded,
			Message: fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit),
		})
		return false
	case err != nil:
		abort(c, http.StatusBadRequest, &remote.Error{Code: remote.CodeInvalidParameter, Message: "unreadable request body"})
		return false
	}
	if err := remote.DecodeJSON(body, v); err != nil {
		var re *remote.Error
		errors.As(err, &re)
		abort(c, statusFor(re.Code), re)
		return false
	}
	return true
}

func (s *Server) respond(c *gin.Context, proc string, err error) {
	if err == nil {
		c.JSON(http.StatusOK, Response{Status: "ok"})
		return
	}

	var re *remote.Error
	if !errors.As(err, &re) {
		s.logger.Error("procedure failed", "proc", proc, "user", UserID(c), "error", err)
		abort(c, http.StatusInternalServerError, &remote.Error{Code: "XX000", Message: "internal error"})
		return
	}

	s.logger.Warn("procedure rejected", "proc", proc, "user", UserID(c), "code", re.Code, "error", re.Message)
	abort(c, statusFor(re.Code), re)
}
