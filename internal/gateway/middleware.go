package gateway

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Veraticus/pocket-ledger/internal/remote"
	"github.com/Veraticus/pocket-ledger/internal/session"
)

// CodeInvalidAuthorization is the SQLSTATE reported for missing or rejected
// credentials. It is not fatal, so the client keeps the journal and retries
// after a new login.
const CodeInvalidAuthorization = "28000"

const userIDKey = "user_id"

// auth verifies the bearer token and stores the user id on the context.
func (s *Server) auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			abort(c, http.StatusUnauthorized, &remote.Error{
				Code:    CodeInvalidAuthorization,
				Message: "missing bearer token",
			})
			return
		}

		sess, err := session.Verify(s.secret, strings.TrimSpace(token), s.now())
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, session.ErrExpired) {
				msg = "token expired"
			}
			abort(c, http.StatusUnauthorized, &remote.Error{Code: CodeInvalidAuthorization, Message: msg})
			return
		}

		c.Set(userIDKey, sess.UserID)
		c.Next()
	}
}

// UserID returns the authenticated user of the request.
func UserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}

func abort(c *gin.Context, status int, e *remote.Error) {
	c.AbortWithStatusJSON(status, e)
}

// statusFor maps a SQLSTATE to the HTTP status of the error response.
func statusFor(code string) int {
	switch {
	case code == remote.CodeInsufficientPriv:
		return http.StatusForbidden
	case strings.HasPrefix(code, "22"):
		return http.StatusBadRequest
	case strings.HasPrefix(code, "23"):
		return http.StatusConflict
	case strings.HasPrefix(code, "28"):
		return http.StatusUnauthorized
	case strings.HasPrefix(code, "54"):
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}
