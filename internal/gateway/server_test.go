package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/pocket-ledger/internal/model"
	"github.com/Veraticus/pocket-ledger/internal/remote"
	"github.com/Veraticus/pocket-ledger/internal/remote/memory"
	"github.com/Veraticus/pocket-ledger/internal/remote/rest"
	"github.com/Veraticus/pocket-ledger/internal/session"
	"github.com/Veraticus/pocket-ledger/internal/upload"
)

var secret = []byte("test-gateway-secret")

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T) (*Server, *memory.Store) {
	t.Helper()
	store := memory.New()
	srv, err := New(store, secret, nil)
	require.NoError(t, err)
	return srv, store
}

func bearer(t *testing.T) string {
	t.Helper()
	sess, err := session.Issue(secret, "user-1", time.Hour, time.Now())
	require.NoError(t, err)
	return "Bearer " + sess.AccessToken
}

func post(t *testing.T, h http.Handler, path, auth string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var raw []byte
	switch b := body.(type) {
	case string:
		raw = []byte(b)
	default:
		var err error
		raw, err = json.Marshal(b)
		require.NoError(t, err)
	}

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) remote.Error {
	t.Helper()
	var e remote.Error
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &e))
	return e
}

func seedOps() []remote.Operation {
	return []remote.Operation{
		{Table: model.TableCurrencies, ID: "eur", Op: "PUT", Data: map[string]any{"code": "EUR", "symbol": "€", "precision": 2}},
		{Table: model.TableAccounts, ID: "cash", Op: "PUT", Data: map[string]any{
			"title": "Cash", "currency_id": "eur", "position": "1", "type": "regular", "balance": 10000,
		}},
		{Table: model.TableCategories, ID: "food", Op: "PUT", Data: map[string]any{
			"title": "Food", "currency_id": "eur", "position": "1",
		}},
	}
}

func TestNew(t *testing.T) {
	_, err := New(memory.New(), nil, nil)
	assert.ErrorIs(t, err, ErrNoSecret)

	_, err = New(nil, secret, nil)
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestAuth(t *testing.T) {
	srv, store := newTestServer(t)
	h := srv.Handler()

	expired, err := session.Issue(secret, "user-1", time.Minute, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	forged, err := session.Issue([]byte("other-secret"), "user-1", time.Hour, time.Now())
	require.NoError(t, err)

	tests := []struct {
		name    string
		auth    string
		message string
	}{
		{"missing header", "", "missing bearer token"},
		{"wrong scheme", "Basic dXNlcjpwYXNz", "missing bearer token"},
		{"garbage token", "Bearer not.a.jwt", "invalid token"},
		{"wrong secret", "Bearer " + forged.AccessToken, "invalid token"},
		{"expired", "Bearer " + expired.AccessToken, "token expired"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := post(t, h, "/rpc/apply_batch", tt.auth, seedOps())
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			e := decodeError(t, w)
			assert.Equal(t, CodeInvalidAuthorization, e.Code)
			assert.Equal(t, tt.message, e.Message)
		})
	}
	assert.Empty(t, store.Calls())
}

func TestApplyBatch(t *testing.T) {
	srv, store := newTestServer(t)
	w := post(t, srv.Handler(), "/rpc/apply_batch", bearer(t), seedOps())

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	balance, ok := store.Balance("cash")
	require.True(t, ok)
	assert.Equal(t, int64(10000), balance)
}

func TestTransferProcedures(t *testing.T) {
	srv, store := newTestServer(t)
	h := srv.Handler()
	auth := bearer(t)
	require.Equal(t, http.StatusOK, post(t, h, "/rpc/apply_batch", auth, seedOps()).Code)

	payload := remote.TransferPayload{
		ID: "t1", SourceID: "cash", DestinationID: "food",
		SourceAmount: 1500, DestinationAmount: 1500,
		Time: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	require.Equal(t, http.StatusOK, post(t, h, "/rpc/create_transfer", auth, payload).Code)
	require.Equal(t, http.StatusOK, post(t, h, "/rpc/create_transfer", auth, payload).Code)
	balance, _ := store.Balance("cash")
	assert.Equal(t, int64(8500), balance)

	payload.SourceAmount, payload.DestinationAmount = 500, 500
	require.Equal(t, http.StatusOK, post(t, h, "/rpc/edit_transfer", auth, payload).Code)
	balance, _ = store.Balance("cash")
	assert.Equal(t, int64(9500), balance)

	require.Equal(t, http.StatusOK, post(t, h, "/rpc/revert_transfer", auth, remote.RevertRequest{ID: "t1"}).Code)
	require.Equal(t, http.StatusOK, post(t, h, "/rpc/revert_transfer", auth, remote.RevertRequest{ID: "t1"}).Code)
	balance, _ = store.Balance("cash")
	assert.Equal(t, int64(10000), balance)
}

func TestErrorStatus(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()
	auth := bearer(t)

	tests := []struct {
		name   string
		path   string
		body   any
		status int
		code   string
	}{
		{"malformed body", "/rpc/apply_batch", `{"table":`, http.StatusBadRequest, remote.CodeInvalidParameter},
		{"unknown table", "/rpc/apply_batch", []remote.Operation{{Table: "users", ID: "u", Op: "PUT"}}, http.StatusBadRequest, remote.CodeInvalidParameter},
		{"transfers through batch", "/rpc/apply_batch", []remote.Operation{{Table: model.TableTransfers, ID: "t", Op: "DELETE"}}, http.StatusForbidden, remote.CodeInsufficientPriv},
		{"missing currency", "/rpc/apply_batch", []remote.Operation{{Table: model.TableAccounts, ID: "a", Op: "PUT", Data: map[string]any{
			"title": "A", "currency_id": "nope", "position": "1", "type": "regular",
		}}}, http.StatusConflict, remote.CodeForeignKeyViolation},
		{"unknown endpoint", "/rpc/create_transfer", remote.TransferPayload{
			ID: "t", SourceID: "x", DestinationID: "y", SourceAmount: 1, DestinationAmount: 1, Time: time.Now(),
		}, http.StatusConflict, remote.CodeForeignKeyViolation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := post(t, h, tt.path, auth, tt.body)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, decodeError(t, w).Code)
		})
	}
}

func TestOversizedBody(t *testing.T) {
	srv, store := newTestServer(t)
	require.NoError(t, store.ApplyBatch(context.Background(), seedOps()))
	memo := strings.Repeat("m", maxBodyBytes+1)
	big := remote.TransferPayload{
		ID: "t1", SourceID: "cash", DestinationID: "food",
		SourceAmount: 100, DestinationAmount: 100, Time: time.Now(), Memo: &memo,
	}

	w := post(t, srv.Handler(), "/rpc/create_transfer", bearer(t), big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	e := decodeError(t, w)
	assert.Equal(t, remote.CodeProgramLimitExceeded, e.Code)
	assert.False(t, upload.IsFatal(e.Code), "a size cap is not bad data")
	assert.Zero(t, store.Count(model.TableTransfers))

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	sess, err := session.Issue(secret, "user-1", time.Hour, time.Now())
	require.NoError(t, err)
	err = rest.New(ts.URL, sess).CreateTransfer(context.Background(), big)
	require.Error(t, err)
	assert.False(t, upload.IsFatalError(err))
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor("22P02"))
	assert.Equal(t, http.StatusConflict, statusFor("23505"))
	assert.Equal(t, http.StatusForbidden, statusFor("42501"))
	assert.Equal(t, http.StatusUnauthorized, statusFor("28000"))
	assert.Equal(t, http.StatusRequestEntityTooLarge, statusFor("54000"))
	assert.Equal(t, http.StatusInternalServerError, statusFor("08006"))
	assert.Equal(t, http.StatusInternalServerError, statusFor("42P01"))
}

func TestRestClientRoundTrip(t *testing.T) {
	srv, store := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	sess, err := session.Issue(secret, "user-1", time.Hour, time.Now())
	require.NoError(t, err)
	client := rest.New(ts.URL, sess)
	ctx := context.Background()

	require.NoError(t, client.ApplyBatch(ctx, seedOps()))
	require.NoError(t, client.CreateTransfer(ctx, remote.TransferPayload{
		ID: "t1", SourceID: "cash", DestinationID: "food",
		SourceAmount: 2500, DestinationAmount: 2500, Time: time.Now(),
	}))
	balance, _ := store.Balance("cash")
	assert.Equal(t, int64(7500), balance)

	err = client.ApplyBatch(ctx, []remote.Operation{{Table: model.TableTransfers, ID: "t1", Op: "DELETE"}})
	assert.Equal(t, remote.CodeInsufficientPriv, remote.CodeOf(err))

	unauthenticated := rest.New(ts.URL, session.Session{AccessToken: "bogus"})
	err = unauthenticated.RevertTransfer(ctx, "t1")
	assert.Equal(t, CodeInvalidAuthorization, remote.CodeOf(err))
}

func TestRun_ShutsDownOnCancel(t *testing.T) {
	srv, _ := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("gateway did not shut down")
	}
}
