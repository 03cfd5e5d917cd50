package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/Veraticus/pocket-ledger/internal/common"
	"github.com/Veraticus/pocket-ledger/internal/gateway"
	"github.com/Veraticus/pocket-ledger/internal/model"
	"github.com/Veraticus/pocket-ledger/internal/remote/memory"
	"github.com/Veraticus/pocket-ledger/internal/storage"
)

const testSecret = "cli-test-secret"

// harness runs pocket commands against a ledger in a temp dir.
type harness struct {
	t      *testing.T
	dbPath string
	stdin  string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	viper.Reset()
	return &harness{t: t, dbPath: filepath.Join(dir, "pocket.db")}
}

func (h *harness) run(args ...string) (string, error) {
	h.t.Helper()
	viper.Reset()

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(h.stdin))
	root.SetArgs(append([]string{"--db", h.dbPath, "--log-level", "error"}, args...))

	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func (h *harness) mustRun(args ...string) string {
	h.t.Helper()
	out, err := h.run(args...)
	require.NoError(h.t, err, "pocket %s\n%s", strings.Join(args, " "), out)
	return out
}

// store opens the ledger directly for assertions.
func (h *harness) store() *storage.SQLiteStorage {
	h.t.Helper()
	store, err := storage.NewSQLiteStorage(h.dbPath)
	require.NoError(h.t, err)
	h.t.Cleanup(func() { _ = store.Close() })
	return store
}

func (h *harness) account(title string) *model.Account {
	h.t.Helper()
	accounts, err := h.store().ListAccounts(context.Background(), true)
	require.NoError(h.t, err)
	for i := range accounts {
		if accounts[i].Title == title {
			return &accounts[i]
		}
	}
	h.t.Fatalf("no account %q", title)
	return nil
}

// seed creates EUR, a Wallet with €100.00, and Food/Bakery.
func (h *harness) seed() {
	h.t.Helper()
	h.mustRun("currency", "add", "EUR", "--symbol", "€")
	h.mustRun("account", "add", "Wallet", "-c", "EUR", "--balance", "100")
	h.mustRun("category", "add", "Food", "-c", "EUR")
	h.mustRun("subcategory", "add", "Food", "Bakery")
}

func TestRootCmd_CommandTree(t *testing.T) {
	root := newRootCmd()

	for _, path := range []string{
		"migrate",
		"currency add", "currency list",
		"account add", "account list", "account rename", "account archive",
		"account unarchive", "account set-balance", "account move",
		"category add", "category list", "category archive",
		"subcategory add",
		"transfer add", "transfer edit", "transfer revert", "transfer list",
		"journal status", "journal prune", "journal dead-letters", "journal requeue", "journal purge",
		"sync", "login", "logout", "remote migrate", "serve",
		"import ofx", "export xlsx", "version",
	} {
		t.Run(path, func(t *testing.T) {
			cmd, rest, err := root.Find(strings.Fields(path))
			require.NoError(t, err)
			assert.Empty(t, rest)
			assert.Equal(t, strings.Fields(path)[len(strings.Fields(path))-1], cmd.Name())
		})
	}

	for _, flag := range []string{"config", "db", "log-level", "log-format"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(flag), flag)
	}
}

func TestVersion(t *testing.T) {
	h := newHarness(t)
	out := h.mustRun("version")
	assert.Contains(t, out, "pocket dev")
}

func TestMigrate_Status(t *testing.T) {
	h := newHarness(t)
	out := h.mustRun("migrate")
	assert.Contains(t, out, "Database at version")

	out = h.mustRun("migrate", "--status")
	assert.Contains(t, out, "Current version: "+strconv.Itoa(storage.LatestSchemaVersion()))
}

func TestInvalidLogLevel(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("--log-level", "loud", "version")
	assert.ErrorIs(t, err, common.ErrInvalidConfig)
}

func TestLedgerCommands(t *testing.T) {
	h := newHarness(t)
	h.seed()

	out := h.mustRun("currency", "list")
	assert.Contains(t, out, "EUR")

	h.mustRun("transfer", "add", "Wallet", "Food/Bakery", "12.50", "-m", "croissants", "--time", "2024-03-01")
	assert.Equal(t, int64(8750), h.account("Wallet").Balance)

	out = h.mustRun("account", "list")
	assert.Contains(t, out, "Wallet")
	assert.Contains(t, out, "€87.50")

	out = h.mustRun("category", "list")
	assert.Contains(t, out, "Food")
	assert.Contains(t, out, "Bakery")

	out = h.mustRun("transfer", "list")
	assert.Contains(t, out, "Food/Bakery")
	assert.Contains(t, out, "croissants")

	h.mustRun("account", "rename", "wallet", "Purse")
	h.mustRun("account", "set-balance", "Purse", "--", "-5.25")
	assert.Equal(t, int64(-525), h.account("Purse").Balance)

	h.mustRun("account", "archive", "Purse")
	out = h.mustRun("account", "list")
	assert.NotContains(t, out, "Purse")
	out = h.mustRun("account", "list", "--all")
	assert.Contains(t, out, "Purse")
	h.mustRun("account", "unarchive", "Purse")
	assert.False(t, h.account("Purse").IsArchived)

	out = h.mustRun("journal", "status")
	assert.Contains(t, out, "pending")
}

func TestTransferEditAndRevert(t *testing.T) {
	h := newHarness(t)
	h.seed()
	h.mustRun("account", "add", "Savings", "-c", "EUR")
	h.mustRun("transfer", "add", "Wallet", "Savings", "30")

	transfers, err := h.store().ListTransfers(context.Background(), storage.TransferFilter{})
	require.NoError(t, err)
	require.Len(t, transfers, 1)
	id := transfers[0].ID

	h.mustRun("transfer", "edit", id, "--amount", "40", "-m", "rainy day")
	assert.Equal(t, int64(6000), h.account("Wallet").Balance)
	assert.Equal(t, int64(4000), h.account("Savings").Balance)

	h.mustRun("transfer", "edit", id, "--to", "Food")
	assert.Equal(t, int64(0), h.account("Savings").Balance)
	assert.Equal(t, int64(6000), h.account("Wallet").Balance)

	h.mustRun("transfer", "revert", id)
	assert.Equal(t, int64(10000), h.account("Wallet").Balance)
}

func TestTransferAdd_Errors(t *testing.T) {
	h := newHarness(t)
	h.seed()
	h.mustRun("currency", "add", "USD", "--symbol", "$")
	h.mustRun("account", "add", "Card", "-c", "USD")

	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "unknown counterparty", args: []string{"Wallet", "Nowhere", "1"}, want: "no account or category"},
		{name: "bad amount", args: []string{"Wallet", "Food", "1.234"}, want: "invalid EUR amount"},
		{name: "cross currency without to-amount", args: []string{"Wallet", "Card", "10"}, want: "--to-amount"},
		{name: "bad time", args: []string{"Wallet", "Food", "1", "--time", "yesterday"}, want: "invalid time"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.run(append([]string{"transfer", "add"}, tt.args...)...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	h.mustRun("transfer", "add", "Wallet", "Card", "10", "--to-amount", "10.80")
	assert.Equal(t, int64(1080), h.account("Card").Balance)
}

func TestJournalCommands(t *testing.T) {
	h := newHarness(t)
	h.seed()

	out := h.mustRun("journal", "status", "--verbose")
	assert.Contains(t, out, "4 pending")
	assert.Contains(t, out, "PUT currencies")

	out = h.mustRun("journal", "prune")
	assert.Contains(t, out, "Pruned 0")

	out = h.mustRun("journal", "dead-letters")
	assert.Contains(t, out, "No rejected transactions")

	h.stdin = "n\n"
	out = h.mustRun("journal", "purge")
	assert.Contains(t, out, "Nothing deleted")

	h.stdin = ""
	out = h.mustRun("journal", "purge", "--yes", "--older-than", "24h")
	assert.Contains(t, out, "Purged 0 dead letters")

	_, err := h.run("journal", "requeue", "abc")
	assert.Error(t, err)
}

func TestLogin(t *testing.T) {
	h := newHarness(t)

	_, err := h.run("login")
	assert.ErrorContains(t, err, "pass --token or --user")

	_, err = h.run("login", "--user", "alice")
	assert.ErrorIs(t, err, common.ErrMissingConfig)

	_, err = h.run("login", "--token", "garbage")
	assert.Error(t, err)

	t.Setenv("POCKET_GATEWAY_JWT_SECRET", testSecret)
	out := h.mustRun("login", "--user", "alice")
	assert.Contains(t, out, "Logged in as alice")

	sess, err := h.store().LoadSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "alice", sess.UserID)

	out = h.mustRun("logout")
	assert.Contains(t, out, "Logged out")
	out = h.mustRun("logout")
	assert.Contains(t, out, "Not logged in")
}

func TestSync_NotLoggedIn(t *testing.T) {
	h := newHarness(t)
	h.seed()

	_, err := h.run("sync")
	assert.ErrorIs(t, err, common.ErrNotLoggedIn)
}

func TestSync_ThroughGateway(t *testing.T) {
	gin.SetMode(gin.TestMode)
	remoteStore := memory.New()
	srv, err := gateway.New(remoteStore, []byte(testSecret), nil)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	h := newHarness(t)
	t.Setenv("POCKET_REMOTE_URL", ts.URL)
	t.Setenv("POCKET_GATEWAY_JWT_SECRET", testSecret)

	h.seed()
	h.mustRun("transfer", "add", "Wallet", "Food", "25")
	h.mustRun("login", "--user", "alice")

	out := h.mustRun("sync")
	assert.Contains(t, out, "Uploaded 5 transactions")

	wallet := h.account("Wallet")
	remoteBalance, ok := remoteStore.Balance(wallet.ID)
	require.True(t, ok)
	assert.Equal(t, wallet.Balance, remoteBalance)
	assert.Equal(t, int64(7500), remoteBalance)

	out = h.mustRun("journal", "status")
	assert.Contains(t, out, "Everything is synced")

	out = h.mustRun("sync")
	assert.Contains(t, out, "Nothing to sync")
}

func TestSync_UnreachableRemoteKeepsJournal(t *testing.T) {
	ts := httptest.NewServer(nil)
	url := ts.URL
	ts.Close()

	h := newHarness(t)
	t.Setenv("POCKET_REMOTE_URL", url)
	t.Setenv("POCKET_GATEWAY_JWT_SECRET", testSecret)
	h.seed()
	h.mustRun("login", "--user", "alice")

	out := h.mustRun("sync", "--timeout", "5s")
	assert.Contains(t, out, "4 pending; will retry")

	stats, err := h.store().Journal().Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, stats.PendingTransactions)
}

const walletOFX = `OFXHEADER:100
DATA:OFXSGML
VERSION:102
SECURITY:NONE
ENCODING:USASCII
CHARSET:1252
COMPRESSION:NONE
OLDFILEUID:NONE
NEWFILEUID:NONE

<OFX>
<SIGNONMSGSRSV1>
<SONRS>
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<DTSERVER>20240315120000[0:GMT]
<LANGUAGE>ENG
</SONRS>
</SIGNONMSGSRSV1>
<BANKMSGSRSV1>
<STMTTRNRS>
<TRNUID>1
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<STMTRS>
<CURDEF>EUR
<BANKACCTFROM>
<BANKID>123456789
<ACCTID>1234567890
<ACCTTYPE>CHECKING
</BANKACCTFROM>
<BANKTRANLIST>
<DTSTART>20240101120000[0:GMT]
<DTEND>20240131120000[0:GMT]
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240115120000[0:GMT]
<TRNAMT>-20.00
<FITID>W-1
<NAME>Bakery
</STMTTRN>
<STMTTRN>
<TRNTYPE>CREDIT
<DTPOSTED>20240130120000[0:GMT]
<TRNAMT>50.00
<FITID>W-2
<NAME>Payroll
</STMTTRN>
</BANKTRANLIST>
<LEDGERBAL>
<BALAMT>130.00
<DTASOF>20240131120000[0:GMT]
</LEDGERBAL>
</STMTRS>
</STMTTRNRS>
</BANKMSGSRSV1>
</OFX>
`

func TestImportOFX_SyncAfterImport(t *testing.T) {
	gin.SetMode(gin.TestMode)
	remoteStore := memory.New()
	srv, err := gateway.New(remoteStore, []byte(testSecret), nil)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	h := newHarness(t)
	t.Setenv("POCKET_REMOTE_URL", ts.URL)
	t.Setenv("POCKET_GATEWAY_JWT_SECRET", testSecret)

	h.seed()
	h.mustRun("category", "add", "Salary", "-c", "EUR", "--income")
	h.mustRun("login", "--user", "alice")

	file := filepath.Join(t.TempDir(), "wallet.ofx")
	require.NoError(t, os.WriteFile(file, []byte(walletOFX), 0o600))

	out := h.mustRun("import", "ofx", file, "-a", "Wallet", "-e", "Food", "-i", "Salary", "--sync")
	assert.Contains(t, out, "Uploaded")

	wallet := h.account("Wallet")
	assert.Equal(t, int64(13000), wallet.Balance)
	remoteBalance, ok := remoteStore.Balance(wallet.ID)
	require.True(t, ok)
	assert.Equal(t, wallet.Balance, remoteBalance)

	out = h.mustRun("journal", "status")
	assert.Contains(t, out, "Everything is synced")

	// Re-importing writes nothing, so nothing is uploaded.
	out = h.mustRun("import", "ofx", file, "-a", "Wallet", "-e", "Food", "-i", "Salary", "--sync")
	assert.Contains(t, out, "2 already imported")
	assert.NotContains(t, out, "Uploaded")
}

func TestExportXLSX(t *testing.T) {
	h := newHarness(t)
	h.seed()
	h.mustRun("transfer", "add", "Wallet", "Food/Bakery", "3.20")

	path := filepath.Join(t.TempDir(), "ledger.xlsx")
	out := h.mustRun("export", "xlsx", path)
	assert.Contains(t, out, "Exported ledger")

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	assert.Len(t, f.GetSheetList(), 3)
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{in: "2024-03-01"},
		{in: "2024-03-01 08:30"},
		{in: "2024-03-01T08:30:00Z"},
		{in: "03/01/2024", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			_, err := parseTime(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestParseBalance(t *testing.T) {
	eur := &model.Currency{Code: "EUR", Symbol: "€", Precision: 2}

	got, err := parseBalance(eur, "-12.5")
	require.NoError(t, err)
	assert.Equal(t, int64(-1250), got)

	got, err = parseBalance(eur, " 7 ")
	require.NoError(t, err)
	assert.Equal(t, int64(700), got)

	_, err = parseBalance(eur, "--1")
	assert.Error(t, err)
}
