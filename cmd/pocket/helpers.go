package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/pocket-ledger/internal/common"
	"github.com/Veraticus/pocket-ledger/internal/config"
	"github.com/Veraticus/pocket-ledger/internal/model"
	"github.com/Veraticus/pocket-ledger/internal/remote"
	"github.com/Veraticus/pocket-ledger/internal/remote/postgres"
	"github.com/Veraticus/pocket-ledger/internal/remote/rest"
	"github.com/Veraticus/pocket-ledger/internal/session"
	"github.com/Veraticus/pocket-ledger/internal/storage"
)

// app bundles what most commands need.
type app struct {
	cfg   *config.Config
	store *storage.SQLiteStorage
	out   io.Writer
}

// withConfig loads the configuration before running fn.
func withConfig(fn func(cmd *cobra.Command, cfg *config.Config, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(viper.GetViper())
		if err != nil {
			return err
		}
		return fn(cmd, cfg, args)
	}
}

// withApp opens the configured ledger around fn and closes it afterwards.
func withApp(fn func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return withConfig(func(cmd *cobra.Command, cfg *config.Config, args []string) error {
		store, err := initStorage(cmd.Context(), cfg.Database.Path)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		return fn(cmd, &app{cfg: cfg, store: store, out: cmd.OutOrStdout()}, args)
	})
}

// initStorage opens the ledger at path and brings its schema up to date.
func initStorage(ctx context.Context, path string) (*storage.SQLiteStorage, error) {
	store, err := storage.NewSQLiteStorage(path)
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// backend connects to the configured remote. The returned func releases it.
func (a *app) backend(ctx context.Context) (remote.Backend, func(), error) {
	logger := slog.Default().With("component", "remote")

	switch a.cfg.Remote.Kind {
	case config.RemotePostgres:
		if a.cfg.Remote.DatabaseURL == "" {
			return nil, nil, common.NewUserError("remote.database_url is not set", common.ErrMissingConfig)
		}
		b, err := postgres.Connect(ctx, a.cfg.Remote.DatabaseURL, logger)
		if err != nil {
			return nil, nil, err
		}
		return b, b.Close, nil
	default:
		sess, err := a.store.LoadSession(ctx)
		if errors.Is(err, session.ErrNoSession) {
			return nil, nil, common.NewUserError("not logged in; run pocket login", common.ErrNotLoggedIn)
		}
		if err != nil {
			return nil, nil, err
		}
		if sess.Expired(time.Now()) {
			return nil, nil, common.NewUserError("session expired; run pocket login", session.ErrExpired)
		}
		return rest.New(a.cfg.Remote.URL, *sess, rest.WithLogger(logger)), func() {}, nil
	}
}

func (a *app) currency(ctx context.Context, code string) (*model.Currency, error) {
	cur, err := a.store.GetCurrencyByCode(ctx, code)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, common.NewUserError(fmt.Sprintf("unknown currency %q; add it with pocket currency add", code), err)
	}
	return cur, err
}

// account resolves ref as an id first, then as a case-insensitive title.
func (a *app) account(ctx context.Context, ref string) (*model.Account, error) {
	acct, err := a.store.GetAccount(ctx, ref)
	if err == nil || !errors.Is(err, storage.ErrNotFound) {
		return acct, err
	}

	accounts, err := a.store.ListAccounts(ctx, true)
	if err != nil {
		return nil, err
	}
	var match *model.Account
	for i := range accounts {
		if !strings.EqualFold(accounts[i].Title, ref) {
			continue
		}
		if match != nil {
			return nil, common.NewUserError(fmt.Sprintf("several accounts are titled %q; use the id", ref), nil)
		}
		match = &accounts[i]
	}
	if match == nil {
		return nil, common.NewUserError(fmt.Sprintf("unknown account %q", ref), storage.ErrNotFound)
	}
	return match, nil
}

// category resolves ref as an id, a title, or "Parent/Sub" for a subcategory.
func (a *app) category(ctx context.Context, ref string) (*model.Category, error) {
	cat, err := a.store.GetCategory(ctx, ref)
	if err == nil || !errors.Is(err, storage.ErrNotFound) {
		return cat, err
	}

	parentRef, subRef, nested := strings.Cut(ref, "/")
	if !nested {
		parentRef = ref
	}

	categories, err := a.store.ListCategories(ctx, true)
	if err != nil {
		return nil, err
	}
	var parent *model.Category
	for i := range categories {
		if strings.EqualFold(categories[i].Title, strings.TrimSpace(parentRef)) {
			if parent != nil {
				return nil, common.NewUserError(fmt.Sprintf("several categories are titled %q; use the id", parentRef), nil)
			}
			parent = &categories[i]
		}
	}
	if parent == nil {
		return nil, common.NewUserError(fmt.Sprintf("unknown category %q", ref), storage.ErrNotFound)
	}
	if !nested {
		return parent, nil
	}

	subs, err := a.store.GetSubcategories(ctx, parent.ID)
	if err != nil {
		return nil, err
	}
	for _, sub := range subs {
		if strings.EqualFold(sub.Title, strings.TrimSpace(subRef)) {
			return a.store.GetCategory(ctx, sub.ID)
		}
	}
	return nil, common.NewUserError(fmt.Sprintf("unknown subcategory %q", ref), storage.ErrNotFound)
}

// counterparty resolves ref to an account or category id, accounts first.
func (a *app) counterparty(ctx context.Context, ref string) (string, *model.Currency, error) {
	var currencyID, id string
	if acct, err := a.account(ctx, ref); err == nil {
		id, currencyID = acct.ID, acct.CurrencyID
	} else if cat, catErr := a.category(ctx, ref); catErr == nil {
		id, currencyID = cat.ID, cat.CurrencyID
	} else {
		return "", nil, common.NewUserError(fmt.Sprintf("no account or category matches %q", ref), storage.ErrUnknownCounterparty)
	}

	cur, err := a.store.GetCurrency(ctx, currencyID)
	if err != nil {
		return "", nil, err
	}
	return id, cur, nil
}

// counterpartyName renders a transfer side for tables.
func (a *app) counterpartyName(ctx context.Context, cp model.Counterparty) string {
	isAccount, err := cp.IsAccount()
	if err != nil {
		return cp.ID
	}
	if isAccount {
		if acct, err := a.store.GetAccount(ctx, cp.ID); err == nil {
			return acct.Title
		}
		return cp.ID
	}
	cat, err := a.store.GetCategory(ctx, cp.ID)
	if err != nil {
		return cp.ID
	}
	if cat.ParentCategoryID != nil {
		if parent, err := a.store.GetCategory(ctx, *cat.ParentCategoryID); err == nil {
			return parent.Title + "/" + cat.Title
		}
	}
	return cat.Title
}

var timeLayouts = []string{time.RFC3339, "2006-01-02 15:04", "2006-01-02"}

// parseTime accepts RFC 3339, "YYYY-MM-DD HH:MM" or a bare date in local time.
func parseTime(value string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, common.NewUserError(fmt.Sprintf("invalid time %q; use YYYY-MM-DD or RFC 3339", value), nil)
}

func optionalString(cmd *cobra.Command, name string) *string {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, _ := cmd.Flags().GetString(name)
	return &v
}

// parseBalance parses a possibly negative amount in cur.
func parseBalance(cur *model.Currency, input string) (int64, error) {
	s := strings.TrimSpace(input)
	negative := strings.HasPrefix(s, "-")
	minor, err := cur.Parse(strings.TrimPrefix(s, "-"))
	if err != nil {
		return 0, common.NewUserError(fmt.Sprintf("invalid %s amount %q", cur.Code, input), err)
	}
	if negative {
		minor = -minor
	}
	return minor, nil
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
