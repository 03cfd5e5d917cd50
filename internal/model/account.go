package model

// AccountType distinguishes everyday accounts from savings.
type AccountType string

const (
	// AccountTypeRegular is a cash or card account used for spending.
	AccountTypeRegular AccountType = "regular"
	// AccountTypeSavings is an account set aside for savings.
	AccountTypeSavings AccountType = "savings"
)

// Valid reports whether t is a known account type.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeRegular, AccountTypeSavings:
		return true
	}
	return false
}

// Account holds money in a single currency. Balance is in minor units and
// only changes through transfers or an explicit balance set.
type Account struct {
	ID          string
	Title       string
	CurrencyID  string
	ColorScheme string
	Type        AccountType
	Position    Position
	Balance     int64
	IsArchived  bool
}
