package accounts

import (
	"fmt"
	"time"

	"github.com/odyssey-erp/ledger/internal/accounting/shared"
)

// AccountType enumerates CoA categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// NormalDebit reports whether balances of t grow on the debit side.
func (t AccountType) NormalDebit() bool {
	return t == AccountTypeAsset || t == AccountTypeExpense
}

// Subtype refines the account role.
type Subtype string

const (
	SubtypeBank               Subtype = "BANK"
	SubtypeCash               Subtype = "CASH"
	SubtypeAccountsReceivable Subtype = "ACCOUNTS_RECEIVABLE"
	SubtypeAccountsPayable    Subtype = "ACCOUNTS_PAYABLE"
	SubtypeTax                Subtype = "TAX"
	SubtypeRetainedEarnings   Subtype = "RETAINED_EARNINGS"
)

// Account models a chart of accounts node.
type Account struct {
	ID        int64
	OrgID     int64
	Code      string
	Name      string
	Type      AccountType
	Subtype   Subtype
	ParentID  *int64
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Rule describes what an account referenced in a given role must look like.
type Rule struct {
	Role     string
	Types    []AccountType
	Subtypes []Subtype
}

// Check validates a against r. Inactive accounts always fail.
func (r Rule) Check(a Account) error {
	if !a.IsActive {
		return fmt.Errorf("%w: %s account %s", shared.ErrAccountInactive, r.Role, a.Code)
	}
	if len(r.Types) > 0 && !contains(r.Types, a.Type) {
		return fmt.Errorf("%w: %s account %s has type %s", shared.ErrAccountType, r.Role, a.Code, a.Type)
	}
	if len(r.Subtypes) > 0 && !contains(r.Subtypes, a.Subtype) {
		return fmt.Errorf("%w: %s account %s has subtype %q", shared.ErrAccountType, r.Role, a.Code, a.Subtype)
	}
	return nil
}

func contains[T comparable](list []T, v T) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// Common roles checked at post time.
var (
	RuleReceivable = Rule{Role: "receivable control", Types: []AccountType{AccountTypeAsset}, Subtypes: []Subtype{SubtypeAccountsReceivable}}
	RulePayable    = Rule{Role: "payable control", Types: []AccountType{AccountTypeLiability}, Subtypes: []Subtype{SubtypeAccountsPayable}}
	RuleBank       = Rule{Role: "bank", Types: []AccountType{AccountTypeAsset}, Subtypes: []Subtype{SubtypeBank, SubtypeCash}}
	RuleOutputTax  = Rule{Role: "output tax", Types: []AccountType{AccountTypeLiability}}
	RuleInputTax   = Rule{Role: "input tax", Types: []AccountType{AccountTypeAsset, AccountTypeLiability}}
	RuleRevenue    = Rule{Role: "revenue", Types: []AccountType{AccountTypeRevenue}}
	RuleExpense    = Rule{Role: "expense", Types: []AccountType{AccountTypeExpense, AccountTypeAsset}}
	RuleEquity     = Rule{Role: "equity", Types: []AccountType{AccountTypeEquity}}
)
