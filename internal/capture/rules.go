// Package capture turns free text into transaction candidates, scores them,
// deduplicates, and either posts them or stores them as drafts for review.
package capture

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dvloznov/finance-ledger/internal/money"
)

// Rules holds the keyword tables driving the parser. They can be replaced
// from a YAML file; omitted keys keep their defaults.
type Rules struct {
	IncomeKeywords     []string          `yaml:"income_keywords"`
	InvestmentKeywords []string          `yaml:"investment_keywords"`
	ExpenseKeywords    []string          `yaml:"expense_keywords"`
	Stopwords          []string          `yaml:"stopwords"`
	Symbols            map[string]string `yaml:"symbols"` // symbol -> ISO code
}

// DefaultRules returns the built-in rule set.
func DefaultRules() Rules {
	return Rules{
		IncomeKeywords: []string{
			"salary", "income", "paycheck", "payroll", "wage", "wages",
			"received", "refund", "bonus", "dividend", "interest",
		},
		InvestmentKeywords: []string{
			"invest", "invested", "investment", "stock", "stocks", "shares",
			"crypto", "bitcoin", "fund", "etf", "bond", "bonds",
		},
		ExpenseKeywords: []string{
			"paid", "spent", "bought", "buy", "purchase", "bill", "expense", "cost",
		},
		Stopwords: []string{
			"paid", "pay", "spent", "spend", "bought", "buy", "received", "receive",
			"got", "for", "on", "at", "to", "from", "in", "the", "a", "an", "of", "with",
		},
		Symbols: map[string]string{
			"$": "USD",
			"€": "EUR",
			"£": "GBP",
			"₺": "TRY",
		},
	}
}

// LoadRules reads a YAML rules file and merges it over DefaultRules.
// An empty path returns the defaults.
func LoadRules(path string) (Rules, error) {
	rules := DefaultRules()
	if path == "" {
		return rules, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("LoadRules: read %s: %w", path, err)
	}

	var file Rules
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Rules{}, fmt.Errorf("LoadRules: parse %s: %w", path, err)
	}

	if len(file.IncomeKeywords) > 0 {
		rules.IncomeKeywords = file.IncomeKeywords
	}
	if len(file.InvestmentKeywords) > 0 {
		rules.InvestmentKeywords = file.InvestmentKeywords
	}
	if len(file.ExpenseKeywords) > 0 {
		rules.ExpenseKeywords = file.ExpenseKeywords
	}
	if len(file.Stopwords) > 0 {
		rules.Stopwords = file.Stopwords
	}
	for sym, code := range file.Symbols {
		norm, err := money.NormalizeCurrency(code)
		if err != nil {
			return Rules{}, fmt.Errorf("LoadRules: symbol %q: %w", sym, err)
		}
		rules.Symbols[sym] = norm
	}

	return rules, nil
}

func lowerSet(words []string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[strings.ToLower(strings.TrimSpace(w))] = true
	}
	return set
}
