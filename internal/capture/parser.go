package capture

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/money"
)

// number matches grouped amounts ("1,500.00", "1.500,00") before plain ones
// ("12,50", "1500").
const number = `(\d{1,3}(?:,\d{3})+(?:\.\d+)?|\d{1,3}(?:\.\d{3})+(?:,\d+)?|\d+(?:[.,]\d+)?)`

// numberStart keeps a match from beginning inside a digit run.
const numberStart = `(?:^|[^\w.,])`

var (
	codeBeforeRe = regexp.MustCompile(`\b([A-Z]{3})\s?` + number + `\b`)
	codeAfterRe  = regexp.MustCompile(numberStart + number + `\s?((?i:[a-z]{3}))\b`)
	bareNumberRe = regexp.MustCompile(numberStart + number + `\b`)
)

// Parsed is the rule-based reading of a capture text.
type Parsed struct {
	Amount      decimal.Decimal
	Currency    string // empty when no currency was detected
	Type        domain.TransactionType
	Description *string
}

// Parser applies Rules to free text. It is safe for concurrent use.
type Parser struct {
	symbols    map[string]string
	symbolRe   *regexp.Regexp
	income     map[string]bool
	investment map[string]bool
	expense    map[string]bool
	stop       map[string]bool
}

// NewParser compiles rules into a Parser.
func NewParser(rules Rules) *Parser {
	syms := make([]string, 0, len(rules.Symbols))
	for s := range rules.Symbols {
		syms = append(syms, s)
	}
	// Longest first so multi-rune symbols win over their prefixes.
	sort.Slice(syms, func(i, j int) bool {
		if len(syms[i]) != len(syms[j]) {
			return len(syms[i]) > len(syms[j])
		}
		return syms[i] < syms[j]
	})
	quoted := make([]string, len(syms))
	for i, s := range syms {
		quoted[i] = regexp.QuoteMeta(s)
	}

	p := &Parser{
		symbols:    rules.Symbols,
		income:     lowerSet(rules.IncomeKeywords),
		investment: lowerSet(rules.InvestmentKeywords),
		expense:    lowerSet(rules.ExpenseKeywords),
		stop:       lowerSet(rules.Stopwords),
	}
	if len(quoted) > 0 {
		p.symbolRe = regexp.MustCompile(`(` + strings.Join(quoted, "|") + `)\s?` + number)
	}
	return p
}

// amountMatch locates the amount inside the text.
type amountMatch struct {
	start, end int
	number     string
	currency   string
}

// Parse reads amount, currency, type and description from text. The only
// error is domain.ErrAmountNotDetected.
func (p *Parser) Parse(text string) (Parsed, error) {
	m, ok := p.findAmount(text)
	if !ok {
		return Parsed{}, domain.ErrAmountNotDetected
	}

	amount, err := decimal.NewFromString(normalizeNumber(m.number))
	if err != nil {
		return Parsed{}, fmt.Errorf("%w: %v", domain.ErrAmountNotDetected, err)
	}

	return Parsed{
		Amount:      amount,
		Currency:    m.currency,
		Type:        p.DetectType(text),
		Description: p.describe(text, m),
	}, nil
}

// findAmount tries symbol-prefixed amounts, then ISO-code-adjacent amounts,
// then a bare number.
func (p *Parser) findAmount(text string) (amountMatch, bool) {
	if p.symbolRe != nil {
		if loc := p.symbolRe.FindStringSubmatchIndex(text); loc != nil {
			return amountMatch{
				start:    loc[0],
				end:      loc[1],
				number:   text[loc[4]:loc[5]],
				currency: p.symbols[text[loc[2]:loc[3]]],
			}, true
		}
	}

	// Codes written in upper case win over lower-case ones, then the
	// leftmost match wins.
	var best *amountMatch
	bestUpper := false
	consider := func(m amountMatch, written string) {
		upper := written == m.currency
		if best == nil || (upper && !bestUpper) || (upper == bestUpper && m.start < best.start) {
			best, bestUpper = &m, upper
		}
	}
	for _, loc := range codeBeforeRe.FindAllStringSubmatchIndex(text, -1) {
		if code := text[loc[2]:loc[3]]; money.IsCurrency(code) {
			consider(amountMatch{start: loc[0], end: loc[1], number: text[loc[4]:loc[5]], currency: code}, code)
			break
		}
	}
	for _, loc := range codeAfterRe.FindAllStringSubmatchIndex(text, -1) {
		written := text[loc[4]:loc[5]]
		if code, err := money.NormalizeCurrency(written); err == nil {
			consider(amountMatch{start: loc[2], end: loc[1], number: text[loc[2]:loc[3]], currency: code}, written)
			break
		}
	}
	if best != nil {
		return *best, true
	}

	if loc := bareNumberRe.FindStringSubmatchIndex(text); loc != nil {
		return amountMatch{start: loc[2], end: loc[1], number: text[loc[2]:loc[3]]}, true
	}
	return amountMatch{}, false
}

// normalizeNumber rewrites a matched amount with "." as the only separator.
// With both separators present the last one is the decimal point; a
// separator repeated on its own is grouping; a single one is decimal.
func normalizeNumber(s string) string {
	lastComma, lastDot := strings.LastIndex(s, ","), strings.LastIndex(s, ".")
	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			return strings.Replace(strings.ReplaceAll(s, ".", ""), ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")
	case strings.Count(s, ",") > 1:
		return strings.ReplaceAll(s, ",", "")
	case strings.Count(s, ".") > 1:
		return strings.ReplaceAll(s, ".", "")
	default:
		return strings.Replace(s, ",", ".", 1)
	}
}

// DetectType picks the transaction type from keywords, checking income, then
// investment, then expense. Expense is the default.
func (p *Parser) DetectType(text string) domain.TransactionType {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool { return !isWordRune(r) })
	has := func(set map[string]bool) bool {
		for _, w := range words {
			if set[w] {
				return true
			}
		}
		return false
	}

	switch {
	case has(p.income):
		return domain.TypeIncome
	case has(p.investment):
		return domain.TypeInvestment
	default:
		return domain.TypeExpense
	}
}

// describe strips the amount, currency tokens and stopwords from text.
func (p *Parser) describe(text string, m amountMatch) *string {
	rest := text[:m.start] + " " + text[m.end:]

	var kept []string
	for _, tok := range strings.Fields(rest) {
		word := strings.TrimFunc(tok, func(r rune) bool { return !isWordRune(r) })
		if word == "" {
			continue
		}
		lower := strings.ToLower(word)
		if p.stop[lower] {
			continue
		}
		if m.currency != "" && strings.EqualFold(word, m.currency) {
			continue
		}
		kept = append(kept, word)
	}
	return domain.StringPtr(strings.Join(kept, " "))
}

// containsWord reports whether word appears in text as a whole word,
// ignoring case.
func containsWord(text, word string) bool {
	text = strings.ToLower(text)
	word = strings.ToLower(strings.TrimSpace(word))
	if word == "" {
		return false
	}

	for offset := 0; offset < len(text); {
		i := strings.Index(text[offset:], word)
		if i < 0 {
			return false
		}
		start := offset + i
		end := start + len(word)

		before, _ := utf8.DecodeLastRuneInString(text[:start])
		after, _ := utf8.DecodeRuneInString(text[end:])
		if (start == 0 || !isWordRune(before)) && (end == len(text) || !isWordRune(after)) {
			return true
		}
		_, size := utf8.DecodeRuneInString(text[start:])
		offset = start + size
	}
	return false
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
