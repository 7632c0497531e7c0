package app

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/money"
	"github.com/dvloznov/finance-ledger/internal/store"
)

// SeedFile lists accounts and categories to create for one owner.
//
//	owner_id: u1
//	accounts:
//	  - id: checking
//	    name: Checking
//	    currency: USD
//	categories:
//	  - name: groceries
//	    kind: expense
type SeedFile struct {
	OwnerID    string         `yaml:"owner_id"`
	Accounts   []SeedAccount  `yaml:"accounts"`
	Categories []SeedCategory `yaml:"categories"`
}

// SeedAccount is one account entry. Balance is in minor units.
type SeedAccount struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Currency string `yaml:"currency"`
	Balance  int64  `yaml:"balance"`
}

// SeedCategory is one category entry.
type SeedCategory struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	Kind string `yaml:"kind"`
}

// LoadSeed reads a YAML seed file.
func LoadSeed(path string) (*SeedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("LoadSeed: read %s: %w", path, err)
	}
	var f SeedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("LoadSeed: parse %s: %w", path, err)
	}
	return &f, nil
}

// Seed validates every entry, then creates them. ownerID overrides the file's
// owner_id when non-empty. Entries without an id get a generated one.
func Seed(ctx context.Context, s store.Seeder, f *SeedFile, ownerID string) ([]domain.Account, []domain.Category, error) {
	if ownerID == "" {
		ownerID = f.OwnerID
	}
	if ownerID == "" {
		return nil, nil, fmt.Errorf("Seed: %w: owner id is required", domain.ErrValidation)
	}

	accounts := make([]domain.Account, 0, len(f.Accounts))
	for _, a := range f.Accounts {
		code, err := money.NormalizeCurrency(a.Currency)
		if err != nil {
			return nil, nil, fmt.Errorf("Seed: account %q: %w", a.Name, err)
		}
		id := a.ID
		if id == "" {
			id = uuid.New().String()
		}
		accounts = append(accounts, domain.Account{ID: id, OwnerID: ownerID, Name: a.Name, Currency: code, Balance: a.Balance})
	}

	categories := make([]domain.Category, 0, len(f.Categories))
	for _, c := range f.Categories {
		kind, err := domain.ParseCategoryKind(c.Kind)
		if err != nil {
			return nil, nil, fmt.Errorf("Seed: category %q: %w", c.Name, err)
		}
		id := c.ID
		if id == "" {
			id = uuid.New().String()
		}
		categories = append(categories, domain.Category{ID: id, OwnerID: ownerID, Kind: kind, Name: c.Name})
	}

	for i := range accounts {
		if err := s.CreateAccount(ctx, &accounts[i]); err != nil {
			return nil, nil, fmt.Errorf("Seed: create account %s: %w", accounts[i].ID, err)
		}
	}
	for i := range categories {
		if err := s.CreateCategory(ctx, &categories[i]); err != nil {
			return nil, nil, fmt.Errorf("Seed: create category %s: %w", categories[i].ID, err)
		}
	}
	return accounts, categories, nil
}
