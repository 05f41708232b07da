package db

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

//go:embed seed/default.toml
var defaultSeed []byte

// Seed is the baseline reference data written by the first migration step.
type Seed struct {
	Departments []SeedDepartment `toml:"departments"`
	Accounts    []SeedAccount    `toml:"accounts"`
}

type SeedDepartment struct {
	Name string `toml:"name"`
}

type SeedAccount struct {
	Badge      string `toml:"badge"`
	Name       string `toml:"name"`
	Department string `toml:"department"`
	Rank       string `toml:"rank"`
	Admin      bool   `toml:"admin"`
	PIN        string `toml:"pin"`
}

// LoadSeed reads a seed file, or the embedded default when path is empty.
func LoadSeed(path string) (Seed, error) {
	if strings.TrimSpace(path) == "" {
		return ParseSeed(defaultSeed)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, fmt.Errorf("read seed file: %w", err)
	}
	return ParseSeed(data)
}

func ParseSeed(data []byte) (Seed, error) {
	var seed Seed
	meta, err := toml.Decode(string(data), &seed)
	if err != nil {
		return Seed{}, fmt.Errorf("decode seed: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		sort.Strings(keys)
		return Seed{}, fmt.Errorf("decode seed: unknown keys %s", strings.Join(keys, ", "))
	}

	if err := seed.validate(); err != nil {
		return Seed{}, err
	}
	return seed, nil
}

func (s Seed) validate() error {
	departments := make(map[string]bool, len(s.Departments))
	for i, dept := range s.Departments {
		name := strings.TrimSpace(dept.Name)
		if name == "" {
			return fmt.Errorf("seed department %d: name is required", i+1)
		}
		if departments[name] {
			return fmt.Errorf("seed department %q: duplicate name", name)
		}
		departments[name] = true
	}

	badges := make(map[string]bool, len(s.Accounts))
	for i, account := range s.Accounts {
		badge := strings.TrimSpace(account.Badge)
		if badge == "" {
			return fmt.Errorf("seed account %d: badge is required", i+1)
		}
		if badges[badge] {
			return fmt.Errorf("seed account %q: duplicate badge", badge)
		}
		badges[badge] = true

		if strings.TrimSpace(account.Name) == "" {
			return fmt.Errorf("seed account %q: name is required", badge)
		}
		if dept := strings.TrimSpace(account.Department); dept != "" && !departments[dept] {
			return fmt.Errorf("seed account %q: unknown department %q", badge, dept)
		}
	}

	return nil
}

// WithDefaultPIN fills in pin for accounts that have none.
func (s Seed) WithDefaultPIN(pin string) Seed {
	pin = strings.TrimSpace(pin)
	if pin == "" {
		return s
	}

	out := Seed{
		Departments: append([]SeedDepartment(nil), s.Departments...),
		Accounts:    make([]SeedAccount, len(s.Accounts)),
	}
	for i, account := range s.Accounts {
		if strings.TrimSpace(account.PIN) == "" {
			account.PIN = pin
		}
		out.Accounts[i] = account
	}
	return out
}
