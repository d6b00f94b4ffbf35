// Package profile stores the user's investor profile and renders it
// for the system prompt.
package profile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Profile describes the user's investment preferences. All fields are
// free-form; the model consumes them as prompt text.
type Profile struct {
	RiskTolerance     string    `json:"risk_tolerance,omitempty"`
	InvestmentHorizon string    `json:"investment_horizon,omitempty"`
	PreferredSectors  []string  `json:"preferred_sectors,omitempty"`
	InvestmentStyle   string    `json:"investment_style,omitempty"`
	Notes             string    `json:"notes,omitempty"`
	UpdatedAt         time.Time `json:"updated_at,omitempty"`
}

// IsZero reports whether no preference has been recorded.
func (p Profile) IsZero() bool {
	return p.RiskTolerance == "" && p.InvestmentHorizon == "" &&
		len(p.PreferredSectors) == 0 && p.InvestmentStyle == "" && p.Notes == ""
}

// Summary renders the profile as a short prompt fragment.
func (p Profile) Summary() string {
	if p.IsZero() {
		return "No investor profile on record."
	}

	var parts []string
	if p.RiskTolerance != "" {
		parts = append(parts, "risk tolerance: "+p.RiskTolerance)
	}
	if p.InvestmentHorizon != "" {
		parts = append(parts, "horizon: "+p.InvestmentHorizon)
	}
	if len(p.PreferredSectors) > 0 {
		parts = append(parts, "preferred sectors: "+strings.Join(p.PreferredSectors, ", "))
	}
	if p.InvestmentStyle != "" {
		parts = append(parts, "style: "+p.InvestmentStyle)
	}
	if p.Notes != "" {
		parts = append(parts, "notes: "+p.Notes)
	}
	return "Investor profile: " + strings.Join(parts, "; ") + "."
}

// Store persists the profile as a JSON file.
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore creates a store backed by the given file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load reads the profile. A missing file yields a zero profile, not an
// error.
func (s *Store) Load() (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Store) load() (Profile, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return Profile{}, nil
	}
	if err != nil {
		return Profile{}, fmt.Errorf("read profile: %w", err)
	}
	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return Profile{}, fmt.Errorf("parse profile: %w", err)
	}
	return p, nil
}

// Save writes the profile, stamping UpdatedAt.
func (s *Store) Save(p Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(p)
}

func (s *Store) save(p Profile) error {
	p.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create profile dir: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write profile: %w", err)
	}
	return nil
}

// Update applies fn to the current profile and persists the result,
// returning the updated profile.
func (s *Store) Update(fn func(*Profile)) (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.load()
	if err != nil {
		return Profile{}, err
	}
	fn(&p)
	if err := s.save(p); err != nil {
		return Profile{}, err
	}
	return p, nil
}
