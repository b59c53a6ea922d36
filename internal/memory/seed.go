package memory

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// SeedItem is one entry of a seed file.
type SeedItem struct {
	Namespace []string       `yaml:"namespace"`
	Key       string         `yaml:"key"`
	Value     map[string]any `yaml:"value"`
}

var defaultMoviePreferences = []string{
	"Pulp Fiction is good one",
	"2001: A Space Odyssey is very epic",
	"Jackie Chan has funny roles",
	"Iranian movies are non ordinary",
}

// DefaultSeed returns the starter memories for a user.
func DefaultSeed(userID string) []SeedItem {
	items := make([]SeedItem, 0, len(defaultMoviePreferences))
	for _, pref := range defaultMoviePreferences {
		items = append(items, SeedItem{
			Namespace: UserNamespace(userID),
			Key:       uuid.NewString(),
			Value:     map[string]any{"movie_preference": pref},
		})
	}
	return items
}

// SeedIfEmpty stores the default memories when the user's namespace has no
// items yet. It returns how many items were written.
func SeedIfEmpty(ctx context.Context, s *Store, userID string) (int, error) {
	n, err := s.Count(ctx, UserNamespace(userID))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		return 0, nil
	}
	return s.Import(ctx, DefaultSeed(userID))
}

// Import stores every item, generating keys for items without one.
func (s *Store) Import(ctx context.Context, items []SeedItem) (int, error) {
	for i, item := range items {
		key := item.Key
		if key == "" {
			key = uuid.NewString()
		}
		if err := s.Put(ctx, Namespace(item.Namespace), key, item.Value); err != nil {
			return i, fmt.Errorf("import item %d: %w", i+1, err)
		}
	}
	return len(items), nil
}

// LoadSeedFile reads a YAML list of seed items.
func LoadSeedFile(path string) ([]SeedItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var items []SeedItem
	if err := yaml.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("parse seed file %s: %w", path, err)
	}
	return items, nil
}
