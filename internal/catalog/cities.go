package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/comunihub/marketplace-client/pkg/debounce"
	"github.com/comunihub/marketplace-client/pkg/logger"
)

// minCityQueryLen is how many characters a query needs before the directory
// is consulted; shorter queries just clear the result list.
const minCityQueryLen = 3

// City is one municipality from the public locations directory. The nesting
// mirrors the directory payload; only the state initials are used from the
// region hierarchy.
type City struct {
	ID          int64       `json:"id"`
	Name        string      `json:"nome"`
	Microregion Microregion `json:"microrregiao"`
}

// Microregion carries the region hierarchy down to the state.
type Microregion struct {
	Mesoregion Mesoregion `json:"mesorregiao"`
}

// Mesoregion is the middle level of the region hierarchy.
type Mesoregion struct {
	State State `json:"UF"`
}

// State is a federation unit.
type State struct {
	Initials string `json:"sigla"`
	Name     string `json:"nome"`
}

// Label formats the city as "Name, UF", the form ServiceFilter.City and the
// services table store.
func (c City) Label() string {
	return c.Name + ", " + c.Microregion.Mesoregion.State.Initials
}

// CityLookup resolves municipality names for the listing city filter.
// Keystrokes settle through a debouncer before touching the directory, and
// the directory has no name-search parameter, so matching happens
// client-side over the full alphabetical list.
type CityLookup struct {
	endpoint   string
	httpClient *http.Client
	debouncer  *debounce.Debouncer[string]
	logger     *logger.Logger
}

// NewCityLookup creates a lookup against the directory at endpoint with the
// given settle delay.
func NewCityLookup(endpoint string, delay time.Duration, log *logger.Logger) *CityLookup {
	return &CityLookup{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		debouncer:  debounce.New[string](delay),
		logger:     log,
	}
}

// SetQuery pushes a keystroke into the debouncer.
func (l *CityLookup) SetQuery(text string) {
	l.debouncer.Set(text)
}

// Run resolves every settled query until ctx is canceled, reporting matches
// (or an error) through onResults. Queries shorter than minCityQueryLen
// report an empty result without a directory round trip. It blocks; run it
// on its own goroutine.
func (l *CityLookup) Run(ctx context.Context, onResults func([]City, error)) {
	for {
		select {
		case <-ctx.Done():
			return
		case text := <-l.debouncer.C():
			if utf8.RuneCountInString(strings.TrimSpace(text)) < minCityQueryLen {
				onResults(nil, nil)
				continue
			}
			onResults(l.Lookup(ctx, text))
		}
	}
}

// Stop cancels any pending debounced query.
func (l *CityLookup) Stop() {
	l.debouncer.Stop()
}

// Lookup fetches the municipality list and filters it by name immediately,
// bypassing the debouncer. Matching is a case-insensitive substring test.
func (l *CityLookup) Lookup(ctx context.Context, name string) ([]City, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build city directory request: %w", err)
	}

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("city lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("city directory returned status %d", resp.StatusCode)
	}

	var cities []City
	if err := json.NewDecoder(resp.Body).Decode(&cities); err != nil {
		return nil, fmt.Errorf("failed to decode city directory: %w", err)
	}

	needle := strings.ToLower(name)
	var matched []City
	for _, city := range cities {
		if strings.Contains(strings.ToLower(city.Name), needle) {
			matched = append(matched, city)
		}
	}
	l.logger.Debug("city lookup executed",
		zap.String("query", name),
		zap.Int("results", len(matched)),
	)
	return matched, nil
}
