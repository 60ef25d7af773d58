package forecasts

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"forecasting/internal/types"
)

// Registry maps city names to the URL of their forecast document.
type Registry struct {
	urls  map[string]string
	names []string // sorted
}

// NewRegistry creates a Registry from a name-to-URL map.
func NewRegistry(urls map[string]string) (*Registry, error) {
	r := &Registry{urls: make(map[string]string, len(urls))}
	for name, u := range urls {
		name = strings.TrimSpace(name)
		if name == "" || strings.TrimSpace(u) == "" {
			return nil, types.NewAppError(
				types.ErrCodeConfigInvalidValue,
				fmt.Sprintf("city registry entry %q has an empty name or url", name),
				nil,
			)
		}
		r.urls[name] = u
		r.names = append(r.names, name)
	}
	sort.Strings(r.names)
	return r, nil
}

// LoadRegistry reads a JSON object of the form {"CITY": "url", ...}.
func LoadRegistry(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, types.NewAppErrorWithDetails(
			types.ErrCodeConfigInvalidValue,
			"cannot open cities file",
			err,
			map[string]any{"path": path},
		)
	}
	defer f.Close()

	return DecodeRegistry(f)
}

// DecodeRegistry reads a registry from its JSON form.
func DecodeRegistry(r io.Reader) (*Registry, error) {
	var urls map[string]string
	if err := json.NewDecoder(r).Decode(&urls); err != nil {
		return nil, types.NewAppError(types.ErrCodeConfigInvalidValue, "cities file is not a JSON object of strings", err)
	}
	return NewRegistry(urls)
}

// Names returns every known city in lexical order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

// Len returns the number of known cities.
func (r *Registry) Len() int {
	return len(r.names)
}

// URL returns the forecast URL of a city.
func (r *Registry) URL(name string) (string, bool) {
	u, ok := r.urls[name]
	return u, ok
}

// Resolve turns city names into pipeline sources, preserving order. With no
// names every registered city is returned in lexical order. Unknown names
// fail the whole call with config_unknown_city listing all of them; an empty
// result fails with config_no_sources.
func (r *Registry) Resolve(names []string) ([]types.Source, error) {
	if len(names) == 0 {
		names = r.names
	}

	sources := make([]types.Source, 0, len(names))
	var unknown []string
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true

		u, ok := r.urls[name]
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		sources = append(sources, types.Source{City: name, URL: u})
	}

	if len(unknown) > 0 {
		return nil, types.NewAppErrorWithDetails(
			types.ErrCodeConfigUnknownCity,
			fmt.Sprintf("please check that city %s exists", strings.Join(unknown, ", ")),
			nil,
			map[string]any{"cities": unknown},
		)
	}
	if len(sources) == 0 {
		return nil, types.NewAppError(types.ErrCodeConfigNoSources, "no cities to rank", nil)
	}
	return sources, nil
}
