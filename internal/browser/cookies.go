package browser

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Cookie is one persisted cookie record. Expires is unix seconds;
// zero means a session cookie.
type Cookie struct {
	Name    string  `json:"name"`
	Value   string  `json:"value"`
	Domain  string  `json:"domain"`
	Path    string  `json:"path,omitempty"`
	Expires float64 `json:"expires,omitempty"`
}

// CookieStore persists the cookie set for the chat surface. Writers
// overwrite the whole file atomically: a partial cookie set is worse
// than none, authentication must fail closed.
type CookieStore struct {
	path string
}

func NewCookieStore(path string) *CookieStore {
	return &CookieStore{path: path}
}

// Load reads the persisted cookies, dropping entries that have expired.
// A missing file is not an error; it returns an empty set.
func (s *CookieStore) Load(now time.Time) ([]Cookie, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read cookie file: %w", err)
	}
	var all []Cookie
	if err := json.Unmarshal(raw, &all); err != nil {
		return nil, fmt.Errorf("decode cookie file: %w", err)
	}
	live := all[:0]
	for _, c := range all {
		if c.Expires > 0 && time.Unix(int64(c.Expires), 0).Before(now) {
			continue
		}
		live = append(live, c)
	}
	return live, nil
}

// Save overwrites the cookie file with the given set. The write goes to a
// temp file in the same directory and is renamed into place.
func (s *CookieStore) Save(cookies []Cookie) error {
	raw, err := json.MarshalIndent(cookies, "", "  ")
	if err != nil {
		return fmt.Errorf("encode cookies: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cookie dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".cookies-*.json")
	if err != nil {
		return fmt.Errorf("create temp cookie file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write cookies: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp cookie file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace cookie file: %w", err)
	}
	return nil
}
