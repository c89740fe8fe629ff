// Package store persists favorites, history and templates as flat files.
//
// Loads never fail: a missing or unreadable file is an empty record set, and
// records that do not parse are dropped. Writes replace the whole file through
// a temp file and rename, so a crash leaves either the old or the new content.
package store

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/timvw/tpik/internal/model"
	"github.com/timvw/tpik/internal/paths"
)

// File names inside the state directory.
const (
	FavoritesFile = "favorites"
	HistoryFile   = "history"
	TemplatesFile = "templates"
)

// HistoryLimit bounds the number of history entries.
const HistoryLimit = 50

// templateSep separates template fields on disk.
const templateSep = "|"

// Store reads and writes the state files in one directory.
type Store struct {
	dir string
	log *slog.Logger
}

// New creates a store rooted at dir. The directory is created on first write.
func New(dir string, log *slog.Logger) *Store {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Store{dir: dir, log: log}
}

// Dir returns the state directory.
func (s *Store) Dir() string {
	return s.dir
}

// LoadFavorites returns the favorite session names in file order.
func (s *Store) LoadFavorites() model.FavoriteSet {
	return model.NewFavoriteSet(s.readLines(FavoritesFile)...)
}

// SaveFavorites replaces the favorites file.
func (s *Store) SaveFavorites(favs model.FavoriteSet) error {
	return s.writeLines(FavoritesFile, favs.Names())
}

// LoadHistory returns session names, most recent first.
func (s *Store) LoadHistory() []string {
	var history []string
	seen := map[string]bool{}
	for _, name := range s.readLines(HistoryFile) {
		if seen[name] {
			continue
		}
		seen[name] = true
		history = append(history, name)
		if len(history) == HistoryLimit {
			break
		}
	}
	return history
}

// RecordHistory moves name to the front of the history, capped at HistoryLimit.
func (s *Store) RecordHistory(name string) error {
	if name == "" {
		return fmt.Errorf("history: empty session name")
	}
	history := []string{name}
	for _, h := range s.LoadHistory() {
		if h == name {
			continue
		}
		if len(history) == HistoryLimit {
			break
		}
		history = append(history, h)
	}
	return s.writeLines(HistoryFile, history)
}

// LoadTemplates returns templates in file order. Malformed lines are dropped.
func (s *Store) LoadTemplates() []model.Template {
	var templates []model.Template
	for i, line := range s.readLines(TemplatesFile) {
		t, ok := parseTemplate(line)
		if !ok {
			s.log.Debug("dropping malformed template record",
				slog.Int("line", i+1), slog.String("record", line))
			continue
		}
		templates = append(templates, t)
	}
	return templates
}

// AppendTemplate adds t after the existing templates.
func (s *Store) AppendTemplate(t model.Template) error {
	if err := t.Validate(); err != nil {
		return err
	}
	lines := s.readLines(TemplatesFile)
	lines = append(lines, formatTemplate(t))
	return s.writeLines(TemplatesFile, lines)
}

func parseTemplate(line string) (model.Template, bool) {
	parts := strings.Split(line, templateSep)
	if len(parts) < 2 || len(parts) > 3 {
		return model.Template{}, false
	}
	t := model.Template{
		Name: strings.TrimSpace(parts[0]),
		Dir:  strings.TrimSpace(parts[1]),
	}
	// The command field may be left off entirely.
	if len(parts) == 3 {
		t.Command = strings.TrimSpace(parts[2])
	}
	if t.Name == "" || t.Dir == "" {
		return model.Template{}, false
	}
	return t, true
}

func formatTemplate(t model.Template) string {
	return strings.Join([]string{t.Name, t.Dir, t.Command}, templateSep)
}

// readLines returns the non-empty lines of a state file.
// Missing or unreadable files yield nil.
func (s *Store) readLines(name string) []string {
	path := filepath.Join(s.dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.log.Warn("state file unreadable, using empty set",
				slog.String("path", path), slog.String("error", err.Error()))
		}
		return nil
	}
	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	if err := sc.Err(); err != nil {
		s.log.Warn("state file truncated on read",
			slog.String("path", path), slog.String("error", err.Error()))
	}
	return lines
}

// writeLines atomically replaces a state file with one record per line.
func (s *Store) writeLines(name string, lines []string) error {
	var buf bytes.Buffer
	for _, l := range lines {
		buf.WriteString(l)
		buf.WriteByte('\n')
	}
	if _, err := paths.EnsureDir(s.dir); err != nil {
		return err
	}
	path := filepath.Join(s.dir, name)
	if err := writeFileAtomic(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("save %s: %w", name, err)
	}
	s.log.Debug("state file saved", slog.String("path", path), slog.Int("records", len(lines)))
	return nil
}

// writeFileAtomic writes data to a temp file in the target's directory,
// fsyncs it and renames it over path.
func writeFileAtomic(path string, data []byte, perm os.FileMode) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmpPath, perm); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}
