package api

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"

	"github.com/james-see/skipper/pkg/program"
	"github.com/james-see/skipper/pkg/registry"
)

const (
	sourceMemory = "memory"
	sourceFile   = "file"
)

type staged struct {
	track   string
	payload json.RawMessage
	source  string
}

// Store keeps staged programs by track name (case-insensitive) and the
// registered instances. Programs not staged in memory are looked up in the
// staging directory.
type Store struct {
	mu       sync.RWMutex
	programs map[string]staged
	plugins  map[string]string
	dir      string
	log      *logrus.Entry
}

// NewStore creates a store backed by dir; an empty dir disables files
func NewStore(dir string, logger *logrus.Logger) *Store {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Store{
		programs: make(map[string]staged),
		plugins:  make(map[string]string),
		dir:      dir,
		log:      logger.WithField("component", "api"),
	}
}

// Stage validates payload and stages it for track. The payload is also
// written to the staging directory so later sessions can pick it up.
func (s *Store) Stage(track string, payload []byte) (*program.Program, error) {
	if track == "" {
		return nil, errors.New("track name required for each stage")
	}
	p, err := validate(payload)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.programs[strings.ToLower(track)] = staged{track: track, payload: payload, source: sourceMemory}
	s.mu.Unlock()

	if s.dir != "" {
		if err := s.writeFile(track, payload); err != nil {
			s.log.WithError(err).WithField("track", track).Warn("failed to write staging file")
		}
	}

	s.log.WithFields(logrus.Fields{
		"track": track,
		"name":  p.Name(),
		"notes": p.NoteCount,
	}).Info("staged program")
	return p, nil
}

func validate(payload []byte) (*program.Program, error) {
	p, _, err := program.Parse(payload)
	if err != nil {
		return nil, err
	}
	if !program.ValidBarLength(p.LengthBars) {
		return nil, fmt.Errorf("invalid bar length %g, must be power-of-2: 0.125, 0.25, 0.5, 1, 2, 4, 8, 16", p.LengthBars)
	}
	if math.Abs(p.LengthBeats-p.LengthBars*program.BeatsPerBar) > 1e-9 {
		return nil, fmt.Errorf("lengthBeats %g does not match %g bars", p.LengthBeats, p.LengthBars)
	}
	return p, nil
}

// Register records an instance on track and returns the program staged
// for it, if any.
func (s *Store) Register(uuid, track string) ([]byte, bool) {
	s.mu.Lock()
	s.plugins[uuid] = track
	s.mu.Unlock()

	payload, ok := s.Lookup(track)
	s.log.WithFields(logrus.Fields{
		"uuid":    uuid,
		"track":   track,
		"program": ok,
	}).Info("registered plugin")
	return payload, ok
}

// Lookup returns the program for track: memory first, then the staging
// directory. File hits are cached in memory.
func (s *Store) Lookup(track string) ([]byte, bool) {
	key := strings.ToLower(track)
	s.mu.RLock()
	st, ok := s.programs[key]
	s.mu.RUnlock()
	if ok {
		return st.payload, true
	}

	payload, err := s.readFile(track)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.log.WithError(err).WithField("track", track).Warn("failed to load staging file")
		}
		return nil, false
	}

	s.mu.Lock()
	s.programs[key] = staged{track: track, payload: payload, source: sourceFile}
	s.mu.Unlock()
	return payload, true
}

// Programs lists staged programs sorted by track
func (s *Store) Programs() []registry.ProgramInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]registry.ProgramInfo, 0, len(s.programs))
	for _, st := range s.programs {
		info := registry.ProgramInfo{Track: st.track, Source: st.source}
		if p, _, err := program.Parse(st.payload); err == nil {
			info.Name = p.Name()
			info.Notes = p.NoteCount
			info.LengthBars = p.LengthBars
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Track < out[j].Track })
	return out
}

// Plugins lists registered instances sorted by uuid
func (s *Store) Plugins() []registry.PluginInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]registry.PluginInfo, 0, len(s.plugins))
	for uuid, track := range s.plugins {
		out = append(out, registry.PluginInfo{UUID: uuid, Track: track})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UUID < out[j].UUID })
	return out
}

func fileName(track string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", string(os.PathSeparator), "_")
	return r.Replace(track) + ".json"
}

func (s *Store) writeFile(track string, payload []byte) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}
	return os.WriteFile(filepath.Join(s.dir, fileName(track)), payload, 0644)
}

// readFile finds <track>.json in the staging directory by exact name,
// then case-insensitively, then by either name containing the other.
func (s *Store) readFile(track string) ([]byte, error) {
	if s.dir == "" || track == "" {
		return nil, os.ErrNotExist
	}

	exact := filepath.Join(s.dir, fileName(track))
	if data, err := os.ReadFile(exact); err == nil {
		return data, nil
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, strings.TrimSuffix(e.Name(), ".json"))
		}
	}

	lower := strings.ToLower(track)
	match := ""
	for _, name := range names {
		if strings.EqualFold(name, track) {
			match = name
			break
		}
	}
	if match == "" {
		for _, name := range names {
			n := strings.ToLower(name)
			if strings.Contains(lower, n) || strings.Contains(n, lower) {
				match = name
				break
			}
		}
	}
	if match == "" {
		return nil, os.ErrNotExist
	}

	s.log.WithFields(logrus.Fields{"track": track, "file": match}).Info("fuzzy staging file match")
	return os.ReadFile(filepath.Join(s.dir, match+".json"))
}
