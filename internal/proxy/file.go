package proxy

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileStore keeps proxy addresses in a plain text file, one per line.
// Blank lines and lines starting with '#' are ignored when loading and kept
// verbatim when the file is changed.
type FileStore struct {
	mu   sync.Mutex
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// NormalizeAddress trims the address and prefixes http:// when no scheme is given.
func NormalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return ""
	}
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	return addr
}

// Load reads the list. A missing file is an empty list.
func (s *FileStore) Load() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lines, err := s.readLines()
	if err != nil {
		return nil, err
	}
	return addresses(lines), nil
}

// Append adds addresses that are not already listed to the end of the file
// and returns the new list.
func (s *FileStore) Append(addrs ...string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lines, err := s.readLines()
	if err != nil {
		return nil, err
	}
	listed := make(map[string]struct{})
	for _, a := range addresses(lines) {
		listed[a] = struct{}{}
	}

	added := 0
	for _, a := range addrs {
		norm := NormalizeAddress(a)
		if norm == "" {
			continue
		}
		if _, ok := listed[norm]; ok {
			continue
		}
		listed[norm] = struct{}{}
		lines = append(lines, strings.TrimSpace(a))
		added++
	}
	if added > 0 {
		if err := s.write(lines); err != nil {
			return nil, err
		}
	}
	return addresses(lines), nil
}

// Remove drops the lines holding the given addresses and returns the remaining list.
func (s *FileStore) Remove(addrs ...string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lines, err := s.readLines()
	if err != nil {
		return nil, err
	}
	drop := make(map[string]struct{}, len(addrs))
	for _, a := range addrs {
		drop[NormalizeAddress(a)] = struct{}{}
	}

	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if addr, ok := parseLine(line); ok {
			if _, gone := drop[addr]; gone {
				continue
			}
		}
		kept = append(kept, line)
	}
	if len(kept) != len(lines) {
		if err := s.write(kept); err != nil {
			return nil, err
		}
	}
	return addresses(kept), nil
}

func (s *FileStore) readLines() ([]string, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open proxy file: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read proxy file: %w", err)
	}
	return lines, nil
}

// parseLine returns the normalized address held by a line, if any.
func parseLine(line string) (string, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", false
	}
	return NormalizeAddress(line), true
}

func addresses(lines []string) []string {
	var addrs []string
	for _, line := range lines {
		if addr, ok := parseLine(line); ok {
			addrs = append(addrs, addr)
		}
	}
	return dedupe(addrs)
}

func (s *FileStore) write(lines []string) error {
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".proxies-*")
	if err != nil {
		return fmt.Errorf("failed to create temp proxy file: %w", err)
	}
	if _, err := tmp.WriteString(b.String()); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write proxy file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write proxy file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace proxy file: %w", err)
	}
	return nil
}
