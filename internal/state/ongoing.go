// Package state holds the small on-disk records both loops consult: which
// conversations are still being written, which were archived, and how often
// archiving a transcript has failed.
package state

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const legacyOngoingPrefix = "ongoing_conversation_id"

// OngoingSet is the set of conversation ids still being written upstream.
type OngoingSet map[string]struct{}

func (s OngoingSet) Contains(id string) bool {
	_, ok := s[id]
	return ok
}

func (s OngoingSet) IDs() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	return out
}

// LoadOngoing reads every marker: each *.txt file in ongoingDir, plus the
// legacy ongoing_conversation_id*.txt files in memoryDir. A marker holds one
// conversation id per line. Missing directories yield an empty set.
func LoadOngoing(memoryDir, ongoingDir string) (OngoingSet, error) {
	set := make(OngoingSet)

	var markers []string
	if ongoingDir != "" {
		matches, err := filepath.Glob(filepath.Join(ongoingDir, "*.txt"))
		if err != nil {
			return nil, err
		}
		markers = append(markers, matches...)
	}
	if memoryDir != "" {
		matches, err := filepath.Glob(filepath.Join(memoryDir, legacyOngoingPrefix+"*.txt"))
		if err != nil {
			return nil, err
		}
		markers = append(markers, matches...)
	}

	for _, path := range markers {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("read ongoing marker %s: %w", path, err)
		}
		scanner := bufio.NewScanner(bytes.NewReader(data))
		for scanner.Scan() {
			if id := strings.TrimSpace(scanner.Text()); id != "" {
				set[id] = struct{}{}
			}
		}
	}
	return set, nil
}

// IsMarker reports whether a file name in the memory directory is state
// rather than a transcript.
func IsMarker(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	return strings.HasPrefix(name, legacyOngoingPrefix) && strings.HasSuffix(name, ".txt")
}
