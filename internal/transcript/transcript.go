// Package transcript reads the conversation files written by the chat
// front-end's saver filter.
package transcript

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/harunnryd/archivist/internal/naming"

	"gopkg.in/yaml.v3"
)

// Record is the conversation metadata derived from one transcript file.
type Record struct {
	ConversationID string
	Date           string
	Model          string
	User           string
	Title          string
	Body           string
}

type frontmatter struct {
	ConversationID string `yaml:"conversation_id"`
	Date           string `yaml:"date"`
	Model          string `yaml:"model"`
	User           string `yaml:"user"`
	Title          string `yaml:"title"`
}

var lineFieldRe = regexp.MustCompile(`(?i)^\s*(conversation_id|date|model|user|title)\s*:\s*"([^"]+)"`)

// Read loads path and parses its frontmatter. Missing or malformed
// frontmatter is not an error: the record falls back to model "default"
// and user "User". Only failing to read the file is reported.
func Read(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read transcript %s: %w", path, err)
	}

	rec := Parse(data)
	if rec.ConversationID == "" {
		rec.ConversationID = naming.ConversationID(filepath.Base(path))
	}
	return rec, nil
}

func Parse(data []byte) *Record {
	rec := &Record{Model: naming.DefaultModel, User: naming.DefaultUser}

	head, body, ok := split(data)
	if !ok {
		rec.Body = string(data)
		return rec
	}
	rec.Body = body

	var fm frontmatter
	if err := yaml.Unmarshal([]byte(head), &fm); err != nil {
		slog.Debug("Frontmatter is not valid YAML, scanning lines", "error", err)
		fm = scanLines(head)
	}

	if v := strings.TrimSpace(fm.ConversationID); v != "" {
		rec.ConversationID = v
	}
	if v := strings.TrimSpace(fm.Date); v != "" {
		rec.Date = v
	}
	if v := strings.TrimSpace(fm.Model); v != "" {
		rec.Model = v
	}
	if v := strings.TrimSpace(fm.User); v != "" {
		rec.User = v
	}
	rec.Title = strings.TrimSpace(fm.Title)
	return rec
}

// split returns the text between the first two "---" delimiter lines and
// whatever follows the second one.
func split(data []byte) (string, string, bool) {
	normalized := bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
	lines := strings.Split(string(normalized), "\n")

	start := -1
	for i, line := range lines {
		if strings.TrimSpace(line) != "---" {
			continue
		}
		if start < 0 {
			start = i
			continue
		}
		head := strings.Join(lines[start+1:i], "\n")
		body := strings.TrimLeft(strings.Join(lines[i+1:], "\n"), "\n")
		return head, body, true
	}
	return "", "", false
}

func scanLines(head string) frontmatter {
	var fm frontmatter
	for _, line := range strings.Split(head, "\n") {
		m := lineFieldRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		switch strings.ToLower(m[1]) {
		case "conversation_id":
			fm.ConversationID = m[2]
		case "date":
			fm.Date = m[2]
		case "model":
			fm.Model = m[2]
		case "user":
			fm.User = m[2]
		case "title":
			fm.Title = m[2]
		}
	}
	return fm
}
