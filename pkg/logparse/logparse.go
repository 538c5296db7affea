// Package logparse turns the raw backend log text into structured entries.
//
// The backend resends its whole log on every poll, so parsing is a pure
// function of the input: the same text always yields the same entries.
package logparse

import (
	"regexp"
	"strings"

	"github.com/Ulysse-Dev-Serre/App-Maker/pkg/models"
)

// Parser converts a raw log blob into ordered entries.
type Parser interface {
	Parse(raw string) []models.LogEntry
}

// ParserFunc adapts a function to the Parser interface.
type ParserFunc func(raw string) []models.LogEntry

// Parse calls f(raw).
func (f ParserFunc) Parse(raw string) []models.LogEntry { return f(raw) }

const levels = `INFO|WARNING|ERROR|DEBUG|CRITICAL`

var (
	// 2025-07-17 11:46:33,581 - INFO - Server started
	strictLine = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2},\d{3}) - (` + levels + `) - (.*)$`)
	// anything with a level token, e.g. "Something ERROR: disk full"
	looseLine = regexp.MustCompile(`(` + levels + `):?\s*(.*)$`)
)

// Grammar is the default Parser: a strict python-logging line format with
// a looser level-token fallback.
type Grammar struct {
	strict *regexp.Regexp
	loose  *regexp.Regexp
}

// NewGrammar returns the default grammar.
func NewGrammar() *Grammar {
	return &Grammar{strict: strictLine, loose: looseLine}
}

var defaultParser Parser = NewGrammar()

// Default returns the package-level parser.
func Default() Parser { return defaultParser }

// Parse parses raw with the default grammar.
func Parse(raw string) []models.LogEntry {
	return defaultParser.Parse(raw)
}

// Parse splits raw into lines, drops blank ones and parses the rest.
func (g *Grammar) Parse(raw string) []models.LogEntry {
	if raw == "" {
		return nil
	}
	lines := strings.Split(raw, "\n")
	entries := make([]models.LogEntry, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSuffix(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		entries = append(entries, g.ParseLine(line))
	}
	return entries
}

// ParseLine parses a single non-blank line. It never fails: lines that
// match neither pattern become UNKNOWN entries.
func (g *Grammar) ParseLine(line string) models.LogEntry {
	if m := g.strict.FindStringSubmatch(line); m != nil {
		return models.LogEntry{Timestamp: m[1], Level: models.LogLevel(m[2]), Message: m[3]}
	}
	if m := g.loose.FindStringSubmatch(line); m != nil {
		return models.LogEntry{Timestamp: models.NoTimestamp, Level: models.LogLevel(m[1]), Message: m[2]}
	}
	return models.LogEntry{Timestamp: models.NoTimestamp, Level: models.LevelUnknown, Message: line}
}

// Summary counts entries per level.
type Summary map[models.LogLevel]int

// Summarize counts the entries of each level.
func Summarize(entries []models.LogEntry) Summary {
	s := make(Summary)
	for _, e := range entries {
		s[e.Level]++
	}
	return s
}

// Errors returns the number of ERROR and CRITICAL entries.
func (s Summary) Errors() int {
	return s[models.LevelError] + s[models.LevelCritical]
}

// Tail returns at most the last n entries.
func Tail(entries []models.LogEntry, n int) []models.LogEntry {
	if n <= 0 || len(entries) <= n {
		return entries
	}
	return entries[len(entries)-n:]
}
