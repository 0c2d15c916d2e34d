// Package script models a single schema upgrade script: an ordered list of
// SQL statements that move a database from one schema version to the next.
package script

import (
	"fmt"
	"regexp"
	"strconv"
)

// Script is one step of an upgrade chain. Statements hold the executable SQL
// in file order; Annotations hold the data-loss notes declared in the file's
// comments.
type Script struct {
	Name        string   `json:"name"`
	From        int      `json:"from"`
	To          int      `json:"to"`
	Statements  []string `json:"-"`
	Annotations []string `json:"annotations,omitempty"`
}

// Filename returns the canonical file name for an upgrade step.
func Filename(from, to int) string {
	return fmt.Sprintf("upgrade_%d_to_%d.sql", from, to)
}

var filenameRe = regexp.MustCompile(`^upgrade_(\d+)_to_(\d+)\.sql$`)

// ParseFilename extracts the version pair from an upgrade script file name.
// Names that do not match upgrade_<from>_to_<to>.sql report ok=false.
func ParseFilename(name string) (from, to int, ok bool) {
	m := filenameRe.FindStringSubmatch(name)
	if m == nil {
		return 0, 0, false
	}
	from, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, 0, false
	}
	to, err = strconv.Atoi(m[2])
	if err != nil {
		return 0, 0, false
	}
	return from, to, true
}

// Validate checks the conventions every upgrade script has to follow: the
// step advances the version by exactly one, there is at least one statement,
// and the final statement (and only the final statement) sets the stored
// schema version to the script's target.
func (s Script) Validate() error {
	if s.To != s.From+1 {
		return fmt.Errorf("script %s: advances %d to %d, steps must advance by exactly one", s.Name, s.From, s.To)
	}
	if len(s.Statements) == 0 {
		return fmt.Errorf("script %s: no statements", s.Name)
	}
	updates := 0
	for _, stmt := range s.Statements {
		if UpdatesVersion(stmt) {
			updates++
		}
	}
	if updates != 1 {
		return fmt.Errorf("script %s: %d statements write the version table, want exactly 1", s.Name, updates)
	}
	last := s.Statements[len(s.Statements)-1]
	to, ok := VersionUpdate(last)
	if !ok {
		return fmt.Errorf("script %s: final statement must set the schema version", s.Name)
	}
	if to != s.To {
		return fmt.Errorf("script %s: final statement sets schema version %d, want %d", s.Name, to, s.To)
	}
	return nil
}
