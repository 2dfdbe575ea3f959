// Package audit implements the Audit Pipeline: parse a unified diff,
// flag candidate violations with deterministic rules, resolve each
// candidate against retrieved Golden-Path context, and compose a
// violation report.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/ofircohen205/aura-sub001/apierr"
)

// maxDiffBytes caps the size of a diff the Diff Parser will accept,
// rejecting anything larger rather than attempting to canonicalize it.
const maxDiffBytes = 2 << 20 // 2 MiB

// Hunk is one contiguous span of changed lines within a file.
type Hunk struct {
	StartLine int
	Lines     []Line
}

// Line is one line of a Hunk, tagged with how the diff changed it.
type Line struct {
	Number  int
	Kind    LineKind
	Content string
}

// LineKind distinguishes an added, removed, or context line.
type LineKind string

const (
	LineAdded   LineKind = "added"
	LineRemoved LineKind = "removed"
	LineContext LineKind = "context"
)

// FileDiff is one file's changes within a Diff.
type FileDiff struct {
	Path  string
	Hunks []Hunk
}

// Diff is a parsed, canonicalized unified diff.
type Diff struct {
	BaseHash string
	NewHash  string
	Files    []FileDiff
}

var secretPattern = regexp.MustCompile(`(?i)(api[_-]?key|secret|password|token)\s*[:=]\s*['"][^'"]{8,}['"]`)

// ParseDiff validates and canonicalizes a unified diff, rejecting it if
// it exceeds maxDiffBytes or contains an embedded secret matched by a
// simple pattern rule — edge-policy detection only, per spec.md's scope
// note that heavy secret scanning is out of scope.
func ParseDiff(raw []byte) (*Diff, error) {
	if len(raw) == 0 {
		return nil, apierr.Validation("diff is empty")
	}
	if len(raw) > maxDiffBytes {
		return nil, apierr.Validation("diff exceeds %d byte cap", maxDiffBytes)
	}
	if secretPattern.Match(raw) {
		return nil, apierr.Validation("diff appears to contain an embedded secret")
	}

	files, err := parseUnifiedDiff(string(raw))
	if err != nil {
		return nil, apierr.Wrap(apierr.KindValidation, "parse unified diff", err)
	}

	baseHash, newHash := contentHashes(raw)
	return &Diff{BaseHash: baseHash, NewHash: newHash, Files: files}, nil
}

func contentHashes(raw []byte) (base, new string) {
	var baseBuf, newBuf strings.Builder
	for _, line := range strings.Split(string(raw), "\n") {
		switch {
		case strings.HasPrefix(line, "-") && !strings.HasPrefix(line, "---"):
			baseBuf.WriteString(line)
			baseBuf.WriteByte('\n')
		case strings.HasPrefix(line, "+") && !strings.HasPrefix(line, "+++"):
			newBuf.WriteString(line)
			newBuf.WriteByte('\n')
		}
	}
	return hashString(baseBuf.String()), hashString(newBuf.String())
}

func hashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

var (
	fileHeaderPattern = regexp.MustCompile(`^\+\+\+ b/(.+)$`)
	hunkHeaderPattern = regexp.MustCompile(`^@@ -\d+(?:,\d+)? \+(\d+)(?:,\d+)? @@`)
)

func parseUnifiedDiff(raw string) ([]FileDiff, error) {
	var files []FileDiff
	var current *FileDiff
	var currentHunk *Hunk
	lineNo := 0

	for _, line := range strings.Split(raw, "\n") {
		if m := fileHeaderPattern.FindStringSubmatch(line); m != nil {
			if current != nil {
				if currentHunk != nil {
					current.Hunks = append(current.Hunks, *currentHunk)
					currentHunk = nil
				}
				files = append(files, *current)
			}
			current = &FileDiff{Path: m[1]}
			continue
		}
		if current == nil {
			continue
		}
		if m := hunkHeaderPattern.FindStringSubmatch(line); m != nil {
			if currentHunk != nil {
				current.Hunks = append(current.Hunks, *currentHunk)
			}
			start := atoiSafe(m[1])
			currentHunk = &Hunk{StartLine: start}
			lineNo = start
			continue
		}
		if currentHunk == nil {
			continue
		}

		switch {
		case strings.HasPrefix(line, "+"):
			currentHunk.Lines = append(currentHunk.Lines, Line{Number: lineNo, Kind: LineAdded, Content: line[1:]})
			lineNo++
		case strings.HasPrefix(line, "-"):
			currentHunk.Lines = append(currentHunk.Lines, Line{Number: lineNo, Kind: LineRemoved, Content: line[1:]})
		case strings.HasPrefix(line, " "):
			currentHunk.Lines = append(currentHunk.Lines, Line{Number: lineNo, Kind: LineContext, Content: line[1:]})
			lineNo++
		}
	}

	if current != nil {
		if currentHunk != nil {
			current.Hunks = append(current.Hunks, *currentHunk)
		}
		files = append(files, *current)
	}

	return files, nil
}

func atoiSafe(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return n
		}
		n = n*10 + int(r-'0')
	}
	return n
}
