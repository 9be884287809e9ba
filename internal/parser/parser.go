// Package parser summarises note text for the catalog: title, tags, note
// references and a short plain snippet. A note may open with a YAML header
// between "---" lines carrying a title and tags.
package parser

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// SnippetRunes bounds the length of Summary.Snippet.
const SnippetRunes = 200

// titleRunes bounds a title taken from the first line of text.
const titleRunes = 80

var (
	refRe = regexp.MustCompile(`\[\[(.*?)\]\]`)
	tagRe = regexp.MustCompile(`(?:^|\s)#([A-Za-z][A-Za-z0-9_/-]*)`)
)

// Header is the optional YAML block at the top of a note.
type Header struct {
	Title string   `yaml:"title"`
	Tags  []string `yaml:"tags"`
}

// Summary describes a note's text.
type Summary struct {
	Header  *Header
	Body    string
	Title   string
	Tags    []string
	Refs    []string
	Snippet string
}

// Summarize derives a Summary from plain note text. It never fails: a
// malformed header is treated as body text.
func Summarize(text string) *Summary {
	h, body := splitHeader(text)
	title, rest := deriveTitle(h, body)
	return &Summary{
		Header:  h,
		Body:    body,
		Title:   title,
		Tags:    extractTags(body, h),
		Refs:    extractRefs(body),
		Snippet: snippet(rest, SnippetRunes),
	}
}

// splitHeader separates a leading YAML header from the body.
func splitHeader(text string) (*Header, string) {
	const delim = "---"
	trimmed := strings.TrimLeft(text, "\n\r")
	if !strings.HasPrefix(trimmed, delim+"\n") {
		return nil, text
	}
	rest := trimmed[len(delim)+1:]
	end := strings.Index(rest, "\n"+delim)
	if end < 0 {
		return nil, text
	}
	var h Header
	if err := yaml.Unmarshal([]byte(rest[:end]), &h); err != nil {
		return nil, text
	}
	body := rest[end+1+len(delim):]
	return &h, strings.TrimLeft(body, "\n\r")
}

// extractRefs returns deduplicated [[note]] references; "[[Target|label]]"
// yields Target.
func extractRefs(body string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, m := range refRe.FindAllStringSubmatch(body, -1) {
		target, _, _ := strings.Cut(m[1], "|")
		target = strings.TrimSpace(target)
		if target == "" {
			continue
		}
		if _, ok := seen[target]; ok {
			continue
		}
		seen[target] = struct{}{}
		out = append(out, target)
	}
	return out
}

// extractTags merges header tags with inline #tags, header first.
func extractTags(body string, h *Header) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(t string) {
		t = strings.TrimSpace(strings.TrimPrefix(t, "#"))
		if t == "" {
			return
		}
		if _, dup := seen[t]; dup {
			return
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	if h != nil {
		for _, t := range h.Tags {
			add(t)
		}
	}
	for _, m := range tagRe.FindAllStringSubmatch(body, -1) {
		add(m[1])
	}
	return out
}

// deriveTitle picks the header title, else a "# " heading, else the first
// non-empty line. It also returns the body with a line-derived title removed
// so the snippet does not repeat it.
func deriveTitle(h *Header, body string) (string, string) {
	if h != nil && strings.TrimSpace(h.Title) != "" {
		return strings.TrimSpace(h.Title), body
	}
	lines := strings.Split(body, "\n")
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:]), body
		}
	}
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		return truncate(trimmed, titleRunes), strings.Join(lines[i+1:], "\n")
	}
	return "", body
}

// snippet collapses whitespace and cuts s to at most n runes.
func snippet(s string, n int) string {
	return truncate(strings.Join(strings.Fields(s), " "), n)
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:n-1])) + "…"
}
