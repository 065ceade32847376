// Package parser extracts structured file edits from raw model responses.
//
// The model is instructed to emit generated files as fenced code blocks whose
// info string carries a language tag and a project-relative path, separated by
// a colon:
//
//	```javascript:src/index.js
//	console.log("hello");
//	```
//
// Everything outside those blocks is treated as the human-readable explanation.
package parser

import (
	"regexp"
	"strings"
)

// FileEdit is one extracted file: a project-relative path, the full file
// content, and a normalized language tag.
type FileEdit struct {
	Path     string
	Content  string
	Language string
}

// Matches fenced blocks whose info string is "language:path". The path runs to
// the end of the info line; the body runs to the closing fence.
var fileBlockRe = regexp.MustCompile("(?s)```([A-Za-z0-9_+.#-]+):([^\n`]*)\n(.*?)```")

// languageAliases maps recognized language tags to canonical names. Unlisted
// tags normalize to "text".
var languageAliases = map[string]string{
	"js":         "javascript",
	"javascript": "javascript",
	"ts":         "typescript",
	"typescript": "typescript",
	"py":         "python",
	"python":     "python",
	"json":       "json",
	"html":       "html",
	"css":        "css",
	"md":         "md",
}

// NormalizeLanguage maps a raw language tag to its canonical form.
// The mapping is total: unknown tags yield "text".
func NormalizeLanguage(lang string) string {
	if canonical, ok := languageAliases[strings.ToLower(strings.TrimSpace(lang))]; ok {
		return canonical
	}
	return "text"
}

// Parse splits a raw model response into extracted file edits and the
// explanation text that remains once the file blocks are removed.
//
// A block is accepted only when both its path and its content are non-empty;
// anything else is dropped silently so placeholder files never materialize.
// Duplicate paths are preserved in order - the store applies them
// last-write-wins.
func Parse(text string) ([]FileEdit, string) {
	var edits []FileEdit

	for _, m := range fileBlockRe.FindAllStringSubmatch(text, -1) {
		path := strings.TrimSpace(m[2])
		content := strings.TrimRight(m[3], "\n")
		if path == "" || strings.TrimSpace(content) == "" {
			continue
		}
		edits = append(edits, FileEdit{
			Path:     path,
			Content:  content,
			Language: NormalizeLanguage(m[1]),
		})
	}

	explanation := fileBlockRe.ReplaceAllString(text, "")
	explanation = blankRunRe.ReplaceAllString(explanation, "\n\n")
	return edits, strings.TrimSpace(explanation)
}

// Removing a block leaves its surrounding newlines behind; collapse the runs
// so the explanation reads as contiguous prose.
var blankRunRe = regexp.MustCompile(`\n{3,}`)
