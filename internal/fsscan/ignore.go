package fsscan

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
)

// Directories that are never worth scanning, ignore files or not.
var alwaysIgnoredDirs = map[string]struct{}{
	".git":         {},
	"node_modules": {},
	".hookrun":     {},
}

// ignoreRule is a single compiled pattern from an ignore file, scoped to the
// directory the ignore file lives in.
type ignoreRule struct {
	matcher  glob.Glob
	baseDir  string
	dirOnly  bool
	anchored bool
}

// ignoreSet is the stack of ignore rules in effect for a directory during a
// walk. Nested ignore files append to the parent's rules.
type ignoreSet struct {
	rules []ignoreRule
}

// loadIgnoreFile parses the .gitignore in the given directory, if present,
// and returns an ignoreSet extending the parent's rules. Negation patterns
// ("!...") are not supported and are skipped.
func (s *ignoreSet) loadIgnoreFile(dir string) *ignoreSet {
	file, err := os.Open(filepath.Join(dir, ".gitignore"))
	if err != nil {
		return s
	}
	defer file.Close()

	extended := &ignoreSet{rules: s.rules}

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "!") {
			continue
		}

		rule, ok := compileIgnoreLine(line, dir)
		if !ok {
			continue
		}

		extended.rules = append(extended.rules, rule)
	}

	return extended
}

func compileIgnoreLine(line string, baseDir string) (ignoreRule, bool) {
	rule := ignoreRule{baseDir: baseDir}

	if strings.HasSuffix(line, "/") {
		rule.dirOnly = true
		line = strings.TrimSuffix(line, "/")
	}

	if strings.HasPrefix(line, "/") {
		rule.anchored = true
		line = strings.TrimPrefix(line, "/")
	} else if strings.Contains(line, "/") {
		// A pattern with an inner slash is anchored to the ignore file's
		// directory, matching gitignore semantics.
		rule.anchored = true
	}

	matcher, err := glob.Compile(line, '/')
	if err != nil {
		return ignoreRule{}, false
	}

	rule.matcher = matcher

	return rule, true
}

// ignored reports whether the given path is excluded by the rule set.
func (s *ignoreSet) ignored(path string, isDir bool) bool {
	base := filepath.Base(path)
	if _, ok := alwaysIgnoredDirs[base]; ok && isDir {
		return true
	}

	for _, rule := range s.rules {
		if rule.dirOnly && !isDir {
			continue
		}

		rel, err := filepath.Rel(rule.baseDir, path)
		if err != nil || strings.HasPrefix(rel, "..") {
			continue
		}

		rel = filepath.ToSlash(rel)

		if rule.anchored {
			if rule.matcher.Match(rel) {
				return true
			}

			continue
		}

		// Unanchored patterns match against every path segment suffix.
		segments := strings.Split(rel, "/")
		for i := range segments {
			if rule.matcher.Match(strings.Join(segments[i:], "/")) {
				return true
			}
		}
	}

	return false
}
