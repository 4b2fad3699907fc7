// Command sqllint checks that every SQL constant starts with a unique
// "--sql <uuid>" marker line, the format infra.SQLRunner requires to trace
// statements in logs.
package main

import (
	"flag"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	sqlKeywordPattern = regexp.MustCompile(`(?i)\b(select|insert|update|delete|with)\b`)
	uuidMarkerPattern = regexp.MustCompile(`^--sql [0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
)

type violation struct {
	file    string
	name    string
	line    int
	message string
}

func (v violation) String() string {
	return fmt.Sprintf("%s:%d %s (%s)", v.file, v.line, v.message, v.name)
}

type markerUse struct {
	file string
	name string
	line int
}

type linter struct {
	violations []violation
	markers    map[string][]markerUse
}

func main() {
	flag.Parse()
	targets := flag.Args()
	if len(targets) == 0 {
		targets = []string{"."}
	}
	os.Exit(run(targets, os.Stderr))
}

func run(targets []string, stderr io.Writer) int {
	l := &linter{markers: make(map[string][]markerUse)}
	for _, target := range targets {
		if err := l.walk(target); err != nil {
			fmt.Fprintf(stderr, "sqllint: %v\n", err)
			return 1
		}
	}
	violations := l.finish()
	if len(violations) == 0 {
		return 0
	}
	fmt.Fprintln(stderr, "sqllint: SQL audit marker problems")
	for _, v := range violations {
		fmt.Fprintf(stderr, "  %s\n", v)
	}
	return 1
}

func (l *linter) walk(target string) error {
	info, err := os.Stat(target)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		if isLintable(target) {
			return l.lintFile(target)
		}
		return nil
	}
	return filepath.WalkDir(target, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if path != target && (strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") || name == "vendor" || name == "testdata") {
				return filepath.SkipDir
			}
			return nil
		}
		if !isLintable(path) {
			return nil
		}
		return l.lintFile(path)
	})
}

// isLintable skips tests, which may hold deliberately unmarked fixtures.
func isLintable(path string) bool {
	return filepath.Ext(path) == ".go" && !strings.HasSuffix(path, "_test.go")
}

func (l *linter) lintFile(path string) error {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, nil, parser.ParseComments)
	if err != nil {
		return err
	}
	ast.Inspect(file, func(n ast.Node) bool {
		vs, ok := n.(*ast.ValueSpec)
		if !ok {
			return true
		}
		for i, value := range vs.Values {
			bl, ok := value.(*ast.BasicLit)
			if !ok || bl.Kind != token.STRING {
				continue
			}
			raw, err := unquote(bl.Value)
			if err != nil || !sqlKeywordPattern.MatchString(raw) {
				continue
			}
			use := markerUse{file: path, line: fset.Position(bl.Pos()).Line, name: nameAt(vs.Names, i)}
			marker := firstLine(raw)
			if !uuidMarkerPattern.MatchString(marker) {
				l.violations = append(l.violations, violation{
					file:    use.file,
					line:    use.line,
					name:    use.name,
					message: "missing or invalid --sql <uuid> marker",
				})
				continue
			}
			l.markers[marker] = append(l.markers[marker], use)
		}
		return true
	})
	return nil
}

// finish reports markers shared by more than one statement and returns all
// violations in file order.
func (l *linter) finish() []violation {
	for marker, uses := range l.markers {
		if len(uses) < 2 {
			continue
		}
		for _, u := range uses[1:] {
			l.violations = append(l.violations, violation{
				file:    u.file,
				line:    u.line,
				name:    u.name,
				message: fmt.Sprintf("duplicate marker %q, first used by %s", strings.TrimPrefix(marker, "--sql "), uses[0].name),
			})
		}
	}
	sort.Slice(l.violations, func(i, j int) bool {
		if l.violations[i].file != l.violations[j].file {
			return l.violations[i].file < l.violations[j].file
		}
		return l.violations[i].line < l.violations[j].line
	})
	return l.violations
}

func firstLine(s string) string {
	s = strings.TrimLeft(s, "\n\r \t")
	if idx := strings.IndexAny(s, "\n\r"); idx >= 0 {
		return strings.TrimSpace(s[:idx])
	}
	return strings.TrimSpace(s)
}

func unquote(v string) (string, error) {
	if len(v) == 0 {
		return v, nil
	}
	if v[0] == '`' {
		return v[1 : len(v)-1], nil
	}
	return strconv.Unquote(v)
}

func nameAt(idents []*ast.Ident, i int) string {
	if i < len(idents) && idents[i] != nil {
		return idents[i].Name
	}
	return "_"
}
