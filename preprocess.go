package compose

import (
	"bufio"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"slices"
	"strings"
)

// maxIncludeDepth bounds #include recursion; deeper nesting is reported
// as a syntax error at the offending directive.
const maxIncludeDepth = 16

// lineMarker is emitted around included text so compiler diagnostics can
// be mapped back to library files. WGSL has no #line directive, so the
// marker is a comment.
func lineMarker(line int, file string) string {
	return fmt.Sprintf("// #line %d %q", line, file)
}

// preprocessor expands #include and #define directives of program sources
// read from a library file system. Include names are paths from the
// library root.
type preprocessor struct {
	fsys    fs.FS
	defines map[string]string
}

// process returns the expanded source of file with every define applied.
func (p *preprocessor) process(file string) (string, error) {
	local := make(map[string]string)
	var b strings.Builder
	if err := p.expand(&b, file, 0, local); err != nil {
		return "", err
	}

	// Registry defines win over source defines.
	all := make(map[string]string, len(local)+len(p.defines))
	for k, v := range local {
		all[k] = v
	}
	for k, v := range p.defines {
		all[k] = v
	}
	names := make([]string, 0, len(all))
	for k := range all {
		names = append(names, k)
	}
	slices.Sort(names)

	var out strings.Builder
	for _, k := range names {
		fmt.Fprintf(&out, "// #define %s %s\n", k, all[k])
	}
	out.WriteString(substitute(b.String(), names, all))
	return out.String(), nil
}

func (p *preprocessor) expand(b *strings.Builder, file string, depth int, defines map[string]string) error {
	src, err := fs.ReadFile(p.fsys, file)
	if err != nil {
		return fmt.Errorf("compose: read program %s: %w", file, err)
	}
	b.WriteString(lineMarker(1, file))
	b.WriteByte('\n')

	sc := bufio.NewScanner(strings.NewReader(string(src)))
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		stripped := strings.TrimSpace(text)
		switch {
		case strings.HasPrefix(stripped, "#include"):
			name, ok := quoted(stripped)
			if !ok || depth >= maxIncludeDepth {
				return &SyntaxError{File: file, Line: line}
			}
			if err := p.expand(b, path.Clean(name), depth+1, defines); err != nil {
				return err
			}
			b.WriteString(lineMarker(line+1, file))
		case strings.HasPrefix(stripped, "#define"):
			fields := strings.Fields(stripped)
			if len(fields) < 2 || !isIdent(fields[1]) {
				return &SyntaxError{File: file, Line: line}
			}
			defines[fields[1]] = strings.Join(fields[2:], " ")
			b.WriteString("// " + stripped)
		default:
			b.WriteString(text)
		}
		b.WriteByte('\n')
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("compose: scan program %s: %w", file, err)
	}
	return nil
}

// quoted returns the text between the first pair of double quotes.
func quoted(s string) (string, bool) {
	start := strings.IndexByte(s, '"')
	if start < 0 {
		return "", false
	}
	end := strings.IndexByte(s[start+1:], '"')
	if end < 0 {
		return "", false
	}
	name := s[start+1 : start+1+end]
	return name, name != ""
}

var identRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func isIdent(s string) bool { return identRE.MatchString(s) }

// substitute replaces whole-word occurrences of each name outside comment
// lines.
func substitute(src string, names []string, values map[string]string) string {
	if len(names) == 0 {
		return src
	}
	res := make([]*regexp.Regexp, len(names))
	for i, n := range names {
		res[i] = regexp.MustCompile(`\b` + regexp.QuoteMeta(n) + `\b`)
	}
	lines := strings.Split(src, "\n")
	for i, l := range lines {
		if strings.HasPrefix(strings.TrimSpace(l), "//") {
			continue
		}
		for j, re := range res {
			l = re.ReplaceAllLiteralString(l, values[names[j]])
		}
		lines[i] = l
	}
	return strings.Join(lines, "\n")
}
