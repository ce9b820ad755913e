package routing

import (
	"bufio"
	"fmt"
	"io"
	"slices"
	"strings"
)

const (
	keywordFrontend   = "frontend"
	keywordBind       = "bind"
	keywordUseBackend = "use_backend"
	keywordBackend    = "backend"
	keywordServer     = "server"
)

// maxLineSize bounds a single routing file line.
const maxLineSize = 1 << 20

type directive struct {
	line    int
	keyword string
	args    []string
	rule    *RoutingRule
}

// scan tokenizes src into directives. Blank lines and comments are dropped,
// unknown keywords are kept and ignored later. use_backend lines that do not
// test the Host header are dropped too. Only malformed host rules fail the
// scan.
func scan(src io.Reader) ([]directive, error) {
	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var directives []directive
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		text := scanner.Text()

		fields := strings.Fields(text)
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}

		d := directive{
			line:    lineNo,
			keyword: fields[0],
			args:    fields[1:],
		}

		if d.keyword == keywordUseBackend {
			rule, err := parseRule(lineNo, text, fields)
			if err != nil {
				return nil, err
			}
			if rule == nil {
				continue
			}
			d.rule = rule
		}

		directives = append(directives, d)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigUnreadable, err)
	}

	return directives, nil
}

// parseRule locates the host condition of a use_backend line:
//
//	use_backend <name> [if] [{] req.hdr(host) [-i] [-m str] <host>... [}]
//
// A nil rule without error means the line routes on something other than the
// Host header (path_beg, a named ACL, no condition) and plays no part here.
func parseRule(lineNo int, text string, fields []string) (*RoutingRule, error) {
	fail := func(reason string) error {
		return &SyntaxError{Line: lineNo, Text: strings.TrimSpace(text), Reason: reason}
	}

	if len(fields) < 2 || fields[1] == "if" || fields[1] == "unless" || fields[1] == "{" || fields[1] == "}" {
		return nil, fail("missing backend name")
	}

	cond := fields[2:]
	negated := false
	if len(cond) > 0 && (cond[0] == "if" || cond[0] == "unless") {
		negated = cond[0] == "unless"
		cond = cond[1:]
		if len(cond) == 0 {
			return nil, fail("empty condition")
		}
	}

	if len(cond) > 0 && cond[0] == "{" {
		if cond[len(cond)-1] != "}" {
			return nil, fail("unterminated { condition")
		}
		cond = cond[1 : len(cond)-1]
		if len(cond) == 0 {
			return nil, fail("empty condition")
		}
	}

	for _, tok := range cond {
		if tok == "{" || tok == "}" {
			return nil, fail("unbalanced braces")
		}
	}

	if !slices.ContainsFunc(cond, isHostFetch) {
		return nil, nil
	}

	if negated {
		return nil, fail("unless conditions are not supported")
	}

	if !isHostFetch(cond[0]) {
		return nil, fail("req.hdr(host) must open the condition")
	}

	rest := cond[1:]
	for len(rest) > 0 && strings.HasPrefix(rest[0], "-") {
		switch rest[0] {
		case "-m":
			if len(rest) < 2 {
				return nil, fail("-m needs a match method")
			}
			if rest[1] != "str" {
				return nil, fail("only exact host matching (-m str) is supported")
			}
			rest = rest[2:]
		default:
			rest = rest[1:]
		}
	}

	if len(rest) == 0 {
		return nil, fail("missing host value")
	}

	return &RoutingRule{
		Backend: fields[1],
		Hosts:   append([]string(nil), rest...),
		Line:    lineNo,
	}, nil
}

func isHostFetch(tok string) bool {
	return tok == "req.hdr(host)" || tok == "hdr(host)"
}
