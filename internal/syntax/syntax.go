// Package syntax wraps tree-sitter parsing for the languages the pipeline
// understands. Every structural operation in the system (chunking, metrics,
// patch application, validation) goes through this package so language
// support lives in exactly one place.
package syntax

import (
	"context"
	"fmt"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/xkilldash9x/suture-cli/api/schemas"
)

// ErrUnsupportedLanguage is returned for files outside the supported set.
var ErrUnsupportedLanguage = fmt.Errorf("unsupported language")

// Parser wraps a tree-sitter parser. A tree-sitter parser is not safe for
// concurrent use, so calls are serialized internally; construct one Parser
// per worker when parse throughput matters.
type Parser struct {
	mu     sync.Mutex
	parser *sitter.Parser
}

// NewParser creates a new tree-sitter backed parser.
func NewParser() *Parser {
	return &Parser{parser: sitter.NewParser()}
}

// Parse parses source and returns the syntax tree.
func (p *Parser) Parse(ctx context.Context, source []byte, lang schemas.Language) (*sitter.Tree, error) {
	tsLang, err := grammar(lang)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.parser.SetLanguage(tsLang)
	tree, err := p.parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	return tree, nil
}

// Validate parses source and reports whether the result is syntactically
// sound. A tree containing ERROR or MISSING nodes fails validation.
func (p *Parser) Validate(ctx context.Context, source []byte, lang schemas.Language) error {
	tree, err := p.Parse(ctx, source, lang)
	if err != nil {
		return err
	}
	defer tree.Close()
	root := tree.RootNode()
	if root.HasError() {
		if bad := firstErrorNode(root); bad != nil {
			return fmt.Errorf("syntax error near line %d", bad.StartPoint().Row+1)
		}
		return fmt.Errorf("syntax error")
	}
	return nil
}

// grammar returns the tree-sitter grammar for a language.
func grammar(lang schemas.Language) (*sitter.Language, error) {
	switch lang {
	case schemas.LangGo:
		return golang.GetLanguage(), nil
	case schemas.LangPython:
		return python.GetLanguage(), nil
	case schemas.LangJavaScript:
		return javascript.GetLanguage(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, lang)
	}
}

// Supported reports whether lang can be parsed.
func Supported(lang schemas.Language) bool {
	_, err := grammar(lang)
	return err == nil
}

// FunctionNodeTypes returns the node types that represent functions for a
// language.
func FunctionNodeTypes(lang schemas.Language) []string {
	switch lang {
	case schemas.LangGo:
		return []string{"function_declaration", "method_declaration"}
	case schemas.LangPython:
		return []string{"function_definition"}
	case schemas.LangJavaScript:
		return []string{"function_declaration", "function_expression", "arrow_function", "method_definition", "generator_function_declaration"}
	default:
		return nil
	}
}

// DecisionNodeTypes returns the node types that contribute to cyclomatic
// complexity.
func DecisionNodeTypes(lang schemas.Language) []string {
	switch lang {
	case schemas.LangGo:
		return []string{
			"if_statement",
			"for_statement",
			"expression_case",
			"type_case",
			"communication_case",
			"binary_expression", // only counted for && and ||
		}
	case schemas.LangPython:
		return []string{
			"if_statement",
			"elif_clause",
			"for_statement",
			"while_statement",
			"except_clause",
			"boolean_operator",
			"conditional_expression",
			"list_comprehension",
			"dictionary_comprehension",
			"set_comprehension",
			"generator_expression",
		}
	case schemas.LangJavaScript:
		return []string{
			"if_statement",
			"for_statement",
			"for_in_statement",
			"while_statement",
			"do_statement",
			"switch_case",
			"catch_clause",
			"ternary_expression",
			"binary_expression", // only counted for && and ||
		}
	default:
		return nil
	}
}

// IsBooleanOperator checks whether a binary-expression node is a short
// circuit operator, the only binary form that adds a decision point.
func IsBooleanOperator(node *sitter.Node, source []byte, lang schemas.Language) bool {
	switch node.Type() {
	case "boolean_operator":
		// Python's and/or node type.
		return true
	case "binary_expression":
	default:
		return false
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child == nil {
			continue
		}
		op := string(source[child.StartByte():child.EndByte()])
		if op == "&&" || op == "||" {
			return true
		}
	}
	return false
}

// FindNodes walks the subtree rooted at node and collects every node whose
// type is in types.
func FindNodes(node *sitter.Node, types []string) []*sitter.Node {
	wanted := make(map[string]struct{}, len(types))
	for _, t := range types {
		wanted[t] = struct{}{}
	}
	var out []*sitter.Node
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if _, ok := wanted[n.Type()]; ok {
			out = append(out, n)
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			if c := n.Child(i); c != nil {
				walk(c)
			}
		}
	}
	walk(node)
	return out
}

func firstErrorNode(node *sitter.Node) *sitter.Node {
	if node.IsError() || node.IsMissing() {
		return node
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child == nil || !child.HasError() {
			continue
		}
		if found := firstErrorNode(child); found != nil {
			return found
		}
	}
	return nil
}
