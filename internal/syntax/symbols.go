package syntax

import (
	"context"
	"strings"
	"unicode"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/xkilldash9x/suture-cli/api/schemas"
)

// Function describes one function or method found in a source file.
type Function struct {
	Name     string
	Span     schemas.LineRange
	Exported bool
	HasDoc   bool
	Node     *sitter.Node
}

// Functions extracts every named function or method from source. The
// returned spans are 1-based and inclusive. Anonymous functions are skipped;
// they are never docstring targets and their complexity is attributed to the
// enclosing function.
func (p *Parser) Functions(ctx context.Context, source []byte, lang schemas.Language) ([]Function, error) {
	tree, err := p.Parse(ctx, source, lang)
	if err != nil {
		return nil, err
	}
	// The tree is retained by the returned nodes; callers own neither and
	// both are dropped together when the result goes out of scope.

	nodes := FindNodes(tree.RootNode(), FunctionNodeTypes(lang))
	funcs := make([]Function, 0, len(nodes))
	for _, node := range nodes {
		name := functionName(node, source)
		if name == "" {
			continue
		}
		funcs = append(funcs, Function{
			Name:     name,
			Span:     NodeSpan(node),
			Exported: isExported(name, lang),
			HasDoc:   hasDoc(node, source, lang),
			Node:     node,
		})
	}
	return funcs, nil
}

// NodeSpan converts a node's zero-based point range to a 1-based inclusive
// line range.
func NodeSpan(node *sitter.Node) schemas.LineRange {
	return schemas.LineRange{
		Start: int(node.StartPoint().Row) + 1,
		End:   int(node.EndPoint().Row) + 1,
	}
}

func functionName(node *sitter.Node, source []byte) string {
	if name := node.ChildByFieldName("name"); name != nil {
		return name.Content(source)
	}
	// An arrow function assigned to a variable takes the variable's name.
	if parent := node.Parent(); parent != nil && parent.Type() == "variable_declarator" {
		if name := parent.ChildByFieldName("name"); name != nil {
			return name.Content(source)
		}
	}
	return ""
}

// isExported reports whether a function is part of the file's public
// surface: capitalized for Go, not underscore-prefixed elsewhere.
func isExported(name string, lang schemas.Language) bool {
	if name == "" {
		return false
	}
	if lang == schemas.LangGo {
		return unicode.IsUpper(rune(name[0]))
	}
	return !strings.HasPrefix(name, "_")
}

// hasDoc reports whether the function carries documentation: a comment
// directly above for Go and JavaScript, a leading docstring for Python.
func hasDoc(node *sitter.Node, source []byte, lang schemas.Language) bool {
	if lang == schemas.LangPython {
		return hasPythonDocstring(node)
	}

	prev := node.PrevNamedSibling()
	if prev == nil || prev.Type() != "comment" {
		return false
	}
	// The comment must end on the line directly above the function.
	return prev.EndPoint().Row+1 == node.StartPoint().Row ||
		prev.EndPoint().Row == node.StartPoint().Row
}

func hasPythonDocstring(node *sitter.Node) bool {
	body := node.ChildByFieldName("body")
	if body == nil || body.NamedChildCount() == 0 {
		return false
	}
	first := body.NamedChild(0)
	if first == nil || first.Type() != "expression_statement" {
		return false
	}
	return first.NamedChildCount() > 0 && first.NamedChild(0).Type() == "string"
}
