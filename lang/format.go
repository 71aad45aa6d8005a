package lang

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/goccy/go-yaml"
)

// Format writes t back as template source. Tags are regenerated from the
// tree, so spacing inside tags is normalized and folded constants appear in
// their literal form.
func (t *Template) Format(_ context.Context, w io.Writer) error {
	var b strings.Builder

	formatNodes(&b, t, t.Content)

	_, err := io.WriteString(w, b.String())

	return err
}

func formatTag(b *strings.Builder, t *Template, typ, code string) {
	b.WriteString(t.StartDelim)
	b.WriteString(typ)

	if code != "" {
		b.WriteByte(' ')
		b.WriteString(code)
	}

	b.WriteString(t.EndDelim)
}

func formatNodes(b *strings.Builder, t *Template, nodes []Node) {
	for _, n := range nodes {
		formatNode(b, t, n)
	}
}

func formatNode(b *strings.Builder, t *Template, n Node) {
	switch n := n.(type) {
	case *Text:
		b.WriteString(n.Text)
	case *Print:
		formatTag(b, t, n.Kind().String(), FormatExpr(n.Obj))
	case *For:
		formatTag(b, t, "for", formatTarget(n.Target, true)+" in "+FormatExpr(n.Container))
		formatNodes(b, t, n.Content)
		formatTag(b, t, "end", "for")
	case *IfElIfElse:
		for _, br := range n.Branches {
			code := ""
			if br.Condition != nil {
				code = FormatExpr(br.Condition)
			}

			formatTag(b, t, br.Kind().String(), code)
			formatNodes(b, t, br.Content)
		}

		formatTag(b, t, "end", "if")
	case *Template:
		formatTag(b, t, "def", n.Name)
		formatNodes(b, t, n.Content)
		formatTag(b, t, "end", "def")
	case *Break, *Continue:
		formatTag(b, t, n.Kind().String(), "")
	case *Return:
		code := ""
		if n.Value != nil {
			code = FormatExpr(n.Value)
		}

		formatTag(b, t, "return", code)
	case *Render:
		formatTag(b, t, "render", formatCall(FormatExpr(n.Obj), n.Args))
	default:
		formatTag(b, t, "code", FormatStatement(n))
	}
}

var augmentedSymbols = map[Kind]string{
	KindStoreVar:    "=",
	KindAddVar:      "+=",
	KindSubVar:      "-=",
	KindMulVar:      "*=",
	KindTrueDivVar:  "/=",
	KindFloorDivVar: "//=",
	KindModVar:      "%=",
}

// FormatStatement returns the source of a statement as written in a code
// tag.
func FormatStatement(n Node) string {
	switch n := n.(type) {
	case *ChangeVar:
		return formatTarget(n.Target, true) + " " + augmentedSymbols[n.Op] + " " + FormatExpr(n.Value)
	case *DelVar:
		return "del " + n.Name
	}

	return FormatExpr(n)
}

// formatTarget renders an assignment target; top level unpacking needs no
// parentheses.
func formatTarget(n Node, top bool) string {
	u, ok := n.(*Unpack)
	if !ok {
		return FormatExpr(n)
	}

	parts := make([]string, len(u.Items))
	for i, item := range u.Items {
		parts[i] = formatTarget(item, false)
	}

	s := strings.Join(parts, ", ")
	if len(parts) == 1 {
		s += ","
	}

	if top && len(parts) > 1 {
		return s
	}

	return "(" + s + ")"
}

var binarySymbols = map[Kind]string{
	KindAdd:         "+",
	KindSub:         "-",
	KindMul:         "*",
	KindFloorDiv:    "//",
	KindTrueDiv:     "/",
	KindMod:         "%",
	KindEQ:          "==",
	KindNE:          "!=",
	KindLT:          "<",
	KindLE:          "<=",
	KindGT:          ">",
	KindGE:          ">=",
	KindContains:    "in",
	KindNotContains: "not in",
	KindAnd:         "and",
	KindOr:          "or",
}

// Binding strength of each operator level, loosest first.
const (
	precOr = iota + 1
	precAnd
	precNot
	precContains
	precCompare
	precAdd
	precMul
	precNeg
	precPostfix
	precAtom
)

func precedence(n Node) int {
	switch n.Kind() {
	case KindOr:
		return precOr
	case KindAnd:
		return precAnd
	case KindNot:
		return precNot
	case KindContains, KindNotContains:
		return precContains
	case KindEQ, KindNE, KindLT, KindLE, KindGT, KindGE:
		return precCompare
	case KindAdd, KindSub:
		return precAdd
	case KindMul, KindTrueDiv, KindFloorDiv, KindMod:
		return precMul
	case KindNeg:
		return precNeg
	case KindGetItem, KindGetAttr, KindGetSlice, KindCallFunc, KindCallMeth, KindCall:
		return precPostfix
	case KindConst:
		v := n.(*Const).Value
		if f, ok := asFloat(v); ok && isNumber(v) && math.Signbit(f) {
			return precNeg
		}
	}

	return precAtom
}

// operand renders n, parenthesized when it binds looser than min.
func operand(n Node, minPrec int) string {
	s := FormatExpr(n)
	if precedence(n) < minPrec {
		return "(" + s + ")"
	}

	return s
}

// FormatExpr returns the source of an expression.
func FormatExpr(n Node) string {
	switch n := n.(type) {
	case nil:
		return ""
	case *Const:
		return repr(n.Value)
	case *Var:
		return n.Name
	case *ListExpr:
		return "[" + joinExprs(n.Items) + "]"
	case *Unpack:
		return formatTarget(n, false)
	case *DictExpr:
		parts := make([]string, len(n.Items))
		for i, it := range n.Items {
			if it.Key == nil {
				parts[i] = "**" + FormatExpr(it.Value)
			} else {
				parts[i] = FormatExpr(it.Key) + ": " + FormatExpr(it.Value)
			}
		}

		return "{" + strings.Join(parts, ", ") + "}"
	case *ListComp:
		return "[" + FormatExpr(n.Item) + formatFor(n.Target, n.Container, n.Condition) + "]"
	case *DictComp:
		return "{" + FormatExpr(n.Key) + ": " + FormatExpr(n.Value) +
			formatFor(n.Target, n.Container, n.Condition) + "}"
	case *GenExpr:
		return "(" + FormatExpr(n.Item) + formatFor(n.Target, n.Container, n.Condition) + ")"
	case *Unary:
		if n.Op == KindNot {
			return "not " + operand(n.Obj, precNot)
		}

		return "-" + operand(n.Obj, precNeg)
	case *Binary:
		if n.Op == KindGetItem {
			return operand(n.Left, precPostfix) + "[" + FormatExpr(n.Right) + "]"
		}

		p := precedence(n)

		return operand(n.Left, p) + " " + binarySymbols[n.Op] + " " + operand(n.Right, p+1)
	case *GetAttr:
		return operand(n.Obj, precPostfix) + "." + n.Name
	case *GetSlice:
		return operand(n.Obj, precPostfix) + "[" + FormatExpr(n.Start) + ":" + FormatExpr(n.Stop) + "]"
	case *CallFunc:
		return formatCall(n.Name, n.Args)
	case *CallMeth:
		return formatCall(operand(n.Obj, precPostfix)+"."+n.Name, n.Args)
	case *Call:
		return formatCall(operand(n.Obj, precPostfix), n.Args)
	}

	return "<" + n.Kind().String() + ">"
}

func formatFor(target, container, cond Node) string {
	s := " for " + formatTarget(target, true) + " in " + operand(container, precOr)
	if cond != nil {
		s += " if " + operand(cond, precOr)
	}

	return s
}

func formatCall(callee string, args []Arg) string {
	parts := make([]string, len(args))

	for i, a := range args {
		switch a.Name {
		case "":
			if g, ok := a.Value.(*GenExpr); ok && len(args) == 1 {
				return callee + FormatExpr(g)
			}

			parts[i] = FormatExpr(a.Value)
		case "*", "**":
			parts[i] = a.Name + FormatExpr(a.Value)
		default:
			parts[i] = a.Name + "=" + FormatExpr(a.Value)
		}
	}

	return callee + "(" + strings.Join(parts, ", ") + ")"
}

func joinExprs(nodes []Node) string {
	parts := make([]string, len(nodes))
	for i, n := range nodes {
		parts[i] = FormatExpr(n)
	}

	return strings.Join(parts, ", ")
}

// FormatTree writes an indented outline of the template, one statement per
// line.
func (t *Template) FormatTree(_ context.Context, w io.Writer, indent int) error {
	var b strings.Builder

	writeTree(&b, t, 0, max(indent, 1))

	_, err := io.WriteString(w, b.String())

	return err
}

func writeTree(b *strings.Builder, n Node, depth, indent int) {
	line := func(s string) {
		b.WriteString(strings.Repeat(" ", depth*indent))
		b.WriteString(s)
		b.WriteByte('\n')
	}

	block := func(head string, content []Node) {
		line(head + " {")

		for _, c := range content {
			writeTree(b, c, depth+1, indent)
		}

		b.WriteString(strings.Repeat(" ", depth*indent))
		b.WriteString("}\n")
	}

	switch n := n.(type) {
	case *Template:
		block(fmt.Sprintf("def %s", repr(n.Name)), n.Content)
	case *Text:
		line("text " + repr(n.Text))
	case *Print:
		line(n.Kind().String() + " " + FormatExpr(n.Obj))
	case *For:
		block("for "+formatTarget(n.Target, true)+" in "+FormatExpr(n.Container), n.Content)
	case *IfElIfElse:
		for _, br := range n.Branches {
			head := br.Kind().String()
			if br.Condition != nil {
				head += " " + FormatExpr(br.Condition)
			}

			block(head, br.Content)
		}
	case *Break, *Continue:
		line(n.Kind().String())
	case *Return:
		line(strings.TrimSpace("return " + FormatExpr(n.Value)))
	case *Render:
		line("render " + formatCall(FormatExpr(n.Obj), n.Args))
	default:
		line(FormatStatement(n))
	}
}

// FormatJSON writes the template tree as JSON to the writer.
func (t *Template) FormatJSON(_ context.Context, w io.Writer, indent int) error {
	var (
		jsonData []byte
		err      error
	)

	tree := treeValue(t, false)

	if indent > 0 {
		jsonData, err = json.MarshalIndent(tree, "", strings.Repeat(" ", indent))
	} else {
		jsonData, err = json.Marshal(tree)
	}

	if err != nil {
		return ErrSerialize.Wrap(err)
	}

	_, err = fmt.Fprintln(w, string(jsonData))

	return err
}

// FormatYAML writes the template tree as YAML to the writer. Field order
// follows [Fields].
func (t *Template) FormatYAML(ctx context.Context, w io.Writer, indent int) error {
	var opts []yaml.EncodeOption
	if indent > 0 {
		opts = append(opts, yaml.Indent(indent))
	} else {
		opts = append(opts, yaml.Flow(true))
	}

	yamlData, err := yaml.MarshalContext(ctx, treeValue(t, true), opts...)
	if err != nil {
		return ErrSerialize.Wrap(err)
	}

	_, err = fmt.Fprint(w, string(yamlData))

	return err
}

// treeValue converts nodes and their fields to plain data. Ordered output
// uses yaml.MapSlice; otherwise maps are used.
func treeValue(v any, ordered bool) any {
	mapping := func(kv ...any) any {
		if ordered {
			ms := make(yaml.MapSlice, 0, len(kv)/2)
			for i := 0; i+1 < len(kv); i += 2 {
				ms = append(ms, yaml.MapItem{Key: kv[i], Value: kv[i+1]})
			}

			return ms
		}

		m := make(map[string]any, len(kv)/2)
		for i := 0; i+1 < len(kv); i += 2 {
			m[kv[i].(string)] = kv[i+1]
		}

		return m
	}

	if isNull(v) {
		return nil
	}

	switch v := v.(type) {
	case Node:
		kv := []any{"type", v.Kind().String()}
		for _, f := range Fields(v) {
			if f.Name == "source" {
				continue
			}

			kv = append(kv, f.Name, treeValue(f.Value, ordered))
		}

		return mapping(kv...)
	case *Location:
		return mapping(
			"type", v.Type,
			"line", v.Position().Line,
			"column", v.Position().Column,
			"tagstart", v.TagStart,
			"tagend", v.TagEnd,
			"codestart", v.CodeStart,
			"codeend", v.CodeEnd,
		)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = treeValue(item, ordered)
		}

		return out
	case bool, string, int:
		return v
	case float64:
		if math.IsInf(v, 0) || math.IsNaN(v) {
			return repr(v)
		}

		return v
	}

	return repr(v)
}
