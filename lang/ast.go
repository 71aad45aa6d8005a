package lang

import "strconv"

// Kind identifies an AST node type.
type Kind int

const (
	KindText Kind = iota
	KindConst
	KindList
	KindListComp
	KindDict
	KindDictComp
	KindGenExpr
	KindVar
	KindUnpack
	KindNot
	KindNeg
	KindAdd
	KindSub
	KindMul
	KindFloorDiv
	KindTrueDiv
	KindMod
	KindEQ
	KindNE
	KindLT
	KindLE
	KindGT
	KindGE
	KindContains
	KindNotContains
	KindAnd
	KindOr
	KindGetItem
	KindGetAttr
	KindGetSlice
	KindCallFunc
	KindCallMeth
	KindCall
	KindPrint
	KindPrintX
	KindStoreVar
	KindAddVar
	KindSubVar
	KindMulVar
	KindTrueDivVar
	KindFloorDivVar
	KindModVar
	KindDelVar
	KindFor
	KindBreak
	KindContinue
	KindIfElIfElse
	KindIf
	KindElIf
	KindElse
	KindTemplate
	KindReturn
	KindRender

	kindCount
)

var kindNames = [kindCount]string{
	KindText:        "text",
	KindConst:       "const",
	KindList:        "list",
	KindListComp:    "listcomp",
	KindDict:        "dict",
	KindDictComp:    "dictcomp",
	KindGenExpr:     "genexpr",
	KindVar:         "var",
	KindUnpack:      "unpack",
	KindNot:         "not",
	KindNeg:         "neg",
	KindAdd:         "add",
	KindSub:         "sub",
	KindMul:         "mul",
	KindFloorDiv:    "floordiv",
	KindTrueDiv:     "truediv",
	KindMod:         "mod",
	KindEQ:          "eq",
	KindNE:          "ne",
	KindLT:          "lt",
	KindLE:          "le",
	KindGT:          "gt",
	KindGE:          "ge",
	KindContains:    "contains",
	KindNotContains: "notcontains",
	KindAnd:         "and",
	KindOr:          "or",
	KindGetItem:     "getitem",
	KindGetAttr:     "getattr",
	KindGetSlice:    "getslice",
	KindCallFunc:    "callfunc",
	KindCallMeth:    "callmeth",
	KindCall:        "call",
	KindPrint:       "print",
	KindPrintX:      "printx",
	KindStoreVar:    "storevar",
	KindAddVar:      "addvar",
	KindSubVar:      "subvar",
	KindMulVar:      "mulvar",
	KindTrueDivVar:  "truedivvar",
	KindFloorDivVar: "floordivvar",
	KindModVar:      "modvar",
	KindDelVar:      "delvar",
	KindFor:         "for",
	KindBreak:       "break",
	KindContinue:    "continue",
	KindIfElIfElse:  "ieie",
	KindIf:          "if",
	KindElIf:        "elif",
	KindElse:        "else",
	KindTemplate:    "template",
	KindReturn:      "return",
	KindRender:      "render",
}

// String returns the node type name.
func (k Kind) String() string {
	if k >= 0 && k < kindCount {
		return kindNames[k]
	}

	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

// Node is an element of a compiled template. The set of implementations is
// closed; every kind listed above maps to exactly one concrete type.
type Node interface {
	Kind() Kind
	Loc() *Location
	node()
}

type nodeBase struct {
	Location *Location
}

func (n *nodeBase) Loc() *Location { return n.Location }
func (*nodeBase) node() {}

// Text is literal template text.
type Text struct {
	nodeBase
	Text string
}

// Const is a literal value.
type Const struct {
	nodeBase
	Value any
}

// ListExpr is a list literal.
type ListExpr struct {
	nodeBase
	Items []Node
}

// ListComp is a list comprehension.
type ListComp struct {
	nodeBase
	Item      Node
	Target    Node
	Container Node
	Condition Node
}

// DictItem is one entry of a dict literal; a nil Key means "**Value".
type DictItem struct {
	Key   Node
	Value Node
}

// DictExpr is a dict literal.
type DictExpr struct {
	nodeBase
	Items []DictItem
}

// DictComp is a dict comprehension.
type DictComp struct {
	nodeBase
	Key       Node
	Value     Node
	Target    Node
	Container Node
	Condition Node
}

// GenExpr is a generator expression.
type GenExpr struct {
	nodeBase
	Item      Node
	Target    Node
	Container Node
	Condition Node
}

// Var is a variable reference or assignment target.
type Var struct {
	nodeBase
	Name string
}

// Unpack is a nested assignment target such as (a, (b, c)).
type Unpack struct {
	nodeBase
	Items []Node
}

// Unary is a "not" or negation.
type Unary struct {
	nodeBase
	Op  Kind
	Obj Node
}

// Binary is an arithmetic, comparison, containment, boolean or item access
// operator.
type Binary struct {
	nodeBase
	Op    Kind
	Left  Node
	Right Node
}

// GetAttr is attribute access.
type GetAttr struct {
	nodeBase
	Obj  Node
	Name string
}

// GetSlice is slice access; Start and Stop may be nil.
type GetSlice struct {
	nodeBase
	Obj   Node
	Start Node
	Stop  Node
}

// Arg is a call argument. Name is empty for positional arguments, "*" and
// "**" for unpacked arguments, and the parameter name otherwise.
type Arg struct {
	Name  string
	Value Node
}

// CallFunc calls a function by name.
type CallFunc struct {
	nodeBase
	Name string
	Args []Arg
}

// CallMeth calls a method on an object.
type CallMeth struct {
	nodeBase
	Obj  Node
	Name string
	Args []Arg
}

// Call calls the value of an expression.
type Call struct {
	nodeBase
	Obj  Node
	Args []Arg
}

// Print outputs an expression; XML escapes it for printx.
type Print struct {
	nodeBase
	Obj Node
	XML bool
}

// ChangeVar assigns to a target; Op is KindStoreVar or an augmented
// assignment.
type ChangeVar struct {
	nodeBase
	Op     Kind
	Target Node
	Value  Node
}

// DelVar removes a variable.
type DelVar struct {
	nodeBase
	Name string
}

// For is a loop block.
type For struct {
	nodeBase
	Target    Node
	Container Node
	Content   []Node
	End       *Location
}

// Break leaves the innermost loop.
type Break struct{ nodeBase }

// Continue skips to the next iteration of the innermost loop.
type Continue struct{ nodeBase }

// IfElIfElse is a conditional block made of Branch nodes.
type IfElIfElse struct {
	nodeBase
	Branches []*Branch
	End      *Location
}

// Branch is an if, elif or else part of a conditional block.
type Branch struct {
	nodeBase
	Op        Kind
	Condition Node // nil for else
	Content   []Node
}

// Return ends the current template call.
type Return struct {
	nodeBase
	Value Node // may be nil
}

// Render outputs another template inline.
type Render struct {
	nodeBase
	Obj  Node
	Args []Arg
}

func (*Text) Kind() Kind { return KindText }
func (*Const) Kind() Kind { return KindConst }
func (*ListExpr) Kind() Kind { return KindList }
func (*ListComp) Kind() Kind { return KindListComp }
func (*DictExpr) Kind() Kind { return KindDict }
func (*DictComp) Kind() Kind { return KindDictComp }
func (*GenExpr) Kind() Kind { return KindGenExpr }
func (*Var) Kind() Kind { return KindVar }
func (*Unpack) Kind() Kind { return KindUnpack }
func (n *Unary) Kind() Kind { return n.Op }
func (n *Binary) Kind() Kind { return n.Op }
func (*GetAttr) Kind() Kind { return KindGetAttr }
func (*GetSlice) Kind() Kind { return KindGetSlice }
func (*CallFunc) Kind() Kind { return KindCallFunc }
func (*CallMeth) Kind() Kind { return KindCallMeth }
func (*Call) Kind() Kind { return KindCall }
func (n *ChangeVar) Kind() Kind { return n.Op }
func (*DelVar) Kind() Kind { return KindDelVar }
func (*For) Kind() Kind { return KindFor }
func (*Break) Kind() Kind { return KindBreak }
func (*Continue) Kind() Kind { return KindContinue }
func (*IfElIfElse) Kind() Kind { return KindIfElIfElse }
func (n *Branch) Kind() Kind { return n.Op }
func (*Return) Kind() Kind { return KindReturn }
func (*Render) Kind() Kind { return KindRender }

// Kind returns KindPrint or KindPrintX.
func (n *Print) Kind() Kind {
	if n.XML {
		return KindPrintX
	}

	return KindPrint
}

// Field is a named component of a node.
type Field struct {
	Name  string
	Value any
}

// Fields returns the named components of n in their fixed order. Child nodes
// appear as [Node] values, child sequences as []any, and call arguments as
// []any of [name, value] pairs.
//
// The same field lists drive serialization and structured output, so any
// walker that understands them sees every part of the tree.
func Fields(n Node) []Field {
	loc := Field{"location", n.Loc()}

	switch n := n.(type) {
	case *Text:
		return []Field{loc, {"text", n.Text}}
	case *Const:
		return []Field{loc, {"value", n.Value}}
	case *ListExpr:
		return []Field{loc, {"items", nodeList(n.Items)}}
	case *ListComp:
		return []Field{loc, {"item", n.Item}, {"target", n.Target},
			{"container", n.Container}, {"condition", optNode(n.Condition)}}
	case *DictExpr:
		items := make([]any, len(n.Items))
		for i, it := range n.Items {
			if it.Key == nil {
				items[i] = []any{it.Value}
			} else {
				items[i] = []any{it.Key, it.Value}
			}
		}

		return []Field{loc, {"items", items}}
	case *DictComp:
		return []Field{loc, {"key", n.Key}, {"value", n.Value}, {"target", n.Target},
			{"container", n.Container}, {"condition", optNode(n.Condition)}}
	case *GenExpr:
		return []Field{loc, {"item", n.Item}, {"target", n.Target},
			{"container", n.Container}, {"condition", optNode(n.Condition)}}
	case *Var:
		return []Field{loc, {"name", n.Name}}
	case *Unpack:
		return []Field{loc, {"items", nodeList(n.Items)}}
	case *Unary:
		return []Field{loc, {"obj", n.Obj}}
	case *Binary:
		return []Field{loc, {"obj1", n.Left}, {"obj2", n.Right}}
	case *GetAttr:
		return []Field{loc, {"obj", n.Obj}, {"attrname", n.Name}}
	case *GetSlice:
		return []Field{loc, {"obj", n.Obj}, {"index1", optNode(n.Start)},
			{"index2", optNode(n.Stop)}}
	case *CallFunc:
		return []Field{loc, {"funcname", n.Name}, {"args", argList(n.Args)}}
	case *CallMeth:
		return []Field{loc, {"methname", n.Name}, {"obj", n.Obj},
			{"args", argList(n.Args)}}
	case *Call:
		return []Field{loc, {"obj", n.Obj}, {"args", argList(n.Args)}}
	case *Print:
		return []Field{loc, {"obj", n.Obj}}
	case *ChangeVar:
		return []Field{loc, {"lvalue", n.Target}, {"value", n.Value}}
	case *DelVar:
		return []Field{loc, {"name", n.Name}}
	case *For:
		return []Field{loc, {"endlocation", n.End}, {"varname", n.Target},
			{"container", n.Container}, {"content", nodeList(n.Content)}}
	case *Break:
		return []Field{loc}
	case *Continue:
		return []Field{loc}
	case *IfElIfElse:
		branches := make([]any, len(n.Branches))
		for i, b := range n.Branches {
			branches[i] = b
		}

		return []Field{loc, {"endlocation", n.End}, {"content", branches}}
	case *Branch:
		return []Field{loc, {"condition", optNode(n.Condition)},
			{"content", nodeList(n.Content)}}
	case *Return:
		return []Field{loc, {"obj", optNode(n.Value)}}
	case *Render:
		return []Field{loc, {"obj", n.Obj}, {"args", argList(n.Args)}}
	case *Template:
		return []Field{
			{"version", Version},
			{"name", n.Name},
			{"source", n.Source},
			{"startdelim", n.StartDelim},
			{"enddelim", n.EndDelim},
			{"keepws", n.KeepWS},
			loc,
			{"endlocation", n.End},
			{"content", nodeList(n.Content)},
		}
	default:
		panic("lang: unknown node type " + n.Kind().String())
	}
}

// optNode keeps absent children as untyped nil.
func optNode(n Node) any {
	if n == nil {
		return nil
	}

	return n
}

func nodeList(nodes []Node) []any {
	out := make([]any, len(nodes))
	for i, n := range nodes {
		out[i] = n
	}

	return out
}

func argList(args []Arg) []any {
	out := make([]any, len(args))
	for i, a := range args {
		if a.Name == "" {
			out[i] = []any{a.Value}
		} else {
			out[i] = []any{a.Name, a.Value}
		}
	}

	return out
}

// Walk calls fn for n and, while fn returns true, for every node below it in
// field order.
func Walk(n Node, fn func(Node) bool) {
	if n == nil || !fn(n) {
		return
	}

	for _, f := range Fields(n) {
		walkValue(f.Value, fn)
	}
}

func walkValue(v any, fn func(Node) bool) {
	switch v := v.(type) {
	case Node:
		Walk(v, fn)
	case []any:
		for _, item := range v {
			walkValue(item, fn)
		}
	}
}
