package lang

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/klauspost/readahead"
)

// Compile compiles template source.
//
// Every error is a [*LocationError] naming the tag that raised it, wrapping
// one of the compile-time sentinels ([ErrLexical], [ErrSyntax], [ErrBlock])
// or a runtime sentinel raised while folding constants.
func Compile(ctx context.Context, source string, opts ...Option) (*Template, error) {
	t := newTemplate(source, opts...)

	t.logger.TraceContext(ctx, "compile start",
		slog.String("template", t.Name),
		slog.Int("source_length", len(source)))

	c := &compiler{tmpl: t, stack: []Node{t}}

	for loc := range Segment(source, t.StartDelim, t.EndDelim) {
		if err := c.tag(loc); err != nil {
			return nil, decorate(err, loc, c)
		}
	}

	if len(c.stack) > 1 {
		open := c.stack[len(c.stack)-1]

		return nil, decorate(ErrBlock.Wrapf("unclosed blocks"), open.Loc(), c)
	}

	t.logger.TraceContext(ctx, "compile complete",
		slog.String("template", t.Name),
		slog.Int("nodes", len(t.Content)))

	return t, nil
}

// CompileReader compiles template source read from r.
func CompileReader(ctx context.Context, r io.Reader, opts ...Option) (*Template, error) {
	ra := readahead.NewReader(r)
	defer ra.Close()

	var b strings.Builder

	if _, err := io.Copy(&b, ra); err != nil {
		return nil, ErrReadInput.Wrap(err)
	}

	return Compile(ctx, b.String(), opts...)
}

// compiler threads the tag stream through the stack of open blocks. The
// bottom entry is always the template being compiled.
type compiler struct {
	tmpl  *Template
	stack []Node
}

func (c *compiler) top() Node { return c.stack[len(c.stack)-1] }

func (c *compiler) push(n Node) {
	c.append(n)
	c.stack = append(c.stack, n)
}

// append adds n to the content of the innermost open block.
func (c *compiler) append(n Node) {
	switch b := c.top().(type) {
	case *Template:
		b.Content = append(b.Content, n)
	case *For:
		b.Content = append(b.Content, n)
	case *IfElIfElse:
		last := b.Branches[len(b.Branches)-1]
		last.Content = append(last.Content, n)
	}
}

// template returns the innermost template being compiled.
func (c *compiler) template() *Template {
	for i := len(c.stack) - 1; i >= 0; i-- {
		if t, ok := c.stack[i].(*Template); ok {
			return t
		}
	}

	return c.tmpl
}

func (c *compiler) tag(loc *Location) error {
	switch loc.Type {
	case "note":
		// Comments produce no node.

	case "":
		text := loc.Tag()
		if !c.template().KeepWS {
			text = stripIndent(loc)
		}

		if text != "" {
			c.append(&Text{nodeBase: nodeBase{loc}, Text: text})
		}

	case "print", "printx":
		obj, err := parseExpression(loc)
		if err != nil {
			return err
		}

		c.append(&Print{nodeBase: nodeBase{loc}, Obj: obj, XML: loc.Type == "printx"})

	case "code":
		stmt, err := parseStatement(loc)
		if err != nil {
			return err
		}

		c.append(stmt)

	case "for":
		f, err := parseForHeader(loc)
		if err != nil {
			return err
		}

		c.push(f)

	case "if":
		cond, err := parseExpression(loc)
		if err != nil {
			return err
		}

		branch := &Branch{nodeBase: nodeBase{loc}, Op: KindIf, Condition: cond}
		c.push(&IfElIfElse{nodeBase: nodeBase{loc}, Branches: []*Branch{branch}})

	case "elif", "else":
		return c.branch(loc)

	case "end":
		return c.end(loc)

	case "break", "continue":
		if err := c.requireLoop(loc.Type); err != nil {
			return err
		}

		if loc.Type == "break" {
			c.append(&Break{nodeBase{loc}})
		} else {
			c.append(&Continue{nodeBase{loc}})
		}

	case "def":
		name := loc.Code()
		if name == "" {
			return ErrSyntax.Wrapf("def needs a template name")
		}

		outer := c.template()

		c.push(&Template{
			nodeBase:   nodeBase{loc},
			Name:       name,
			Source:     outer.Source,
			StartDelim: outer.StartDelim,
			EndDelim:   outer.EndDelim,
			KeepWS:     outer.KeepWS,
			logger:     outer.logger,
			maxDepth:   outer.maxDepth,
		})

	case "return":
		ret, err := parseReturn(loc)
		if err != nil {
			return err
		}

		c.append(ret)

	case "render":
		r, err := parseRenderCall(loc)
		if err != nil {
			return err
		}

		c.append(r)
	}

	return nil
}

func (c *compiler) branch(loc *Location) error {
	ieie, ok := c.top().(*IfElIfElse)
	if !ok {
		return ErrBlock.Wrapf("%s doesn't match any if", loc.Type)
	}

	if last := ieie.Branches[len(ieie.Branches)-1]; last.Op == KindElse {
		if loc.Type == "elif" {
			return ErrBlock.Wrapf("else already seen in elif")
		}

		return ErrBlock.Wrapf("duplicate else")
	}

	branch := &Branch{nodeBase: nodeBase{loc}, Op: KindElse}

	if loc.Type == "elif" {
		cond, err := parseExpression(loc)
		if err != nil {
			return err
		}

		branch.Op, branch.Condition = KindElIf, cond
	}

	ieie.Branches = append(ieie.Branches, branch)

	return nil
}

func (c *compiler) end(loc *Location) error {
	if len(c.stack) == 1 {
		return ErrBlock.Wrapf("not in any block")
	}

	switch code := loc.Code(); code {
	case "":
	case "if":
		if _, ok := c.top().(*IfElIfElse); !ok {
			return ErrBlock.Wrapf("endif doesn't match any if")
		}
	case "for":
		if _, ok := c.top().(*For); !ok {
			return ErrBlock.Wrapf("endfor doesn't match any for")
		}
	case "def":
		if _, ok := c.top().(*Template); !ok {
			return ErrBlock.Wrapf("enddef doesn't match any def")
		}
	default:
		return ErrBlock.Wrapf("illegal end value %q", code)
	}

	switch b := c.top().(type) {
	case *For:
		b.End = loc
	case *IfElIfElse:
		b.End = loc
	case *Template:
		b.End = loc
	}

	c.stack = c.stack[:len(c.stack)-1]

	return nil
}

// requireLoop checks that the innermost enclosing block before a template
// boundary is a for loop.
func (c *compiler) requireLoop(what string) error {
	for i := len(c.stack) - 1; i >= 0; i-- {
		switch c.stack[i].(type) {
		case *For:
			return nil
		case *Template:
			return ErrBlock.Wrapf("%s outside of for loop", what)
		}
	}

	return ErrBlock.Wrapf("%s outside of for loop", what)
}

// stripIndent removes the spaces and tabs that begin each line of literal
// text. Line ends are kept.
func stripIndent(loc *Location) string {
	text := loc.Tag()
	lineStart := loc.TagStart == 0 || loc.Source[loc.TagStart-1] == '\n'

	var b strings.Builder

	b.Grow(len(text))

	for i := 0; i < len(text); i++ {
		ch := text[i]

		if lineStart && (ch == ' ' || ch == '\t') {
			continue
		}

		lineStart = ch == '\n'
		b.WriteByte(ch)
	}

	return b.String()
}
