package content

import (
	"bytes"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
	"golang.org/x/net/html"

	"ContentPipeline/internal/domain"
)

// LinkRewriter keeps hyperlinks pointing to the publishing site and replaces
// every other hyperlink with its anchor text.
type LinkRewriter struct {
	base     *url.URL
	host     string
	markdown parser.Parser
}

// NewLinkRewriter builds a rewriter for the site at siteURL.
func NewLinkRewriter(siteURL string) (*LinkRewriter, error) {
	parsed, err := url.Parse(strings.TrimSpace(siteURL))
	if err != nil {
		return nil, fmt.Errorf("parse site url: %w", err)
	}
	host := normalizeHost(parsed.Hostname())
	if host == "" {
		return nil, fmt.Errorf("site url %q has no host", siteURL)
	}
	return &LinkRewriter{base: parsed, host: host, markdown: newLinkParser()}, nil
}

// Host returns the normalized site hostname.
func (r *LinkRewriter) Host() string {
	return r.host
}

// IsInternal reports whether target points to the site or one of its
// subdomains. Relative targets resolve against the site URL. Malformed
// targets are external.
func (r *LinkRewriter) IsInternal(target string) bool {
	target = strings.TrimSpace(target)
	if target == "" {
		return false
	}
	parsed, err := url.Parse(target)
	if err != nil {
		return false
	}
	resolved := r.base.ResolveReference(parsed)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return false
	}
	host := normalizeHost(resolved.Hostname())
	if host == "" {
		return false
	}
	return host == r.host || strings.HasSuffix(host, "."+r.host)
}

// Rewrite applies the link policy to markdown and inline HTML anchors.
//
// External inline, reference and shortcut links lose their brackets and
// destination, leaving the anchor text as written. External autolinks and
// link reference definitions are dropped. HTML anchors are unwrapped. Every
// other byte of body is kept, so rewriting is idempotent.
func (r *LinkRewriter) Rewrite(body string) string {
	if body == "" {
		return ""
	}

	source := []byte(body)
	scan := &linkScan{rewriter: r}
	pc := parser.NewContext()
	pc.Set(linkScanKey, scan)
	doc := r.markdown.Parse(text.NewReader(source), parser.WithContext(pc))
	scan.collectAnchors(doc, source)

	if len(scan.cuts) == 0 {
		return body
	}
	return splice(source, scan.cuts)
}

// RewriteDraft applies Rewrite to the draft summary and content.
func (r *LinkRewriter) RewriteDraft(draft domain.Draft) domain.Draft {
	draft.Summary = r.Rewrite(draft.Summary)
	draft.Content = r.Rewrite(draft.Content)
	return draft
}

func normalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSuffix(strings.TrimSpace(host), "."))
	return strings.TrimPrefix(host, "www.")
}

// newLinkParser is goldmark's CommonMark parser with the link, autolink and
// reference definition parsers wrapped so they record source offsets.
func newLinkParser() parser.Parser {
	return parser.NewParser(
		parser.WithBlockParsers(parser.DefaultBlockParsers()...),
		parser.WithInlineParsers(
			util.Prioritized(parser.NewCodeSpanParser(), 100),
			util.Prioritized(linkTracker{parser.NewLinkParser()}, 200),
			util.Prioritized(autoLinkTracker{parser.NewAutoLinkParser()}, 300),
			util.Prioritized(parser.NewRawHTMLParser(), 400),
			util.Prioritized(parser.NewEmphasisParser(), 500),
		),
		parser.WithParagraphTransformers(
			util.Prioritized(definitionTracker{parser.LinkReferenceParagraphTransformer}, 100),
		),
	)
}

var (
	linkScanKey = parser.NewContextKey()
	plainParser = goldmark.DefaultParser()
)

// cut is a half-open byte range removed from the source.
type cut struct {
	start, stop int
}

type opener struct {
	node  ast.Node
	start int
}

type anchorTag struct {
	cut
	open    bool
	href    string
	hasHref bool
}

// linkScan is the per-call state shared by the wrapped parsers.
type linkScan struct {
	rewriter *LinkRewriter
	openers  []opener
	anchors  []anchorTag
	cuts     []cut
}

func scanFrom(pc parser.Context) *linkScan {
	scan, _ := pc.Get(linkScanKey).(*linkScan)
	return scan
}

// takeOpener returns the bracket consumed by the link just built. The link
// parser detaches exactly that label node from the tree.
func (s *linkScan) takeOpener() (int, bool) {
	for i := len(s.openers) - 1; i >= 0; i-- {
		if s.openers[i].node.Parent() == nil {
			start := s.openers[i].start
			s.openers = append(s.openers[:i], s.openers[i+1:]...)
			return start, true
		}
	}
	return 0, false
}

func (s *linkScan) prune() {
	kept := s.openers[:0]
	for _, o := range s.openers {
		if o.node.Parent() != nil {
			kept = append(kept, o)
		}
	}
	s.openers = kept
}

type linkTracker struct {
	parser.InlineParser
}

func (t linkTracker) Parse(parent ast.Node, block text.Reader, pc parser.Context) ast.Node {
	scan := scanFrom(pc)
	line, segment := block.PeekLine()
	if scan == nil || len(line) == 0 {
		return t.InlineParser.Parse(parent, block, pc)
	}
	at := segment.Start

	node := t.InlineParser.Parse(parent, block, pc)
	switch n := node.(type) {
	case nil, *ast.Image:
	case *ast.Link:
		_, pos := block.Position()
		start, ok := scan.takeOpener()
		if ok && pos.Start >= at && !scan.rewriter.IsInternal(string(n.Destination)) {
			scan.cuts = append(scan.cuts, cut{start, start + 1}, cut{at, pos.Start})
		}
	default:
		if line[0] == '[' || line[0] == '!' {
			scan.openers = append(scan.openers, opener{node: n, start: at})
		}
	}
	scan.prune()
	return node
}

func (t linkTracker) CloseBlock(parent ast.Node, block text.Reader, pc parser.Context) {
	if closer, ok := t.InlineParser.(parser.CloseBlocker); ok {
		closer.CloseBlock(parent, block, pc)
	}
	if scan := scanFrom(pc); scan != nil {
		scan.openers = scan.openers[:0]
	}
}

type autoLinkTracker struct {
	parser.InlineParser
}

func (t autoLinkTracker) Parse(parent ast.Node, block text.Reader, pc parser.Context) ast.Node {
	_, segment := block.PeekLine()
	at := segment.Start
	node := t.InlineParser.Parse(parent, block, pc)

	link, ok := node.(*ast.AutoLink)
	scan := scanFrom(pc)
	if !ok || scan == nil {
		return node
	}
	_, pos := block.Position()
	external := link.AutoLinkType == ast.AutoLinkEmail ||
		!scan.rewriter.IsInternal(string(link.URL(block.Source())))
	if external && pos.Start > at {
		scan.cuts = append(scan.cuts, cut{at, pos.Start})
	}
	return node
}

type definitionTracker struct {
	parser.ParagraphTransformer
}

func (t definitionTracker) Transform(node *ast.Paragraph, reader text.Reader, pc parser.Context) {
	scan := scanFrom(pc)
	if scan == nil {
		t.ParagraphTransformer.Transform(node, reader, pc)
		return
	}

	// the wrapped transformer edits the paragraph lines in place
	segments := node.Lines()
	lines := make([]text.Segment, segments.Len())
	for i := range lines {
		lines[i] = segments.At(i)
	}

	t.ParagraphTransformer.Transform(node, reader, pc)

	remaining := map[int]bool{}
	if node.Parent() != nil {
		after := node.Lines()
		for i := 0; i < after.Len(); i++ {
			remaining[after.At(i).Start] = true
		}
	}

	source := reader.Source()
	var definition []text.Segment
	flush := func() {
		if len(definition) > 0 && !scan.internalDefinition(source, definition) {
			stop := lineStop(source, definition[len(definition)-1].Stop)
			scan.cuts = append(scan.cuts, cut{definition[0].Start, stop})
		}
		definition = nil
	}
	for _, line := range lines {
		if remaining[line.Start] {
			flush()
			continue
		}
		if bytes.HasPrefix(bytes.TrimLeft(line.Value(source), " \t"), []byte("[")) {
			flush()
		}
		definition = append(definition, line)
	}
	flush()
}

// lineStop extends a trimmed line end over its trailing whitespace and newline.
func lineStop(source []byte, stop int) int {
	if stop > 0 && source[stop-1] == '\n' {
		return stop
	}
	i := stop
	for i < len(source) && (source[i] == ' ' || source[i] == '\t' || source[i] == '\r') {
		i++
	}
	if i < len(source) && source[i] == '\n' {
		return i + 1
	}
	if i == len(source) {
		return i
	}
	return stop
}

// internalDefinition re-parses one reference definition on its own and
// reports whether it points to the site. Unreadable definitions are external.
func (s *linkScan) internalDefinition(source []byte, lines []text.Segment) bool {
	var buf bytes.Buffer
	for _, line := range lines {
		buf.Write(line.Value(source))
	}
	pc := parser.NewContext()
	plainParser.Parse(text.NewReader(buf.Bytes()), parser.WithContext(pc))

	refs := pc.References()
	if len(refs) == 0 {
		return false
	}
	for _, ref := range refs {
		if !s.rewriter.IsInternal(string(ref.Destination())) {
			return false
		}
	}
	return true
}

// collectAnchors pairs HTML anchor tags found in raw inline HTML and HTML
// blocks and cuts the tags of anchors that are external or have no href.
func (s *linkScan) collectAnchors(doc ast.Node, source []byte) {
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n := n.(type) {
		case *ast.RawHTML:
			if n.Segments.Len() > 0 {
				s.scanHTML(source, n.Segments.At(0).Start, n.Segments.At(n.Segments.Len()-1).Stop)
			}
		case *ast.HTMLBlock:
			lines := n.Lines()
			if lines.Len() > 0 {
				stop := lines.At(lines.Len() - 1).Stop
				if n.HasClosure() {
					stop = n.ClosureLine.Stop
				}
				s.scanHTML(source, lines.At(0).Start, stop)
			}
		}
		return ast.WalkContinue, nil
	})

	var open []anchorTag
	for _, tag := range s.anchors {
		if tag.open {
			open = append(open, tag)
			continue
		}
		if len(open) == 0 {
			continue
		}
		start := open[len(open)-1]
		open = open[:len(open)-1]
		if !start.hasHref || !s.rewriter.IsInternal(start.href) {
			s.cuts = append(s.cuts, start.cut, tag.cut)
		}
	}
	for _, tag := range open {
		if tag.hasHref && !s.rewriter.IsInternal(tag.href) {
			s.cuts = append(s.cuts, tag.cut)
		}
	}
}

func (s *linkScan) scanHTML(source []byte, start, stop int) {
	if start < 0 || stop > len(source) || start >= stop {
		return
	}
	z := html.NewTokenizer(bytes.NewReader(source[start:stop]))
	offset := start
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			return
		}
		size := len(z.Raw())
		switch tt {
		case html.StartTagToken:
			name, more := z.TagName()
			if string(name) != "a" {
				break
			}
			tag := anchorTag{cut: cut{offset, offset + size}, open: true}
			for more {
				var key, val []byte
				key, val, more = z.TagAttr()
				if string(key) == "href" {
					tag.href, tag.hasHref = string(val), true
				}
			}
			s.anchors = append(s.anchors, tag)
		case html.EndTagToken:
			if name, _ := z.TagName(); string(name) == "a" {
				s.anchors = append(s.anchors, anchorTag{cut: cut{offset, offset + size}})
			}
		}
		offset += size
	}
}

func splice(source []byte, cuts []cut) string {
	sort.Slice(cuts, func(i, j int) bool { return cuts[i].start < cuts[j].start })

	var b strings.Builder
	b.Grow(len(source))
	at := 0
	for _, c := range cuts {
		if c.start > at {
			b.Write(source[at:c.start])
		}
		if c.stop > at {
			at = c.stop
		}
	}
	if at < len(source) {
		b.Write(source[at:])
	}
	return b.String()
}
