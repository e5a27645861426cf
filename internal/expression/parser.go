// Package expression reads the RDF/Turtle expression of an intent.
//
// Only a small fixed vocabulary is interpreted: intents, expectations,
// contexts and conditions linked by log:allOf edges. Everything else in the
// document is carried but ignored.
package expression

import (
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/knakk/rdf"
	"go.uber.org/zap"

	"intentmesh/internal/domain"
)

type edge struct {
	pred string
	obj  rdf.Term
}

// Document is a decoded expression graph. Subjects and their edges keep the
// order in which they appear in the source document.
type Document struct {
	subjects []string
	edges    map[string][]edge
}

func nodeKey(t rdf.Term) string {
	switch t.Type() {
	case rdf.TermBlank:
		return "_:" + t.String()
	case rdf.TermIRI:
		return t.String()
	default:
		return ""
	}
}

// Parse decodes a Turtle document. Syntax errors are reported as invalid input.
func Parse(expr string) (*Document, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, domain.Invalidf("expression is empty")
	}
	dec := rdf.NewTripleDecoder(strings.NewReader(expr), rdf.Turtle)
	doc := &Document{edges: map[string][]edge{}}
	for {
		tr, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, domain.Invalidf("invalid turtle expression: %v", err)
		}
		subj := nodeKey(tr.Subj)
		if subj == "" {
			continue
		}
		if _, seen := doc.edges[subj]; !seen {
			doc.subjects = append(doc.subjects, subj)
		}
		doc.edges[subj] = append(doc.edges[subj], edge{pred: tr.Pred.String(), obj: tr.Obj})
	}
	return doc, nil
}

// Len returns the number of distinct subjects in the document.
func (d *Document) Len() int { return len(d.subjects) }

// OfType returns the subjects typed as class, in document order.
func (d *Document) OfType(class string) []string {
	var out []string
	for _, s := range d.subjects {
		for _, e := range d.edges[s] {
			if e.pred == rdfType && e.obj.Type() == rdf.TermIRI && e.obj.String() == class {
				out = append(out, s)
				break
			}
		}
	}
	return out
}

func (d *Document) objects(subj, pred string) []rdf.Term {
	var out []rdf.Term
	for _, e := range d.edges[subj] {
		if e.pred == pred {
			out = append(out, e.obj)
		}
	}
	return out
}

// value returns the lexical form of the first literal or IRI object of pred.
func (d *Document) value(subj, pred string) (string, bool) {
	for _, o := range d.objects(subj, pred) {
		if o.Type() == rdf.TermLiteral || o.Type() == rdf.TermIRI {
			return o.String(), true
		}
	}
	return "", false
}

// Parser extracts deployment targets, logging malformed deployment parts.
type Parser struct {
	Logger *zap.Logger
}

// ExtractRoutingKey parses expr and returns its deployment target.
// It returns domain.ErrNotFound when the expression has no deployment part.
func (p Parser) ExtractRoutingKey(expr string) (domain.Target, error) {
	doc, err := Parse(expr)
	if err != nil {
		return domain.Target{}, err
	}
	return doc.Target(p.Logger)
}

// ExtractRoutingKey is Parser{}.ExtractRoutingKey.
func ExtractRoutingKey(expr string) (domain.Target, error) {
	return Parser{}.ExtractRoutingKey(expr)
}

// Target finds the first deployment expectation linked through log:allOf to a
// context carrying a deployment descriptor.
func (d *Document) Target(logger *zap.Logger) (domain.Target, error) {
	expectations := d.OfType(classDeploymentExpectation)
	if len(expectations) == 0 {
		return domain.Target{}, domain.NotFound("deployment expectation", "")
	}
	for _, exp := range expectations {
		for _, o := range d.objects(exp, allOf) {
			ctx := nodeKey(o)
			if ctx == "" {
				continue
			}
			descriptor, ok := d.value(ctx, propDeploymentDescriptor)
			if !ok {
				continue
			}
			t := domain.Target{
				Descriptor:  descriptor,
				Expectation: exp,
				Conditions:  d.Conditions(),
			}
			t.RoutingKey, _ = d.value(ctx, propDataCenter)
			t.Application, _ = d.value(ctx, propApplication)
			return t, nil
		}
	}
	if logger != nil {
		logger.Warn("deployment expectation without a linked deployment context",
			zap.Strings("expectations", expectations))
	}
	return domain.Target{}, domain.NotFound("deployment context", expectations[0])
}

// Conditions returns the quantified comparisons of every condition node.
func (d *Document) Conditions() []domain.Condition {
	var out []domain.Condition
	for _, c := range d.OfType(classCondition) {
		if cond, ok := d.condition(c); ok {
			out = append(out, cond)
		}
	}
	return out
}

// condition searches the nodes reachable from root for a target property and
// a comparison. Condition bodies are usually nested in blank nodes.
func (d *Document) condition(root string) (domain.Condition, bool) {
	var cond domain.Condition
	foundOp := false
	visited := map[string]bool{}
	queue := []string{root}
	for depth := 0; depth < 4 && len(queue) > 0; depth++ {
		var next []string
		for _, n := range queue {
			if visited[n] {
				continue
			}
			visited[n] = true
			for _, e := range d.edges[n] {
				switch {
				case e.pred == propValuesOfTargetProperty && cond.Property == "":
					cond.Property = d.firstOf(e.obj)
				case !foundOp && strings.HasPrefix(e.pred, NSQuantity):
					op := strings.TrimPrefix(e.pred, NSQuantity)
					if !isComparison(op) {
						continue
					}
					if d.readBound(e.obj, &cond) {
						cond.Operator = op
						foundOp = true
					}
				}
				if k := nodeKey(e.obj); k != "" && e.pred != rdfType {
					next = append(next, k)
				}
			}
		}
		queue = next
	}
	if cond.Property == "" || !foundOp {
		return domain.Condition{}, false
	}
	return cond, true
}

func isComparison(op string) bool {
	for _, c := range comparisons {
		if c == op {
			return true
		}
	}
	return false
}

// readBound fills value, upper and unit from a comparison object: a literal,
// a node with rdf:value and quan:unit, or an RDF collection of literals.
func (d *Document) readBound(obj rdf.Term, cond *domain.Condition) bool {
	if obj.Type() == rdf.TermLiteral {
		v, err := strconv.ParseFloat(obj.String(), 64)
		if err != nil {
			return false
		}
		cond.Value = v
		return true
	}
	node := nodeKey(obj)
	if node == "" {
		return false
	}
	var values []float64
	for _, o := range d.objects(node, rdfValue) {
		if v, err := strconv.ParseFloat(o.String(), 64); err == nil {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		for _, s := range d.list(node) {
			if v, err := strconv.ParseFloat(s, 64); err == nil {
				values = append(values, v)
			}
		}
	}
	if len(values) == 0 {
		return false
	}
	cond.Value = values[0]
	if len(values) > 1 {
		lo, hi := values[0], values[1]
		if lo > hi {
			lo, hi = hi, lo
		}
		cond.Value, cond.Upper = lo, hi
	}
	if unit, ok := d.value(node, propUnit); ok {
		cond.Unit = unit
	}
	return true
}

// firstOf returns the term itself, or the first element when it is a list.
func (d *Document) firstOf(t rdf.Term) string {
	if t.Type() == rdf.TermBlank {
		if items := d.list(nodeKey(t)); len(items) > 0 {
			return items[0]
		}
	}
	return t.String()
}

func (d *Document) list(head string) []string {
	var out []string
	for n, guard := head, 0; n != "" && n != rdfNil && guard < 64; guard++ {
		if first, ok := d.value(n, rdfFirst); ok {
			out = append(out, first)
		}
		rest := d.objects(n, rdfRest)
		if len(rest) == 0 {
			break
		}
		n = nodeKey(rest[0])
	}
	return out
}

// LocalName returns the part of an IRI after its last '#' or '/'.
func LocalName(iri string) string {
	if i := strings.LastIndexAny(iri, "#/"); i >= 0 && i < len(iri)-1 {
		return iri[i+1:]
	}
	return iri
}
