// Package stageid defines the structured identifier format for stages in a
// pipeline graph.
//
// A stage id is a dot-separated path of segments, each optionally carrying a
// bracketed instance index. Plain stages authored in a pipeline definition
// have a single segment ("extract"). Expansion of a subworkflow prefixes the
// inner stage ids with the subworkflow's own id ("ingest.extract"), and a
// dynamic fork clones its branch template once per item, producing indexed
// instances ("fanout[3].publish").
package stageid

import (
	"fmt"
	"strconv"
	"strings"
)

// Segment is a single component of a stage address, e.g. `name[index]`.
type Segment struct {
	Name  string
	Index int // -1 indicates no index is present.
}

// HasIndex reports whether the segment carries an explicit instance index.
func (s Segment) HasIndex() bool { return s.Index >= 0 }

func (s Segment) String() string {
	if s.HasIndex() {
		return fmt.Sprintf("%s[%d]", s.Name, s.Index)
	}
	return s.Name
}

// Address is the structured representation of a stage identifier.
type Address struct {
	Path []Segment
}

// String serializes the address into its canonical dotted form.
func (a *Address) String() string {
	if a == nil {
		return ""
	}
	var sb strings.Builder
	for i, seg := range a.Path {
		if i > 0 {
			sb.WriteRune('.')
		}
		sb.WriteString(seg.String())
	}
	return sb.String()
}

// Parse splits a canonical stage id string back into an Address. An empty
// string, an empty segment, or a malformed index is an error.
func Parse(id string) (*Address, error) {
	if id == "" {
		return nil, fmt.Errorf("empty stage id")
	}
	parts := strings.Split(id, ".")
	addr := &Address{Path: make([]Segment, 0, len(parts))}
	for _, part := range parts {
		if part == "" {
			return nil, fmt.Errorf("stage id %q contains an empty segment", id)
		}
		seg := Segment{Name: part, Index: -1}
		if open := strings.IndexByte(part, '['); open >= 0 {
			if !strings.HasSuffix(part, "]") {
				return nil, fmt.Errorf("stage id %q has an unterminated index", id)
			}
			idx, err := strconv.Atoi(part[open+1 : len(part)-1])
			if err != nil || idx < 0 {
				return nil, fmt.Errorf("stage id %q has an invalid index", id)
			}
			seg.Name = part[:open]
			seg.Index = idx
			if seg.Name == "" {
				return nil, fmt.Errorf("stage id %q has an index without a name", id)
			}
		}
		addr.Path = append(addr.Path, seg)
	}
	return addr, nil
}

// Qualify prefixes id with the given namespace, producing "prefix.id".
// It is the rewrite applied to every inner stage of an expanded subworkflow.
func Qualify(prefix, id string) string {
	return prefix + "." + id
}

// Instance produces the id of the i-th clone scope of a dynamic fork,
// e.g. Instance("fanout", 3) == "fanout[3]".
func Instance(id string, i int) string {
	return fmt.Sprintf("%s[%d]", id, i)
}
