package model

import (
	"github.com/hashicorp/hcl/v2"
)

// ForkSpec describes the runtime-determined branch set of a fork stage.
// The items expression is evaluated when the fork stage runs; the template
// is then cloned once per item under the fork's id namespace.
type ForkSpec struct {
	// Items must evaluate to a list or tuple. Its length determines the
	// clone count for this run; the count may differ between runs.
	Items hcl.Expression
	// Template is the fragment of stages cloned per item. Template stages
	// without intra-template dependencies implicitly depend on the fork
	// stage itself.
	Template []*Stage
}

// SubworkflowSpec describes the reusable fragment wrapped by a subworkflow
// stage. Expansion clones every fragment stage under the subworkflow's id
// prefix at build time.
type SubworkflowSpec struct {
	// Fragment is the set of inner stages. Dependency references between
	// fragment stages are rewritten with the subworkflow's prefix.
	Fragment []*Stage
	// Entry names the fragment stages that additionally inherit the
	// subworkflow stage's own external dependencies. When empty, the
	// fragment stages without intra-fragment dependencies are the entries.
	Entry []string
}
