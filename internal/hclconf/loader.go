// Package hclconf loads pipeline definitions written in HCL.
//
// Condition expressions and input mappings are kept as raw hcl.Expression
// values rather than being evaluated at load time, so a stage's
// configuration can reference the outputs of other stages (`stage.a.result`)
// and the run's inputs (`run.key`). Structural attributes such as ids,
// kinds, dependency lists, and policies must be literals and are decoded
// immediately.
package hclconf

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/gridflow/internal/config"
	"github.com/vk/gridflow/internal/ctxlog"
	"github.com/vk/gridflow/internal/fsutil"
)

// Extension is the file suffix this loader claims.
const Extension = ".hcl"

// Loader implements config.Loader for HCL pipeline files.
type Loader struct {
	parser *hclparse.Parser
}

// NewLoader returns a fresh HCL loader.
func NewLoader() *Loader {
	return &Loader{parser: hclparse.NewParser()}
}

var rootSchema = &hcl.BodySchema{
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "pipeline", LabelNames: []string{"name"}},
		{Type: "stage", LabelNames: []string{"id"}},
	},
}

// Load implements config.Loader.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)

	var files []string
	for _, path := range paths {
		found, err := fsutil.FindFilesByExtension(path, Extension)
		if err != nil {
			return nil, fmt.Errorf("scanning %q: %w", path, err)
		}
		files = append(files, found...)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no %s files found in %v", Extension, paths)
	}
	logger.Debug("Loading HCL pipeline definitions.", "files", len(files))

	out := &config.Model{}
	var diags hcl.Diagnostics
	for _, file := range files {
		f, parseDiags := l.parser.ParseHCLFile(file)
		diags = append(diags, parseDiags...)
		if parseDiags.HasErrors() {
			continue
		}
		content, contentDiags := f.Body.Content(rootSchema)
		diags = append(diags, contentDiags...)
		for _, block := range content.Blocks {
			switch block.Type {
			case "pipeline":
				pipelineDiags := decodePipeline(block, &out.Pipeline)
				diags = append(diags, pipelineDiags...)
			case "stage":
				stage, stageDiags := decodeStage(block)
				diags = append(diags, stageDiags...)
				if stage != nil {
					out.Stages = append(out.Stages, stage)
				}
			}
		}
	}
	if diags.HasErrors() {
		return nil, diags
	}
	return out, nil
}

var pipelineSchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{
		{Name: "concurrency"},
	},
}

func decodePipeline(block *hcl.Block, p *config.Pipeline) hcl.Diagnostics {
	p.Name = block.Labels[0]
	content, diags := block.Body.Content(pipelineSchema)
	if attr, ok := content.Attributes["concurrency"]; ok {
		n, numDiags := literalInt(attr)
		diags = append(diags, numDiags...)
		p.Concurrency = n
	}
	return diags
}
