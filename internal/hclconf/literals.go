package hclconf

import (
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// Structural attributes must be decidable at load time; they may not
// reference other stages. The helpers below evaluate an attribute with no
// variable context and report a diagnostic when that is impossible.

func literalValue(attr *hcl.Attribute, want cty.Type) (cty.Value, hcl.Diagnostics) {
	var diags hcl.Diagnostics
	if len(attr.Expr.Variables()) > 0 {
		diags = append(diags, &hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Literal value required",
			Detail:   "This attribute is structural and cannot reference stage outputs.",
			Subject:  attr.Expr.Range().Ptr(),
		})
		return cty.NilVal, diags
	}
	val, valDiags := attr.Expr.Value(nil)
	diags = append(diags, valDiags...)
	if diags.HasErrors() {
		return cty.NilVal, diags
	}
	converted, err := convert.Convert(val, want)
	if err != nil {
		diags = append(diags, &hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Invalid attribute type",
			Detail:   err.Error(),
			Subject:  attr.Expr.Range().Ptr(),
		})
		return cty.NilVal, diags
	}
	return converted, diags
}

func literalString(attr *hcl.Attribute) (string, hcl.Diagnostics) {
	val, diags := literalValue(attr, cty.String)
	if diags.HasErrors() || val.IsNull() {
		return "", diags
	}
	return val.AsString(), diags
}

func literalStringList(attr *hcl.Attribute) ([]string, hcl.Diagnostics) {
	val, diags := literalValue(attr, cty.List(cty.String))
	if diags.HasErrors() || val.IsNull() {
		return nil, diags
	}
	var out []string
	for _, v := range val.AsValueSlice() {
		if !v.IsNull() {
			out = append(out, v.AsString())
		}
	}
	return out, diags
}

func literalInt(attr *hcl.Attribute) (int, hcl.Diagnostics) {
	val, diags := literalValue(attr, cty.Number)
	if diags.HasErrors() || val.IsNull() {
		return 0, diags
	}
	n, _ := val.AsBigFloat().Int64()
	return int(n), diags
}

func literalFloat(attr *hcl.Attribute) (float64, hcl.Diagnostics) {
	val, diags := literalValue(attr, cty.Number)
	if diags.HasErrors() || val.IsNull() {
		return 0, diags
	}
	f, _ := val.AsBigFloat().Float64()
	return f, diags
}

func literalBool(attr *hcl.Attribute) (bool, hcl.Diagnostics) {
	val, diags := literalValue(attr, cty.Bool)
	if diags.HasErrors() || val.IsNull() {
		return false, diags
	}
	return val.True(), diags
}

func literalDuration(attr *hcl.Attribute) (time.Duration, hcl.Diagnostics) {
	s, diags := literalString(attr)
	if diags.HasErrors() || s == "" {
		return 0, diags
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		diags = append(diags, &hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Invalid duration",
			Detail:   err.Error(),
			Subject:  attr.Expr.Range().Ptr(),
		})
		return 0, diags
	}
	return d, diags
}
