package graphbuild

import (
	"fmt"
	"sort"
	"strings"

	pkgerrors "github.com/biographdb/biograph-backend/internal/pkg/errors"
)

// FromParams turns a raw request parameter map into a validated Spec.
// Missing fields take their defaults, list values are lowercased, sorted and
// deduplicated, and the disgenet threshold is clamped to [-1, 2].
func FromParams(params map[string]any) (Spec, error) {
	spec := DefaultSpec()

	var err error
	if spec.Nodes, err = stringList(params, "nodes", spec.Nodes); err != nil {
		return spec, err
	}
	if spec.Edges, err = stringList(params, "edges", spec.Edges); err != nil {
		return spec, err
	}
	if spec.IIDEvidence, err = stringList(params, "iid_evidence", spec.IIDEvidence); err != nil {
		return spec, err
	}
	if spec.DrugGroups, err = stringList(params, "drug_groups", spec.DrugGroups); err != nil {
		return spec, err
	}
	if spec.TaxID, err = intList(params, "taxid", spec.TaxID); err != nil {
		return spec, err
	}

	if spec.PPISelfLoops, err = boolValue(params, "ppi_self_loops", spec.PPISelfLoops); err != nil {
		return spec, err
	}
	if spec.Concise, err = boolValue(params, "concise", spec.Concise); err != nil {
		return spec, err
	}
	if spec.IncludeOMIM, err = boolValue(params, "include_omim", spec.IncludeOMIM); err != nil {
		return spec, err
	}
	if spec.UseOMIMIDs, err = boolValue(params, "use_omim_ids", spec.UseOMIMIDs); err != nil {
		return spec, err
	}
	if spec.SplitDrugTypes, err = boolValue(params, "split_drug_types", spec.SplitDrugTypes); err != nil {
		return spec, err
	}

	if v, present := params["disgenet_threshold"]; present {
		f, ok := asFloat(v)
		if !ok {
			return spec, invalidSpec("disgenet_threshold must be a number")
		}
		// Out-of-range thresholds collapse onto sentinels: anything
		// negative means "no threshold", anything above the score scale
		// means "exclude all".
		switch {
		case f < 0:
			f = -1
		case f > 1:
			f = 2
		}
		spec.DisgenetThreshold = f
	}

	if err := spec.Validate(); err != nil {
		return spec, err
	}
	return spec, nil
}

func invalidSpec(format string, args ...any) error {
	return fmt.Errorf("%w: %s", pkgerrors.ErrInvalidArgument, fmt.Sprintf(format, args...))
}

func stringList(params map[string]any, key string, def []string) ([]string, error) {
	v, present := params[key]
	if !present || v == nil {
		return def, nil
	}
	var values []string
	switch list := v.(type) {
	case []string:
		values = list
	case []any:
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, invalidSpec("%s must be a list of strings", key)
			}
			values = append(values, s)
		}
	default:
		return nil, invalidSpec("%s must be a list of strings", key)
	}

	set := make(map[string]bool, len(values))
	for _, s := range values {
		set[strings.ToLower(strings.TrimSpace(s))] = true
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out, nil
}

func intList(params map[string]any, key string, def []int) ([]int, error) {
	v, present := params[key]
	if !present || v == nil {
		return def, nil
	}
	var values []int
	switch list := v.(type) {
	case []int:
		values = list
	case []any:
		for _, item := range list {
			f, ok := asFloat(item)
			if !ok || f != float64(int(f)) {
				return nil, invalidSpec("%s must be a list of integers", key)
			}
			values = append(values, int(f))
		}
	default:
		return nil, invalidSpec("%s must be a list of integers", key)
	}

	set := make(map[int]bool, len(values))
	for _, n := range values {
		set[n] = true
	}
	out := make([]int, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	sort.Ints(out)
	return out, nil
}

func boolValue(params map[string]any, key string, def bool) (bool, error) {
	v, present := params[key]
	if !present || v == nil {
		return def, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, invalidSpec("%s must be a boolean", key)
	}
	return b, nil
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}
