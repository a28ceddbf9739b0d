package graphbuild

import (
	"fmt"

	"github.com/biographdb/biograph-backend/internal/data/entitystore"
	pkgerrors "github.com/biographdb/biograph-backend/internal/pkg/errors"
)

var (
	DefaultNodeCollections = []string{"disorder", "drug", "gene", "protein"}
	DefaultEdgeCollections = []string{
		"disorder_is_subtype_of_disorder",
		"drug_has_indication",
		"drug_has_target",
		"gene_associated_with_disorder",
		"protein_encoded_by",
		"protein_interacts_with_protein",
	}

	ValidIIDEvidence = []string{"exp", "ortho", "pred"}
	ValidTaxIDs      = []int{-1, 9606}
	ValidDrugGroups  = []string{
		"approved",
		"experimental",
		"illicit",
		"investigational",
		"nutraceutical",
		"vet_approved",
		"withdrawn",
	}
)

// Spec is the normalized build request. All fields are required; defaults are
// applied by FromParams before fingerprinting, so "absent" and "default" are
// never distinct states.
type Spec struct {
	Nodes             []string `json:"nodes"`
	Edges             []string `json:"edges"`
	IIDEvidence       []string `json:"iid_evidence"`
	PPISelfLoops      bool     `json:"ppi_self_loops"`
	TaxID             []int    `json:"taxid"`
	DrugGroups        []string `json:"drug_groups"`
	Concise           bool     `json:"concise"`
	IncludeOMIM       bool     `json:"include_omim"`
	DisgenetThreshold float64  `json:"disgenet_threshold"`
	UseOMIMIDs        bool     `json:"use_omim_ids"`
	SplitDrugTypes    bool     `json:"split_drug_types"`
}

func DefaultSpec() Spec {
	return Spec{
		Nodes:             append([]string(nil), DefaultNodeCollections...),
		Edges:             append([]string(nil), DefaultEdgeCollections...),
		IIDEvidence:       []string{"exp"},
		PPISelfLoops:      false,
		TaxID:             []int{9606},
		DrugGroups:        []string{"approved"},
		Concise:           true,
		IncludeOMIM:       true,
		DisgenetThreshold: 0,
		UseOMIMIDs:        false,
		SplitDrugTypes:    false,
	}
}

// Validate checks every list-valued field against its documented value set.
func (s Spec) Validate() error {
	if err := checkValues(s.Nodes, entitystore.NodeCollectionNames, "nodes"); err != nil {
		return err
	}
	if err := checkValues(s.Edges, entitystore.EdgeCollectionNames, "edges"); err != nil {
		return err
	}
	if err := checkValues(s.IIDEvidence, ValidIIDEvidence, "iid_evidence"); err != nil {
		return err
	}
	if err := checkInts(s.TaxID, ValidTaxIDs, "taxid"); err != nil {
		return err
	}
	if err := checkValues(s.DrugGroups, ValidDrugGroups, "drug_groups"); err != nil {
		return err
	}
	return nil
}

func checkValues(supplied, valid []string, property string) error {
	var invalid []string
	for _, v := range supplied {
		if !containsStr(valid, v) {
			invalid = append(invalid, v)
		}
	}
	if len(invalid) > 0 {
		return fmt.Errorf("%w: invalid value(s) for %s: %v", pkgerrors.ErrInvalidArgument, property, invalid)
	}
	return nil
}

func checkInts(supplied, valid []int, property string) error {
	var invalid []int
	for _, v := range supplied {
		found := false
		for _, w := range valid {
			if v == w {
				found = true
				break
			}
		}
		if !found {
			invalid = append(invalid, v)
		}
	}
	if len(invalid) > 0 {
		return fmt.Errorf("%w: invalid value(s) for %s: %v", pkgerrors.ErrInvalidArgument, property, invalid)
	}
	return nil
}

func containsStr(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
