package match

import (
	"testing"
)

func TestParseMode(t *testing.T) {
	if mode, err := ParseMode(""); err != nil || mode != ModeHard {
		t.Fatalf("expected hard default, got %v %v", mode, err)
	}
	if mode, err := ParseMode("Soft"); err != nil || mode != ModeSoft {
		t.Fatalf("expected soft, got %v %v", mode, err)
	}
	if _, err := ParseMode("fuzzy"); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}

func TestEntityConfigValidate(t *testing.T) {
	valid := EntityConfig{
		FeatureLabel: "gene_expression",
		EntityType:   "gene",
		IDType:       "HGNC_Symbol",
		MatchMode:    ModeHard,
		FilePath:     "expr.csv",
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}

	unknown := valid
	unknown.EntityType = "chromosome"
	if err := unknown.Validate(); err == nil {
		t.Fatalf("expected error for unknown entity type")
	}

	badID := valid
	badID.IDType = "Uniprot_ID"
	if err := badID.Validate(); err == nil {
		t.Fatalf("expected error for unregistered id_type")
	}

	noID := valid
	noID.IDType = ""
	if err := noID.Validate(); err == nil {
		t.Fatalf("expected error for hard match without id_type")
	}

	soft := EntityConfig{
		FeatureLabel: "clinical",
		EntityType:   "phenotype",
		MatchMode:    ModeSoft,
		FilePath:     "clinical.csv",
	}
	if err := soft.Validate(); err != nil {
		t.Fatalf("expected valid soft config, got %v", err)
	}
	soft.IDType = "HPO_ID"
	if err := soft.Validate(); err == nil {
		t.Fatalf("expected error for soft match with id_type")
	}

	virtual := EntityConfig{
		FeatureLabel: "promoter",
		EntityType:   "promoter",
		MatchMode:    ModeHard,
		IsVirtual:    true,
	}
	if err := virtual.Validate(); err != nil {
		t.Fatalf("expected valid virtual config, got %v", err)
	}
	virtual.FilePath = "promoter.csv"
	if err := virtual.Validate(); err == nil {
		t.Fatalf("expected error for virtual config with file_path")
	}
}

func TestLabelConfigValidate(t *testing.T) {
	valid := LabelConfig{
		FeatureLabel: "survival",
		EntityType:   "label",
		FilePath:     "labels.csv",
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid label config, got %v", err)
	}

	multi := valid
	multi.LabelType = "multiclass"
	if err := multi.Validate(); err == nil {
		t.Fatalf("expected error for unsupported label type")
	}

	wrongType := valid
	wrongType.EntityType = "Gene"
	if err := wrongType.Validate(); err == nil {
		t.Fatalf("expected error for non-label entity type")
	}
}

func TestValidateJob(t *testing.T) {
	entities := []EntityConfig{
		{FeatureLabel: "expr", EntityType: "Gene", IDType: "HGNC_Symbol", MatchMode: ModeHard, FilePath: "a.csv"},
		{FeatureLabel: "meth", EntityType: "Promoter", IDType: "HGNC_Symbol", MatchMode: ModeHard, FilePath: "b.csv"},
	}
	label := &LabelConfig{FeatureLabel: "survival", EntityType: "label", FilePath: "y.csv"}
	finalize := FinalizeConfig{FileOrder: []string{"meth", "expr"}}

	if err := ValidateJob(entities, label, finalize); err != nil {
		t.Fatalf("expected valid job, got %v", err)
	}

	dup := append([]EntityConfig{}, entities...)
	dup[1].FeatureLabel = "expr"
	if err := ValidateJob(dup, nil, FinalizeConfig{FileOrder: []string{"expr"}}); err == nil {
		t.Fatalf("expected error for duplicate feature_label")
	}

	bad := FinalizeConfig{FileOrder: []string{"expr", "proteomics"}}
	if err := ValidateJob(entities, label, bad); err == nil {
		t.Fatalf("expected error for unknown file_order entry")
	}

	if err := ValidateJob(nil, nil, finalize); err == nil {
		t.Fatalf("expected error for empty entity list")
	}
}
