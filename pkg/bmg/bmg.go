// Package bmg holds the BioMedGraphica-Conn domain vocabulary: the entity
// types the knowledge graph ships, the raw identifier columns each type can
// be matched on, and the column names of the reference tables.
//
// The vocabulary mirrors the published database layout. Feature files are
// matched against exactly one entity type, either through a registered
// identifier column (hard match) or through embedding similarity over entity
// names (soft match).
package bmg

import "strings"

// Column names of the reference tables.
const (
	// CanonicalIDColumn is the primary identifier column present in every
	// entity table.
	CanonicalIDColumn = "BioMedGraphica_Conn_ID"

	// RelationFromColumn, RelationToColumn and RelationTypeColumn are the
	// columns of the global relation table.
	RelationFromColumn = "BMGC_From_ID"
	RelationToColumn   = "BMGC_To_ID"
	RelationTypeColumn = "Type"
)

// PPIEdgeType is the relation type partitioned into its own edge artifact.
const PPIEdgeType = "Protein-Protein"

// LabelEntityType marks a config as the prediction-target file rather than a
// feature file.
const LabelEntityType = "label"

// EntityTypes lists every entity type of the knowledge graph, in the
// database's canonical order.
var EntityTypes = []string{
	"Promoter",
	"Gene",
	"Transcript",
	"Protein",
	"Pathway",
	"Metabolite",
	"Microbiota",
	"Exposure",
	"Phenotype",
	"Disease",
	"Drug",
}

// HardIDTypes maps an entity type to the identifier columns its reference
// table carries. A hard-match config must name one of these.
var HardIDTypes = map[string][]string{
	"Promoter":   {"HGNC_Symbol", "Ensembl_Gene_ID", "Ensembl_Gene_ID_Version", "NCBI_Gene_ID", "HGNC_ID", "OMIM_ID", "RefSeq_ID"},
	"Gene":       {"HGNC_Symbol", "Ensembl_Gene_ID", "Ensembl_Gene_ID_Version", "NCBI_ID", "HGNC_ID", "OMIM_ID", "RefSeq_ID"},
	"Transcript": {"Ensembl_Gene_ID", "HGNC_Symbol", "Ensembl_Transcript_ID", "Ensembl_Transcript_ID_Version", "RefSeq_ID", "RNACentral_ID"},
	"Protein":    {"HGNC_Symbol", "Ensembl_Protein_ID", "Ensembl_Protein_ID_Version", "RefSeq_ID", "Uniprot_ID"},
	"Pathway":    {"PO_ID", "PO_Name", "KEGG_Name", "Reactome_Name", "Reactome_ID", "WikiPathways_Name", "WikiPathways_ID", "KEGG_ID"},
	"Metabolite": {"HMDB_ID", "PubChem_CID", "CAS_RN", "ChemSpider_ID", "PDB_ID", "ChEBI_ID", "KEGG_ID", "HMDB_Name", "ChEBI_Name", "IUPAC_Name", "SMILES", "InChI", "InChIKey"},
	"Microbiota": {"SILVA_ID", "Greengenes_ID", "RDP_ID", "RNAcentral_ID", "GTDB_ID", "NCBI_Taxonomy_Name", "NCBI_Taxonomy_ID"},
	"Exposure":   {"MeSH_ID", "CAS_RN"},
	"Phenotype":  {"HPO_ID", "HPO_Name", "UMLS_ID"},
	"Disease":    {"SNOMEDCT_ID", "UMLS_Name", "MeSH_Name", "ICD11_ID", "ICD11_Title", "ICD10_ID", "DO_ID", "DO_Name", "UMLS_ID", "MeSH_ID", "OMIM_ID", "MONDO_ID", "MONDO_Name", "SNOMEDCT_Name"},
	"Drug":       {"PubChem_CID", "PubChem_SID", "PubChem_Name", "CAS_RN", "IUPAC_Name", "UNII", "UNII_Name", "NDC", "DrugBank_ID", "DrugBank_Name", "PubChem_Canonical_SMILES", "UNII_SMILES", "InChI", "InChIKEY", "PubChem_Synonym"},
}

// NormalizeEntityType canonicalizes user-supplied entity type strings
// ("gene" and "GENE" both resolve to "Gene"). The empty string stays empty.
func NormalizeEntityType(entityType string) string {
	if entityType == "" {
		return ""
	}
	lower := strings.ToLower(entityType)
	if lower == LabelEntityType {
		return LabelEntityType
	}
	return strings.ToUpper(lower[:1]) + lower[1:]
}

// KnownEntityType reports whether entityType names a shipped entity table.
// Expects a normalized type.
func KnownEntityType(entityType string) bool {
	for _, t := range EntityTypes {
		if t == entityType {
			return true
		}
	}
	return false
}

// KnownIDType reports whether idType is a registered hard-match identifier
// column for entityType. Expects a normalized type.
func KnownIDType(entityType, idType string) bool {
	for _, id := range HardIDTypes[entityType] {
		if id == idType {
			return true
		}
	}
	return false
}
