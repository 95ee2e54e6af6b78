// Package dictionary describes the clinical entities the portal can display:
// how the gateway names them, which fields they declare and how their TSV
// headers read.
package dictionary

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/genomics-portal/platform/pkg/clinical"
	"gopkg.in/yaml.v3"
)

type Entity struct {
	// Name is the gateway entity name, e.g. "primaryDiagnoses".
	Name           string            `yaml:"name" json:"name"`
	Title          string            `yaml:"title" json:"title"`
	Fields         []string          `yaml:"fields" json:"fields"`
	HeaderDisplays map[string]string `yaml:"headers" json:"headers,omitempty"`
}

type Catalog struct {
	// Entities is keyed by the url slug, e.g. "primary_diagnoses".
	Entities map[string]Entity `yaml:"entities" json:"entities"`
}

func Load(path string) (Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return DefaultCatalog(), err
	}
	var cat Catalog
	if err := yaml.Unmarshal(content, &cat); err != nil {
		return Catalog{}, fmt.Errorf("parsing entity dictionary: %w", err)
	}
	if len(cat.Entities) == 0 {
		return Catalog{}, fmt.Errorf("entity dictionary empty")
	}
	for slug, e := range cat.Entities {
		if e.Name == "" {
			return Catalog{}, fmt.Errorf("entity %q has no gateway name", slug)
		}
	}
	return cat, nil
}

// Lookup resolves an entity by slug or by gateway name, ignoring case.
func (c Catalog) Lookup(key string) (string, Entity, error) {
	if e, ok := c.Entities[strings.ToLower(key)]; ok {
		return strings.ToLower(key), e, nil
	}
	for slug, e := range c.Entities {
		if strings.EqualFold(slug, key) || strings.EqualFold(e.Name, key) {
			return slug, e, nil
		}
	}
	return "", Entity{}, fmt.Errorf("%q: %w", key, clinical.ErrUnknownEntity)
}

func (c Catalog) Slugs() []string {
	out := make([]string, 0, len(c.Entities))
	for slug := range c.Entities {
		out = append(out, slug)
	}
	sort.Strings(out)
	return out
}

// Headers merges the entity's headers with the completion titles.
func (e Entity) Headers() map[string]string {
	out := make(map[string]string, len(e.HeaderDisplays)+len(clinical.CompletionTitles))
	if e.Name == clinical.EntityDonor {
		for k, v := range clinical.CompletionTitles {
			out[k] = v
		}
	}
	for k, v := range e.HeaderDisplays {
		out[k] = v
	}
	return out
}

func DefaultCatalog() Catalog {
	return Catalog{Entities: map[string]Entity{
		"donor": {
			Name:  clinical.EntityDonor,
			Title: "Donor",
			Fields: []string{
				"donor_id", "submitter_donor_id", "program_id", "vital_status",
				"cause_of_death", "survival_time", "primary_site", "genetic_disorders",
			},
		},
		"sample_registration": {
			Name:  "sampleRegistration",
			Title: "Sample Registration",
			Fields: []string{
				"donor_id", "program_id", "submitter_donor_id", "gender",
				"submitter_specimen_id", "specimen_tissue_source", "tumour_normal_designation",
				"specimen_type", "submitter_sample_id", "sample_type",
			},
		},
		"specimens": {
			Name:  "specimens",
			Title: "Specimen",
			Fields: []string{
				"donor_id", "submitter_donor_id", "submitter_specimen_id", "submitter_primary_diagnosis_id",
				"pathological_tumour_staging_system", "specimen_acquisition_interval",
				"specimen_anatomic_location", "tumour_grading_system", "tumour_grade",
			},
		},
		"primary_diagnoses": {
			Name:  "primaryDiagnoses",
			Title: "Primary Diagnosis",
			Fields: []string{
				"donor_id", "submitter_donor_id", "submitter_primary_diagnosis_id",
				"age_at_diagnosis", "cancer_type_code", "basis_of_diagnosis",
				"number_lymph_nodes_examined", "clinical_tumour_staging_system",
			},
		},
		"treatments": {
			Name:  "treatments",
			Title: "Treatment",
			Fields: []string{
				"donor_id", "submitter_donor_id", "submitter_treatment_id", "submitter_primary_diagnosis_id",
				"treatment_type", "is_primary_treatment", "treatment_start_interval",
				"treatment_duration", "response_to_treatment",
			},
		},
		"chemotherapy": {
			Name:   "chemotherapy",
			Title:  "Chemotherapy",
			Fields: []string{"donor_id", "submitter_donor_id", "submitter_treatment_id", "drug_name", "drug_rxnormcui"},
		},
		"radiation": {
			Name:  "radiation",
			Title: "Radiation",
			Fields: []string{
				"donor_id", "submitter_donor_id", "submitter_treatment_id",
				"radiation_therapy_modality", "radiation_therapy_fractions", "radiation_therapy_dosage",
			},
		},
		"hormone_therapy": {
			Name:   "hormoneTherapy",
			Title:  "Hormone Therapy",
			Fields: []string{"donor_id", "submitter_donor_id", "submitter_treatment_id", "drug_name", "drug_rxnormcui"},
		},
		"follow_ups": {
			Name:  "followUps",
			Title: "Follow Up",
			Fields: []string{
				"donor_id", "submitter_donor_id", "submitter_follow_up_id", "submitter_primary_diagnosis_id",
				"interval_of_followup", "disease_status_at_followup",
			},
		},
		"exposure": {
			Name:   "exposure",
			Title:  "Exposure",
			Fields: []string{"donor_id", "submitter_donor_id", "tobacco_smoking_status", "alcohol_consumption_category"},
		},
		"family_history": {
			Name:   "familyHistory",
			Title:  "Family History",
			Fields: []string{"donor_id", "submitter_donor_id", "family_relative_id", "relationship_type"},
		},
		"comorbidity": {
			Name:   "comorbidity",
			Title:  "Comorbidity",
			Fields: []string{"donor_id", "submitter_donor_id", "comorbidity_type_code", "age_at_comorbidity_diagnosis"},
		},
		"biomarker": {
			Name:   "biomarker",
			Title:  "Biomarker",
			Fields: []string{"donor_id", "submitter_donor_id", "submitter_specimen_id", "test_interval", "psa_level"},
		},
	}}
}
