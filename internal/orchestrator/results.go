package orchestrator

// State is the per-campaign processing state. Aborted is reachable only from
// the fatal template-staging conditions; product and pair failures leave the
// campaign in Processing and it ends Completed with mixed records.
type State string

const (
	StateValidated       State = "validated"
	StateTemplatesStaged State = "templates_staged"
	StateProcessing      State = "processing"
	StateCompleted       State = "completed"
	StateAborted         State = "aborted"
)

// Outcome is the result of one product x template pair.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
)

// RenditionResult records the outcome of one product x template pair.
// OutputPath is set only on success.
type RenditionResult struct {
	ProductFileID  string  `json:"product_file_id"`
	TemplateFileID string  `json:"template_file_id"`
	Outcome        Outcome `json:"outcome"`
	Reason         string  `json:"reason,omitempty"`
	OutputPath     string  `json:"output_path,omitempty"`
}

// ProductResult aggregates one product's renditions, or the reason the whole
// product was skipped.
type ProductResult struct {
	FileID     string            `json:"file_id"`
	Name       string            `json:"name"`
	Skipped    bool              `json:"skipped,omitempty"`
	SkipReason string            `json:"skip_reason,omitempty"`
	Renditions []RenditionResult `json:"renditions,omitempty"`
}

// CampaignSummary is the orchestrator's result for one campaign run.
// Products are listed in the brief's declared product order, and each
// product's renditions in the brief's declared template order, regardless of
// completion order.
type CampaignSummary struct {
	Campaign    string          `json:"campaign"`
	BriefFile   string          `json:"brief_file"`
	State       State           `json:"state"`
	AbortReason string          `json:"abort_reason,omitempty"`
	Products    []ProductResult `json:"products,omitempty"`

	Succeeded       int `json:"succeeded"`
	Failed          int `json:"failed"`
	SkippedProducts int `json:"skipped_products"`
}

// Renditions flattens the per-product results in summary order.
func (s *CampaignSummary) Renditions() []RenditionResult {
	var out []RenditionResult
	for _, p := range s.Products {
		out = append(out, p.Renditions...)
	}
	return out
}

// tally recomputes the success/failure/skip counts from the product records.
func (s *CampaignSummary) tally() {
	s.Succeeded, s.Failed, s.SkippedProducts = 0, 0, 0
	for _, p := range s.Products {
		if p.Skipped {
			s.SkippedProducts++
			continue
		}
		for _, r := range p.Renditions {
			if r.Outcome == OutcomeSuccess {
				s.Succeeded++
			} else {
				s.Failed++
			}
		}
	}
}
