package brief

import "fmt"

// ValidationReport lists structural problems found in a brief. Errors
// invalidate the whole campaign; warnings identify products that will be
// skipped during processing. Validation never touches the network.
type ValidationReport struct {
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Valid reports whether the brief can be processed at all.
func (r *ValidationReport) Valid() bool {
	return len(r.Errors) == 0
}

func (r *ValidationReport) errorf(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *ValidationReport) warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Validate performs the structural checks of the campaign invariants:
// non-empty identity and messaging fields, a non-empty template list with
// file IDs on every template (they participate in every rendition's name),
// and per-product completeness. Template file IDs are campaign-level errors;
// product problems are warnings because processing skips those products and
// continues.
func (b *Brief) Validate() *ValidationReport {
	r := &ValidationReport{}

	if b.CampaignName == "" {
		r.errorf("campaign_name is required")
	}
	if b.CampaignMessage == "" {
		r.errorf("campaign_message is required")
	}
	if b.TargetAudience == "" {
		r.errorf("target_audience is required")
	}
	if b.TargetMarket == "" {
		r.errorf("target_market is required")
	}

	if len(b.Templates) == 0 {
		r.errorf("at least one template is required")
	}
	for i, t := range b.Templates {
		if t.Filename == "" {
			r.errorf("template %d: filename is required", i)
		}
		if t.FileID == "" {
			r.errorf("template %d (%s): file_id is required", i, t.Filename)
		}
	}

	if len(b.Products) == 0 {
		r.errorf("at least one product is required")
	}
	for i, p := range b.Products {
		if p.Name == "" {
			r.warnf("product %d: name is missing", i)
		}
		if p.FileID == "" {
			r.warnf("product %d (%s): file_id is missing, product will be skipped", i, p.Name)
		}
		if !p.HasImage() && !p.HasPrompt() {
			r.warnf("product %d (%s): neither image nor prompt given, product will be skipped", i, p.Name)
		}
	}

	return r
}
