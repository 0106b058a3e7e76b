package pipeline

// AssetHandle is an opaque reference to bytes held in the remote transient
// store. Key is relative to the namespace; the store maps the pair onto a
// concrete object name. Handles are produced by one stage and consumed by the
// next, never mutated.
type AssetHandle struct {
	Namespace string `json:"namespace"`
	Key       string `json:"key"`
}

// IsZero reports whether the handle references nothing.
func (h AssetHandle) IsZero() bool {
	return h.Namespace == "" && h.Key == ""
}

// Text layer names every template is expected to carry. The orchestrator
// writes generated copy into these layers by name.
const (
	LayerCampaignText = "campaign_text"
	LayerCallToAction = "cta_text"
)

// CopyRequest carries the structured prompt fields for content generation.
type CopyRequest struct {
	ProductName     string `json:"product_name"`
	CampaignMessage string `json:"campaign_message"`
	TargetAudience  string `json:"target_audience"`
	TargetMarket    string `json:"target_market"`
}

// ProcessRequest represents a request to process a campaign brief
type ProcessRequest struct {
	BriefPath string            `json:"brief_path"`
	Job       string            `json:"job"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// ProcessResponse represents the response from triggering processing
type ProcessResponse struct {
	RunID     string `json:"run_id"`
	SeenCount int    `json:"seen_count"`
	BriefPath string `json:"brief_path"`
}

// JobType constants
const (
	JobCampaign = "campaign"
)
