package model

// EnrichmentObjective is a business objective suggested by the worker.
type EnrichmentObjective struct {
	Objective   string `json:"objective"`
	Description string `json:"description"`
}

// EnrichmentPayload is the result the enrichment worker reports through the
// callback. Field names follow the worker's snake_case wire format.
type EnrichmentPayload struct {
	CompanyName          string                `json:"company_name"`
	EmployeeRange        string                `json:"employee_range"`
	Industry             string                `json:"industry"`
	CompanyDescription   string                `json:"company_description"`
	TargetAudience       string                `json:"target_audience"`
	GeographicMarkets    []string              `json:"geographic_markets"`
	BrandVoice           []string              `json:"brand_voice"`
	Competitors          []string              `json:"competitors"`
	Differentiator       string                `json:"differentiator"`
	KeyMarketingMessages []string              `json:"key_marketing_messages"`
	Objectives           []EnrichmentObjective `json:"objectives"`
}

// WorkerRequest is the outbound dispatch sent to the enrichment worker.
type WorkerRequest struct {
	JobID              string `json:"jobId"`
	CallbackURL        string `json:"callbackUrl"`
	CompanyName        string `json:"companyName"`
	CompanyLinkedInURL string `json:"companyLinkedInUrl"`
	CompanyWebsiteURL  string `json:"companyWebsiteUrl,omitempty"`
}

// CallbackNotice is the inbound completion notice from the worker.
type CallbackNotice struct {
	JobID  string             `json:"jobId"`
	Status string             `json:"status"`
	Data   *EnrichmentPayload `json:"data,omitempty"`
	Error  string             `json:"error,omitempty"`
}
