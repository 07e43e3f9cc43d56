package model

import (
	"slices"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Form limits.
const (
	MaxResources         = 5
	MaxCompetitors       = 5
	MaxMarketingMessages = 5
)

// Objective is a predefined business objective.
type Objective struct {
	ID          string `json:"id" yaml:"id"`
	Label       string `json:"label" yaml:"label"`
	Description string `json:"description" yaml:"description"`
}

// Option is a selectable value with a display label.
type Option struct {
	Value string `json:"value" yaml:"value"`
	Label string `json:"label" yaml:"label"`
}

var objectives = []Objective{
	{
		ID:          "increase_leads",
		Label:       "Increase Leads",
		Description: "Aiming to increase qualified lead generation by 30% in the next quarter through improved targeting and conversion optimization.",
	},
	{
		ID:          "boost_revenue",
		Label:       "Boost Revenue",
		Description: "Looking to increase monthly recurring revenue by 25% within the next 6 months by optimizing pricing strategy and reducing churn.",
	},
	{
		ID:          "grow_brand",
		Label:       "Grow Brand",
		Description: "Focused on increasing brand awareness and recognition in the technology sector, particularly among decision-makers at mid-sized companies.",
	},
	{
		ID:          "expand_team",
		Label:       "Expand Team",
		Description: "Planning to grow the team by adding 5-10 new roles in engineering and marketing over the next year to support product development and growth initiatives.",
	},
	{
		ID:          "enter_new_markets",
		Label:       "Enter New Markets",
		Description: "Exploring expansion into European markets in the next 12 months, with particular focus on Germany and the UK.",
	},
	{
		ID:          "optimize_funnel",
		Label:       "Optimize Funnel",
		Description: "Working to improve conversion rates throughout the sales funnel, particularly focusing on the demo-to-paid conversion which is currently at 15%.",
	},
	{
		ID:          "raise_funding",
		Label:       "Raise Funding",
		Description: "Preparing for a Series A funding round in the next 6-8 months, targeting $5-7M to accelerate growth and product development.",
	},
	{
		ID:          "automate_tasks",
		Label:       "Automate Tasks",
		Description: "Looking to implement automation for repetitive marketing and customer onboarding tasks to improve efficiency and reduce operational costs.",
	},
	{
		ID:          "retain_existing_customers",
		Label:       "Retain existing customers",
		Description: "Looking to retain existing customers by providing exceptional customer service and support.",
	},
}

var markets = []string{
	"North America",
	"Europe",
	"Asia Pacific",
	"Australia",
	"South America",
	"Middle East",
	"Africa",
	"United Kingdom",
	"India",
	"China",
	"Japan",
}

var brandVoiceValues = []string{
	"bold", "friendly", "technical", "trustworthy", "creative",
	"helpful", "empathetic", "inspiring", "witty", "energetic",
}

// Objectives returns a copy of the predefined objective catalog.
func Objectives() []Objective {
	out := make([]Objective, len(objectives))
	copy(out, objectives)
	return out
}

// LookupObjective finds a predefined objective by id.
func LookupObjective(id string) (Objective, bool) {
	for _, o := range objectives {
		if o.ID == id {
			return o, true
		}
	}
	return Objective{}, false
}

// IsMarket reports whether m is a selectable geographic market.
func IsMarket(m string) bool {
	return slices.Contains(markets, m)
}

// IsBrandVoice reports whether v is a selectable brand voice value.
func IsBrandVoice(v string) bool {
	return slices.Contains(brandVoiceValues, v)
}

// Markets returns the selectable geographic markets.
func Markets() []string {
	out := make([]string, len(markets))
	copy(out, markets)
	return out
}

// BrandVoices returns the brand voice options with title-cased labels.
func BrandVoices() []Option {
	title := cases.Title(language.English)
	out := make([]Option, 0, len(brandVoiceValues))
	for _, v := range brandVoiceValues {
		out = append(out, Option{Value: v, Label: title.String(v)})
	}
	return out
}
