package risk

// Presentation is how a tier is drawn on the dashboard. It is derived from the
// tier only and lives apart from Classify so the classifier stays UI-agnostic.
type Presentation struct {
	Color string `json:"color"`
	Label string `json:"label"`
}

var presentations = map[Tier]Presentation{
	TierLow:     {Color: "bg-emerald-500", Label: "Low Risk"},
	TierMedium:  {Color: "bg-yellow-500", Label: "Medium Risk"},
	TierHigh:    {Color: "bg-orange-500", Label: "High Risk"},
	TierExtreme: {Color: "bg-red-600", Label: "Extreme Risk"},
}

// Present returns the presentation for t; unknown tiers get a neutral grey.
func Present(t Tier) Presentation {
	if p, ok := presentations[t]; ok {
		return p
	}
	return Presentation{Color: "bg-gray-200", Label: "Unclassified"}
}
