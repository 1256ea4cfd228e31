package sites

type AddSiteInput struct {
	Site string `json:"site" validate:"required"`
}

// StateInput uses a pointer so an explicit false passes "required".
type StateInput struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

type SnoozeDurationInput struct {
	Minutes int `json:"minutes" validate:"required,min=1"`
}
