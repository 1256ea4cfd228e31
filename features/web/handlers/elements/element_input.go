package elements

type ElementInput struct {
	Domain   string `json:"domain" validate:"required"`
	Selector string `json:"selector" validate:"required"`
}

type ElementStateInput struct {
	ElementInput
	Enabled *bool `json:"enabled" validate:"required"`
}

type PlanInput struct {
	Host string `query:"host" validate:"required"`
}
