package json

import "github.com/fwojciec/hangar"

type usageDTO struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

func newUsageDTO(u hangar.Usage) *usageDTO {
	return &usageDTO{InputTokens: u.InputTokens, OutputTokens: u.OutputTokens}
}
