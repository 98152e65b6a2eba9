package classifier

// Weights holds the scoring heuristic. Defaults come from DefaultWeights and
// can be overridden by a scoring file.
type Weights struct {
	NameExact           int `yaml:"name_exact" json:"nameExact"`
	NameWildcard        int `yaml:"name_wildcard" json:"nameWildcard"`
	NamePrefix          int `yaml:"name_prefix" json:"namePrefix"`
	NamePrefixMinLength int `yaml:"name_prefix_min_length" json:"namePrefixMinLength"`

	// Reference entry names a domain.
	DomainExact     int `yaml:"domain_exact" json:"domainExact"`
	DomainSubdomain int `yaml:"domain_subdomain" json:"domainSubdomain"`
	DomainUnknown   int `yaml:"domain_unknown" json:"domainUnknown"`

	// Reference entry is domain-agnostic.
	GenericWithDomain    int `yaml:"generic_with_domain" json:"genericWithDomain"`
	GenericWithoutDomain int `yaml:"generic_without_domain" json:"genericWithoutDomain"`

	HighThreshold   int `yaml:"high_threshold" json:"highThreshold"`
	MediumThreshold int `yaml:"medium_threshold" json:"mediumThreshold"`
}

func DefaultWeights() Weights {
	return Weights{
		NameExact:            60,
		NameWildcard:         45,
		NamePrefix:           30,
		NamePrefixMinLength:  3,
		DomainExact:          40,
		DomainSubdomain:      25,
		DomainUnknown:        5,
		GenericWithDomain:    10,
		GenericWithoutDomain: 5,
		HighThreshold:        90,
		MediumThreshold:      60,
	}
}

func (w Weights) confidence(score int) Confidence {
	switch {
	case score >= w.HighThreshold:
		return ConfidenceHigh
	case score >= w.MediumThreshold:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}
