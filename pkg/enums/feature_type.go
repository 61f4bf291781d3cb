package enums

import "fmt"

// FeatureType classifies how a catalog feature is metered.
type FeatureType string

const (
	FeatureTypeModule FeatureType = "module"
	FeatureTypeQuota  FeatureType = "quota"
	FeatureTypeToggle FeatureType = "toggle"
)

var validFeatureTypes = []FeatureType{
	FeatureTypeModule,
	FeatureTypeQuota,
	FeatureTypeToggle,
}

// String implements fmt.Stringer.
func (v FeatureType) String() string {
	return string(v)
}

// IsValid reports whether the value is known.
func (v FeatureType) IsValid() bool {
	for _, candidate := range validFeatureTypes {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseFeatureType converts raw input into a FeatureType.
func ParseFeatureType(value string) (FeatureType, error) {
	for _, candidate := range validFeatureTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid feature type %q", value)
}
