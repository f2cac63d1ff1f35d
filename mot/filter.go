package mot

import "strings"

// Filter defines a function that filters an incoming array of Detections.
type Filter func([]Detection) []Detection

// NewKeywordFilter returns a Filter which keeps detections matching the allow list (see KeywordFilter).
func NewKeywordFilter(allowList []string) Filter {
	keywords := make([]string, len(allowList))
	copy(keywords, allowList)
	return func(in []Detection) []Detection {
		return KeywordFilter(in, keywords)
	}
}

// KeywordFilter keeps detections whose label contains at least one keyword (case-sensitive).
// An empty allow list yields an empty result.
func KeywordFilter(detections []Detection, allowList []string) []Detection {
	out := make([]Detection, 0, len(detections))
	if len(allowList) == 0 {
		return out
	}
	for _, det := range detections {
		for _, keyword := range allowList {
			if keyword != "" && strings.Contains(det.Label, keyword) {
				out = append(out, det)
				break
			}
		}
	}
	return out
}
