package fetch

import (
	"net/url"
	"strings"
)

// Source identifies the registry or site a trial summary came from.
type Source string

const (
	SourceClinicalTrialsGov Source = "clinicaltrials.gov"
	SourceEUCTR             Source = "euclinicaltrials"
	SourceISRCTN            Source = "isrctn"
	SourceUnknown           Source = "unknown"
)

// DetectSource identifies the trial registry from a URL.
func DetectSource(urlStr string) Source {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return SourceUnknown
	}
	host := strings.ToLower(parsed.Hostname())

	switch {
	case host == "clinicaltrials.gov" || strings.HasSuffix(host, ".clinicaltrials.gov"):
		return SourceClinicalTrialsGov
	case strings.Contains(host, "euclinicaltrials.eu") || strings.Contains(host, "clinicaltrialsregister.eu"):
		return SourceEUCTR
	case host == "isrctn.com" || strings.HasSuffix(host, ".isrctn.com"):
		return SourceISRCTN
	}
	return SourceUnknown
}

// ContentSelectors returns content selectors tuned for a source, most
// specific first, ending with the generic ones.
func ContentSelectors(source Source) []string {
	var specific []string
	switch source {
	case SourceClinicalTrialsGov:
		specific = []string{"#brief-summary", ".brief-summary", "ctg-study-details", "#study-overview"}
	case SourceEUCTR:
		specific = []string{".trial-summary", "#trialSummary", "table.summary"}
	case SourceISRCTN:
		specific = []string{".ComplexTitle_primary", ".Info_section", "#plain-english-summary"}
	}
	return append(specific, DefaultTextSelectors()...)
}

// NoiseSelectors returns elements to strip for a source before extraction.
func NoiseSelectors(source Source) []string {
	common := []string{".share-buttons", ".breadcrumb", "[role='navigation']", "[aria-hidden='true']"}
	switch source {
	case SourceClinicalTrialsGov:
		return append(common, "ctg-header", "ctg-footer", ".usa-banner", ".disclaimer")
	case SourceEUCTR:
		return append(common, ".ecl-site-header", ".ecl-footer")
	case SourceISRCTN:
		return append(common, ".Header", ".Footer")
	}
	return common
}
