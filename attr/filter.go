package attr

// RequestedAttributes is the normalized form of a client's
// "requested-attributes" operation attribute: either the "all" sentinel,
// the "none" sentinel, or an explicit set of names (with the standard group
// sentinels job-template, printer-description, and document-description
// expanded to their member lists).
type RequestedAttributes struct {
	all   bool
	none  bool
	names map[string]struct{}
}

// All returns a filter that matches every attribute.
func All() RequestedAttributes { return RequestedAttributes{all: true} }

// None returns a filter that matches nothing.
func None() RequestedAttributes { return RequestedAttributes{none: true} }

// NewRequestedAttributes normalizes a requested-attributes value list: the
// "all"/"none" sentinels are recognized anywhere in the list, and the
// group-sentinel names are expanded in place.
func NewRequestedAttributes(requested []string) RequestedAttributes {
	if len(requested) == 0 {
		return All()
	}
	names := make(map[string]struct{}, len(requested))
	for _, r := range requested {
		switch r {
		case "all":
			return All()
		case "none":
			return None()
		case "job-template":
			addAll(names, jobTemplateGroup)
		case "printer-description":
			addAll(names, printerDescriptionGroup)
		case "document-description":
			addAll(names, documentDescriptionGroup)
		default:
			names[r] = struct{}{}
		}
	}
	return RequestedAttributes{names: names}
}

func addAll(dst map[string]struct{}, src []string) {
	for _, s := range src {
		dst[s] = struct{}{}
	}
}

// Matches reports whether name should be included in a filtered response.
func (f RequestedAttributes) Matches(name string) bool {
	if f.none {
		return false
	}
	if f.all {
		return true
	}
	_, ok := f.names[name]
	return ok
}

// IsAll reports whether the filter is the "all" sentinel.
func (f RequestedAttributes) IsAll() bool { return f.all }

// The standard member lists for the three group sentinels recognized by
// requested-attributes (RFC 8011 §3.2.5.1 / PWG 5100.13 groupings). Trimmed
// to the members this core's printer/job attribute producers actually emit.
var jobTemplateGroup = []string{
	"copies-default", "copies-supported",
	"finishings-default", "finishings-supported",
	"job-hold-until-default", "job-hold-until-supported",
	"job-priority-default", "job-priority-supported",
	"job-sheets-default", "job-sheets-supported",
	"media-default", "media-supported", "media-ready", "media-col-default",
	"multiple-document-handling-default", "multiple-document-handling-supported",
	"orientation-requested-default", "orientation-requested-supported",
	"page-ranges-supported",
	"print-color-mode-default", "print-color-mode-supported",
	"print-content-optimize-default", "print-content-optimize-supported",
	"print-darkness-default", "print-darkness-supported",
	"print-quality-default", "print-quality-supported",
	"print-scaling-default", "print-scaling-supported",
	"print-speed-default", "print-speed-supported",
	"printer-resolution-default", "printer-resolution-supported",
	"sides-default", "sides-supported",
}

var printerDescriptionGroup = []string{
	"charset-configured", "charset-supported",
	"color-supported",
	"compression-supported",
	"document-format-default", "document-format-supported",
	"generated-natural-language-supported",
	"ipp-versions-supported",
	"natural-language-configured",
	"operations-supported",
	"pdl-override-supported",
	"printer-geo-location",
	"printer-icons",
	"printer-info",
	"printer-input-tray",
	"printer-is-accepting-jobs",
	"printer-location",
	"printer-more-info",
	"printer-name",
	"printer-organization", "printer-organizational-unit",
	"printer-state", "printer-state-reasons",
	"printer-state-change-date-time", "printer-state-change-time",
	"printer-config-change-date-time", "printer-config-change-time",
	"printer-strings-languages-supported", "printer-strings-uri",
	"printer-supply", "printer-supply-description",
	"printer-up-time",
	"printer-uri-supported", "printer-xri-supported",
	"queued-job-count",
	"uri-authentication-supported", "uri-security-supported",
}

var documentDescriptionGroup = []string{
	"compression", "document-format", "document-format-detected",
	"document-name", "document-name-supplied", "impressions",
	"impressions-completed", "k-octets",
}
