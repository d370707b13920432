package job

import (
	"github.com/OpenPrinting/goipp"

	"github.com/printcore/pappl/attr"
)

// Capabilities is the subset of a printer's driver data that admission
// checks need to validate a submission against. Kept separate from the
// printer package to avoid a job↔printer import cycle; printer.Printer
// builds one of these on demand.
type Capabilities struct {
	ColorSupported       []string
	MediaSupported       []string
	MediaSizeSupported   [][2]int // x-dimension, y-dimension, hundredths of mm
	SidesSupported       []string
	PrintQualitySupported []int32
	PrintScalingSupported []string
	PrintContentOptimize  []string
	PrintSpeedSupported   *goipp.Range
	PrintDarknessSupported bool
	ResolutionsSupported  []goipp.Resolution
	PageRangesSupported   bool
	StreamingFormats      map[string]struct{} // image/pwg-raster, image/urf
}

// Unsupported pairs an attribute that failed admission with the original
// tag/values it was submitted with, for echoing back in the
// unsupported-attributes group.
type Unsupported struct {
	Name string
	Tag  goipp.Tag
	Vals []attr.Value
}

// ValidateJobAttributes implements valid_job_attributes(): every submitted
// job-template attribute is checked against caps; offending attributes are
// collected (not just the first) so the response's unsupported-attributes
// group can list all of them at once.
func ValidateJobAttributes(submitted *attr.Collection, caps Capabilities) (job *attr.Collection, unsupported []Unsupported) {
	job = attr.New()
	fail := func(a attr.Attribute) {
		unsupported = append(unsupported, Unsupported{Name: a.Name, Tag: a.Tag, Vals: a.Vals})
	}

	submitted.Iterate(func(a attr.Attribute) bool {
		switch a.Name {
		case "copies":
			if v, ok := intValue(a); !ok || v < 1 || v > 999 || len(a.Vals) != 1 {
				fail(a)
				return true
			}
		case "ipp-attribute-fidelity":
			if _, ok := a.Value1().(goipp.Boolean); !ok || len(a.Vals) != 1 {
				fail(a)
				return true
			}
		case "job-hold-until":
			if s, ok := a.Value1().(goipp.String); !ok || string(s) != "no-hold" {
				fail(a)
				return true
			}
		case "job-impressions":
			if v, ok := intValue(a); !ok || v < 0 {
				fail(a)
				return true
			}
		case "job-priority":
			if v, ok := intValue(a); !ok || v < 1 || v > 100 {
				fail(a)
				return true
			}
		case "job-sheets":
			if s, ok := a.Value1().(goipp.String); !ok || string(s) != "none" {
				fail(a)
				return true
			}
		case "media":
			s, ok := a.Value1().(goipp.String)
			if !ok || !contains(caps.MediaSupported, string(s)) {
				fail(a)
				return true
			}
		case "media-col":
			if !validMediaCol(a, caps) {
				fail(a)
				return true
			}
		case "multiple-document-handling":
			s, ok := a.Value1().(goipp.String)
			if !ok || (string(s) != "separate-documents-uncollated-copies" && string(s) != "separate-documents-collated-copies") {
				fail(a)
				return true
			}
		case "orientation-requested":
			v, ok := intValue(a)
			if !ok || v < 3 || v > 7 {
				fail(a)
				return true
			}
		case "page-ranges":
			if !caps.PageRangesSupported {
				fail(a)
				return true
			}
			r, ok := a.Value1().(goipp.Range)
			if !ok || r.Lower < 1 || r.Upper < r.Lower {
				fail(a)
				return true
			}
		case "print-color-mode":
			s, ok := a.Value1().(goipp.String)
			if !ok || !contains(caps.ColorSupported, string(s)) {
				fail(a)
				return true
			}
		case "print-content-optimize":
			s, ok := a.Value1().(goipp.String)
			if !ok || !contains(caps.PrintContentOptimize, string(s)) {
				fail(a)
				return true
			}
		case "print-darkness":
			v, ok := intValue(a)
			if !ok || v < -100 || v > 100 || !caps.PrintDarknessSupported {
				fail(a)
				return true
			}
		case "print-quality":
			v, ok := intValue(a)
			if !ok || v < 3 || v > 5 {
				fail(a)
				return true
			}
		case "print-scaling":
			s, ok := a.Value1().(goipp.String)
			if !ok || !contains(caps.PrintScalingSupported, string(s)) {
				fail(a)
				return true
			}
		case "print-speed":
			v, ok := intValue(a)
			if !ok || caps.PrintSpeedSupported == nil || int(v) < caps.PrintSpeedSupported.Lower || int(v) > caps.PrintSpeedSupported.Upper {
				fail(a)
				return true
			}
		case "printer-resolution":
			r, ok := a.Value1().(goipp.Resolution)
			if !ok || !resolutionSupported(r, caps.ResolutionsSupported) {
				fail(a)
				return true
			}
		case "sides":
			s, ok := a.Value1().(goipp.String)
			if !ok || !contains(caps.SidesSupported, string(s)) {
				fail(a)
				return true
			}
		default:
			// Attributes this core does not itself enforce (vendor
			// extensions, etc.) pass through unexamined.
		}
		job.SetAttribute(a)
		return true
	})

	if !job.Has("job-name") {
		job.Set(goipp.TagName, "job-name", goipp.String("Untitled"))
	}

	return job, unsupported
}

func intValue(a attr.Attribute) (int32, bool) {
	if len(a.Vals) == 0 {
		return 0, false
	}
	i, ok := a.Vals[0].(goipp.Integer)
	return int32(i), ok
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func resolutionSupported(r goipp.Resolution, supported []goipp.Resolution) bool {
	for _, s := range supported {
		if s == r {
			return true
		}
	}
	return false
}

func validMediaCol(a attr.Attribute, caps Capabilities) bool {
	col, ok := a.Value1().(goipp.Collection)
	if !ok {
		return false
	}
	inner := attr.FromIPP(goipp.Attributes(col))

	if name, err := inner.GetKeyword("media-size-name"); err == nil {
		return contains(caps.MediaSupported, name)
	}
	size, err := inner.GetCollection("media-size")
	if err != nil {
		return false
	}
	x, errX := size.GetInteger("x-dimension")
	y, errY := size.GetInteger("y-dimension")
	if errX != nil || errY != nil {
		return false
	}
	for _, dims := range caps.MediaSizeSupported {
		if int(x) == dims[0] && int(y) == dims[1] {
			return true
		}
	}
	return false
}

// StreamingCopiesOK reports whether copies > 1 is acceptable for
// documentFormat: streaming raster formats only ever advertise copies=1 as
// supported, per §4.C's copies rule.
func StreamingCopiesOK(caps Capabilities, documentFormat string, copies int32) bool {
	if _, streaming := caps.StreamingFormats[documentFormat]; streaming {
		return copies == 1
	}
	return copies >= 1 && copies <= 999
}
