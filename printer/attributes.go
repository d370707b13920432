package printer

import (
	"fmt"
	"strings"
	"time"

	"github.com/OpenPrinting/goipp"

	"github.com/printcore/pappl/attr"
)

func timeSinceSeconds(t time.Time) float64 { return time.Since(t).Seconds() }

// TLSOption mirrors the system's TLS posture, needed here only to compute
// printer-uri-supported/-xri-supported.
type TLSOption int

const (
	TLSOff TLSOption = iota
	TLSOptional
	TLSRequired
)

// AttributesRequest carries the request-scoped facts Get-Printer-Attributes
// needs that are not themselves printer state: the client's Host header
// (for printer-icons), its accept-language (for printer-strings-uri
// matching), the system's TLS posture and port, and whether the system has
// a shutdown deadline set (drives printer-is-accepting-jobs).
type AttributesRequest struct {
	Host               string
	AcceptLanguage     string
	TLS                TLSOption
	Port               int
	SystemShuttingDown bool
	StringsLanguages   []string // languages with a printer-strings-uri resource
}

// ToAttributes renders the printer's static + dynamic attributes into dest,
// honoring filter. Callers are expected to have already called
// RefreshStatus.
func (p *Printer) ToAttributes(dest *attr.Collection, filter attr.RequestedAttributes, req AttributesRequest) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	add := func(tag goipp.Tag, name string, values ...attr.Value) {
		if filter.Matches(name) {
			dest.Set(tag, name, values...)
		}
	}

	xris := printerXRIs(req)

	add(goipp.TagName, "printer-name", goipp.String(p.Name))
	add(goipp.TagEnum, "printer-state", goipp.Integer(p.state))
	add(goipp.TagURI, "printer-uri-supported", uriValues(req)...)
	add(goipp.TagBeginCollection, "printer-xri-supported", xriCollectionValues(xris)...)
	add(goipp.TagKeyword, "uri-authentication-supported", xriAuthValues(xris)...)
	add(goipp.TagKeyword, "uri-security-supported", xriSecurityValues(xris)...)
	add(goipp.TagKeyword, "printer-location", goipp.String(p.Location))
	add(goipp.TagKeyword, "printer-organization", goipp.String(p.Organization))
	add(goipp.TagKeyword, "printer-organizational-unit", goipp.String(p.OrgUnit))
	add(goipp.TagBoolean, "printer-is-accepting-jobs", goipp.Boolean(!req.SystemShuttingDown))
	add(goipp.TagInteger, "printer-up-time", goipp.Integer(int(p.upTimeLocked())))
	add(goipp.TagInteger, "queued-job-count", goipp.Integer(len(p.activeJobs)))
	add(goipp.TagInteger, "printer-impressions-completed", goipp.Integer(p.impressionsCompleted))

	reasons := p.stateReasonsLocked()
	reasonVals := make([]attr.Value, len(reasons))
	for i, r := range reasons {
		reasonVals[i] = goipp.String(r)
	}
	add(goipp.TagKeyword, "printer-state-reasons", reasonVals...)

	add(goipp.TagInteger, "printer-config-change-time", goipp.Integer(p.configTime.Unix()))
	add(goipp.TagInteger, "printer-state-change-time", goipp.Integer(p.stateTime.Unix()))
	add(goipp.TagDateTime, "printer-config-change-date-time", goipp.Time{Time: p.configTime})
	add(goipp.TagDateTime, "printer-state-change-date-time", goipp.Time{Time: p.stateTime})

	if req.Host != "" {
		add(goipp.TagURI, "printer-icons",
			goipp.String(fmt.Sprintf("http://%s/icon-sm.png", req.Host)),
			goipp.String(fmt.Sprintf("http://%s/icon-md.png", req.Host)),
			goipp.String(fmt.Sprintf("http://%s/icon-lg.png", req.Host)))
	}

	if lang := matchStringsLanguage(req.AcceptLanguage, req.StringsLanguages); lang != "" {
		add(goipp.TagURI, "printer-strings-uri", goipp.String(fmt.Sprintf("http://%s/strings/%s.strings", req.Host, lang)))
	}

	add(goipp.TagKeyword, "print-color-mode-supported", stringValues(p.DriverData.ColorSupported)...)
	add(goipp.TagKeyword, "sides-supported", stringValues(p.DriverData.SidesSupported)...)
	add(goipp.TagKeyword, "media-supported", stringValues(p.DriverData.MediaSupported)...)

	resVals := make([]attr.Value, len(p.DriverData.Resolutions))
	for i, r := range p.DriverData.Resolutions {
		resVals[i] = r
	}
	add(goipp.TagResolution, "printer-resolution-supported", resVals...)

	supply, desc := p.supplyAttributesLocked()
	supplyVals := make([]attr.Value, len(supply))
	for i, s := range supply {
		supplyVals[i] = goipp.Binary(s)
	}
	add(goipp.TagString, "printer-supply", supplyVals...)
	add(goipp.TagText, "printer-supply-description", stringValues(desc)...)

	trays := p.inputTrayAttributesLocked()
	trayVals := make([]attr.Value, len(trays))
	for i, t := range trays {
		trayVals[i] = goipp.Binary(t)
	}
	add(goipp.TagString, "printer-input-tray", trayVals...)
}

func (p *Printer) upTimeLocked() int64 { return int64(timeSinceSeconds(p.startTime)) }

func (p *Printer) stateReasonsLocked() []string {
	switch {
	case p.isStopped && p.state != StateStopped:
		return []string{"moving-to-paused"}
	case p.state == StateStopped:
		return []string{"paused"}
	default:
		return []string{"none"}
	}
}

func (p *Printer) supplyAttributesLocked() (supply [][]byte, descriptions []string) {
	for i, s := range p.DriverData.Supplies {
		supply = append(supply, encodeSupplyState(i, s))
		descriptions = append(descriptions, s.Description)
	}
	return supply, descriptions
}

func (p *Printer) inputTrayAttributesLocked() [][]byte {
	var out [][]byte
	for _, src := range p.DriverData.MediaSources {
		t := InputTray{Type: "sheetFeedAutoRemovableTray", Name: src, MaxCapacity: -2, Level: -2}
		for _, m := range p.DriverData.MediaReady {
			if m.Source == src && m.populated() {
				t.MediaFeed = m.YDim
				t.MediaXFeed = m.XDim
				t.Level = -1
				break
			}
		}
		out = append(out, encodeInputTray(t))
	}
	return out
}

func uriValues(req AttributesRequest) []attr.Value {
	host := req.Host
	if host == "" {
		host = "localhost"
	}
	var out []attr.Value
	if req.TLS != TLSRequired {
		out = append(out, goipp.String(fmt.Sprintf("ipp://%s:%d/ipp/print", host, req.Port)))
	}
	if req.TLS != TLSOff {
		out = append(out, goipp.String(fmt.Sprintf("ipps://%s:%d/ipp/print", host, req.Port)))
	}
	return out
}

// xri is one printer-uri-supported entry's paired authentication/security
// posture, the per-URI breakdown printer-xri-supported/uri-authentication-
// supported/uri-security-supported all derive from.
type xri struct {
	uri            string
	authentication string
	security       string
}

// printerXRIs mirrors uriValues' TLS-option branching, pairing each
// advertised URI with the authentication/security scheme it actually
// offers: plain ipp:// carries none/none, ipps:// carries basic/tls since
// authorize() is HTTP Basic over TLS.
func printerXRIs(req AttributesRequest) []xri {
	host := req.Host
	if host == "" {
		host = "localhost"
	}
	var out []xri
	if req.TLS != TLSRequired {
		out = append(out, xri{
			uri:            fmt.Sprintf("ipp://%s:%d/ipp/print", host, req.Port),
			authentication: "none",
			security:       "none",
		})
	}
	if req.TLS != TLSOff {
		out = append(out, xri{
			uri:            fmt.Sprintf("ipps://%s:%d/ipp/print", host, req.Port),
			authentication: "basic",
			security:       "tls",
		})
	}
	return out
}

func xriCollectionValues(xris []xri) []attr.Value {
	out := make([]attr.Value, len(xris))
	for i, x := range xris {
		out[i] = goipp.Collection{
			{Name: "xri-uri", Values: goipp.Values{{T: goipp.TagURI, V: goipp.String(x.uri)}}},
			{Name: "xri-authentication", Values: goipp.Values{{T: goipp.TagKeyword, V: goipp.String(x.authentication)}}},
			{Name: "xri-security", Values: goipp.Values{{T: goipp.TagKeyword, V: goipp.String(x.security)}}},
		}
	}
	return out
}

func xriAuthValues(xris []xri) []attr.Value {
	out := make([]attr.Value, len(xris))
	for i, x := range xris {
		out[i] = goipp.String(x.authentication)
	}
	return out
}

func xriSecurityValues(xris []xri) []attr.Value {
	out := make([]attr.Value, len(xris))
	for i, x := range xris {
		out[i] = goipp.String(x.security)
	}
	return out
}

func stringValues(ss []string) []attr.Value {
	out := make([]attr.Value, len(ss))
	for i, s := range ss {
		out[i] = goipp.String(s)
	}
	return out
}

// matchStringsLanguage finds a strings resource matching accept exactly or
// by base-language prefix (e.g. "en" matches "en-us"), per printer-ipp.c's
// printer-strings-uri logic.
func matchStringsLanguage(accept string, available []string) string {
	if accept == "" {
		return ""
	}
	accept = strings.ToLower(accept)
	base := strings.SplitN(accept, "-", 2)[0]
	for _, lang := range available {
		l := strings.ToLower(lang)
		if l == accept {
			return lang
		}
	}
	for _, lang := range available {
		l := strings.ToLower(lang)
		if strings.SplitN(l, "-", 2)[0] == base {
			return lang
		}
	}
	return ""
}
