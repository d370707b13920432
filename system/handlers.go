package system

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/OpenPrinting/goipp"

	"github.com/printcore/pappl/attr"
	"github.com/printcore/pappl/job"
	"github.com/printcore/pappl/printer"
)

// --- printer-targeted operations --------------------------------------------

func (s *System) handlePrintJob(ctx context.Context, p *printer.Printer, req Request) *goipp.Message {
	if req.Body == nil {
		return errorResponse(req.Message, goipp.StatusErrorBadRequest, "Print-Job requires a document body")
	}
	if s.ShuttingDown() {
		return errorResponse(req.Message, goipp.StatusErrorNotAcceptingJobs, "system is shutting down")
	}
	j, unsupported := s.admitJob(p, req)
	if j == nil {
		return unsupportedResponse(req.Message, unsupported)
	}
	if err := s.spoolDocument(j, req); err != nil {
		return errorResponse(req.Message, goipp.StatusErrorInternal, err.Error())
	}
	p.WakePipeline()
	return jobCreatedResponse(req.Message, j)
}

func (s *System) handleValidateJob(p *printer.Printer, req Request) *goipp.Message {
	attrs, _ := jobSubmissionAttrs(req)
	_, unsupported := job.ValidateJobAttributes(attrs, p.Capabilities())
	if len(unsupported) > 0 {
		return unsupportedResponse(req.Message, unsupported)
	}
	return successResponse(req.Message)
}

func (s *System) handleCreateJob(p *printer.Printer, req Request) *goipp.Message {
	if req.Body != nil {
		return errorResponse(req.Message, goipp.StatusErrorBadRequest, "Create-Job does not accept a document body")
	}
	if s.ShuttingDown() {
		return errorResponse(req.Message, goipp.StatusErrorNotAcceptingJobs, "system is shutting down")
	}
	j, unsupported := s.admitJob(p, req)
	if j == nil {
		return unsupportedResponse(req.Message, unsupported)
	}
	return jobCreatedResponse(req.Message, j)
}

func (s *System) handleSendDocument(ctx context.Context, p *printer.Printer, req Request) *goipp.Message {
	id, ok := jobIDFromRequest(req.Message)
	if !ok {
		return errorResponse(req.Message, goipp.StatusErrorBadRequest, "missing job-id")
	}
	j, ok := p.FindJob(id)
	if !ok {
		return errorResponse(req.Message, goipp.StatusErrorNotFound, fmt.Sprintf("no such job %d", id))
	}
	if s.ShuttingDown() {
		return errorResponse(req.Message, goipp.StatusErrorNotAcceptingJobs, "system is shutting down")
	}
	if err := s.spoolDocument(j, req); err != nil {
		return errorResponse(req.Message, goipp.StatusErrorInternal, err.Error())
	}
	p.WakePipeline()
	resp := successResponse(req.Message)
	dest := attr.New()
	j.ToAttributes(dest, attr.All())
	addGroup(resp, goipp.TagJobGroup, dest)
	return resp
}

func (s *System) handleGetJobAttributes(p *printer.Printer, req Request) *goipp.Message {
	id, ok := jobIDFromRequest(req.Message)
	if !ok {
		return errorResponse(req.Message, goipp.StatusErrorBadRequest, "missing job-id")
	}
	j, ok := p.FindJob(id)
	if !ok {
		return errorResponse(req.Message, goipp.StatusErrorNotFound, fmt.Sprintf("no such job %d", id))
	}
	resp := successResponse(req.Message)
	dest := attr.New()
	j.ToAttributes(dest, requestedAttributes(req.Message))
	addGroup(resp, goipp.TagJobGroup, dest)
	return resp
}

func (s *System) handleGetJobs(p *printer.Printer, req Request) *goipp.Message {
	resp := successResponse(req.Message)
	filter := requestedAttributes(req.Message)
	for _, j := range p.AllJobs() {
		dest := attr.New()
		j.ToAttributes(dest, filter)
		addGroup(resp, goipp.TagJobGroup, dest)
	}
	return resp
}

func (s *System) handleGetPrinterAttributes(p *printer.Printer, req Request) *goipp.Message {
	p.RefreshStatus(context.Background(), nil)
	resp := successResponse(req.Message)
	dest := attr.New()
	p.ToAttributes(dest, requestedAttributes(req.Message), printer.AttributesRequest{
		Host:               req.Host,
		AcceptLanguage:     req.AcceptLanguage,
		TLS:                printer.TLSOption(s.TLS),
		Port:               s.Port,
		SystemShuttingDown: s.ShuttingDown(),
	})
	addGroup(resp, goipp.TagPrinterGroup, dest)
	return resp
}

func (s *System) handleSetPrinterAttributes(p *printer.Printer, req Request) *goipp.Message {
	var location, organization, orgUnit string
	if a := findAttr(req.Message.Printer, "printer-location"); a != nil {
		location, _ = firstString(a)
	}
	if a := findAttr(req.Message.Printer, "printer-organization"); a != nil {
		organization, _ = firstString(a)
	}
	if a := findAttr(req.Message.Printer, "printer-organizational-unit"); a != nil {
		orgUnit, _ = firstString(a)
	}
	p.SetAttributes(location, organization, orgUnit)
	return successResponse(req.Message)
}

func (s *System) handleIdentifyPrinter(ctx context.Context, p *printer.Printer, req Request) *goipp.Message {
	var message string
	if a := findAttr(req.Message.Operation, "message"); a != nil {
		message, _ = firstString(a)
	}
	if err := p.Identify(ctx, nil, message); err != nil {
		return errorResponse(req.Message, goipp.StatusErrorNotPossible, err.Error())
	}
	return successResponse(req.Message)
}

func (s *System) handleCancelJob(ctx context.Context, p *printer.Printer, req Request) *goipp.Message {
	id, ok := jobIDFromRequest(req.Message)
	if !ok {
		return errorResponse(req.Message, goipp.StatusErrorBadRequest, "missing job-id")
	}
	j, ok := p.FindJob(id)
	if !ok {
		return errorResponse(req.Message, goipp.StatusErrorNotFound, fmt.Sprintf("no such job %d", id))
	}
	if !j.CanCancel() {
		return errorResponse(req.Message, goipp.StatusErrorNotPossible, "job is not in a cancelable state")
	}
	if err := j.Cancel(ctx); err != nil {
		return errorResponse(req.Message, goipp.StatusErrorNotPossible, err.Error())
	}
	return successResponse(req.Message)
}

// --- system-targeted operations ----------------------------------------------

func (s *System) handleGetSystemAttributes(req Request) *goipp.Message {
	resp := successResponse(req.Message)
	dest := attr.New()
	filter := requestedAttributes(req.Message)

	add := func(tag goipp.Tag, name string, values ...attr.Value) {
		if filter.Matches(name) {
			dest.Set(tag, name, values...)
		}
	}
	add(goipp.TagURI, "system-uuid", goipp.String("urn:uuid:"+s.UUID.String()))
	add(goipp.TagName, "system-name", goipp.String(s.Hostname))
	add(goipp.TagKeyword, "system-location", goipp.String(s.Location()))
	add(goipp.TagKeyword, "system-organization", goipp.String(s.Organization()))
	add(goipp.TagKeyword, "system-geo-location", goipp.String(s.GeoLocation()))
	add(goipp.TagBoolean, "system-is-shutting-down", goipp.Boolean(s.ShuttingDown()))

	var printerIDs []attr.Value
	for _, p := range s.Printers() {
		printerIDs = append(printerIDs, goipp.Integer(p.ID))
	}
	add(goipp.TagInteger, "printer-id", printerIDs...)

	addGroup(resp, goipp.TagSystemGroup, dest)
	return resp
}

func (s *System) handleGetPrinters(req Request) *goipp.Message {
	resp := successResponse(req.Message)
	filter := requestedAttributes(req.Message)
	for _, p := range s.Printers() {
		dest := attr.New()
		p.ToAttributes(dest, filter, printer.AttributesRequest{
			Host:               req.Host,
			AcceptLanguage:     req.AcceptLanguage,
			TLS:                printer.TLSOption(s.TLS),
			Port:               s.Port,
			SystemShuttingDown: s.ShuttingDown(),
		})
		addGroup(resp, goipp.TagPrinterGroup, dest)
	}
	return resp
}

func (s *System) handleCreatePrinter(req Request) *goipp.Message {
	if !req.AdminGroup {
		return errorResponse(req.Message, goipp.StatusErrorNotAuthorized, "admin group required")
	}
	var name, deviceURI string
	if a := findAttr(req.Message.Operation, "printer-name"); a != nil {
		name, _ = firstString(a)
	}
	if a := findAttr(req.Message.Operation, "smi55357-device-uri"); a != nil {
		deviceURI, _ = firstString(a)
	}
	if name == "" || deviceURI == "" {
		return errorResponse(req.Message, goipp.StatusErrorBadRequest, "printer-name and device-uri are required")
	}
	p := s.AddPrinter(name, deviceURI, printer.DriverData{Name: name})
	resp := successResponse(req.Message)
	dest := attr.New()
	dest.Set(goipp.TagInteger, "printer-id", goipp.Integer(p.ID))
	addGroup(resp, goipp.TagPrinterGroup, dest)
	return resp
}

func (s *System) handleDeletePrinter(ctx context.Context, req Request) *goipp.Message {
	var id int
	if a := findAttr(req.Message.Operation, "printer-id"); a != nil {
		if v, ok := firstInt(a); ok {
			id = int(v)
		}
	}
	if err := s.DeletePrinter(ctx, id); err != nil {
		return errorResponse(req.Message, goipp.StatusErrorNotFound, err.Error())
	}
	return successResponse(req.Message)
}

// --- shared helpers ----------------------------------------------------------

// admitJob extracts the submitted job-template/document attributes from req
// and runs them through the printer's admission check, returning the new
// job on success or the offending attributes on failure.
func (s *System) admitJob(p *printer.Printer, req Request) (*job.Job, []job.Unsupported) {
	attrs, format := jobSubmissionAttrs(req)

	name := "Untitled"
	if n, err := attrs.GetString("job-name"); err == nil && n != "" {
		name = n
	}
	username := req.User
	if username == "" {
		if a := findAttr(req.Message.Operation, "requesting-user-name"); a != nil {
			if u, ok := firstString(a); ok {
				username = u
			}
		}
	}
	if username == "" {
		username = "anonymous"
	}

	return p.CreateJob(username, name, attrs, format)
}

func jobSubmissionAttrs(req Request) (*attr.Collection, string) {
	c := attr.FromIPP(req.Message.Job)
	format := "application/octet-stream"
	if a := findAttr(req.Message.Operation, "document-format"); a != nil {
		if f, ok := firstString(a); ok && f != "" {
			format = f
		}
	}
	return c, format
}

// spoolDocument copies req.Body into the job's spool file, recording the
// path on j. A missing body (Validate-Job-style probes) is not an error.
func (s *System) spoolDocument(j *job.Job, req Request) error {
	if req.Body == nil {
		return nil
	}
	dir := s.spoolDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("system: spool dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("job-%d-%d.doc", j.PrinterID, j.ID))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("system: spool file: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, req.Body); err != nil {
		return fmt.Errorf("system: spool write: %w", err)
	}
	j.DocumentPath = path
	return nil
}

func (s *System) spoolDir() string {
	s.mu.RLock()
	dir := s.SpoolDir
	s.mu.RUnlock()
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "pappl-spool")
	}
	return dir
}

func unsupportedResponse(req *goipp.Message, unsupported []job.Unsupported) *goipp.Message {
	resp := errorResponse(req, goipp.StatusErrorAttributesOrValues, "one or more attributes are not supported")
	dest := attr.New()
	for _, u := range unsupported {
		dest.SetAttribute(attr.Attribute{Name: u.Name, Tag: u.Tag, Vals: u.Vals})
	}
	addGroup(resp, goipp.TagUnsupportedGroup, dest)
	return resp
}

func jobCreatedResponse(req *goipp.Message, j *job.Job) *goipp.Message {
	resp := successResponse(req)
	dest := attr.New()
	j.ToAttributes(dest, attr.All())
	addGroup(resp, goipp.TagJobGroup, dest)
	return resp
}

// addGroup appends one attribute group, converted from dest, to resp.
func addGroup(resp *goipp.Message, tag goipp.Tag, dest *attr.Collection) {
	attrs := dest.ToIPP()
	switch tag {
	case goipp.TagJobGroup:
		resp.Job = append(resp.Job, attrs...)
	case goipp.TagPrinterGroup:
		resp.Printer = append(resp.Printer, attrs...)
	default:
		resp.Groups.Add(goipp.Group{Tag: tag, Attrs: attrs})
	}
}
