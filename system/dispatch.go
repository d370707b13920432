package system

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/OpenPrinting/goipp"

	"github.com/printcore/pappl/attr"
	"github.com/printcore/pappl/printer"
)

// Request bundles a decoded IPP message with the request-scoped HTTP facts
// the dispatcher and its handlers need (client host/language, auth
// identity, and an optional document body for Print-Job/Send-Document).
type Request struct {
	Message        *goipp.Message
	Host           string
	AcceptLanguage string
	User           string
	Authenticated  bool
	AdminGroup     bool
	PrintGroup     bool
	Body           io.Reader
}

// Dispatch routes req per §4.E: a specific printer, the default printer,
// a system-level operation, or the custom operation callback.
func (s *System) Dispatch(ctx context.Context, req Request) *goipp.Message {
	op := goipp.Op(req.Message.Code)

	target, targetErr := s.resolveTarget(req)

	switch {
	case target != nil:
		return s.dispatchPrinterOp(ctx, op, target, req)
	case isSystemOp(op):
		return s.dispatchSystemOp(ctx, op, req)
	case s.opCallback != nil:
		if handled, err := s.opCallback(uint16(op), s, nil); handled {
			if err != nil {
				return errorResponse(req.Message, goipp.StatusErrorInternal, err.Error())
			}
			return successResponse(req.Message)
		}
		fallthrough
	default:
		if targetErr != nil {
			return errorResponse(req.Message, goipp.StatusErrorNotFound, targetErr.Error())
		}
		return errorResponse(req.Message, goipp.StatusErrorOperationNotSupported, "operation not supported")
	}
}

// resolveTarget implements routing rules 1-2: a printer-uri naming a known
// printer, or "/"/"/ipp/print" with exactly one printer configured.
func (s *System) resolveTarget(req Request) (*printer.Printer, error) {
	uriAttr := findAttr(req.Message.Operation, "printer-uri")
	if uriAttr == nil {
		if s.SinglePrinterConfigured() {
			p, _ := s.DefaultPrinter()
			return p, nil
		}
		return nil, nil
	}

	raw, ok := firstString(uriAttr)
	if !ok {
		return nil, fmt.Errorf("printer-uri is not a string")
	}
	if u, err := url.Parse(raw); err == nil && (u.Path == "" || u.Path == "/" || u.Path == "/ipp/print") && s.SinglePrinterConfigured() {
		p, _ := s.DefaultPrinter()
		return p, nil
	}
	id, err := printerIDFromURI(raw)
	if err != nil {
		return nil, err
	}
	p, ok := s.Printer(id)
	if !ok {
		return nil, fmt.Errorf("no such printer: %s", raw)
	}
	return p, nil
}

func printerIDFromURI(raw string) (int, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return 0, err
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i, part := range parts {
		if part == "printers" && i+1 < len(parts) {
			return strconv.Atoi(parts[i+1])
		}
	}
	return 0, fmt.Errorf("printer-uri %q does not name a printer", raw)
}

func isSystemOp(op goipp.Op) bool {
	switch op {
	case OpGetSystemAttributes, OpGetPrinters, OpCreatePrinter, OpDeletePrinter, OpShutdownAllPrinters:
		return true
	}
	return false
}

// The system extension operations named in §6, beyond goipp's RFC 8011
// set: all five are local code points in the 0x4000 vendor-extension range;
// none of goipp's own operation constants is used for them.
const (
	OpGetSystemAttributes goipp.Op = 0x4022
	OpGetPrinters         goipp.Op = 0x4023
	OpCreatePrinter       goipp.Op = 0x4024
	OpDeletePrinter       goipp.Op = 0x4025
	OpShutdownAllPrinters goipp.Op = 0x4026
)

func (s *System) dispatchSystemOp(ctx context.Context, op goipp.Op, req Request) *goipp.Message {
	switch op {
	case OpGetSystemAttributes:
		return s.handleGetSystemAttributes(req)
	case OpGetPrinters:
		return s.handleGetPrinters(req)
	case OpCreatePrinter:
		return s.handleCreatePrinter(req)
	case OpDeletePrinter:
		if !req.AdminGroup {
			return errorResponse(req.Message, goipp.StatusErrorNotAuthorized, "admin group required")
		}
		return s.handleDeletePrinter(ctx, req)
	case OpShutdownAllPrinters:
		if !req.AdminGroup {
			return errorResponse(req.Message, goipp.StatusErrorNotAuthorized, "admin group required")
		}
		s.RequestShutdown(0)
		return successResponse(req.Message)
	default:
		return errorResponse(req.Message, goipp.StatusErrorOperationNotSupported, "operation not supported")
	}
}

func (s *System) dispatchPrinterOp(ctx context.Context, op goipp.Op, p *printer.Printer, req Request) *goipp.Message {
	switch op {
	case goipp.OpPrintJob:
		return s.handlePrintJob(ctx, p, req)
	case goipp.OpValidateJob:
		return s.handleValidateJob(p, req)
	case goipp.OpCreateJob:
		return s.handleCreateJob(p, req)
	case goipp.OpSendDocument:
		return s.handleSendDocument(ctx, p, req)
	case goipp.OpGetJobAttributes:
		return s.handleGetJobAttributes(p, req)
	case goipp.OpGetJobs:
		return s.handleGetJobs(p, req)
	case goipp.OpGetPrinterAttributes:
		return s.handleGetPrinterAttributes(p, req)
	case goipp.OpSetPrinterAttributes:
		if !req.AdminGroup {
			return errorResponse(req.Message, goipp.StatusErrorNotAuthorized, "admin group required")
		}
		return s.handleSetPrinterAttributes(p, req)
	case goipp.OpIdentifyPrinter:
		return s.handleIdentifyPrinter(ctx, p, req)
	case goipp.OpPausePrinter:
		if !req.AdminGroup {
			return errorResponse(req.Message, goipp.StatusErrorNotAuthorized, "admin group required")
		}
		p.Pause()
		return successResponse(req.Message)
	case goipp.OpResumePrinter:
		if !req.AdminGroup {
			return errorResponse(req.Message, goipp.StatusErrorNotAuthorized, "admin group required")
		}
		p.Resume()
		return successResponse(req.Message)
	case goipp.OpCancelCurrentJob:
		if err := p.CancelCurrentJob(ctx); err != nil {
			return errorResponse(req.Message, goipp.StatusErrorNotPossible, err.Error())
		}
		return successResponse(req.Message)
	case goipp.OpCancelJobs, goipp.OpCancelMyJobs:
		if !req.AdminGroup && op == goipp.OpCancelJobs {
			return errorResponse(req.Message, goipp.StatusErrorNotAuthorized, "admin group required")
		}
		p.CancelJobs(ctx)
		return successResponse(req.Message)
	case goipp.OpCancelJob:
		return s.handleCancelJob(ctx, p, req)
	default:
		return errorResponse(req.Message, goipp.StatusErrorOperationNotSupported, "operation not supported")
	}
}

// --- helpers ---------------------------------------------------------------

func findAttr(attrs goipp.Attributes, name string) *goipp.Attribute {
	for i := range attrs {
		if attrs[i].Name == name {
			return &attrs[i]
		}
	}
	return nil
}

func firstString(a *goipp.Attribute) (string, bool) {
	if len(a.Values) == 0 {
		return "", false
	}
	s, ok := a.Values[0].V.(goipp.String)
	return string(s), ok
}

func firstInt(a *goipp.Attribute) (int32, bool) {
	if len(a.Values) == 0 {
		return 0, false
	}
	i, ok := a.Values[0].V.(goipp.Integer)
	return int32(i), ok
}

func baseOperationGroup() goipp.Attributes {
	return goipp.Attributes{
		goipp.Attribute{Name: "attributes-charset", Values: goipp.Values{{T: goipp.TagCharset, V: goipp.String("utf-8")}}},
		goipp.Attribute{Name: "attributes-natural-language", Values: goipp.Values{{T: goipp.TagLanguage, V: goipp.String("en")}}},
	}
}

func successResponse(req *goipp.Message) *goipp.Message {
	groups := goipp.Groups{
		{Tag: goipp.TagOperationGroup, Attrs: baseOperationGroup()},
	}
	return goipp.NewMessageWithGroups(goipp.DefaultVersion, goipp.Code(goipp.StatusOk), req.RequestID, groups)
}

func errorResponse(req *goipp.Message, status goipp.Status, message string) *goipp.Message {
	op := baseOperationGroup()
	op = append(op, goipp.Attribute{Name: "status-message", Values: goipp.Values{{T: goipp.TagText, V: goipp.String(message)}}})
	groups := goipp.Groups{
		{Tag: goipp.TagOperationGroup, Attrs: op},
	}
	return goipp.NewMessageWithGroups(goipp.DefaultVersion, goipp.Code(status), req.RequestID, groups)
}

func requestedAttributes(req *goipp.Message) attr.RequestedAttributes {
	a := findAttr(req.Operation, "requested-attributes")
	if a == nil {
		return attr.All()
	}
	var names []string
	for _, v := range a.Values {
		if s, ok := v.V.(goipp.String); ok {
			names = append(names, string(s))
		}
	}
	return attr.NewRequestedAttributes(names)
}

func jobIDFromRequest(req *goipp.Message) (int, bool) {
	if a := findAttr(req.Operation, "job-id"); a != nil {
		if v, ok := firstInt(a); ok {
			return int(v), true
		}
	}
	if a := findAttr(req.Operation, "job-uri"); a != nil {
		if raw, ok := firstString(a); ok {
			parts := strings.Split(strings.Trim(raw, "/"), "/")
			if len(parts) > 0 {
				if id, err := strconv.Atoi(parts[len(parts)-1]); err == nil {
					return id, true
				}
			}
		}
	}
	return 0, false
}
