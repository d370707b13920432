// Package dnssd advertises each configured printer as a _ipp._tcp Bonjour
// service, so IPP Everywhere clients can discover it without a driver.
package dnssd

import (
	"fmt"
	"sync"

	"github.com/grandcat/zeroconf"
)

// PrinterInfo is the subset of a printer's identity dnssd needs to build
// its TXT record set.
type PrinterInfo struct {
	ID           int
	Name         string
	MakeAndModel string
	Formats      []string // mime types: application/pdf, image/pwg-raster, ...
}

// Advertiser tracks one zeroconf registration per printer, keyed by
// printer id, so printers can be added and removed at runtime without
// restarting the service.
type Advertiser struct {
	mu   sync.Mutex
	host string
	port int
	svcs map[int]*zeroconf.Server
}

// New constructs an Advertiser for printers reachable at host:port.
func New(host string, port int) *Advertiser {
	return &Advertiser{host: host, port: port, svcs: make(map[int]*zeroconf.Server)}
}

// Add registers (or re-registers) one printer's service instance.
func (a *Advertiser) Add(p PrinterInfo) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if existing, ok := a.svcs[p.ID]; ok {
		existing.Shutdown()
		delete(a.svcs, p.ID)
	}

	const (
		serviceType = "_ipp._tcp"
		domain      = "local."
	)
	txt := []string{
		"txtvers=1",
		"qtotal=1",
		fmt.Sprintf("rp=ipp/print/%d", p.ID),
		"ty=" + p.MakeAndModel,
		fmt.Sprintf("adminurl=http://%s:%d/printers/%d", a.host, a.port, p.ID),
		"priority=0",
		"kind=document,envelope",
		"pdl=" + joinFormats(p.Formats),
		"Color=T",
		"Duplex=F",
	}

	srv, err := zeroconf.Register(p.Name, serviceType, domain, a.port, txt, nil)
	if err != nil {
		return fmt.Errorf("dnssd: register %q: %w", p.Name, err)
	}
	a.svcs[p.ID] = srv
	return nil
}

// Remove un-registers printer id's service, if any.
func (a *Advertiser) Remove(id int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if srv, ok := a.svcs[id]; ok {
		srv.Shutdown()
		delete(a.svcs, id)
	}
}

// Shutdown un-registers every advertised printer.
func (a *Advertiser) Shutdown() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for id, srv := range a.svcs {
		srv.Shutdown()
		delete(a.svcs, id)
	}
}

func joinFormats(formats []string) string {
	if len(formats) == 0 {
		return "application/pdf"
	}
	out := formats[0]
	for _, f := range formats[1:] {
		out += "," + f
	}
	return out
}
