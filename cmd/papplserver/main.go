// Command papplserver is a reference host application for the pappl
// framework: it parses the CLI surface spec.md §6 defines, restores any
// persisted state, registers a PWG-Raster printer driver, advertises every
// configured printer over DNS-SD, and serves IPP until interrupted.
//
// Grounded on the teacher's main.go: stdlib flag parsing plus a
// signal.NotifyContext shutdown idiom, generalized from a single
// Bluetooth-attached thermal printer to an arbitrary number of
// network-attached IPP printers.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/pterm/pterm"

	"github.com/printcore/pappl/applog"
	"github.com/printcore/pappl/config"
	"github.com/printcore/pappl/device/transport/file"
	"github.com/printcore/pappl/dnssd"
	"github.com/printcore/pappl/drivers/pwgraster"
	"github.com/printcore/pappl/job"
	"github.com/printcore/pappl/printer"
	"github.com/printcore/pappl/state"
	"github.com/printcore/pappl/system"
)

func main() {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if overlay, err := config.LoadFile(os.Getenv("PAPPL_CONFIG_FILE")); err == nil {
		cfg = config.ApplyOverlay(cfg, overlay)
	}

	logger, fatal := applog.New(applog.Options{
		Level: cfg.LogLevel,
		JSON:  false,
	})
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		fatal("papplserver: fatal error", "error", err)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	sys, err := system.New(cfg.Port, logger)
	if err != nil {
		return fmt.Errorf("papplserver: %w", err)
	}
	statePath := filepath.Join(cfg.SpoolDir, "papplserver.state")
	sys.SpoolDir = cfg.SpoolDir
	sys.Devices.Register(file.New())

	driverByName := map[string]job.Driver{
		"pwg_common-300dpi-600dpi-srgb_8": pwgraster.Driver{},
	}

	if !cfg.CleanStart {
		restoreState(sys, statePath, driverByName, logger)
	}

	if len(sys.Printers()) == 0 {
		addConfiguredPrinters(sys, cfg, driverByName, logger)
	}

	advertiser := dnssd.New(hostname(), cfg.Port)
	defer advertiser.Shutdown()

	sys.OnSave(func() {
		if err := saveState(sys, statePath); err != nil {
			logger.Error("papplserver: failed to save state", "error", err)
		}
	})

	for _, p := range sys.Printers() {
		advertise(advertiser, p)
	}

	printStatusTable(sys)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logger.Info("papplserver: listening", "addr", addr, "printers", len(sys.Printers()))
	return sys.Serve(ctx, addr)
}

func restoreState(sys *system.System, path string, driverByName map[string]job.Driver, logger *slog.Logger) {
	rec, err := state.LoadFile(path)
	if err != nil {
		logger.Warn("papplserver: failed to load persisted state, starting fresh", "error", err)
		return
	}
	sys.RestoreCounters(rec.NextPrinterID, rec.DefaultPrinterID)
	for _, pr := range rec.Printers {
		driver, ok := driverByName[pr.DriverName]
		if !ok {
			logger.Warn("papplserver: unknown driver in persisted state, skipping printer", "printer", pr.Name, "driver", pr.DriverName)
			continue
		}
		data := printer.DriverData{
			Name:       pr.DriverName,
			Driver:     driver,
			MediaReady: mediaFromState(pr.MediaReady),
			Supplies:   suppliesFromState(pr.Supplies),
		}
		p := sys.AddPrinter(pr.Name, pr.DeviceURI, data)
		p.SetAttributes(pr.Location, pr.Organization, pr.OrgUnit)
		p.RestoreNextJobID(pr.NextJobID)
	}
	sys.RestoreCounters(rec.NextPrinterID, rec.DefaultPrinterID)
}

// addConfiguredPrinters materializes one printer per repeatable -driver
// flag (spec.md §6) when no persisted state supplied any, so a clean first
// start with -driver actually comes up with printers instead of zero.
func addConfiguredPrinters(sys *system.System, cfg config.Config, driverByName map[string]job.Driver, logger *slog.Logger) {
	for _, name := range cfg.Drivers {
		driver, ok := driverByName[name]
		if !ok {
			logger.Warn("papplserver: unknown driver, skipping", "driver", name)
			continue
		}
		deviceURI := fmt.Sprintf("file://%s?ext=prn", filepath.Join(cfg.SpoolDir, name))
		data := printer.DriverData{Name: name, Driver: driver}
		sys.AddPrinter(name, deviceURI, data)
	}
}

func saveState(sys *system.System, path string) error {
	rec := state.System{
		UUID:             sys.UUID.String(),
		Hostname:         hostname(),
		DNSSDName:        sys.DNSSDName,
		Location:         sys.Location(),
		Organization:     sys.Organization(),
		NextPrinterID:    sys.NextPrinterID(),
		DefaultPrinterID: sys.DefaultPrinterID(),
	}
	for _, p := range sys.Printers() {
		rec.Printers = append(rec.Printers, state.PrinterRecord{
			ID: p.ID, Name: p.Name, DriverName: p.DriverData.Name, DeviceURI: p.DeviceURI,
			Location: p.Location, Organization: p.Organization, OrgUnit: p.OrgUnit,
			NextJobID: p.NextJobID(),
			MediaReady: mediaToState(p.DriverData.MediaReady),
			Supplies:   suppliesToState(p.DriverData.Supplies),
		})
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return state.SaveFile(path, rec)
}

func mediaToState(in []printer.Media) []state.Media {
	out := make([]state.Media, len(in))
	for i, m := range in {
		out[i] = state.Media{SizeName: m.SizeName, XDim: m.XDim, YDim: m.YDim, Source: m.Source, Type: m.Type}
	}
	return out
}

func mediaFromState(in []state.Media) []printer.Media {
	out := make([]printer.Media, len(in))
	for i, m := range in {
		out[i] = printer.Media{SizeName: m.SizeName, XDim: m.XDim, YDim: m.YDim, Source: m.Source, Type: m.Type}
	}
	return out
}

func suppliesToState(in []printer.Supply) []state.Supply {
	out := make([]state.Supply, len(in))
	for i, s := range in {
		out[i] = state.Supply{Color: s.Color, Description: s.Description, Level: s.Level, MaxCapacity: s.MaxCapacity, Type: s.Type}
	}
	return out
}

func suppliesFromState(in []state.Supply) []printer.Supply {
	out := make([]printer.Supply, len(in))
	for i, s := range in {
		out[i] = printer.Supply{Color: s.Color, Description: s.Description, Level: s.Level, MaxCapacity: s.MaxCapacity, Type: s.Type}
	}
	return out
}

func advertise(a *dnssd.Advertiser, p *printer.Printer) {
	if err := a.Add(dnssd.PrinterInfo{ID: p.ID, Name: p.Name, MakeAndModel: p.DriverData.Name}); err != nil {
		slog.Warn("papplserver: dns-sd advertisement failed", "printer", p.Name, "error", err)
	}
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "localhost"
	}
	return h
}

func printStatusTable(sys *system.System) {
	rows := pterm.TableData{{"ID", "Name", "Driver", "State", "Device URI"}}
	for _, p := range sys.Printers() {
		rows = append(rows, []string{
			fmt.Sprint(p.ID), p.Name, p.DriverData.Name, p.State().String(), p.DeviceURI,
		})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(rows).Render(); err != nil {
		slog.Warn("papplserver: failed to render status table", "error", err)
	}
}
