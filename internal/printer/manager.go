package printer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/prince-dkc/universal-qr-print/internal/label"
	"github.com/prince-dkc/universal-qr-print/internal/render"
)

// ErrNotFound is returned for an unknown printer ID
var ErrNotFound = errors.New("printer not found")

// Printer represents a label printer
type Printer interface {
	ID() string
	Name() string
	Type() string
	Media() Media
	Status(ctx context.Context) string
	Print(ctx context.Context, data []byte) error
	Close() error
}

// Info describes a configured printer
type Info struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Type    string  `json:"type"`
	Status  string  `json:"status"`
	DPI     int     `json:"dpi"`
	WidthMM float64 `json:"width_mm"`
}

// DiscoveredPrinter represents a discovered printer
type DiscoveredPrinter struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Type    string `json:"type"`
	Address string `json:"address,omitempty"`
	Port    int    `json:"port,omitempty"`
}

// DiscoveryOptions controls the network scan
type DiscoveryOptions struct {
	Subnets []string
	Port    int
	Timeout time.Duration
	// Workers caps concurrent probes
	Workers int
}

// Manager manages printer connections and print jobs
type Manager struct {
	mu        sync.RWMutex
	printers  map[string]Printer
	discovery DiscoveryOptions
}

// NewManager creates a new printer manager
func NewManager(opts DiscoveryOptions) *Manager {
	if opts.Port == 0 {
		opts.Port = DefaultPort
	}
	if opts.Timeout == 0 {
		opts.Timeout = 100 * time.Millisecond
	}
	if opts.Workers == 0 {
		opts.Workers = 64
	}
	return &Manager{
		printers:  make(map[string]Printer),
		discovery: opts,
	}
}

// AddPrinter adds a printer to the manager
func (m *Manager) AddPrinter(p Printer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.printers[p.ID()] = p
}

// GetPrinter gets a printer by ID
func (m *Manager) GetPrinter(id string) (Printer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.printers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return p, nil
}

// List returns every printer with a live status probe
func (m *Manager) List(ctx context.Context) []Info {
	m.mu.RLock()
	printers := make([]Printer, 0, len(m.printers))
	for _, p := range m.printers {
		printers = append(printers, p)
	}
	m.mu.RUnlock()

	infos := make([]Info, len(printers))
	var wg sync.WaitGroup
	for i, p := range printers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			media := p.Media()
			infos[i] = Info{
				ID:      p.ID(),
				Name:    p.Name(),
				Type:    p.Type(),
				Status:  p.Status(ctx),
				DPI:     media.DPI,
				WidthMM: media.WidthMM,
			}
		}()
	}
	wg.Wait()

	sort.Slice(infos, func(a, b int) bool { return infos[a].ID < infos[b].ID })
	return infos
}

// Print sends raw data to a printer
func (m *Manager) Print(ctx context.Context, printerID string, data []byte) error {
	p, err := m.GetPrinter(printerID)
	if err != nil {
		return err
	}
	return p.Print(ctx, data)
}

// PrintRows rasterizes tiled label rows for the printer's media and sends
// them as one job
func (m *Manager) PrintRows(ctx context.Context, printerID string, rows []label.Row, load ImageLoader) (int, error) {
	p, err := m.GetPrinter(printerID)
	if err != nil {
		return 0, err
	}
	canvas, err := ComposeRows(rows, p.Media(), load)
	if err != nil {
		return 0, err
	}
	data := EncodeRaster(canvas, DefaultThreshold)
	if err := p.Print(ctx, data); err != nil {
		return 0, err
	}
	return len(data), nil
}

// TestPrint sends a 50mm alignment pattern to a printer
func (m *Manager) TestPrint(ctx context.Context, printerID string) error {
	p, err := m.GetPrinter(printerID)
	if err != nil {
		return err
	}
	size := p.Media().Pixels(50)
	data := EncodeRaster(render.TestPattern(size), DefaultThreshold)
	return p.Print(ctx, data)
}

// Close closes every printer
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var errs []error
	for _, p := range m.printers {
		errs = append(errs, p.Close())
	}
	return errors.Join(errs...)
}

// Discover scans the configured subnets for raw print ports
func (m *Manager) Discover(ctx context.Context) ([]DiscoveredPrinter, error) {
	opts := m.discovery

	var mu sync.Mutex
	discovered := make([]DiscoveredPrinter, 0)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(opts.Workers)
	for _, subnet := range opts.Subnets {
		for i := 1; i <= 254; i++ {
			ip := subnet + strconv.Itoa(i)
			eg.Go(func() error {
				if !isPortOpen(egCtx, ip, opts.Port, opts.Timeout) {
					return nil
				}
				mu.Lock()
				discovered = append(discovered, DiscoveredPrinter{
					ID:      "network-" + ip,
					Name:    "Printer at " + ip,
					Type:    "network",
					Address: ip,
					Port:    opts.Port,
				})
				mu.Unlock()
				return nil
			})
		}
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.Slice(discovered, func(a, b int) bool { return discovered[a].ID < discovered[b].ID })
	slog.Info("Printer discovery finished", "subnets", len(opts.Subnets), "found", len(discovered))
	return discovered, nil
}

// isPortOpen checks if a port is open on a host
func isPortOpen(ctx context.Context, host string, port int, timeout time.Duration) bool {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
