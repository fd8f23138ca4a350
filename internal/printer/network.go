package printer

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"
)

// DefaultPort is the raw printing port
const DefaultPort = 9100

// Media describes the label stock loaded in a printer
type Media struct {
	DPI     int     `json:"dpi"`
	WidthMM float64 `json:"width_mm"`
}

// DefaultMedia is a 203 dpi head with 100mm stock
var DefaultMedia = Media{DPI: 203, WidthMM: 100}

// Pixels converts millimeters to printer dots
func (m Media) Pixels(mm float64) int {
	return int(mm*float64(m.DPI)/25.4 + 0.5)
}

// NetworkPrinter represents a label printer on a raw TCP port
type NetworkPrinter struct {
	id      string
	name    string
	address string
	port    int
	media   Media
	mu      sync.Mutex
}

// NewNetworkPrinter creates a new network printer. Zero media values fall
// back to DefaultMedia.
func NewNetworkPrinter(id, name, address string, port int, media Media) *NetworkPrinter {
	if port == 0 {
		port = DefaultPort
	}
	if media.DPI <= 0 {
		media.DPI = DefaultMedia.DPI
	}
	if media.WidthMM <= 0 {
		media.WidthMM = DefaultMedia.WidthMM
	}
	return &NetworkPrinter{
		id:      id,
		name:    name,
		address: address,
		port:    port,
		media:   media,
	}
}

func (p *NetworkPrinter) ID() string   { return p.id }
func (p *NetworkPrinter) Name() string { return p.name }
func (p *NetworkPrinter) Type() string { return "network" }
func (p *NetworkPrinter) Media() Media { return p.media }

func (p *NetworkPrinter) addr() string {
	return net.JoinHostPort(p.address, strconv.Itoa(p.port))
}

// Status returns "online" when the print port accepts connections
func (p *NetworkPrinter) Status(ctx context.Context) string {
	d := net.Dialer{Timeout: 2 * time.Second}
	conn, err := d.DialContext(ctx, "tcp", p.addr())
	if err != nil {
		return "offline"
	}
	conn.Close()
	return "online"
}

// Print sends data to the printer. Jobs to one printer never interleave.
func (p *NetworkPrinter) Print(ctx context.Context, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	d := net.Dialer{Timeout: 5 * time.Second}
	conn, err := d.DialContext(ctx, "tcp", p.addr())
	if err != nil {
		return fmt.Errorf("failed to connect to printer: %w", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(10 * time.Second)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	conn.SetWriteDeadline(deadline)

	if _, err := conn.Write(data); err != nil {
		return fmt.Errorf("failed to send data to printer: %w", err)
	}
	return nil
}

// Close is a no-op; connections are opened per job
func (p *NetworkPrinter) Close() error {
	return nil
}
