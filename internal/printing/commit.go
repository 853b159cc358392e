package printing

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jeogo/casnos-sub001/internal/events"
	"github.com/jeogo/casnos-sub001/internal/metrics"
	"github.com/jeogo/casnos-sub001/internal/models"

	"github.com/google/uuid"
)

const (
	SourceCustomer = "customer"
	SourceDisplay  = "display"

	defaultTimeout = 5 * time.Second
	tempDirName    = "casnos-atomic-tickets"
)

type Services interface {
	GetService(ctx context.Context, id int64) (models.Service, error)
}

type Tickets interface {
	CommitPrinted(ctx context.Context, serviceID int64) (models.Ticket, []events.Event, error)
}

type Options struct {
	Timeout     time.Duration
	TempDir     string
	CompanyName string
	Now         func() time.Time
}

type CommitInput struct {
	ServiceID   int64  `json:"service_id"`
	PrinterName string `json:"printer_name"`
	Source      string `json:"source"`
}

type Stats struct {
	TempDir   string `json:"tempDir"`
	Exists    bool   `json:"exists"`
	FileCount int    `json:"fileCount"`
}

// Committer prints first and stores second: a ticket row exists only for
// tickets whose paper copy came out.
type Committer struct {
	services    Services
	tickets     Tickets
	renderer    Renderer
	printer     Printer
	timeout     time.Duration
	tempDir     string
	companyName string
	now         func() time.Time
}

func DefaultTempDir() string {
	return filepath.Join(os.TempDir(), tempDirName)
}

func NewCommitter(services Services, tickets Tickets, renderer Renderer, printer Printer, opts Options) *Committer {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.TempDir == "" {
		opts.TempDir = DefaultTempDir()
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Committer{
		services:    services,
		tickets:     tickets,
		renderer:    renderer,
		printer:     printer,
		timeout:     opts.Timeout,
		tempDir:     opts.TempDir,
		companyName: opts.CompanyName,
		now:         opts.Now,
	}
}

func (c *Committer) TempDir() string {
	return c.tempDir
}

func (c *Committer) Commit(ctx context.Context, input CommitInput) (models.Ticket, []events.Event, error) {
	service, err := c.services.GetService(ctx, input.ServiceID)
	if err != nil {
		return models.Ticket{}, nil, err
	}
	source := input.Source
	if source != SourceDisplay {
		source = SourceCustomer
	}

	now := c.now()
	tempNumber := fmt.Sprintf("TEMP-%d-%s", now.UnixMilli(), strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6]))
	path, err := c.renderer.Render(ctx, models.TicketData{
		TicketNumber: tempNumber,
		ServiceID:    service.ID,
		ServiceName:  service.Name,
		CreatedAt:    now,
		CompanyName:  c.companyName,
		Position:     1,
		PrintSource:  source,
	})
	if err != nil {
		metrics.PrintCommits.WithLabelValues("render_failed").Inc()
		return models.Ticket{}, nil, fmt.Errorf("%w: %v", ErrRenderFailed, err)
	}
	defer c.remove(path)

	if err := c.print(ctx, path, input.PrinterName); err != nil {
		if errors.Is(err, ErrPrintTimeout) {
			metrics.PrintCommits.WithLabelValues("timeout").Inc()
		} else {
			metrics.PrintCommits.WithLabelValues("failed").Inc()
		}
		log.Printf("print-commit temp=%s service_id=%d source=%s: %v", tempNumber, service.ID, source, err)
		return models.Ticket{}, nil, err
	}

	ticket, evts, err := c.tickets.CommitPrinted(ctx, service.ID)
	if err != nil {
		metrics.PrintCommits.WithLabelValues("store_failed").Inc()
		return models.Ticket{}, nil, err
	}
	metrics.PrintCommits.WithLabelValues("success").Inc()
	return ticket, evts, nil
}

// print enforces the timeout even when the printer ignores its context.
func (c *Committer) print(ctx context.Context, path, printerName string) error {
	printCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- c.printer.Print(printCtx, path, printerName)
	}()

	select {
	case err := <-done:
		if err != nil {
			if errors.Is(printCtx.Err(), context.DeadlineExceeded) {
				return ErrPrintTimeout
			}
			return fmt.Errorf("%w: %v", ErrPrintFailed, err)
		}
		return nil
	case <-printCtx.Done():
		if err := ctx.Err(); err != nil {
			return err
		}
		return ErrPrintTimeout
	}
}

func (c *Committer) remove(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Printf("remove temp artifact %s: %v", path, err)
	}
}

func (c *Committer) Stats() Stats {
	stats := Stats{TempDir: c.tempDir}
	entries, err := os.ReadDir(c.tempDir)
	if err != nil {
		return stats
	}
	stats.Exists = true
	for _, entry := range entries {
		if !entry.IsDir() {
			stats.FileCount++
		}
	}
	return stats
}

// CleanupTempFiles removes every leftover artifact and returns the count.
func (c *Committer) CleanupTempFiles() (int, error) {
	entries, err := os.ReadDir(c.tempDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(c.tempDir, entry.Name())); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
