package printing

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jeogo/casnos-sub001/internal/models"
	"github.com/jeogo/casnos-sub001/internal/queue"
	"github.com/jeogo/casnos-sub001/internal/store"
	"github.com/jeogo/casnos-sub001/internal/store/memory"
)

type commitFixture struct {
	store     *memory.Store
	service   models.Service
	committer *Committer
	dir       string
}

func newCommitFixture(t *testing.T, printer Printer, timeout time.Duration) commitFixture {
	t.Helper()
	st := memory.NewStore()
	service, err := st.CreateService(context.Background(), "Payments")
	if err != nil {
		t.Fatalf("create service: %v", err)
	}
	dir := t.TempDir()
	engine := queue.NewEngine(st, queue.Options{})
	committer := NewCommitter(st, engine, NewPDFRenderer(dir), printer, Options{Timeout: timeout, TempDir: dir, CompanyName: "Casnos"})
	return commitFixture{store: st, service: service, committer: committer, dir: dir}
}

func (f commitFixture) ticketCount(t *testing.T) int {
	t.Helper()
	tickets, err := f.store.ListTickets(context.Background())
	if err != nil {
		t.Fatalf("list tickets: %v", err)
	}
	return len(tickets)
}

func TestCommitSuccessStoresPrintedTicket(t *testing.T) {
	var printed string
	printer := PrinterFunc(func(ctx context.Context, path, printerName string) error {
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		printed = string(content)
		return nil
	})
	f := newCommitFixture(t, printer, time.Second)

	ticket, evts, err := f.committer.Commit(context.Background(), CommitInput{ServiceID: f.service.ID, Source: SourceCustomer})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if ticket.PrintStatus != models.PrintPrinted || ticket.Status != models.StatusPending {
		t.Fatalf("unexpected ticket state: %+v", ticket)
	}
	if ticket.TicketNumber != "001" {
		t.Fatalf("expected ticket number 001, got %s", ticket.TicketNumber)
	}
	if len(evts) == 0 {
		t.Fatalf("expected events for committed ticket")
	}
	if !strings.Contains(printed, "TEMP-") {
		t.Fatalf("expected temporary number on paper")
	}
	if got := f.ticketCount(t); got != 1 {
		t.Fatalf("expected one ticket, got %d", got)
	}
	if stats := f.committer.Stats(); stats.FileCount != 0 {
		t.Fatalf("expected artifact cleanup, got %d files", stats.FileCount)
	}
}

func TestCommitPrintFailureLeavesNoTicket(t *testing.T) {
	f := newCommitFixture(t, failPrinter{}, time.Second)

	_, _, err := f.committer.Commit(context.Background(), CommitInput{ServiceID: f.service.ID})
	if !errors.Is(err, ErrPrintFailed) {
		t.Fatalf("expected print failure, got %v", err)
	}
	if got := f.ticketCount(t); got != 0 {
		t.Fatalf("expected no tickets, got %d", got)
	}
	if stats := f.committer.Stats(); stats.FileCount != 0 {
		t.Fatalf("expected artifact cleanup, got %d files", stats.FileCount)
	}
}

func TestCommitTimeoutLeavesNoTicket(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	printer := PrinterFunc(func(ctx context.Context, path, printerName string) error {
		<-release
		return nil
	})
	f := newCommitFixture(t, printer, 20*time.Millisecond)

	_, _, err := f.committer.Commit(context.Background(), CommitInput{ServiceID: f.service.ID})
	if !errors.Is(err, ErrPrintTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if got := f.ticketCount(t); got != 0 {
		t.Fatalf("expected no tickets, got %d", got)
	}
}

func TestCommitUnknownServiceSkipsPrinter(t *testing.T) {
	called := false
	printer := PrinterFunc(func(ctx context.Context, path, printerName string) error {
		called = true
		return nil
	})
	f := newCommitFixture(t, printer, time.Second)

	_, _, err := f.committer.Commit(context.Background(), CommitInput{ServiceID: 999})
	if !errors.Is(err, store.ErrServiceNotFound) {
		t.Fatalf("expected service not found, got %v", err)
	}
	if called {
		t.Fatalf("printer must not run for unknown service")
	}
}

func TestCleanupTempFiles(t *testing.T) {
	f := newCommitFixture(t, noopPrinter{}, time.Second)
	for _, name := range []string{"a.pdf", "b.pdf"} {
		if err := os.WriteFile(f.dir+"/"+name, []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	removed, err := f.committer.CleanupTempFiles()
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}
}

func TestRenderPDF(t *testing.T) {
	renderer := NewPDFRenderer(t.TempDir())
	path, err := renderer.Render(context.Background(), models.TicketData{
		TicketNumber: "TEMP-1700000000000",
		ServiceName:  "Paiement (guichet)",
		CompanyName:  "Café Casnos",
		CreatedAt:    time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC),
		Position:     3,
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.HasSuffix(path, "TEMP-1700000000000.pdf") {
		t.Fatalf("unexpected artifact path %s", path)
	}
	out, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if !bytes.HasPrefix(out, []byte("%PDF-")) || !bytes.HasSuffix(bytes.TrimSpace(out), []byte("%%EOF")) {
		t.Fatalf("unexpected pdf framing")
	}
	if !bytes.Contains(out, []byte("TEMP-1700000000000")) || !bytes.Contains(out, []byte(`Paiement \(guichet\)`)) {
		t.Fatalf("expected receipt text in content stream")
	}
}

func TestRenderHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewPDFRenderer(t.TempDir()).Render(ctx, models.TicketData{TicketNumber: "001"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNewPrinterRejectsUnusableConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  PrinterConfig
	}{
		{"misspelled kind", PrinterConfig{Kind: "cups"}},
		{"webhook without url", PrinterConfig{Kind: "webhook"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewPrinter(tt.cfg); !errors.Is(err, ErrUnknownPrinter) {
				t.Fatalf("expected ErrUnknownPrinter, got %v", err)
			}
		})
	}
}

func TestNewPrinterDefaultsToSpooler(t *testing.T) {
	printer, err := NewPrinter(PrinterConfig{})
	if err != nil {
		t.Fatalf("new printer: %v", err)
	}
	spooler, ok := printer.(commandPrinter)
	if !ok || spooler.command != "lp" {
		t.Fatalf("expected lp command printer, got %#v", printer)
	}

	missing, err := NewPrinter(PrinterConfig{Command: "casnos-missing-spooler"})
	if err != nil {
		t.Fatalf("new printer: %v", err)
	}
	if err := missing.Print(context.Background(), "/nonexistent/ticket.pdf", "Kiosk"); err == nil {
		t.Fatalf("expected a missing spooler to fail the print")
	}
}
