package printing

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jeogo/casnos-sub001/internal/models"

	"github.com/go-pdf/fpdf"
)

type Renderer interface {
	Render(ctx context.Context, data models.TicketData) (string, error)
}

// PDFRenderer writes a single-page receipt-sized PDF per ticket.
type PDFRenderer struct {
	Dir string
}

func NewPDFRenderer(dir string) *PDFRenderer {
	return &PDFRenderer{Dir: dir}
}

// 80mm roll width, in points.
const (
	receiptWidth  = 226
	receiptHeight = 340
	receiptMargin = 12
)

type receiptLine struct {
	style  string
	size   float64
	height float64
	text   string
}

func (r *PDFRenderer) Render(ctx context.Context, data models.TicketData) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(r.Dir, 0o755); err != nil {
		return "", err
	}

	pdf := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           fpdf.SizeType{Wd: receiptWidth, Ht: receiptHeight},
	})
	pdf.SetCompression(false)
	pdf.SetMargins(receiptMargin, receiptMargin*2, receiptMargin)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetTitle("Ticket "+data.TicketNumber, true)
	pdf.AddPage()

	translate := pdf.UnicodeTranslatorFromDescriptor("")
	width := float64(receiptWidth - 2*receiptMargin)
	for _, line := range []receiptLine{
		{style: "B", size: 12, height: 18, text: data.CompanyName},
		{style: "", size: 14, height: 24, text: data.ServiceName},
		{style: "B", size: 40, height: 56, text: data.TicketNumber},
		{style: "", size: 10, height: 16, text: data.CreatedAt.Format("2006-01-02 15:04:05")},
		{style: "", size: 10, height: 16, text: fmt.Sprintf("position %d", data.Position)},
	} {
		if strings.TrimSpace(line.text) == "" {
			continue
		}
		pdf.SetFont("Helvetica", line.style, line.size)
		pdf.CellFormat(width, line.height, translate(line.text), "", 1, "C", false, 0, "")
	}

	path := filepath.Join(r.Dir, safeName(data.TicketNumber)+".pdf")
	if err := pdf.OutputFileAndClose(path); err != nil {
		return "", err
	}
	return path, nil
}

func safeName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}
