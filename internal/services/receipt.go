package services

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chachabrian/mooveit-freight/internal/models"
	"github.com/phpdave11/gofpdf"
	qrcode "github.com/skip2/go-qrcode"
)

// ReceiptService renders delivery receipts and archives them once a
// booking is delivered.
type ReceiptService struct {
	archive       ReceiptArchive
	publicBaseURL string
	log           *slog.Logger
}

func NewReceiptService(archive ReceiptArchive, publicBaseURL string, log *slog.Logger) *ReceiptService {
	return &ReceiptService{archive: archive, publicBaseURL: publicBaseURL, log: log}
}

// TrackingURL is the public tracker link encoded in the receipt QR code.
func (s *ReceiptService) TrackingURL(b *models.Booking) string {
	return fmt.Sprintf("%s/api/bookings/%s", s.publicBaseURL, b.Reference)
}

func receiptKey(b *models.Booking) string {
	return fmt.Sprintf("receipts/%s.pdf", b.Reference)
}

// Render builds a one-page PDF receipt for b.
func (s *ReceiptService) Render(b *models.Booking) ([]byte, error) {
	pdf, err := s.layout(b)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// layout draws the receipt. The core fonts are cp1252, so every
// user-supplied string goes through tr.
func (s *ReceiptService) layout(b *models.Booking) (*gofpdf.Fpdf, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 20)
	pdf.Cell(0, 12, "MOOVEIT FREIGHT RECEIPT")
	pdf.Ln(16)

	pdf.SetDrawColor(220, 220, 220)
	pdf.Line(15, pdf.GetY(), 195, pdf.GetY())
	pdf.Ln(6)

	yStart := pdf.GetY()
	pdf.SetFillColor(245, 245, 245)
	pdf.Rect(15, yStart, 120, 62, "F")

	pdf.SetXY(20, yStart+6)
	pdf.SetFont("Helvetica", "B", 13)
	pdf.Cell(0, 8, "SHIPMENT")
	pdf.Ln(9)

	pdf.SetFont("Helvetica", "", 11)
	lines := []string{
		fmt.Sprintf("Reference: %s", b.Reference),
		fmt.Sprintf("Status: %s", b.Status),
		fmt.Sprintf("From: %s", b.Pickup.Text),
		fmt.Sprintf("To: %s", b.Dropoff.Text),
		fmt.Sprintf("Goods: %s (%.1f kg)", b.GoodsType, b.TotalWeightKg()),
		fmt.Sprintf("Vehicle: %s, %.1f km", b.VehicleClass, b.DistanceKm),
	}
	for _, line := range lines {
		pdf.SetX(20)
		pdf.CellFormat(110, 7, tr(line), "", 1, "L", false, 0, "")
	}

	qrBytes, err := qrcode.Encode(s.TrackingURL(b), qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	pdf.RegisterImageOptionsReader("qr", gofpdf.ImageOptions{ImageType: "png"}, bytes.NewReader(qrBytes))
	pdf.ImageOptions("qr", 145, yStart+4, 45, 0, false, gofpdf.ImageOptions{ImageType: "png"}, 0, "")

	pdf.SetXY(15, yStart+70)
	pdf.SetFont("Helvetica", "B", 13)
	pdf.Cell(0, 8, "TIMELINE")
	pdf.Ln(9)
	pdf.SetFont("Helvetica", "", 10)
	for _, u := range b.TrackingUpdates {
		pdf.CellFormat(45, 6, u.CreatedAt.Format("2006-01-02 15:04"), "", 0, "L", false, 0, "")
		pdf.CellFormat(35, 6, string(u.Status), "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 6, tr(u.Message), "", 1, "L", false, 0, "")
	}

	pdf.Ln(6)
	pdf.SetFont("Helvetica", "B", 14)
	price := 0.0
	if b.FinalPrice != nil {
		price = *b.FinalPrice
	}
	pdf.CellFormat(0, 10, fmt.Sprintf("Total: KES %.2f", price), "T", 1, "R", false, 0, "")

	pdf.SetY(280)
	pdf.SetFont("Helvetica", "I", 8)
	pdf.CellFormat(0, 5, fmt.Sprintf("Generated %s", time.Now().UTC().Format(time.RFC1123)), "", 0, "C", false, 0, "")

	return pdf, pdf.Error()
}

// Archive renders the receipt and stores it, returning its location.
func (s *ReceiptService) Archive(ctx context.Context, b *models.Booking) (string, error) {
	if s.archive == nil {
		return "", nil
	}
	data, err := s.Render(b)
	if err != nil {
		return "", err
	}
	loc, err := s.archive.Put(ctx, receiptKey(b), data)
	if err != nil {
		return "", err
	}
	s.log.Info("receipt archived", "booking_id", b.ID, "reference", b.Reference, "location", loc)
	return loc, nil
}
