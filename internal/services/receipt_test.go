package services

import (
	"bytes"
	"testing"
	"time"

	"github.com/chachabrian/mooveit-freight/internal/logger"
	"github.com/chachabrian/mooveit-freight/internal/models"
)

func TestReceiptEncodesAccentedText(t *testing.T) {
	price := 940.0
	b := &models.Booking{
		Reference:    "B000000042",
		Status:       models.BookingStatusDelivered,
		Pickup:       models.Address{Text: "Café Mocha, Kilimani"},
		Dropoff:      models.Address{Text: "Ngong Road"},
		GoodsType:    "furniture",
		VehicleClass: models.VehicleVan,
		FinalPrice:   &price,
		TrackingUpdates: []models.TrackingUpdate{
			{Status: models.BookingStatusDelivered, Message: "Left with the concierge at Résidence Amani", CreatedAt: time.Now()},
		},
	}

	pdf, err := NewReceiptService(nil, "https://mooveit.example", logger.Discard()).layout(b)
	if err != nil {
		t.Fatal(err)
	}
	pdf.SetCompression(false)
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		t.Fatal(err)
	}
	out := buf.Bytes()

	// cp1252 has é at 0xE9; raw UTF-8 would be 0xC3 0xA9.
	for _, want := range []string{"Caf\xe9 Mocha", "R\xe9sidence Amani"} {
		if !bytes.Contains(out, []byte(want)) {
			t.Fatalf("receipt is missing %q", want)
		}
	}
	if bytes.Contains(out, []byte("Caf\xc3\xa9")) {
		t.Fatal("receipt carries raw UTF-8")
	}
}
