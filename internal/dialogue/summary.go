// ABOUTME: Plain-text reservation summary attached to confirmation emails
// ABOUTME: Rendered as reserva-<id>.txt in the guest's locale

package dialogue

import (
	"errors"
	"fmt"
	"strings"

	"github.com/marcelomst/begaia-gateway/internal/store"
)

var summaryLabels = map[string][]string{
	LocaleES: {"Reserva", "Estado", "Titular", "Habitación", "Entrada", "Salida", "Noches", "Huéspedes"},
	LocaleEN: {"Reservation", "Status", "Guest", "Room", "Check-in", "Check-out", "Nights", "Guests"},
	LocalePT: {"Reserva", "Status", "Titular", "Quarto", "Entrada", "Saída", "Noites", "Hóspedes"},
}

// SummaryFilename returns the attachment name of a reservation summary
func SummaryFilename(reservationID string) string {
	return "reserva-" + reservationID + ".txt"
}

// RenderSummary renders the reservation as a small text document
func RenderSummary(res *store.Reservation, locale string) (string, error) {
	if res == nil || res.ReservationID == "" {
		return "", errors.New("reservation has no id")
	}
	labels, ok := summaryLabels[locale]
	if !ok {
		labels = summaryLabels[LocaleES]
	}
	cat := catalogFor(locale)

	values := []string{
		res.ReservationID,
		res.Status,
		res.Slots.GuestName,
		res.Slots.RoomType,
		cat.date(res.Slots.CheckIn),
		cat.date(res.Slots.CheckOut),
		fmt.Sprint(nights(res.Slots)),
		res.Slots.NumGuests,
	}

	var b strings.Builder
	for i, label := range labels {
		fmt.Fprintf(&b, "%-12s %s\n", label+":", values[i])
	}
	return b.String(), nil
}
