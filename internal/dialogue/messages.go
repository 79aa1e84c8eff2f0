// ABOUTME: Localized reply templates for the reservation dialogue
// ABOUTME: Every question template asks for exactly one field

package dialogue

import (
	"fmt"
	"strings"
	"time"

	"github.com/marcelomst/begaia-gateway/internal/store"
)

// ConfirmKeyword is the literal the guest is told to reply with, per locale
var ConfirmKeyword = map[string]string{
	LocaleES: "CONFIRMAR",
	LocaleEN: "CONFIRM",
	LocalePT: "CONFIRMAR",
}

type catalog struct {
	ask           string
	labels        map[string]string
	badRange      string
	quote         string
	price         string
	options       string
	confirmHint   string
	unavailable   string
	cannotConfirm string
	confirmed     string
	snapConfirmed string
	snapDraft     string
	snapDraftHint string
	askCode       string
	codeNotFound  string
	codeStatus    string
	fallback      string
	detail        map[string]string
	dateLayout    string
}

var catalogs = map[string]catalog{
	LocaleES: {
		ask: "¿Me indicás %s?",
		labels: map[string]string{
			SlotGuestName: "el nombre del titular de la reserva",
			SlotCheckIn:   "la fecha de entrada (dd/mm/aaaa)",
			SlotCheckOut:  "la fecha de salida (dd/mm/aaaa)",
			SlotRoomType:  "el tipo de habitación (single, double, twin, triple, suite o family)",
			SlotNumGuests: "la cantidad de huéspedes",
		},
		badRange:      "La fecha de salida tiene que ser posterior a la de entrada.",
		quote:         "Tenemos disponibilidad: habitación %s del %s al %s (%d noches) para %s huéspedes.",
		price:         "Tarifa: %s.",
		options:       "Opciones: %s.",
		confirmHint:   "Para confirmar la reserva respondé %s.",
		unavailable:   "No tenemos disponibilidad de habitación %s del %s al %s. ¿Querés probar otras fechas u otro tipo de habitación?",
		cannotConfirm: "No puedo confirmar esa reserva porque no hay disponibilidad. ¿Querés probar otras fechas u otro tipo de habitación?",
		confirmed:     "¡Listo, %s! Tu reserva quedó confirmada. Código de reserva: %s.",
		snapConfirmed: "Tu reserva %s está confirmada: %s.",
		snapDraft:     "Tu reserva en curso (todavía no confirmada): %s.",
		snapDraftHint: "Si está todo bien, respondé %s para confirmarla.",
		askCode:       "¿Me pasás el código de tu reserva?",
		codeNotFound:  "No encontré ninguna reserva con el código %s.",
		codeStatus:    "La reserva %s está en estado %s. Para ver los detalles escribinos desde la conversación en la que reservaste.",
		fallback:      "Tuvimos un problema técnico. Por favor intentá de nuevo en unos minutos.",
		detail: map[string]string{
			SlotGuestName: "a nombre de %s",
			SlotRoomType:  "habitación %s",
			SlotCheckIn:   "entrada %s",
			SlotCheckOut:  "salida %s",
			SlotNumGuests: "%s huéspedes",
		},
		dateLayout: "02/01/2006",
	},
	LocaleEN: {
		ask: "Could you tell me %s?",
		labels: map[string]string{
			SlotGuestName: "the name the booking should be under",
			SlotCheckIn:   "your check-in date (dd/mm/yyyy)",
			SlotCheckOut:  "your check-out date (dd/mm/yyyy)",
			SlotRoomType:  "the room type (single, double, twin, triple, suite or family)",
			SlotNumGuests: "the number of guests",
		},
		badRange:      "The check-out date has to be after the check-in date.",
		quote:         "Good news: a %s room is available from %s to %s (%d nights) for %s guests.",
		price:         "Rate: %s.",
		options:       "Options: %s.",
		confirmHint:   "Reply %s to book it.",
		unavailable:   "There is no %s room available from %s to %s. Would you like to try other dates or another room type?",
		cannotConfirm: "I can't confirm that booking because there is no availability. Would you like to try other dates or another room type?",
		confirmed:     "All set, %s! Your booking is confirmed. Reservation code: %s.",
		snapConfirmed: "Your booking %s is confirmed: %s.",
		snapDraft:     "Your booking in progress (not confirmed yet): %s.",
		snapDraftHint: "If everything looks right, reply %s to confirm it.",
		askCode:       "Could you send me your reservation code?",
		codeNotFound:  "I couldn't find a booking with code %s.",
		codeStatus:    "Booking %s is %s. To see its details, message us from the conversation where you booked.",
		fallback:      "We ran into a technical problem. Please try again in a few minutes.",
		detail: map[string]string{
			SlotGuestName: "under the name %s",
			SlotRoomType:  "%s room",
			SlotCheckIn:   "check-in %s",
			SlotCheckOut:  "check-out %s",
			SlotNumGuests: "%s guests",
		},
		dateLayout: "2006-01-02",
	},
	LocalePT: {
		ask: "Pode me informar %s?",
		labels: map[string]string{
			SlotGuestName: "o nome do titular da reserva",
			SlotCheckIn:   "a data de entrada (dd/mm/aaaa)",
			SlotCheckOut:  "a data de saída (dd/mm/aaaa)",
			SlotRoomType:  "o tipo de quarto (single, double, twin, triple, suite ou family)",
			SlotNumGuests: "o número de hóspedes",
		},
		badRange:      "A data de saída precisa ser posterior à de entrada.",
		quote:         "Temos disponibilidade: quarto %s de %s a %s (%d noites) para %s hóspedes.",
		price:         "Tarifa: %s.",
		options:       "Opções: %s.",
		confirmHint:   "Para confirmar a reserva responda %s.",
		unavailable:   "Não temos disponibilidade de quarto %s de %s a %s. Quer tentar outras datas ou outro tipo de quarto?",
		cannotConfirm: "Não posso confirmar essa reserva porque não há disponibilidade. Quer tentar outras datas ou outro tipo de quarto?",
		confirmed:     "Pronto, %s! Sua reserva está confirmada. Código da reserva: %s.",
		snapConfirmed: "Sua reserva %s está confirmada: %s.",
		snapDraft:     "Sua reserva em andamento (ainda não confirmada): %s.",
		snapDraftHint: "Se estiver tudo certo, responda %s para confirmá-la.",
		askCode:       "Pode me enviar o código da sua reserva?",
		codeNotFound:  "Não encontrei nenhuma reserva com o código %s.",
		codeStatus:    "A reserva %s está com status %s. Para ver os detalhes, escreva-nos pela conversa em que reservou.",
		fallback:      "Tivemos um problema técnico. Por favor tente novamente em alguns minutos.",
		detail: map[string]string{
			SlotGuestName: "em nome de %s",
			SlotRoomType:  "quarto %s",
			SlotCheckIn:   "entrada %s",
			SlotCheckOut:  "saída %s",
			SlotNumGuests: "%s hóspedes",
		},
		dateLayout: "02/01/2006",
	},
}

func catalogFor(locale string) catalog {
	if c, ok := catalogs[locale]; ok {
		return c
	}
	return catalogs[LocaleES]
}

// FallbackText is the generic "try again" reply
func FallbackText(locale string) string {
	return catalogFor(locale).fallback
}

func (c catalog) question(slot string) string {
	return fmt.Sprintf(c.ask, c.labels[slot])
}

func (c catalog) date(iso string) string {
	t, err := time.Parse("2006-01-02", iso)
	if err != nil {
		return iso
	}
	return t.Format(c.dateLayout)
}

// details renders the populated slots as a comma separated list
func (c catalog) details(s store.ReservationSlots) string {
	var parts []string
	for _, slot := range []string{SlotRoomType, SlotCheckIn, SlotCheckOut, SlotNumGuests, SlotGuestName} {
		v := getSlot(s, slot)
		if v == "" {
			continue
		}
		if slot == SlotCheckIn || slot == SlotCheckOut {
			v = c.date(v)
		}
		parts = append(parts, fmt.Sprintf(c.detail[slot], v))
	}
	return strings.Join(parts, ", ")
}

func (c catalog) proposal(s store.ReservationSlots, res *AvailabilityResult, keyword string) string {
	var b strings.Builder
	if res.ProposalText != "" {
		b.WriteString(strings.TrimSpace(res.ProposalText))
	} else {
		fmt.Fprintf(&b, c.quote, s.RoomType, c.date(s.CheckIn), c.date(s.CheckOut), nights(s), s.NumGuests)
	}
	if res.Price != "" {
		b.WriteString(" ")
		fmt.Fprintf(&b, c.price, res.Price)
	}
	if len(res.Options) > 0 {
		b.WriteString(" ")
		fmt.Fprintf(&b, c.options, strings.Join(res.Options, ", "))
	}
	b.WriteString(" ")
	fmt.Fprintf(&b, c.confirmHint, keyword)
	return b.String()
}
