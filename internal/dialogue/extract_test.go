// ABOUTME: Tests for rule-based slot extraction and language detection
// ABOUTME: Table-driven over es/en/pt phrasings

package dialogue

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/marcelomst/begaia-gateway/internal/store"
)

func TestExtractRules(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		known     store.ReservationSlots
		lastAsked string
		want      store.ReservationSlots
	}{
		{
			name: "explicit name",
			text: "Hola, me llamo Ana Pérez y quiero reservar",
			want: store.ReservationSlots{GuestName: "Ana Pérez"},
		},
		{
			name: "english name",
			text: "my name is john smith",
			want: store.ReservationSlots{GuestName: "John Smith"},
		},
		{
			name:      "bare name when asked",
			text:      "marcelo",
			lastAsked: SlotGuestName,
			want:      store.ReservationSlots{GuestName: "Marcelo"},
		},
		{
			name: "lowercase bare words are not a name",
			text: "marcelo martinez",
			want: store.ReservationSlots{},
		},
		{
			name: "date range with keywords",
			text: "del 02/10/2025 al 04/10/2025",
			want: store.ReservationSlots{CheckIn: "2025-10-02", CheckOut: "2025-10-04"},
		},
		{
			name: "iso range",
			text: "from 2025-10-02 until 2025-10-04",
			want: store.ReservationSlots{CheckIn: "2025-10-02", CheckOut: "2025-10-04"},
		},
		{
			name: "unlabeled pair is in then out",
			text: "02.10.25 04.10.25",
			want: store.ReservationSlots{CheckIn: "2025-10-02", CheckOut: "2025-10-04"},
		},
		{
			name:  "labeled check-out only",
			text:  "salida 06/10/2025",
			known: store.ReservationSlots{CheckIn: "2025-10-02"},
			want:  store.ReservationSlots{CheckOut: "2025-10-06"},
		},
		{
			name:      "lone date answers the asked slot",
			text:      "04/10/2025",
			known:     store.ReservationSlots{CheckIn: "2025-10-02"},
			lastAsked: SlotCheckOut,
			want:      store.ReservationSlots{CheckOut: "2025-10-04"},
		},
		{
			name: "lone date fills check-in first",
			text: "02/10/2025",
			want: store.ReservationSlots{CheckIn: "2025-10-02"},
		},
		{
			name: "impossible date is ignored",
			text: "31/02/2025",
			want: store.ReservationSlots{},
		},
		{
			name: "room vocabulary",
			text: "quiero una habitación doble",
			want: store.ReservationSlots{RoomType: "double"},
		},
		{
			name: "portuguese room",
			text: "quarto de casal",
			want: store.ReservationSlots{RoomType: "double"},
		},
		{
			name: "party size digits",
			text: "3 personas",
			want: store.ReservationSlots{NumGuests: "3"},
		},
		{
			name: "party size words",
			text: "two adults",
			want: store.ReservationSlots{NumGuests: "2"},
		},
		{
			name: "party of",
			text: "somos 4",
			want: store.ReservationSlots{NumGuests: "4"},
		},
		{
			name:      "bare number",
			text:      "2",
			lastAsked: SlotNumGuests,
			want:      store.ReservationSlots{NumGuests: "2"},
		},
		{
			name: "party too large",
			text: "25 personas",
			want: store.ReservationSlots{},
		},
		{
			name: "everything at once",
			text: "Reserva a nombre de Laura Gómez, suite del 10/12/2025 al 12/12/2025 para 2 personas",
			want: store.ReservationSlots{
				GuestName: "Laura Gómez", RoomType: "suite",
				CheckIn: "2025-12-10", CheckOut: "2025-12-12", NumGuests: "2",
			},
		},
		{
			name: "confirm keyword is not a name",
			text: "CONFIRMAR",
			want: store.ReservationSlots{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractRules(tt.text, tt.known, tt.lastAsked)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMergeSlots(t *testing.T) {
	stored := store.ReservationSlots{GuestName: "Ana", CheckIn: "2025-10-02", CheckOut: "2025-10-04"}
	turn := store.ReservationSlots{CheckIn: "2025-10-05", RoomType: "twin"}

	got := MergeSlots(stored, turn)
	assert.Equal(t, store.ReservationSlots{
		GuestName: "Ana", CheckIn: "2025-10-05", CheckOut: "2025-10-04", RoomType: "twin",
	}, got)
}

func TestMissingSlot(t *testing.T) {
	complete := store.ReservationSlots{
		GuestName: "Ana", RoomType: "double", CheckIn: "2025-10-02", CheckOut: "2025-10-04", NumGuests: "2",
	}
	assert.Equal(t, "", missingSlot(complete))

	noRoom := complete
	noRoom.RoomType = ""
	assert.Equal(t, SlotRoomType, missingSlot(noRoom))

	badRange := complete
	badRange.CheckOut = "2025-10-02"
	assert.Equal(t, SlotCheckOut, missingSlot(badRange))

	assert.Equal(t, SlotGuestName, missingSlot(store.ReservationSlots{}))
}

func TestNormalizers(t *testing.T) {
	assert.Equal(t, "2025-10-02", NormalizeDate("02/10/2025"))
	assert.Equal(t, "2025-10-02", NormalizeDate(" 2025-10-02 "))
	assert.Equal(t, "", NormalizeDate("next friday"))
	assert.Equal(t, "", NormalizeDate("2025-02-30"))

	assert.Equal(t, "3", NormalizePartySize("tres"))
	assert.Equal(t, "", NormalizePartySize("0"))

	assert.Equal(t, "single", NormalizeRoomType("Habitación Individual"))
	assert.Equal(t, "penthouse", NormalizeRoomType(" Penthouse "))
}

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"Hola, quisiera una habitación para dos personas", LocaleES},
		{"Hello, do you have a room available for two nights?", LocaleEN},
		{"Olá, gostaria de reservar um quarto para o casal", LocalePT},
		{"Marcelo Martinez", ""},
		{"02/10/2025", ""},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectLanguage(tt.text))
		})
	}
}
