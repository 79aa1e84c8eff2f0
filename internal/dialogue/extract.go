// ABOUTME: Rule-based slot extraction from free-text guest messages
// ABOUTME: Recognizes names, stay dates, room types and party size in es/en/pt

package dialogue

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/marcelomst/begaia-gateway/internal/store"
)

// Slot names
const (
	SlotGuestName = "guestName"
	SlotRoomType  = "roomType"
	SlotCheckIn   = "checkIn"
	SlotCheckOut  = "checkOut"
	SlotNumGuests = "numGuests"
	SlotLocale    = "locale"

	// askReservationCode is stored in lastAsked while waiting for a booking code
	askReservationCode = "reservationCode"
)

var (
	datePattern = regexp.MustCompile(`\b(\d{4})-(\d{1,2})-(\d{1,2})\b|\b(\d{1,2})[/.\-](\d{1,2})[/.\-](\d{2,4})\b`)

	checkOutKeyword = regexp.MustCompile(`(?i)\b(salida|check-?out|hasta|al|until|till|departure|leaving|saída|saida|partida|até)\b`)
	checkInKeyword  = regexp.MustCompile(`(?i)\b(entrada|check-?in|llegada|llego|llegamos|ingreso|desde|del|from|arrival|arriving|chegada|chego)\b`)

	peopleDigits = regexp.MustCompile(`(?i)\b(\d{1,2})\s*(personas?|people|persons?|guests?|hu[eé]spedes|pessoas?|adultos?|adults?|pax)\b`)
	peopleWords  = regexp.MustCompile(`(?i)\b(uno|una|dos|tres|cuatro|cinco|seis|one|two|three|four|five|six|um|uma|dois|duas|três|quatro)\s+(personas?|people|persons?|guests?|hu[eé]spedes|pessoas?|adultos?|adults?)`)
	partyOf      = regexp.MustCompile(`(?i)\b(?:somos|we are|party of|para|for)\s+(\d{1,2})\b`)
	bareNumber   = regexp.MustCompile(`^\d{1,2}$`)

	explicitName = regexp.MustCompile(`(?i)\b(?:me llamo|mi nombre es|my name is|i am|i'm|meu nome é|meu nome e|me chamo|a nombre de|en nombre de|under the name)\s+([\p{L}][\p{L}'\-]*(?:\s+[\p{L}][\p{L}'\-]*){0,3})`)
)

var numberWords = map[string]string{
	"uno": "1", "una": "1", "one": "1", "um": "1", "uma": "1",
	"dos": "2", "two": "2", "dois": "2", "duas": "2",
	"tres": "3", "three": "3", "três": "3",
	"cuatro": "4", "four": "4", "quatro": "4",
	"cinco": "5", "five": "5",
	"seis": "6", "six": "6",
}

var roomVocabulary = map[string]string{
	"single": "single", "individual": "single", "simple": "single", "sencilla": "single", "solteiro": "single",
	"double": "double", "doble": "double", "duplo": "double", "dupla": "double", "casal": "double", "matrimonial": "double",
	"twin": "twin",
	"triple": "triple", "triplo": "triple", "tripla": "triple",
	"suite": "suite",
	"family": "family", "familiar": "family", "familia": "family",
}

// notNameWords are never taken as part of a bare guest name
var notNameWords = map[string]bool{
	"hola": true, "hello": true, "hi": true, "oi": true, "olá": true, "ola": true, "buenas": true,
	"buenos": true, "buen": true, "dias": true, "días": true, "tardes": true, "noches": true, "bom": true, "dia": true,
	"gracias": true, "thanks": true, "thank": true, "obrigado": true, "obrigada": true,
	"si": true, "sí": true, "yes": true, "no": true, "não": true, "nao": true, "ok": true, "okay": true, "sim": true,
	"confirmar": true, "confirmo": true, "confirm": true, "confirma": true,
	"reserva": true, "reservar": true, "booking": true, "reservation": true, "book": true,
	"quiero": true, "want": true, "quero": true, "necesito": true, "need": true,
	"habitacion": true, "habitación": true, "room": true, "quarto": true,
	"precio": true, "price": true, "preço": true, "disponibilidad": true, "availability": true,
	"y": true, "and": true, "e": true, "con": true, "with": true, "com": true, "para": true, "for": true,
}

// slotOrder is the order slots are reported and asked in
var slotOrder = []string{SlotGuestName, SlotCheckIn, SlotCheckOut, SlotRoomType, SlotNumGuests}

func getSlot(s store.ReservationSlots, name string) string {
	switch name {
	case SlotGuestName:
		return s.GuestName
	case SlotRoomType:
		return s.RoomType
	case SlotCheckIn:
		return s.CheckIn
	case SlotCheckOut:
		return s.CheckOut
	case SlotNumGuests:
		return s.NumGuests
	case SlotLocale:
		return s.Locale
	}
	return ""
}

func setSlot(s *store.ReservationSlots, name, value string) {
	switch name {
	case SlotGuestName:
		s.GuestName = value
	case SlotRoomType:
		s.RoomType = value
	case SlotCheckIn:
		s.CheckIn = value
	case SlotCheckOut:
		s.CheckOut = value
	case SlotNumGuests:
		s.NumGuests = value
	case SlotLocale:
		s.Locale = value
	}
}

// MergeSlots overlays the values present in turn onto stored.
// Fields absent from turn keep their stored value.
func MergeSlots(stored, turn store.ReservationSlots) store.ReservationSlots {
	merged := stored
	for _, name := range []string{SlotGuestName, SlotCheckIn, SlotCheckOut, SlotRoomType, SlotNumGuests, SlotLocale} {
		if v := getSlot(turn, name); v != "" {
			setSlot(&merged, name, v)
		}
	}
	return merged
}

// ExtractRules pulls whatever slot values it can recognize from text.
// known and lastAsked disambiguate bare answers such as a single date or name.
func ExtractRules(text string, known store.ReservationSlots, lastAsked string) store.ReservationSlots {
	var out store.ReservationSlots

	rest := extractDates(text, known, lastAsked, &out)
	out.NumGuests = extractPartySize(rest)
	out.RoomType = extractRoomType(rest)
	out.GuestName = extractName(rest, known, lastAsked)

	return out
}

// extractDates fills check-in/check-out and returns text with the dates removed
func extractDates(text string, known store.ReservationSlots, lastAsked string, out *store.ReservationSlots) string {
	type found struct {
		iso  string
		role string
	}
	var dates []found

	matches := datePattern.FindAllStringSubmatchIndex(text, -1)
	prevEnd := 0
	for _, m := range matches {
		iso := isoFromMatch(text, m)
		lead := strings.ToLower(text[prevEnd:m[0]])
		prevEnd = m[1]
		if iso == "" {
			continue
		}
		role := ""
		switch {
		case checkOutKeyword.MatchString(lead):
			role = SlotCheckOut
		case checkInKeyword.MatchString(lead):
			role = SlotCheckIn
		}
		dates = append(dates, found{iso: iso, role: role})
	}

	switch {
	case len(dates) >= 2:
		first, second := dates[0], dates[1]
		if first.role == "" {
			first.role = SlotCheckIn
			if second.role == SlotCheckIn {
				first.role = SlotCheckOut
			}
		}
		if second.role == "" || second.role == first.role {
			if first.role == SlotCheckIn {
				second.role = SlotCheckOut
			} else {
				second.role = SlotCheckIn
			}
		}
		setSlot(out, first.role, first.iso)
		setSlot(out, second.role, second.iso)
	case len(dates) == 1:
		d := dates[0]
		if d.role == "" {
			d.role = singleDateRole(known, lastAsked)
		}
		setSlot(out, d.role, d.iso)
	}

	return datePattern.ReplaceAllString(text, " ")
}

// singleDateRole decides which slot an unlabeled lone date answers
func singleDateRole(known store.ReservationSlots, lastAsked string) string {
	switch {
	case lastAsked == SlotCheckOut:
		return SlotCheckOut
	case lastAsked == SlotCheckIn:
		return SlotCheckIn
	case known.CheckIn == "":
		return SlotCheckIn
	case known.CheckOut == "":
		return SlotCheckOut
	}
	return SlotCheckIn
}

// isoFromMatch converts one datePattern match into yyyy-mm-dd, or "" if it is not a real date
func isoFromMatch(text string, m []int) string {
	group := func(i int) string {
		if m[2*i] < 0 {
			return ""
		}
		return text[m[2*i]:m[2*i+1]]
	}

	var y, mo, d string
	if group(1) != "" {
		y, mo, d = group(1), group(2), group(3)
	} else {
		d, mo, y = group(4), group(5), group(6)
		if len(y) == 2 {
			y = "20" + y
		} else if len(y) == 3 {
			return ""
		}
	}
	return isoDate(y, mo, d)
}

func isoDate(y, mo, d string) string {
	year, err1 := strconv.Atoi(y)
	month, err2 := strconv.Atoi(mo)
	day, err3 := strconv.Atoi(d)
	if err1 != nil || err2 != nil || err3 != nil {
		return ""
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Year() != year || int(t.Month()) != month || t.Day() != day {
		return ""
	}
	return t.Format("2006-01-02")
}

// NormalizeDate accepts ISO or day-first dates and returns yyyy-mm-dd, or "" when unparseable
func NormalizeDate(s string) string {
	s = strings.TrimSpace(s)
	m := datePattern.FindStringSubmatchIndex(s)
	if m == nil || m[0] != 0 || m[1] != len(s) {
		return ""
	}
	return isoFromMatch(s, m)
}

func extractPartySize(text string) string {
	if m := peopleDigits.FindStringSubmatch(text); m != nil {
		return validPartySize(m[1])
	}
	if m := peopleWords.FindStringSubmatch(text); m != nil {
		return numberWords[strings.ToLower(m[1])]
	}
	if m := partyOf.FindStringSubmatch(text); m != nil {
		return validPartySize(m[1])
	}
	if t := strings.TrimSpace(text); bareNumber.MatchString(t) {
		return validPartySize(t)
	}
	return ""
}

func validPartySize(s string) string {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > 20 {
		return ""
	}
	return strconv.Itoa(n)
}

// NormalizePartySize returns a party size as a plain number string, or "" when invalid
func NormalizePartySize(s string) string {
	s = strings.TrimSpace(s)
	if v, ok := numberWords[strings.ToLower(s)]; ok {
		return v
	}
	return validPartySize(s)
}

func words(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\'' && r != '-'
	})
}

func extractRoomType(text string) string {
	for _, w := range words(strings.ToLower(text)) {
		if room, ok := roomVocabulary[w]; ok {
			return room
		}
	}
	return ""
}

// NormalizeRoomType maps a room description onto the known vocabulary,
// falling back to the lower-cased input
func NormalizeRoomType(s string) string {
	if room := extractRoomType(s); room != "" {
		return room
	}
	return strings.ToLower(strings.TrimSpace(s))
}

func extractName(text string, known store.ReservationSlots, lastAsked string) string {
	if m := explicitName.FindStringSubmatch(text); m != nil {
		var kept []string
		for _, w := range strings.Fields(m[1]) {
			if notNameWords[strings.ToLower(w)] {
				break
			}
			kept = append(kept, w)
		}
		if len(kept) > 0 {
			return titleCase(kept)
		}
	}

	candidate := strings.TrimSpace(strings.TrimRight(strings.TrimSpace(text), ".!,;"))
	fields := strings.Fields(candidate)
	if len(fields) == 0 || len(fields) > 4 {
		return ""
	}
	for _, f := range fields {
		if notNameWords[strings.ToLower(f)] {
			return ""
		}
		if _, isRoom := roomVocabulary[strings.ToLower(f)]; isRoom {
			return ""
		}
		if _, isNumber := numberWords[strings.ToLower(f)]; isNumber {
			return ""
		}
		for _, r := range f {
			if !unicode.IsLetter(r) && r != '\'' && r != '-' {
				return ""
			}
		}
	}

	if lastAsked == SlotGuestName {
		return titleCase(fields)
	}
	if known.GuestName != "" || len(fields) < 2 {
		return ""
	}
	for _, f := range fields {
		if r := []rune(f)[0]; !unicode.IsUpper(r) {
			return ""
		}
	}
	return titleCase(fields)
}

func titleCase(ws []string) string {
	out := make([]string, len(ws))
	for i, w := range ws {
		r := []rune(strings.ToLower(w))
		r[0] = unicode.ToUpper(r[0])
		out[i] = string(r)
	}
	return strings.Join(out, " ")
}

// normalizeExtraction cleans model-provided slots; unparseable values are dropped
func normalizeExtraction(s store.ReservationSlots) store.ReservationSlots {
	out := store.ReservationSlots{
		GuestName: strings.TrimSpace(s.GuestName),
		CheckIn:   NormalizeDate(s.CheckIn),
		CheckOut:  NormalizeDate(s.CheckOut),
		NumGuests: NormalizePartySize(s.NumGuests),
	}
	if s.RoomType != "" {
		out.RoomType = NormalizeRoomType(s.RoomType)
	}
	switch l := strings.ToLower(strings.TrimSpace(s.Locale)); l {
	case "es", "en", "pt":
		out.Locale = l
	}
	return out
}

// slotsInput renders slots as the input map of a tool call trace
func slotsInput(hotelID string, s store.ReservationSlots) map[string]string {
	return map[string]string{
		"hotelId":   hotelID,
		"roomType":  s.RoomType,
		"checkIn":   s.CheckIn,
		"checkOut":  s.CheckOut,
		"numGuests": s.NumGuests,
	}
}

// missingSlot returns the highest-priority slot still missing, or "" when complete.
// A check-out on or before check-in counts as missing without being discarded.
func missingSlot(s store.ReservationSlots) string {
	for _, name := range slotOrder {
		if getSlot(s, name) == "" {
			return name
		}
	}
	if !validRange(s) {
		return SlotCheckOut
	}
	return ""
}

func validRange(s store.ReservationSlots) bool {
	in, err1 := time.Parse("2006-01-02", s.CheckIn)
	out, err2 := time.Parse("2006-01-02", s.CheckOut)
	return err1 == nil && err2 == nil && out.After(in)
}

// nights returns the number of nights of a valid stay
func nights(s store.ReservationSlots) int {
	in, err1 := time.Parse("2006-01-02", s.CheckIn)
	out, err2 := time.Parse("2006-01-02", s.CheckOut)
	if err1 != nil || err2 != nil {
		return 0
	}
	return int(out.Sub(in).Hours() / 24)
}

func describeSlots(s store.ReservationSlots) string {
	return fmt.Sprintf("%s/%s/%s/%s/%s", s.GuestName, s.RoomType, s.CheckIn, s.CheckOut, s.NumGuests)
}
