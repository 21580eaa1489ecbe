// Package text holds the user-facing strings and formatting helpers.
package text

import (
	"fmt"
	"strconv"
	"time"

	"github.com/goodsign/monday"
)

const Version = "0.2 'Bavadin'"

var emojis = map[string]string{
	"check":     "✅",
	"cross":     "❌",
	"frowning":  "\U0001F641",
	"bullet":    "•",
	"megaphone": "\U0001F4E3",
	"download":  "⬇",
	"pin":       "\U0001F4CC",
}

// Emoji returns the named emoji, or "" for unknown names.
func Emoji(name string) string { return emojis[name] }

func Success(msg string) string { return Emoji("check") + " " + msg }

func Failure(msg string) string { return Emoji("cross") + " " + msg }

// Error is the prefix of every error reply.
func Error(msg string) string { return Failure("Fehler: " + msg) }

// Bullet renders one list item, newline included.
func Bullet(s string) string { return Emoji("bullet") + " " + s + "\n" }

// FormatDate renders the long German form, e.g. "Sonntag, 1. Januar 2023".
func FormatDate(t time.Time) string {
	return monday.Format(t, "Monday, 2. January 2006", monday.LocaleDeDE)
}

// FormatUser renders "First (username:id)"; the username part is optional.
func FormatUser(firstName, username string, id int64) string {
	u := ""
	if username != "" {
		u = username + ":"
	}
	return firstName + " (" + u + strconv.FormatInt(id, 10) + ")"
}

// DefaultStart is the usual start of an evening, as offset from midnight.
const DefaultStart = 18 * time.Hour

// PollQuestion is both the poll title and the stored event description.
// start is the offset from midnight the evening begins at.
func PollQuestion(date time.Time, start time.Duration) string {
	h, m := int(start/time.Hour), int(start%time.Hour/time.Minute)
	return fmt.Sprintf("Alfredo am %s (%02d:%02d Uhr)", FormatDate(date), h, m)
}

// PollOptions are the fixed answers of every event poll.
var PollOptions = []string{"Teilnahme", "Teilnahme (+1 Gast)", "Absage"}

var reminders = []string{
	"Wer heute sein Kreuz setzt, muss morgen nicht hungern!",
	"Heute votieren -> morgen dinieren!",
	"Heute schön einschreiben -> morgen dick einverleiben!",
	"Heiße Teigscheiben in deiner Umgebung suchen DICH! MELD. DICH. AN.",
	"Hunger? Muss nicht sein, meld' dich jetzt an!",
	"Letzte Chance für nette Fettigkeiten oder fette Nettigkeiten!",
	"Morgen gibt's mal wieder Pizza...",
	"Hast du auch von Pizza geträumt? Bei Alfredo werden morgen Träume Wirklichkeit!",
}

// Reminders returns a copy of the reminder pool.
func Reminders() []string { return append([]string(nil), reminders...) }

// Picker is satisfied by *rand.Rand from math/rand/v2.
type Picker interface {
	IntN(n int) int
}

// Reminder picks one phrase from the pool.
func Reminder(p Picker) string { return reminders[p.IntN(len(reminders))] }
