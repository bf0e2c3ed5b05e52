package notify

import (
	"strconv"
	"strings"

	"rakshak/internal/models"
)

const DefaultBody = "I am in danger. Please help immediately."

// BuildAlertMessage renders the SMS text sent to trusted contacts.
func BuildAlertMessage(body string, loc models.Coordinates, sessionID, linkBase string) string {
	if strings.TrimSpace(body) == "" {
		body = DefaultBody
	}
	lines := []string{
		"🚨 SOS ALERT 🚨",
		"",
		body,
		"",
		"📍 Location:",
		MapsLink(loc),
		"",
		"🔗 SOS Details:",
		SessionLink(linkBase, sessionID),
	}
	return strings.Join(lines, "\n")
}

func MapsLink(loc models.Coordinates) string {
	return "https://maps.google.com/?q=" + formatCoord(loc.Lat) + "," + formatCoord(loc.Lng)
}

func SessionLink(linkBase, sessionID string) string {
	return strings.TrimRight(linkBase, "/") + "/sos/" + sessionID
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
