// Package compose renders a report into a backend-agnostic email message.
//
// Composition performs no I/O. The HTML rendering goes through html/template,
// so every user-supplied value is escaped before it reaches the markup.
package compose

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"

	"github.com/DukeRupert/fixiepixie/internal/domain"
)

//go:embed templates/*.html
var templateFS embed.FS

var reportTemplate = template.Must(template.ParseFS(templateFS, "templates/report.html"))

const (
	// UnknownCity replaces the city in the subject when geocoding found none.
	UnknownCity = "Unknown city"

	// NoDescription is shown when the reporter left the note empty.
	NoDescription = "(none)"

	unknownValue = "(unknown)"
)

// Composer builds ComposedMessages for one application name.
type Composer struct {
	appName string
}

// New creates a Composer. An empty appName falls back to "FixiePixie".
func New(appName string) *Composer {
	if strings.TrimSpace(appName) == "" {
		appName = "FixiePixie"
	}
	return &Composer{appName: appName}
}

// AppName returns the name used in subjects and banners.
func (c *Composer) AppName() string {
	return c.appName
}

// view is the data handed to the HTML template. Every field is a plain
// string so html/template escapes it.
type view struct {
	AppName       string
	Subject       string
	Category      string
	Description   string
	Address       string
	Locality      string
	GPS           string
	GoogleMapsURL string
	OSMURL        string
	ReporterName  string
	ReporterEmail string
	HasPhoto      bool
	PhotoFilename string
}

// Compose renders sub and geo into a new message. geo may be empty.
func (c *Composer) Compose(sub *domain.ReportSubmission, geo domain.GeoDescriptor) (*domain.ComposedMessage, error) {
	var coord domain.Coordinate
	if sub.Coordinate != nil {
		coord = *sub.Coordinate
	}

	v := view{
		AppName:       c.appName,
		Subject:       c.Subject(sub.Category, geo),
		Category:      strings.TrimSpace(sub.Category),
		Description:   orDefault(strings.TrimSpace(sub.Note), NoDescription),
		Address:       orDefault(geo.DisplayAddress, unknownValue),
		Locality:      orDefault(locality(geo), unknownValue),
		GPS:           coord.String(),
		GoogleMapsURL: googleMapsURL(coord),
		OSMURL:        osmURL(coord),
		ReporterName:  sub.ReporterDisplayName(),
		ReporterEmail: strings.TrimSpace(sub.ReporterEmail),
	}

	attachment := attachmentFor(sub.Photo)
	if attachment != nil {
		v.HasPhoto = true
		v.PhotoFilename = attachment.Filename
	}

	var html bytes.Buffer
	if err := reportTemplate.Execute(&html, v); err != nil {
		return nil, fmt.Errorf("render report html: %w", err)
	}

	return &domain.ComposedMessage{
		Subject:    v.Subject,
		PlainBody:  plainBody(v),
		HTMLBody:   html.String(),
		Attachment: attachment,
	}, nil
}

// Subject formats "[App] category — city (zip)".
func (c *Composer) Subject(category string, geo domain.GeoDescriptor) string {
	city := orDefault(geo.City, UnknownCity)
	subject := fmt.Sprintf("[%s] %s — %s", c.appName, strings.TrimSpace(category), city)
	if geo.PostalCode != "" {
		subject += " (" + geo.PostalCode + ")"
	}
	return subject
}

func plainBody(v view) string {
	reporter := v.ReporterName
	if v.ReporterEmail != "" {
		reporter += " <" + v.ReporterEmail + ">"
	}

	lines := []string{
		v.AppName + " report",
		"",
		"Category: " + v.Category,
		"Description: " + v.Description,
		"Address: " + v.Address,
		"City/State/ZIP: " + v.Locality,
		"GPS: " + v.GPS,
		"Google Maps: " + v.GoogleMapsURL,
		"OpenStreetMap: " + v.OSMURL,
		"Reporter: " + reporter,
	}
	if v.HasPhoto {
		lines = append(lines, "", "Photo attached: "+v.PhotoFilename)
	}
	return strings.Join(lines, "\n") + "\n"
}

// locality renders "City, State ZIP", skipping empty parts.
func locality(geo domain.GeoDescriptor) string {
	var parts []string
	if geo.City != "" {
		parts = append(parts, geo.City)
	}
	if geo.State != "" {
		parts = append(parts, geo.State)
	}
	s := strings.Join(parts, ", ")
	if geo.PostalCode != "" {
		s = strings.TrimSpace(s + " " + geo.PostalCode)
	}
	return s
}

func googleMapsURL(c domain.Coordinate) string {
	return fmt.Sprintf("https://www.google.com/maps?q=%.6f,%.6f", c.Latitude, c.Longitude)
}

func osmURL(c domain.Coordinate) string {
	return fmt.Sprintf("https://www.openstreetmap.org/?mlat=%.6f&mlon=%.6f#map=18/%.6f/%.6f",
		c.Latitude, c.Longitude, c.Latitude, c.Longitude)
}

// attachmentFor converts a photo into an attachment with default metadata.
func attachmentFor(p *domain.Photo) *domain.Attachment {
	if p.IsEmpty() {
		return nil
	}
	return &domain.Attachment{
		Data:        p.Data,
		ContentType: orDefault(p.ContentType, domain.DefaultPhotoContentType),
		Filename:    orDefault(p.Filename, domain.DefaultPhotoFilename),
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
