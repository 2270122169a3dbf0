package domain

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportSubmission_Validate(t *testing.T) {
	coord := &Coordinate{Latitude: 32.78, Longitude: -96.80}

	tests := []struct {
		name       string
		submission ReportSubmission
		wantFields []string
	}{
		{
			name:       "valid minimal submission",
			submission: ReportSubmission{Coordinate: coord, Category: "Pothole"},
		},
		{
			name:       "missing coordinate",
			submission: ReportSubmission{Category: "Pothole"},
			wantFields: []string{"coordinate"},
		},
		{
			name:       "blank category",
			submission: ReportSubmission{Coordinate: coord, Category: "   "},
			wantFields: []string{"category"},
		},
		{
			name:       "missing both",
			submission: ReportSubmission{},
			wantFields: []string{"coordinate", "category"},
		},
		{
			name: "note too long",
			submission: ReportSubmission{
				Coordinate: coord,
				Category:   "Graffiti",
				Note:       strings.Repeat("x", MaxNoteLength+1),
			},
			wantFields: []string{"note"},
		},
		{
			name: "non-finite coordinate is still a present coordinate",
			submission: ReportSubmission{
				Coordinate: &Coordinate{Latitude: math.NaN(), Longitude: math.Inf(1)},
				Category:   "Streetlight",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.submission.Validate()
			if len(tt.wantFields) == 0 {
				assert.NoError(t, err)
				return
			}

			var ve *ValidationError
			require.True(t, errors.As(err, &ve), "expected ValidationError, got %v", err)
			assert.Len(t, ve.Fields, len(tt.wantFields))
			for _, f := range tt.wantFields {
				assert.Contains(t, ve.Fields, f)
			}
			assert.Equal(t, EINVALID, ErrorCode(err))
		})
	}
}

func TestReportSubmission_ReporterDisplayName(t *testing.T) {
	s := ReportSubmission{}
	assert.Equal(t, AnonymousReporter, s.ReporterDisplayName())

	s.ReporterName = "  "
	assert.Equal(t, AnonymousReporter, s.ReporterDisplayName())

	s.ReporterName = "Ada"
	assert.Equal(t, "Ada", s.ReporterDisplayName())
}

func TestCoordinate_String(t *testing.T) {
	assert.Equal(t, "32.780000, -96.800000", Coordinate{Latitude: 32.78, Longitude: -96.8}.String())
	assert.Equal(t, "NaN, +Inf", Coordinate{Latitude: math.NaN(), Longitude: math.Inf(1)}.String())
	assert.False(t, Coordinate{Latitude: math.NaN()}.IsFinite())
	assert.True(t, Coordinate{Latitude: 91, Longitude: 200}.IsFinite())
}

func TestContactRecord_UsableEmails(t *testing.T) {
	rec := ContactRecord{Emails: []string{"", " a@example.org ", "  ", "b@example.org"}}
	assert.Equal(t, []string{"a@example.org", "b@example.org"}, rec.UsableEmails())
	assert.Empty(t, ContactRecord{}.UsableEmails())
}

func TestErrorMessage_HidesConfigurationDetail(t *testing.T) {
	err := Misconfigured(errors.New("SMTP_PASS missing"), "SMTPSender.Send", "SMTP_PASS is not set")

	assert.Equal(t, EMISCONFIG, ErrorCode(err))
	assert.NotContains(t, ErrorMessage(err), "SMTP_PASS")
}

func TestNoRecipient(t *testing.T) {
	err := NoRecipient("ReportService.Submit", "")
	assert.Equal(t, ENORECIPIENT, ErrorCode(err))
	assert.Contains(t, ErrorMessage(err), "unknown city")
}

func TestIdentity(t *testing.T) {
	var nilID *Identity
	assert.False(t, nilID.CanSendMail())
	assert.Equal(t, AnonymousReporter, nilID.DisplayName())

	id := &Identity{Email: "ada@example.org"}
	assert.True(t, id.CanSendMail())
	assert.Equal(t, "ada@example.org", id.DisplayName())
	assert.Equal(t, "ada@example.org", id.Address())

	id.Name = "Ada Lovelace"
	assert.Equal(t, `"Ada Lovelace" <ada@example.org>`, id.Address())
}
