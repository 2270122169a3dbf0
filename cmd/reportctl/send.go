package main

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/DukeRupert/fixiepixie/internal"
	"github.com/DukeRupert/fixiepixie/internal/compose"
	"github.com/DukeRupert/fixiepixie/internal/contact"
	"github.com/DukeRupert/fixiepixie/internal/domain"
	"github.com/DukeRupert/fixiepixie/internal/geocode"
	"github.com/DukeRupert/fixiepixie/internal/photo"
	"github.com/DukeRupert/fixiepixie/internal/service"
	"github.com/spf13/cobra"
)

func sendCmd() *cobra.Command {
	var (
		lat, lon   float64
		category   string
		note       string
		name, addr string
		photoPath  string
	)

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Run a report through the pipeline using the server mail backend",
		Long: `Geocodes, routes, composes and sends a report exactly as an anonymous
submission to POST /api/report would, then prints the delivery outcome.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			dir, err := contact.Load(cfg.ContactsPath, logger)
			if err != nil {
				return err
			}

			sub := &domain.ReportSubmission{
				Coordinate:    &domain.Coordinate{Latitude: lat, Longitude: lon},
				Category:      category,
				Note:          note,
				ReporterName:  name,
				ReporterEmail: addr,
			}
			if photoPath != "" {
				if sub.Photo, err = readPhoto(photoPath); err != nil {
					return err
				}
			}

			reports := service.NewReportService(service.ReportServiceDeps{
				Geocoder: geocode.NewNominatimClient(cfg.Geocoder(), logger),
				Contacts: dir,
				Composer: compose.New(cfg.AppName),
				Server:   internal.NewServerSender(cfg, logger),
				Photos:   photo.NewProcessor(cfg.Photo(), logger),
			}, logger)

			outcome, err := reports.Submit(cmd.Context(), service.SubmitParams{Submission: sub})
			if outcome != nil {
				if printErr := printJSON(cmd, outcome); printErr != nil {
					return printErr
				}
			}
			if err != nil {
				return fmt.Errorf("%s: %s", domain.ErrorCode(err), domain.ErrorMessage(err))
			}
			return nil
		},
	}

	cmd.Flags().Float64Var(&lat, "lat", 0, "latitude")
	cmd.Flags().Float64Var(&lon, "lon", 0, "longitude")
	cmd.Flags().StringVar(&category, "category", "", "report category")
	cmd.Flags().StringVar(&note, "note", "", "free-text note")
	cmd.Flags().StringVar(&name, "name", "", "reporter name")
	cmd.Flags().StringVar(&addr, "email", "", "reporter email")
	cmd.Flags().StringVar(&photoPath, "photo", "", "photo file to attach")
	_ = cmd.MarkFlagRequired("lat")
	_ = cmd.MarkFlagRequired("lon")
	_ = cmd.MarkFlagRequired("category")

	return cmd
}

func readPhoto(path string) (*domain.Photo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read photo: %w", err)
	}
	return &domain.Photo{
		Data:        data,
		ContentType: http.DetectContentType(data),
		Filename:    filepath.Base(path),
	}, nil
}
