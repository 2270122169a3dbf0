// Command reportctl is the operator CLI for FixiePixie. It reads the same
// environment as the server.
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/DukeRupert/fixiepixie/internal"
	"github.com/DukeRupert/fixiepixie/internal/contact"
	"github.com/DukeRupert/fixiepixie/internal/domain"
	"github.com/DukeRupert/fixiepixie/internal/geocode"
	"github.com/spf13/cobra"
)

var (
	contactsPath string
	logLevel     string
)

func main() {
	root := &cobra.Command{
		Use:           "reportctl",
		Short:         "FixiePixie operator tools",
		Long:          "reportctl geocodes coordinates, inspects the contact directory and sends test reports using the server's configuration.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.PersistentFlags().StringVar(&contactsPath, "contacts", "", "contact directory file (default: CONTACTS_PATH)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level written to stderr")

	root.AddCommand(geocodeCmd())
	root.AddCommand(resolveCmd())
	root.AddCommand(sendCmd())
	root.AddCommand(doctorCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads configuration and a stderr logger for a command.
func setup() (*internal.Config, *slog.Logger, error) {
	cfg, err := internal.NewConfig()
	if err != nil {
		return nil, nil, err
	}
	if contactsPath != "" {
		cfg.ContactsPath = contactsPath
	}
	return cfg, internal.NewLogger(os.Stderr, "cli", logLevel), nil
}

func geocodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "geocode <lat> <lon>",
		Short: "Reverse geocode a coordinate",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			coord, err := parseCoordinate(args[0], args[1])
			if err != nil {
				return err
			}
			cfg, logger, err := setup()
			if err != nil {
				return err
			}

			geo, err := geocode.NewNominatimClient(cfg.Geocoder(), logger).ReverseGeocode(cmd.Context(), coord)
			if err != nil {
				return fmt.Errorf("reverse geocode: %w", err)
			}
			return printJSON(cmd, geo)
		},
	}
}

func resolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <city>",
		Short: "Show the contact record a city routes to",
		Long:  "Matching is exact and case-sensitive; unknown or empty cities route to Default.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			dir, err := contact.Load(cfg.ContactsPath, logger)
			if err != nil {
				return err
			}

			record := dir.Resolve(args[0])
			return printJSON(cmd, struct {
				City   string               `json:"city"`
				Record domain.ContactRecord `json:"record"`
				Usable []string             `json:"usable"`
			}{args[0], record, record.UsableEmails()})
		},
	}
}

func parseCoordinate(lat, lon string) (domain.Coordinate, error) {
	la, err := strconv.ParseFloat(lat, 64)
	if err != nil {
		return domain.Coordinate{}, fmt.Errorf("invalid latitude %q", lat)
	}
	lo, err := strconv.ParseFloat(lon, 64)
	if err != nil {
		return domain.Coordinate{}, fmt.Errorf("invalid longitude %q", lon)
	}
	return domain.Coordinate{Latitude: la, Longitude: lo}, nil
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
