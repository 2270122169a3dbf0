package main

import (
	"context"
	"fmt"
	"time"

	"github.com/DukeRupert/fixiepixie/internal"
	"github.com/DukeRupert/fixiepixie/internal/contact"
	"github.com/DukeRupert/fixiepixie/internal/domain"
	"github.com/DukeRupert/fixiepixie/internal/geocode"
	"github.com/spf13/cobra"
)

// doctorPoint is the coordinate used to check the geocoder.
var doctorPoint = domain.Coordinate{Latitude: 32.7767, Longitude: -96.7970}

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check contacts, mail settings and geocoder reachability",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				printFail("Config", err.Error())
				return fmt.Errorf("configuration invalid")
			}
			printPass("Config", fmt.Sprintf("env=%s provider=%s", cfg.Env, cfg.ServerMailProvider))

			failed := 0

			// 1. Contact directory loads and has a usable Default
			dir, err := contact.Load(cfg.ContactsPath, logger)
			switch {
			case err != nil:
				printFail("Contacts", err.Error())
				failed++
			case len(dir.Default().UsableEmails()) == 0:
				printWarn("Contacts", fmt.Sprintf("%d cities, Default has no usable address", dir.Len()))
			default:
				printPass("Contacts", fmt.Sprintf("%d cities from %s", dir.Len(), cfg.ContactsPath))
			}

			// 2. Server mail backend settings
			switch cfg.ServerMailProvider {
			case internal.MailProviderSendGrid:
				failed += checkSettings("SendGrid", cfg.SendGrid().Validate())
			case internal.MailProviderMock:
				printWarn("Mail backend", "mock; reports are not delivered")
			default:
				failed += checkSettings("SMTP", cfg.SMTP().Validate())
			}

			// 3. Geocoder reachability
			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.GeocoderTimeout+5*time.Second)
			defer cancel()
			geo, err := geocode.NewNominatimClient(cfg.Geocoder(), logger).ReverseGeocode(ctx, doctorPoint)
			if err != nil {
				printFail("Geocoder", err.Error())
				failed++
			} else {
				printPass("Geocoder", fmt.Sprintf("%s -> %q", cfg.GeocoderURL, geo.City))
			}

			// 4. Optional integrations
			if cfg.AMQPURL == "" {
				printWarn("Events", "AMQP_URL not set; outcome events disabled")
			} else {
				printPass("Events", "exchange "+cfg.AMQPExchange)
			}
			if cfg.JWTSecret == "" {
				printWarn("Identity", "JWT_SECRET not set; all reports are anonymous")
			} else {
				printPass("Identity", "signed-in reporters enabled")
			}

			if failed > 0 {
				return fmt.Errorf("%d check(s) failed", failed)
			}
			return nil
		},
	}
}

func checkSettings(name string, err error) int {
	if err != nil {
		printFail(name, err.Error())
		return 1
	}
	printPass(name, "configured")
	return 0
}

func printPass(check, detail string) {
	fmt.Printf("  [PASS] %-14s %s\n", check, detail)
}

func printFail(check, detail string) {
	fmt.Printf("  [FAIL] %-14s %s\n", check, detail)
}

func printWarn(check, detail string) {
	fmt.Printf("  [WARN] %-14s %s\n", check, detail)
}
