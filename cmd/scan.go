package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/secaudit/headgrade/internal/eventlog"
	"github.com/secaudit/headgrade/internal/probe"
	"github.com/secaudit/headgrade/internal/rules"
	"github.com/secaudit/headgrade/internal/scanner"
)

var scanCmd = &cobra.Command{
	Use:   "scan <url>",
	Short: "Scan one site's security headers and print the graded report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		settings := loadSettings(cmd.Flags())
		force, _ := cmd.Flags().GetBool("force")
		lenient, _ := cmd.Flags().GetBool("lenient")
		asJSON, _ := cmd.Flags().GetBool("json")

		mode := settings.Mode
		if lenient {
			mode = rules.LenientRules.Name
		}

		log, err := eventlog.OpenSQLite(settings.Database)
		if err != nil {
			return fmt.Errorf("open event log: %w", err)
		}
		defer log.Close()

		s := scanner.New(rules.ConfigByName(mode), probe.New(settings.ProbeTimeout), log, nil, zap.NewNop())

		rec, err := s.Scan(cmd.Context(), args[0], "cli", force)
		if err != nil {
			return err
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(rec)
		}

		printReport(rec)
		return nil
	},
}

func printReport(rec *eventlog.ScanRecord) {
	source := "fresh probe"
	if rec.Cached {
		source = "cached"
	}
	fmt.Printf("%s %s (%s, %s)\n", colorInfo("→"), rec.Hostname, source, rec.Timestamp.Format("2006-01-02 15:04:05"))
	fmt.Printf("  Grade: %s (%d of %d rules failed)\n\n",
		colorGrade(rec.Grade), rec.Report.FailedCount(), len(rec.Report.Outcomes))

	for _, o := range rec.Report.Outcomes {
		line := fmt.Sprintf("  [%s] %s", colorOutcome(o), o.Rule)
		if o.Message != "" {
			line += fmt.Sprintf(" — %s", o.Message)
		}
		fmt.Println(line)
	}

	if providers := providerNames(rec); len(providers) > 0 {
		fmt.Printf("\n  Provider: %s\n", strings.Join(providers, ", "))
	}
	if len(rec.Addresses.V4) > 0 {
		fmt.Printf("  IPv4: %s\n", strings.Join(rec.Addresses.V4, ", "))
	}
	if len(rec.Addresses.V6) > 0 {
		fmt.Printf("  IPv6: %s\n", strings.Join(rec.Addresses.V6, ", "))
	}
}

func providerNames(rec *eventlog.ScanRecord) []string {
	var names []string
	if rec.Provider.Cloudflare {
		names = append(names, "Cloudflare")
	}
	if rec.Provider.Railway {
		names = append(names, "Railway")
	}
	if rec.Provider.Vercel {
		names = append(names, "Vercel")
	}
	return names
}

func init() {
	scanCmd.Flags().Bool("force", false, "Force a fresh probe even when a recent scan exists")
	scanCmd.Flags().Bool("lenient", false, "Use the lenient rule configuration (absent headers are skipped)")
	scanCmd.Flags().Bool("json", false, "Print the raw scan record as JSON")
	scanCmd.Flags().String("database", defaultDatabase, "Path to the event log database")
	scanCmd.Flags().String("mode", "strict", "Rule configuration: strict or lenient")
	scanCmd.Flags().Duration("probe-timeout", defaultProbeTimeout, "Timeout for the outbound probe")
}
