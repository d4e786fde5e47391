package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"proxysieve/internal/domain"
)

const reportHeader = "proxy,reachable,latency,listed,score"

// PlainList renders the accepted set one address per line. An empty set
// renders to an empty string; writing an empty artifact is a valid outcome.
func PlainList(accepted []string) string {
	return strings.Join(accepted, "\n")
}

// CSVReport renders the full per-candidate accounting.
func CSVReport(records []domain.AcceptanceRecord) string {
	var builder strings.Builder
	builder.WriteString(reportHeader)
	builder.WriteString("\n")

	for _, record := range records {
		fmt.Fprintf(&builder, "%s,%t,%.3f,%t,%d\n",
			record.Address,
			record.Reachable,
			record.LatencyMillis,
			record.Listed,
			record.Score,
		)
	}
	return builder.String()
}

// WriteArtifacts persists both output files, creating the directory when
// needed. It always writes both artifacts, even when the run accepted
// nothing.
func WriteArtifacts(dir, cleanFile, reportFile string, accepted []string, records []domain.AcceptanceRecord) error {
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return fmt.Errorf("export: create output directory: %w", err)
	}

	cleanPath := filepath.Join(dir, cleanFile)
	if err := os.WriteFile(cleanPath, []byte(PlainList(accepted)), 0o644); err != nil {
		return fmt.Errorf("export: write accepted list: %w", err)
	}

	reportPath := filepath.Join(dir, reportFile)
	if err := os.WriteFile(reportPath, []byte(CSVReport(records)), 0o644); err != nil {
		return fmt.Errorf("export: write report: %w", err)
	}

	log.Info("Artifacts written",
		"accepted", len(accepted),
		"records", len(records),
		"clean_file", cleanPath,
		"report_file", reportPath,
	)
	return nil
}
