package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/lorry-checker/internal/config"
	"github.com/dvloznov/lorry-checker/internal/domain"
	"github.com/dvloznov/lorry-checker/internal/gcsuploader"
	infraBQ "github.com/dvloznov/lorry-checker/internal/infra/bigquery"
	"github.com/dvloznov/lorry-checker/internal/logger"
	"github.com/dvloznov/lorry-checker/internal/pipeline"
)

func main() {
	log := logger.New()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "check":
		runCheck(log)
	case "upload":
		runUpload(log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Suspicious Lorry Transaction Checker")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  check     Audit a weighbridge log (local file, gs:// URI or BigQuery table)")
	fmt.Println("  upload    Upload a weighbridge log to GCS")
	fmt.Println("  help      Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

func runCheck(log zerolog.Logger) {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	configPath := fs.String("config", os.Getenv("LORRY_CONFIG"), "Path to YAML config")
	filePath := fs.String("file", "", "Path to a local CSV log")
	gcsURI := fs.String("gcs-uri", "", "GCS URI of a CSV log")
	bqTable := fs.String("bq-table", "", "BigQuery table as project.dataset.table (defaults to config when -bq is set)")
	useBQ := fs.Bool("bq", false, "Read the BigQuery table from config")
	checkpoint := fs.String("checkpoint", "", "Checkpoint code to audit (overrides config)")
	out := fs.String("out", pipeline.ExportFilename, "Where to write the CSV shortlist")
	publish := fs.Bool("publish", false, "Also upload the shortlist to the configured GCS bucket")
	quiet := fs.Bool("quiet", false, "Do not print the shortlist table")
	fs.Parse(os.Args[2:])

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	if *checkpoint != "" {
		cfg.Rules.Checkpoint = *checkpoint
	}
	log = logger.NewFromConfig(cfg.Logging.Level, cfg.Logging.Format)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	table, source, err := loadTable(ctx, cfg, *filePath, *gcsURI, *bqTable, *useBQ)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load weighbridge log")
	}

	report, err := pipeline.Run(table, cfg.Options())
	if err != nil {
		log.Fatal().Err(err).Str("source", source).Msg("Audit failed")
	}
	runLog := logger.ForRun(log, report.RunID)
	runLog.Info().
		Str("source", source).
		Int("rows_read", report.RowsRead).
		Int("rows_in_scope", report.RowsInScope).
		Int("exported", len(report.Exported)).
		Int("suspicious", report.SuspiciousCount).
		Msg("Audit completed")

	if !*quiet && !report.Empty() {
		printShortlist(os.Stdout, report.Exported)
	}
	fmt.Println(report.Summary())

	data, err := pipeline.MarshalCSV(report.Exported)
	if err != nil && !errors.Is(err, pipeline.ErrNoMatches) {
		runLog.Fatal().Err(err).Msg("Failed to render export")
	}
	if err := os.WriteFile(*out, data, 0o644); err != nil {
		runLog.Fatal().Err(err).Str("path", *out).Msg("Failed to write export")
	}
	fmt.Printf("Wrote %d records to %s\n", len(report.Exported), *out)

	if *publish {
		if cfg.Storage.Bucket == "" {
			runLog.Fatal().Msg("Error: -publish needs storage.bucket or GCS_BUCKET")
		}
		object := gcsuploader.ExportObjectName(cfg.Storage.ExportPrefix, report.RunID, pipeline.ExportFilename, time.Now())
		if err := gcsuploader.UploadBytes(ctx, cfg.Storage.Bucket, object, pipeline.ExportContentType, data); err != nil {
			runLog.Fatal().Err(err).Msg("Failed to publish export")
		}
		fmt.Printf("Published %s\n", gcsuploader.URI(cfg.Storage.Bucket, object))
	}
}

// loadTable reads the log from exactly one of the supported sources.
func loadTable(ctx context.Context, cfg *config.Config, filePath, gcsURI, bqTable string, useBQ bool) (*domain.RawTable, string, error) {
	sources := 0
	for _, set := range []bool{filePath != "", gcsURI != "", bqTable != "" || useBQ} {
		if set {
			sources++
		}
	}
	if sources != 1 {
		return nil, "", fmt.Errorf("exactly one of -file, -gcs-uri or -bq-table/-bq is required")
	}

	switch {
	case filePath != "":
		f, err := os.Open(filePath)
		if err != nil {
			return nil, "", fmt.Errorf("open file %q: %w", filePath, err)
		}
		defer f.Close()
		table, err := pipeline.ReadTable(f)
		return table, filePath, err

	case gcsURI != "":
		data, err := gcsuploader.FetchFromGCS(ctx, gcsURI)
		if err != nil {
			return nil, "", err
		}
		table, err := pipeline.ReadTable(bytes.NewReader(data))
		return table, gcsURI, err

	default:
		ref := infraBQ.TableRef{
			ProjectID: cfg.BigQuery.ProjectID,
			Dataset:   cfg.BigQuery.Dataset,
			Table:     cfg.BigQuery.Table,
		}
		if bqTable != "" {
			var err error
			if ref, err = parseTableRef(bqTable); err != nil {
				return nil, "", err
			}
		}
		if err := ref.Validate(); err != nil {
			return nil, "", err
		}

		reader, err := infraBQ.NewBigQueryLogReader(ctx, ref.ProjectID)
		if err != nil {
			return nil, "", err
		}
		defer reader.Close()

		table, err := infraBQ.LoadWeighbridgeLog(ctx, reader, ref)
		return table, ref.String(), err
	}
}

// parseTableRef parses "project.dataset.table".
func parseTableRef(s string) (infraBQ.TableRef, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return infraBQ.TableRef{}, fmt.Errorf("invalid table %q, want project.dataset.table", s)
	}
	return infraBQ.TableRef{ProjectID: parts[0], Dataset: parts[1], Table: parts[2]}, nil
}

func printShortlist(w io.Writer, rows []domain.FlaggedTransaction) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RC ID\tLorry Number\tDriver Name\tcheck_in_dt\tgap\tduration\tbtm\trepeat")
	for _, row := range rows {
		checkIn := ""
		if row.CheckIn != nil {
			checkIn = row.CheckIn.Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			row.RCID, row.LorryNumber, row.DriverName, checkIn,
			mark(row.CheckInGap), mark(row.DurationOutOfRange), mark(row.BTMVariance), mark(row.RepeatedWeight))
	}
	tw.Flush()
}

func mark(b bool) string {
	if b {
		return "x"
	}
	return "."
}

func runUpload(log zerolog.Logger) {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	bucketName := fs.String("bucket", os.Getenv("GCS_BUCKET"), "GCS bucket name")
	objectName := fs.String("object", "", "GCS object name (defaults to filename)")
	filePath := fs.String("file", "", "Path to local CSV log")
	fs.Parse(os.Args[2:])

	if *bucketName == "" || *filePath == "" {
		log.Fatal().Msg("Usage: cli upload -bucket NAME -file PATH")
	}

	if *objectName == "" {
		*objectName = filepath.Base(*filePath)
	}

	ctx := logger.WithContext(context.Background(), log)

	log.Info().
		Str("bucket", *bucketName).
		Str("object", *objectName).
		Str("file", *filePath).
		Msg("Uploading file to GCS")

	if err := gcsuploader.UploadFile(ctx, *bucketName, *objectName, *filePath); err != nil {
		log.Fatal().Err(err).Msg("Upload failed")
	}

	fmt.Printf("Uploaded %s to %s\n", *filePath, gcsuploader.URI(*bucketName, *objectName))
}
