package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"kra-assist/internal/app"
	"kra-assist/internal/common/validation"
	"kra-assist/internal/fraud"
	"kra-assist/internal/ingestion"
	"kra-assist/internal/knowledge"
	"kra-assist/internal/kra"
)

const dateLayout = "2006-01-02"

func (c *cli) ingestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Load external records into Postgres",
	}

	var start, end string
	taxpayers := &cobra.Command{
		Use:   "taxpayers",
		Short: "Ingest KRA taxpayer records registered in a date range",
		RunE: func(cmd *cobra.Command, _ []string) error {
			from, err := time.Parse(dateLayout, start)
			if err != nil {
				return fmt.Errorf("--start: %w", err)
			}
			to, err := time.Parse(dateLayout, end)
			if err != nil {
				return fmt.Errorf("--end: %w", err)
			}
			return c.withIngestor(cmd.Context(), func(ctx context.Context, ing *ingestion.Ingestor) (*ingestion.Report, error) {
				return ing.IngestTaxpayers(ctx, from, to)
			}, cmd)
		},
	}
	taxpayers.Flags().StringVar(&start, "start", "", "first registration date (YYYY-MM-DD)")
	taxpayers.Flags().StringVar(&end, "end", "", "last registration date (YYYY-MM-DD)")
	_ = taxpayers.MarkFlagRequired("start")
	_ = taxpayers.MarkFlagRequired("end")

	var paybill string
	mpesa := &cobra.Command{
		Use:   "mpesa",
		Short: "Ingest M-Pesa transactions for a paybill",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withIngestor(cmd.Context(), func(ctx context.Context, ing *ingestion.Ingestor) (*ingestion.Report, error) {
				return ing.IngestMPesa(ctx, paybill)
			}, cmd)
		},
	}
	mpesa.Flags().StringVar(&paybill, "paybill", "", "paybill number")
	_ = mpesa.MarkFlagRequired("paybill")

	cmd.AddCommand(taxpayers, mpesa)
	return cmd
}

func (c *cli) withIngestor(ctx context.Context, run func(context.Context, *ingestion.Ingestor) (*ingestion.Report, error), cmd *cobra.Command) error {
	if !c.cfg.PostgresConfigured() {
		return fmt.Errorf("postgres is not configured (set DB_HOST and database.postgres.database)")
	}
	pg, err := app.ConnectPostgres(ctx, c.cfg, c.log)
	if err != nil {
		return err
	}
	defer pg.Close()

	kraClient := app.NewKRAClient(ctx, c.cfg, kra.NewPostgresAuditLog(pg.DB), nil, c.log)
	report, err := run(ctx, app.NewIngestor(c.cfg, kraClient, pg, c.log))
	if report != nil {
		printReport(cmd, report)
	}
	return err
}

func printReport(cmd *cobra.Command, r *ingestion.Report) {
	cmd.Printf("%s: fetched %d, valid %d, stored %d, dropped %d\n", r.Source, r.Fetched, r.Valid, r.Stored, r.Dropped())
	if merr, ok := r.Rejected.(*multierror.Error); ok {
		for _, e := range merr.Errors {
			cmd.Printf("  rejected %v\n", e)
		}
	}
}

func (c *cli) fraudCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fraud",
		Short: "Manage the fraud detection model",
	}

	var input string
	var feedbackCount int
	train := &cobra.Command{
		Use:   "train",
		Short: "Fit the fraud model on a JSON array of samples",
		RunE: func(cmd *cobra.Command, _ []string) error {
			samples, err := readSamples(input)
			if err != nil {
				return err
			}
			detector, err := app.NewFraudDetector(c.cfg, c.log)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("feedback-count") && detector.Trained() && !detector.ShouldRetrain(feedbackCount) {
				cmd.Printf("keeping current model: %d feedback records do not exceed the retrain threshold\n", feedbackCount)
				return nil
			}
			artifact, err := detector.Train(cmd.Context(), samples)
			if err != nil {
				return err
			}
			cmd.Printf("trained model %s (%s) on %d samples\n", artifact.ModelID, artifact.Version, artifact.Samples)
			return nil
		},
	}
	train.Flags().StringVarP(&input, "input", "i", "", "samples file")
	train.Flags().IntVar(&feedbackCount, "feedback-count", 0, "analyst feedback records since the last fit; retrains only above the threshold")
	_ = train.MarkFlagRequired("input")

	cmd.AddCommand(train)
	return cmd
}

// readSamples rejects the whole file when any sample fails validation, and
// names every bad sample.
func readSamples(path string) ([]fraud.Sample, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%s: expected a JSON array: %w", path, err)
	}

	var errs *multierror.Error
	samples := make([]fraud.Sample, 0, len(raw))
	for i, r := range raw {
		if res := validation.FraudSample.Validate(r); !res.Valid {
			errs = multierror.Append(errs, fmt.Errorf("sample %d: %w", i, res.Err()))
			continue
		}
		var s fraud.Sample
		if err := json.Unmarshal(r, &s); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("sample %d: %w", i, err))
			continue
		}
		samples = append(samples, s)
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	return samples, nil
}

func (c *cli) paymentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "payment",
		Short: "Query KRA payments",
	}
	status := &cobra.Command{
		Use:   "status [transaction-id]",
		Short: "Show the KRA payment status of a transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := app.NewKRAClient(cmd.Context(), c.cfg, kra.NewMemoryAuditLog(), nil, c.log)
			s, err := client.GetPaymentStatus(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			cmd.Printf("%s: %s\n", args[0], s)
			return nil
		},
	}
	cmd.AddCommand(status)
	return cmd
}

func (c *cli) kbCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kb",
		Short: "Manage the embedded knowledge base",
	}

	var file string
	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Load a JSON array of documents into the SQLite full-text index",
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			var docs []knowledge.Document
			if err := json.Unmarshal(data, &docs); err != nil {
				return fmt.Errorf("%s: %w", file, err)
			}
			for i, d := range docs {
				if d.ID == "" || d.Content == "" {
					return fmt.Errorf("document %d: id and content are required", i)
				}
			}

			kb, err := app.OpenSQLiteKnowledge(cmd.Context(), c.cfg)
			if err != nil {
				return err
			}
			defer kb.Close()

			importer, ok := kb.Searcher.(*knowledge.SQLiteSearcher)
			if !ok {
				return fmt.Errorf("knowledge backend does not support import")
			}
			if err := importer.Import(cmd.Context(), docs); err != nil {
				return err
			}
			cmd.Printf("imported %d documents into %s\n", len(docs), c.cfg.Database.SQLite.Path)
			return nil
		},
	}
	importCmd.Flags().StringVarP(&file, "file", "f", "", "documents file")
	_ = importCmd.MarkFlagRequired("file")

	cmd.AddCommand(importCmd)
	return cmd
}
