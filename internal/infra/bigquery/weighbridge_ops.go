package bigquery

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/lorry-checker/internal/domain"
	"github.com/dvloznov/lorry-checker/internal/logger"
)

// TableRef identifies a BigQuery table holding a weighbridge transaction log.
type TableRef struct {
	ProjectID string
	Dataset   string
	Table     string
}

func (r TableRef) String() string {
	return fmt.Sprintf("%s.%s.%s", r.ProjectID, r.Dataset, r.Table)
}

// Validate checks that every part of the reference is set.
func (r TableRef) Validate() error {
	if r.ProjectID == "" || r.Dataset == "" || r.Table == "" {
		return fmt.Errorf("incomplete table reference %q", r.String())
	}
	return nil
}

// RowReader yields a header and raw cell values. It is satisfied by
// BigQueryLogReader and by fakes in tests.
type RowReader interface {
	ReadRows(ctx context.Context, ref TableRef) (header []string, rows [][]bigquery.Value, err error)
}

// BigQueryLogReader reads whole tables with a shared client.
type BigQueryLogReader struct {
	client *bigquery.Client
}

// NewBigQueryLogReader creates a reader billed to projectID.
func NewBigQueryLogReader(ctx context.Context, projectID string) (*BigQueryLogReader, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewBigQueryLogReader: creating client: %w", err)
	}
	return &BigQueryLogReader{client: client}, nil
}

// Close closes the BigQuery client connection.
func (r *BigQueryLogReader) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// ReadRows reads every row of the table. The header is taken from the table schema.
func (r *BigQueryLogReader) ReadRows(ctx context.Context, ref TableRef) ([]string, [][]bigquery.Value, error) {
	if err := ref.Validate(); err != nil {
		return nil, nil, fmt.Errorf("ReadRows: %w", err)
	}

	it := r.client.DatasetInProject(ref.ProjectID, ref.Dataset).Table(ref.Table).Read(ctx)

	var rows [][]bigquery.Value
	for {
		var row []bigquery.Value
		err := it.Next(&row)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("ReadRows: iterating %s: %w", ref, err)
		}
		rows = append(rows, row)
	}

	header := make([]string, len(it.Schema))
	for i, field := range it.Schema {
		header[i] = field.Name
	}
	return header, rows, nil
}

// LoadWeighbridgeLog reads a weighbridge table and renders every cell as text so the
// result goes through the same loader as an uploaded file.
func LoadWeighbridgeLog(ctx context.Context, reader RowReader, ref TableRef) (*domain.RawTable, error) {
	header, rows, err := reader.ReadRows(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("LoadWeighbridgeLog: %w", err)
	}
	if len(header) == 0 {
		return nil, fmt.Errorf("LoadWeighbridgeLog: table %s has no columns", ref)
	}

	table := &domain.RawTable{
		Header: header,
		Rows:   make([][]string, len(rows)),
	}
	for i, row := range rows {
		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = FormatValue(v)
		}
		table.Rows[i] = cells
	}

	log := logger.WithFields(logger.FromContext(ctx), map[string]interface{}{
		"table":   ref.String(),
		"columns": len(header),
		"rows":    len(rows),
	})
	log.Debug().Msg("Loaded weighbridge log from BigQuery")
	return table, nil
}
