package span

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/spanner"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"

	"github.com/TFMV/estateflow/logger"
)

// Table is the Spanner table that holds searchable listings
const Table = "ListingIndex"

// Schema creates Table
const Schema = `CREATE TABLE ListingIndex (
	EntityKey   STRING(64) NOT NULL,
	Kind        STRING(16) NOT NULL,
	City        STRING(128),
	DisplayName STRING(MAX),
	Document    JSON,
	UpdatedAt   TIMESTAMP NOT NULL OPTIONS (allow_commit_timestamp=true),
) PRIMARY KEY (EntityKey)`

var columns = []string{"EntityKey", "Kind", "City", "DisplayName", "Document", "UpdatedAt"}

// ErrNotIndexed is returned by Get for a key with no row
var ErrNotIndexed = errors.New("listing is not indexed")

// Config holds Spanner configuration
type Config struct {
	ProjectID  string `yaml:"project_id"`
	InstanceID string `yaml:"instance_id"`
	DatabaseID string `yaml:"database_id"`
	Enabled    bool   `yaml:"enabled"`
}

// Database returns the fully qualified database name
func (c Config) Database() string {
	return fmt.Sprintf("projects/%s/instances/%s/databases/%s", c.ProjectID, c.InstanceID, c.DatabaseID)
}

// Index implements workflow.SearchIndex on Cloud Spanner
type Index struct {
	client       *spanner.Client
	logger       *logger.Logger
	writeLatency *prometheus.HistogramVec
	readLatency  *prometheus.HistogramVec
	errorCount   *prometheus.CounterVec
}

// NewIndex connects to Spanner. It returns nil, nil when the index is disabled.
// A nil reg uses the default registerer.
func NewIndex(ctx context.Context, config Config, reg prometheus.Registerer, l *logger.Logger, opts ...option.ClientOption) (*Index, error) {
	if l == nil {
		l = logger.Nop()
	}
	if !config.Enabled {
		l.Info("Spanner search index is disabled")
		return nil, nil
	}

	if config.ProjectID == "" || config.InstanceID == "" || config.DatabaseID == "" {
		return nil, fmt.Errorf("incomplete Spanner configuration: project_id, instance_id, and database_id are required")
	}

	client, err := spanner.NewClient(ctx, config.Database(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Spanner client: %w", err)
	}

	l.Info("Connected to Spanner database", "database", config.Database())
	return newIndex(client, reg, l), nil
}

func newIndex(client *spanner.Client, reg prometheus.Registerer, l *logger.Logger) *Index {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if l == nil {
		l = logger.Nop()
	}
	factory := promauto.With(reg)

	return &Index{
		client: client,
		logger: l.With("component", "spanner-index"),
		writeLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "estateflow_spanner_write_latency_seconds",
				Help:    "Spanner write latency distribution in seconds",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 10), // 1ms to ~1s
			},
			[]string{"operation"},
		),
		readLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "estateflow_spanner_read_latency_seconds",
				Help:    "Spanner read latency distribution in seconds",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 10),
			},
			[]string{"operation"},
		),
		errorCount: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "estateflow_spanner_errors_total",
				Help: "Total number of Spanner errors",
			},
			[]string{"operation", "error_type"},
		),
	}
}

// Publish writes or replaces the listing's row
func (x *Index) Publish(ctx context.Context, entityKey string, data map[string]interface{}) error {
	start := time.Now()
	defer func() {
		x.writeLatency.WithLabelValues("publish").Observe(time.Since(start).Seconds())
	}()

	m := spanner.InsertOrUpdate(Table, columns, listingRow(entityKey, data))
	if _, err := x.client.Apply(ctx, []*spanner.Mutation{m}); err != nil {
		x.errorCount.WithLabelValues("publish", grpcCodeToString(err)).Inc()
		return fmt.Errorf("failed to index %s: %w", entityKey, err)
	}
	x.logger.Debug("Listing indexed", "entity_key", entityKey)
	return nil
}

// Remove deletes the listing's row. Removing an absent key is not an error.
func (x *Index) Remove(ctx context.Context, entityKey string) error {
	start := time.Now()
	defer func() {
		x.writeLatency.WithLabelValues("remove").Observe(time.Since(start).Seconds())
	}()

	m := spanner.Delete(Table, spanner.Key{entityKey})
	if _, err := x.client.Apply(ctx, []*spanner.Mutation{m}); err != nil {
		x.errorCount.WithLabelValues("remove", grpcCodeToString(err)).Inc()
		return fmt.Errorf("failed to remove %s: %w", entityKey, err)
	}
	return nil
}

// Get reads back an indexed document
func (x *Index) Get(ctx context.Context, entityKey string) (map[string]interface{}, error) {
	start := time.Now()
	defer func() {
		x.readLatency.WithLabelValues("get").Observe(time.Since(start).Seconds())
	}()

	row, err := x.client.Single().ReadRow(ctx, Table, spanner.Key{entityKey}, []string{"Document"})
	if err != nil {
		if spanner.ErrCode(err) == codes.NotFound {
			return nil, ErrNotIndexed
		}
		x.errorCount.WithLabelValues("get", grpcCodeToString(err)).Inc()
		return nil, fmt.Errorf("failed to read %s: %w", entityKey, err)
	}

	var doc spanner.NullJSON
	if err := row.Columns(&doc); err != nil {
		x.errorCount.WithLabelValues("get", "parse_error").Inc()
		return nil, fmt.Errorf("failed to parse %s: %w", entityKey, err)
	}
	if !doc.Valid {
		return map[string]interface{}{}, nil
	}
	out, ok := doc.Value.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("document of %s is %T, not an object", entityKey, doc.Value)
	}
	return out, nil
}

// KeysByCity lists the entity keys indexed for a city
func (x *Index) KeysByCity(ctx context.Context, city string) ([]string, error) {
	start := time.Now()
	defer func() {
		x.readLatency.WithLabelValues("keys_by_city").Observe(time.Since(start).Seconds())
	}()

	stmt := spanner.Statement{
		SQL:    `SELECT EntityKey FROM ListingIndex WHERE City = @city ORDER BY EntityKey`,
		Params: map[string]interface{}{"city": city},
	}
	iter := x.client.Single().Query(ctx, stmt)
	defer iter.Stop()

	var keys []string
	for {
		row, err := iter.Next()
		if err == iterator.Done {
			return keys, nil
		}
		if err != nil {
			x.errorCount.WithLabelValues("keys_by_city", grpcCodeToString(err)).Inc()
			return nil, fmt.Errorf("failed to query city %s: %w", city, err)
		}
		var key string
		if err := row.Columns(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
}

// Close releases the Spanner client
func (x *Index) Close() error {
	if x == nil || x.client == nil {
		return nil
	}
	x.client.Close()
	return nil
}

// listingRow maps a search document onto the columns of Table
func listingRow(entityKey string, data map[string]interface{}) []interface{} {
	return []interface{}{
		entityKey,
		stringField(data, "kind"),
		nullString(stringField(data, "city")),
		nullString(stringField(data, "displayName")),
		spanner.NullJSON{Value: data, Valid: data != nil},
		spanner.CommitTimestamp,
	}
}

func stringField(data map[string]interface{}, key string) string {
	if s, ok := data[key].(string); ok {
		return s
	}
	return ""
}

func nullString(s string) spanner.NullString {
	return spanner.NullString{StringVal: s, Valid: s != ""}
}

// Helper function to convert gRPC error code to string
func grpcCodeToString(err error) string {
	return spanner.ErrCode(err).String()
}
