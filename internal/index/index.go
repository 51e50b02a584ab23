package index

// ChartIndex defines the chart index and conversion history operations.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with mocks.
type ChartIndex interface {
	UpsertChart(c ChartRow) error
	DeleteChart(path string) error
	GetChecksum(path string) (string, error)
	GetChart(path string) (*ChartRow, error)
	ListCharts(limit, offset, keys int, sort string) ([]ChartRow, int, error)
	Search(query string, limit int) ([]SearchResult, error)
	AllPaths() (map[string]struct{}, error)
	AllChecksums() (map[string]string, error)
	RecordConversion(c ConversionRow) error
	ListConversions(source string, limit int) ([]ConversionRow, error)
	Close() error
}

// Verify *DB satisfies ChartIndex at compile time.
var _ ChartIndex = (*DB)(nil)
