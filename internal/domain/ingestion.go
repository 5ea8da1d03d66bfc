package domain

// SourceObject is one raw file discovered under a source URI.
type SourceObject struct {
	Key  string
	Size int64
}

// IngestRequest asks the write delegate to load raw files into a bronze
// table on a branch.
type IngestRequest struct {
	SourceURI string // e.g. s3://bucket/telemetry/raw/
	Pattern   string // glob matched against object base names
	Namespace string
	Table     string
	Branch    string
}

// IngestStats reports a completed ingest.
type IngestStats struct {
	Table           string
	Branch          string
	Source          string
	FilesDiscovered int // 0 when no preflight inventory ran
	RowsIngested    int64
}

// TransformRequest asks the write delegate to build the silver table from
// the bronze table on a branch.
type TransformRequest struct {
	Namespace   string
	SourceTable string
	TargetTable string
	Branch      string
}

// TransformStats reports a completed transformation.
type TransformStats struct {
	SourceTable     string
	TargetTable     string
	Branch          string
	JobID           string
	RowsTransformed int64
}
