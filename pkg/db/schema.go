package db

// Schema defines the SQLite database schema for generation runs.
// It creates the runs table with indexes for history listing and the
// fingerprint lookup used by the determinism check.
const Schema = `
CREATE TABLE IF NOT EXISTS runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    mode TEXT NOT NULL CHECK(mode IN ('no_diff', 'signed_diff', 'external_manifest')),
    target_path TEXT NOT NULL,
    source_path TEXT,
    output_path TEXT NOT NULL,
    status TEXT NOT NULL CHECK(status IN ('pending', 'running', 'complete', 'failed')),
    bundle_length INTEGER,
    fragment_count INTEGER,
    padding INTEGER,
    checksum TEXT,
    input_fingerprint TEXT,
    artifact_fingerprint TEXT,
    encoder_report BLOB,
    error_message TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_input_fingerprint ON runs(input_fingerprint);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
`

// Status constants
const (
	StatusPending  = "pending"
	StatusRunning  = "running"
	StatusComplete = "complete"
	StatusFailed   = "failed"
)

// Run represents one generation run
type Run struct {
	ID                  int64
	Mode                string
	TargetPath          string
	SourcePath          string
	OutputPath          string
	Status              string
	BundleLength        int
	FragmentCount       int
	Padding             int
	Checksum            string
	InputFingerprint    string
	ArtifactFingerprint string
	// EncoderReport is the uncompressed encoder output. It is only loaded
	// by Report.
	EncoderReport string
	ErrorMessage  string
	CreatedAt     string
	UpdatedAt     string
}
