package domain

import "time"

// ImageStatus is the outcome of indexing one image.
type ImageStatus string

const (
	// ImageStatusIndexed: captioned, renamed and stored in the vector store.
	ImageStatusIndexed ImageStatus = "indexed"
	// ImageStatusPartial: renamed, but the vector store insert failed.
	ImageStatusPartial ImageStatus = "partial"
	// ImageStatusFailed: captioning or renaming failed; file left in place.
	ImageStatusFailed ImageStatus = "failed"
)

// ImageRecord is the catalog entry for one indexing attempt.
type ImageRecord struct {
	ID           string      `gorm:"type:text;primaryKey" json:"id"`
	SourcePath   string      `gorm:"type:text;not null;uniqueIndex:idx_images_source" json:"source_path"`
	EmbeddingID  string      `gorm:"type:text;index:idx_images_embedding" json:"embedding_id,omitempty"`
	FileName     string      `gorm:"type:text" json:"file_name,omitempty"`
	FinalPath    string      `gorm:"type:text" json:"final_path,omitempty"`
	Name         string      `gorm:"type:text" json:"name,omitempty"`
	Description  string      `gorm:"type:text" json:"description,omitempty"`
	VLMModel     string      `gorm:"type:text" json:"vlm_model,omitempty"`
	MD5Hash      string      `gorm:"type:text;index:idx_images_md5" json:"md5_hash"`
	Width        int         `json:"width"`
	Height       int         `json:"height"`
	FileSize     int64       `json:"file_size"`
	StorageKey   string      `gorm:"type:text" json:"storage_key,omitempty"`
	Status       ImageStatus `gorm:"type:text;index:idx_images_status" json:"status"`
	LastError    string      `gorm:"type:text" json:"last_error,omitempty"`
	IndexRunID   string      `gorm:"type:text;index" json:"index_run_id,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// TableName returns the database table name for ImageRecord.
func (ImageRecord) TableName() string {
	return "images"
}

// RunStatus represents the status of an indexing run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusCanceled  RunStatus = "canceled"
)

// IndexRun records one pass of the indexer over the source directory.
type IndexRun struct {
	ID          string     `gorm:"type:text;primaryKey" json:"id"`
	SourceDir   string     `gorm:"type:text;not null" json:"source_dir"`
	Status      RunStatus  `gorm:"type:text;default:running" json:"status"`
	Total       int        `gorm:"default:0" json:"total"`
	Succeeded   int        `gorm:"default:0" json:"succeeded"`
	Partial     int        `gorm:"default:0" json:"partial"`
	Failed      int        `gorm:"default:0" json:"failed"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	ErrorLog    string     `gorm:"type:text" json:"error_log,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TableName returns the database table name for IndexRun.
func (IndexRun) TableName() string {
	return "index_runs"
}
