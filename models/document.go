package models

import (
	"time"

	"gorm.io/gorm"
)

// Document is one uploaded file within a run. The checksum is the document's
// identity: byte-identical content under a different filename is still the
// same document and is never reprocessed unless forced.
type Document struct {
	ID              int          `gorm:"primary_key" json:"id"`
	RunId           string       `gorm:"size:36;not null;index;index:uniq_doc_checksum,unique" json:"run_id"`
	Type            DocumentType `gorm:"type:enum('LEDGER','RECEIPT');size:10;not null;index" json:"type"`
	Filename        string       `gorm:"size:255" json:"filename"`
	Checksum        string       `gorm:"size:64;not null;index:uniq_doc_checksum,unique" json:"checksum"`
	SizeBytes       int          `gorm:"not null;default:0" json:"size_bytes"`
	PageCount       int          `gorm:"not null;default:0" json:"page_count"`
	ExtractionError string       `gorm:"type:text" json:"extraction_error"`
	ImportSeq       int          `gorm:"not null;index" json:"import_seq"`
	ImportedAt      time.Time    `gorm:"autoCreateTime" json:"imported_at"`
	ProcessedAt     *time.Time   `json:"processed_at"`
}

// FindDocumentByChecksum returns the run's document with the given checksum,
// or nil when the content has not been imported into this run yet.
func FindDocumentByChecksum(tx *gorm.DB, runId string, checksum string) (*Document, error) {
	var doc Document
	err := tx.Where("run_id = ? AND checksum = ?", runId, checksum).First(&doc).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &doc, nil
}

// ExtractionRecord is one raw field pulled from a document. Write-once,
// retained for audit and extraction debugging only.
type ExtractionRecord struct {
	ID         int       `gorm:"primary_key" json:"id"`
	DocumentId int       `gorm:"not null;index" json:"document_id"`
	FieldKey   string    `gorm:"size:64;not null;index" json:"field_key"`
	RawValue   string    `gorm:"type:text" json:"raw_value"`
	Confidence float64   `gorm:"not null;default:0" json:"confidence"`
	PageNumber int       `gorm:"not null;default:0" json:"page_number"`
	LineNumber int       `gorm:"not null;default:0" json:"line_number"`
	Context    string    `gorm:"type:text" json:"context"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}
