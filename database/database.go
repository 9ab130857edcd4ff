package database

import (
	"crypto/md5"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Document is a stored PDF and the metadata read when it was uploaded
type Document struct {
	ID        int
	ULID      ulid.ULID // short id used in URLs
	Name      string    // original file name
	Path      string    // full path to the stored file
	Hash      string
	Size      int64
	Pages     int // zero for encrypted documents
	Title     string
	Author    string
	Encrypted bool
	CreatedAt time.Time
}

// Logger is global since we will need it everywhere
var Logger *slog.Logger

// ErrDuplicateDocument is returned when the same bytes are uploaded twice
var ErrDuplicateDocument = errors.New("duplicate document")

// Repository defines database operations
type Repository interface {
	Close() error
	SaveDocument(doc *Document) error
	GetDocumentByULID(ulid string) (*Document, error)
	GetDocumentByHash(hash string) (*Document, error)
	GetNewestDocumentsWithPagination(page int, pageSize int) ([]Document, int, error)
	GetAllDocuments() ([]Document, error)
	DeleteDocument(ulid string) error
	// Job tracking methods
	CreateJob(jobType JobType, session string, message string) (*Job, error)
	UpdateJobProgress(jobID ulid.ULID, progress int, currentStep string) error
	UpdateJobStatus(jobID ulid.ULID, status JobStatus, message string) error
	UpdateJobError(jobID ulid.ULID, errorMsg string) error
	CompleteJob(jobID ulid.ULID, result string) error
	GetJob(jobID ulid.ULID) (*Job, error)
	ListJobs(filter JobFilter) ([]Job, error)
	DeleteOldJobs(olderThan time.Duration) (int, error)
}

// DocumentMeta is what the upload handler learned about the file
type DocumentMeta struct {
	Pages     int
	Title     string
	Author    string
	Encrypted bool
}

// AddNewDocument writes data under documentPath and records it. The file is
// named by its ULID so uploads with the same name do not collide.
func AddNewDocument(name string, data []byte, meta DocumentMeta, documentPath string, db Repository) (*Document, error) {
	fileHash := calculateHash(data)
	if checkDuplicateDocument(fileHash, name, db) {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateDocument, name)
	}
	newTime := time.Now()
	newULID, err := CalculateUUID(newTime)
	if err != nil {
		Logger.Error("Cannot generate ULID", "name", name, "error", err)
		return nil, err
	}
	if err := os.MkdirAll(documentPath, os.ModePerm); err != nil {
		return nil, err
	}
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		ext = ".pdf"
	}
	path := filepath.Join(documentPath, newULID.String()+ext)
	if err := os.WriteFile(path, data, 0644); err != nil {
		Logger.Error("Unable to write document", "path", path, "error", err)
		return nil, err
	}

	doc := &Document{
		ULID:      newULID,
		Name:      filepath.Base(name),
		Path:      path,
		Hash:      fileHash,
		Size:      int64(len(data)),
		Pages:     meta.Pages,
		Title:     meta.Title,
		Author:    meta.Author,
		Encrypted: meta.Encrypted,
		CreatedAt: newTime,
	}
	if err := db.SaveDocument(doc); err != nil {
		Logger.Error("Unable to save document record", "name", name, "error", err)
		os.Remove(path)
		return nil, err
	}
	Logger.Info("Added new document", "name", doc.Name, "ulid", doc.ULID.String(), "pages", doc.Pages)
	return doc, nil
}

// FetchDocument returns the document with the given ULID
func FetchDocument(docULIDSt string, db Repository) (*Document, error) {
	if _, err := ulid.Parse(docULIDSt); err != nil {
		return nil, fmt.Errorf("invalid document id %q: %w", docULIDSt, err)
	}
	doc, err := db.GetDocumentByULID(docULIDSt)
	if err != nil {
		Logger.Debug("Unable to fetch document", "ulid", docULIDSt, "error", err)
		return nil, err
	}
	return doc, nil
}

// DeleteDocument removes the record and then the stored file
func DeleteDocument(docULIDSt string, db Repository) error {
	doc, err := FetchDocument(docULIDSt, db)
	if err != nil {
		return err
	}
	if err := db.DeleteDocument(docULIDSt); err != nil {
		Logger.Error("Unable to delete requested document", "error", err)
		return err
	}
	if err := os.Remove(doc.Path); err != nil && !os.IsNotExist(err) {
		Logger.Warn("Unable to remove document file", "path", doc.Path, "error", err)
	}
	return nil
}

func checkDuplicateDocument(fileHash string, fileName string, db Repository) bool {
	document, err := db.GetDocumentByHash(fileHash)
	if err != nil || document == nil {
		return false
	}
	Logger.Info("Duplicate document found on upload (Hash collision)", "fileName", fileName, "existingDocument", document.Name)
	return true
}

func calculateHash(data []byte) string {
	return fmt.Sprintf("%x", md5.Sum(data))
}

// CalculateUUID returns a new ULID for the given time
func CalculateUUID(time time.Time) (ulid.ULID, error) {
	entropy := ulid.Monotonic(rand.New(rand.NewSource(time.UnixNano())), 0)
	newULID, err := ulid.New(ulid.Timestamp(time), entropy)
	if err != nil {
		return newULID, err
	}
	return newULID, nil
}
