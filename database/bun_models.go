package database

import (
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/uptrace/bun"
)

// BunDocument represents the documents table for Bun ORM
type BunDocument struct {
	bun.BaseModel `bun:"table:documents,alias:d"`

	ID        int       `bun:"id,pk,autoincrement"`
	ULID      string    `bun:"ulid,notnull,unique"` // Stored as string in DB
	Name      string    `bun:"name,notnull"`
	Path      string    `bun:"path,notnull,unique"`
	Hash      string    `bun:"hash,notnull"`
	Size      int64     `bun:"size,notnull,default:0"`
	Pages     int       `bun:"pages,notnull,default:0"`
	Title     string    `bun:"title,nullzero"`
	Author    string    `bun:"author,nullzero"`
	Encrypted bool      `bun:"encrypted,notnull,default:false"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// ToDocument converts BunDocument to Document
func (bd *BunDocument) ToDocument() (*Document, error) {
	parsedULID, err := ulid.Parse(bd.ULID)
	if err != nil {
		return nil, err
	}

	return &Document{
		ID:        bd.ID,
		ULID:      parsedULID,
		Name:      bd.Name,
		Path:      bd.Path,
		Hash:      bd.Hash,
		Size:      bd.Size,
		Pages:     bd.Pages,
		Title:     bd.Title,
		Author:    bd.Author,
		Encrypted: bd.Encrypted,
		CreatedAt: bd.CreatedAt,
	}, nil
}

// FromDocument converts Document to BunDocument
func FromDocument(doc *Document) *BunDocument {
	createdAt := doc.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	return &BunDocument{
		ID:        doc.ID,
		ULID:      doc.ULID.String(),
		Name:      doc.Name,
		Path:      doc.Path,
		Hash:      doc.Hash,
		Size:      doc.Size,
		Pages:     doc.Pages,
		Title:     doc.Title,
		Author:    doc.Author,
		Encrypted: doc.Encrypted,
		CreatedAt: createdAt,
		UpdatedAt: time.Now(),
	}
}

// BunJob represents the jobs table for Bun ORM
type BunJob struct {
	bun.BaseModel `bun:"table:jobs,alias:j"`

	ID          string     `bun:"id,pk"` // ULID as string
	Type        string     `bun:"type,notnull"`
	Status      string     `bun:"status,default:'pending'"`
	Session     string     `bun:"session,default:''"`
	Progress    int        `bun:"progress,default:0"`
	CurrentStep string     `bun:"current_step,default:''"`
	Message     string     `bun:"message,default:''"`
	Error       string     `bun:"error,nullzero"`
	Result      string     `bun:"result,nullzero"`
	CreatedAt   time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt   time.Time  `bun:"updated_at,notnull,default:current_timestamp"`
	StartedAt   *time.Time `bun:"started_at,nullzero"`
	CompletedAt *time.Time `bun:"completed_at,nullzero"`
}

// ToJob converts BunJob to Job
func (bj *BunJob) ToJob() (*Job, error) {
	parsedULID, err := ulid.Parse(bj.ID)
	if err != nil {
		return nil, err
	}

	return &Job{
		ID:          parsedULID,
		Type:        JobType(bj.Type),
		Status:      JobStatus(bj.Status),
		Progress:    bj.Progress,
		CurrentStep: bj.CurrentStep,
		Session:     bj.Session,
		Message:     bj.Message,
		Error:       bj.Error,
		Result:      bj.Result,
		CreatedAt:   bj.CreatedAt,
		UpdatedAt:   bj.UpdatedAt,
		StartedAt:   bj.StartedAt,
		CompletedAt: bj.CompletedAt,
	}, nil
}

// FromJob converts Job to BunJob
func FromJob(job *Job) *BunJob {
	return &BunJob{
		ID:          job.ID.String(),
		Type:        string(job.Type),
		Status:      string(job.Status),
		Progress:    job.Progress,
		CurrentStep: job.CurrentStep,
		Session:     job.Session,
		Message:     job.Message,
		Error:       job.Error,
		Result:      job.Result,
		CreatedAt:   job.CreatedAt,
		UpdatedAt:   job.UpdatedAt,
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
	}
}
