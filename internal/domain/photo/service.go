package photo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/blobstore"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/imaging"
	"github.com/clinic/clinic/internal/platform/telemetry"
)

// Patients is the part of the patient store photos depend on.
type Patients interface {
	PatientName(ctx context.Context, ownerID, patientID uuid.UUID) (string, error)
	AddPhoto(ctx context.Context, ownerID, patientID uuid.UUID, photoID string) error
	RemovePhoto(ctx context.Context, ownerID, patientID uuid.UUID, photoID string) error
}

type OperationRecorder interface {
	RecordOperation(operation, outcome string)
}

// TxRunner runs fn in a database transaction that repositories called with
// the derived context join.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ChangeNotifier is told about uploaded and deleted photos.
type ChangeNotifier interface {
	Notify(ownerID uuid.UUID, resource, action, id string, data any)
}

type Limits struct {
	MaxFiles    int
	MaxFileSize int64
}

type Service struct {
	photos   PhotoRepository
	blobs    blobstore.BlobStore
	patients Patients
	limits   Limits
	notifier ChangeNotifier
	tx       TxRunner
	imaging  imaging.Options
	metrics  OperationRecorder
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(photos PhotoRepository, blobs blobstore.BlobStore, patients Patients, limits Limits, opts imaging.Options, logger zerolog.Logger) *Service {
	if limits.MaxFiles <= 0 {
		limits.MaxFiles = 10
	}
	if limits.MaxFileSize <= 0 {
		limits.MaxFileSize = 10 << 20
	}
	return &Service{
		photos:   photos,
		blobs:    blobs,
		patients: patients,
		limits:   limits,
		imaging:  opts,
		logger:   logger.With().Str("component", "photo").Logger(),
		now:      time.Now,
	}
}

func (s *Service) SetMetrics(m OperationRecorder) { s.metrics = m }

func (s *Service) SetNotifier(n ChangeNotifier) { s.notifier = n }

// SetTransactor makes the metadata row and the patient photo reference of
// each file commit together.
func (s *Service) SetTransactor(tx TxRunner) { s.tx = tx }

func (s *Service) inTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.tx == nil {
		return fn(ctx)
	}
	return s.tx.InTx(ctx, fn)
}

func (s *Service) Limits() Limits { return s.limits }

func (s *Service) record(operation, outcome string) {
	if s.metrics != nil {
		s.metrics.RecordOperation(operation, outcome)
	}
}

func (s *Service) checkFiles(files []File) error {
	if len(files) == 0 {
		return apperr.Validation("at least one photo is required")
	}
	if len(files) > s.limits.MaxFiles {
		return apperr.Validation("at most %d photos can be uploaded at once", s.limits.MaxFiles)
	}
	for _, f := range files {
		if !isImageMIME(f.ContentType) {
			return apperr.Validation("%s is not an image", displayName(f.Name))
		}
		if int64(len(f.Data)) > s.limits.MaxFileSize {
			return apperr.Validation("%s exceeds the maximum size of %d bytes", displayName(f.Name), s.limits.MaxFileSize)
		}
		if len(f.Data) == 0 {
			return apperr.Validation("%s is empty", displayName(f.Name))
		}
	}
	return nil
}

func displayName(name string) string {
	if name == "" {
		return "file"
	}
	return name
}

// Upload stores every file for the patient. Files are resized in parallel,
// then each is written as blob, metadata row and patient reference. If any
// write fails, everything this call wrote is removed again.
func (s *Service) Upload(ctx context.Context, ownerID uuid.UUID, req UploadRequest) ([]*Photo, error) {
	typ, err := ParseType(req.Type)
	if err != nil {
		return nil, err
	}
	if req.PatientID == uuid.Nil {
		return nil, apperr.Validation("patientId is required")
	}
	if err := s.checkFiles(req.Files); err != nil {
		return nil, err
	}
	if _, err := s.patients.PatientName(ctx, ownerID, req.PatientID); err != nil {
		return nil, err
	}

	inputs := make([][]byte, len(req.Files))
	for i, f := range req.Files {
		inputs[i] = f.Data
	}
	processed, err := imaging.ProcessAll(ctx, inputs, s.imaging)
	if err != nil {
		var fe *imaging.FileError
		if errors.As(err, &fe) {
			name := displayName(req.Files[fe.Index].Name)
			if errors.Is(fe.Err, imaging.ErrTooManyPixels) {
				return nil, apperr.Validation("%s has too many pixels", name)
			}
			return nil, apperr.Validation("%s is not a supported image", name)
		}
		return nil, err
	}

	treatments := req.Treatments
	if treatments == nil {
		treatments = []string{}
	}

	var written []*Photo
	for i, res := range processed {
		p, err := s.store(ctx, ownerID, req, i, res, typ, treatments)
		if p != nil {
			written = append(written, p)
		}
		if err != nil {
			s.compensate(ownerID, written)
			return nil, err
		}
	}
	s.record("photo_upload", telemetry.OutcomeSuccess)
	if s.notifier != nil {
		db.AfterCommit(ctx, func() {
			for _, p := range written {
				s.notifier.Notify(ownerID, "photo", "created", p.ID.String(), p)
			}
		})
	}
	return written, nil
}

// store writes one processed file. A non-nil photo is returned whenever
// something was written, so the caller can undo it.
func (s *Service) store(ctx context.Context, ownerID uuid.UUID, req UploadRequest, i int, res *imaging.Result, typ Type, treatments []string) (*Photo, error) {
	id := uuid.New()
	now := s.now().UTC().Truncate(time.Microsecond)
	p := &Photo{
		ID:           id,
		UploadedBy:   ownerID,
		PatientID:    req.PatientID,
		FileName:     id.String() + ".jpg",
		OriginalName: displayName(req.Files[i].Name),
		MimeType:     res.ContentType,
		Size:         int64(len(res.Data)),
		Treatments:   treatments,
		Type:         typ,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	meta, err := s.blobs.Upload(ctx, blobstore.BlobMetadata{
		FileName:    p.FileName,
		ContentType: res.ContentType,
		CreatedBy:   ownerID.String(),
	}, bytes.NewReader(res.Data))
	if err != nil {
		return nil, apperr.Storage("upload blob", err)
	}
	p.BlobRef = meta.ID

	inserted := false
	err = s.inTx(ctx, func(ctx context.Context) error {
		if err := s.photos.Create(ctx, p); err != nil {
			return err
		}
		inserted = true
		return s.patients.AddPhoto(ctx, ownerID, req.PatientID, p.ID.String())
	})
	if err == nil {
		return p, nil
	}
	if inserted && s.tx == nil {
		// The metadata row stays; the caller's compensation removes it.
		return p, err
	}
	// Only the blob exists at this point.
	if derr := s.blobs.Delete(context.WithoutCancel(ctx), p.BlobRef); derr != nil && !errors.Is(derr, blobstore.ErrBlobNotFound) {
		s.logger.Error().Err(derr).Str("blob_ref", p.BlobRef).Msg("orphaned blob after failed insert")
	}
	return nil, err
}

// compensate removes photos written by a failed upload. It runs detached
// from the request context so a cancelled request still cleans up.
func (s *Service) compensate(ownerID uuid.UUID, written []*Photo) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	outcome := telemetry.OutcomeCompensated
	for i := len(written) - 1; i >= 0; i-- {
		if err := s.remove(ctx, ownerID, written[i]); err != nil {
			outcome = telemetry.OutcomeFailure
			s.logger.Error().Err(err).
				Str("photo_id", written[i].ID.String()).
				Str("patient_id", written[i].PatientID.String()).
				Msg("upload compensation failed")
		}
	}
	s.record("photo_upload", outcome)
}

// remove deletes blob, metadata and patient reference, tolerating any of
// them already being gone.
func (s *Service) remove(ctx context.Context, ownerID uuid.UUID, p *Photo) error {
	if err := s.blobs.Delete(ctx, p.BlobRef); err != nil && !errors.Is(err, blobstore.ErrBlobNotFound) {
		return apperr.Storage("delete blob", err)
	}
	if err := s.photos.Delete(ctx, ownerID, p.ID); err != nil && !apperr.Is(err, apperr.KindNotFound) {
		return err
	}
	if err := s.patients.RemovePhoto(ctx, ownerID, p.PatientID, p.ID.String()); err != nil && !apperr.Is(err, apperr.KindNotFound) {
		return err
	}
	return nil
}

func (s *Service) Metadata(ctx context.Context, ownerID, id uuid.UUID) (*Photo, error) {
	return s.photos.GetByID(ctx, ownerID, id)
}

// Get returns the photo bytes. A metadata row whose blob is gone is
// reported as not found.
func (s *Service) Get(ctx context.Context, ownerID, id uuid.UUID) (*Content, error) {
	p, err := s.photos.GetByID(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	rc, meta, err := s.blobs.Download(ctx, p.BlobRef)
	if errors.Is(err, blobstore.ErrBlobNotFound) {
		return nil, apperr.NotFound("photo")
	}
	if err != nil {
		return nil, apperr.Storage("download blob", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, apperr.Storage("read blob", err)
	}
	return &Content{Photo: p, Data: data, Hash: meta.Hash}, nil
}

func (s *Service) ListByPatient(ctx context.Context, ownerID, patientID uuid.UUID) ([]*Photo, error) {
	if _, err := s.patients.PatientName(ctx, ownerID, patientID); err != nil {
		return nil, err
	}
	return s.photos.ListByPatient(ctx, ownerID, patientID)
}

func (s *Service) Delete(ctx context.Context, ownerID, id uuid.UUID) error {
	p, err := s.photos.GetByID(ctx, ownerID, id)
	if err != nil {
		return err
	}
	if err := s.remove(ctx, ownerID, p); err != nil {
		return err
	}
	if s.notifier != nil {
		db.AfterCommit(ctx, func() {
			s.notifier.Notify(ownerID, "photo", "deleted", id.String(), map[string]string{"patientId": p.PatientID.String()})
		})
	}
	return nil
}

// DeleteByPatient removes all photos of a patient. Photos already gone are
// skipped, so a retry after a partial failure succeeds.
func (s *Service) DeleteByPatient(ctx context.Context, ownerID, patientID uuid.UUID) (int, error) {
	photos, err := s.photos.ListByPatient(ctx, ownerID, patientID)
	if err != nil {
		return 0, err
	}
	for i, p := range photos {
		if err := s.remove(ctx, ownerID, p); err != nil {
			return i, fmt.Errorf("delete photo %s: %w", p.ID, err)
		}
	}
	return len(photos), nil
}

func (s *Service) Count(ctx context.Context, ownerID uuid.UUID) (int, error) {
	return s.photos.Count(ctx, ownerID)
}
