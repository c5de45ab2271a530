// Package gate protects sensitive Study metadata fields as they cross the
// staging store boundary. Wrap a studies.Repository and every metadata write
// is sealed with the session FieldCipher; every read is opened again.
package gate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/relaypacs/internal/client/models"
	"github.com/dmitrijs2005/relaypacs/internal/client/repositories/studies"
	"github.com/dmitrijs2005/relaypacs/internal/cryptox"
	"github.com/dmitrijs2005/relaypacs/internal/logging"
)

// Field names accepted by New. They match the JSON names of StudyMetadata.
const (
	FieldClinicalHistory  = "clinical_history"
	FieldStudyDescription = "study_description"
	FieldPatientName      = "patient_name"
)

// DefaultFields is the free-text clinical subset encrypted when no list is
// configured.
var DefaultFields = []string{FieldClinicalHistory, FieldStudyDescription}

var ErrUnknownField = errors.New("unknown encrypted field")

// Cipher is the part of cryptox.FieldCipher the gate needs.
type Cipher interface {
	Encrypt(plain string) (string, error)
	Decrypt(envelope string) string
	DecryptStrict(envelope string) (string, error)
}

var accessors = map[string]func(*models.StudyMetadata) *string{
	FieldClinicalHistory:  func(m *models.StudyMetadata) *string { return &m.ClinicalHistory },
	FieldStudyDescription: func(m *models.StudyMetadata) *string { return &m.StudyDescription },
	FieldPatientName:      func(m *models.StudyMetadata) *string { return &m.PatientName },
}

type Gate struct {
	cipher Cipher
	fields []string
	log    logging.Logger
}

// New returns a Gate for the named fields; an empty list means DefaultFields.
func New(c Cipher, fields []string, log logging.Logger) (*Gate, error) {
	if len(fields) == 0 {
		fields = DefaultFields
	}
	seen := make(map[string]bool, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, ok := accessors[f]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownField, f)
		}
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	if log == nil {
		log = logging.NewNop()
	}
	return &Gate{cipher: c, fields: out, log: log}, nil
}

func (g *Gate) Fields() []string {
	return append([]string(nil), g.fields...)
}

// EncryptMetadata returns md with every configured field sealed. Any failure
// is returned; nothing partially encrypted escapes.
func (g *Gate) EncryptMetadata(md models.StudyMetadata) (models.StudyMetadata, error) {
	out := md
	for _, f := range g.fields {
		p := accessors[f](&out)
		ct, err := g.cipher.Encrypt(*p)
		if err != nil {
			return models.StudyMetadata{}, fmt.Errorf("encrypt %s: %w", f, err)
		}
		*p = ct
	}
	return out, nil
}

// DecryptMetadata opens every configured field, substituting
// cryptox.EncryptedPlaceholder for fields that cannot be opened.
func (g *Gate) DecryptMetadata(ctx context.Context, md models.StudyMetadata) models.StudyMetadata {
	out := md
	for _, f := range g.fields {
		p := accessors[f](&out)
		plain := g.cipher.Decrypt(*p)
		if plain == cryptox.EncryptedPlaceholder && *p != cryptox.EncryptedPlaceholder {
			g.log.Warn(ctx, "field could not be decrypted", "field", f)
		}
		*p = plain
	}
	return out
}

// DecryptStrict opens every configured field and fails on the first one that
// cannot be opened.
func (g *Gate) DecryptStrict(md models.StudyMetadata) (models.StudyMetadata, error) {
	out := md
	for _, f := range g.fields {
		p := accessors[f](&out)
		plain, err := g.cipher.DecryptStrict(*p)
		if err != nil {
			return models.StudyMetadata{}, fmt.Errorf("decrypt %s: %w", f, err)
		}
		*p = plain
	}
	return out, nil
}

// Wrap decorates repo so metadata is encrypted on write and decrypted on read.
func (g *Gate) Wrap(repo studies.Repository) studies.Repository {
	return &repository{Repository: repo, gate: g}
}

// Unwrap returns the undecorated repository of a wrapped one, or r itself.
func Unwrap(r studies.Repository) studies.Repository {
	if w, ok := r.(*repository); ok {
		return w.Repository
	}
	return r
}

type repository struct {
	studies.Repository
	gate *Gate
}

func (r *repository) Create(ctx context.Context, s *models.Study) (int64, error) {
	md, err := r.gate.EncryptMetadata(s.Metadata)
	if err != nil {
		return 0, err
	}
	sealed := *s
	sealed.Metadata = md
	return r.Repository.Create(ctx, &sealed)
}

// UpdateMetadata seals the configured fields of md. A field that still holds
// the decrypt placeholder was never readable by the caller, so the stored
// ciphertext is kept instead of sealing the placeholder over it.
func (r *repository) UpdateMetadata(ctx context.Context, id int64, md models.StudyMetadata) error {
	sealed, err := r.gate.EncryptMetadata(md)
	if err != nil {
		return err
	}

	var stored *models.Study
	for _, f := range r.gate.fields {
		if *accessors[f](&md) != cryptox.EncryptedPlaceholder {
			continue
		}
		if stored == nil {
			if stored, err = r.Repository.Get(ctx, id); err != nil {
				return err
			}
		}
		*accessors[f](&sealed) = *accessors[f](&stored.Metadata)
	}
	return r.Repository.UpdateMetadata(ctx, id, sealed)
}

func (r *repository) open(ctx context.Context, s *models.Study) *models.Study {
	s.Metadata = r.gate.DecryptMetadata(ctx, s.Metadata)
	return s
}

func (r *repository) openAll(ctx context.Context, list []*models.Study) []*models.Study {
	for _, s := range list {
		r.open(ctx, s)
	}
	return list
}

func (r *repository) Get(ctx context.Context, id int64) (*models.Study, error) {
	s, err := r.Repository.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return r.open(ctx, s), nil
}

func (r *repository) GetByUploadID(ctx context.Context, uploadID string) (*models.Study, error) {
	s, err := r.Repository.GetByUploadID(ctx, uploadID)
	if err != nil {
		return nil, err
	}
	return r.open(ctx, s), nil
}

func (r *repository) List(ctx context.Context, statuses ...models.StudyStatus) ([]*models.Study, error) {
	list, err := r.Repository.List(ctx, statuses...)
	if err != nil {
		return nil, err
	}
	return r.openAll(ctx, list), nil
}

func (r *repository) ListCreatedBefore(ctx context.Context, cutoff time.Time, statuses ...models.StudyStatus) ([]*models.Study, error) {
	list, err := r.Repository.ListCreatedBefore(ctx, cutoff, statuses...)
	if err != nil {
		return nil, err
	}
	return r.openAll(ctx, list), nil
}
