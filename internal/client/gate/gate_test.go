package gate

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitrijs2005/relaypacs/internal/client/client"
	"github.com/dmitrijs2005/relaypacs/internal/client/models"
	"github.com/dmitrijs2005/relaypacs/internal/client/repositories/studies"
	"github.com/dmitrijs2005/relaypacs/internal/cryptox"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCipher(t *testing.T) *cryptox.FieldCipher {
	t.Helper()
	c, err := cryptox.NewFieldCipher(cryptox.NewMemoryKeyStore(), cryptox.SuiteAESGCM)
	require.NoError(t, err)
	return c
}

func setupRepo(t *testing.T) *studies.SQLiteRepository {
	t.Helper()
	db, err := client.InitDatabase(context.Background(), filepath.Join(t.TempDir(), "staging.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return studies.NewSQLiteRepository(db)
}

func sampleStudy() *models.Study {
	return &models.Study{
		Status: models.StatusQueued,
		Metadata: models.StudyMetadata{
			PatientName:      "Jane Roe",
			StudyDate:        "2025-03-14",
			Modality:         "CT",
			StudyDescription: "Chest without contrast",
			ClinicalHistory:  "Persistent cough, ex-smoker. Rule out nodule.",
		},
		TotalFiles: 1,
		TotalSize:  10,
		CreatedAt:  time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC),
	}
}

func TestWrap_EncryptsAtRestDecryptsOnRead(t *testing.T) {
	ctx := context.Background()
	raw := setupRepo(t)
	g, err := New(newCipher(t), nil, nil)
	require.NoError(t, err)
	repo := g.Wrap(raw)

	in := sampleStudy()
	id, err := repo.Create(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, "Persistent cough, ex-smoker. Rule out nodule.", in.Metadata.ClinicalHistory, "caller value is not mutated")

	stored, err := raw.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Jane Roe", stored.Metadata.PatientName)
	assert.NotEqual(t, in.Metadata.ClinicalHistory, stored.Metadata.ClinicalHistory)
	assert.NotEqual(t, in.Metadata.StudyDescription, stored.Metadata.StudyDescription)
	assert.NotContains(t, stored.Metadata.ClinicalHistory, "nodule")

	got, err := repo.Get(ctx, id)
	require.NoError(t, err)
	if diff := cmp.Diff(in.Metadata, got.Metadata); diff != "" {
		t.Errorf("metadata mismatch (-want +got):\n%s", diff)
	}

	list, err := repo.List(ctx, models.StatusQueued)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, in.Metadata.ClinicalHistory, list[0].Metadata.ClinicalHistory)
}

func TestWrap_ForeignKeyDegradesToPlaceholder(t *testing.T) {
	ctx := context.Background()
	raw := setupRepo(t)
	gA, err := New(newCipher(t), nil, nil)
	require.NoError(t, err)
	gB, err := New(newCipher(t), nil, nil)
	require.NoError(t, err)

	id, err := gA.Wrap(raw).Create(ctx, sampleStudy())
	require.NoError(t, err)

	got, err := gB.Wrap(raw).Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, cryptox.EncryptedPlaceholder, got.Metadata.ClinicalHistory)
	assert.Equal(t, "Jane Roe", got.Metadata.PatientName)

	stored, err := raw.Get(ctx, id)
	require.NoError(t, err)
	_, err = gB.DecryptStrict(stored.Metadata)
	require.Error(t, err)

	// Editing an unrelated field through the foreign gate must not seal the
	// placeholder over the real ciphertext.
	got.Metadata.PatientName = "Jane A. Roe"
	require.NoError(t, gB.Wrap(raw).UpdateMetadata(ctx, id, got.Metadata))

	back, err := gA.Wrap(raw).Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Jane A. Roe", back.Metadata.PatientName)
	assert.Equal(t, "Persistent cough, ex-smoker. Rule out nodule.", back.Metadata.ClinicalHistory)
}

type failingCipher struct{}

func (failingCipher) Encrypt(string) (string, error)         { return "", errors.New("no entropy") }
func (failingCipher) Decrypt(s string) string                { return s }
func (failingCipher) DecryptStrict(s string) (string, error) { return s, nil }

func TestWrap_EncryptFailureAbortsWrite(t *testing.T) {
	ctx := context.Background()
	raw := setupRepo(t)
	g, err := New(failingCipher{}, nil, nil)
	require.NoError(t, err)

	_, err = g.Wrap(raw).Create(ctx, sampleStudy())
	require.Error(t, err)

	list, err := raw.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestNew_Fields(t *testing.T) {
	c := newCipher(t)

	g, err := New(c, []string{FieldPatientName, FieldClinicalHistory, FieldPatientName}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{FieldPatientName, FieldClinicalHistory}, g.Fields())

	_, err = New(c, []string{"ssn"}, nil)
	require.ErrorIs(t, err, ErrUnknownField)

	sealed, err := g.EncryptMetadata(sampleStudy().Metadata)
	require.NoError(t, err)
	assert.NotEqual(t, "Jane Roe", sealed.PatientName)
	assert.Equal(t, "Chest without contrast", sealed.StudyDescription)

	opened, err := g.DecryptStrict(sealed)
	require.NoError(t, err)
	assert.Equal(t, "Jane Roe", opened.PatientName)
}

func TestUnwrap(t *testing.T) {
	raw := setupRepo(t)
	g, err := New(newCipher(t), nil, nil)
	require.NoError(t, err)
	assert.Same(t, raw, Unwrap(g.Wrap(raw)))
	assert.Same(t, raw, Unwrap(raw))
}
