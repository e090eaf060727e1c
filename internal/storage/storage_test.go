package storage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		file    File
		wantErr error
	}{
		{
			name: "pdf within limit",
			file: File{Name: "salaire.pdf", ContentType: "application/pdf", Size: 2 << 20},
		},
		{
			name:    "11 MB pdf",
			file:    File{Name: "gros.pdf", ContentType: "application/pdf", Size: 11 << 20},
			wantErr: ErrFileTooLarge,
		},
		{
			name:    "executable",
			file:    File{Name: "setup.exe", ContentType: "application/x-msdownload", Size: 1024},
			wantErr: ErrUnsupportedType,
		},
		{
			name:    "empty",
			file:    File{Name: "vide.pdf", ContentType: "application/pdf"},
			wantErr: ErrEmptyFile,
		},
		{
			name: "docx with parameters",
			file: File{Name: "lettre.docx", ContentType: "application/vnd.openxmlformats-officedocument.wordprocessingml.document; charset=binary", Size: 10},
		},
		{
			name: "exact limit",
			file: File{Name: "limite.png", ContentType: "image/png", Size: MaxFileSize},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.file)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "Muller", Sanitize("Müller"))
	assert.Equal(t, "Jean-Pierre", Sanitize("Jean Pierre"))
	assert.Equal(t, "Zoe-Nunez", Sanitize("  Zoë  Núñez  "))
	assert.Equal(t, "OBrien", Sanitize("O'Brien"))
	assert.Equal(t, "Francois-Xavier", Sanitize("François-Xavier"))
	assert.Empty(t, Sanitize("!!!"))
}

func TestFolderPath(t *testing.T) {
	at := time.Date(2025, 3, 1, 23, 0, 0, 0, time.UTC)

	assert.Equal(t, "nf-clients/NF-ABCD2345_2025-03-01_Muller-Zoe", FolderPath("NF-ABCD2345", "Zoë", "Müller", at))
	assert.Equal(t, "nf-clients/NF-ABCD2345_2025-03-01_client", FolderPath("NF-ABCD2345", "", "", at))
}

func TestSimulatedHost(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	h := NewSimulatedHost(zaptest.NewLogger(t)).WithClock(func() time.Time { return now })

	assert.False(t, h.Live())

	doc, err := h.Upload(context.Background(), "nf-clients/NF-ABCD2345_2025-03-01_Muller-Zoe", File{
		Name:        "certificat de salaire.pdf",
		ContentType: "application/pdf",
		Size:        1024,
		Content:     strings.NewReader("%PDF-1.4"),
	})
	require.NoError(t, err)

	assert.True(t, doc.Simulated)
	assert.Empty(t, doc.URL)
	assert.Equal(t, now, doc.UploadedAt)
	assert.True(t, strings.HasPrefix(doc.PublicID, "nf-clients/NF-ABCD2345_2025-03-01_Muller-Zoe/certificat-de-salaire_"))
}

func TestCloudinaryHostUpload(t *testing.T) {
	var gotPath, gotFolder string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := r.ParseMultipartForm(1 << 20); err == nil {
			gotFolder = r.FormValue("folder")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"public_id":"nf-clients/NF-ABCD2345_2025-03-01_Muller-Zoe/salaire_1234abcd","secure_url":"https://res.cloudinary.com/demo/image/upload/salaire.pdf"}`))
	}))
	defer srv.Close()

	h, err := NewCloudinaryHost("demo", "key", "secret", zaptest.NewLogger(t))
	require.NoError(t, err)
	h.cld.Config.API.UploadPrefix = srv.URL

	doc, err := h.Upload(context.Background(), "nf-clients/NF-ABCD2345_2025-03-01_Muller-Zoe", File{
		Name:        "salaire.pdf",
		ContentType: "application/pdf",
		Size:        8,
		Content:     strings.NewReader("%PDF-1.4"),
	})
	require.NoError(t, err)

	assert.True(t, h.Live())
	assert.True(t, strings.HasSuffix(gotPath, "/demo/auto/upload"), "unexpected upload path %q", gotPath)
	assert.Equal(t, "nf-clients/NF-ABCD2345_2025-03-01_Muller-Zoe", gotFolder)
	assert.Equal(t, "https://res.cloudinary.com/demo/image/upload/salaire.pdf", doc.URL)
	assert.False(t, doc.Simulated)
}
