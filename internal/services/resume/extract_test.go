package resume

import (
	"archive/zip"
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/vettra/internal/models"
)

func TestScoreAttachment(t *testing.T) {
	tests := []struct {
		fileName string
		want     int
	}{
		{"ada_resume.pdf", 5},
		{"cv.docx", 4},
		{"curriculum_vitae.txt", 3},
		{"cover_letter.pdf", -1},
		{"transcript.docx", -2},
		{"resume_cover.pdf", 2}, // resume hint and noise hint cancel, format adds
		{"photo.jpg", 0},
	}

	for _, tt := range tests {
		t.Run(tt.fileName, func(t *testing.T) {
			assert.Equal(t, tt.want, scoreAttachment(&models.Attachment{FileName: tt.fileName}))
		})
	}
}

func TestSelectBest(t *testing.T) {
	now := time.Now()

	t.Run("empty list", func(t *testing.T) {
		assert.Nil(t, selectBest(nil))
	})

	t.Run("highest score wins", func(t *testing.T) {
		best := selectBest([]*models.Attachment{
			{AttachmentID: "a", FileName: "cover_letter.pdf", UploadedAt: now},
			{AttachmentID: "b", FileName: "resume.pdf", UploadedAt: now.Add(-time.Hour)},
		})
		require.NotNil(t, best)
		assert.Equal(t, "b", best.AttachmentID)
	})

	t.Run("pdf outranks docx", func(t *testing.T) {
		best := selectBest([]*models.Attachment{
			{AttachmentID: "word", FileName: "resume.docx", UploadedAt: now},
			{AttachmentID: "pdf", FileName: "resume.pdf", UploadedAt: now.Add(-time.Hour)},
		})
		require.NotNil(t, best)
		assert.Equal(t, "pdf", best.AttachmentID)
	})

	t.Run("larger file wins ties", func(t *testing.T) {
		best := selectBest([]*models.Attachment{
			{AttachmentID: "small", FileName: "resume_v1.pdf", Size: 1000, UploadedAt: now},
			{AttachmentID: "big", FileName: "resume_v2.pdf", Size: 5000, UploadedAt: now.Add(-time.Hour)},
		})
		require.NotNil(t, best)
		assert.Equal(t, "big", best.AttachmentID)
	})

	t.Run("newest wins size ties", func(t *testing.T) {
		best := selectBest([]*models.Attachment{
			{AttachmentID: "old", FileName: "resume_v1.pdf", Size: 1000, UploadedAt: now.Add(-time.Hour)},
			{AttachmentID: "new", FileName: "resume_v2.pdf", Size: 1000, UploadedAt: now},
		})
		require.NotNil(t, best)
		assert.Equal(t, "new", best.AttachmentID)
	})
}

func TestExtractDOCX(t *testing.T) {
	doc := `<?xml version="1.0"?>
<document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <body>
    <p><r><t>Ada Lovelace</t></r></p>
    <p><r><t>Senior </t><t>Engineer</t></r></p>
    <p><r><t>   </t></r></p>
  </body>
</document>`

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(doc))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	text, err := extractDOCX(buf.Bytes())
	require.NoError(t, err)
	assert.Contains(t, text, "Ada Lovelace")
	assert.Contains(t, text, "Senior Engineer")
}

func TestExtractDOCX_NotAnArchive(t *testing.T) {
	_, err := extractDOCX([]byte("plain bytes"))
	assert.Error(t, err)
}

func TestExtractDOCX_MissingDocumentXML(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, _ := zw.Create("other.xml")
	w.Write([]byte("<x/>"))
	zw.Close()

	_, err := extractDOCX(buf.Bytes())
	assert.Error(t, err)
}

func TestSalvageText(t *testing.T) {
	// Printable runs survive, control noise and short fragments drop
	data := []byte("Experienced engineer\x00\x01ab\x02with ten years in Go\x03")
	out := salvageText(data)
	assert.Contains(t, out, "Experienced engineer")
	assert.Contains(t, out, "with ten years in Go")
	assert.NotContains(t, out, "ab ")
}

func TestNormalizeText(t *testing.T) {
	in := "Line one\r\nLine two\r\n\n\n\n\nLine   three\t\twide"
	out := normalizeText(in)

	assert.NotContains(t, out, "\r")
	assert.NotContains(t, out, "\n\n\n")
	assert.Contains(t, out, "Line three")
	assert.Contains(t, out, "wide")
}

func TestNormalizeText_PDFArtifacts(t *testing.T) {
	t.Run("zero width characters drop", func(t *testing.T) {
		out := normalizeText("Go\u200bEngineer\ufeff at\u200c Acme\u200d")
		assert.Equal(t, "Go Engineer at Acme", out)
	})

	t.Run("glued camel case splits", func(t *testing.T) {
		out := normalizeText("JohnDoe led platformMigration work")
		assert.Equal(t, "John Doe led platform Migration work", out)
	})

	t.Run("fused section headings split", func(t *testing.T) {
		out := normalizeText("PROFESSIONALSUMMARYAn engineer. TECHNICALSKILLSGo, Python")
		assert.Contains(t, out, "PROFESSIONAL SUMMARY An engineer")
		assert.Contains(t, out, "TECHNICAL SKILLS Go, Python")
	})

	t.Run("uppercase heading before word splits", func(t *testing.T) {
		out := normalizeText("EDUCATIONBachelor of Science")
		assert.Equal(t, "EDUCATION Bachelor of Science", out)
	})
}
