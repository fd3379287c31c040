package resume

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/ternarybob/vettra/internal/models"
)

// extractText dispatches on file extension and falls back to a plain-text
// salvage pass for unknown formats.
func (s *Service) extractText(data []byte, fileName string) (string, error) {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".pdf":
		return s.extractPDF(data)
	case ".docx":
		return extractDOCX(data)
	case ".txt", ".text", ".md":
		return string(data), nil
	case ".doc", ".rtf":
		return salvageText(data), nil
	default:
		return salvageText(data), nil
	}
}

// extractPDF extracts page content via pdfcpu. The library writes extraction
// output to disk, so work happens in a per-call temp directory.
func (s *Service) extractPDF(data []byte) (string, error) {
	workDir, err := os.MkdirTemp(s.tempDir, "pdf-*")
	if err != nil {
		return "", fmt.Errorf("failed to create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	pdfPath := filepath.Join(workDir, "resume.pdf")
	if err := os.WriteFile(pdfPath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write temp PDF: %w", err)
	}

	pdfCtx, err := api.ReadContextFile(pdfPath)
	if err != nil {
		return "", &models.DataError{Op: "resume.pdf", Err: err}
	}
	pageCount := pdfCtx.PageCount

	outDir := filepath.Join(workDir, "pages")
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create pages dir: %w", err)
	}

	conf := model.NewDefaultConfiguration()
	if err := api.ExtractContentFile(pdfPath, outDir, nil, conf); err != nil {
		return "", &models.DataError{Op: "resume.pdf", Err: err}
	}

	pageTexts := make(map[int]string)
	files, _ := os.ReadDir(outDir)
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		content, err := os.ReadFile(filepath.Join(outDir, file.Name()))
		if err != nil {
			continue
		}
		var pageNum int
		if _, err := fmt.Sscanf(file.Name(), "page_%d", &pageNum); err == nil {
			pageTexts[pageNum] = string(content)
		} else if _, err := fmt.Sscanf(file.Name(), "Content_page_%d", &pageNum); err == nil {
			pageTexts[pageNum] = string(content)
		}
	}

	var builder strings.Builder
	for pageNum := 1; pageNum <= pageCount; pageNum++ {
		if text := pageTexts[pageNum]; text != "" {
			if builder.Len() > 0 {
				builder.WriteString("\n\n")
			}
			builder.WriteString(salvageText([]byte(text)))
		}
	}

	if builder.Len() == 0 {
		return "", &models.DataError{Op: "resume.pdf", Err: fmt.Errorf("no text extracted from %d pages", pageCount)}
	}
	return builder.String(), nil
}

// docx body XML elements we care about
type docxBody struct {
	Paragraphs []docxParagraph `xml:"body>p"`
}

type docxParagraph struct {
	Runs []docxRun `xml:"r"`
}

type docxRun struct {
	Text []string `xml:"t"`
}

// extractDOCX reads word/document.xml out of the DOCX container
func extractDOCX(data []byte) (string, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", &models.DataError{Op: "resume.docx", Err: err}
	}

	var docXML []byte
	for _, f := range reader.File {
		if f.Name == "word/document.xml" {
			rc, err := f.Open()
			if err != nil {
				return "", &models.DataError{Op: "resume.docx", Err: err}
			}
			docXML, err = io.ReadAll(rc)
			rc.Close()
			if err != nil {
				return "", &models.DataError{Op: "resume.docx", Err: err}
			}
			break
		}
	}
	if docXML == nil {
		return "", &models.DataError{Op: "resume.docx", Err: fmt.Errorf("word/document.xml not found")}
	}

	var body docxBody
	if err := xml.Unmarshal(docXML, &body); err != nil {
		return "", &models.DataError{Op: "resume.docx", Err: err}
	}

	var builder strings.Builder
	for _, p := range body.Paragraphs {
		line := ""
		for _, r := range p.Runs {
			line += strings.Join(r.Text, "")
		}
		if strings.TrimSpace(line) != "" {
			builder.WriteString(line)
			builder.WriteString("\n")
		}
	}

	if builder.Len() == 0 {
		return "", &models.DataError{Op: "resume.docx", Err: fmt.Errorf("document body is empty")}
	}
	return builder.String(), nil
}

// salvageText strips control bytes and keeps printable runs. Good enough for
// legacy .doc files and unknown formats where full parsing is not worth it.
func salvageText(data []byte) string {
	var builder strings.Builder
	run := 0
	var pending []rune

	for _, r := range string(data) {
		if unicode.IsPrint(r) || r == '\n' || r == '\t' {
			pending = append(pending, r)
			run++
		} else {
			// Keep only runs long enough to be prose, not format noise
			if run >= 4 {
				builder.WriteString(string(pending))
				builder.WriteString(" ")
			}
			pending = pending[:0]
			run = 0
		}
	}
	if run >= 4 {
		builder.WriteString(string(pending))
	}
	return builder.String()
}

var (
	multiSpace = regexp.MustCompile(`[ ]{2,}`)
	multiLine  = regexp.MustCompile(`\n{3,}`)
	// camelSplit re-opens word boundaries PDF extraction glued shut
	camelSplit = regexp.MustCompile(`([a-z])([A-Z])`)
	// acronymSplit separates an uppercase heading from the word fused onto it
	acronymSplit = regexp.MustCompile(`([A-Z]{2,})([A-Z][a-z])`)
	// zeroWidth drops invisible characters that inflate token counts
	zeroWidth = strings.NewReplacer("\u200b", "", "\u200c", "", "\u200d", "", "\ufeff", "")
)

// mergedHeadings are section titles PDF extraction commonly fuses into one
// token. Fixed here because the regex passes cannot split uppercase pairs.
var mergedHeadings = [][2]string{
	{"PROFESSIONALSUMMARY", "PROFESSIONAL SUMMARY"},
	{"PROFESSIONALEXPERIENCE", "PROFESSIONAL EXPERIENCE"},
	{"WORKEXPERIENCE", "WORK EXPERIENCE"},
	{"WORKHISTORY", "WORK HISTORY"},
	{"TECHNICALSKILLS", "TECHNICAL SKILLS"},
	{"CORECOMPETENCIES", "CORE COMPETENCIES"},
}

// normalizeText collapses extraction artifacts so downstream token budgets
// are spent on content.
func normalizeText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = zeroWidth.Replace(text)
	text = strings.ReplaceAll(text, "\t", " ")

	for _, h := range mergedHeadings {
		text = strings.ReplaceAll(text, h[0], h[1])
	}
	text = acronymSplit.ReplaceAllString(text, "$1 $2")
	text = camelSplit.ReplaceAllString(text, "$1 $2")

	text = multiSpace.ReplaceAllString(text, " ")
	text = multiLine.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
