package processing

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"image"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/go-fitz"
	"github.com/jhillyerd/enmime"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rwcarlsen/goexif/exif"
	"github.com/unidoc/unioffice/common"
	"github.com/unidoc/unioffice/document"
	"github.com/unidoc/unioffice/presentation"
	"github.com/unidoc/unioffice/spreadsheet"
	"golang.org/x/net/html"

	"github.com/docboxhq/docbox/internal/docbox/model"
)

// defaultSmallThumbnailPx / defaultLargeThumbnailPx / defaultTextChunkBytes are the defaults
// named in spec.md §4.3; internal/conf.ProcessingConfig overrides them.
const (
	defaultSmallThumbnailPx = 128
	defaultLargeThumbnailPx = 512
	defaultTextChunkBytes   = 4096
)

// PlanConfig carries the tuning knobs a Plan needs, sourced from
// conf.ProcessingConfig.
type PlanConfig struct {
	SmallThumbnailPx int
	LargeThumbnailPx int
	TextChunkBytes   int
}

// DerivedArtifact is one output of a plan: either a GeneratedFile's bytes
// (Type != "") or a page of extracted text (Page > 0).
type DerivedArtifact struct {
	Type    model.GeneratedFileType
	Mime    string
	Bytes   []byte
	Hash    string
	Page    int
	Content string
}

// ChildFile is an attachment or embedded object promoted to its own File
// row with ParentID set, per the email plan.
type ChildFile struct {
	Name  string
	Mime  string
	Bytes []byte
}

// PlanResult is everything one mime-dispatched plan produced for a file.
type PlanResult struct {
	Artifacts []DerivedArtifact
	Children  []ChildFile
}

// PDFExtractor is the external PDF processor interface named in spec.md
// §6; UseLocal in conf.RPCConfig selects LocalPDFExtractor instead.
type PDFExtractor interface {
	ExtractPages(ctx context.Context, pdfBytes []byte) (pages []string, err error)
	RasterizeFirstPage(ctx context.Context, pdfBytes []byte, maxDim int) ([]byte, error)
}

// OfficeConverter is the external office-to-PDF converter interface
// named in spec.md §6.
type OfficeConverter interface {
	ConvertToPDF(ctx context.Context, mime string, body []byte) ([]byte, error)
}

// LocalPDFExtractor implements PDFExtractor in-process using go-fitz
// (MuPDF bindings), for local/dev deployments that set PDF.UseLocal.
type LocalPDFExtractor struct{}

func (LocalPDFExtractor) ExtractPages(ctx context.Context, pdfBytes []byte) ([]string, error) {
	doc, err := fitz.NewFromMemory(pdfBytes)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer doc.Close()

	pages := make([]string, doc.NumPage())
	for i := 0; i < doc.NumPage(); i++ {
		text, err := doc.Text(i)
		if err != nil {
			return nil, fmt.Errorf("extract pdf page %d: %w", i, err)
		}
		pages[i] = text
	}
	return pages, nil
}

func (LocalPDFExtractor) RasterizeFirstPage(ctx context.Context, pdfBytes []byte, maxDim int) ([]byte, error) {
	doc, err := fitz.NewFromMemory(pdfBytes)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer doc.Close()

	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("rasterize pdf page 0: %w", err)
	}

	resized := imaging.Fit(img, maxDim, maxDim, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode raster page: %w", err)
	}
	return buf.Bytes(), nil
}

// Planner dispatches a source File's mime to the plan implementing
// spec.md §4.3's table.
type Planner struct {
	cfg      PlanConfig
	pdf      PDFExtractor
	office   OfficeConverter
}

// NewPlanner builds a Planner. pdf/office may be RPC clients or, for pdf,
// a LocalPDFExtractor when conf.RPCConfig.UseLocal is set.
func NewPlanner(cfg PlanConfig, pdf PDFExtractor, office OfficeConverter) *Planner {
	if cfg.SmallThumbnailPx == 0 {
		cfg.SmallThumbnailPx = defaultSmallThumbnailPx
	}
	if cfg.LargeThumbnailPx == 0 {
		cfg.LargeThumbnailPx = defaultLargeThumbnailPx
	}
	if cfg.TextChunkBytes == 0 {
		cfg.TextChunkBytes = defaultTextChunkBytes
	}
	return &Planner{cfg: cfg, pdf: pdf, office: office}
}

// Run dispatches on mime and returns the derived artifacts. Every
// artifact is content-addressed by its own SHA-256 so callers can
// idempotently skip inserting a GeneratedFile whose (file_id, type, hash)
// already exists (spec.md §4.3's idempotence rule).
func (p *Planner) Run(ctx context.Context, mime string, body []byte) (PlanResult, error) {
	switch {
	case strings.HasPrefix(mime, "image/"):
		return p.imagePlan(body)
	case mime == "application/pdf":
		return p.pdfPlan(ctx, body)
	case isOfficeMime(mime):
		return p.officePlan(ctx, mime, body)
	case mime == "message/rfc822":
		return p.emailPlan(body)
	case mime == "text/html":
		return p.htmlPlan(body)
	case mime == "text/plain":
		return p.plainTextPlan(body)
	default:
		return PlanResult{}, nil
	}
}

func hashOf(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func (p *Planner) imagePlan(body []byte) (PlanResult, error) {
	img, err := imaging.Decode(bytes.NewReader(body), imaging.AutoOrientation(true))
	if err != nil {
		return PlanResult{}, fmt.Errorf("decode image: %w", err)
	}

	small := imaging.Fit(img, p.cfg.SmallThumbnailPx, p.cfg.SmallThumbnailPx, imaging.Lanczos)
	large := imaging.Fit(img, p.cfg.LargeThumbnailPx, p.cfg.LargeThumbnailPx, imaging.Lanczos)

	smallBytes, err := encodePNG(small)
	if err != nil {
		return PlanResult{}, err
	}
	largeBytes, err := encodePNG(large)
	if err != nil {
		return PlanResult{}, err
	}

	artifacts := []DerivedArtifact{
		{Type: model.GeneratedSmallThumbnail, Mime: "image/png", Bytes: smallBytes, Hash: hashOf(smallBytes)},
		{Type: model.GeneratedLargeThumbnail, Mime: "image/png", Bytes: largeBytes, Hash: hashOf(largeBytes)},
	}

	if meta, err := exif.Decode(bytes.NewReader(body)); err == nil {
		if metaJSON, err := exifToJSON(meta); err == nil {
			artifacts = append(artifacts, DerivedArtifact{
				Type: model.GeneratedJsonMetadata, Mime: "application/json", Bytes: metaJSON, Hash: hashOf(metaJSON),
			})
		}
	}

	return PlanResult{Artifacts: artifacts}, nil
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// exifToJSON is intentionally minimal: it walks the well-known EXIF tags
// worth surfacing (orientation, timestamp, camera model) rather than the
// entire tag set, matching what a JsonMetadata consumer actually reads.
func exifToJSON(x *exif.Exif) ([]byte, error) {
	fields := map[string]string{}
	for _, name := range []exif.FieldName{exif.Model, exif.Make, exif.DateTime, exif.Orientation} {
		if tag, err := x.Get(name); err == nil {
			fields[string(name)] = tag.String()
		}
	}
	return marshalCompact(fields)
}

func (p *Planner) pdfPlan(ctx context.Context, body []byte) (PlanResult, error) {
	pages, err := p.pdf.ExtractPages(ctx, body)
	if err != nil {
		return PlanResult{}, fmt.Errorf("extract pdf pages: %w", err)
	}

	artifacts := []DerivedArtifact{
		{Type: model.GeneratedPdf, Mime: "application/pdf", Bytes: body, Hash: hashOf(body)},
	}
	for i, text := range pages {
		artifacts = append(artifacts, DerivedArtifact{Page: i + 1, Content: text})
	}

	if raster, err := p.pdf.RasterizeFirstPage(ctx, body, p.cfg.LargeThumbnailPx); err == nil {
		artifacts = append(artifacts, DerivedArtifact{
			Type: model.GeneratedLargeThumbnail, Mime: "image/png", Bytes: raster, Hash: hashOf(raster),
		})
		if small, err := shrinkPNG(raster, p.cfg.SmallThumbnailPx); err == nil {
			artifacts = append(artifacts, DerivedArtifact{
				Type: model.GeneratedSmallThumbnail, Mime: "image/png", Bytes: small, Hash: hashOf(small),
			})
		}
	}

	return PlanResult{Artifacts: artifacts}, nil
}

func shrinkPNG(pngBytes []byte, maxDim int) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(pngBytes))
	if err != nil {
		return nil, err
	}
	resized := imaging.Fit(img, maxDim, maxDim, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.PNG); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func isOfficeMime(mime string) bool {
	officeMimes := []string{
		"application/msword",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		"application/vnd.ms-excel",
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		"application/vnd.ms-powerpoint",
		"application/vnd.openxmlformats-officedocument.presentationml.presentation",
		"application/vnd.oasis.opendocument.text",
		"application/vnd.oasis.opendocument.spreadsheet",
		"application/vnd.oasis.opendocument.presentation",
	}
	for _, m := range officeMimes {
		if mime == m {
			return true
		}
	}
	return false
}

func (p *Planner) officePlan(ctx context.Context, mime string, body []byte) (PlanResult, error) {
	pdfBytes, err := p.office.ConvertToPDF(ctx, mime, body)
	if err != nil {
		return PlanResult{}, fmt.Errorf("convert office document: %w", err)
	}
	result, err := p.pdfPlan(ctx, pdfBytes)
	if err != nil {
		return PlanResult{}, err
	}
	// The converted PDF is appended again here; pdfPlan has already
	// appended it with the same type and hash, so persistArtifacts finds
	// the second entry already recorded and skips it.
	result.Artifacts = append(result.Artifacts, DerivedArtifact{
		Type: model.GeneratedPdf, Mime: "application/pdf", Bytes: pdfBytes, Hash: hashOf(pdfBytes),
	})

	// Core document properties (title/author/subject) are read directly
	// from the OOXML source rather than the converted PDF, since the
	// external converter doesn't promise to preserve them.
	if meta, err := officeCoreProperties(mime, body); err == nil && meta != nil {
		result.Artifacts = append(result.Artifacts, DerivedArtifact{
			Type: model.GeneratedJsonMetadata, Mime: "application/json", Bytes: meta, Hash: hashOf(meta),
		})
	}

	return result, nil
}

// officeCoreProperties extracts title/creator/subject from an OOXML
// document's core properties, in-process via unioffice. Legacy binary
// formats (.doc/.xls/.ppt) and ODF are not OOXML and return (nil, nil):
// their metadata still reaches the index through the external converter's
// PDF output text, just not as a dedicated JsonMetadata artifact.
func officeCoreProperties(mime string, body []byte) ([]byte, error) {
	r := bytes.NewReader(body)
	size := int64(len(body))

	switch mime {
	case "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		doc, err := document.Read(r, size)
		if err != nil {
			return nil, fmt.Errorf("read docx core properties: %w", err)
		}
		defer doc.Close()
		props := doc.CoreProperties
		return marshalCompact(map[string]string{
			"title": props.Title(), "creator": props.Author(), "subject": coreSubject(props),
		})
	case "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":
		wb, err := spreadsheet.Read(r, size)
		if err != nil {
			return nil, fmt.Errorf("read xlsx core properties: %w", err)
		}
		defer wb.Close()
		props := wb.CoreProperties
		return marshalCompact(map[string]string{
			"title": props.Title(), "creator": props.Author(), "subject": coreSubject(props),
		})
	case "application/vnd.openxmlformats-officedocument.presentationml.presentation":
		pres, err := presentation.Read(r, size)
		if err != nil {
			return nil, fmt.Errorf("read pptx core properties: %w", err)
		}
		defer pres.Close()
		props := pres.CoreProperties
		return marshalCompact(map[string]string{
			"title": props.Title(), "creator": props.Author(), "subject": coreSubject(props),
		})
	default:
		return nil, nil
	}
}

// coreSubject reads the dc:subject value that common.CoreProperties does
// not expose through a dedicated accessor.
func coreSubject(props common.CoreProperties) string {
	if subject := props.X().Subject; subject != nil {
		return string(subject.Data)
	}
	return ""
}

var htmlSanitizer = bluemonday.UGCPolicy()

func (p *Planner) emailPlan(body []byte) (PlanResult, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(body))
	if err != nil {
		return PlanResult{}, fmt.Errorf("parse email: %w", err)
	}

	var artifacts []DerivedArtifact
	var children []ChildFile

	if env.Text != "" {
		artifacts = append(artifacts, DerivedArtifact{Type: model.GeneratedTextContent, Mime: "text/plain", Bytes: []byte(env.Text), Hash: hashOf([]byte(env.Text))})
	}

	cleanHTML := inlineCidImages(env)
	if cleanHTML != "" {
		sanitized := htmlSanitizer.Sanitize(cleanHTML)
		artifacts = append(artifacts, DerivedArtifact{Type: model.GeneratedHtmlContent, Mime: "text/html", Bytes: []byte(sanitized), Hash: hashOf([]byte(sanitized))})
	}

	aggregate := aggregateEmailText(env)
	for i, chunk := range chunkText(aggregate, p.cfg.TextChunkBytes) {
		artifacts = append(artifacts, DerivedArtifact{Page: i + 1, Content: chunk})
	}

	for _, att := range env.Attachments {
		children = append(children, ChildFile{Name: att.FileName, Mime: att.ContentType, Bytes: att.Content})
	}

	return PlanResult{Artifacts: artifacts, Children: children}, nil
}

// inlineCidImages rewrites cid: references in the HTML body to base64
// data URLs sourced from the envelope's inline parts, per spec.md §4.3.
func inlineCidImages(env *enmime.Envelope) string {
	body := env.HTML
	for _, inline := range env.Inlines {
		if inline.ContentID == "" {
			continue
		}
		dataURL := "data:" + inline.ContentType + ";base64," + base64.StdEncoding.EncodeToString(inline.Content)
		body = strings.ReplaceAll(body, "cid:"+inline.ContentID, dataURL)
	}
	return body
}

func aggregateEmailText(env *enmime.Envelope) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Subject: %s\n", env.GetHeader("Subject")))
	sb.WriteString(fmt.Sprintf("From: %s\n", env.GetHeader("From")))
	sb.WriteString(fmt.Sprintf("To: %s\n\n", env.GetHeader("To")))
	sb.WriteString(env.Text)
	for _, att := range env.Attachments {
		sb.WriteString("\n\n--- attachment: ")
		sb.WriteString(att.FileName)
		sb.WriteString(" ---\n")
	}
	return sb.String()
}

func (p *Planner) htmlPlan(body []byte) (PlanResult, error) {
	text, err := htmlToText(body)
	if err != nil {
		return PlanResult{}, fmt.Errorf("convert html to text: %w", err)
	}
	return PlanResult{Artifacts: []DerivedArtifact{{Page: 1, Content: text}}}, nil
}

// htmlToText strips script/style content and preserves heading line
// breaks, walking the parse tree with golang.org/x/net/html rather than
// a regex strip.
func htmlToText(body []byte) (string, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	var walk func(*html.Node)
	skip := map[string]bool{"script": true, "style": true}
	headings := map[string]bool{"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true, "p": true, "br": true}

	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skip[n.Data] {
			return
		}
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && headings[n.Data] {
			sb.WriteString("\n")
		}
	}
	walk(doc)
	return strings.TrimSpace(sb.String()), nil
}

func (p *Planner) plainTextPlan(body []byte) (PlanResult, error) {
	chunks := chunkText(string(body), p.cfg.TextChunkBytes)
	artifacts := make([]DerivedArtifact, len(chunks))
	for i, c := range chunks {
		artifacts[i] = DerivedArtifact{Page: i + 1, Content: c}
	}
	return PlanResult{Artifacts: artifacts}, nil
}

// chunkText splits text into ~chunkBytes runs, preferring paragraph
// boundaries ("\n\n") over mid-word cuts.
func chunkText(text string, chunkBytes int) []string {
	if len(text) == 0 {
		return nil
	}
	paragraphs := strings.Split(text, "\n\n")
	var chunks []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
		}
	}

	for _, para := range paragraphs {
		if current.Len()+len(para) > chunkBytes && current.Len() > 0 {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
	}
	flush()
	return chunks
}

// marshalCompact serializes fields deterministically: encoding/json sorts
// map[string]string keys before writing, which hashOf() depends on for
// generated JsonMetadata artifacts to dedupe stably across runs.
func marshalCompact(fields map[string]string) ([]byte, error) {
	return json.Marshal(fields)
}
