package processing

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/docboxhq/docbox/internal/pkg/rpcclient"
)

// HTTPOfficeConverter calls the external office-to-PDF converter named in
// spec.md §6 ("POST bytes + source mime, receives PDF bytes").
type HTTPOfficeConverter struct {
	client *rpcclient.Client
}

// NewHTTPOfficeConverter builds an OfficeConverter over the Office RPC
// endpoint configured in conf.RPCConfig.
func NewHTTPOfficeConverter(client *rpcclient.Client) OfficeConverter {
	return &HTTPOfficeConverter{client: client}
}

func (c *HTTPOfficeConverter) ConvertToPDF(ctx context.Context, mime string, body []byte) ([]byte, error) {
	pdfBytes, err := c.client.PostBinary(ctx, "/convert", mime, body)
	if err != nil {
		return nil, fmt.Errorf("convert office document via rpc: %w", err)
	}
	return pdfBytes, nil
}

// HTTPPDFExtractor calls the external PDF text/image extractor named in
// spec.md §6, used instead of LocalPDFExtractor when conf.RPCConfig.PDF
// leaves UseLocal unset.
type HTTPPDFExtractor struct {
	client *rpcclient.Client
}

// NewHTTPPDFExtractor builds a PDFExtractor over the PDF RPC endpoint
// configured in conf.RPCConfig.
func NewHTTPPDFExtractor(client *rpcclient.Client) PDFExtractor {
	return &HTTPPDFExtractor{client: client}
}

type extractPagesResponse struct {
	Pages []struct {
		Page int    `json:"page"`
		Text string `json:"text"`
	} `json:"pages"`
}

func (c *HTTPPDFExtractor) ExtractPages(ctx context.Context, pdfBytes []byte) ([]string, error) {
	respBody, err := c.client.PostBinary(ctx, "/extract", "application/pdf", pdfBytes)
	if err != nil {
		return nil, fmt.Errorf("extract pdf pages via rpc: %w", err)
	}

	var parsed extractPagesResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("decode extract response: %w", err)
	}

	pages := make([]string, len(parsed.Pages))
	for _, p := range parsed.Pages {
		if p.Page < 1 || p.Page > len(pages) {
			continue
		}
		pages[p.Page-1] = p.Text
	}
	return pages, nil
}

func (c *HTTPPDFExtractor) RasterizeFirstPage(ctx context.Context, pdfBytes []byte, maxDim int) ([]byte, error) {
	path := fmt.Sprintf("/rasterize?page=0&size=%d", maxDim)
	imgBytes, err := c.client.PostBinary(ctx, path, "application/pdf", pdfBytes)
	if err != nil {
		return nil, fmt.Errorf("rasterize pdf page via rpc: %w", err)
	}
	return imgBytes, nil
}
