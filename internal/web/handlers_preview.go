package web

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/JonMunkholm/csvpreview/internal/csvstream"
	"github.com/JonMunkholm/csvpreview/internal/logging"
	"github.com/JonMunkholm/csvpreview/internal/preview"
	"github.com/JonMunkholm/csvpreview/internal/source"
	"github.com/JonMunkholm/csvpreview/internal/web/templates"
)

const (
	// multipartSlack is what a multipart body may add on top of the file
	// itself. Files slightly over the limit still reach the preview, which
	// reports the size in its own words.
	multipartSlack = 1 << 20
	// multipartMemory is kept in memory before parts spill to disk.
	multipartMemory = 32 << 20
)

var errNoFileProvided = errors.New("no file provided")

// previewResponse is the JSON body of a one-shot preview.
type previewResponse struct {
	preview.Result
	Valid bool `json:"valid"`
}

// delimitersResponse lists the picker choices and the size limit.
type delimitersResponse struct {
	Delimiters        []preview.DelimiterOption `json:"delimiters"`
	Encodings         []string                  `json:"encodings"`
	MaxBytes          int64                     `json:"max_bytes"`
	MaxBytesFormatted string                    `json:"max_bytes_formatted"`
}

// statusResponse reports preview capacity for monitoring.
type statusResponse struct {
	Previews preview.LimiterStatus `json:"previews"`
	Sessions int                   `json:"sessions"`
}

// handleIndex renders the upload page.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	templates.Page(s.pageParams(preview.ParseOptions{}, nil)).Render(r.Context(), w)
}

// handleFormPreview previews a file posted from the upload page. HTMX
// requests get the result fragment, plain form posts the whole page.
func (s *Server) handleFormPreview(w http.ResponseWriter, r *http.Request) {
	fh, opts, status, err := s.parseUpload(w, r)
	defer cleanupMultipart(r)
	if err != nil {
		respondError(w, r, err, status)
		return
	}

	ctx := WithRequestMetadata(r.Context(), r)
	res, err := s.limiter.Compute(ctx, source.Multipart(fh), opts, s.previewDeps(ctx))
	if err != nil {
		respondError(w, r, err, computeStatus(err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if isHTMX(r) {
		templates.PreviewResult(res).Render(r.Context(), w)
		return
	}
	templates.Page(s.pageParams(res.Options, &res)).Render(r.Context(), w)
}

// handleAPIPreview previews an uploaded file and returns the result as JSON.
func (s *Server) handleAPIPreview(w http.ResponseWriter, r *http.Request) {
	fh, opts, status, err := s.parseUpload(w, r)
	defer cleanupMultipart(r)
	if err != nil {
		respondError(w, r, err, status)
		return
	}

	ctx := WithRequestMetadata(r.Context(), r)
	res, err := s.limiter.Compute(ctx, source.Multipart(fh), opts, s.previewDeps(ctx))
	if err != nil {
		respondError(w, r, err, computeStatus(err))
		return
	}

	logging.FromContext(ctx).Info("preview served",
		"file", res.FileName,
		"size", res.FileSize,
		"errors", len(res.Errors),
	)
	writeJSON(w, previewResponse{Result: res, Valid: res.Valid()})
}

// handleDelimiters returns the delimiter choices and the size limit.
func (s *Server) handleDelimiters(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, delimitersResponse{
		Delimiters:        preview.DelimiterOptions(),
		Encodings:         csvstream.SupportedEncodings(),
		MaxBytes:          s.cfg.Preview.MaxBytes,
		MaxBytesFormatted: humanize.IBytes(uint64(s.cfg.Preview.MaxBytes)),
	})
}

// handleStatus reports how busy the preview workers are.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, statusResponse{
		Previews: s.limiter.Status(),
		Sessions: s.sessions.Len(),
	})
}

// parseUpload reads the "file" part and the delimiter and encoding fields
// of a multipart request. On failure it returns the status to answer with.
func (s *Server) parseUpload(w http.ResponseWriter, r *http.Request) (*multipart.FileHeader, preview.ParseOptions, int, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Preview.MaxBytes+multipartSlack)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			return nil, preview.ParseOptions{}, http.StatusRequestEntityTooLarge, fmt.Errorf("file too large: %w", err)
		}
		return nil, preview.ParseOptions{}, http.StatusBadRequest, fmt.Errorf("%w: %v", errNoFileProvided, err)
	}

	files := r.MultipartForm.File["file"]
	if len(files) == 0 {
		return nil, preview.ParseOptions{}, http.StatusBadRequest, errNoFileProvided
	}

	opts := preview.ParseOptions{
		Delimiter: r.FormValue("delimiter"),
		Encoding:  r.FormValue("encoding"),
	}
	return files[0], opts, http.StatusOK, nil
}

// cleanupMultipart removes temporary files ParseMultipartForm created.
func cleanupMultipart(r *http.Request) {
	if r.MultipartForm != nil {
		r.MultipartForm.RemoveAll()
	}
}

func (s *Server) previewDeps(ctx context.Context) preview.Deps {
	return preview.Deps{
		MaxBytes: s.cfg.Preview.MaxBytes,
		Logger:   logging.FromContext(ctx),
	}
}

func (s *Server) pageParams(opts preview.ParseOptions, res *preview.Result) templates.PageParams {
	return templates.PageParams{
		Delimiters: preview.DelimiterOptions(),
		Encodings:  csvstream.SupportedEncodings(),
		MaxBytes:   humanize.IBytes(uint64(s.cfg.Preview.MaxBytes)),
		Selected:   opts,
		Result:     res,
	}
}

// computeStatus picks the status for an error returned by Compute.
func computeStatus(err error) int {
	switch {
	case errors.Is(err, preview.ErrTooManyPreviews):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout
	case errors.Is(err, preview.ErrNoFile):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
