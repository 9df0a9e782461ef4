package document

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
)

// maxUploadSize bounds multipart uploads (high-resolution phone photos)
const maxUploadSize = int64(50 << 20)

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// writeError maps service errors to status codes with a JSON body
func writeError(w http.ResponseWriter, err error) {
	var validation *ValidationError
	code := http.StatusInternalServerError
	message := "Internal server error"

	switch {
	case errors.As(err, &validation):
		code, message = http.StatusBadRequest, validation.Message
	case errors.Is(err, ErrNotFound), errors.Is(err, fs.ErrNotExist):
		code, message = http.StatusNotFound, "Document not found"
	case errors.Is(err, ErrRunInProgress):
		code, message = http.StatusConflict, ErrRunInProgress.Error()
	case errors.Is(err, ErrLedgerUnavailable):
		code, message = http.StatusServiceUnavailable, ErrLedgerUnavailable.Error()
	default:
		slog.Error("Request failed", "error", err)
	}

	setCORSHeaders(w)
	writeJSON(w, code, map[string]string{"error": message})
}

// contentTypeFor falls back to the file extension when the part has no type
func contentTypeFor(header string, filename string) string {
	contentType := strings.ToLower(strings.TrimSpace(header))
	if contentType != "" {
		return contentType
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	default:
		return "application/octet-stream"
	}
}

// handleListDocuments returns documents, optionally filtered by status
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.service.ListDocuments(Status(r.URL.Query().Get("status")))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

// handleUploadDocument handles document upload
func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		var tooLarge *http.MaxBytesError
		message := "Error parsing form"
		if errors.As(err, &tooLarge) {
			message = "File is too large. Maximum size is 50MB."
		}
		writeError(w, invalid("%s", message))
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, invalid("No file was selected. Please choose a file to upload."))
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeError(w, err)
		return
	}

	doc, err := s.service.Upload(r.Context(), UploadRequest{
		Name:        r.FormValue("name"),
		Kind:        Kind(r.FormValue("kind")),
		Filename:    header.Filename,
		ContentType: contentTypeFor(header.Header.Get("Content-Type"), header.Filename),
		Data:        data,
		UploadedBy:  s.user(r),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, doc)
}

// handleGetDocument returns a document with its line items
func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	doc, err := s.service.GetDocument(id)
	if err != nil {
		writeError(w, err)
		return
	}
	lines, err := s.service.LineItems(id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"document":   doc,
		"line_items": lines,
	})
}

// handleGetDocumentFile returns the source file of a document
func (s *Server) handleGetDocumentFile(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.service.GetDocumentFile(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// handleDeleteDocument deletes a document
func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteDocument(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	doc, err := s.service.Run(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleRerun(w http.ResponseWriter, r *http.Request) {
	doc, err := s.service.Rerun(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// handleReview stores the reviewed header values
func (s *Server) handleReview(w http.ResponseWriter, r *http.Request) {
	var review Review
	if err := json.NewDecoder(r.Body).Decode(&review); err != nil {
		writeError(w, invalid("Invalid request body"))
		return
	}

	doc, err := s.service.Review(r.Context(), r.PathValue("id"), review)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleCreateBill(w http.ResponseWriter, r *http.Request) {
	doc, err := s.service.CreateBill(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

// handleExport streams all documents as CSV
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := s.service.Export(&buf); err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="documents.csv"`)
	w.Write(buf.Bytes())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.service.Stats()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("ok"))
}
