package api

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"medroom/internal/session"
	"medroom/pkg/types"
)

// allowedUploadTypes lists the MIME types accepted for upload
var allowedUploadTypes = map[string]string{
	"text/plain":       ".txt",
	"text/csv":         ".csv",
	"text/markdown":    ".md",
	"application/json": ".json",
	"image/png":        ".png",
	"image/jpeg":       ".jpg",
	"image/webp":       ".webp",
	"application/pdf":  ".pdf",
}

// multipartOverhead leaves room for form fields around the file part
const multipartOverhead = 1 << 20

// handleUpload stores one file and hands it to the hub (POST /api/upload).
// ARCHITECTURAL DISCOVERY: Ack-then-notify; the descriptor is returned as soon
// as the file is announced and analysis results arrive over the socket
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.options.MaxUploadBytes+multipartOverhead)
	if err := r.ParseMultipartForm(s.options.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.sendError(w, fmt.Sprintf("file exceeds %d bytes", s.options.MaxUploadBytes), http.StatusRequestEntityTooLarge)
			return
		}
		s.sendError(w, "Invalid multipart form", http.StatusBadRequest)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	roomID := r.FormValue("roomId")
	uploader := strings.TrimSpace(r.FormValue("uploader"))
	role := types.Role(r.FormValue("role"))
	switch {
	case !types.IsValidRoomID(roomID):
		s.sendError(w, types.ErrInvalidRoomID.Error(), http.StatusBadRequest)
		return
	case uploader == "" || len(uploader) > 50:
		s.sendError(w, types.ErrInvalidNickname.Error(), http.StatusBadRequest)
		return
	case !types.IsValidRole(role):
		s.sendError(w, types.ErrInvalidRole.Error(), http.StatusBadRequest)
		return
	}
	if !s.store.HasRoom(roomID) {
		s.sendError(w, session.ErrRoomNotFound.Error(), http.StatusNotFound)
		return
	}

	part, header, err := r.FormFile("file")
	if err != nil {
		s.sendError(w, "file is required", http.StatusBadRequest)
		return
	}
	defer func() { _ = part.Close() }()
	if header.Size > s.options.MaxUploadBytes {
		s.sendError(w, fmt.Sprintf("file exceeds %d bytes", s.options.MaxUploadBytes), http.StatusRequestEntityTooLarge)
		return
	}

	mimeType, err := detectMimeType(part, header.Header.Get("Content-Type"))
	if err != nil {
		s.sendError(w, "Unable to read upload", http.StatusBadRequest)
		return
	}
	ext, allowed := allowedUploadTypes[mimeType]
	if !allowed {
		s.sendError(w, fmt.Sprintf("file type %s is not supported", mimeType), http.StatusUnsupportedMediaType)
		return
	}

	fileID := uuid.New().String()
	storedName := fileID + ext
	storagePath := filepath.Join(s.options.UploadDir, roomID, storedName)
	size, err := saveUpload(part, storagePath)
	if err != nil {
		s.logger.Error().Err(err).Str("room_id", roomID).Msg("store upload failed")
		s.sendError(w, "Failed to store file", http.StatusInternalServerError)
		return
	}

	file := &types.UploadedFile{
		ID:           fileID,
		Name:         sanitizeName(header.Filename),
		StoragePath:  storagePath,
		URL:          path.Join("/uploads", roomID, storedName),
		MimeType:     mimeType,
		Size:         size,
		UploadedAt:   time.Now(),
		UploadedBy:   uploader,
		UploaderRole: role,
	}
	if err := s.rooms.AddUpload(roomID, file); err != nil {
		_ = os.Remove(storagePath)
		s.sendFailure(w, err, "Failed to record upload")
		return
	}

	s.logger.Info().Str("room_id", roomID).Str("file_id", fileID).Str("mime", mimeType).Int64("size", size).Msg("file uploaded")
	s.writeJSON(w, http.StatusCreated, file)
}

// detectMimeType trusts a parseable declared type, otherwise sniffs the content
func detectMimeType(part io.ReadSeeker, declared string) (string, error) {
	if mediaType, _, err := mime.ParseMediaType(declared); err == nil && mediaType != "application/octet-stream" {
		return mediaType, nil
	}

	buf := make([]byte, 512)
	n, err := part.Read(buf)
	if err != nil && err != io.EOF {
		return "", err
	}
	if _, err := part.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	mediaType, _, _ := mime.ParseMediaType(http.DetectContentType(buf[:n]))
	return mediaType, nil
}

func saveUpload(src io.Reader, storagePath string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(storagePath), 0o750); err != nil {
		return 0, err
	}
	dst, err := os.OpenFile(storagePath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o640)
	if err != nil {
		return 0, err
	}
	size, err := io.Copy(dst, src)
	if closeErr := dst.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(storagePath)
		return 0, err
	}
	return size, nil
}

// sanitizeName keeps the display name but drops any client-supplied path
func sanitizeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "upload"
	}
	return types.Truncate(name, 255)
}
