package api

import (
	"fmt"
	"io"
	"net/http"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"
	"github.com/wacrm/wacrm/internal/status"
	intsync "github.com/wacrm/wacrm/internal/sync"
	"github.com/wacrm/wacrm/internal/wa"
	"go.uber.org/zap"
)

const maxUploadBytes = 64 << 20

func (s *Server) handleDeviceStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"state":      string(s.machine.Current()),
		"qr_pending": wa.LatestQR() != "",
	}
	if code := wa.LatestQR(); code != "" {
		resp["qr_code"] = code
	}
	if s.device != nil {
		resp["phone"] = s.device.PhoneNumber()
		resp["logged_in"] = s.device.IsLoggedIn()
	}
	if acct, err := s.db.GetDeviceAccount(intsync.PrimaryDeviceID); err == nil && acct != nil {
		resp["account"] = map[string]any{
			"phone":        acct.Phone,
			"status":       acct.Status,
			"connected_at": acct.ConnectedAt,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleDeviceQR renders the current pairing code as a PNG. 404 while no
// pairing is in progress.
func (s *Server) handleDeviceQR(w http.ResponseWriter, r *http.Request) {
	code := wa.LatestQR()
	if code == "" {
		writeError(w, http.StatusNotFound, "no pairing in progress")
		return
	}
	png, err := qrcode.Encode(code, qrcode.Medium, 512)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "render qr failed")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(png)
}

// handleDeviceSyncStart kicks off a connection with the paired account.
// Pairing itself goes through the QR flow, not here.
func (s *Server) handleDeviceSyncStart(w http.ResponseWriter, r *http.Request) {
	if s.device == nil {
		writeError(w, http.StatusServiceUnavailable, "device not available")
		return
	}
	if !s.device.IsLoggedIn() {
		writeError(w, http.StatusConflict, "device is not paired")
		return
	}
	if err := s.machine.Transition(status.Connecting); err != nil {
		writeError(w, http.StatusConflict, "%v", err)
		return
	}
	go func() {
		if err := s.device.Connect(); err != nil {
			s.logger.Error("device connect failed", zap.Error(err))
			_ = s.machine.Transition(status.Error)
		}
	}()
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleDeviceSyncStop(w http.ResponseWriter, r *http.Request) {
	if s.device == nil {
		writeError(w, http.StatusServiceUnavailable, "device not available")
		return
	}
	s.device.Disconnect()
	s.logger.Info("device sync stopped by request")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeviceLogout(w http.ResponseWriter, r *http.Request) {
	if s.device == nil {
		writeError(w, http.StatusServiceUnavailable, "device not available")
		return
	}
	if err := s.device.Logout(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "logout failed: %v", err)
		return
	}
	s.logger.Info("device logged out by request")
	w.WriteHeader(http.StatusNoContent)
}

// handleUploadMedia accepts a multipart upload under the "file" field and
// stores it in the media bucket. The returned URL goes into a send request.
func (s *Server) handleUploadMedia(w http.ResponseWriter, r *http.Request) {
	if s.media == nil {
		writeError(w, http.StatusServiceUnavailable, "media storage not configured")
		return
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid upload: %v", err)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "read upload failed")
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	key := fmt.Sprintf("%s/%s%s",
		time.Now().Format("2006/01"), uuid.NewString(), path.Ext(header.Filename))

	url, err := s.media.Upload(r.Context(), key, contentType, data)
	if err != nil {
		s.logger.Error("media upload failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "upload failed")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"url":          url,
		"key":          key,
		"content_type": contentType,
	})
}
