package hub

import (
	"context"
	"fmt"

	"medroom/internal/analysis"
	"medroom/internal/extract"
	"medroom/internal/session"
	"medroom/pkg/types"
)

// MetricsUpdate is the payload of health-metrics-updated
type MetricsUpdate struct {
	RoomID        string               `json:"roomId"`
	HealthMetrics *types.HealthMetrics `json:"healthMetrics"`
}

// RoomDeleted is the payload of room-deleted
type RoomDeleted struct {
	RoomID  string `json:"roomId"`
	Message string `json:"message"`
}

// DeleteRoom notifies and unbinds every connection, then removes the
// invitation and room. Only the bound doctor may delete
func (h *Hub) DeleteRoom(token, email string) (*types.Invitation, error) {
	var deleted *types.Invitation
	err := h.Call(func() error {
		invitation, err := h.store.AuthorizeDelete(token, email)
		if err != nil {
			return err
		}

		h.delivery.Broadcast(invitation.RoomID, types.Event{
			Type: types.EventRoomDeleted,
			Data: RoomDeleted{RoomID: invitation.RoomID, Message: "This consultation room has been closed by the doctor."},
		})
		for _, conn := range h.registry.RoomConnections(invitation.RoomID) {
			h.registry.UnbindRoom(conn)
		}
		h.clearVideoPeers(invitation.RoomID)

		deleted, err = h.store.DeleteInvitation(h.ctx, token, email)
		return err
	})
	if err != nil {
		return nil, err
	}
	h.logger.Info().Str("room_id", deleted.RoomID).Msg("room deleted")
	return deleted, nil
}

// AddUpload records a stored file, announces it and starts analysis.
// FUNCTIONAL DISCOVERY: Returns as soon as the file is announced; extraction
// and analysis complete later as directed push events
func (h *Hub) AddUpload(roomID string, file *types.UploadedFile) error {
	return h.Call(func() error {
		if err := h.store.AddFile(h.ctx, roomID, file); err != nil {
			return err
		}

		notice, err := h.store.AppendMessage(h.ctx, roomID, types.Message{
			SpeakerRole: types.SpeakerSystem,
			Nickname:    types.SpeakerSystem,
			Content:     fmt.Sprintf("%s uploaded %s", file.UploadedBy, file.Name),
			FileRef:     file.ID,
		})
		if err == nil {
			h.delivery.DeliverMessage(roomID, notice)
		}
		h.broadcastFiles(roomID)
		h.startAnalysis(roomID, *file)
		return nil
	})
}

func (h *Hub) broadcastFiles(roomID string) {
	if room, ok := h.store.Snapshot(roomID); ok {
		h.delivery.BroadcastFiles(roomID, room.Files)
	}
}

// startAnalysis snapshots prior files and runs extraction and analysis off-loop
func (h *Hub) startAnalysis(roomID string, file types.UploadedFile) {
	room, ok := h.store.Snapshot(roomID)
	if !ok {
		return
	}
	prior := room.Files

	h.Go(func(ctx context.Context) func() {
		content, err := h.extractor.Extract(ctx, file.StoragePath, file.MimeType)
		if err != nil {
			h.logger.Warn().Err(err).Str("file_id", file.ID).Msg("extraction failed")
			content = extract.NoTextDetected
		}
		file.ExtractedContent = content

		result := h.analyzer.Analyze(ctx, &file, prior)
		return func() {
			h.completeAnalysis(roomID, file, result)
		}
	})
}

// completeAnalysis applies an analysis result.
// ARCHITECTURAL DISCOVERY: Sequence numbers order the doctor analysis after
// the upload notice; a room deleted mid-analysis cancels silently
func (h *Hub) completeAnalysis(roomID string, file types.UploadedFile, result analysis.Result) {
	if !h.store.HasRoom(roomID) {
		h.logger.Debug().Str("room_id", roomID).Str("file_id", file.ID).Msg("room gone before analysis completed")
		return
	}

	if err := h.store.CompleteFileAnalysis(h.ctx, roomID, file.ID, session.FileAnalysis{
		ExtractedContent: types.Truncate(file.ExtractedContent, extract.MaxContentLength),
		AnalysisText:     result.Analysis,
		Summary:          result.Summary,
	}); err != nil {
		h.logger.Warn().Err(err).Str("file_id", file.ID).Msg("file record update failed")
		return
	}

	// Metrics are replaced only by a successful extraction
	if result.Metrics != nil {
		if err := h.store.SetHealthMetrics(roomID, result.Metrics); err == nil {
			h.delivery.SendToRole(roomID, types.RoleDoctor, types.Event{
				Type: types.EventHealthMetricsUpdated,
				Data: MetricsUpdate{RoomID: roomID, HealthMetrics: result.Metrics},
			})
		}
	}
	h.broadcastFiles(roomID)

	if result.Analyzed {
		msg, err := h.store.AppendMessage(h.ctx, roomID, types.Message{
			SpeakerRole: types.SpeakerAI,
			Nickname:    types.SpeakerAI,
			Content:     fmt.Sprintf("Analysis of %s:\n\n%s", file.Name, result.Analysis),
			FileRef:     file.ID,
			ForRole:     types.RoleDoctor,
			IsPrivate:   true,
		})
		if err == nil {
			h.delivery.DeliverMessage(roomID, msg)
		}
	}

	if file.UploaderRole != types.RolePatient {
		return
	}
	msg, err := h.store.AppendMessage(h.ctx, roomID, types.Message{
		SpeakerRole: types.SpeakerAI,
		Nickname:    types.SpeakerAI,
		Content:     analysis.PatientNotice(file.Name),
		FileRef:     file.ID,
		ForRole:     types.RolePatient,
		IsPrivate:   true,
	})
	if err != nil {
		return
	}
	if room, ok := h.store.Snapshot(roomID); ok && room.PatientConnID != "" {
		h.delivery.SendMessage(room.PatientConnID, roomID, msg)
	}
}
