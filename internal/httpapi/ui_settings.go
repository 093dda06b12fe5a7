package httpapi

import "net/http"

type uiSettingsResponse struct {
	PageTitle       string            `json:"page_title"`
	StartButtonText string            `json:"start_button_text"`
	EndButtonText   string            `json:"end_button_text"`
	FormTitle       string            `json:"form_title"`
	FormDescription string            `json:"form_description"`
	SubmitText      string            `json:"submit_text"`
	CancelText      string            `json:"cancel_text"`
	FieldLabels     map[string]string `json:"field_labels"`
	ParticipantName string            `json:"participant_name"`
}

func (s *Server) handleUISettings(w http.ResponseWriter, _ *http.Request) {
	ui := s.cfg.UI
	respondJSON(w, http.StatusOK, uiSettingsResponse{
		PageTitle:       ui.PageTitle,
		StartButtonText: ui.StartButtonText,
		EndButtonText:   ui.EndButtonText,
		FormTitle:       ui.FormTitle,
		FormDescription: ui.FormDescription,
		SubmitText:      ui.SubmitText,
		CancelText:      ui.CancelText,
		FieldLabels:     ui.FieldLabels,
		ParticipantName: s.cfg.ParticipantName,
	})
}
