package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// UI holds page copy shown by the shell renderers. Empty values in a
// loaded file keep their defaults.
type UI struct {
	PageTitle       string            `yaml:"page_title" json:"page_title"`
	StartButtonText string            `yaml:"start_button_text" json:"start_button_text"`
	EndButtonText   string            `yaml:"end_button_text" json:"end_button_text"`
	FormTitle       string            `yaml:"form_title" json:"form_title"`
	FormDescription string            `yaml:"form_description" json:"form_description"`
	SubmitText      string            `yaml:"submit_text" json:"submit_text"`
	CancelText      string            `yaml:"cancel_text" json:"cancel_text"`
	FieldLabels     map[string]string `yaml:"field_labels" json:"field_labels"`
	// RequiredFields names form fields that must be filled before a lead
	// is sent. None are required by default.
	RequiredFields []string `yaml:"required_fields" json:"required_fields,omitempty"`
}

func DefaultUI() UI {
	return UI{
		PageTitle:       "Talk to our assistant",
		StartButtonText: "Start call",
		EndButtonText:   "End call",
		FormTitle:       "Verify Your Information",
		FormDescription: "Please confirm the details below are correct before we send them to the team.",
		SubmitText:      "Looks Good, Send It",
		CancelText:      "Cancel",
		FieldLabels: map[string]string{
			"name":          "Full Name",
			"inquiry":       "Your Inquiry",
			"contactDetail": "Contact (Email/Phone)",
			"email":         "Email",
			"phone":         "Phone",
		},
	}
}

// LoadUI reads a YAML file and overlays it on DefaultUI.
func LoadUI(path string) (UI, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return UI{}, fmt.Errorf("APP_UI_CONFIG read error: %w", err)
	}
	var file UI
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return UI{}, fmt.Errorf("APP_UI_CONFIG parse error: %w", err)
	}

	ui := DefaultUI()
	overlay(&ui.PageTitle, file.PageTitle)
	overlay(&ui.StartButtonText, file.StartButtonText)
	overlay(&ui.EndButtonText, file.EndButtonText)
	overlay(&ui.FormTitle, file.FormTitle)
	overlay(&ui.FormDescription, file.FormDescription)
	overlay(&ui.SubmitText, file.SubmitText)
	overlay(&ui.CancelText, file.CancelText)
	if len(file.RequiredFields) > 0 {
		ui.RequiredFields = file.RequiredFields
	}
	for field, label := range file.FieldLabels {
		if label != "" {
			ui.FieldLabels[field] = label
		}
	}
	return ui, nil
}

// Label returns the configured label for a form field, or the field name.
func (u UI) Label(field string) string {
	if l, ok := u.FieldLabels[field]; ok && l != "" {
		return l
	}
	return field
}

func overlay(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
