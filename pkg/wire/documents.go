// Package wire contains the JSON documents exchanged through the shared
// directory between the MCP server and the editor extension.
package wire

import "time"

// SystemTag identifies documents written by this server. The extension
// filters on it, so the value is part of the wire contract.
const SystemTag = "review-gate-v2"

// Timestamp is the fixed-width UTC layout used for every document timestamp.
// Fixed width keeps timestamps comparable as plain strings.
const Timestamp = "2006-01-02T15:04:05.000000000Z"

// Now returns the current time formatted for the wire.
func Now() string {
	return Format(time.Now())
}

// Format renders t in the wire timestamp layout.
func Format(t time.Time) string {
	return t.UTC().Format(Timestamp)
}

// Trigger is the document that requests the extension's attention. It is
// written to one canonical path plus numbered backups carrying the same Data.
type Trigger struct {
	Timestamp           string         `json:"timestamp"`
	System              string         `json:"system"`
	Editor              string         `json:"editor,omitempty"`
	Data                map[string]any `json:"data"`
	PID                 int            `json:"pid"`
	ActiveWindow        bool           `json:"active_window"`
	MCPIntegration      bool           `json:"mcp_integration"`
	ImmediateActivation bool           `json:"immediate_activation"`
	BackupID            *int           `json:"backup_id,omitempty"`
}

// Ack is written by the extension once the popup has been activated.
// The file is single-use: the waiter deletes it on first read.
type Ack struct {
	Acknowledged bool `json:"acknowledged"`
}

// Attachment is an uploaded media descriptor carried on a response.
type Attachment struct {
	MimeType   string `json:"mimeType"`
	FileName   string `json:"fileName"`
	Base64Data string `json:"base64Data"`
}

// Response is the extension's reply. Older extensions used different field
// names for the text, so all three are read in order of preference.
type Response struct {
	UserInput   string       `json:"user_input,omitempty"`
	Response    string       `json:"response,omitempty"`
	Message     string       `json:"message,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
	TriggerID   string       `json:"trigger_id,omitempty"`
}

// Text returns the first non-empty text field.
func (r *Response) Text() string {
	if r.UserInput != "" {
		return r.UserInput
	}
	if r.Response != "" {
		return r.Response
	}
	return r.Message
}

// Progress is the status side-channel document, overwritten in place.
// There is no trigger correlation: a single outstanding stream is assumed.
type Progress struct {
	Timestamp string       `json:"timestamp"`
	System    string       `json:"system"`
	Type      string       `json:"type"`
	Data      ProgressData `json:"data"`
}

// ProgressData is the payload of a progress update.
type ProgressData struct {
	Title      string  `json:"title"`
	Percentage float64 `json:"percentage"`
	Step       string  `json:"step"`
	Status     string  `json:"status"`
}

// SpeechTrigger is written by the extension to request a transcription.
type SpeechTrigger struct {
	Timestamp string           `json:"timestamp"`
	System    string           `json:"system,omitempty"`
	Data      SpeechRequestData `json:"data"`
}

// SpeechRequestData carries the transcription request parameters.
type SpeechRequestData struct {
	Tool      string `json:"tool"`
	AudioFile string `json:"audio_file"`
	TriggerID string `json:"trigger_id"`
}

// SpeechResponse is the transcription result written back for the extension.
type SpeechResponse struct {
	Timestamp     string `json:"timestamp"`
	TriggerID     string `json:"trigger_id"`
	Transcription string `json:"transcription"`
	Success       bool   `json:"success"`
	Error         string `json:"error,omitempty"`
	Source        string `json:"source"`
}
