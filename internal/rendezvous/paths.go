package rendezvous

import "fmt"

// Well-known document names in the shared directory. The extension on the
// other side watches for these by name.
const (
	TriggerFile  = "review_gate_trigger.json"
	ProgressFile = "review_gate_progress.json"

	// Response files left by older extension builds use the generic names.
	GenericResponseFile    = "review_gate_response.json"
	GenericMCPResponseFile = "mcp_response.json"

	ResponseGlob    = "review_gate_response_*.json"
	MCPResponseGlob = "mcp_response_*.json"
	AudioGlob       = "review_gate_audio_*.wav"

	SpeechTriggerGlob = "review_gate_speech_trigger_*.json"

	backupTriggers = 3
)

// BackupTriggerFile returns the nth numbered backup trigger name.
func BackupTriggerFile(n int) string {
	return fmt.Sprintf("review_gate_trigger_%d.json", n)
}

// AckFile returns the acknowledgment document name for a trigger.
func AckFile(triggerID string) string {
	return fmt.Sprintf("review_gate_ack_%s.json", triggerID)
}

// SpeechResponseFile returns the speech response name for a trigger.
func SpeechResponseFile(triggerID string) string {
	return fmt.Sprintf("review_gate_speech_response_%s.json", triggerID)
}

// responseCandidates returns the ordered response names checked for one
// trigger: the trigger-specific names first, then the generic fallbacks
// kept for older producers.
func responseCandidates(triggerID string) []string {
	return []string{
		fmt.Sprintf("review_gate_response_%s.json", triggerID),
		GenericResponseFile,
		fmt.Sprintf("mcp_response_%s.json", triggerID),
		GenericMCPResponseFile,
	}
}
