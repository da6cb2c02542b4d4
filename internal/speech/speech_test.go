package speech

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/HexSleeves/Review-Gate/internal/docstore"
	"github.com/HexSleeves/Review-Gate/internal/rendezvous"
	"github.com/HexSleeves/Review-Gate/pkg/wire"
)

type fakeTranscriber struct {
	text string
	err  error
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audioPath string) (string, error) {
	return f.text, f.err
}

type SpeechSuite struct {
	suite.Suite
	ctx  context.Context
	docs *docstore.Store
	dir  string
}

func (s *SpeechSuite) SetupTest() {
	s.ctx = context.Background()
	s.dir = s.T().TempDir()
	s.docs = docstore.New(s.dir)
}

func TestSpeechSuite(t *testing.T) {
	suite.Run(t, new(SpeechSuite))
}

func (s *SpeechSuite) writeTrigger(triggerID, audioFile, tool string) string {
	name := "review_gate_speech_trigger_" + triggerID + ".json"
	s.Require().NoError(s.docs.Write(name, wire.SpeechTrigger{
		Timestamp: wire.Now(),
		System:    wire.SystemTag,
		Data:      wire.SpeechRequestData{Tool: tool, AudioFile: audioFile, TriggerID: triggerID},
	}))
	return name
}

func (s *SpeechSuite) readResponse(triggerID string) wire.SpeechResponse {
	var resp wire.SpeechResponse
	s.Require().NoError(s.docs.ReadJSON(rendezvous.SpeechResponseFile(triggerID), &resp))
	return resp
}

func (s *SpeechSuite) TestHandleTranscribes() {
	audio := filepath.Join(s.dir, "review_gate_audio_1.wav")
	s.Require().NoError(os.WriteFile(audio, []byte("RIFF"), 0o644))

	m := NewMonitor(s.docs, Available(&fakeTranscriber{text: "hello there"}))
	m.audioSettle = 0
	m.handle(s.ctx, wire.SpeechRequestData{Tool: "speech_to_text", AudioFile: audio, TriggerID: "sp-1"})

	resp := s.readResponse("sp-1")
	s.True(resp.Success)
	s.Equal("hello there", resp.Transcription)
	s.Equal("review_gate_whisper", resp.Source)

	// The audio file is deleted once answered.
	_, err := os.Stat(audio)
	s.True(os.IsNotExist(err))
}

func (s *SpeechSuite) TestHandleUnavailable() {
	m := NewMonitor(s.docs, Unavailable("model load failed"))
	m.handle(s.ctx, wire.SpeechRequestData{TriggerID: "sp-2", AudioFile: "/nope.wav"})

	resp := s.readResponse("sp-2")
	s.False(resp.Success)
	s.Empty(resp.Transcription)
	s.Contains(resp.Error, "model load failed")
}

func (s *SpeechSuite) TestHandleMissingAudio() {
	m := NewMonitor(s.docs, Available(&fakeTranscriber{text: "unused"}))
	m.handle(s.ctx, wire.SpeechRequestData{TriggerID: "sp-3", AudioFile: filepath.Join(s.dir, "gone.wav")})

	resp := s.readResponse("sp-3")
	s.False(resp.Success)
	s.Equal("Audio file not found", resp.Error)
}

func (s *SpeechSuite) TestHandleTranscriberError() {
	audio := filepath.Join(s.dir, "review_gate_audio_2.wav")
	s.Require().NoError(os.WriteFile(audio, []byte("RIFF"), 0o644))

	m := NewMonitor(s.docs, Available(&fakeTranscriber{err: errors.New("decode failure")}))
	m.handle(s.ctx, wire.SpeechRequestData{TriggerID: "sp-4", AudioFile: audio})

	resp := s.readResponse("sp-4")
	s.False(resp.Success)
	s.Equal("decode failure", resp.Error)
}

func (s *SpeechSuite) TestScanFiltersTriggers() {
	audio := filepath.Join(s.dir, "review_gate_audio_3.wav")
	s.Require().NoError(os.WriteFile(audio, []byte("RIFF"), 0o644))

	valid := s.writeTrigger("sp-5", audio, "speech_to_text")
	wrongTool := s.writeTrigger("sp-6", audio, "something_else")
	malformed := "review_gate_speech_trigger_bad.json"
	s.Require().NoError(s.docs.WriteRaw(malformed, []byte("{nope")))

	m := NewMonitor(s.docs, Available(&fakeTranscriber{text: "ok"}))
	requests := make(chan wire.SpeechRequestData, 4)
	m.scan(s.ctx, requests)

	s.Require().Len(requests, 1)
	req := <-requests
	s.Equal("sp-5", req.TriggerID)

	// All trigger files are single-use regardless of content.
	s.False(s.docs.Exists(valid))
	s.False(s.docs.Exists(wrongTool))
	s.False(s.docs.Exists(malformed))
}

func (s *SpeechSuite) TestAvailability() {
	s.True(Available(&fakeTranscriber{}).OK())
	s.False(Unavailable("no model").OK())
	s.Equal("no model", Unavailable("no model").Reason)
}

func (s *SpeechSuite) TestRunProcessesEndToEnd() {
	audio := filepath.Join(s.dir, "review_gate_audio_4.wav")
	s.Require().NoError(os.WriteFile(audio, []byte("RIFF"), 0o644))
	s.writeTrigger("sp-7", audio, "speech_to_text")

	m := NewMonitor(s.docs, Available(&fakeTranscriber{text: "end to end"}))
	m.pollEach = 20 * time.Millisecond
	m.audioSettle = 0

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	s.Eventually(func() bool {
		return s.docs.Exists(rendezvous.SpeechResponseFile("sp-7"))
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		s.NoError(err)
	case <-time.After(2 * time.Second):
		s.Fail("monitor did not stop")
	}

	resp := s.readResponse("sp-7")
	s.True(resp.Success)
	s.Equal("end to end", resp.Transcription)
}
