package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	audiomock "github.com/s4nfs/mediscribe/pkg/audio/mock"
	"github.com/s4nfs/mediscribe/pkg/provider/stt"
	sttmock "github.com/s4nfs/mediscribe/pkg/provider/stt/mock"
	storemock "github.com/s4nfs/mediscribe/pkg/store/mock"
)

type fixture struct {
	sess    *sttmock.Session
	prov    *sttmock.Provider
	capture *audiomock.Capture
	records *storemock.Store
	ctrl    *Controller
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	f := &fixture{
		sess:    sttmock.NewSession(),
		capture: audiomock.NewCapture(),
		records: storemock.New(),
	}
	f.prov = &sttmock.Provider{Session: f.sess}
	if cfg.UserID == "" {
		cfg.UserID = "user-1"
	}
	if cfg.PatientID == "" {
		cfg.PatientID = "pat-1"
	}
	if cfg.ConsultationType == "" {
		cfg.ConsultationType = "general-consult"
	}
	f.ctrl = New(cfg, f.prov, f.capture, f.records)
	return f
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if cond() {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %s", what)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func finalResult(text string) stt.Result {
	return stt.Result{
		Utterances: []stt.Utterance{{Speaker: 0, Text: text}},
		IsFinal:    true,
	}
}

func TestStartConnectFailure(t *testing.T) {
	f := newFixture(t, Config{})
	f.prov.StartLiveErr = errors.New("dial refused")

	err := f.ctrl.Start(context.Background())
	if err == nil {
		t.Fatal("expected error from Start")
	}
	if got := f.ctrl.State(); got != StateIdle {
		t.Errorf("state = %s, want idle", got)
	}
	if f.capture.StartCalls != 0 {
		t.Errorf("capture started despite connect failure")
	}
	list, err := f.records.List(context.Background(), "user-1", 0, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("record created for a session that never connected")
	}
}

func TestCaptureWaitsForStreamReady(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	if err := f.ctrl.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := f.ctrl.State(); got != StateConnecting {
		t.Errorf("state = %s, want connecting", got)
	}
	if f.capture.StartCalls != 0 {
		t.Error("capture started before the stream was ready")
	}

	f.sess.Emit(stt.Opened{})
	waitFor(t, "recording state", func() bool { return f.ctrl.State() == StateRecording })
	if f.capture.StartCalls != 1 {
		t.Errorf("capture StartCalls = %d, want 1", f.capture.StartCalls)
	}
}

func TestRecordingFlow(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	if err := f.ctrl.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	f.sess.Emit(stt.Opened{})
	waitFor(t, "recording state", func() bool { return f.ctrl.State() == StateRecording })

	f.capture.EmitChunk([]byte{1, 2, 3})
	waitFor(t, "chunk forwarded", func() bool { return len(f.sess.Sent()) == 1 })

	f.sess.Emit(finalResult("patient reports chest pain"))
	waitFor(t, "transcript applied", func() bool { return f.ctrl.FinalText() != "" })

	if err := f.ctrl.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if got := f.ctrl.State(); got != StateStopped {
		t.Errorf("state = %s, want stopped", got)
	}
	if f.sess.CloseCalls != 1 {
		t.Errorf("session CloseCalls = %d, want 1", f.sess.CloseCalls)
	}
	if f.capture.StopCalls != 1 {
		t.Errorf("capture StopCalls = %d, want 1", f.capture.StopCalls)
	}

	id := f.ctrl.RecordID()
	if id == "" {
		t.Fatal("no consultation record created")
	}
	rec, err := f.records.Get(ctx, "user-1", id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Status != "completed" {
		t.Errorf("status = %q, want completed", rec.Status)
	}
	if want := "[Speaker 0] patient reports chest pain"; rec.Transcript != want {
		t.Errorf("transcript = %q, want %q", rec.Transcript, want)
	}
}

func TestResultsAfterStopStillLand(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	if err := f.ctrl.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	f.sess.Emit(stt.Opened{})
	waitFor(t, "recording state", func() bool { return f.ctrl.State() == StateRecording })

	// A last final that was buffered upstream arrives between the close
	// request and the terminal event. It must be part of the saved record.
	f.sess.Emit(finalResult("will follow up in two weeks"))
	if err := f.ctrl.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	rec, err := f.records.Get(ctx, "user-1", f.ctrl.RecordID())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !strings.Contains(rec.Transcript, "follow up in two weeks") {
		t.Errorf("transcript %q missing final heard during shutdown", rec.Transcript)
	}
}

func TestRecordCreatedOnStreamReady(t *testing.T) {
	f := newFixture(t, Config{AutosaveInterval: 20 * time.Millisecond})
	ctx := context.Background()

	if err := f.ctrl.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if id := f.ctrl.RecordID(); id != "" {
		t.Errorf("record %q created before the stream was ready", id)
	}

	f.sess.Emit(stt.Opened{})
	waitFor(t, "record created", func() bool { return f.ctrl.RecordID() != "" })

	rec, err := f.records.Get(ctx, "user-1", f.ctrl.RecordID())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Status != "in-progress" {
		t.Errorf("status = %q, want in-progress", rec.Status)
	}

	// No speech yet: autosave ticks must not write empty snapshots.
	time.Sleep(60 * time.Millisecond)
	if got := len(f.records.Saves()); got != 0 {
		t.Errorf("SaveCalls = %d before any transcript, want 0", got)
	}

	f.sess.Emit(finalResult("presenting with persistent cough"))
	waitFor(t, "autosave", func() bool { return len(f.records.Saves()) > 0 })

	save := f.records.Saves()[0]
	if !strings.Contains(save.Snap.Transcript, "persistent cough") {
		t.Errorf("saved transcript = %q", save.Snap.Transcript)
	}

	if err := f.ctrl.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestSnapshotsCarryPendingInterim(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	if err := f.ctrl.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	f.sess.Emit(stt.Opened{})
	f.sess.Emit(finalResult("temperature is normal"))
	f.sess.Emit(stt.Result{Utterances: []stt.Utterance{{Speaker: 1, Text: "but my throat"}}})
	waitFor(t, "interim applied", func() bool {
		return strings.Contains(f.ctrl.DisplayText(), "but my throat")
	})

	// Saves persist the display transcript, interim line included.
	if err := f.ctrl.SaveNow(ctx); err != nil {
		t.Fatalf("SaveNow: %v", err)
	}
	save := f.records.Saves()[0]
	if !strings.Contains(save.Snap.Transcript, "[Speaker 1] but my throat") {
		t.Errorf("saved transcript = %q, want pending interim included", save.Snap.Transcript)
	}

	if err := f.ctrl.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	rec, err := f.records.Get(ctx, "user-1", f.ctrl.RecordID())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !strings.Contains(rec.Transcript, "but my throat") {
		t.Errorf("final transcript = %q, want interim retained", rec.Transcript)
	}
}

func TestSaveNowSkipsUnchanged(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	if err := f.ctrl.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	f.sess.Emit(stt.Opened{})
	f.sess.Emit(finalResult("blood pressure one thirty over eighty"))
	waitFor(t, "transcript applied", func() bool { return f.ctrl.FinalText() != "" })

	if err := f.ctrl.SaveNow(ctx); err != nil {
		t.Fatalf("SaveNow: %v", err)
	}
	if err := f.ctrl.SaveNow(ctx); err != nil {
		t.Fatalf("SaveNow: %v", err)
	}
	if got := len(f.records.Saves()); got != 1 {
		t.Errorf("SaveCalls = %d, want 1 (unchanged snapshot must be skipped)", got)
	}

	if err := f.ctrl.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestResumeSeedsTranscript(t *testing.T) {
	records := storemock.New()
	ctx := context.Background()
	id, err := records.Create(ctx, "user-1", "pat-1", "general-consult")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	sess := sttmock.NewSession()
	ctrl := New(Config{
		UserID:           "user-1",
		PatientID:        "pat-1",
		ConsultationType: "general-consult",
		ResumeID:         id,
		ResumeTranscript: "[Speaker 0] symptoms began last Tuesday",
		ResumeDuration:   95,
	}, &sttmock.Provider{Session: sess}, audiomock.NewCapture(), records)

	if got := ctrl.ElapsedSeconds(); got != 95 {
		t.Errorf("ElapsedSeconds = %d, want 95", got)
	}
	if !strings.Contains(ctrl.FinalText(), "last Tuesday") {
		t.Errorf("seed missing from transcript: %q", ctrl.FinalText())
	}

	if err := ctrl.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	sess.Emit(stt.Opened{})
	sess.Emit(finalResult("now also reporting headaches"))
	waitFor(t, "second line applied", func() bool {
		return strings.Contains(ctrl.FinalText(), "headaches")
	})
	if err := ctrl.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if got := ctrl.RecordID(); got != id {
		t.Errorf("RecordID = %q, want resumed %q", got, id)
	}
	rec, err := records.Get(ctx, "user-1", id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !strings.Contains(rec.Transcript, "last Tuesday") || !strings.Contains(rec.Transcript, "headaches") {
		t.Errorf("transcript = %q, want seeded and new lines", rec.Transcript)
	}
	if strings.Contains(rec.Transcript, "[Speaker 0] [Speaker 0]") {
		t.Errorf("transcript = %q, speaker label applied twice on resume", rec.Transcript)
	}
	if rec.DurationSeconds < 95 {
		t.Errorf("DurationSeconds = %d, want >= 95", rec.DurationSeconds)
	}
}

func TestPauseAndResume(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	if err := f.ctrl.Pause(); !errors.Is(err, ErrNotRecording) {
		t.Errorf("Pause before start = %v, want ErrNotRecording", err)
	}

	if err := f.ctrl.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	f.sess.Emit(stt.Opened{})
	waitFor(t, "recording state", func() bool { return f.ctrl.State() == StateRecording })

	if err := f.ctrl.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if got := f.ctrl.State(); got != StatePaused {
		t.Errorf("state = %s, want paused", got)
	}
	if f.capture.PauseCalls != 1 {
		t.Errorf("capture PauseCalls = %d, want 1", f.capture.PauseCalls)
	}

	// Chunks that leak from the device while paused are discarded.
	f.capture.EmitChunk([]byte{9})
	time.Sleep(30 * time.Millisecond)
	if got := len(f.sess.Sent()); got != 0 {
		t.Errorf("chunks forwarded while paused: %d", got)
	}

	if err := f.ctrl.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if got := f.ctrl.State(); got != StateRecording {
		t.Errorf("state = %s, want recording", got)
	}
	f.capture.EmitChunk([]byte{7})
	waitFor(t, "chunk forwarded after resume", func() bool { return len(f.sess.Sent()) == 1 })

	if err := f.ctrl.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestStopIdempotent(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	if err := f.ctrl.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	f.sess.Emit(stt.Opened{})
	f.sess.Emit(finalResult("short visit"))
	waitFor(t, "transcript applied", func() bool { return f.ctrl.FinalText() != "" })

	if err := f.ctrl.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := f.ctrl.Stop(ctx); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	if f.sess.CloseCalls != 1 {
		t.Errorf("session CloseCalls = %d, want 1", f.sess.CloseCalls)
	}
	if f.capture.StopCalls != 1 {
		t.Errorf("capture StopCalls = %d, want 1", f.capture.StopCalls)
	}
}

// Exercised under the race detector: Stop must not observe the session
// handle while Start is still assigning it.
func TestStopDuringStart(t *testing.T) {
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		f := newFixture(t, Config{})

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			f.ctrl.Start(ctx)
		}()
		go func() {
			defer wg.Done()
			if err := f.ctrl.Stop(ctx); err != nil {
				t.Errorf("Stop: %v", err)
			}
		}()
		wg.Wait()

		if st := f.ctrl.State(); st != StateStopped {
			t.Errorf("state after concurrent start/stop = %s", st)
		}
	}
}

func TestEmptySessionCompletesEmptyRecord(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	if err := f.ctrl.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	f.sess.Emit(stt.Opened{})
	waitFor(t, "record created", func() bool { return f.ctrl.RecordID() != "" })

	if err := f.ctrl.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	rec, err := f.records.Get(ctx, "user-1", f.ctrl.RecordID())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Status != "completed" {
		t.Errorf("status = %q, want completed", rec.Status)
	}
	if rec.Transcript != "" {
		t.Errorf("transcript = %q, want empty", rec.Transcript)
	}
}

func TestStreamFailureMovesToErrored(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	if err := f.ctrl.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	f.sess.Emit(stt.Opened{})
	waitFor(t, "recording state", func() bool { return f.ctrl.State() == StateRecording })

	f.sess.EmitClosed(1011, "upstream gone")
	waitFor(t, "errored state", func() bool { return f.ctrl.State() == StateErrored })
	if f.ctrl.Err() == nil {
		t.Error("Err() is nil after abnormal close")
	}
}
