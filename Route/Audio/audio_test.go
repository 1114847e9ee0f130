package Audio

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sashabaranov/go-openai"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul977/whimsical-idea-keeper/database"
	"github.com/abdul977/whimsical-idea-keeper/service/Audio"
	"github.com/abdul977/whimsical-idea-keeper/service/Outbound"
	"github.com/abdul977/whimsical-idea-keeper/service/Reasoning"
)

// recordingProcessor 记录收到的笔记，再交给本地处理器
type recordingProcessor struct {
	notes []*database.Note
	inner Reasoning.Processor
}

func (p *recordingProcessor) Process(ctx context.Context, note *database.Note, variant database.ProcessingVariant) (*Reasoning.Result, error) {
	p.notes = append(p.notes, note)
	return p.inner.Process(ctx, note, variant)
}

func (p *recordingProcessor) Name() string { return "recording" }

func TestTranscribeWithVariantKeepsAudioSource(t *testing.T) {
	gin.SetMode(gin.TestMode)

	whisper := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"call the plumber"}`))
	}))
	defer whisper.Close()

	config := openai.DefaultConfig("test-key")
	config.BaseURL = whisper.URL + "/v1"
	client := openai.NewClientWithConfig(config)

	storage := Audio.NewStorage(afero.NewMemMapFs(), "http://localhost:8000")
	key, err := storage.Put(context.Background(), strings.NewReader("mp3-bytes"), ".mp3")
	require.NoError(t, err)
	audioURL := storage.URL(key)

	processor := &recordingProcessor{inner: Reasoning.NewLocalProcessor()}
	h := NewHandler(storage, Audio.NewRecorderRegistry(storage, nil),
		Audio.NewTranscriber(client, "", storage, Outbound.New(time.Second), nil), processor, nil)
	r := gin.New()
	h.RegisterRoutes(r.Group("/api"))

	payload, err := json.Marshal(map[string]string{"audio_url": audioURL, "variant": "summary"})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/transcriptions", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	require.Len(t, processor.notes, 1)
	note := processor.notes[0]
	assert.Equal(t, "Transcription", note.Title)
	require.Len(t, note.Entries, 1)
	assert.Equal(t, "call the plumber", note.Entries[0].Content)
	assert.Equal(t, audioURL, note.Entries[0].AudioURL)
	assert.Contains(t, Reasoning.CombineEntries(note.Entries), "[Audio Source: "+audioURL+"]")

	var body struct {
		Data struct {
			Text      string            `json:"text"`
			Processed *Reasoning.Result `json:"processed"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "call the plumber", body.Data.Text)
	require.NotNil(t, body.Data.Processed)
	assert.Equal(t, database.VariantSummary, body.Data.Processed.Variant)
}
