package components_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/harunnryd/archivist/internal/config"
	"github.com/harunnryd/archivist/internal/daemon"
	"github.com/harunnryd/archivist/internal/daemon/components"
	"github.com/harunnryd/archivist/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const chatID = "89ecea6c-accc-4979-ac62-4c42a280073a"

// webuiStub serves just enough of the knowledge API for one archive.
type webuiStub struct {
	mu     sync.Mutex
	linked []string
}

func (s *webuiStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case r.URL.Path == "/api/v1/health":
		w.WriteHeader(http.StatusOK)
	case r.URL.Path == "/api/v1/chats/"+chatID:
		json.NewEncoder(w).Encode(map[string]string{"id": chatID, "user_id": "u1", "title": "Trip planning"})
	case strings.HasPrefix(r.URL.Path, "/api/v1/chats/"):
		w.WriteHeader(http.StatusNotFound)
	case r.URL.Path == "/api/v1/files/" && r.Method == http.MethodPost:
		json.NewEncoder(w).Encode(map[string]string{"id": "file-1"})
	case r.URL.Path == "/api/v1/knowledge/col-1" && r.Method == http.MethodGet:
		json.NewEncoder(w).Encode(map[string]interface{}{"id": "col-1", "name": "Llama", "files": []interface{}{}})
	case r.URL.Path == "/api/v1/knowledge/col-1/file/add":
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		s.linked = append(s.linked, body["file_id"])
		w.Write([]byte(`{}`))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (s *webuiStub) linkedFiles() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.linked...)
}

func TestDaemon_ArchivesTranscript(t *testing.T) {
	stub := &webuiStub{}
	srv := httptest.NewServer(stub)
	defer srv.Close()

	memory := t.TempDir()
	mapping := filepath.Join(t.TempDir(), "model_collections.json")
	require.NoError(t, os.WriteFile(mapping, []byte(`{"llama": {"id": "col-1", "name": "Llama"}}`), 0644))

	transcript := fmt.Sprintf("---\nconversation_id: %q\nmodel: \"llama\"\nuser: \"Lili\"\n---\nhello\n", chatID)
	require.NoError(t, os.WriteFile(filepath.Join(memory, chatID+".txt"), []byte(transcript), 0644))

	cfg := &config.Config{
		WebUI: config.WebUIConfig{BaseURL: srv.URL, Token: "sk-test"},
		Archive: config.ArchiveConfig{
			MemoryDir:        memory,
			CollectionsFile:  mapping,
			FilenameTemplate: "conversation_{datetime}.txt",
			Interval:         "1h",
			PerKnowledge:     true,
			MaxRetries:       3,
		},
		Reap:   config.ReapConfig{Enabled: true},
		Daemon: config.DaemonConfig{ShutdownTimeout: "2s"},
	}
	layout := store.NewLayout(memory, "", "")

	d, err := daemon.NewDaemon(cfg, layout)
	require.NoError(t, err)

	storeC := components.NewStoreComponent(layout)
	remoteC := components.NewRemoteComponent(cfg)
	d.AddComponent(storeC)
	d.AddComponent(remoteC)
	d.AddComponent(components.NewArchiverComponent(cfg, storeC, remoteC))
	d.AddComponent(components.NewReaperComponent(cfg, storeC, remoteC))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Start(ctx) }()

	archived := filepath.Join(layout.Archive, "Llama", chatID+".txt")
	assert.Eventually(t, func() bool {
		_, err := os.Stat(archived)
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)
	assert.NoFileExists(t, filepath.Join(memory, chatID+".txt"))
	assert.Equal(t, []string{"file-1"}, stub.linkedFiles())

	history, err := os.ReadFile(layout.HistoryPath())
	require.NoError(t, err)
	assert.Contains(t, string(history), "ADDED")
	assert.Contains(t, string(history), "[89ecea6c]")

	entry, ok := storeC.Index().Get(chatID)
	require.True(t, ok)
	assert.Equal(t, "col-1", entry.CollectionID)
	assert.Equal(t, "Trip planning", entry.Title)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
	}
	assert.Equal(t, daemon.StatusStopped, d.Health())
}

func TestStoreComponent_SingleInstance(t *testing.T) {
	layout := store.NewLayout(t.TempDir(), "", "")

	first := components.NewStoreComponent(layout)
	require.NoError(t, first.Init(context.Background()))
	defer first.Stop(context.Background())

	h, err := first.Health(context.Background())
	require.NoError(t, err)
	assert.True(t, h.Healthy)
	assert.NotNil(t, first.Index())
	assert.NotNil(t, first.Attempts())
	assert.NotNil(t, first.History())

	require.NoError(t, first.Stop(context.Background()))
	h, _ = first.Health(context.Background())
	assert.False(t, h.Healthy)

	second := components.NewStoreComponent(layout)
	require.NoError(t, second.Init(context.Background()))
	require.NoError(t, second.Stop(context.Background()))
}
