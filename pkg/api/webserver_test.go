package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chenBenjamin97/pose-action/pkg/notify"
	"github.com/chenBenjamin97/pose-action/pkg/pose"
	"github.com/chenBenjamin97/pose-action/pkg/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakePipeline struct{}

func (fakePipeline) Stats() pose.Stats {
	return pose.Stats{SessionID: "s-1", Frames: 12, WindowSize: 30, WindowFill: 12, WatchedLabel: "jab", DebounceState: "idle"}
}

type fakeRunner struct {
	accept bool
	frames []pose.Frame
}

func (r *fakeRunner) Submit(frame pose.Frame) bool {
	if !r.accept {
		return false
	}
	r.frames = append(r.frames, frame)
	return true
}

func (r *fakeRunner) Stats() pose.RunnerStats {
	return pose.RunnerStats{Submitted: uint64(len(r.frames)), Processed: uint64(len(r.frames))}
}

type fakeJournal struct {
	actions []store.Action
	err     error
	limit   int
}

func (j *fakeJournal) RecentActions(_ context.Context, limit int) ([]store.Action, error) {
	j.limit = limit
	return j.actions, j.err
}

func (j *fakeJournal) CountActions(context.Context) (map[string]int, error) {
	return map[string]int{"jab": len(j.actions)}, j.err
}

func do(t *testing.T, r http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestStatus(t *testing.T) {
	hub := notify.NewHub(notify.HubOptions{})
	defer hub.Close()
	r := SetRouter(Deps{Pipeline: fakePipeline{}, Runner: &fakeRunner{}, Hub: hub})

	w := do(t, r, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp statusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "s-1", resp.Pipeline.SessionID)
	assert.Equal(t, 12, resp.Pipeline.WindowFill)
	require.NotNil(t, resp.Hub)
	assert.Equal(t, 0, resp.Hub.Clients)
}

func TestActions(t *testing.T) {
	at := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
	journal := &fakeJournal{actions: []store.Action{{ID: "a", SessionID: "s-1", Label: "jab", Confidence: 0.97, DetectedAt: at}}}
	r := SetRouter(Deps{Pipeline: fakePipeline{}, Runner: &fakeRunner{}, Journal: journal})

	w := do(t, r, http.MethodGet, "/api/actions?limit=10", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 10, journal.limit)

	var resp actionsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Actions, 1)
	assert.Equal(t, "a", resp.Actions[0].ID)
	assert.Equal(t, 1, resp.Counts["jab"])

	w = do(t, r, http.MethodGet, "/api/actions?limit=100000", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, maxActionsLimit, journal.limit)

	w = do(t, r, http.MethodGet, "/api/actions?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	journal.err = errors.New("disk I/O error")
	w = do(t, r, http.MethodGet, "/api/actions", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestActionsWithoutJournal(t *testing.T) {
	r := SetRouter(Deps{Pipeline: fakePipeline{}, Runner: &fakeRunner{}})

	w := do(t, r, http.MethodGet, "/api/actions", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "disabled")
}

func TestSubmitKeypoints(t *testing.T) {
	runner := &fakeRunner{accept: true}
	r := SetRouter(Deps{Pipeline: fakePipeline{}, Runner: runner})

	body := `{"bodies":[{"keypoints":{"left_wrist":{"x":0.4,"y":0.6,"confidence":0.9},"nose":{"x":0.5,"y":0.9,"confidence":0.8}}}]}`
	w := do(t, r, http.MethodPost, "/api/keypoints", body)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.JSONEq(t, `{"seq":1}`, w.Body.String())

	require.Len(t, runner.frames, 1)
	bodies, ok := runner.frames[0].Payload.([]pose.KeypointFrame)
	require.True(t, ok)
	require.Len(t, bodies, 1)
	assert.Equal(t, pose.Keypoint{X: 0.4, Y: 0.6, Confidence: 0.9}, bodies[0].Keypoints[pose.LeftWrist])

	w = do(t, r, http.MethodPost, "/api/keypoints", `{"bodies":[]}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.JSONEq(t, `{"seq":2}`, w.Body.String())
}

func TestSubmitKeypointsRejected(t *testing.T) {
	r := SetRouter(Deps{Pipeline: fakePipeline{}, Runner: &fakeRunner{accept: true}})

	w := do(t, r, http.MethodPost, "/api/keypoints", `{"bodies":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodPost, "/api/keypoints", `{"bodies":[{"keypoints":{"nose":{"x":1.5,"y":0.2,"confidence":0.9}}}]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "nose")

	busy := SetRouter(Deps{Pipeline: fakePipeline{}, Runner: &fakeRunner{accept: false}})
	w = do(t, busy, http.MethodPost, "/api/keypoints", `{"bodies":[]}`)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestRecordings(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.jsonl"), []byte("{}\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.jsonl"), []byte("{}\n"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0755))

	r := SetRouter(Deps{Pipeline: fakePipeline{}, Runner: &fakeRunner{}, RecordingsDir: dir})
	w := do(t, r, http.MethodGet, "/api/recordings", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `["a.jsonl","b.jsonl"]`, w.Body.String())

	r = SetRouter(Deps{Pipeline: fakePipeline{}, Runner: &fakeRunner{}, RecordingsDir: filepath.Join(dir, "missing")})
	w = do(t, r, http.MethodGet, "/api/recordings", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestWebsocketRouteOnlyWithHub(t *testing.T) {
	r := SetRouter(Deps{Pipeline: fakePipeline{}, Runner: &fakeRunner{}})
	w := do(t, r, http.MethodGet, "/api/ws", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
