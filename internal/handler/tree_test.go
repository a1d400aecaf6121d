package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cleantree/internal/domain/models/tree"
	"cleantree/internal/domain/services"
	"cleantree/internal/event"
	"cleantree/internal/handler/sse"
	"cleantree/internal/repository/memory"
	"cleantree/internal/service"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func newMux(t *testing.T) (*http.ServeMux, services.TreeService) {
	t.Helper()
	store := memory.NewStore()
	svc := service.NewTreeService(memory.NewTreeRepository(store), memory.NewTransactionManager(store), nil, service.Simulation{}, quiet)
	require.NoError(t, svc.Seed(context.Background(), "demo", []tree.NodeData{
		{ID: "1", Children: []tree.NodeData{{ID: "1.1"}, {ID: "1.2"}}},
		{ID: "2"},
		{ID: "3"},
	}))

	mux := http.NewServeMux()
	NewTreeHandler(svc, quiet).Register(mux)
	NewFeedHandler(svc, &sse.Config{KeepAliveInterval: time.Hour, BufferSize: 8}, []string{"*"}, quiet).Register(mux)
	return mux, svc
}

func do(t *testing.T, mux http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(method, path, reader))
	return rec
}

func decodeIDs(t *testing.T, rec *httptest.ResponseRecorder) []string {
	t.Helper()
	var items []tree.Node
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	return tree.IDs(items)
}

func TestLoadChildren(t *testing.T) {
	mux, _ := newMux(t)

	rec := do(t, mux, http.MethodGet, "/api/trees/demo/branches/root/children", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"1", "2", "3"}, decodeIDs(t, rec))

	rec = do(t, mux, http.MethodGet, "/api/trees/demo/branches/1/children", "")
	assert.Equal(t, []string{"1.1", "1.2"}, decodeIDs(t, rec))

	rec = do(t, mux, http.MethodGet, "/api/trees/demo/branches/missing/children", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}

func TestMoveItem(t *testing.T) {
	mux, _ := newMux(t)

	rec := do(t, mux, http.MethodPost, "/api/trees/demo/moves",
		`{"itemId":"3","sourceBranchId":null,"targetBranchId":"1","targetIndex":0}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var result tree.MoveResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, []string{"1", "2"}, tree.IDs(result.SourceBranchItems))
	assert.Equal(t, []string{"3", "1.1", "1.2"}, tree.IDs(result.TargetBranchItems))

	rec = do(t, mux, http.MethodPost, "/api/trees/demo/moves",
		`{"itemId":"1","sourceBranchId":null,"targetBranchId":"1.1","targetIndex":0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, mux, http.MethodPost, "/api/trees/demo/moves", `{"itemId":"1","bogus":true}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateAndDelete(t *testing.T) {
	mux, _ := newMux(t)

	rec := do(t, mux, http.MethodPost, "/api/trees/demo/branches/2/items?folder=true", `{"id":"2.1"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, []string{"2.1"}, decodeIDs(t, rec))

	rec = do(t, mux, http.MethodPost, "/api/trees/demo/branches/root/items", `{"id":"2.1"}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	var problem map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.Equal(t, "2.1", problem["resource_id"])

	rec = do(t, mux, http.MethodDelete, "/api/trees/demo/branches/root/items/1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, mux, http.MethodDelete, "/api/trees/demo/branches/root/items/1?folder=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"2", "3"}, decodeIDs(t, rec))
}

func TestSeedGetAndOpen(t *testing.T) {
	mux, _ := newMux(t)

	rec := do(t, mux, http.MethodPut, "/api/trees/other", `[{"id":"a","children":[{"id":"b"}]}]`)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, mux, http.MethodPut, "/api/trees/other/items/a/open", `{"isOpen":true}`)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, mux, http.MethodGet, "/api/trees/other", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var data []tree.NodeData
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &data))
	require.Len(t, data, 1)
	assert.True(t, data[0].IsOpen)
	assert.True(t, data[0].IsFolder)
	assert.Equal(t, "b", data[0].Children[0].ID)

	rec = do(t, mux, http.MethodGet, "/api/trees", "")
	assert.JSONEq(t, `{"trees":["demo","other"]}`, rec.Body.String())

	rec = do(t, mux, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStreamEvents(t *testing.T) {
	mux, svc := newMux(t)
	server := httptest.NewServer(mux)
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/api/trees/demo/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.NoError(t, svc.SetOpenState(context.Background(), "demo", "1", true))

	scanner := bufio.NewScanner(resp.Body)
	var lines []string
	for scanner.Scan() && scanner.Text() != "" {
		lines = append(lines, scanner.Text())
	}
	require.Len(t, lines, 3)
	assert.Equal(t, "event: open-state-changed", lines[0])
	assert.Equal(t, "id: 1", lines[1])
	assert.JSONEq(t, `{"branchId":null,"itemId":"1","isOpen":true}`, strings.TrimPrefix(lines[2], "data: "))
}

func TestStreamFrames(t *testing.T) {
	mux, svc := newMux(t)
	server := httptest.NewServer(mux)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/trees/demo/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	_, err = svc.MoveItem(context.Background(), "demo", tree.MoveArgs{ItemID: "2", TargetIndex: 0})
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	kind, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, kind)

	seq, e, err := event.DecodeFrame(data)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), seq)
	reconcile, ok := e.(event.BranchReconcile)
	require.True(t, ok)
	assert.Equal(t, tree.RootBranch, reconcile.BranchID)
	assert.Equal(t, []string{"2", "1", "3"}, tree.IDs(reconcile.Items))
}
