package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/appforge/appforge/internal/agent"
	"github.com/appforge/appforge/internal/chat"
	"github.com/appforge/appforge/internal/common/logger"
	"github.com/appforge/appforge/internal/project/builder"
	"github.com/appforge/appforge/internal/project/models"
	"github.com/appforge/appforge/internal/project/runner"
	"github.com/appforge/appforge/internal/project/store"
)

func setupTestRouter(t *testing.T, scripted *agent.Scripted) (*gin.Engine, *store.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log, err := logger.NewLogger(logger.LoggingConfig{Level: "error", Format: "json", OutputPath: "stdout"})
	require.NoError(t, err)

	st, err := store.NewStore(t.TempDir(), nil, log)
	require.NoError(t, err)
	sup := runner.NewSupervisor(st, 6001, 100*time.Millisecond, time.Second, log)
	b := builder.NewBuilder(st, sup, time.Minute, log)
	coordinator := chat.NewCoordinator(chat.NewMemoryRepository(), st, scripted, nil, log)

	router := gin.New()
	SetupRoutes(router.Group("/api"), coordinator, st, b, sup, log)
	return router, st
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func seedProject(t *testing.T, st *store.Store) *models.Project {
	t.Helper()
	proj, err := st.CreateOrUpdate(context.Background(), []store.FileInput{
		{Path: "index.js", Content: "console.log(1)", Language: "javascript"},
	}, "seed app", "")
	require.NoError(t, err)
	return proj
}

func TestChat_CreatesProject(t *testing.T) {
	scripted := &agent.Scripted{Responses: []string{
		"Done.\n\n```javascript:index.js\nconsole.log('hi');\n```\n",
	}}
	router, _ := setupTestRouter(t, scripted)

	w := doJSON(t, router, http.MethodPost, "/api/chat", ChatRequest{Message: "build an app"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp ChatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.ConversationID)
	assert.Equal(t, "Done.", resp.Message)
	assert.False(t, resp.ShouldUpdate)
	require.NotNil(t, resp.Project)
	assert.Equal(t, "javascript", resp.Project.Language)
}

func TestChat_MissingMessage(t *testing.T) {
	router, _ := setupTestRouter(t, &agent.Scripted{})

	w := doJSON(t, router, http.MethodPost, "/api/chat", map[string]string{"conversationId": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["error"])
}

func TestChat_UnknownConversation(t *testing.T) {
	router, _ := setupTestRouter(t, &agent.Scripted{})

	w := doJSON(t, router, http.MethodPost, "/api/chat", ChatRequest{Message: "hi", ConversationID: "missing"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestConversationLifecycle(t *testing.T) {
	router, _ := setupTestRouter(t, &agent.Scripted{})

	w := doJSON(t, router, http.MethodPost, "/api/conversations", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	var conv chat.Conversation
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &conv))
	require.NotEmpty(t, conv.ID)

	w = doJSON(t, router, http.MethodGet, "/api/conversations/"+conv.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/conversations", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []chat.Conversation
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	w = doJSON(t, router, http.MethodGet, "/api/conversations/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListAndGetProjects(t *testing.T) {
	router, st := setupTestRouter(t, &agent.Scripted{})
	proj := seedProject(t, st)

	w := doJSON(t, router, http.MethodGet, "/api/projects", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []models.Project
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, proj.ID, list[0].ID)

	w = doJSON(t, router, http.MethodGet, "/api/projects/"+proj.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/projects/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestProjectFiles(t *testing.T) {
	router, st := setupTestRouter(t, &agent.Scripted{})
	proj := seedProject(t, st)

	w := doJSON(t, router, http.MethodGet, "/api/projects/"+proj.ID+"/files/index.js", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var file FileResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &file))
	assert.True(t, file.Success)
	assert.Equal(t, "console.log(1)", file.Content)

	w = doJSON(t, router, http.MethodPut, "/api/projects/"+proj.ID+"/files/index.js",
		UpdateFileRequest{Content: "console.log(2)"})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/projects/"+proj.ID+"/files/index.js", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &file))
	assert.Equal(t, "console.log(2)", file.Content)

	w = doJSON(t, router, http.MethodGet, "/api/projects/"+proj.ID+"/files/missing.js", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Traversal attempts are rejected, not resolved.
	w = doJSON(t, router, http.MethodGet, "/api/projects/"+proj.ID+"/files/../secret", nil)
	assert.NotEqual(t, http.StatusOK, w.Code)
}

func TestBuildProject_NoManifest(t *testing.T) {
	router, st := setupTestRouter(t, &agent.Scripted{})
	proj := seedProject(t, st)

	w := doJSON(t, router, http.MethodPost, "/api/projects/"+proj.ID+"/build", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success  bool             `json:"success"`
		Output   string           `json:"output"`
		Projects []models.Project `json:"projects"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Contains(t, resp.Output, "nothing to install")
	require.Len(t, resp.Projects, 1)
	assert.Equal(t, models.StatusCreated, resp.Projects[0].Status)
}

func TestStopProject_Idle(t *testing.T) {
	router, st := setupTestRouter(t, &agent.Scripted{})
	proj := seedProject(t, st)

	w := doJSON(t, router, http.MethodPost, "/api/projects/"+proj.ID+"/stop", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success  bool             `json:"success"`
		Projects []models.Project `json:"projects"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	require.Len(t, resp.Projects, 1)
	assert.Equal(t, models.StatusStopped, resp.Projects[0].Status)
}

func TestDeleteProject(t *testing.T) {
	router, st := setupTestRouter(t, &agent.Scripted{})
	proj := seedProject(t, st)

	w := doJSON(t, router, http.MethodDelete, "/api/projects/"+proj.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success  bool             `json:"success"`
		Projects []models.Project `json:"projects"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Empty(t, resp.Projects)
	assert.Empty(t, st.List())

	w = doJSON(t, router, http.MethodDelete, "/api/projects/"+proj.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRunProject_Unknown(t *testing.T) {
	router, _ := setupTestRouter(t, &agent.Scripted{})

	w := doJSON(t, router, http.MethodPost, "/api/projects/missing/run", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
