package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chambridge/capacity-stats/internal/stats"
)

type recordingWriter struct {
	districts []stats.DistrictEntry
}

func (r *recordingWriter) UpsertDistrict(_ context.Context, d stats.DistrictEntry) error {
	r.districts = append(r.districts, d)
	return nil
}

func upload(t *testing.T, h gin.HandlerFunc, field, content string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/upload", h)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile(field, "districts.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestDistrictsUploadHandler(t *testing.T) {
	// Arrange
	repo := &recordingWriter{}
	csvData := "uuid,name,gear_profile,max_capacity,available_capacity,available_uids,server_identities\n" +
		"0b6e6f4c-3c0b-4d8e-9a51-1f1b2b0f0c01,small_1,small,6000,5900,5900,node1|node2\n"

	// Act
	w := upload(t, DistrictsUploadHandler(repo, nil), "file", csvData)

	// Assert
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, float64(1), body["imported"])
	require.Len(t, repo.districts, 1)
	assert.Equal(t, stats.Membership{"node1": true, "node2": true}, repo.districts[0].Members)
}

func TestDistrictsUploadHandler_Errors(t *testing.T) {
	t.Run("wrong field", func(t *testing.T) {
		w := upload(t, DistrictsUploadHandler(&recordingWriter{}, nil), "upload", "uuid\n")
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "File upload failed")
	})

	t.Run("bad csv", func(t *testing.T) {
		w := upload(t, DistrictsUploadHandler(&recordingWriter{}, nil), "file", "uuid,name\n")
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "missing required header")
	})

	t.Run("not configured", func(t *testing.T) {
		w := upload(t, DistrictsUploadHandler(nil, nil), "file", "")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}
