package server_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sensorbench/sensorbench/internal/sample"
	"github.com/sensorbench/sensorbench/internal/server"
)

func doJSON(t *testing.T, srv *server.Server, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reqBody *strings.Reader
	if body == "" {
		reqBody = strings.NewReader("")
	} else {
		reqBody = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reqBody)
	w := httptest.NewRecorder()
	srv.Mux.ServeHTTP(w, req)

	var decoded map[string]any
	if w.Body.Len() > 0 && strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded))
	}
	return w, decoded
}

func TestServer_Config_Validate(t *testing.T) {
	t.Parallel()

	t.Run("missing logger fails", func(t *testing.T) {
		t.Parallel()
		_, err := server.New(server.Config{SmoothingWindow: 11, SmoothingOrder: 3})
		require.Error(t, err)
	})

	t.Run("even smoothing window fails", func(t *testing.T) {
		t.Parallel()
		_, st, _ := newTestServer(t)
		_, err := server.New(server.Config{Logger: log, Store: st, SmoothingWindow: 10, SmoothingOrder: 3})
		require.Error(t, err)
	})
}

func TestServer_Healthz(t *testing.T) {
	t.Parallel()
	srv, _, _ := newTestServer(t)
	w, _ := doJSON(t, srv, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "ok", w.Body.String())
}

func TestServer_Labels(t *testing.T) {
	t.Parallel()

	t.Run("empty store lists no labels", func(t *testing.T) {
		t.Parallel()
		srv, _, _ := newTestServer(t)
		w, body := doJSON(t, srv, http.MethodGet, "/labels", "")
		require.Equal(t, http.StatusOK, w.Code)
		require.Empty(t, body["labels"])
	})

	t.Run("create then list", func(t *testing.T) {
		t.Parallel()
		srv, _, _ := newTestServer(t)

		w, body := doJSON(t, srv, http.MethodPost, "/labels", `{"name":"wave left!"}`)
		require.Equal(t, http.StatusCreated, w.Code)
		require.Equal(t, "waveleft", body["name"])

		w, body = doJSON(t, srv, http.MethodGet, "/labels", "")
		require.Equal(t, http.StatusOK, w.Code)
		labels := body["labels"].([]any)
		require.Len(t, labels, 1)
		label := labels[0].(map[string]any)
		require.Equal(t, "waveleft", label["name"])
		require.Equal(t, float64(0), label["samples"])
	})

	t.Run("invalid label name is a 400", func(t *testing.T) {
		t.Parallel()
		srv, _, _ := newTestServer(t)
		w, _ := doJSON(t, srv, http.MethodPost, "/labels", `{"name":"///"}`)
		require.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("malformed body is a 400", func(t *testing.T) {
		t.Parallel()
		srv, _, _ := newTestServer(t)
		w, _ := doJSON(t, srv, http.MethodPost, "/labels", `{`)
		require.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestServer_Record(t *testing.T) {
	t.Parallel()

	t.Run("records into an existing label", func(t *testing.T) {
		t.Parallel()
		srv, st, _ := newTestServer(t)
		_, err := st.CreateLabel("wave")
		require.NoError(t, err)

		w, body := doJSON(t, srv, http.MethodPost, "/record", `{"label":"wave"}`)
		require.Equal(t, http.StatusCreated, w.Code)
		require.Equal(t, "wave", body["label"])
		require.Equal(t, float64(20), body["frames"])
		require.NotEmpty(t, body["name"])
	})

	t.Run("missing label field is a 400", func(t *testing.T) {
		t.Parallel()
		srv, _, _ := newTestServer(t)
		w, _ := doJSON(t, srv, http.MethodPost, "/record", `{}`)
		require.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown label is a 404", func(t *testing.T) {
		t.Parallel()
		srv, _, _ := newTestServer(t)
		w, _ := doJSON(t, srv, http.MethodPost, "/record", `{"label":"ghost"}`)
		require.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("recorder failure is a 500", func(t *testing.T) {
		t.Parallel()
		srv, st, rec := newTestServer(t)
		_, err := st.CreateLabel("wave")
		require.NoError(t, err)
		rec.fail = errors.New("device unplugged")

		w, _ := doJSON(t, srv, http.MethodPost, "/record", `{"label":"wave"}`)
		require.Equal(t, http.StatusInternalServerError, w.Code)
	})

	t.Run("nil recorder is a 503", func(t *testing.T) {
		t.Parallel()
		_, st, _ := newTestServer(t)
		srv, err := server.New(server.Config{
			Logger:          log,
			Store:           st,
			SmoothingWindow: 11,
			SmoothingOrder:  3,
		})
		require.NoError(t, err)

		w, _ := doJSON(t, srv, http.MethodPost, "/record", `{"label":"wave"}`)
		require.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}

func TestServer_Recordings(t *testing.T) {
	t.Parallel()

	record := func(t *testing.T, srv *server.Server, label string) string {
		t.Helper()
		w, body := doJSON(t, srv, http.MethodPost, "/record", `{"label":"`+label+`"}`)
		require.Equal(t, http.StatusCreated, w.Code)
		return body["name"].(string)
	}

	t.Run("list returns saved recordings", func(t *testing.T) {
		t.Parallel()
		srv, st, _ := newTestServer(t)
		_, err := st.CreateLabel("wave")
		require.NoError(t, err)
		name := record(t, srv, "wave")

		w, body := doJSON(t, srv, http.MethodGet, "/labels/wave/recordings", "")
		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, []any{name}, body["recordings"])
	})

	t.Run("list of unknown label is a 404", func(t *testing.T) {
		t.Parallel()
		srv, _, _ := newTestServer(t)
		w, _ := doJSON(t, srv, http.MethodGet, "/labels/ghost/recordings", "")
		require.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("get returns frames", func(t *testing.T) {
		t.Parallel()
		srv, st, _ := newTestServer(t)
		_, err := st.CreateLabel("wave")
		require.NoError(t, err)
		name := record(t, srv, "wave")

		w, body := doJSON(t, srv, http.MethodGet, "/recordings/wave/"+name, "")
		require.Equal(t, http.StatusOK, w.Code)
		frames := body["frames"].([]any)
		require.Len(t, frames, 20)
		first := frames[0].([]any)
		require.Len(t, first, sample.Columns)
	})

	t.Run("get of a missing recording is a 404", func(t *testing.T) {
		t.Parallel()
		srv, st, _ := newTestServer(t)
		_, err := st.CreateLabel("wave")
		require.NoError(t, err)

		w, _ := doJSON(t, srv, http.MethodGet, "/recordings/wave/wave_19990101_000000.csv", "")
		require.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("preview smooths long recordings", func(t *testing.T) {
		t.Parallel()
		srv, st, _ := newTestServer(t)
		_, err := st.CreateLabel("wave")
		require.NoError(t, err)
		name := record(t, srv, "wave")

		w, body := doJSON(t, srv, http.MethodGet, "/recordings/wave/"+name+"/preview", "")
		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, true, body["smoothed"])
		require.Equal(t, float64(11), body["window"])
		require.Len(t, body["frames"].([]any), 20)

		stats := body["stats"].(map[string]any)
		require.Contains(t, stats, "acc_x")
		require.Contains(t, stats, "gyro_z")
	})

	t.Run("preview passes short recordings through raw", func(t *testing.T) {
		t.Parallel()
		srv, st, _ := newTestServer(t)
		_, err := st.CreateLabel("wave")
		require.NoError(t, err)

		short := &sample.Recording{Label: "wave", Frames: []sample.Frame{{1, 2, 3, 4, 5, 6}}}
		name, err := st.Save(short)
		require.NoError(t, err)

		w, body := doJSON(t, srv, http.MethodGet, "/recordings/wave/"+name+"/preview", "")
		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, false, body["smoothed"])
		require.Len(t, body["frames"].([]any), 1)
	})

	t.Run("delete returns the adjacent selection", func(t *testing.T) {
		t.Parallel()
		srv, st, _ := newTestServer(t)
		_, err := st.CreateLabel("wave")
		require.NoError(t, err)
		name := record(t, srv, "wave")

		w, body := doJSON(t, srv, http.MethodDelete, "/recordings/wave/"+name, "")
		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, name, body["deleted"])
		require.Empty(t, body["next"])

		w, _ = doJSON(t, srv, http.MethodGet, "/recordings/wave/"+name, "")
		require.Equal(t, http.StatusNotFound, w.Code)
	})
}
