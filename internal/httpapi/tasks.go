package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"

	"tasktrack/internal/task"
	"tasktrack/internal/taskstore"
)

type taskInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type taskPatch struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Completed   *bool   `json:"completed"`
}

// store resolves the caller's store, writing the error response on failure.
func (s *Server) store(w http.ResponseWriter, r *http.Request) (*taskstore.Store, bool) {
	st, err := s.storeFor(r.Context(), userFrom(r.Context()).ID)
	if err != nil {
		s.fail(w, err)
		return nil, false
	}
	return st, true
}

func (s *Server) handleTaskList(w http.ResponseWriter, r *http.Request) {
	st, ok := s.store(w, r)
	if !ok {
		return
	}
	writeJSON(w, s.logger, http.StatusOK, st.Tasks())
}

func (s *Server) handleTaskCreate(w http.ResponseWriter, r *http.Request) {
	st, ok := s.store(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	in, file, err := s.readTaskInput(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := st.Add(r.Context(), in.Title, in.Description, file)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, s.logger, http.StatusCreated, created)
}

// readTaskInput accepts a JSON body or a multipart form with an optional
// "file" part.
func (s *Server) readTaskInput(r *http.Request) (taskInput, *task.File, error) {
	var in taskInput
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			return in, nil, errors.New("invalid JSON body")
		}
		return in, nil, nil
	}

	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		return in, nil, fmt.Errorf("invalid form: %v", err)
	}
	in.Title = r.FormValue("title")
	in.Description = r.FormValue("description")

	f, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return in, nil, nil
	}
	if err != nil {
		return in, nil, fmt.Errorf("invalid file: %v", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return in, nil, fmt.Errorf("read file: %v", err)
	}
	return in, &task.File{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func (s *Server) handleTaskUpdate(w http.ResponseWriter, r *http.Request) {
	st, ok := s.store(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	var p taskPatch
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if p.Title == nil && p.Description == nil && p.Completed == nil {
		s.writeError(w, http.StatusBadRequest, "no fields to update")
		return
	}

	if _, found := st.Find(id); !found {
		s.fail(w, task.NotFound(id))
		return
	}
	fields := task.Fields{Title: p.Title, Description: p.Description, Completed: p.Completed}
	if err := st.Update(r.Context(), id, fields); err != nil {
		s.fail(w, err)
		return
	}
	s.writeTask(w, st, id)
}

func (s *Server) handleTaskToggle(w http.ResponseWriter, r *http.Request) {
	st, ok := s.store(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	current, found := st.Find(id)
	if !found {
		s.fail(w, task.NotFound(id))
		return
	}
	if err := st.Toggle(r.Context(), id, !current.Completed); err != nil {
		s.fail(w, err)
		return
	}
	s.writeTask(w, st, id)
}

func (s *Server) handleTaskDelete(w http.ResponseWriter, r *http.Request) {
	st, ok := s.store(w, r)
	if !ok {
		return
	}
	if err := st.Remove(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeTask(w http.ResponseWriter, st *taskstore.Store, id string) {
	t, ok := st.Find(id)
	if !ok {
		s.fail(w, task.NotFound(id))
		return
	}
	writeJSON(w, s.logger, http.StatusOK, t)
}

// handleTaskStream sends the full list as a "tasks" event on connect and
// after every change, until the client goes away or the store is released.
func (s *Server) handleTaskStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	st, ok := s.store(w, r)
	if !ok {
		return
	}

	changes, unsubscribe := st.Subscribe()
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	send := func() bool {
		data, err := json.Marshal(st.Tasks())
		if err != nil {
			s.logger.Printf("httpapi: encode snapshot: %v", err)
			return false
		}
		if _, err := fmt.Fprintf(w, "event: tasks\ndata: %s\n\n", data); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	if !send() {
		return
	}
	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case _, open := <-changes:
			if !open {
				return
			}
			if !send() {
				return
			}
		}
	}
}
