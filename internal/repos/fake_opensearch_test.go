package repos

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeOpenSearch is an in-memory stand-in for the document API subset the
// rule repository uses.
type fakeOpenSearch struct {
	mu sync.Mutex

	index     string
	created   bool
	mapping   map[string]any
	docs      map[string]map[string]any
	seq       map[string]int64
	nextSeq   int64
	interfere int  // concurrent writes to simulate before the next updates
	lateHead  bool // HEAD misses an index created by someone else


	updates int
}

func newFakeOpenSearch(t *testing.T, index string) (*fakeOpenSearch, *httptest.Server) {
	t.Helper()
	f := &fakeOpenSearch{
		index: index,
		docs:  map[string]map[string]any{},
		seq:   map[string]int64{},
	}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeOpenSearch) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	switch {
	case r.URL.Path == "/" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"cluster_name": "fake", "version": map[string]any{"number": "2.11.0"}})
	case len(parts) == 1 && parts[0] == f.index:
		f.serveIndex(w, r)
	case len(parts) == 2 && parts[1] == "_search" && (r.Method == http.MethodPost || r.Method == http.MethodGet):
		f.serveSearch(w, r)
	case len(parts) == 3 && parts[1] == "_doc":
		f.serveDoc(w, r, parts[2])
	case len(parts) == 3 && parts[1] == "_update" && r.Method == http.MethodPost:
		f.serveUpdate(w, r, parts[2])
	default:
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "unsupported " + r.Method + " " + r.URL.Path})
	}
}

func (f *fakeOpenSearch) serveIndex(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodHead:
		if f.created && !f.lateHead {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	case http.MethodPut:
		if f.created {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":  map[string]any{"type": "resource_already_exists_exception", "reason": "index [" + f.index + "] already exists"},
				"status": 400,
			})
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&f.mapping)
		f.created = true
		writeJSON(w, http.StatusOK, map[string]any{"acknowledged": true, "index": f.index})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeOpenSearch) bump(id string) int64 {
	f.nextSeq++
	f.seq[id] = f.nextSeq
	return f.nextSeq
}

func (f *fakeOpenSearch) serveDoc(w http.ResponseWriter, r *http.Request, rawID string) {
	id, _ := url.PathUnescape(rawID)
	switch r.Method {
	case http.MethodPut:
		var doc map[string]any
		if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}
		_, existed := f.docs[id]
		f.docs[id] = doc
		seq := f.bump(id)
		result := "created"
		if existed {
			result = "updated"
		}
		writeJSON(w, http.StatusOK, map[string]any{"_id": id, "result": result, "_seq_no": seq, "_primary_term": 1, "_version": seq})
	case http.MethodGet:
		doc, ok := f.docs[id]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]any{"_id": id, "found": false})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"_id": id, "found": true, "_seq_no": f.seq[id], "_primary_term": 1, "_version": f.seq[id], "_source": doc,
		})
	case http.MethodDelete:
		if _, ok := f.docs[id]; !ok {
			writeJSON(w, http.StatusNotFound, map[string]any{"_id": id, "result": "not_found"})
			return
		}
		delete(f.docs, id)
		delete(f.seq, id)
		writeJSON(w, http.StatusOK, map[string]any{"_id": id, "result": "deleted"})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeOpenSearch) serveUpdate(w http.ResponseWriter, r *http.Request, rawID string) {
	id, _ := url.PathUnescape(rawID)
	f.updates++
	doc, ok := f.docs[id]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{
			"error":  map[string]any{"type": "document_missing_exception", "reason": "[" + id + "]: document missing"},
			"status": 404,
		})
		return
	}
	if f.interfere > 0 {
		f.interfere--
		f.bump(id)
	}
	if raw := r.URL.Query().Get("if_seq_no"); raw != "" {
		want, _ := strconv.ParseInt(raw, 10, 64)
		if want != f.seq[id] {
			writeJSON(w, http.StatusConflict, map[string]any{
				"error":  map[string]any{"type": "version_conflict_engine_exception", "reason": "version conflict"},
				"status": 409,
			})
			return
		}
	}
	var body struct {
		Doc map[string]any `json:"doc"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	for k, v := range body.Doc {
		doc[k] = v
	}
	seq := f.bump(id)
	writeJSON(w, http.StatusOK, map[string]any{"_id": id, "result": "updated", "_seq_no": seq, "_primary_term": 1, "_version": seq})
}

func (f *fakeOpenSearch) serveSearch(w http.ResponseWriter, r *http.Request) {
	var q struct {
		Size int `json:"size"`
	}
	_ = json.NewDecoder(r.Body).Decode(&q)
	ids := make([]string, 0, len(f.docs))
	for id := range f.docs {
		ids = append(ids, id)
	}
	createdAt := func(id string) time.Time {
		s, _ := f.docs[id]["created_at"].(string)
		t, _ := time.Parse(time.RFC3339Nano, s)
		return t
	}
	sort.Slice(ids, func(i, j int) bool { return createdAt(ids[i]).After(createdAt(ids[j])) })
	if q.Size > 0 && len(ids) > q.Size {
		ids = ids[:q.Size]
	}
	hits := make([]any, 0, len(ids))
	for _, id := range ids {
		hits = append(hits, map[string]any{"_id": id, "_source": f.docs[id]})
	}
	writeJSON(w, http.StatusOK, map[string]any{"hits": map[string]any{"hits": hits}})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
