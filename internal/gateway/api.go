package gateway

import (
	"errors"
	"net/http"

	"github.com/soyeahso/supportim/internal/domain"
	"github.com/soyeahso/supportim/internal/metrics"
	"github.com/soyeahso/supportim/internal/store"
	"github.com/soyeahso/supportim/internal/version"
)

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, version.Current())
}

// handleConversations lists thread summaries with live presence.
func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	threads, err := s.store.ListThreads(r.Context())
	if err != nil {
		s.storeError(w, err, "list threads")
		return
	}
	online := s.tracker.Snapshot()
	for i := range threads {
		threads[i].Online = online[threads[i].Phone]
	}
	if threads == nil {
		threads = []domain.ThreadSummary{}
	}
	writeJSON(w, http.StatusOK, threads)
}

// handleMessages returns a thread in display order. Origin fields are only
// included for callers that pass API auth.
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.store.ListByThread(r.Context(), r.PathValue("phone"))
	if err != nil {
		s.storeError(w, err, "list messages")
		return
	}
	if s.auth.api(r.Context(), r) == nil {
		if msgs == nil {
			msgs = []domain.Message{}
		}
		writeJSON(w, http.StatusOK, msgs)
		return
	}
	out := make([]domain.MessageEvent, len(msgs))
	for i, m := range msgs {
		out[i] = domain.NewMessageEvent(m)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "bad_request")
		return
	}
	msg, err := s.store.GetMessage(r.Context(), id)
	if err != nil {
		s.storeError(w, err, "get message")
		return
	}
	writeJSON(w, http.StatusOK, domain.NewMessageEvent(msg))
}

type readRequest struct {
	Phone string `json:"phone"`
	TS    int64  `json:"ts,omitempty"`
}

// handleRead moves the read watermark of a thread; ts defaults to now.
func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	var req readRequest
	if err := decodeJSON(w, r, &req); err != nil || trimmed(req.Phone) == "" {
		writeError(w, http.StatusBadRequest, "bad_request")
		return
	}
	if req.TS <= 0 {
		req.TS = s.now().UnixMilli()
	}
	if err := s.store.SetReadWatermark(r.Context(), req.Phone, req.TS); err != nil {
		s.storeError(w, err, "set read watermark")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "ts": req.TS})
}

// handleGetUser returns a profile. A missing country is backfilled from the
// latest customer message that has one.
func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	phone := r.PathValue("phone")
	prof, err := s.store.GetProfile(ctx, phone)
	if err != nil {
		s.storeError(w, err, "get profile")
		return
	}
	if prof.Country == "" {
		if country := s.lastKnownCountry(r, phone); country != "" {
			if updated, err := s.store.UpsertProfile(ctx, domain.Profile{Phone: phone, Country: country}); err == nil {
				prof = updated
			}
		}
	}
	writeJSON(w, http.StatusOK, prof)
}

func (s *Server) lastKnownCountry(r *http.Request, phone string) string {
	msgs, err := s.store.ListByThread(r.Context(), phone)
	if err != nil {
		return ""
	}
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Sender == domain.RoleCustomer && msgs[i].Country != "" {
			return msgs[i].Country
		}
	}
	return ""
}

type userRequest struct {
	Phone  string `json:"phone"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

// handlePostUser upserts a profile and resolves the caller's country.
func (s *Server) handlePostUser(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if err := decodeJSON(w, r, &req); err != nil || trimmed(req.Phone) == "" {
		writeError(w, http.StatusBadRequest, "bad_request")
		return
	}
	prof := domain.Profile{
		Phone:   trimmed(req.Phone),
		Name:    req.Name,
		Avatar:  req.Avatar,
		Country: s.geo.Country(r.Context(), clientIP(r, s.cfg.Gateway.TrustProxy)),
	}
	if _, err := s.store.UpsertProfile(r.Context(), prof); err != nil {
		s.storeError(w, err, "upsert profile")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type translateRequest struct {
	Text string `json:"text"`
}

type translateResponse struct {
	OK           bool   `json:"ok"`
	Translated   string `json:"translated"`
	DetectedLang string `json:"detected_lang"`
	Provider     string `json:"provider"`
}

func (s *Server) handleTranslate(w http.ResponseWriter, r *http.Request) {
	var req translateRequest
	if err := decodeJSON(w, r, &req); err != nil || trimmed(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "bad_request")
		return
	}
	if s.translator == nil {
		writeError(w, http.StatusBadGateway, "translate_failed")
		return
	}
	res, err := s.translator.Translate(r.Context(), trimmed(req.Text))
	if err != nil {
		s.log.Warn().Err(err).Msg("translation failed")
		writeError(w, http.StatusBadGateway, "translate_failed")
		return
	}
	metrics.TranslateRequests.WithLabelValues(res.Provider).Inc()
	writeJSON(w, http.StatusOK, translateResponse{
		OK:           true,
		Translated:   res.Text,
		DetectedLang: res.DetectedLang,
		Provider:     res.Provider,
	})
}

func (s *Server) handleListNotes(w http.ResponseWriter, r *http.Request) {
	notes, err := s.store.ListNotes(r.Context(), r.PathValue("phone"))
	if err != nil {
		s.storeError(w, err, "list notes")
		return
	}
	if notes == nil {
		notes = []domain.Note{}
	}
	writeJSON(w, http.StatusOK, notes)
}

type noteRequest struct {
	Phone   string `json:"phone"`
	Content string `json:"content"`
}

func (s *Server) handleAddNote(w http.ResponseWriter, r *http.Request) {
	var req noteRequest
	if err := decodeJSON(w, r, &req); err != nil || trimmed(req.Phone) == "" || req.Content == "" {
		writeError(w, http.StatusBadRequest, "bad_request")
		return
	}
	note, err := s.store.AddNote(r.Context(), trimmed(req.Phone), req.Content)
	if err != nil {
		s.storeError(w, err, "add note")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "id": note.ID, "ts": note.CreatedAt, "note": note})
}

func (s *Server) handleUpdateNote(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	var req noteRequest
	if err := decodeJSON(w, r, &req); err != nil || !ok {
		writeError(w, http.StatusBadRequest, "bad_request")
		return
	}
	note, err := s.store.UpdateNote(r.Context(), id, req.Content)
	if err != nil {
		s.storeError(w, err, "update note")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "note": note})
}

type pinRequest struct {
	Pinned bool `json:"pinned"`
}

func (s *Server) handlePinNote(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	var req pinRequest
	if err := decodeJSON(w, r, &req); err != nil || !ok {
		writeError(w, http.StatusBadRequest, "bad_request")
		return
	}
	note, err := s.store.SetNotePinned(r.Context(), id, req.Pinned)
	if err != nil {
		s.storeError(w, err, "pin note")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "note": note})
}

func (s *Server) handleDeleteNote(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "bad_request")
		return
	}
	if err := s.store.DeleteNote(r.Context(), id); err != nil {
		s.storeError(w, err, "delete note")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleListACL(w http.ResponseWriter, r *http.Request) {
	items, err := s.store.ListACL(r.Context())
	if err != nil {
		s.storeError(w, err, "list acl")
		return
	}
	if items == nil {
		items = []domain.ACLEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

type aclRequest struct {
	Phone string `json:"phone"`
}

func (s *Server) handleAddACL(w http.ResponseWriter, r *http.Request) {
	var req aclRequest
	if err := decodeJSON(w, r, &req); err != nil || trimmed(req.Phone) == "" {
		writeError(w, http.StatusBadRequest, "bad_request")
		return
	}
	if err := s.store.AddACL(r.Context(), trimmed(req.Phone)); err != nil {
		s.storeError(w, err, "add acl")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleRemoveACL(w http.ResponseWriter, r *http.Request) {
	phone := trimmed(r.PathValue("phone"))
	if phone == "" {
		writeError(w, http.StatusBadRequest, "bad_request")
		return
	}
	if err := s.store.RemoveACL(r.Context(), phone); err != nil {
		s.storeError(w, err, "remove acl")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleListTokens(w http.ResponseWriter, r *http.Request) {
	items, err := s.store.ListAgentTokens(r.Context())
	if err != nil {
		s.storeError(w, err, "list tokens")
		return
	}
	if items == nil {
		items = []domain.AgentToken{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

type tokenRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleCreateToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request")
		return
	}
	name := trimmed(req.Name)
	if name == "" {
		name = "agent"
	}
	tok, err := s.store.CreateAgentToken(r.Context(), name)
	if err != nil {
		s.storeError(w, err, "create token")
		return
	}
	s.log.Info().Int64("id", tok.ID).Str("name", tok.Name).Msg("agent token issued")
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "id": tok.ID, "name": tok.Name, "token": tok.Token})
}

func (s *Server) handleRevokeToken(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "bad_request")
		return
	}
	err := s.store.RevokeAgentToken(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	if err != nil {
		s.storeError(w, err, "revoke token")
		return
	}
	s.log.Info().Int64("id", id).Msg("agent token revoked")
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
