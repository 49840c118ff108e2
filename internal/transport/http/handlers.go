package httptransport

import (
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"

	"verigate/internal/keri"
	dErrors "verigate/pkg/domain-errors"
	"verigate/pkg/domain"
)

// presentationContentType is the only body encoding accepted on credential
// presentations.
const presentationContentType = "application/json+cesr"

// maxPresentationBytes bounds a presentation body. Credential streams are
// small; anything larger is abuse.
const maxPresentationBytes = 1 << 20

// handlePresentationPut accepts a presented credential stream, runs it
// through the parse pipeline and escrows the presented SAID for the sweep to
// resolve. The SAID in the path must be among the credentials the pipeline
// actually processed.
func (h *Handler) handlePresentationPut(w http.ResponseWriter, r *http.Request) {
	said, err := domain.ParseSAID(chi.URLParam(r, "said"))
	if err != nil {
		writeError(w, err)
		return
	}

	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != presentationContentType {
		writeJSONError(w, dErrors.CodeBadRequest,
			"invalid content type="+r.Header.Get("Content-Type")+" for VC presentation",
			http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPresentationBytes))
	if err != nil {
		writeJSONError(w, dErrors.CodeBadRequest, "reading presentation body", http.StatusBadRequest)
		return
	}

	processed, err := h.parser.ParsePresentation(body)
	if err != nil {
		writeError(w, err)
		return
	}

	found := false
	for _, p := range processed {
		if p == said {
			found = true
			break
		}
	}
	if !found {
		writeJSONError(w, dErrors.CodeBadRequest,
			"credential "+said.String()+" not processed in body of request",
			http.StatusBadRequest)
		return
	}

	if err := h.authorizer.RecordPresentation(said); err != nil {
		writeError(w, err)
		return
	}
	h.logger.InfoContext(r.Context(), "credential presented", "said", said)
	w.WriteHeader(http.StatusAccepted)
}

// handleAuthorizationGet reports whether aid holds a current authorization.
func (h *Handler) handleAuthorizationGet(w http.ResponseWriter, r *http.Request) {
	aid, ok := h.authorized(w, r)
	if !ok {
		return
	}

	said, _, err := h.authorizer.Authorized(aid)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"aid":  aid.String(),
		"said": said.String(),
	})
}

// handleRequestVerify validates a detached signature over request data for an
// authorized AID, using key index zero of its current key state.
func (h *Handler) handleRequestVerify(w http.ResponseWriter, r *http.Request) {
	aid, ok := h.authorized(w, r)
	if !ok {
		return
	}

	data := r.URL.Query().Get("data")
	qb64 := r.URL.Query().Get("sig")
	if data == "" || qb64 == "" {
		writeJSONError(w, dErrors.CodeBadRequest,
			"'data' and 'sig' query params are required", http.StatusBadRequest)
		return
	}

	sig, err := keri.ParseCigar(qb64)
	if err != nil {
		writeError(w, err)
		return
	}

	state, _ := h.resolver.KeyState(aid)
	if !state.Verify(0, sig, []byte(data)) {
		writeJSONError(w, dErrors.CodeUnauthorized,
			aid.String()+" provided invalid signature on request data",
			http.StatusUnauthorized)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleReportPost ingests a signed report package from an authorized
// submitter. The body must be multipart with a part named "upload".
func (h *Handler) handleReportPost(w http.ResponseWriter, r *http.Request) {
	aid, ok := h.authorized(w, r)
	if !ok {
		return
	}
	dig, err := domain.ParseSAID(chi.URLParam(r, "dig"))
	if err != nil {
		writeError(w, err)
		return
	}

	form, err := r.MultipartReader()
	if err != nil {
		writeJSONError(w, dErrors.CodeBadRequest,
			"content type must be multipart/form-data with an upload file",
			http.StatusBadRequest)
		return
	}

	uploaded := false
	for {
		part, err := form.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			writeJSONError(w, dErrors.CodeBadRequest, "reading multipart body", http.StatusBadRequest)
			return
		}
		if part.FormName() != "upload" {
			continue
		}
		if err := h.filer.Create(aid, dig, part.FileName(), part.Header.Get("Content-Type"), part); err != nil {
			writeError(w, err)
			return
		}
		uploaded = true
	}
	if !uploaded {
		writeJSONError(w, dErrors.CodeBadRequest,
			"content type must be multipart/form-data with an upload file",
			http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleReportGet returns the current status of a previously submitted report.
func (h *Handler) handleReportGet(w http.ResponseWriter, r *http.Request) {
	_, ok := h.authorized(w, r)
	if !ok {
		return
	}
	dig, err := domain.ParseSAID(chi.URLParam(r, "dig"))
	if err != nil {
		writeError(w, err)
		return
	}

	stats, found, err := h.filer.Get(dig)
	if err != nil {
		writeError(w, err)
		return
	}
	if !found {
		writeJSONError(w, dErrors.CodeNotFound,
			"report "+dig.String()+" not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleReportList returns the digests of every report the AID has submitted,
// oldest first.
func (h *Handler) handleReportList(w http.ResponseWriter, r *http.Request) {
	aid, ok := h.authorized(w, r)
	if !ok {
		return
	}
	digs, err := h.filer.ByAID(aid)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"aid":     aid.String(),
		"reports": digs,
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// authorized applies the shared access gate: 404 when the AID has no known
// key state, 403 when it holds no current authorization. Returns the parsed
// AID and whether the caller may proceed.
func (h *Handler) authorized(w http.ResponseWriter, r *http.Request) (domain.AID, bool) {
	aid, err := domain.ParseAID(chi.URLParam(r, "aid"))
	if err != nil {
		writeError(w, err)
		return "", false
	}

	if _, found := h.resolver.KeyState(aid); !found {
		writeJSONError(w, dErrors.CodeNotFound,
			"unknown AID: "+aid.String(), http.StatusNotFound)
		return "", false
	}

	_, granted, err := h.authorizer.Authorized(aid)
	if err != nil {
		writeError(w, err)
		return "", false
	}
	if !granted {
		writeJSONError(w, dErrors.CodeForbidden,
			"identifier "+aid.String()+" has no valid credential for access",
			http.StatusForbidden)
		return "", false
	}
	return aid, true
}
