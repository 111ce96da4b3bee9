package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	pgerrors "github.com/peergramhq/peergram/pkg/errors"
	"github.com/peergramhq/peergram/pkg/logging"
)

// maxUploadBytes caps the in-memory portion of a media upload
const maxUploadBytes = 32 << 20

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (g *Gateway) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// stateHandler returns the full application state snapshot
func (g *Gateway) stateHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, g.app.Store().Snapshot())
}

// entriesHandler returns the ranked catalog
func (g *Gateway) entriesHandler(w http.ResponseWriter, r *http.Request) {
	entries := g.app.Store().Entries()
	writeJSON(w, http.StatusOK, map[string]any{
		"count":   len(entries),
		"entries": entries,
	})
}

// mediaHandler is the file-selected intent: stage the uploaded payload,
// unconditionally replacing any previous one
func (g *Gateway) mediaHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart request")
		return
	}
	file, header, err := r.FormFile("media")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing 'media' file")
		return
	}
	defer file.Close()

	if err := g.app.SelectFile(r.Context(), file); err != nil {
		g.logger.ComponentWarn(logging.ComponentGateway, "failed to stage media",
			zap.String("filename", header.Filename), zap.Error(err))
		writeAppError(w, err)
		return
	}

	_, staged := g.app.Store().StagedPayload()
	writeJSON(w, http.StatusAccepted, map[string]any{
		"staged":      true,
		"staging_seq": staged,
	})
}

// mediaFetchHandler streams a published payload back out of the storage
// network by its content identifier
func (g *Gateway) mediaFetchHandler(w http.ResponseWriter, r *http.Request) {
	contentID := chi.URLParam(r, "cid")

	body, err := g.app.OpenMedia(r.Context(), contentID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	if _, err := io.Copy(w, body); err != nil {
		g.logger.ComponentWarn(logging.ComponentGateway, "media stream interrupted",
			zap.String("content_id", contentID), zap.Error(err))
	}
}

type publishRequest struct {
	Description string `json:"description"`
}

// publishHandler is the publish-requested intent
func (g *Gateway) publishHandler(w http.ResponseWriter, r *http.Request) {
	var req publishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	handle, err := g.app.Publish(r.Context(), req.Description)
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"tx": handle.Hash})
}

type tipRequest struct {
	// Amount is a decimal string in the ledger's smallest unit
	Amount string `json:"amount"`
}

// tipHandler is the tip-requested intent
func (g *Gateway) tipHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid entry id")
		return
	}

	var req tipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	amount, ok := new(big.Int).SetString(req.Amount, 10)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}

	handle, err := g.app.Tip(r.Context(), id, amount)
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"tx": handle.Hash})
}

// reloadHandler triggers a full catalog reload; this is the only way new
// entries and updated rankings become visible
func (g *Gateway) reloadHandler(w http.ResponseWriter, r *http.Request) {
	if err := g.app.RefreshCatalog(r.Context()); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": len(g.app.Store().Entries()),
	})
}

// stateWebsocketHandler streams a state snapshot on every mutation. Signals
// coalesce under load, so each frame carries the full current snapshot
// rather than a delta.
func (g *Gateway) stateWebsocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.ComponentWarn(logging.ComponentGateway, "state ws: upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	store := g.app.Store()
	updates := store.Subscribe()
	defer store.Unsubscribe(updates)

	// Reader loop only to detect the peer closing
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := conn.WriteJSON(store.Snapshot()); err != nil {
		return
	}

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-updates:
			if err := conn.WriteJSON(store.Snapshot()); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(5*time.Second))
		case <-done:
			return
		case <-r.Context().Done():
			return
		}
	}
}

// writeAppError maps application errors onto HTTP status codes
func writeAppError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pgerrors.ErrRegistryUnavailable),
		errors.Is(err, pgerrors.ErrNoExecutionContext):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, pgerrors.ErrNoStagedPayload):
		writeError(w, http.StatusConflict, err.Error())
	default:
		switch pgerrors.CodeOf(err) {
		case pgerrors.CodeValidation:
			writeError(w, http.StatusBadRequest, err.Error())
		case pgerrors.CodeTxRejected, pgerrors.CodeStorageFailure, pgerrors.CodeFetchFailure:
			writeError(w, http.StatusBadGateway, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
	}
}
