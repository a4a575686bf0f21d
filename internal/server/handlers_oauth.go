package server

import (
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/jonathan/jobtrail/internal/server/middleware"
)

// OAuthInitResponse carries the provider consent URL the browser should open.
type OAuthInitResponse struct {
	URL string `json:"url"`
}

// ConnectionStatus reports whether the owner has a mailbox connected.
type ConnectionStatus struct {
	Connected bool       `json:"connected"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// handleOAuthInit starts the connection handshake for the authenticated
// owner.
func (s *Server) handleOAuthInit(w http.ResponseWriter, r *http.Request) {
	ownerID, err := middleware.OwnerID(r)
	if err != nil {
		s.errorResponse(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	s.jsonResponse(w, http.StatusOK, OAuthInitResponse{URL: s.connector.AuthURL(ownerID)})
}

// handleOAuthCallback completes the handshake. The provider redirects the
// browser here, so failures redirect back to the app with an error marker
// instead of rendering JSON.
func (s *Server) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if errParam := q.Get("error"); errParam != "" {
		log.Printf("oauth callback: provider returned error: %s", errParam)
		s.redirectToApp(w, r, "gmail_error", errParam)
		return
	}

	ownerID, err := s.connector.HandleCallback(r.Context(), q.Get("code"), q.Get("state"))
	if err != nil {
		log.Printf("oauth callback failed: %v", err)
		s.redirectToApp(w, r, "gmail_error", "connection_failed")
		return
	}

	log.Printf("oauth callback: owner=%s mailbox connected", ownerID)
	s.redirectToApp(w, r, "gmail_connected", "true")
}

// handleOAuthStatus reports whether the owner's mailbox is connected.
func (s *Server) handleOAuthStatus(w http.ResponseWriter, r *http.Request) {
	ownerID, err := middleware.OwnerID(r)
	if err != nil {
		s.errorResponse(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	cred, err := s.creds.GetCredential(r.Context(), ownerID)
	if err != nil {
		log.Printf("oauth status failed: owner=%s: %v", ownerID, err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to load connection status")
		return
	}

	status := ConnectionStatus{Connected: cred != nil}
	if cred != nil {
		status.ExpiresAt = cred.ExpiresAt
	}
	s.jsonResponse(w, http.StatusOK, status)
}

// handleOAuthDisconnect removes the owner's stored credential. This is the
// only path that deletes credentials.
func (s *Server) handleOAuthDisconnect(w http.ResponseWriter, r *http.Request) {
	ownerID, err := middleware.OwnerID(r)
	if err != nil {
		s.errorResponse(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := s.creds.DeleteCredential(r.Context(), ownerID); err != nil {
		log.Printf("oauth disconnect failed: owner=%s: %v", ownerID, err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to disconnect")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// redirectToApp sends the browser back to the dashboard with a single query
// parameter describing the outcome.
func (s *Server) redirectToApp(w http.ResponseWriter, r *http.Request, key, value string) {
	target := s.appURL + "/?" + url.Values{key: {value}}.Encode()
	http.Redirect(w, r, target, http.StatusFound)
}
