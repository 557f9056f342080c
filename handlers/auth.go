package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/reado/reado-server/middleware"
	"github.com/reado/reado-server/models"
	"github.com/reado/reado-server/utils"
	"golang.org/x/oauth2"
)

const defaultUserinfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"
const stateCookieName = "oauth_state"
const sessionTokenTTL = 7 * 24 * time.Hour

type AuthHandler struct {
	Users       UserStore
	OAuth       *oauth2.Config
	JWTSecret   string
	FrontendURL string
	UserinfoURL string
	EncKey      []byte // 32 bytes for encrypting stored tokens; nil = plaintext
	Logger      *slog.Logger
}

// Login handles GET /users/auth/google: redirects to Google's consent
// screen with offline access and a state nonce bound to a short-lived
// cookie.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if h.OAuth == nil || h.OAuth.ClientID == "" || h.OAuth.ClientSecret == "" {
		h.failLogin(w, r)
		return
	}
	state := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	url := h.OAuth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	http.Redirect(w, r, url, http.StatusTemporaryRedirect)
}

type googleUserinfo struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Picture string `json:"picture"`
}

// Callback handles GET /users/auth/google/callback: exchanges the code,
// fetches the profile, upserts the user, and hands the SPA a session JWT via
// redirect. Every failure redirects to the login page.
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	if h.OAuth == nil || h.JWTSecret == "" {
		h.failLogin(w, r)
		return
	}
	query := r.URL.Query()
	code := query.Get("code")
	if code == "" || query.Get("error") != "" {
		h.failLogin(w, r)
		return
	}
	cookie, err := r.Cookie(stateCookieName)
	if err != nil || cookie.Value == "" || cookie.Value != query.Get("state") {
		h.Logger.Warn("oauth callback with bad state")
		h.failLogin(w, r)
		return
	}

	token, err := h.OAuth.Exchange(r.Context(), code)
	if err != nil {
		h.Logger.Error("oauth code exchange failed", "error", err)
		h.failLogin(w, r)
		return
	}

	info, err := h.fetchUserinfo(r, token)
	if err != nil {
		h.Logger.Error("oauth userinfo fetch failed", "error", err)
		h.failLogin(w, r)
		return
	}

	accessToken, refreshToken := token.AccessToken, token.RefreshToken
	if len(h.EncKey) == 32 {
		if accessToken != "" {
			accessToken, err = utils.Encrypt([]byte(accessToken), h.EncKey)
			if err != nil {
				h.Logger.Error("token encryption failed", "error", err)
				h.failLogin(w, r)
				return
			}
		}
		if refreshToken != "" {
			refreshToken, err = utils.Encrypt([]byte(refreshToken), h.EncKey)
			if err != nil {
				h.Logger.Error("token encryption failed", "error", err)
				h.failLogin(w, r)
				return
			}
		}
	}

	user, err := h.Users.UpsertGoogleUser(r.Context(), &models.User{
		GoogleID:     info.ID,
		Name:         info.Name,
		Email:        info.Email,
		Picture:      info.Picture,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenExpiry:  token.Expiry,
	})
	if err != nil {
		h.Logger.Error("oauth user upsert failed", "error", err)
		h.failLogin(w, r)
		return
	}

	sessionToken, err := h.signSession(user)
	if err != nil {
		h.Logger.Error("session token signing failed", "error", err)
		h.failLogin(w, r)
		return
	}
	http.Redirect(w, r, h.FrontendURL+"/reading?token="+url.QueryEscape(sessionToken), http.StatusTemporaryRedirect)
}

func (h *AuthHandler) fetchUserinfo(r *http.Request, token *oauth2.Token) (*googleUserinfo, error) {
	userinfoURL := h.UserinfoURL
	if userinfoURL == "" {
		userinfoURL = defaultUserinfoURL
	}
	client := h.OAuth.Client(r.Context(), token)
	resp, err := client.Get(userinfoURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo returned %d", resp.StatusCode)
	}
	var info googleUserinfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (h *AuthHandler) signSession(user *models.User) (string, error) {
	claims := &middleware.Claims{
		UserID:  user.ID.Hex(),
		Name:    user.Name,
		Email:   user.Email,
		Picture: user.Picture,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(sessionTokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(h.JWTSecret))
}

func (h *AuthHandler) failLogin(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, h.FrontendURL+"/login?error=oauth_failed", http.StatusTemporaryRedirect)
}
