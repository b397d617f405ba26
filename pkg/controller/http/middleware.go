package http

import (
	"net/http"

	"github.com/m-mizutani/goerr/v2"

	"github.com/chronoslack/chronoslack/pkg/domain/model/auth"
	"github.com/chronoslack/chronoslack/pkg/usecase"
)

// sessionFromCookies validates the token_id/token_secret cookie pair
func sessionFromCookies(r *http.Request, authUC *usecase.AuthUseCase) (*auth.Token, error) {
	tokenIDCookie, err := r.Cookie("token_id")
	if err != nil {
		return nil, goerr.Wrap(usecase.ErrInvalidSession, "missing token_id cookie")
	}

	tokenSecretCookie, err := r.Cookie("token_secret")
	if err != nil {
		return nil, goerr.Wrap(usecase.ErrInvalidSession, "missing token_secret cookie")
	}

	return authUC.ValidateSession(r.Context(),
		auth.TokenID(tokenIDCookie.Value),
		auth.TokenSecret(tokenSecretCookie.Value))
}

// authMiddleware validates authentication for protected requests
func authMiddleware(authUC *usecase.AuthUseCase) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, err := sessionFromCookies(r, authUC)
			if err != nil {
				http.Error(w, "Authentication required", http.StatusUnauthorized)
				return
			}

			ctx := auth.ContextWithToken(r.Context(), session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
