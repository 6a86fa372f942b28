package i18n

import "net/http"

// LangCookie holds an explicit language choice.
const LangCookie = "qbedit_lang"

// Middleware injects a localizer into every request context. A ?lang=
// parameter wins and is remembered in a cookie, then the cookie, then
// Accept-Language.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var explicit string
			if q := r.URL.Query().Get("lang"); q != "" {
				explicit = Negotiate(q)
				http.SetCookie(w, &http.Cookie{
					Name: LangCookie, Value: explicit, Path: "/",
					MaxAge: 365 * 24 * 3600, HttpOnly: true, SameSite: http.SameSiteLaxMode,
				})
			} else if c, err := r.Cookie(LangCookie); err == nil {
				explicit = c.Value
			}
			lang := Negotiate(explicit, r.Header.Get("Accept-Language"))
			ctx := WithLocalizer(r.Context(), NewLocalizer(lang))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
