package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/sprout/internal/care"
	"github.com/kalambet/sprout/internal/docstore"
	"github.com/kalambet/sprout/internal/session"
)

const maxFormSize = 64 << 10 // 64KB

// Flash texts shown by the care pages.
const (
	flashUserExists   = "❌ Username already exists!"
	flashBadLogin     = "❌ Wrong username or password"
	flashSignedUp     = "✅ Signup successful!"
	flashLoggedOut    = "Logged out!"
	flashBadUsername  = "❌ Usernames cannot be empty or contain / . # $ [ ]"
	flashNoPassword   = "❌ Password is required"
	flashEmptyQuery   = "❌ Please type a question"
	flashEntryMissing = "That entry no longer exists"
)

type CareDeps struct {
	Care     *care.Service
	Sessions *session.Manager
	Logger   *slog.Logger
}

// NewCareHandler returns the plant-care assistant's web routes.
func NewCareHandler(deps CareDeps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	r := chi.NewRouter()
	useCommonMiddleware(r, deps.Logger)

	r.Get("/health", handleHealth)
	r.Get("/signup", handleSignupPage)
	r.Post("/signup", handleSignup(deps))
	r.Get("/login", handleLoginPage)
	r.Post("/login", handleLogin(deps))
	r.Get("/logout", handleLogout(deps))

	r.Group(func(r chi.Router) {
		r.Use(deps.Sessions.RequireUser)
		r.Get("/", handleHome(deps))
		r.Post("/search", handleSearch(deps))
		r.Get("/history", handleHistory(deps))
		r.Post("/delete/{ref}", handleDeleteEntry(deps))
		r.Post("/reply/{ref}", handleReply(deps, docstore.KindFollowup, "followup"))
		r.Post("/reply_more/{ref}", handleReply(deps, docstore.KindMoreInfo, "followup_more"))
	})

	return r
}

func handleSignupPage(w http.ResponseWriter, r *http.Request) {
	renderPage(w, r, http.StatusOK, "signup.html", page{Title: "Sign up"})
}

func handleLoginPage(w http.ResponseWriter, r *http.Request) {
	renderPage(w, r, http.StatusOK, "login.html", page{Title: "Log in"})
}

func handleSignup(deps CareDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !parseForm(w, r) {
			return
		}
		_, err := deps.Care.Signup(r.Context(),
			r.PostForm.Get("username"),
			r.PostForm.Get("password"),
			r.PostForm.Get("fullname"),
		)
		switch {
		case err == nil:
			session.SetFlash(w, "success", flashSignedUp)
			redirect(w, r, "/login")
		case errors.Is(err, care.ErrUsernameTaken):
			flashBack(w, r, flashUserExists, "/signup")
		case errors.Is(err, care.ErrInvalidUsername):
			flashBack(w, r, flashBadUsername, "/signup")
		case errors.Is(err, care.ErrMissingPassword):
			flashBack(w, r, flashNoPassword, "/signup")
		default:
			careFailure(w, r, deps, "signup failed", err)
		}
	}
}

func handleLogin(deps CareDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !parseForm(w, r) {
			return
		}
		u, err := deps.Care.Login(r.Context(), r.PostForm.Get("username"), r.PostForm.Get("password"))
		if errors.Is(err, care.ErrInvalidCredentials) {
			flashBack(w, r, flashBadLogin, "/login")
			return
		}
		if err != nil {
			careFailure(w, r, deps, "login failed", err)
			return
		}
		if err := deps.Sessions.Issue(w, u.Username); err != nil {
			careFailure(w, r, deps, "starting session failed", err)
			return
		}
		redirect(w, r, "/")
	}
}

func handleLogout(deps CareDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deps.Sessions.Clear(w)
		session.SetFlash(w, "success", flashLoggedOut)
		redirect(w, r, "/login")
	}
}

func handleHome(deps CareDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		username, _ := session.UserFrom(r.Context())
		p := page{Title: "Plant care", User: username}
		if u, err := deps.Care.Profile(r.Context(), username); err == nil {
			p.Fullname = u.Fullname
		} else if errors.Is(err, docstore.ErrNotFound) {
			signOut(w, r, deps)
			return
		} else {
			deps.Logger.Warn("loading profile", "username", username, "error", err)
		}
		renderPage(w, r, http.StatusOK, "index.html", p)
	}
}

func handleSearch(deps CareDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !parseForm(w, r) {
			return
		}
		username, _ := session.UserFrom(r.Context())
		entry, err := deps.Care.Search(r.Context(), username, r.PostForm.Get("query"))
		switch {
		case err == nil:
			renderPage(w, r, http.StatusOK, "search.html", page{
				Title:  "Answer",
				User:   username,
				Query:  entry.Question,
				Answer: entry.Answer,
			})
		case errors.Is(err, care.ErrEmptyQuestion):
			flashBack(w, r, flashEmptyQuery, "/")
		case errors.Is(err, docstore.ErrNotFound):
			signOut(w, r, deps)
		default:
			careFailure(w, r, deps, "saving question failed", err)
		}
	}
}

func handleHistory(deps CareDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		username, _ := session.UserFrom(r.Context())
		h, err := deps.Care.History(r.Context(), username)
		if errors.Is(err, docstore.ErrNotFound) {
			signOut(w, r, deps)
			return
		}
		if err != nil {
			careFailure(w, r, deps, "loading history failed", err)
			return
		}
		renderPage(w, r, http.StatusOK, "history.html", page{Title: "History", User: username, History: h})
	}
}

func handleDeleteEntry(deps CareDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		username, _ := session.UserFrom(r.Context())
		ref := chi.URLParam(r, "ref")
		deleted, err := deps.Care.Delete(r.Context(), username, ref)
		if err != nil {
			if errors.Is(err, docstore.ErrNotFound) {
				signOut(w, r, deps)
				return
			}
			careFailure(w, r, deps, "deleting entry failed", err)
			return
		}
		if !deleted {
			deps.Logger.Debug("history entry not found", "username", username, "ref", ref)
			session.SetFlash(w, "danger", flashEntryMissing)
		}
		redirect(w, r, "/history")
	}
}

func handleReply(deps CareDeps, kind docstore.Kind, field string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !parseForm(w, r) {
			return
		}
		username, _ := session.UserFrom(r.Context())
		_, err := deps.Care.Reply(r.Context(), username, chi.URLParam(r, "ref"), r.PostForm.Get(field), kind)
		switch {
		case err == nil:
			redirect(w, r, "/history")
		case errors.Is(err, care.ErrEmptyQuestion):
			flashBack(w, r, flashEmptyQuery, "/history")
		case errors.Is(err, docstore.ErrNotFound):
			signOut(w, r, deps)
		default:
			careFailure(w, r, deps, "saving reply failed", err)
		}
	}
}

func parseForm(w http.ResponseWriter, r *http.Request) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormSize)
	if err := r.ParseForm(); err != nil {
		renderPage(w, r, http.StatusBadRequest, "error.html", page{Title: "Bad request", Message: "The form could not be read."})
		return false
	}
	return true
}

func redirect(w http.ResponseWriter, r *http.Request, to string) {
	http.Redirect(w, r, to, http.StatusSeeOther)
}

func flashBack(w http.ResponseWriter, r *http.Request, msg, to string) {
	session.SetFlash(w, "danger", msg)
	redirect(w, r, to)
}

// signOut handles a session whose account no longer exists.
func signOut(w http.ResponseWriter, r *http.Request, deps CareDeps) {
	deps.Sessions.Clear(w)
	redirect(w, r, "/login")
}

func careFailure(w http.ResponseWriter, r *http.Request, deps CareDeps, msg string, err error) {
	deps.Logger.Error(msg, "error", err, "path", r.URL.Path)
	username, _ := session.UserFrom(r.Context())
	renderPage(w, r, http.StatusBadGateway, "error.html", page{
		Title:   "Error",
		User:    username,
		Message: "The record store is unavailable, please try again later.",
	})
}
