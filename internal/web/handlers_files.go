package web

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/JonMunkholm/insights/internal/core"
	"github.com/JonMunkholm/insights/internal/storage"
	"github.com/JonMunkholm/insights/internal/web/templates"
)

// multipartOverhead is added to the upload limit for form boundaries and
// fields.
const multipartOverhead = 1 << 20

var errNoFile = errors.New("no file provided")

// handleDashboard renders the file list.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	d := templates.DashboardData{
		Admin:          core.IsAdmin(ctx),
		AdminEnabled:   s.gate.Enabled(),
		QAEnabled:      s.service.QAEnabled(),
		MaxUploadBytes: s.cfg.Upload.MaxFileSize,
		Flash:          flashMessage(r.URL.Query()),
	}

	files, err := s.service.Files(ctx)
	if err != nil {
		msg := core.MapError(err)
		d.Error = &msg
		s.logWarn(r, "listing files failed", err)
	}
	d.Files = files

	templates.Dashboard(d).Render(ctx, w)
}

// flashMessage turns the redirect markers of admin actions into a notice.
func flashMessage(q url.Values) string {
	switch q.Get("done") {
	case "uploaded":
		return "Uploaded " + q.Get("file")
	case "deleted":
		return "Deleted " + plural(q.Get("n"), "file")
	case "cleared":
		return "Cleared " + plural(q.Get("n"), "file")
	}
	return ""
}

func plural(n, noun string) string {
	count, err := strconv.Atoi(n)
	if err != nil {
		return noun + "s"
	}
	if count == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", count, noun)
}

// handleHealth reports liveness and the question limiter state.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]any{
		"status":  "ok",
		"limiter": s.service.LimiterStatus(),
	})
}

// handleLoginPage renders the admin login form.
func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if core.IsAdmin(r.Context()) {
		http.Redirect(w, r, safeNext(r.URL.Query().Get("next")), http.StatusSeeOther)
		return
	}
	var msg *core.UserMessage
	if !s.gate.Enabled() {
		msg = &core.UserMessage{
			Message: "Admin access is not configured",
			Action:  "Set ADMIN_PASSWORD_HASH and restart the server",
			Code:    "AUTH003",
		}
	}
	templates.Login(r.URL.Query().Get("next"), msg).Render(r.Context(), w)
}

// handleLogin checks the admin password and starts a session.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.respondError(w, r, badRequest(err), http.StatusBadRequest)
		return
	}
	next := r.PostFormValue("next")

	if err := s.gate.Login(w, r.PostFormValue("password")); err != nil {
		s.logWarn(r, "admin login failed", err)
		msg := core.MapError(err)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusUnauthorized)
		templates.Login(next, &msg).Render(r.Context(), w)
		return
	}

	s.logInfo(r, "admin logged in")
	http.Redirect(w, r, safeNext(next), http.StatusSeeOther)
}

// handleLogout ends the admin session.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.gate.Logout(w)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// receiveUpload reads the "file" form field and stores it.
func (s *Server) receiveUpload(w http.ResponseWriter, r *http.Request) (storage.Entry, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Upload.MaxFileSize+multipartOverhead)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return storage.Entry{}, err
		}
		return storage.Entry{}, badRequest(fmt.Errorf("parse upload form: %w", err))
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		return storage.Entry{}, errNoFile
	}
	defer file.Close()

	return s.service.Upload(r.Context(), header.Filename, file)
}

// handleUpload stores an uploaded file and returns to the dashboard.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	entry, err := s.receiveUpload(w, r)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	q := url.Values{"done": {"uploaded"}, "file": {entry.Original}}
	http.Redirect(w, r, "/?"+q.Encode(), http.StatusSeeOther)
}

// handleDelete removes the selected files.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.respondError(w, r, badRequest(err), http.StatusBadRequest)
		return
	}
	names := r.PostForm["name"]
	if len(names) == 0 {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	n, err := s.service.Delete(r.Context(), names...)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	http.Redirect(w, r, "/?done=deleted&n="+strconv.Itoa(n), http.StatusSeeOther)
}

// handleClear removes every stored file.
func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	n, err := s.service.Clear(r.Context())
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	http.Redirect(w, r, "/?done=cleared&n="+strconv.Itoa(n), http.StatusSeeOther)
}
