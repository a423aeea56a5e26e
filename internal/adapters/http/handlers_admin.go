package web

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"confreg/internal/adapters/http/middleware"
	"confreg/internal/adapters/storage/kv"
	"confreg/internal/application/dashboard"
	"confreg/internal/application/listutil"
	"confreg/internal/application/orchestrators"
	"confreg/internal/domain/export"
	"confreg/internal/domain/registration"
)

// adminDeps builds the auth gate dependencies for the requesting browser.
func adminDeps(client middleware.Client) orchestrators.AdminAuthDeps {
	return orchestrators.AdminAuthDeps{
		Local:        kv.Bind(app.KV, client.ID),
		PasswordHash: app.PasswordHash,
		Auditor:      app.Auditor,
		Client:       toAuditClient(client),
		Now:          app.Now,
		GenerateID:   generateID,
		Sleep:        app.Sleep,
		Metrics:      app.Metrics,
	}
}

// requireAdmin checks the stored admin session.
// A browser without a valid session is sent to the login page; JSON clients get 401.
// PRE: request passed the ClientID middleware
// POST: returns true only for a session younger than 24 hours
func requireAdmin(w http.ResponseWriter, r *http.Request) (middleware.Client, bool) {
	client, ok := middleware.ClientFromContext(r.Context())
	if !ok {
		http.Error(w, "missing client", http.StatusBadRequest)
		return middleware.Client{}, false
	}
	session, err := orchestrators.ExecuteCheckAdminSession(r.Context(), adminDeps(client))
	if err != nil {
		internalError(w, err)
		return client, false
	}
	if !session.Valid(app.Now()) {
		clients.dropDashboard(client.ID)
		if wantsJSON(r) {
			writeJSON(w, r, http.StatusUnauthorized, map[string]string{"error": orchestrators.MsgUnauthorized})
			return client, false
		}
		http.Redirect(w, r, "/admin/login", http.StatusSeeOther)
		return client, false
	}
	return client, true
}

// handleAdminLoginForm handles GET /admin/login
func handleAdminLoginForm(w http.ResponseWriter, r *http.Request) {
	client, ok := middleware.ClientFromContext(r.Context())
	if !ok {
		http.Error(w, "missing client", http.StatusBadRequest)
		return
	}
	session, err := orchestrators.ExecuteCheckAdminSession(r.Context(), adminDeps(client))
	if err != nil {
		internalError(w, err)
		return
	}
	if session.Valid(app.Now()) {
		http.Redirect(w, r, "/admin", http.StatusSeeOther)
		return
	}
	renderTemplate(w, r, http.StatusOK, "admin_login.html", "Admin Login", false, map[string]any{})
}

// handleAdminLogin handles POST /admin/login
func handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	client, ok := middleware.ClientFromContext(r.Context())
	if !ok {
		http.Error(w, "missing client", http.StatusBadRequest)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form submission", http.StatusBadRequest)
		return
	}

	result := orchestrators.ExecuteAdminLogin(r.Context(), orchestrators.AdminLoginInput{
		Password: r.PostFormValue("password"),
	}, adminDeps(client))

	if errors.Is(result.Err, context.Canceled) || errors.Is(result.Err, context.DeadlineExceeded) {
		// The browser went away during the login delay.
		return
	}
	if !result.Success {
		if wantsJSON(r) {
			writeJSON(w, r, http.StatusUnauthorized, map[string]string{"error": result.Message})
			return
		}
		renderTemplate(w, r, http.StatusUnauthorized, "admin_login.html", "Admin Login", false, map[string]any{
			"Error": result.Message,
		})
		return
	}

	if wantsJSON(r) {
		writeJSON(w, r, http.StatusOK, map[string]any{"authenticated": true, "since": result.Session.Since})
		return
	}
	http.Redirect(w, r, "/admin", http.StatusSeeOther)
}

// handleAdminLogout handles POST /admin/logout
func handleAdminLogout(w http.ResponseWriter, r *http.Request) {
	client, ok := middleware.ClientFromContext(r.Context())
	if !ok {
		http.Error(w, "missing client", http.StatusBadRequest)
		return
	}
	if err := orchestrators.ExecuteAdminLogout(r.Context(), adminDeps(client)); err != nil {
		internalError(w, err)
		return
	}
	clients.dropDashboard(client.ID)
	if wantsJSON(r) {
		writeJSON(w, r, http.StatusOK, map[string]bool{"authenticated": false})
		return
	}
	http.Redirect(w, r, "/admin/login", http.StatusSeeOther)
}

// dashboardJSON is the JSON form of the dashboard view.
type dashboardJSON struct {
	Query         dashboard.Query             `json:"query"`
	Registrations []registration.Registration `json:"registrations"`
	Count         int                         `json:"count"`
	Total         int                         `json:"total"`
	Page          int                         `json:"page"`
	TotalPages    int                         `json:"total_pages"`
	Error         string                      `json:"error,omitempty"`
	CanExport     bool                        `json:"can_export"`
}

// handleAdminDashboard handles GET /admin (q, filter, sort, dir, page, per_page)
// Every visit re-fetches. Within the fetch interval the loaded set is shown as is.
func handleAdminDashboard(w http.ResponseWriter, r *http.Request) {
	client, ok := requireAdmin(w, r)
	if !ok {
		return
	}
	dc := clients.dashboard(client)
	dc.SetQuery(dashboard.ParseQuery(r.URL.Query()))
	dc.Refresh(r.Context())

	pp := listutil.ParsePageParams(r.URL.Query())
	view := dc.View(pp.Page, pp.PerPage)

	if wantsJSON(r) {
		status := http.StatusOK
		if !view.Loaded && view.Error != "" {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, r, status, dashboardJSON{
			Query:         view.Query,
			Registrations: view.Rows,
			Count:         view.Count,
			Total:         view.Total,
			Page:          view.Page.Page,
			TotalPages:    view.Page.TotalPages,
			Error:         view.Error,
			CanExport:     view.CanExport,
		})
		return
	}

	renderTemplate(w, r, http.StatusOK, "admin.html", "Registration Dashboard", true, map[string]any{
		"View":           view,
		"FilterValues":   dashboard.FilterValues,
		"PerPage":        pp.PerPage,
		"PerPageOptions": listutil.PerPageOptions,
	})
}

// dashboardTarget is the dashboard URL carrying the posted query.
func dashboardTarget(form url.Values) url.Values {
	return dashboard.ParseQuery(form).Values()
}

// handleAdminSort handles POST /admin/sort (key plus the current q, filter, sort, dir)
func handleAdminSort(w http.ResponseWriter, r *http.Request) {
	client, ok := requireAdmin(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form submission", http.StatusBadRequest)
		return
	}
	dc := clients.dashboard(client)
	dc.SetQuery(dashboard.ParseQuery(r.PostForm))
	if err := dc.ToggleSort(r.PostFormValue("key")); err != nil {
		http.Error(w, "unknown sort key", http.StatusBadRequest)
		return
	}
	redirectWith(w, r, "/admin", dc.View(1, listutil.DefaultPerPage).Query.Values())
}

// handleAdminRetry handles POST /admin/retry (clear_cache=true drops the fetch stamp first)
func handleAdminRetry(w http.ResponseWriter, r *http.Request) {
	client, ok := requireAdmin(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form submission", http.StatusBadRequest)
		return
	}
	dc := clients.dashboard(client)
	res := dc.Load(r.Context(), formBool(r.PostFormValue("clear_cache")))
	if wantsJSON(r) {
		status := http.StatusOK
		switch {
		case errors.Is(res.Err, orchestrators.ErrRateLimited):
			status = http.StatusTooManyRequests
		case errors.Is(res.Err, orchestrators.ErrUnauthorized):
			status = http.StatusUnauthorized
		case res.Err != nil:
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, r, status, map[string]any{"success": res.Success, "message": res.Message, "count": len(res.Registrations)})
		return
	}
	redirectWith(w, r, "/admin", dashboardTarget(r.PostForm))
}

// handleAdminExport handles GET /admin/export (q, filter, sort, dir)
// The workbook holds every row of the filtered view, not just the current page.
func handleAdminExport(w http.ResponseWriter, r *http.Request) {
	client, ok := requireAdmin(w, r)
	if !ok {
		return
	}
	dc := clients.dashboard(client)
	dc.SetQuery(dashboard.ParseQuery(r.URL.Query()))

	var buf bytes.Buffer
	name, err := dc.Export(r.Context(), &buf)
	if errors.Is(err, export.ErrNoData) {
		http.Error(w, dashboard.MsgNoData, http.StatusConflict)
		return
	}
	if err != nil {
		internalError(w, err)
		return
	}

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	_, _ = buf.WriteTo(w)
}
