package api

import (
	"bytes"
	"embed"
	"encoding/json"
	"html/template"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/scrapper/internal/scraper"
)

//go:embed templates/view.html
var templateFS embed.FS

var viewTemplate = template.Must(template.ParseFS(templateFS, "templates/view.html"))

// viewData is the union of the result fields the HTML view renders.
type viewData struct {
	ID            string         `json:"id"`
	URL           string         `json:"url"`
	Domain        string         `json:"domain"`
	Date          string         `json:"date"`
	ResultURI     string         `json:"resultUri"`
	Title         string         `json:"title"`
	Byline        string         `json:"byline"`
	Excerpt       string         `json:"excerpt"`
	Content       string         `json:"content"`
	Links         []scraper.Link `json:"links"`
	ScreenshotURI string         `json:"screenshotUri"`
}

func (s *Server) view(w http.ResponseWriter, r *http.Request) {
	body, err := s.scraper.Result(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	var data viewData
	if err := json.Unmarshal(body, &data); err != nil {
		s.logger.Error("decode cached result", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	var buf bytes.Buffer
	if err := viewTemplate.Execute(&buf, data); err != nil {
		s.logger.Error("render view", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
