package api

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/JakeFAU/scrapper/internal/scraper"
)

// errorDetail is one entry in a {"detail": [...]} error body.
type errorDetail struct {
	Type  string   `json:"type"`
	Loc   []string `json:"loc"`
	Msg   string   `json:"msg"`
	Input any      `json:"input"`
}

// extractionLocs maps extraction stages to the in-page script that failed.
var extractionLocs = map[string]string{
	"readability": "readability.js",
	"links":       "links.js",
}

// extractionTypes maps extraction stages to the error type reported to clients.
var extractionTypes = map[string]string{
	"readability": "article_parsing",
	"links":       "links_parsing",
}

func (s *Server) writeFailure(w http.ResponseWriter, err error) {
	var se *scraper.Error
	if !errors.As(err, &se) {
		s.logger.Error("unclassified failure", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	switch se.Kind {
	case scraper.KindValidation:
		writeDetail(w, http.StatusUnprocessableEntity, errorDetail{
			Type:  se.Field + "_parsing",
			Loc:   []string{"query", se.Field},
			Msg:   se.Msg,
			Input: se.Input,
		})
	case scraper.KindExtraction:
		typ, ok := extractionTypes[se.Stage]
		if !ok {
			typ = se.Stage + "_parsing"
		}
		loc, ok := extractionLocs[se.Stage]
		if !ok {
			loc = se.Stage
		}
		writeDetail(w, http.StatusBadRequest, errorDetail{Type: typ, Loc: []string{loc}, Msg: se.Msg, Input: se.URL})
	case scraper.KindNavigationTimeout:
		writeDetail(w, http.StatusGatewayTimeout, errorDetail{
			Type: "navigation_timeout", Loc: []string{se.Stage}, Msg: se.Msg, Input: se.URL,
		})
	case scraper.KindNotFound:
		writeError(w, http.StatusNotFound, upperFirst(se.Msg))
	default:
		writeDetail(w, http.StatusBadGateway, errorDetail{
			Type: "upstream", Loc: []string{se.Stage}, Msg: se.Msg, Input: se.URL,
		})
	}
}

func writeDetail(w http.ResponseWriter, status int, d errorDetail) {
	writeJSON(w, status, map[string][]errorDetail{"detail": {d}})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}

func upperFirst(s string) string {
	if s == "" || s[0] < 'a' || s[0] > 'z' {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}
