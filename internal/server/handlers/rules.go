package handlers

import (
	"net/http"

	"github.com/3leaps/trellis/pkg/lint"
)

// RulesResponse lists the registered lint rules.
type RulesResponse struct {
	Rules []lint.RuleInfo `json:"rules"`
}

// RulesHandler lists every lint rule with its severity and description.
func RulesHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, RulesResponse{Rules: lint.Rules()})
}
