package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"gatekeeper"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// handleBank shows the challenge list and accepts new challenges,
// downloads and uploads
func (s *Server) handleBank(w http.ResponseWriter, r *http.Request) {
	if r.Method == "GET" {
		err := s.templates["bank"].ExecuteTemplate(w, "base.html", map[string]interface{}{
			"Challenges": s.bank.Snapshot(),
			"Suggest":    s.maker != nil,
		})
		if err != nil {
			log.Printf("Template error in bank: %v", err)
			http.Error(w, "Template error", http.StatusInternalServerError)
		}
		return
	}

	if r.Method != "POST" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseMultipartForm(1 << 20); err != nil {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Failed to parse form", http.StatusBadRequest)
			return
		}
	}

	switch r.FormValue("action") {
	case "add":
		s.addChallenge(w, r)
	case "upload":
		s.uploadBank(w, r)
	default:
		http.Error(w, "Unknown action", http.StatusBadRequest)
	}
}

func (s *Server) addChallenge(w http.ResponseWriter, r *http.Request) {
	ch := challengeFromForm(r)
	if err := s.bank.Add(ch); err != nil {
		http.Error(w, fmt.Sprintf("Failed to add challenge: %v", err), http.StatusBadRequest)
		return
	}
	if err := s.bank.Save(); err != nil {
		log.Printf("Failed to save bank: %v", err)
		http.Error(w, "Failed to save bank", http.StatusInternalServerError)
		return
	}
	log.Printf("Added challenge %q", ch.Question)
	http.Redirect(w, r, "/bank", http.StatusSeeOther)
}

func (s *Server) downloadBank(w http.ResponseWriter, _ *http.Request) {
	data, err := yaml.Marshal(s.cfg)
	if err != nil {
		http.Error(w, "Failed to marshal config", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/x-yaml")
	w.Header().Set("Content-Disposition", "attachment; filename=config.yml")
	w.Write(data)
}

func (s *Server) uploadBank(w http.ResponseWriter, r *http.Request) {
	file, _, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "No file uploaded", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "Failed to read file", http.StatusBadRequest)
		return
	}

	// Validate before anything touches the live document
	uploaded, err := gatekeeper.ParseConfig(data)
	if err != nil {
		http.Error(w, fmt.Sprintf("Corrupt config: %v", err), http.StatusBadRequest)
		return
	}

	replaceBank(s.bank, uploaded.Challenges)
	if err := s.bank.Save(); err != nil {
		log.Printf("Failed to save bank: %v", err)
		http.Error(w, "Failed to save bank", http.StatusInternalServerError)
		return
	}
	log.Printf("Uploaded config with %d challenges", len(uploaded.Challenges))
	http.Redirect(w, r, "/bank", http.StatusSeeOther)
}

// replaceBank swaps the bank's content for the uploaded challenge list
func replaceBank(bank *gatekeeper.Bank, challenges []gatekeeper.Challenge) {
	for bank.Len() > 0 {
		bank.Delete(bank.Len() - 1)
	}
	for _, ch := range challenges {
		if err := bank.Add(ch); err != nil {
			log.Printf("Skipping uploaded challenge %q: %v", ch.Question, err)
		}
	}
}

// handleChallenge routes /bank/{index} and /bank/{index}/delete
func (s *Server) handleChallenge(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/bank/")
	parts := strings.Split(path, "/")

	if len(parts) == 0 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}

	if len(parts) == 1 && parts[0] == "download" {
		s.downloadBank(w, r)
		return
	}

	index, err := strconv.Atoi(parts[0])
	if err != nil {
		http.NotFound(w, r)
		return
	}

	if len(parts) == 2 && parts[1] == "delete" {
		s.deleteChallenge(w, r, index)
		return
	}
	if len(parts) == 1 {
		s.editChallenge(w, r, index)
		return
	}

	http.NotFound(w, r)
}

func (s *Server) editChallenge(w http.ResponseWriter, r *http.Request, index int) {
	if r.Method == "GET" {
		ch, err := s.bank.Get(index)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		err = s.templates["edit"].ExecuteTemplate(w, "base.html", map[string]interface{}{
			"Index":     index,
			"Challenge": ch,
			"Wrong":     strings.Join(ch.Wrong, "\n"),
		})
		if err != nil {
			log.Printf("Template error in edit: %v", err)
			http.Error(w, "Template error", http.StatusInternalServerError)
		}
		return
	}

	if r.Method != "POST" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "Failed to parse form", http.StatusBadRequest)
		return
	}

	ch := challengeFromForm(r)
	if err := s.bank.Update(index, ch); err != nil {
		http.Error(w, fmt.Sprintf("Failed to update challenge: %v", err), http.StatusBadRequest)
		return
	}
	if err := s.bank.Save(); err != nil {
		log.Printf("Failed to save bank: %v", err)
		http.Error(w, "Failed to save bank", http.StatusInternalServerError)
		return
	}
	log.Printf("Updated challenge %d", index)
	http.Redirect(w, r, "/bank", http.StatusSeeOther)
}

func (s *Server) deleteChallenge(w http.ResponseWriter, r *http.Request, index int) {
	if r.Method != "POST" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := s.bank.Delete(index); err != nil {
		http.NotFound(w, r)
		return
	}
	if err := s.bank.Save(); err != nil {
		log.Printf("Failed to save bank: %v", err)
		http.Error(w, "Failed to save bank", http.StatusInternalServerError)
		return
	}
	log.Printf("Deleted challenge %d", index)
	http.Redirect(w, r, "/bank", http.StatusSeeOther)
}

// handleSuggest runs the draft-and-review pipeline and lets the admin add
// accepted drafts to the bank
func (s *Server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	if s.maker == nil {
		http.Error(w, "Suggesting is disabled: OPENAI_API_KEY not set", http.StatusNotImplemented)
		return
	}

	if r.Method == "GET" {
		err := s.templates["suggest"].ExecuteTemplate(w, "base.html", map[string]interface{}{})
		if err != nil {
			log.Printf("Template error in suggest: %v", err)
			http.Error(w, "Template error", http.StatusInternalServerError)
		}
		return
	}

	if r.Method != "POST" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "Failed to parse form", http.StatusBadRequest)
		return
	}

	if r.FormValue("action") == "add" {
		ch := challengeFromForm(r)
		if err := s.bank.Add(ch); err != nil {
			http.Error(w, fmt.Sprintf("Failed to add challenge: %v", err), http.StatusBadRequest)
			return
		}
		if err := s.bank.Save(); err != nil {
			log.Printf("Failed to save bank: %v", err)
			http.Error(w, "Failed to save bank", http.StatusInternalServerError)
			return
		}
		log.Printf("Added suggested challenge %q", ch.Question)
		http.Redirect(w, r, "/bank", http.StatusSeeOther)
		return
	}

	topic := r.FormValue("topic")
	count, err := strconv.Atoi(r.FormValue("count"))
	if err != nil || count <= 0 || count > 10 {
		count = 5
	}

	sessionID := uuid.NewString()
	logger, err := gatekeeper.NewSuggestLogger(sessionID, topic)
	if err != nil {
		log.Printf("Failed to create suggest logger: %v", err)
		// Continue without a transcript rather than failing
	} else {
		defer logger.Close()
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	drafts, err := s.maker.Draft(ctx, topic, count, logger)
	if err != nil {
		log.Printf("Suggest: %v", err)
		http.Error(w, "Failed to draft challenges", http.StatusBadGateway)
		return
	}

	type reviewed struct {
		Challenge gatekeeper.Challenge
		Wrong     string
		Reason    string
	}
	var accepted []reviewed
	for _, draft := range drafts {
		verdict, err := s.checker.Review(ctx, draft, logger)
		if err != nil {
			log.Printf("Suggest: review failed for %q: %v", draft.Question, err)
			continue
		}
		if verdict.Accept {
			accepted = append(accepted, reviewed{
				Challenge: draft,
				Wrong:     strings.Join(draft.Wrong, "\n"),
				Reason:    verdict.Reason,
			})
		}
	}

	err = s.templates["suggest"].ExecuteTemplate(w, "base.html", map[string]interface{}{
		"Topic":    topic,
		"Accepted": accepted,
		"Ran":      true,
	})
	if err != nil {
		log.Printf("Template error in suggest: %v", err)
		http.Error(w, "Template error", http.StatusInternalServerError)
	}
}

// handleAudit lists recent decided verifications
func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	records, err := s.audit.Recent(100)
	if err != nil {
		log.Printf("Failed to load audit records: %v", err)
		http.Error(w, "Failed to load audit records", http.StatusInternalServerError)
		return
	}
	counts, err := s.audit.OutcomeCounts()
	if err != nil {
		log.Printf("Failed to load outcome counts: %v", err)
		http.Error(w, "Failed to load outcome counts", http.StatusInternalServerError)
		return
	}

	err = s.templates["audit"].ExecuteTemplate(w, "base.html", map[string]interface{}{
		"Records": records,
		"Counts":  counts,
	})
	if err != nil {
		log.Printf("Template error in audit: %v", err)
		http.Error(w, "Template error", http.StatusInternalServerError)
	}
}

// challengeFromForm builds a challenge from the shared form fields; wrong
// answers come one per line
func challengeFromForm(r *http.Request) gatekeeper.Challenge {
	var wrong []string
	for _, line := range strings.Split(r.FormValue("wrong"), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			wrong = append(wrong, line)
		}
	}
	return gatekeeper.Challenge{
		Question: strings.TrimSpace(r.FormValue("question")),
		Answer:   strings.TrimSpace(r.FormValue("answer")),
		Wrong:    wrong,
	}
}
