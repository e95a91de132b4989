package main

import (
	"crypto/rand"
	"flag"
	"html/template"
	"log"
	"net/http"
	"os"

	"gatekeeper"

	"github.com/gorilla/sessions"
)

// Server is the bank administration console
type Server struct {
	cfg       *gatekeeper.Config
	bank      *gatekeeper.Bank
	audit     *gatekeeper.AuditDB
	store     *sessions.CookieStore
	templates map[string]*template.Template
	maker     *gatekeeper.ChallengeMaker
	checker   *gatekeeper.ChallengeChecker
	password  string
}

func main() {
	var (
		configPath = flag.String("config", "config.yml", "Path to the YAML config")
		dbPath     = flag.String("db", "gatekeeper.db", "Path to the audit database")
		addr       = flag.String("addr", ":8180", "Listen address")
		verbose    = flag.Bool("verbose", false, "Enable verbose debugging output")
	)
	flag.Parse()

	gatekeeper.SetVerbose(*verbose)

	password := os.Getenv("BANKADMIN_PASSWORD")
	if password == "" {
		log.Fatal("BANKADMIN_PASSWORD environment variable is required")
	}

	cfg, err := gatekeeper.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	audit, err := gatekeeper.OpenAuditDB(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open audit database: %v", err)
	}
	defer audit.Close()

	sessionKey := []byte(os.Getenv("BANKADMIN_SESSION_KEY"))
	if len(sessionKey) == 0 {
		sessionKey = make([]byte, 32)
		if _, err := rand.Read(sessionKey); err != nil {
			log.Fatalf("Failed to generate session key: %v", err)
		}
	}

	// The suggest pipeline is only wired up when an API key is present
	var maker *gatekeeper.ChallengeMaker
	var checker *gatekeeper.ChallengeChecker
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		maker = gatekeeper.NewChallengeMaker(apiKey)
		checker = gatekeeper.NewChallengeChecker(apiKey)
	}

	templates := make(map[string]*template.Template)
	templateFiles := []struct {
		name string
		file string
	}{
		{"login", "templates/login.html"},
		{"bank", "templates/bank.html"},
		{"edit", "templates/edit.html"},
		{"suggest", "templates/suggest.html"},
		{"audit", "templates/audit.html"},
	}
	for _, tmpl := range templateFiles {
		templates[tmpl.name] = template.Must(template.ParseFiles("templates/base.html", tmpl.file))
	}

	server := &Server{
		cfg:       cfg,
		bank:      gatekeeper.NewBank(cfg, *configPath),
		audit:     audit,
		store:     sessions.NewCookieStore(sessionKey),
		templates: templates,
		maker:     maker,
		checker:   checker,
		password:  password,
	}

	http.HandleFunc("/", server.handleHome)
	http.HandleFunc("/login", server.handleLogin)
	http.HandleFunc("/logout", server.handleLogout)
	http.HandleFunc("/bank", server.requireLogin(server.handleBank))
	http.HandleFunc("/bank/", server.requireLogin(server.handleChallenge))
	http.HandleFunc("/suggest", server.requireLogin(server.handleSuggest))
	http.HandleFunc("/audit", server.requireLogin(server.handleAudit))

	log.Printf("Bank console listening on %s (%d challenges)", *addr, server.bank.Len())
	log.Fatal(http.ListenAndServe(*addr, nil))
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	http.Redirect(w, r, "/bank", http.StatusSeeOther)
}

// loggedIn reports whether the request carries an authenticated session
func (s *Server) loggedIn(r *http.Request) bool {
	session, _ := s.store.Get(r, "bankadmin-session")
	auth, ok := session.Values["authenticated"].(bool)
	return ok && auth
}

// requireLogin redirects unauthenticated requests to the login page
func (s *Server) requireLogin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.loggedIn(r) {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method == "GET" {
		err := s.templates["login"].ExecuteTemplate(w, "base.html", map[string]interface{}{})
		if err != nil {
			log.Printf("Template error in login: %v", err)
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

	if r.FormValue("password") != s.password {
		err := s.templates["login"].ExecuteTemplate(w, "base.html", map[string]interface{}{
			"Error": "Wrong password",
		})
		if err != nil {
			log.Printf("Template error in login: %v", err)
			http.Error(w, "Template error", http.StatusInternalServerError)
		}
		return
	}

	session, _ := s.store.Get(r, "bankadmin-session")
	session.Values["authenticated"] = true
	if err := session.Save(r, w); err != nil {
		log.Printf("Session save error: %v", err)
	}
	http.Redirect(w, r, "/bank", http.StatusSeeOther)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	session, _ := s.store.Get(r, "bankadmin-session")
	session.Values["authenticated"] = false
	if err := session.Save(r, w); err != nil {
		log.Printf("Session save error: %v", err)
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}
