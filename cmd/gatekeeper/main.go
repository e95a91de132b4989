package main

import (
	"flag"
	"log"
	"net/http"
	"os"
	"strings"

	"gatekeeper"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func main() {
	var (
		configPath = flag.String("config", "config.yml", "Path to the YAML config")
		dbPath     = flag.String("db", "gatekeeper.db", "Path to the audit database")
		verbose    = flag.Bool("verbose", false, "Enable verbose debugging output")
	)
	flag.Parse()

	gatekeeper.SetVerbose(*verbose)

	cfg, err := gatekeeper.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Token == "" {
		cfg.Token = os.Getenv("GATEKEEPER_TOKEN")
	}
	if cfg.Token == "" {
		log.Fatal("Bot token is required. Set token in the config or GATEKEEPER_TOKEN in the environment.")
	}

	// Keep a normalized backup, like the config the bot would write back
	if err := gatekeeper.SaveConfig(*configPath+".bak", cfg); err != nil {
		log.Printf("Failed to write config backup: %v", err)
	}

	audit, err := gatekeeper.OpenAuditDB(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open audit database: %v", err)
	}
	defer audit.Close()

	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		log.Fatalf("Failed to connect to Telegram: %v", err)
	}
	bot.Debug = *verbose

	bank := gatekeeper.NewBank(cfg, *configPath)
	service := gatekeeper.NewTelegramService(bot)
	engine := gatekeeper.NewEngine(cfg, bank, service, audit)

	commands := tgbotapi.NewSetMyCommands(
		tgbotapi.BotCommand{Command: "quiz", Description: "Post a quiz poll"},
		tgbotapi.BotCommand{Command: "admin", Description: "List chat administrators"},
		tgbotapi.BotCommand{Command: "reload", Description: "Reload the challenge bank (admins)"},
	)
	if _, err := bot.Request(commands); err != nil {
		log.Printf("Failed to register commands: %v", err)
	}

	updates := listen(bot)
	log.Printf("Bot @%s started, guarding chat %d with %d challenges", bot.Self.UserName, cfg.Chat, bank.Len())

	for update := range updates {
		dispatch(engine, service, cfg, update)
	}
}

// listen starts a webhook when DOMAIN is set, long polling otherwise
func listen(bot *tgbotapi.BotAPI) tgbotapi.UpdatesChannel {
	domain := os.Getenv("DOMAIN")
	if domain == "" {
		u := tgbotapi.NewUpdate(0)
		u.Timeout = 60
		return bot.GetUpdatesChan(u)
	}

	wh, err := tgbotapi.NewWebhook(strings.TrimSuffix(domain, "/") + "/" + bot.Token)
	if err != nil {
		log.Fatalf("Failed to build webhook config: %v", err)
	}
	if _, err := bot.Request(wh); err != nil {
		log.Fatalf("Failed to set webhook: %v", err)
	}

	updates := bot.ListenForWebhook("/" + bot.Token)
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	go func() {
		log.Fatal(http.ListenAndServe("0.0.0.0:"+port, nil))
	}()
	return updates
}

// dispatch routes one update into the engine. Joins and callbacks run on
// their own goroutines; the engine's registry arbitrates any races.
func dispatch(engine *gatekeeper.Engine, service *gatekeeper.TelegramService, cfg *gatekeeper.Config, update tgbotapi.Update) {
	if cq := update.CallbackQuery; cq != nil {
		event, err := gatekeeper.DecodeCallback(cq)
		if err != nil {
			log.Printf("Failed to decode callback: %v", err)
			return
		}
		switch ev := event.(type) {
		case gatekeeper.AnswerEvent:
			go engine.HandleAnswer(ev)
		case gatekeeper.AdminEvent:
			go engine.HandleAdmin(ev)
		}
		return
	}

	msg := update.Message
	if msg == nil {
		return
	}
	if cfg.Chat != 0 && msg.Chat.ID != cfg.Chat && !msg.Chat.IsPrivate() {
		return
	}

	if events := gatekeeper.JoinEvents(msg); len(events) > 0 {
		for _, ev := range events {
			go engine.HandleJoin(ev)
		}
		return
	}

	if !msg.IsCommand() {
		return
	}
	switch msg.Command() {
	case "start":
		reply(service, msg.Chat.ID, engine.StartMessage(msg.Chat.ID, msg.From.ID))

	case "quiz":
		if err := engine.HandleQuiz(msg.Chat.ID); err != nil {
			log.Printf("Quiz: %v", err)
		}

	case "admin":
		names, err := service.AdminNames(chatFor(cfg, msg))
		if err != nil {
			log.Printf("Admin list: %v", err)
			return
		}
		reply(service, msg.Chat.ID, strings.Join(names, "\n"))

	case "reload":
		ok, err := service.IsAdmin(chatFor(cfg, msg), msg.From.ID)
		if err != nil || (!ok && msg.From.ID != cfg.SuperAdmin) {
			reply(service, msg.Chat.ID, cfg.Messages.Other)
			return
		}
		reply(service, msg.Chat.ID, engine.RequestReload())
	}
}

// chatFor resolves which chat's admin list applies: the guarded chat for
// private commands, the message's chat otherwise
func chatFor(cfg *gatekeeper.Config, msg *tgbotapi.Message) int64 {
	if msg.Chat.IsPrivate() && cfg.Chat != 0 {
		return cfg.Chat
	}
	return msg.Chat.ID
}

func reply(service *gatekeeper.TelegramService, chatID int64, text string) {
	if text == "" {
		return
	}
	if _, err := service.Send(chatID, text, gatekeeper.SendOptions{}); err != nil {
		log.Printf("Failed to reply to chat %d: %v", chatID, err)
	}
}
