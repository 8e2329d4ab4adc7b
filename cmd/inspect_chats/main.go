package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/MoneTicket/monetai/internal/config"
	"github.com/MoneTicket/monetai/internal/entity"
	"github.com/MoneTicket/monetai/internal/pkg/logger"
	"github.com/MoneTicket/monetai/internal/repository/contract"
	"github.com/MoneTicket/monetai/internal/repository/implementation"
	"github.com/MoneTicket/monetai/pkg/database"

	"github.com/fatih/color"
	"github.com/redis/go-redis/v9"
)

func main() {
	owner := flag.String("owner", "", "owner id whose history to list")
	chatId := flag.String("chat", "", "single chat id to dump")
	limit := flag.Int("limit", 20, "page size when listing")
	offset := flag.Int("offset", 0, "page offset when listing")
	audit := flag.Bool("audit", false, "check the owner index against the stored chats (redis only)")
	flag.Parse()

	if *owner == "" && *chatId == "" {
		color.Red("Usage: inspect_chats -owner <id> [-limit n] [-offset n] [-audit] | -chat <id>")
		os.Exit(2)
	}

	cfg := config.Load()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var rdb redis.UniversalClient
	var repo contract.ChatRepository
	switch cfg.Chat.Store {
	case "postgres":
		db, err := database.NewGormDBFromDSN(cfg.Database.Connection)
		if err != nil {
			log.Fatal("Error: Failed to connect to database:", err)
		}
		repo = implementation.NewChatRepositoryGorm(db, logger.NewNopLogger())
	default:
		opt, err := redis.ParseURL(cfg.App.RedisURL)
		if err != nil {
			opt = &redis.Options{Addr: cfg.App.RedisURL}
		}
		rdb = redis.NewClient(opt)
		defer rdb.Close()
		repo = implementation.NewChatRepositoryRedis(rdb, cfg.Chat.SchemaVersion, logger.NewNopLogger())
	}

	if *chatId != "" {
		chat, err := repo.FindByID(ctx, *chatId)
		if err != nil {
			color.Red("Failed: %v", err)
			os.Exit(1)
		}
		if chat == nil {
			color.Yellow("Chat %s not found", *chatId)
			return
		}
		printChat(chat, true)
		return
	}

	if *audit {
		if rdb == nil {
			color.Red("-audit needs CHAT_STORE=redis")
			os.Exit(2)
		}
		runAudit(ctx, rdb, cfg.Chat.SchemaVersion, *owner)
		return
	}

	chats, scanned, err := repo.FindPageByOwner(ctx, *owner, *offset, *limit)
	if err != nil {
		color.Red("Failed: %v", err)
		os.Exit(1)
	}
	color.Cyan("History of %s (offset %d, %d index entries, %d readable)\n", *owner, *offset, scanned, len(chats))
	for _, chat := range chats {
		printChat(chat, false)
	}
	if scanned == *limit {
		color.HiBlack("next page: -offset %d", *offset+*limit)
	}
}

func printChat(chat *entity.Chat, full bool) {
	title := chat.Title
	if title == "" {
		title = "(untitled)"
	}
	visibility := color.HiBlackString("private")
	if chat.IsShared() {
		visibility = color.GreenString("shared %s", chat.SharePath)
	}
	fmt.Printf("%s  %s  %d messages  %s\n", color.YellowString(chat.Id), title, len(chat.Messages), visibility)
	if !full {
		return
	}

	fmt.Printf("  owner: %s\n", chat.OwnerId)
	if !chat.CreatedAt.IsZero() {
		fmt.Printf("  created: %s\n", chat.CreatedAt.Format(time.RFC3339))
	}
	for _, msg := range chat.Messages {
		role := color.CyanString("%-9s", msg.Role)
		fmt.Printf("  %s %s\n", role, strings.ReplaceAll(msg.Content, "\n", "\n            "))
		for _, inv := range msg.ToolInvocations {
			fmt.Printf("            %s %s(%s)\n", color.MagentaString("tool"), inv.ToolName, string(inv.Args))
		}
	}
}

func runAudit(ctx context.Context, rdb redis.UniversalClient, version, owner string) {
	report, err := implementation.AuditOwnerIndex(ctx, rdb, version, owner)
	if err != nil {
		color.Red("Failed: %v", err)
		os.Exit(1)
	}

	color.Cyan("Index of %s: %d entries", owner, report.Entries)
	if report.Healthy() {
		color.Green("OK")
		return
	}
	for _, key := range report.Orphans {
		color.Red("orphan   %s (no chat hash)", key)
	}
	for _, key := range report.Foreign {
		color.Red("foreign  %s (stored under another owner)", key)
	}
	for _, key := range report.Invalid {
		color.Red("invalid  %s", key)
	}
	os.Exit(1)
}
