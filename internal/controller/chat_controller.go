package controller

import (
	"errors"

	"github.com/MoneTicket/monetai/internal/domain"
	"github.com/MoneTicket/monetai/internal/dto"
	"github.com/MoneTicket/monetai/internal/mapper"
	"github.com/MoneTicket/monetai/internal/pkg/serverutils"
	"github.com/MoneTicket/monetai/internal/service"
	internalWS "github.com/MoneTicket/monetai/internal/websocket"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

const chatNotFound = "Chat not found"

type IChatController interface {
	RegisterRoutes(r fiber.Router)
	List(ctx *fiber.Ctx) error
	ListAll(ctx *fiber.Ctx) error
	Show(ctx *fiber.Ctx) error
	ShowShared(ctx *fiber.Ctx) error
	Save(ctx *fiber.Ctx) error
	Delete(ctx *fiber.Ctx) error
	ClearAll(ctx *fiber.Ctx) error
	Share(ctx *fiber.Ctx) error
}

type chatController struct {
	chatService service.IChatHistoryService
	hub         *internalWS.Hub
	mapper      *mapper.ChatMapper
	jwtSecret   string
}

// NewChatController builds the chat history endpoints. hub may be nil, in
// which case the live update socket is not mounted.
func NewChatController(chatService service.IChatHistoryService, hub *internalWS.Hub, jwtSecret string) IChatController {
	return &chatController{
		chatService: chatService,
		hub:         hub,
		mapper:      mapper.NewChatMapper(),
		jwtSecret:   jwtSecret,
	}
}

func (c *chatController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/chats/v1")
	h.Use(serverutils.OptionalJwtMiddleware(c.jwtSecret))
	h.Get("", c.List)
	h.Get("all", c.ListAll)
	if c.hub != nil {
		// anonymous callers have no history to follow
		h.Get("ws", c.upgrade, serverutils.JwtMiddleware(c.jwtSecret), websocket.New(c.serveWs))
	}
	h.Get(":id", c.Show)
	h.Put(":id", c.Save)
	h.Delete("", c.ClearAll)
	h.Delete(":id", c.Delete)
	h.Post(":id/share", c.Share)

	// public share links, no auth
	r.Get("/share/v1/:id", c.ShowShared)
}

func (c *chatController) List(ctx *fiber.Ctx) error {
	page, err := c.chatService.ListPage(
		ctx.UserContext(),
		serverutils.CallerId(ctx),
		ctx.QueryInt("limit", 0),
		ctx.QueryInt("offset", 0),
	)
	if err != nil {
		return err
	}

	return ctx.JSON(dto.ChatPageResponse{
		Chats:      c.mapper.ChatsToResponse(page.Chats),
		NextOffset: page.NextOffset,
	})
}

func (c *chatController) ListAll(ctx *fiber.Ctx) error {
	chats, err := c.chatService.List(ctx.UserContext(), serverutils.CallerId(ctx))
	if err != nil {
		return err
	}

	return ctx.JSON(dto.ChatListResponse{Chats: c.mapper.ChatsToResponse(chats)})
}

func (c *chatController) Show(ctx *fiber.Ctx) error {
	chat, err := c.chatService.Get(ctx.UserContext(), ctx.Params("id"), serverutils.CallerId(ctx))
	if err != nil {
		return err
	}
	if chat == nil {
		return ctx.Status(fiber.StatusNotFound).JSON(serverutils.ErrorBody{Error: chatNotFound})
	}

	return ctx.JSON(c.mapper.ChatToResponse(chat))
}

func (c *chatController) ShowShared(ctx *fiber.Ctx) error {
	chat, err := c.chatService.GetShared(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return err
	}
	if chat == nil {
		return ctx.Status(fiber.StatusNotFound).JSON(serverutils.ErrorBody{Error: chatNotFound})
	}

	return ctx.JSON(c.mapper.ChatToResponse(chat))
}

func (c *chatController) Save(ctx *fiber.Ctx) error {
	var req dto.SaveChatRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	req.Id = ctx.Params("id")

	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	err := c.chatService.Save(ctx.UserContext(), c.mapper.RequestToChat(&req), serverutils.CallerId(ctx))
	if err != nil {
		return c.fail(ctx, err, "Failed to save chat")
	}

	return ctx.JSON(fiber.Map{})
}

func (c *chatController) Delete(ctx *fiber.Ctx) error {
	if err := c.chatService.Delete(ctx.UserContext(), ctx.Params("id"), serverutils.CallerId(ctx)); err != nil {
		return c.fail(ctx, err, "Failed to delete chat")
	}

	return ctx.JSON(fiber.Map{})
}

func (c *chatController) ClearAll(ctx *fiber.Ctx) error {
	if err := c.chatService.ClearAll(ctx.UserContext(), serverutils.CallerId(ctx)); err != nil {
		return c.fail(ctx, err, "Failed to clear history")
	}

	return ctx.JSON(fiber.Map{})
}

func (c *chatController) Share(ctx *fiber.Ctx) error {
	chat, err := c.chatService.Share(ctx.UserContext(), ctx.Params("id"), serverutils.CallerId(ctx))
	if err != nil {
		return c.fail(ctx, err, "Failed to share chat")
	}
	if chat == nil {
		return ctx.Status(fiber.StatusNotFound).JSON(serverutils.ErrorBody{Error: chatNotFound})
	}

	return ctx.JSON(c.mapper.ChatToResponse(chat))
}

// fail renders a mutation error with its short public message.
func (c *chatController) fail(ctx *fiber.Ctx, err error, message string) error {
	if errors.Is(err, domain.ErrUnauthorized) || errors.Is(err, domain.ErrValidation) {
		message = serverutils.PublicMessage(err)
	}
	return ctx.Status(domain.StatusCode(err)).JSON(serverutils.ErrorBody{Error: message})
}

func (c *chatController) upgrade(ctx *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(ctx) {
		return fiber.ErrUpgradeRequired
	}
	return ctx.Next()
}

func (c *chatController) serveWs(conn *websocket.Conn) {
	ownerId, _ := conn.Locals(serverutils.UserIdKey).(string)
	internalWS.ServeWs(c.hub, conn, ownerId)
}
