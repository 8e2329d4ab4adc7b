package mapper

import (
	"github.com/MoneTicket/monetai/internal/dto"
	"github.com/MoneTicket/monetai/internal/entity"
)

func (m *ChatMapper) RequestToChat(req *dto.SaveChatRequest) *entity.Chat {
	chat := &entity.Chat{
		Id:       req.Id,
		Title:    req.Title,
		Path:     req.Path,
		Messages: make([]entity.Message, 0, len(req.Messages)),
	}
	if req.CreatedAt != nil {
		chat.CreatedAt = *req.CreatedAt
	}
	for _, msg := range req.Messages {
		chat.Messages = append(chat.Messages, entity.Message{
			Id:              msg.Id,
			Role:            msg.Role,
			Content:         msg.Content,
			ToolInvocations: msg.ToolInvocations,
			CreatedAt:       msg.CreatedAt,
		})
	}
	return chat
}

func (m *ChatMapper) ChatToResponse(chat *entity.Chat) dto.ChatResponse {
	res := dto.ChatResponse{
		Id:        chat.Id,
		OwnerId:   chat.OwnerId,
		Title:     chat.Title,
		Path:      chat.Path,
		Messages:  make([]dto.ChatMessage, 0, len(chat.Messages)),
		SharePath: chat.SharePath,
	}
	if !chat.CreatedAt.IsZero() {
		createdAt := chat.CreatedAt
		res.CreatedAt = &createdAt
	}
	for _, msg := range chat.Messages {
		res.Messages = append(res.Messages, dto.ChatMessage{
			Id:              msg.Id,
			Role:            msg.Role,
			Content:         msg.Content,
			ToolInvocations: msg.ToolInvocations,
			CreatedAt:       msg.CreatedAt,
		})
	}
	return res
}

func (m *ChatMapper) ChatsToResponse(chats []*entity.Chat) []dto.ChatResponse {
	res := make([]dto.ChatResponse, 0, len(chats))
	for _, chat := range chats {
		res = append(res, m.ChatToResponse(chat))
	}
	return res
}
