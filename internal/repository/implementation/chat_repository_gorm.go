package implementation

import (
	"context"
	"errors"
	"fmt"

	"github.com/MoneTicket/monetai/internal/domain"
	"github.com/MoneTicket/monetai/internal/entity"
	"github.com/MoneTicket/monetai/internal/mapper"
	"github.com/MoneTicket/monetai/internal/model"
	"github.com/MoneTicket/monetai/internal/pkg/logger"
	"github.com/MoneTicket/monetai/internal/repository/contract"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const gormRepoModule = "ChatRepositoryGorm"

// ChatRepositoryGorm keeps chats in one relational table; the (owner_id, score)
// index replaces the per-owner sorted set.
type ChatRepositoryGorm struct {
	db     *gorm.DB
	mapper *mapper.ChatMapper
	logger logger.ILogger
}

func NewChatRepositoryGorm(db *gorm.DB, log logger.ILogger) contract.ChatRepository {
	return &ChatRepositoryGorm{
		db:     db,
		mapper: mapper.NewChatMapper(),
		logger: log,
	}
}

// Put upserts in one statement. The conflict update never touches owner_id and
// only fires when the stored owner matches, so a racing first save by another
// owner affects no rows. Optional columns follow HSET merge rules: an empty
// value keeps what is stored.
func (r *ChatRepositoryGorm) Put(ctx context.Context, chat *entity.Chat, ownerId string, score int64) error {
	m, err := r.mapper.ChatToModel(chat, ownerId, score)
	if err != nil {
		return err
	}

	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.Set{
			{Column: clause.Column{Name: "title"}, Value: gorm.Expr("COALESCE(NULLIF(excluded.title, ''), chats.title)")},
			{Column: clause.Column{Name: "path"}, Value: gorm.Expr("COALESCE(NULLIF(excluded.path, ''), chats.path)")},
			{Column: clause.Column{Name: "created_at"}, Value: gorm.Expr("COALESCE(excluded.created_at, chats.created_at)")},
			// sharing is never revoked by a later save
			{Column: clause.Column{Name: "share_path"}, Value: gorm.Expr("COALESCE(excluded.share_path, chats.share_path)")},
			{Column: clause.Column{Name: "messages"}, Value: gorm.Expr("excluded.messages")},
			{Column: clause.Column{Name: "score"}, Value: gorm.Expr("excluded.score")},
		},
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "chats.owner_id = excluded.owner_id"},
		}},
	}).Create(m)
	if res.Error != nil {
		return classify(res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("chat %s belongs to another owner: %w", chat.Id, domain.ErrUnauthorized)
	}
	return nil
}

func (r *ChatRepositoryGorm) SetSharePath(ctx context.Context, id, ownerId, path string) error {
	res := r.db.WithContext(ctx).
		Model(&model.Chat{}).
		Where("id = ? AND owner_id = ?", id, ownerId).
		Update("share_path", path)
	if res.Error != nil {
		return classify(res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	var count int64
	if err := r.db.WithContext(ctx).Model(&model.Chat{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return classify(err)
	}
	if count == 0 {
		return fmt.Errorf("chat %s: %w", id, domain.ErrNotFound)
	}
	return fmt.Errorf("chat %s belongs to another owner: %w", id, domain.ErrUnauthorized)
}

func (r *ChatRepositoryGorm) FindByID(ctx context.Context, id string) (*entity.Chat, error) {
	var m model.Chat
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, classify(err)
	}
	return r.decode(&m), nil
}

func (r *ChatRepositoryGorm) DeleteByID(ctx context.Context, id, ownerId string) error {
	err := r.db.WithContext(ctx).
		Where("id = ? AND owner_id = ?", id, ownerId).
		Delete(&model.Chat{}).Error
	return classify(err)
}

func (r *ChatRepositoryGorm) FindPageByOwner(ctx context.Context, ownerId string, offset, limit int) ([]*entity.Chat, int, error) {
	query := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerId).
		Order("score DESC").
		Offset(offset)
	if limit > 0 {
		query = query.Limit(limit)
	}

	var models []*model.Chat
	if err := query.Find(&models).Error; err != nil {
		return nil, 0, classify(err)
	}

	chats := make([]*entity.Chat, 0, len(models))
	for _, m := range models {
		chats = append(chats, r.decode(m))
	}
	return chats, len(models), nil
}

func (r *ChatRepositoryGorm) DeleteAllByOwner(ctx context.Context, ownerId string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.Chat{}).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("owner_id = ?", ownerId).
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		return tx.Where("owner_id = ? AND id IN ?", ownerId, ids).Delete(&model.Chat{}).Error
	})
	if err != nil {
		return nil, classify(err)
	}
	return ids, nil
}

func (r *ChatRepositoryGorm) decode(m *model.Chat) *entity.Chat {
	chat, err := r.mapper.ModelToChat(m)
	if err != nil {
		r.logger.Warn(gormRepoModule, "Corrupt chat transcript, serving it without messages", map[string]interface{}{"error": err.Error()})
	}
	return chat
}
