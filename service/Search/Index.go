// Package Search 笔记全文检索，bleve 内存索引，启动时从数据库重建
package Search

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	bleveQuery "github.com/blevesearch/bleve/v2/search/query"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/abdul977/whimsical-idea-keeper/database"
)

const defaultLimit = 50

// Indexer 笔记服务依赖的索引接口
type Indexer interface {
	IndexNote(ctx context.Context, note *database.Note) error
	RemoveNote(ctx context.Context, noteID uint) error
	// Search within 非 nil 时只在这些笔记中检索
	Search(ctx context.Context, query string, within []uint, limit int) ([]uint, error)
}

type document struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type BleveIndex struct {
	index  bleve.Index
	logger *zap.Logger
}

// NewBleveIndex 标准分析器，只做小写和分词
func NewBleveIndex(logger *zap.Logger) (*BleveIndex, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	im := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()
	textField := bleve.NewTextFieldMapping()
	textField.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("title", textField)
	docMapping.AddFieldMappingsAt("content", textField)
	im.DefaultMapping = docMapping

	index, err := bleve.NewMemOnly(im)
	if err != nil {
		return nil, fmt.Errorf("创建搜索索引失败: %w", err)
	}
	return &BleveIndex{index: index, logger: logger}, nil
}

func docID(noteID uint) string {
	return strconv.FormatUint(uint64(noteID), 10)
}

// noteDocument 文字内容和音频转写一起索引
func noteDocument(note *database.Note) document {
	parts := make([]string, 0, len(note.Entries))
	for _, entry := range note.Entries {
		if entry.Content != "" {
			parts = append(parts, entry.Content)
		}
		if entry.AudioTranscription != "" {
			parts = append(parts, entry.AudioTranscription)
		}
	}
	return document{Title: note.Title, Content: strings.Join(parts, "\n")}
}

func (b *BleveIndex) IndexNote(ctx context.Context, note *database.Note) error {
	if err := b.index.Index(docID(note.ID), noteDocument(note)); err != nil {
		return fmt.Errorf("索引笔记失败: %w", err)
	}
	return nil
}

func (b *BleveIndex) RemoveNote(ctx context.Context, noteID uint) error {
	if err := b.index.Delete(docID(noteID)); err != nil {
		return fmt.Errorf("删除笔记索引失败: %w", err)
	}
	return nil
}

// Search 返回按相关度排序的笔记ID，访问范围作为查询条件参与检索
func (b *BleveIndex) Search(ctx context.Context, query string, within []uint, limit int) ([]uint, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if within != nil && len(within) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = defaultLimit
	}

	var q bleveQuery.Query = bleve.NewMatchQuery(query)
	if within != nil {
		ids := make([]string, 0, len(within))
		for _, id := range within {
			ids = append(ids, docID(id))
		}
		q = bleve.NewConjunctionQuery(q, bleve.NewDocIDQuery(ids))
	}

	req := bleve.NewSearchRequest(q)
	req.Size = limit
	results, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("搜索失败: %w", err)
	}

	ids := make([]uint, 0, len(results.Hits))
	for _, hit := range results.Hits {
		id, err := strconv.ParseUint(hit.ID, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, uint(id))
	}
	return ids, nil
}

// Rebuild 从数据库加载全部笔记重新索引
func (b *BleveIndex) Rebuild(ctx context.Context, db *gorm.DB) error {
	var notes []database.Note
	err := db.WithContext(ctx).
		Preload("Entries", func(db *gorm.DB) *gorm.DB { return db.Order("entry_order ASC") }).
		Find(&notes).Error
	if err != nil {
		return fmt.Errorf("加载笔记失败: %w", err)
	}

	batch := b.index.NewBatch()
	for i := range notes {
		if err := batch.Index(docID(notes[i].ID), noteDocument(&notes[i])); err != nil {
			return fmt.Errorf("索引笔记失败: %w", err)
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("批量索引失败: %w", err)
	}
	b.logger.Info("搜索索引已重建", zap.Int("notes", len(notes)))
	return nil
}

func (b *BleveIndex) Close() error {
	return b.index.Close()
}

// NopIndexer 不需要搜索时使用
type NopIndexer struct{}

func (NopIndexer) IndexNote(context.Context, *database.Note) error { return nil }
func (NopIndexer) RemoveNote(context.Context, uint) error          { return nil }
func (NopIndexer) Search(context.Context, string, []uint, int) ([]uint, error) {
	return nil, nil
}
