package repositories

import (
	"context"
	"fmt"
	"log/slog"

	"support-chat/contract"
	"support-chat/domain/chat"
	"support-chat/domain/search"

	"github.com/blugelabs/bluge"
	"github.com/google/uuid"
)

const (
	fieldID        = "_id"
	fieldSessionID = "session_id"
	fieldSender    = "sender_type"
	fieldContent   = "content"
	fieldCreatedAt = "created_at"
)

// OpenSearchWriter opens the transcript index, in memory when path is empty.
func OpenSearchWriter(path string) (*bluge.Writer, error) {
	cfg := bluge.InMemoryOnlyConfig()
	if path != "" {
		cfg = bluge.DefaultConfig(path)
	}
	writer, err := bluge.OpenWriter(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open bluge writer: %w", err)
	}
	return writer, nil
}

// SearchRepository indexes message content in bluge.
// Documents are keyed by message ID, indexing twice replaces the document.
type SearchRepository struct {
	writer *bluge.Writer
	log    *slog.Logger
}

var _ contract.IIndexer = SearchRepository{}

func NewSearchRepository(writer *bluge.Writer, log *slog.Logger) SearchRepository {
	return SearchRepository{writer: writer, log: log}
}

func (r SearchRepository) Index(ctx context.Context, msg chat.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	doc := bluge.NewDocument(msg.ID.String()).
		AddField(bluge.NewKeywordField(fieldSessionID, msg.SessionID.String()).StoreValue()).
		AddField(bluge.NewKeywordField(fieldSender, string(msg.Sender)).StoreValue()).
		AddField(bluge.NewTextField(fieldContent, msg.Content).StoreValue()).
		AddField(bluge.NewDateTimeField(fieldCreatedAt, msg.CreatedAt).StoreValue())
	if err := r.writer.Update(doc.ID(), doc); err != nil {
		return fmt.Errorf("failed to index message %s: %w", msg.ID, err)
	}
	return nil
}

// Search runs a match query on content, narrowed to one session when asked.
// Without terms every message of the scope matches.
func (r SearchRepository) Search(ctx context.Context, query search.Query) (search.Result, error) {
	query = query.Normalize()
	reader, err := r.writer.Reader()
	if err != nil {
		return search.Result{}, fmt.Errorf("failed to open bluge reader: %w", err)
	}
	defer func() { _ = reader.Close() }()

	var textQuery bluge.Query = bluge.NewMatchAllQuery()
	if query.Terms != "" {
		textQuery = bluge.NewMatchQuery(query.Terms).SetField(fieldContent)
	}
	boolQuery := bluge.NewBooleanQuery().AddMust(textQuery)
	if query.SessionID != nil {
		boolQuery.AddMust(bluge.NewTermQuery(query.SessionID.String()).SetField(fieldSessionID))
	}

	request := bluge.NewTopNSearch(query.Limit, boolQuery).WithStandardAggregations()
	matches, err := reader.Search(ctx, request)
	if err != nil {
		return search.Result{}, fmt.Errorf("search failed: %w", err)
	}

	result := search.Result{Hits: make([]search.Hit, 0)}
	match, err := matches.Next()
	for err == nil && match != nil {
		hit := search.Hit{Score: match.Score}
		visitErr := match.VisitStoredFields(func(field string, value []byte) bool {
			switch field {
			case fieldID:
				hit.MessageID, _ = uuid.ParseBytes(value)
			case fieldSessionID:
				hit.SessionID, _ = uuid.ParseBytes(value)
			case fieldSender:
				hit.Sender = chat.SenderKind(value)
			case fieldContent:
				hit.Content = string(value)
			case fieldCreatedAt:
				if at, decodeErr := bluge.DecodeDateTime(value); decodeErr == nil {
					hit.CreatedAt = at.UTC()
				}
			}
			return true
		})
		if visitErr != nil {
			return search.Result{}, visitErr
		}
		result.Hits = append(result.Hits, hit)
		match, err = matches.Next()
	}
	if err != nil {
		return search.Result{}, err
	}
	result.Total = matches.Aggregations().Count()
	r.log.Debug("Transcript search", "terms", query.Terms, "hits", len(result.Hits), "total", result.Total)
	return result, nil
}
