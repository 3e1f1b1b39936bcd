//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/blugelabs/bluge"
	"github.com/blugelabs/bluge/analysis"
	"github.com/blugelabs/bluge/analysis/token"
	"github.com/blugelabs/bluge/analysis/tokenizer"
	"github.com/dgraph-io/badger/v4"

	"chat-relay/domain"
)

type IMessageRepository interface {
	Insert(sender, receiver, content string, kind domain.Kind) (domain.Message, error)
	All() ([]domain.Message, error)
	Search(ctx context.Context, keyword string) ([]SearchHit, error)
	Close() error
}

// SearchHit is one (sender, content, timestamp) tuple returned by Search.
type SearchHit struct {
	Sender    string
	Content   string
	Timestamp string
}

const (
	msgKeyPrefix = "msg:"
	msgSeqKey    = "seq:msg"
)

// contentAnalyzer indexes the whole content as a single lowercased token.
// Combined with a lowercased, metacharacter-quoted regexp query this gives
// exact, case-insensitive substring matching instead of term matching.
var contentAnalyzer = &analysis.Analyzer{
	Tokenizer:    tokenizer.NewSingleTokenTokenizer(),
	TokenFilters: []analysis.TokenFilter{token.NewLowerCaseFilter()},
}

// MessageRepository is the durable, append-only message log. BadgerDB holds
// the rows under "msg:{id_padded}" keys (19-digit zero padding keeps the
// lexicographic key order equal to the numeric id order) and a Bluge index
// carries the searchable content.
//
// Ids come from a Badger sequence and are strictly increasing across all
// connections; inserts are serialized by a single mutex so readers always
// observe a contiguous committed prefix.
type MessageRepository struct {
	mu         sync.Mutex
	db         *badger.DB
	seq        *badger.Sequence
	index      *bluge.Writer
	log        *slog.Logger
	searchPage int
}

func NewMessageRepository(db *badger.DB, index *bluge.Writer, log *slog.Logger, searchPage int) (*MessageRepository, error) {
	seq, err := db.GetSequence([]byte(msgSeqKey), 100)
	if err != nil {
		return nil, fmt.Errorf("message sequence: %w", err)
	}
	return &MessageRepository{
		db:         db,
		seq:        seq,
		index:      index,
		log:        log,
		searchPage: searchPage,
	}, nil
}

// Insert appends a message with a fresh id and the current UTC timestamp.
// The row is committed to Badger before the method returns; the search index
// is updated afterwards and an index failure does not undo the row.
func (m *MessageRepository) Insert(sender, receiver, content string, kind domain.Kind) (domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next, err := m.seq.Next()
	if err != nil {
		return domain.Message{}, fmt.Errorf("next message id: %w", err)
	}

	message := domain.Message{
		ID:       next + 1,
		Sender:   sender,
		Receiver: receiver,
		Content:  content,
		At:       time.Now().UTC(),
		Kind:     kind,
	}

	row, err := json.Marshal(message)
	if err != nil {
		return domain.Message{}, err
	}
	err = m.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key(message.ID)), row)
	})
	if err != nil {
		return domain.Message{}, fmt.Errorf("store message %d: %w", message.ID, err)
	}

	if err := m.indexMessage(message); err != nil {
		// The row is durable; only Search coverage is degraded.
		m.log.Error("Failed to index message", "id", message.ID, "err", err)
	}
	return message, nil
}

func (m *MessageRepository) indexMessage(message domain.Message) error {
	doc := bluge.NewDocument(key(message.ID))
	doc.AddField(bluge.NewTextField("content", message.Content).WithAnalyzer(contentAnalyzer).StoreValue())
	doc.AddField(bluge.NewKeywordField("sender", message.Sender).StoreValue())
	doc.AddField(bluge.NewKeywordField("timestamp", message.At.Format("2006-01-02 15:04:05")).StoreValue())
	doc.AddField(bluge.NewKeywordField("kind", string(message.Kind)))
	return m.index.Update(doc.ID(), doc)
}

// All replays every persisted message in ascending id order.
func (m *MessageRepository) All() ([]domain.Message, error) {
	var messages []domain.Message
	err := m.db.View(func(txn *badger.Txn) error {
		prefix := []byte(msgKeyPrefix)
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = true
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(value []byte) error {
				var message domain.Message
				if err := json.Unmarshal(value, &message); err != nil {
					return fmt.Errorf("decode row %s: %w", it.Item().Key(), err)
				}
				messages = append(messages, message)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// Search returns every message whose content contains keyword as a
// substring, case-insensitively. Regexp metacharacters in the keyword are
// quoted so "*" and "?" match literally, and the query is not analyzed by
// Bluge, so the keyword is lowercased here to line up with contentAnalyzer.
// Matches beyond one page are fetched page by page until exhausted.
func (m *MessageRepository) Search(ctx context.Context, keyword string) ([]SearchHit, error) {
	reader, err := m.index.Reader()
	if err != nil {
		return nil, fmt.Errorf("open index reader: %w", err)
	}
	defer func() { _ = reader.Close() }()

	pattern := ".*" + regexp.QuoteMeta(strings.ToLower(keyword)) + ".*"
	query := bluge.NewRegexpQuery(pattern).SetField("content")

	var hits []SearchHit
	for from := 0; ; from += m.searchPage {
		request := bluge.NewTopNSearch(m.searchPage, query).
			SortBy([]string{"_id"}).
			SetFrom(from)
		iterator, err := reader.Search(ctx, request)
		if err != nil {
			return nil, fmt.Errorf("search %q: %w", keyword, err)
		}

		matched := 0
		for {
			match, err := iterator.Next()
			if err != nil {
				return nil, err
			}
			if match == nil {
				break
			}
			matched++
			var hit SearchHit
			err = match.VisitStoredFields(func(field string, value []byte) bool {
				switch field {
				case "sender":
					hit.Sender = string(value)
				case "content":
					hit.Content = string(value)
				case "timestamp":
					hit.Timestamp = string(value)
				}
				return true
			})
			if err != nil {
				return nil, err
			}
			hits = append(hits, hit)
		}
		// A short page means the match set is exhausted.
		if matched < m.searchPage {
			return hits, nil
		}
	}
}

// Close releases the id sequence. Unused ids in the current lease are
// discarded, which leaves a gap after restart but never reuses an id.
func (m *MessageRepository) Close() error {
	return m.seq.Release()
}

func key(id uint64) string {
	return fmt.Sprintf("%s%019d", msgKeyPrefix, id)
}
