package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/convoca/internal/interfaces"
	"github.com/ternarybob/convoca/internal/models"
)

// queuedMessage is the envelope stored in Badger around a task message
type queuedMessage struct {
	ID           string             `json:"id"`
	Body         models.TaskMessage `json:"body"`
	EnqueuedAt   time.Time          `json:"enqueued_at"`
	VisibleAt    time.Time          `json:"visible_at"`
	ReceiveCount int                `json:"receive_count"`
}

var _ interfaces.QueueManager = (*BadgerManager)(nil)

// BadgerManager implements a persistent named-queue transport on BadgerDB.
//
// Each message is stored twice: the payload at queue:{name}:msg:{id}, and a
// visibility index entry at queue:{name}:index:{visibleAt}:{id}. The index
// timestamp is zero-padded so lexicographic iteration yields messages in
// visibility order. Receiving a message moves its index entry forward by the
// visibility timeout; the delete function returned by Receive removes both
// keys, so a handler that crashes before acknowledging leaves the message to
// reappear once the timeout passes.
type BadgerManager struct {
	db                *badger.DB
	visibilityTimeout time.Duration
	maxReceive        int
	logger            arbor.ILogger
}

// NewBadgerManager creates a new Badger-backed queue manager. The database
// is shared with the storage layer and managed externally.
func NewBadgerManager(db *badger.DB, visibilityTimeout time.Duration, maxReceive int, logger arbor.ILogger) (*BadgerManager, error) {
	if db == nil {
		return nil, errors.New("badger db is required")
	}
	if visibilityTimeout <= 0 {
		visibilityTimeout = 10 * time.Minute
	}
	if maxReceive <= 0 {
		maxReceive = 4
	}

	return &BadgerManager{
		db:                db,
		visibilityTimeout: visibilityTimeout,
		maxReceive:        maxReceive,
		logger:            logger,
	}, nil
}

// Publish appends a task to the named queue, immediately visible
func (m *BadgerManager) Publish(queueName string, msg *models.TaskMessage) error {
	return m.PublishDelayed(queueName, msg, 0)
}

// PublishDelayed appends a task that becomes visible after delay. Retry
// backoff rides on this: a re-published task simply sits invisible until its
// backoff elapses.
func (m *BadgerManager) PublishDelayed(queueName string, msg *models.TaskMessage, delay time.Duration) error {
	if queueName == "" {
		return errors.New("queue name is required")
	}

	id := uuid.New().String()
	now := time.Now()

	qMsg := queuedMessage{
		ID:         id,
		Body:       *msg,
		EnqueuedAt: now,
		VisibleAt:  now.Add(delay),
	}

	data, err := json.Marshal(qMsg)
	if err != nil {
		return fmt.Errorf("failed to marshal queue message: %w", err)
	}

	return m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(msgKey(queueName, id), data); err != nil {
			return err
		}
		return txn.Set(indexKey(queueName, qMsg.VisibleAt, id), []byte{})
	})
}

// Receive pulls the oldest visible message from the named queue. Messages
// that have exhausted their receive budget are dropped rather than
// redelivered, which is what keeps a poison task from looping forever.
func (m *BadgerManager) Receive(queueName string) (*models.TaskMessage, interfaces.DeleteMessageFunc, error) {
	var qMsg queuedMessage
	var msgID string
	var oldIndexKey []byte
	found := false

	err := m.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		prefix := indexPrefix(queueName)
		it := txn.NewIterator(opts)
		defer it.Close()

		now := time.Now()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)

			ts, id, err := parseIndexKey(queueName, key)
			if err != nil {
				continue
			}

			// Index keys sort by visibility time; the first future entry
			// means nothing later is visible either
			if ts.After(now) {
				break
			}

			item, err := txn.Get(msgKey(queueName, id))
			if err != nil {
				if err == badger.ErrKeyNotFound {
					// Stale index entry, clean it up
					if err := txn.Delete(key); err != nil {
						return err
					}
					continue
				}
				return err
			}

			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &qMsg)
			}); err != nil {
				return err
			}

			if qMsg.ReceiveCount >= m.maxReceive {
				if m.logger != nil {
					m.logger.Warn().Str("queue", queueName).Str("message_id", id).
						Int("receive_count", qMsg.ReceiveCount).
						Msg("Dropping message after exhausting receive budget")
				}
				if err := txn.Delete(key); err != nil {
					return err
				}
				if err := txn.Delete(msgKey(queueName, id)); err != nil {
					return err
				}
				continue
			}

			found = true
			msgID = id
			oldIndexKey = key
			break
		}

		if !found {
			// An error return would abort the transaction and resurrect
			// any messages dropped above; commit and signal outside
			return nil
		}

		qMsg.ReceiveCount++
		qMsg.VisibleAt = time.Now().Add(m.visibilityTimeout)

		newData, err := json.Marshal(qMsg)
		if err != nil {
			return err
		}
		if err := txn.Set(msgKey(queueName, msgID), newData); err != nil {
			return err
		}
		if err := txn.Delete(oldIndexKey); err != nil {
			return err
		}
		return txn.Set(indexKey(queueName, qMsg.VisibleAt, msgID), []byte{})
	})
	if err != nil {
		return nil, nil, err
	}
	if !found {
		return nil, nil, models.ErrNoMessage
	}

	deleteFn := func() error {
		return m.db.Update(func(txn *badger.Txn) error {
			item, err := txn.Get(msgKey(queueName, msgID))
			if err != nil {
				if err == badger.ErrKeyNotFound {
					return nil // Already acknowledged
				}
				return err
			}

			var current queuedMessage
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &current)
			}); err != nil {
				return err
			}

			if err := txn.Delete(indexKey(queueName, current.VisibleAt, msgID)); err != nil {
				if err != badger.ErrKeyNotFound {
					return err
				}
			}
			return txn.Delete(msgKey(queueName, msgID))
		})
	}

	return &qMsg.Body, deleteFn, nil
}

// Depth counts all messages in the named queue, visible or in flight
func (m *BadgerManager) Depth(queueName string) (int, error) {
	count := 0
	err := m.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		prefix := []byte(fmt.Sprintf("queue:%s:msg:", queueName))
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count queue %s: %w", queueName, err)
	}
	return count, nil
}

// Close is a no-op; the database is owned by the storage layer
func (m *BadgerManager) Close() error {
	return nil
}

func msgKey(queueName, id string) []byte {
	return []byte(fmt.Sprintf("queue:%s:msg:%s", queueName, id))
}

func indexPrefix(queueName string) []byte {
	return []byte(fmt.Sprintf("queue:%s:index:", queueName))
}

func indexKey(queueName string, visibleAt time.Time, id string) []byte {
	// Zero pad to 20 digits so string ordering matches numeric ordering
	return []byte(fmt.Sprintf("queue:%s:index:%020d:%s", queueName, visibleAt.UnixNano(), id))
}

func parseIndexKey(queueName string, key []byte) (time.Time, string, error) {
	prefix := indexPrefix(queueName)
	if len(key) <= len(prefix) {
		return time.Time{}, "", fmt.Errorf("invalid index key length")
	}

	suffix := string(key[len(prefix):])
	if len(suffix) < 22 { // 20 digits + colon + at least one id char
		return time.Time{}, "", fmt.Errorf("invalid index key suffix")
	}

	var ts int64
	if _, err := fmt.Sscanf(suffix[:20], "%d", &ts); err != nil {
		return time.Time{}, "", err
	}

	return time.Unix(0, ts), suffix[21:], nil
}
